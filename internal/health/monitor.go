// Package health watches the daemon's moving parts on a fixed period
// and applies corrective actions when a component drifts: recalibration
// for a lost capture device, the model short-circuit for an unreachable
// API, and cache shrinking for heap pressure.
package health

import (
	"context"
	"fmt"
	log "log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"gideon/internal/audio"
	"gideon/internal/memory"
	"gideon/internal/metrics"
)

// State grades a single component.
type State string

const (
	StateOK       State = "ok"
	StateDegraded State = "degraded"
	StateFailed   State = "failed"
)

// Check is the outcome of probing one component.
type Check struct {
	State       State     `json:"state"`
	LastChecked time.Time `json:"last_checked"`
	Detail      string    `json:"detail,omitempty"`
}

// Snapshot holds the latest check per component.
type Snapshot struct {
	Audio  Check `json:"audio"`
	Model  Check `json:"model"`
	Memory Check `json:"memory"`
}

// Healthy reports whether every component checked out on the last round.
func (s Snapshot) Healthy() bool {
	return s.Audio.State == StateOK && s.Model.State == StateOK && s.Memory.State == StateOK
}

// AudioProber checks the capture device and rebuilds the session when
// the monitor asks for it.
type AudioProber interface {
	ProbeDevice() error
	Recalibrate(ctx context.Context, reason string) audio.Session
}

// Pinger answers a cheap liveness request against the model API.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Switch toggles the response engine's model bypass.
type Switch interface {
	SetShortCircuit(on bool)
}

type Options struct {
	Every        time.Duration  // probe period
	HeapCeiling  uint64         // bytes of heap tolerated before corrective action
	FailureLimit int            // consecutive failures before escalating
	OnProbe      func(Snapshot) // called after each round when set
}

func (o Options) withDefaults() Options {
	const (
		defaultEvery        = 30 * time.Second
		defaultHeapCeiling  = 256 << 20
		defaultFailureLimit = 2
	)
	if o.Every <= 0 {
		o.Every = defaultEvery
	}
	if o.HeapCeiling == 0 {
		o.HeapCeiling = defaultHeapCeiling
	}
	if o.FailureLimit <= 0 {
		o.FailureLimit = defaultFailureLimit
	}
	return o
}

// Monitor probes audio, model and memory and keeps the latest snapshot.
type Monitor struct {
	audio  AudioProber
	model  Pinger
	bypass Switch
	cache  *memory.Cache
	conv   *memory.Conversation
	opt    Options

	readMem func() uint64
	freeMem func()

	probeMu    sync.Mutex // serializes probe rounds
	audioFails int
	modelFails int

	mu   sync.Mutex
	snap Snapshot
}

func New(prober AudioProber, model Pinger, bypass Switch, cache *memory.Cache, conv *memory.Conversation, opt Options) *Monitor {
	return &Monitor{
		audio:   prober,
		model:   model,
		bypass:  bypass,
		cache:   cache,
		conv:    conv,
		opt:     opt.withDefaults(),
		readMem: defaultReadMem,
		freeMem: defaultFreeMem,
	}
}

// Run probes on the configured period until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.opt.Every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.ProbeNow(ctx)
		}
	}
}

// ProbeNow runs one full probe round and returns the fresh snapshot.
// It never fails the process; broken components are graded and acted on.
func (m *Monitor) ProbeNow(ctx context.Context) Snapshot {
	m.probeMu.Lock()
	defer m.probeMu.Unlock()

	now := time.Now()
	snap := Snapshot{
		Audio:  m.probeAudio(ctx, now),
		Model:  m.probeModel(ctx, now),
		Memory: m.probeMemory(now),
	}

	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()

	if m.opt.OnProbe != nil {
		m.opt.OnProbe(snap)
	}
	return snap
}

// Status returns the snapshot from the most recent probe round.
func (m *Monitor) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *Monitor) probeAudio(ctx context.Context, now time.Time) Check {
	if m.audio == nil {
		return Check{State: StateDegraded, LastChecked: now, Detail: "audio disabled"}
	}
	if err := m.audio.ProbeDevice(); err != nil {
		m.audioFails++
		metrics.ProbeFailures.WithLabelValues("audio").Inc()
		log.Warn("Audio probe failed", "err", err, "consecutive", m.audioFails)
		if m.audioFails >= m.opt.FailureLimit {
			m.audio.Recalibrate(ctx, "health-check-failure")
			m.audioFails = 0
			return Check{State: StateFailed, LastChecked: now, Detail: err.Error()}
		}
		return Check{State: StateDegraded, LastChecked: now, Detail: err.Error()}
	}
	m.audioFails = 0
	return Check{State: StateOK, LastChecked: now}
}

func (m *Monitor) probeModel(ctx context.Context, now time.Time) Check {
	const probeTimeout = 10 * time.Second

	if m.model == nil {
		return Check{State: StateDegraded, LastChecked: now, Detail: "model disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := m.model.Ping(ctx); err != nil {
		m.modelFails++
		metrics.ProbeFailures.WithLabelValues("model").Inc()
		log.Warn("Model probe failed", "err", err, "consecutive", m.modelFails)
		if m.modelFails >= m.opt.FailureLimit {
			if m.bypass != nil {
				m.bypass.SetShortCircuit(true)
			}
			return Check{State: StateFailed, LastChecked: now, Detail: err.Error()}
		}
		return Check{State: StateDegraded, LastChecked: now, Detail: err.Error()}
	}
	m.modelFails = 0
	if m.bypass != nil {
		m.bypass.SetShortCircuit(false)
	}
	return Check{State: StateOK, LastChecked: now}
}

func (m *Monitor) probeMemory(now time.Time) Check {
	heap := m.readMem()
	metrics.HeapBytes.Set(float64(heap))
	if heap <= m.opt.HeapCeiling {
		return Check{State: StateOK, LastChecked: now, Detail: mib(heap)}
	}

	log.Warn("Heap above ceiling, collecting", "heap", mib(heap), "ceiling", mib(m.opt.HeapCeiling))
	m.freeMem()
	heap = m.readMem()
	metrics.HeapBytes.Set(float64(heap))
	if heap <= m.opt.HeapCeiling {
		return Check{State: StateOK, LastChecked: now, Detail: mib(heap)}
	}

	metrics.ProbeFailures.WithLabelValues("memory").Inc()
	m.shrink()
	return Check{State: StateDegraded, LastChecked: now, Detail: mib(heap)}
}

// shrink halves the reply cache and conversation window to shed heap.
func (m *Monitor) shrink() {
	if m.cache != nil {
		m.cache.Resize(m.cache.Capacity() / 2)
	}
	if m.conv != nil {
		m.conv.Resize(m.conv.Capacity() / 2)
	}
	log.Warn("Heap still high after collection, halving caches")
}

func defaultReadMem() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

func defaultFreeMem() {
	runtime.GC()
	debug.FreeOSMemory()
}

func mib(n uint64) string { return fmt.Sprintf("%d MiB", n>>20) }
