package audio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	log "log/slog"
)

// Options tunes calibration. Zero fields fall back to the defaults
// below.
type Options struct {
	SampleRate    int           // capture rate handed out in sessions
	AmbientWindow time.Duration // per-device noise measurement length
	Gain          float64       // threshold = clamp(Gain * ambient RMS)
	ThresholdMin  float64
	ThresholdMax  float64
	Every         time.Duration // periodic recalibration interval
	FailureLimit  int           // consecutive capture failures before recalibrating
}

const (
	defaultSampleRate    = 16000
	defaultAmbientWindow = 300 * time.Millisecond
	defaultGain          = 4.0
	defaultThresholdMin  = 0.005
	defaultThresholdMax  = 0.25
	defaultEvery         = 60 * time.Second
	defaultFailureLimit  = 3
)

func (o Options) withDefaults() Options {
	if o.SampleRate <= 0 {
		o.SampleRate = defaultSampleRate
	}
	if o.AmbientWindow <= 0 {
		o.AmbientWindow = defaultAmbientWindow
	}
	if o.Gain <= 0 {
		o.Gain = defaultGain
	}
	if o.ThresholdMin <= 0 {
		o.ThresholdMin = defaultThresholdMin
	}
	if o.ThresholdMax <= o.ThresholdMin {
		o.ThresholdMax = defaultThresholdMax
	}
	if o.Every <= 0 {
		o.Every = defaultEvery
	}
	if o.FailureLimit <= 0 {
		o.FailureLimit = defaultFailureLimit
	}
	return o
}

// Calibrator owns the capture session. It scans devices, scores them,
// measures ambient noise on the winner, and derives the energy
// threshold capture uses to tell speech from silence. It redoes all of
// that on a timer, on demand, and after repeated capture failures.
type Calibrator struct {
	src Source
	opt Options

	mu       sync.Mutex
	session  Session
	failures int

	updated chan struct{}
}

func NewCalibrator(src Source, opt Options) *Calibrator {
	return &Calibrator{
		src:     src,
		opt:     opt.withDefaults(),
		updated: make(chan struct{}, 1),
	}
}

// Calibrate runs a full scan-score-measure pass and installs the
// resulting session. It never fails: when no device works the session
// comes back disabled and the engine degrades to text only.
func (c *Calibrator) Calibrate(ctx context.Context) Session {
	s := c.measure(ctx)

	c.mu.Lock()
	c.session = s
	c.failures = 0
	c.mu.Unlock()
	c.notify()

	if s.Disabled {
		log.Warn("Calibration found no usable device, audio disabled")
	} else {
		log.Info("Calibrated capture session",
			"device", s.DeviceName,
			"index", s.DeviceIndex,
			"threshold", s.EnergyThreshold,
		)
	}
	return s
}

// Recalibrate records why a fresh pass is happening and runs it.
func (c *Calibrator) Recalibrate(ctx context.Context, reason string) Session {
	log.Info("Recalibrating", "reason", reason)
	return c.Calibrate(ctx)
}

// Session returns the current session.
func (c *Calibrator) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// NoteFailure counts a capture failure against the session. Hitting
// the limit forces a recalibration, which resets the count.
func (c *Calibrator) NoteFailure(ctx context.Context) {
	c.mu.Lock()
	c.failures++
	n := c.failures
	c.mu.Unlock()

	if n >= c.opt.FailureLimit {
		c.Recalibrate(ctx, fmt.Sprintf("%d consecutive capture failures", n))
	}
}

// NoteSuccess clears the failure streak.
func (c *Calibrator) NoteSuccess() {
	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()
}

// ProbeDevice checks that capture hardware is still enumerable. Cheap
// enough for the health monitor to call on every pass.
func (c *Calibrator) ProbeDevice() error {
	devices, err := c.src.Devices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			return nil
		}
	}
	return ErrNoDevice
}

// Run recalibrates on a fixed interval until the context ends.
func (c *Calibrator) Run(ctx context.Context) {
	t := time.NewTicker(c.opt.Every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Recalibrate(ctx, "periodic")
		}
	}
}

// Updated signals after every calibration pass. The channel is
// buffered and coalescing; receivers re-read Session on wake-up.
func (c *Calibrator) Updated() <-chan struct{} { return c.updated }

func (c *Calibrator) notify() {
	select {
	case c.updated <- struct{}{}:
	default:
	}
}

func (c *Calibrator) measure(ctx context.Context) Session {
	devices, err := c.src.Devices()
	if err != nil {
		log.Warn("Device scan failed", "err", err)
		return c.disabledSession()
	}

	var (
		found     bool
		bestDev   Device
		bestRMS   float64
		bestScore = math.Inf(-1)
	)
	for _, dev := range devices {
		if dev.MaxInputChannels <= 0 {
			continue
		}
		rms, err := c.src.Ambient(ctx, dev.Index, c.opt.AmbientWindow)
		if err != nil {
			log.Debug("Skipping device", "device", dev.Name, "err", err)
			continue
		}
		score := scoreDevice(dev, rms)
		better := score > bestScore ||
			(score == bestScore && dev.IsDefault && !bestDev.IsDefault)
		if !found || better {
			found, bestDev, bestRMS, bestScore = true, dev, rms, score
		}
	}
	if !found {
		return c.disabledSession()
	}

	return Session{
		DeviceIndex:     bestDev.Index,
		DeviceName:      bestDev.Name,
		SampleRate:      c.opt.SampleRate,
		EnergyThreshold: clampThreshold(c.opt.Gain*bestRMS, c.opt.ThresholdMin, c.opt.ThresholdMax),
		CalibratedAt:    time.Now(),
	}
}

// scoreDevice ranks a candidate: input channels and the default flag
// dominate, quieter ambient noise breaks the rest.
func scoreDevice(dev Device, ambientRMS float64) float64 {
	score := float64(dev.MaxInputChannels)
	if dev.IsDefault {
		score += 2
	}
	return score + 1/(1+20*ambientRMS)
}

func clampThreshold(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (c *Calibrator) disabledSession() Session {
	return Session{
		SampleRate:      c.opt.SampleRate,
		EnergyThreshold: c.opt.ThresholdMin,
		CalibratedAt:    time.Now(),
		Disabled:        true,
	}
}
