// Package stats keeps the running counters behind the stats command
// and mirrors them into the Prometheus collectors.
package stats

import (
	"sync/atomic"
	"time"

	"gideon/internal/metrics"
)

// Stats is safe for concurrent use; every recording method is a single
// atomic bump.
type Stats struct {
	listens      atomic.Int64
	recognitions atomic.Int64
	recFailures  atomic.Int64
	wakeHits     atomic.Int64
	discards     atomic.Int64

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	retries     atomic.Int64

	exchanges   atomic.Int64
	cacheTier   atomic.Int64
	llmTier     atomic.Int64
	fallback    atomic.Int64
	latencyMsum atomic.Int64
}

func New() *Stats { return &Stats{} }

// Snapshot is the stats command's payload.
type Snapshot struct {
	Listens             int64   `json:"listens"`
	Recognitions        int64   `json:"recognitions"`
	RecognitionFailures int64   `json:"recognition_failures"`
	RecognitionRate     float64 `json:"recognition_rate"`
	WakeHits            int64   `json:"wake_hits"`
	Discards            int64   `json:"discards"`
	CacheHits           int64   `json:"cache_hits"`
	CacheMisses         int64   `json:"cache_misses"`
	CacheHitRate        float64 `json:"cache_hit_rate"`
	ModelRetries        int64   `json:"model_retries"`
	Exchanges           int64   `json:"exchanges"`
	CacheReplies        int64   `json:"cache_replies"`
	ModelReplies        int64   `json:"model_replies"`
	FallbackReplies     int64   `json:"fallback_replies"`
	AvgResponseMs       float64 `json:"avg_response_ms"`
}

func (s *Stats) Listen() {
	s.listens.Add(1)
	metrics.Listens.Inc()
}

func (s *Stats) Recognition() {
	s.recognitions.Add(1)
	metrics.Recognitions.WithLabelValues("ok").Inc()
}

func (s *Stats) RecognitionFailure() {
	s.recFailures.Add(1)
	metrics.Recognitions.WithLabelValues("failed").Inc()
}

func (s *Stats) WakeHit() {
	s.wakeHits.Add(1)
	metrics.WakeHits.Inc()
}

func (s *Stats) Discard() {
	s.discards.Add(1)
	metrics.Discards.Inc()
}

func (s *Stats) CacheHit() {
	s.cacheHits.Add(1)
	metrics.CacheLookups.WithLabelValues("hit").Inc()
}

func (s *Stats) CacheMiss() {
	s.cacheMisses.Add(1)
	metrics.CacheLookups.WithLabelValues("miss").Inc()
}

func (s *Stats) ModelRetry() {
	s.retries.Add(1)
	metrics.ModelRetries.Inc()
}

// Exchange records a completed reply and where it came from.
func (s *Stats) Exchange(tier string, latency time.Duration) {
	s.exchanges.Add(1)
	s.latencyMsum.Add(latency.Milliseconds())
	switch tier {
	case "cache":
		s.cacheTier.Add(1)
	case "llm":
		s.llmTier.Add(1)
	case "fallback":
		s.fallback.Add(1)
	}
	metrics.Exchanges.WithLabelValues(tier).Inc()
	metrics.ObserveResponse(latency)
}

func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Listens:             s.listens.Load(),
		Recognitions:        s.recognitions.Load(),
		RecognitionFailures: s.recFailures.Load(),
		WakeHits:            s.wakeHits.Load(),
		Discards:            s.discards.Load(),
		CacheHits:           s.cacheHits.Load(),
		CacheMisses:         s.cacheMisses.Load(),
		ModelRetries:        s.retries.Load(),
		Exchanges:           s.exchanges.Load(),
		CacheReplies:        s.cacheTier.Load(),
		ModelReplies:        s.llmTier.Load(),
		FallbackReplies:     s.fallback.Load(),
	}
	if n := snap.Recognitions + snap.RecognitionFailures; n > 0 {
		snap.RecognitionRate = float64(snap.Recognitions) / float64(n)
	}
	if n := snap.CacheHits + snap.CacheMisses; n > 0 {
		snap.CacheHitRate = float64(snap.CacheHits) / float64(n)
	}
	if snap.Exchanges > 0 {
		snap.AvgResponseMs = float64(s.latencyMsum.Load()) / float64(snap.Exchanges)
	}
	return snap
}
