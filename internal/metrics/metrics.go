// Package metrics exposes the engine's Prometheus instrumentation.
// Collectors are registered at import time; Serve publishes them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Listens = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gideon",
		Name:      "listens_total",
		Help:      "Capture attempts started by the voice loop.",
	})

	Recognitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gideon",
		Name:      "recognitions_total",
		Help:      "Transcription outcomes by result.",
	}, []string{"result"})

	WakeHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gideon",
		Name:      "wake_hits_total",
		Help:      "Transcripts that matched the wake word.",
	})

	Discards = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gideon",
		Name:      "discards_total",
		Help:      "Transcripts dropped for lacking the wake word.",
	})

	Exchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gideon",
		Name:      "exchanges_total",
		Help:      "Completed exchanges by reply tier.",
	}, []string{"tier"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gideon",
		Name:      "cache_lookups_total",
		Help:      "Response cache lookups by result.",
	}, []string{"result"})

	ModelRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gideon",
		Name:      "model_retries_total",
		Help:      "Extra model attempts after transient failures.",
	})

	ResponseSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gideon",
		Name:      "response_seconds",
		Help:      "Latency from accepted transcript to reply.",
		Buckets:   prometheus.DefBuckets,
	})

	LoopState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gideon",
		Name:      "loop_state",
		Help:      "Current voice loop state as its numeric code.",
	})

	ProbeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gideon",
		Name:      "probe_failures_total",
		Help:      "Health probe failures by component.",
	}, []string{"component"})

	HeapBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gideon",
		Name:      "heap_bytes",
		Help:      "Heap in use as of the last health probe.",
	})
)

// ObserveResponse records one end-to-end reply latency.
func ObserveResponse(d time.Duration) {
	ResponseSeconds.Observe(d.Seconds())
}

// Serve publishes /metrics on addr. It blocks like
// http.ListenAndServe.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
