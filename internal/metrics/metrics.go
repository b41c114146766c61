package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector metrics for production monitoring
var (
	// Poll loop metrics
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "masterstat_poll_cycles_total",
			Help: "Total number of poll cycles by outcome",
		},
		[]string{"status"}, // status: ok/error
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "masterstat_poll_duration_seconds",
			Help:    "Device status fetch duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
	)

	// History store metrics
	SamplesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "masterstat_samples_appended_total",
			Help: "Total number of samples appended to history",
		},
		[]string{"origin"}, // origin: live/backfill
	)

	HistorySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "masterstat_history_size",
			Help: "Current number of samples held in memory",
		},
	)

	SnapshotWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "masterstat_snapshot_write_failures_total",
			Help: "Total number of failed durable snapshot writes",
		},
	)

	// Backfill metrics
	GapsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "masterstat_gaps_detected_total",
			Help: "Total number of log gaps detected",
		},
	)

	GapsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "masterstat_gaps_skipped_total",
			Help: "Total number of gaps skipped as older than the event source retention",
		},
	)

	BackfillWindowsQueried = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "masterstat_backfill_windows_queried_total",
			Help: "Total number of event history windows queried during backfill",
		},
	)

	SamplesSynthesized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "masterstat_samples_synthesized_total",
			Help: "Total number of samples reconstructed from event history",
		},
	)

	// Status cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "masterstat_status_cache_hits_total",
			Help: "Total number of status reads served from cache",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "masterstat_status_cache_misses_total",
			Help: "Total number of status reads that required a fresh fetch",
		},
	)

	// API client metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "masterstat_api_requests_total",
			Help: "Total number of SmartThings API requests",
		},
		[]string{"endpoint", "status"},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "masterstat_token_refreshes_total",
			Help: "Total number of credential refresh attempts",
		},
		[]string{"status"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "masterstat_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)
)
