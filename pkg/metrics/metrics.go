package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups records freshness-cache lookups by result (hit|miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncengine_cache_lookups_total",
			Help: "Total number of freshness cache lookups",
		},
		[]string{"result"},
	)

	// RemoteAttempts counts remote call attempts and their outcome (success|transient|permanent).
	RemoteAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncengine_remote_attempts_total",
			Help: "Total number of remote call attempts",
		},
		[]string{"result"},
	)

	// DegradedReads counts reads served from the durable store or the empty
	// default after remote retries were exhausted.
	DegradedReads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncengine_degraded_reads_total",
			Help: "Number of reads that degraded to stale or empty data",
		},
	)

	// QueueDepth tracks pending offline operations awaiting replay.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncengine_queue_depth",
			Help: "Number of queued offline operations",
		},
	)

	// QueueReplays counts replayed queue operations by result (applied|failed|skipped).
	QueueReplays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncengine_queue_replays_total",
			Help: "Total number of replayed offline operations",
		},
		[]string{"result"},
	)

	// RecoveryRuns counts recovery attempts by result (cleared|reload_only).
	RecoveryRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncengine_recovery_runs_total",
			Help: "Total number of recovery controller runs",
		},
		[]string{"result"},
	)
)
