package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for FightPool.
type Metrics struct {
	// --- Core Processing ---
	CoreEventsApplied    *prometheus.CounterVec
	CoreEventsRejected   *prometheus.CounterVec
	CoreEventDuration    *prometheus.HistogramVec
	CoreJournals         *prometheus.CounterVec
	CoreSequence         prometheus.Gauge
	CoreClockRegressions prometheus.Counter

	// --- Escrow ---
	LamportsMoved        *prometheus.CounterVec
	VaultCustody         prometheus.Gauge
	MatchesLive          *prometheus.GaugeVec
	NotificationsEmitted *prometheus.CounterVec

	// --- Latency ---
	SubmitToApply       *prometheus.HistogramVec
	PersistBatchDur     prometheus.Histogram
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- Channel & Backpressure ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec
	ProjectionDrops    *prometheus.CounterVec
	PublishDrops       prometheus.Counter
	StreamDrops        prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupTier2Errors      prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	SnapshotArchived  *prometheus.CounterVec
	ReplayEventsTotal prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// --- Cluster ---
	LeaderStatus prometheus.Gauge

	// --- Query / API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	RateLimited   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// Registration is global: call once per process.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Core Processing
		CoreEventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fightpool_core_events_applied_total",
			Help: "Commands successfully applied by core",
		}, []string{"event_type"}),

		CoreEventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fightpool_core_events_rejected_total",
			Help: "Commands rejected, by error kind and code",
		}, []string{"event_type", "kind", "code"}),

		CoreEventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fightpool_core_event_apply_duration_seconds",
			Help:    "Time to apply a single command in core",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		CoreJournals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fightpool_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fightpool_core_sequence",
			Help: "Current global sequence number",
		}),

		CoreClockRegressions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fightpool_core_clock_regressions_total",
			Help: "Commands whose timestamp was behind the core clock",
		}),

		// Escrow
		LamportsMoved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fightpool_lamports_moved_total",
			Help: "Lamports moved through vaults, by journal type",
		}, []string{"journal_type"}),

		VaultCustody: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fightpool_vault_custody_lamports",
			Help: "Sum of all vault balances",
		}),

		MatchesLive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fightpool_matches_live",
			Help: "Live match pools by status",
		}, []string{"status"}),

		NotificationsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fightpool_notifications_emitted_total",
			Help: "Notifications emitted by kind",
		}, []string{"kind"}),

		// Latency
		SubmitToApply: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fightpool_submit_to_apply_seconds",
			Help:    "Submission enqueue to core apply complete",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"source"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fightpool_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		ProjectionUpdateDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fightpool_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		// Channel & Backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fightpool_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fightpool_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fightpool_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fightpool_projection_drops_total",
			Help: "Outputs dropped due to full projection channel",
		}, []string{"projection"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fightpool_publish_drops_total",
			Help: "Notifications dropped due to full publish channel",
		}),

		StreamDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fightpool_stream_drops_total",
			Help: "Notifications dropped for slow websocket clients",
		}),

		// Idempotency
		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fightpool_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"event_type", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fightpool_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupTier2Errors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fightpool_dedup_tier2_errors_total",
			Help: "Postgres dedup lookups that failed",
		}),

		// Persistence
		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fightpool_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fightpool_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fightpool_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fightpool_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fightpool_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fightpool_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Snapshot
		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fightpool_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fightpool_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fightpool_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fightpool_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		SnapshotArchived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fightpool_snapshot_archived_total",
			Help: "Snapshot archive uploads by outcome",
		}, []string{"outcome"}),

		ReplayEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fightpool_replay_events_total",
			Help: "Events replayed on startup",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fightpool_replay_duration_seconds",
			Help: "Total replay time",
		}),

		// Cluster
		LeaderStatus: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fightpool_leader",
			Help: "1 while this instance holds the core lock",
		}),

		// Query / API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fightpool_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fightpool_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		RateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fightpool_rate_limited_total",
			Help: "Requests rejected by the HTTP rate limiter",
		}, []string{"route"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
