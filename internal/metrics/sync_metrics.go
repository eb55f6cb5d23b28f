package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes used as the "outcome" label of upstream_requests_total
const (
	OutcomeOK        = "ok"
	OutcomeRetry     = "retry"
	OutcomeFatal     = "fatal"
	OutcomeExhausted = "exhausted"
)

// SyncBuckets covers a single battle sync, from a cache hit to a long
// battle fetched round by round under the pacing delay.
var SyncBuckets = []float64{0.05, 0.25, 1, 5, 15, 60, 300, 900}

// SyncMetrics collects counters for the battle/fight synchronization cache.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	UpstreamRequests  *prometheus.CounterVec
	UpstreamRetries   *prometheus.CounterVec
	BattlesRefreshed  prometheus.Counter
	BattlesSkipped    prometheus.Counter
	RoundsCommitted   prometheus.Counter
	FightRowsInserted prometheus.Counter
	SyncDuration      prometheus.Histogram
}

// NewSyncMetrics registers the collectors on the default registerer
func NewSyncMetrics(namespace string) *SyncMetrics {
	return NewSyncMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewSyncMetricsWithRegistry registers the collectors on registerer
func NewSyncMetricsWithRegistry(namespace string, registerer prometheus.Registerer) *SyncMetrics {
	factory := promauto.With(registerer)

	return &SyncMetrics{
		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Upstream API requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		UpstreamRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "retries_total",
				Help:      "Upstream API retry sleeps by endpoint",
			},
			[]string{"endpoint"},
		),
		BattlesRefreshed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "battles_refreshed_total",
			Help:      "Battle snapshots fetched and replaced in the store",
		}),
		BattlesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "battles_skipped_total",
			Help:      "Requested battles served from a terminal stored snapshot",
		}),
		RoundsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "rounds_committed_total",
			Help:      "Rounds fetched and committed to the fight store",
		}),
		FightRowsInserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fight_rows_inserted_total",
			Help:      "Fight rows newly inserted, sentinels included",
		}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "sync_duration_seconds",
			Help:      "Duration of EnsureCached calls",
			Buckets:   SyncBuckets,
		}),
	}
}

// RecordRequest counts one upstream request attempt
func (m *SyncMetrics) RecordRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
}

// RecordRetry counts one retry sleep
func (m *SyncMetrics) RecordRetry(endpoint string) {
	if m == nil {
		return
	}
	m.UpstreamRetries.WithLabelValues(endpoint).Inc()
}

// RecordBattle counts a reconciled battle as refreshed or skipped
func (m *SyncMetrics) RecordBattle(refreshed bool) {
	if m == nil {
		return
	}
	if refreshed {
		m.BattlesRefreshed.Inc()
	} else {
		m.BattlesSkipped.Inc()
	}
}

// RecordRound counts one committed round and its newly inserted rows
func (m *SyncMetrics) RecordRound(inserted int64) {
	if m == nil {
		return
	}
	m.RoundsCommitted.Inc()
	if inserted > 0 {
		m.FightRowsInserted.Add(float64(inserted))
	}
}

// ObserveSync records the duration of a sync that started at start
func (m *SyncMetrics) ObserveSync(start time.Time) {
	if m == nil {
		return
	}
	m.SyncDuration.Observe(time.Since(start).Seconds())
}
