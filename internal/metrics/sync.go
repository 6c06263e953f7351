package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pass results used as the "result" label on PassesTotal.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// SyncMetrics groups the collectors touched by the sync engine and scheduler.
type SyncMetrics struct {
	PassesTotal  *prometheus.CounterVec
	PassDuration prometheus.Histogram

	ItemsPushed   *prometheus.CounterVec
	ItemsRejected *prometheus.CounterVec
	ItemsPulled   *prometheus.CounterVec
	ItemsPurged   *prometheus.CounterVec

	PendingItems prometheus.Gauge
	Reachable    prometheus.Gauge
	Trusted      prometheus.Gauge

	BackupsUploaded prometheus.Counter
	BackupsSkipped  prometheus.Counter
}

// NewSyncMetrics registers all sync collectors with registry.
// A nil registry yields collectors that are never exported, which is what
// tests and library defaults want.
func NewSyncMetrics(registry prometheus.Registerer) *SyncMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &SyncMetrics{
		PassesTotal: NewCounterVec(registry, "sync_passes_total",
			"Sync passes by result", []string{"result"}),
		PassDuration: NewHistogram(registry, "sync_pass_duration_seconds",
			"Duration of completed sync passes", nil),

		ItemsPushed: NewCounterVec(registry, "sync_items_pushed_total",
			"Outbox items acknowledged by the server", []string{"entity"}),
		ItemsRejected: NewCounterVec(registry, "sync_items_rejected_total",
			"Outbox items the server rejected", []string{"entity"}),
		ItemsPulled: NewCounterVec(registry, "sync_items_pulled_total",
			"Remote records applied locally", []string{"entity"}),
		ItemsPurged: NewCounterVec(registry, "sync_items_purged_total",
			"Records removed by retention cleanup", []string{"entity"}),

		PendingItems: NewGauge(registry, "sync_pending_items",
			"Records waiting in the outbox"),
		Reachable: NewGauge(registry, "sync_server_reachable",
			"1 when the last health check succeeded"),
		Trusted: NewGauge(registry, "sync_network_trusted",
			"1 when the current network is on the trusted list"),

		BackupsUploaded: NewCounter(registry, "backups_uploaded_total",
			"Database backups uploaded"),
		BackupsSkipped: NewCounter(registry, "backups_skipped_total",
			"Backup runs skipped because the database did not change"),
	}
}

// ObservePass records one finished pass.
func (m *SyncMetrics) ObservePass(d time.Duration, err error) {
	if err != nil {
		m.PassesTotal.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.PassesTotal.WithLabelValues(ResultSuccess).Inc()
	m.PassDuration.Observe(d.Seconds())
}

func (m *SyncMetrics) SetConnectivity(trusted, reachable bool) {
	m.Trusted.Set(boolToFloat(trusted))
	m.Reachable.Set(boolToFloat(reachable))
}
