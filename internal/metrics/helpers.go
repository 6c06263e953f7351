// Package metrics builds Prometheus collectors against an explicit registry
// and serves them over HTTP.
//
// Every constructor takes a prometheus.Registerer. The global default
// registerer is never used, so a discarded registry takes its collectors
// with it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name exported by the sync agent.
const Namespace = "financehub"

func NewCounter(registry prometheus.Registerer, name, help string) prometheus.Counter {
	return promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	})
}

func NewCounterVec(registry prometheus.Registerer, name, help string, labels []string) *prometheus.CounterVec {
	return promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

func NewGauge(registry prometheus.Registerer, name, help string) prometheus.Gauge {
	return promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	})
}

// NewHistogram registers a histogram with the given buckets,
// falling back to DurationBuckets when buckets is nil.
func NewHistogram(registry prometheus.Registerer, name, help string, buckets []float64) prometheus.Histogram {
	if buckets == nil {
		buckets = DurationBuckets()
	}
	return promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
}

// DurationBuckets covers 50ms to 2min, the range a sync pass over a slow
// link actually takes.
func DurationBuckets() []float64 {
	return []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
