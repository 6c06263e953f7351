package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSyncMetrics_RegistersWithRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSyncMetrics(registry)

	m.ItemsPushed.WithLabelValues("expense").Add(3)
	m.PendingItems.Set(7)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["financehub_sync_items_pushed_total"])
	assert.True(t, names["financehub_sync_pending_items"])
}

func TestNewSyncMetrics_NilRegistry(t *testing.T) {
	m := NewSyncMetrics(nil)
	require.NotNil(t, m)
	m.ObservePass(time.Second, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PassesTotal.WithLabelValues(ResultSuccess)))
}

func TestSyncMetrics_ObservePass(t *testing.T) {
	m := NewSyncMetrics(prometheus.NewRegistry())

	m.ObservePass(2*time.Second, nil)
	m.ObservePass(0, errors.New("pull failed"))
	m.ObservePass(0, errors.New("push failed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PassesTotal.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PassesTotal.WithLabelValues(ResultFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PassDuration))
}

func TestSyncMetrics_SetConnectivity(t *testing.T) {
	m := NewSyncMetrics(prometheus.NewRegistry())

	m.SetConnectivity(true, false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Trusted))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Reachable))

	m.SetConnectivity(true, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reachable))
}

func TestNewHistogram_DefaultBuckets(t *testing.T) {
	registry := prometheus.NewRegistry()
	h := NewHistogram(registry, "check_seconds", "check", nil)
	h.Observe(0.3)

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Len(t, families[0].GetMetric()[0].GetHistogram().GetBucket(), len(DurationBuckets()))
}
