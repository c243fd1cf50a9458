package observability

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findFamily(t *testing.T, reg *prometheus.Registry, fragment string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if strings.Contains(mf.GetName(), fragment) {
			return mf
		}
	}
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestObservability_RecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := New("transcript-client-test", reg)
	require.NoError(t, err)
	defer obs.Shutdown()

	ctx := context.Background()
	obs.RecordUpgradeAttempt(ctx, "success", 12*time.Millisecond)
	obs.RecordUpgradeAttempt(ctx, "success", 8*time.Millisecond)
	obs.RecordUpgradeAttempt(ctx, "backend_rejection", 3*time.Millisecond)
	obs.RecordTranscriptFetch(ctx, "success", 5*time.Millisecond)

	upgrades := findFamily(t, reg, "upgrade_attempts")
	require.NotNil(t, upgrades)

	counts := map[string]float64{}
	for _, m := range upgrades.GetMetric() {
		counts[labelValue(m, "result")] = m.GetCounter().GetValue()
	}
	assert.Equal(t, 2.0, counts["success"])
	assert.Equal(t, 1.0, counts["backend_rejection"])

	assert.NotNil(t, findFamily(t, reg, "transcript_fetches"))
	assert.NotNil(t, findFamily(t, reg, "operation_duration"))
}

func TestNoop_DoesNotPanic(t *testing.T) {
	obs := NewNoop()
	assert.NotPanics(t, func() {
		obs.RecordTranscriptFetch(context.Background(), "success", time.Millisecond)
		obs.RecordUpgradeAttempt(context.Background(), "success", time.Millisecond)
		obs.Shutdown()
	})
}
