package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStageDuration("load_pages", time.Second)
	r.ObserveRunDuration(time.Minute)
	r.IncStageResult("load_pages", ResultSuccess)
	r.IncRunOutcome("completed")
	r.IncItemResult("load_pages", true)
	r.IncItemRetry("load_pages")
	r.SetPoolConcurrency("load_pages", 3)
}

func TestPrometheusRecorderCounters(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.IncStageResult("analyze_ux", ResultDegraded)
	pr.IncStageResult("analyze_ux", ResultDegraded)
	pr.IncItemResult("analyze_ux", false)
	pr.IncItemResult("analyze_ux", true)
	pr.IncItemRetry("analyze_ux")
	pr.SetPoolConcurrency("analyze_ux", 4)
	pr.IncRunOutcome("partial")
	pr.ObserveStageDuration("analyze_ux", 250*time.Millisecond)
	pr.ObserveRunDuration(3 * time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(pr.stageResults.WithLabelValues("analyze_ux", "degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.itemResults.WithLabelValues("analyze_ux", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.itemResults.WithLabelValues("analyze_ux", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.itemRetries.WithLabelValues("analyze_ux")))
	assert.Equal(t, 4.0, testutil.ToFloat64(pr.poolConcurrency.WithLabelValues("analyze_ux")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.runOutcome.WithLabelValues("partial")))
}

func TestPrometheusRecorderRegistersAllCollectors(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncRunOutcome("completed")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
