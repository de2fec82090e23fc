package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration   *prom.HistogramVec
	runDuration     prom.Histogram
	stageResults    *prom.CounterVec
	runOutcome      *prom.CounterVec
	itemResults     *prom.CounterVec
	itemRetries     *prom.CounterVec
	poolConcurrency *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers pipeline metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "uxpipe",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "uxpipe",
			Name:      "run_duration_seconds",
			Help:      "Total pipeline run duration",
			Buckets:   prom.ExponentialBuckets(1, 2, 12),
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "uxpipe",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		runOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "uxpipe",
			Name:      "run_outcomes_total",
			Help:      "Run outcome counts",
		}, []string{"outcome"}),
		itemResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "uxpipe",
			Name:      "item_results_total",
			Help:      "Per-item processing results by stage",
		}, []string{"stage", "result"}),
		itemRetries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "uxpipe",
			Name:      "item_retries_total",
			Help:      "Per-item retry attempts by stage",
		}, []string{"stage"}),
		poolConcurrency: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "uxpipe",
			Name:      "pool_concurrency",
			Help:      "Configured worker pool concurrency by stage",
		}, []string{"stage"}),
	}

	reg.MustRegister(
		pr.stageDuration,
		pr.runDuration,
		pr.stageResults,
		pr.runOutcome,
		pr.itemResults,
		pr.itemRetries,
		pr.poolConcurrency,
	)
	return pr
}

func (pr *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	pr.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	pr.runDuration.Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	pr.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (pr *PrometheusRecorder) IncRunOutcome(outcome string) {
	pr.runOutcome.WithLabelValues(outcome).Inc()
}

func (pr *PrometheusRecorder) IncItemResult(stage string, success bool) {
	result := "failed"
	if success {
		result = "success"
	}
	pr.itemResults.WithLabelValues(stage, result).Inc()
}

func (pr *PrometheusRecorder) IncItemRetry(stage string) {
	pr.itemRetries.WithLabelValues(stage).Inc()
}

func (pr *PrometheusRecorder) SetPoolConcurrency(stage string, n int) {
	pr.poolConcurrency.WithLabelValues(stage).Set(float64(n))
}

// HTTPHandler serves the registry for the watch command's /metrics listener.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
