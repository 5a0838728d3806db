package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	runDuration      prom.Histogram
	pipelineDuration *prom.HistogramVec
	moduleDuration   *prom.HistogramVec
	pipelineResults  *prom.CounterVec
	runOutcome       *prom.CounterVec
	cacheLookups     *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "contentmill",
			Name:      "run_duration_seconds",
			Help:      "Total engine run duration",
			Buckets:   prom.DefBuckets,
		})
		pr.pipelineDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "contentmill",
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of individual pipeline runs",
			Buckets:   prom.DefBuckets,
		}, []string{"pipeline"})
		pr.moduleDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "contentmill",
			Name:      "module_duration_seconds",
			Help:      "Duration of individual module executions",
			Buckets:   prom.DefBuckets,
		}, []string{"pipeline", "module"})
		pr.pipelineResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentmill",
			Name:      "pipeline_results_total",
			Help:      "Pipeline result counts by outcome",
		}, []string{"pipeline", "result"})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentmill",
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"})
		pr.cacheLookups = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentmill",
			Name:      "cache_lookups_total",
			Help:      "Execution cache lookups by hit/miss",
		}, []string{"result"})
		reg.MustRegister(pr.runDuration, pr.pipelineDuration, pr.moduleDuration, pr.pipelineResults, pr.runOutcome, pr.cacheLookups)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObservePipelineDuration(pipeline string, d time.Duration) {
	if p == nil || p.pipelineDuration == nil {
		return
	}
	p.pipelineDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveModuleDuration(pipeline, module string, d time.Duration) {
	if p == nil || p.moduleDuration == nil {
		return
	}
	p.moduleDuration.WithLabelValues(pipeline, module).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPipelineResult(pipeline string, result ResultLabel) {
	if p == nil || p.pipelineResults == nil {
		return
	}
	p.pipelineResults.WithLabelValues(pipeline, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncCacheLookup(hit bool) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	p.cacheLookups.WithLabelValues(res).Inc()
}
