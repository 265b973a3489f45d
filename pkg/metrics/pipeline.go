package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records per-stage timing and outcomes for analytics runs.
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	runSuccess    prometheus.Counter
	runFailure    prometheus.Counter
	groups        prometheus.Gauge
	iterations    prometheus.Gauge
	converged     prometheus.Gauge
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Duration of analytics pipeline stages in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	runSuccess := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_run_success",
		Help: "Successful analytics pipeline runs.",
	})
	runFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_run_failure",
		Help: "Failed analytics pipeline runs.",
	})
	groups := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_groups_processed",
		Help: "Item-store groups processed by the last run.",
	})
	iterations := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_kmeans_iterations",
		Help: "K-means iterations used by the last run.",
	})
	converged := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_kmeans_converged",
		Help: "Whether the last clustering run met tolerance (1) or hit the cap (0).",
	})
	reg.MustRegister(stageDuration, runSuccess, runFailure, groups, iterations, converged)
	return &PipelineMetrics{
		stageDuration: stageDuration,
		runSuccess:    runSuccess,
		runFailure:    runFailure,
		groups:        groups,
		iterations:    iterations,
		converged:     converged,
	}
}

// ObserveStage records the duration for the named pipeline stage.
func (p *PipelineMetrics) ObserveStage(stage string, duration time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(normalizeLabel(stage)).Observe(duration.Seconds())
}

// IncSuccess increments the run success counter.
func (p *PipelineMetrics) IncSuccess() {
	if p == nil || p.runSuccess == nil {
		return
	}
	p.runSuccess.Inc()
}

// IncFailure increments the run failure counter.
func (p *PipelineMetrics) IncFailure() {
	if p == nil || p.runFailure == nil {
		return
	}
	p.runFailure.Inc()
}

// SetGroupsProcessed records the group count for the last run.
func (p *PipelineMetrics) SetGroupsProcessed(count int) {
	if p == nil || p.groups == nil {
		return
	}
	p.groups.Set(float64(count))
}

// SetClusteringOutcome records iteration count and convergence of the last run.
func (p *PipelineMetrics) SetClusteringOutcome(iterations int, converged bool) {
	if p == nil || p.iterations == nil {
		return
	}
	p.iterations.Set(float64(iterations))
	if converged {
		p.converged.Set(1)
	} else {
		p.converged.Set(0)
	}
}

func normalizeLabel(stage string) string {
	if stage == "" {
		return "unknown"
	}
	return stage
}
