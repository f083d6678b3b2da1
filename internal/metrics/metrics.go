package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricVerificationOutcomes = "newsdigest_verification_outcomes_total"
	MetricPipelineRuns         = "newsdigest_pipeline_runs_total"
	MetricStageDuration        = "newsdigest_pipeline_stage_duration_seconds"
	MetricAnalysisFallbacks    = "newsdigest_analysis_fallbacks_total"
	MetricDigestStories        = "newsdigest_digest_stories"
	MetricEmbeddingAvailable   = "newsdigest_embedding_available"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Metrics holds the pipeline collectors. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	outcomes   *prometheus.CounterVec
	runs       *prometheus.CounterVec
	stages     *prometheus.HistogramVec
	fallbacks  prometheus.Counter
	stories    prometheus.Gauge
	embeddings prometheus.Gauge
}

// NewMetrics creates unregistered collectors; call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricVerificationOutcomes,
				Help: "Processed candidates by verification outcome",
			},
			[]string{"outcome"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPipelineRuns,
				Help: "Pipeline runs by status",
			},
			[]string{"status"},
		),
		stages: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricStageDuration,
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricAnalysisFallbacks,
			Help: "Records analysed with the keyword fallback after an LLM failure",
		}),
		stories: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricDigestStories,
			Help: "Categorised stories in the last stored digest",
		}),
		embeddings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricEmbeddingAvailable,
			Help: "1 when semantic deduplication is active",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.outcomes, m.runs, m.stages, m.fallbacks, m.stories, m.embeddings}
}

func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRun(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) IncAnalysisFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) SetDigestStories(n int) {
	if m == nil {
		return
	}
	m.stories.Set(float64(n))
}

func (m *Metrics) SetEmbeddingAvailable(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.embeddings.Set(1)
		return
	}
	m.embeddings.Set(0)
}
