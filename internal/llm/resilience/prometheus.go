package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "explab"

// PrometheusMetrics implements Metrics on Prometheus collectors. Only the
// metric names emitted by this package are recognized; others are dropped.
type PrometheusMetrics struct {
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPrometheusMetrics registers the client collectors with reg. A nil reg
// uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	callLabels := []string{"model", "operation"}

	counter := func(name, help string, labels []string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      name,
			Help:      help,
		}, labels)
	}
	histogram := func(name, help string, buckets []float64) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		}, callLabels)
	}
	tokenBuckets := []float64{16, 64, 256, 1024, 4096, 16384, 65536}

	return &PrometheusMetrics{
		counters: map[string]*prometheus.CounterVec{
			MetricRequestsTotal:   counter("requests_total", "Total number of model calls", callLabels),
			MetricRequestsSuccess: counter("requests_success_total", "Model calls that returned a completion", callLabels),
			MetricRequestsErrors: counter("requests_errors_total", "Model calls that failed, by failure kind",
				[]string{"model", "operation", "error_type"}),
			MetricCacheHits: counter("cache_hits_total", "Model calls served from the response cache", callLabels),
		},
		histograms: map[string]*prometheus.HistogramVec{
			MetricRequestDuration: histogram("request_duration_ms", "Model call duration in milliseconds",
				[]float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000}),
			MetricTokensPrompt:     histogram("tokens_prompt", "Prompt tokens per call", tokenBuckets),
			MetricTokensCompletion: histogram("tokens_completion", "Completion tokens per call", tokenBuckets),
			MetricTokensTotal:      histogram("tokens_total", "Total tokens per call", tokenBuckets),
		},
		gauges: map[string]*prometheus.GaugeVec{
			MetricBreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			}, []string{"key"}),
		},
	}
}

// IncrementCounter implements Metrics.
func (p *PrometheusMetrics) IncrementCounter(name string, tags map[string]string, value float64) {
	if vec, ok := p.counters[name]; ok {
		if c, err := vec.GetMetricWith(prometheus.Labels(tags)); err == nil {
			c.Add(value)
		}
	}
}

// RecordHistogram implements Metrics.
func (p *PrometheusMetrics) RecordHistogram(name string, tags map[string]string, value float64) {
	if vec, ok := p.histograms[name]; ok {
		if h, err := vec.GetMetricWith(prometheus.Labels(tags)); err == nil {
			h.Observe(value)
		}
	}
}

// SetGauge implements Metrics.
func (p *PrometheusMetrics) SetGauge(name string, tags map[string]string, value float64) {
	if vec, ok := p.gauges[name]; ok {
		if g, err := vec.GetMetricWith(prometheus.Labels(tags)); err == nil {
			g.Set(value)
		}
	}
}
