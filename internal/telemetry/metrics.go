package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus-compatible counters and histograms for
// executor activity, namespaced "alphred_" (adapted from the teacher's
// PrometheusMetrics in graph/metrics.go).
type Metrics struct {
	stepLatency      *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	tokensUsed       *prometheus.CounterVec
	runsTerminal     *prometheus.CounterVec
	joinBarriersOpen prometheus.Gauge
}

// NewMetrics registers the executor's metrics with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "alphred",
			Name:      "step_latency_ms",
			Help:      "Run-node attempt execution duration in milliseconds.",
			Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000},
		}, []string{"node_key", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alphred",
			Name:      "retries_total",
			Help:      "Run-node retry attempts, labeled by node and failure classification.",
		}, []string{"node_key", "reason"}),
		tokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alphred",
			Name:      "tokens_used_total",
			Help:      "Normalized provider token usage per node.",
		}, []string{"node_key", "provider"}),
		runsTerminal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alphred",
			Name:      "runs_terminal_total",
			Help:      "Workflow runs reaching a terminal status.",
		}, []string{"status"}),
		joinBarriersOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "alphred",
			Name:      "join_barriers_open",
			Help:      "Join barriers not yet released.",
		}),
	}
}

// ObserveStep records one attempt's execution duration and outcome.
func (m *Metrics) ObserveStep(nodeKey, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepLatency.WithLabelValues(nodeKey, status).Observe(float64(d.Milliseconds()))
}

// IncRetry records one retry of nodeKey for reason.
func (m *Metrics) IncRetry(nodeKey, reason string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(nodeKey, reason).Inc()
}

// AddTokens accumulates tokens spent by nodeKey against provider.
func (m *Metrics) AddTokens(nodeKey, provider string, tokens int) {
	if m == nil || tokens <= 0 {
		return
	}
	m.tokensUsed.WithLabelValues(nodeKey, provider).Add(float64(tokens))
}

// IncRunTerminal records one run reaching status.
func (m *Metrics) IncRunTerminal(status string) {
	if m == nil {
		return
	}
	m.runsTerminal.WithLabelValues(status).Inc()
}

// SetJoinBarriersOpen sets the current count of unreleased barriers.
func (m *Metrics) SetJoinBarriersOpen(n int) {
	if m == nil {
		return
	}
	m.joinBarriersOpen.Set(float64(n))
}
