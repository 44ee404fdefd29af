package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "cognicore"

// Metrics holds the orchestrator's Prometheus collectors. Each Engine
// registers its own set on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	// CyclesTotal counts finished cycles. Labels: outcome (complete, aborted)
	CyclesTotal *prometheus.CounterVec

	// CycleDuration measures start to complete or abort.
	CycleDuration prometheus.Histogram

	// AgentTimeouts counts detectors whose output was discarded. Labels: agent
	AgentTimeouts *prometheus.CounterVec

	// AgentFailures counts detectors that returned an error or panicked. Labels: agent
	AgentFailures *prometheus.CounterVec

	// RiskScore is the composite score of the last completed cycle.
	RiskScore prometheus.Gauge

	// CausalLinks counts links appended across cycles.
	CausalLinks prometheus.Counter

	// FindingsTotal counts appended findings. Labels: section
	FindingsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg. A nil reg gets a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_total",
			Help:      "Reasoning cycles finished, by outcome",
		}, []string{"outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one reasoning cycle",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		AgentTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "agent_timeouts_total",
			Help:      "Detector runs discarded for exceeding the agent timeout",
		}, []string{"agent"}),
		AgentFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "agent_failures_total",
			Help:      "Detector runs that returned an error or panicked",
		}, []string{"agent"}),
		RiskScore: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "risk_score",
			Help:      "Composite risk score of the last completed cycle",
		}),
		CausalLinks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "causal_links_total",
			Help:      "Causal links appended",
		}),
		FindingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "findings_total",
			Help:      "Findings appended to the blackboard, by section",
		}, []string{"section"}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
