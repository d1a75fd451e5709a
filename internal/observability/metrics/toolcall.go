package metrics

import "github.com/prometheus/client_golang/prometheus"

// ToolCallMetrics exposes counters/histograms for voice tool call turns.
type ToolCallMetrics struct {
	turnsTotal   *prometheus.CounterVec
	turnLatency  *prometheus.HistogramVec
	adapterCalls *prometheus.CounterVec
}

func NewToolCallMetrics(reg prometheus.Registerer) *ToolCallMetrics {
	m := &ToolCallMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "laine",
			Subsystem: "voice",
			Name:      "tool_call_turns_total",
			Help:      "Total tool call turns by tool and outcome",
		}, []string{"tool", "outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "laine",
			Subsystem: "voice",
			Name:      "tool_call_latency_seconds",
			Help:      "Latency of tool call turn processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		adapterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "laine",
			Subsystem: "nexhealth",
			Name:      "adapter_calls_total",
			Help:      "Total NexHealth adapter calls by operation and status",
		}, []string{"operation", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnLatency, m.adapterCalls)
	return m
}

func (m *ToolCallMetrics) ObserveTurn(tool, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(tool, outcome).Inc()
}

func (m *ToolCallMetrics) ObserveTurnLatency(tool string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(tool).Observe(seconds)
}

func (m *ToolCallMetrics) ObserveAdapterCall(operation, status string) {
	if m == nil {
		return
	}
	m.adapterCalls.WithLabelValues(operation, status).Inc()
}
