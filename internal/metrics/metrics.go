// Package metrics wires the fixed Prometheus metric names spec §6
// requires into a registry and exposes the /metrics handler, grounded
// on the teacher's internal/metrics/server.go dedicated-metrics-server
// pattern.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the router emits.
type Registry struct {
	reg *prometheus.Registry

	ToolCallsTotal        *prometheus.CounterVec
	ToolCallDuration      *prometheus.HistogramVec
	CircuitState          *prometheus.GaugeVec
	CircuitOpensTotal     *prometheus.CounterVec
	UpstreamFailuresTotal *prometheus.CounterVec
	UpstreamHealth        *prometheus.GaugeVec
	HealthChecksTotal     *prometheus.CounterVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_router_tool_calls_total",
			Help: "Total number of tool calls forwarded to upstreams.",
		}, []string{"server", "tool", "ok"}),
		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcp_router_tool_call_duration_seconds",
			Help:    "Duration of forwarded tool calls.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"server", "tool", "ok"}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcp_router_upstream_circuit_state",
			Help: "Current circuit breaker state per upstream (1 for the active state, 0 otherwise).",
		}, []string{"server", "state"}),
		CircuitOpensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_router_upstream_circuit_opens_total",
			Help: "Total number of times an upstream's circuit breaker opened.",
		}, []string{"server"}),
		UpstreamFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_router_upstream_failures_total",
			Help: "Total number of upstream call failures.",
		}, []string{"server"}),
		UpstreamHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcp_router_upstream_health",
			Help: "Current health status per upstream (1 for the active status, 0 otherwise).",
		}, []string{"server", "status"}),
		HealthChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_router_upstream_health_checks_total",
			Help: "Total number of health check probes run per upstream.",
		}, []string{"server", "ok"}),
	}

	reg.MustRegister(
		r.ToolCallsTotal,
		r.ToolCallDuration,
		r.CircuitState,
		r.CircuitOpensTotal,
		r.UpstreamFailuresTotal,
		r.UpstreamHealth,
		r.HealthChecksTotal,
	)

	return r
}

// Handler returns the Prometheus text-exposition HTTP handler (spec §6's GET /metrics).
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// SetCircuitState records which of the three breaker states is active
// for an upstream, zeroing the other two so the gauge reflects exactly
// one active state at a time.
func (r *Registry) SetCircuitState(server, active string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == active {
			v = 1
		}
		r.CircuitState.WithLabelValues(server, s).Set(v)
	}
}

// SetUpstreamHealth records which of the health statuses is active for
// an upstream, zeroing the other so the gauge reflects exactly one
// active status at a time.
func (r *Registry) SetUpstreamHealth(server, active string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == active {
			v = 1
		}
		r.UpstreamHealth.WithLabelValues(server, s).Set(v)
	}
}
