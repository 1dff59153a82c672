package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	r := New()
	r.ToolCallsTotal.WithLabelValues("demo", "echo", "true").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "mcp_router_tool_calls_total")
}

func TestSetCircuitStateOnlyOneActive(t *testing.T) {
	r := New()
	r.SetCircuitState("demo", "OPEN", []string{"CLOSED", "OPEN", "HALF_OPEN"})

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	body := rec.Body.String()
	assert.Contains(t, body, `mcp_router_upstream_circuit_state{server="demo",state="OPEN"} 1`)
	assert.Contains(t, body, `mcp_router_upstream_circuit_state{server="demo",state="CLOSED"} 0`)
}

func TestSetUpstreamHealthOnlyOneActive(t *testing.T) {
	r := New()
	r.SetUpstreamHealth("demo", "UNHEALTHY", []string{"HEALTHY", "UNHEALTHY"})

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	body := rec.Body.String()
	assert.Contains(t, body, `mcp_router_upstream_health{server="demo",status="UNHEALTHY"} 1`)
	assert.Contains(t, body, `mcp_router_upstream_health{server="demo",status="HEALTHY"} 0`)
}
