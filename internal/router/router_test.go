package router

import (
	"context"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxkws/mcp-router/internal/audit"
	"github.com/zxkws/mcp-router/internal/breaker"
	"github.com/zxkws/mcp-router/internal/config"
	"github.com/zxkws/mcp-router/internal/health"
	"github.com/zxkws/mcp-router/internal/metrics"
	"github.com/zxkws/mcp-router/internal/principal"
	"github.com/zxkws/mcp-router/internal/ratelimit"
	"github.com/zxkws/mcp-router/internal/sandbox"
	"github.com/zxkws/mcp-router/internal/upstream"
)

func TestSanitizeReplacesDisallowedRunes(t *testing.T) {
	assert.Equal(t, "a_b_c", Sanitize("a b/c"))
	assert.Equal(t, "_", Sanitize("..."))
	assert.Equal(t, "foo.bar-baz_1", Sanitize("foo.bar-baz_1"))
}

func TestNamespaceAndSplitNamespacedRoundTrip(t *testing.T) {
	namespaced := Namespace("payments.prod", "charge card")
	assert.Equal(t, "payments.prod.charge_card", namespaced)

	upstreamName, rest, ok := SplitNamespaced(namespaced, []string{"payments", "payments.prod"})
	require.True(t, ok)
	assert.Equal(t, "payments.prod", upstreamName, "longest matching upstream prefix wins")
	assert.Equal(t, "charge_card", rest)
}

func TestSplitNamespacedUnknownUpstream(t *testing.T) {
	_, _, ok := SplitNamespaced("ghost.do_thing", []string{"payments"})
	assert.False(t, ok)
}

// fakeUpstreamClient implements upstream.Client for forwarding-pipeline tests.
type fakeUpstreamClient struct {
	listResult *mcp.ListToolsResult
	listErr    error
	callResult *mcp.CallToolResult
	callErr    error
	calls      []string
}

func (f *fakeUpstreamClient) ListTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	return f.listResult, f.listErr
}

func (f *fakeUpstreamClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	f.calls = append(f.calls, name)
	return f.callResult, f.callErr
}

func (f *fakeUpstreamClient) Close() error { return nil }

func newTestEngine(t *testing.T, cfg *config.NormalizedConfig) (*Engine, *breaker.Breaker, *upstream.Manager) {
	t.Helper()
	br := breaker.New(breaker.Config{FailureThreshold: 3, OpenDuration: time.Minute})
	mgr := upstream.NewManager(nil)
	classifier := func(err error) bool {
		ok, _ := upstream.Classify(err, nil)
		return ok
	}
	hc := health.New(mgr, br, cfg.Routing.HealthChecks, classifier, metrics.New())
	e := NewEngine(
		principal.Principal{Anonymous: true, AllowedUpstreams: principal.Top(), AllowedTags: principal.Top()},
		config.NewRef(cfg),
		mgr,
		br,
		hc,
		ratelimit.NewStore(),
		metrics.New(),
		audit.NewWriter(nil, false, false, 0),
		sandbox.Policy{},
		nil,
		nil,
	)
	return e, br, mgr
}

func testUpstreamConfig(name string) config.UpstreamConfig {
	return config.UpstreamConfig{Name: name, Transport: config.TransportHTTP, URL: "http://upstream.invalid/" + name}
}

func TestCallUpstreamForwardsAndRecordsBreakerSuccess(t *testing.T) {
	cfg := &config.NormalizedConfig{Upstreams: map[string]config.UpstreamConfig{
		"demo": testUpstreamConfig("demo"),
	}}
	e, br, mgr := newTestEngine(t, cfg)

	fake := &fakeUpstreamClient{callResult: &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "ok"}}}}
	mgr.SetClientForTest("demo", cfg.Upstreams["demo"], fake)

	result, err := e.ToolsCall(context.Background(), "demo", "ping", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, "demo", result.Provider)
	assert.Equal(t, []string{"ping"}, fake.calls)

	snap := br.Get("demo")
	assert.Equal(t, breaker.Closed, snap.State)
	assert.Zero(t, snap.ConsecutiveFailures)
}

func TestCallUpstreamClassifiesTransportFailureAgainstBreaker(t *testing.T) {
	cfg := &config.NormalizedConfig{Upstreams: map[string]config.UpstreamConfig{
		"demo": testUpstreamConfig("demo"),
	}}
	e, br, mgr := newTestEngine(t, cfg)

	fake := &fakeUpstreamClient{callErr: assertErr("connection reset")}
	mgr.SetClientForTest("demo", cfg.Upstreams["demo"], fake)

	for i := 0; i < 3; i++ {
		_, err := e.ToolsCall(context.Background(), "demo", "ping", nil)
		assert.Error(t, err)
	}

	snap := br.Get("demo")
	assert.Equal(t, breaker.Open, snap.State, "three consecutive transport failures should trip the breaker")
}

func TestCallNamespacedResolvesViaLongestPrefixAndCacheLookup(t *testing.T) {
	cfg := &config.NormalizedConfig{Upstreams: map[string]config.UpstreamConfig{
		"payments": testUpstreamConfig("payments"),
	}}
	e, _, mgr := newTestEngine(t, cfg)

	fake := &fakeUpstreamClient{
		listResult: &mcp.ListToolsResult{Tools: []*mcp.Tool{{Name: "charge card", InputSchema: &jsonschema.Schema{}}}},
		callResult: &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "charged"}}},
	}
	mgr.SetClientForTest("payments", cfg.Upstreams["payments"], fake)

	_, err := e.ToolsList(context.Background(), "payments")
	require.NoError(t, err)

	result, err := e.CallNamespaced(context.Background(), "payments.charge_card", nil)
	require.NoError(t, err)
	assert.Equal(t, "payments", result.Provider)
	assert.Equal(t, "charge card", result.Name, "namespaced call resolves back to the original tool name")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestListProvidersConsumesRateLimit(t *testing.T) {
	cfg := &config.NormalizedConfig{Upstreams: map[string]config.UpstreamConfig{
		"demo": testUpstreamConfig("demo"),
	}}
	e, _, _ := newTestEngine(t, cfg)
	e.Principal.RateLimitRPM = 1

	_, err := e.ListProviders("", "")
	require.NoError(t, err)

	_, err = e.ListProviders("", "")
	assert.Error(t, err, "a second list_providers call within the same window must be rate-limited, not just tools.call")
}

func TestToolsListConsumesRateLimit(t *testing.T) {
	cfg := &config.NormalizedConfig{Upstreams: map[string]config.UpstreamConfig{
		"demo": testUpstreamConfig("demo"),
	}}
	e, _, mgr := newTestEngine(t, cfg)
	e.Principal.RateLimitRPM = 1

	fake := &fakeUpstreamClient{listResult: &mcp.ListToolsResult{Tools: []*mcp.Tool{{Name: "ping", InputSchema: &jsonschema.Schema{}}}}}
	mgr.SetClientForTest("demo", cfg.Upstreams["demo"], fake)

	_, err := e.ToolsList(context.Background(), "demo")
	require.NoError(t, err)

	_, err = e.ToolsList(context.Background(), "demo")
	assert.Error(t, err)
}

func TestToolsRefreshConsumesRateLimit(t *testing.T) {
	cfg := &config.NormalizedConfig{Upstreams: map[string]config.UpstreamConfig{
		"demo": testUpstreamConfig("demo"),
	}}
	e, _, _ := newTestEngine(t, cfg)
	e.Principal.RateLimitRPM = 1

	require.NoError(t, e.ToolsRefresh("demo"))
	assert.Error(t, e.ToolsRefresh("demo"))
}

func TestListToolsCachedAppliesAllowedAndDisallowedFilter(t *testing.T) {
	upstreamCfg := testUpstreamConfig("demo")
	upstreamCfg.AllowedTools = []string{"ping", "pong"}
	upstreamCfg.DisallowedTools = []string{"pong"}
	cfg := &config.NormalizedConfig{Upstreams: map[string]config.UpstreamConfig{"demo": upstreamCfg}}
	e, _, mgr := newTestEngine(t, cfg)

	fake := &fakeUpstreamClient{listResult: &mcp.ListToolsResult{Tools: []*mcp.Tool{
		{Name: "ping", InputSchema: &jsonschema.Schema{}},
		{Name: "pong", InputSchema: &jsonschema.Schema{}},
		{Name: "other", InputSchema: &jsonschema.Schema{}},
	}}}
	mgr.SetClientForTest("demo", upstreamCfg, fake)

	tools, err := e.ToolsList(context.Background(), "demo")
	require.NoError(t, err)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"ping"}, names, "pong is explicitly disallowed and other is not in the allow list")
}
