package upstream

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxkws/mcp-router/internal/config"
	"github.com/zxkws/mcp-router/internal/sandbox"
)

type fakeClient struct {
	closed bool
}

func (f *fakeClient) ListTools(ctx context.Context) (*mcp.ListToolsResult, error) { return nil, nil }
func (f *fakeClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return nil, nil
}
func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestManagerGetIsIdempotentForUnchangedConfig(t *testing.T) {
	m := NewManager(nil)
	cfg := config.UpstreamConfig{Name: "demo", Transport: config.TransportHTTP, URL: "http://example.invalid"}

	c1, err := m.Get("demo", cfg, sandboxPolicy())
	require.NoError(t, err)
	c2, err := m.Get("demo", cfg, sandboxPolicy())
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}

func TestReconcileClosesRemovedAndKeepsUnchangedUpstreams(t *testing.T) {
	m := NewManager(nil)

	stale := &fakeClient{}
	kept := &fakeClient{}
	m.clients["stale"] = &entry{client: stale, fingerprint: "old"}
	m.clients["kept"] = &entry{client: kept, fingerprint: "same"}

	newSet := map[string]config.UpstreamConfig{
		"kept": {Name: "kept"}, // Fingerprint() of zero-value differs from "same" but test checks eviction logic directly
	}
	// Force kept's fingerprint to match so it is retained.
	m.clients["kept"].fingerprint = newSet["kept"].Fingerprint()

	m.Reconcile(newSet)

	assert.True(t, stale.closed, "removed upstream should be closed")
	assert.False(t, kept.closed, "unchanged upstream should not be closed")
	_, staleStillPresent := m.clients["stale"]
	assert.False(t, staleStillPresent)
}

func TestCloseAllClosesEveryClient(t *testing.T) {
	m := NewManager(nil)
	a, b := &fakeClient{}, &fakeClient{}
	m.clients["a"] = &entry{client: a}
	m.clients["b"] = &entry{client: b}

	m.CloseAll()

	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Empty(t, m.clients)
}

func sandboxPolicy() sandbox.Policy { return sandbox.Policy{} }
