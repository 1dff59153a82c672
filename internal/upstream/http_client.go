package upstream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zxkws/mcp-router/internal/config"
)

// headerRoundTripper injects the upstream's configured static headers
// (spec's supplemented StaticHeaders feature, grounded on the teacher's
// MCPServerEntry.StaticHeaders) onto every outgoing request.
type headerRoundTripper struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// httpClient is the streaming-HTTP upstream variant (spec §4.2). It
// connects lazily on first operation; a concurrent operation during
// connect waits on the same in-flight connect future.
type httpClient struct {
	cfg config.UpstreamConfig

	mu      sync.Mutex
	session *mcp.ClientSession
	pending chan struct{} // closed when a connect attempt finishes
	connErr error
}

func newHTTPClient(cfg config.UpstreamConfig) *httpClient {
	return &httpClient{cfg: cfg}
}

// ensureConnected implements at-most-one concurrent connect attempt.
func (c *httpClient) ensureConnected(ctx context.Context) (*mcp.ClientSession, error) {
	c.mu.Lock()
	if c.session != nil {
		s := c.session
		c.mu.Unlock()
		return s, nil
	}
	if c.pending != nil {
		ch := c.pending
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.Lock()
		s, err := c.session, c.connErr
		c.mu.Unlock()
		return s, err
	}

	ch := make(chan struct{})
	c.pending = ch
	c.mu.Unlock()

	session, err := c.connect(ctx)

	c.mu.Lock()
	c.session, c.connErr = session, err
	c.pending = nil
	c.mu.Unlock()
	close(ch)

	return session, err
}

func (c *httpClient) connect(ctx context.Context) (*mcp.ClientSession, error) {
	client := mcp.NewClient(implementation(), nil)
	transport := &mcp.StreamableClientTransport{
		Endpoint: c.cfg.URL,
	}
	if len(c.cfg.Headers) > 0 {
		transport.HTTPClient = &http.Client{
			Transport: headerRoundTripper{headers: c.cfg.Headers},
		}
	}
	return client.Connect(ctx, transport, nil)
}

func (c *httpClient) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.TimeoutMs <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMs)*time.Millisecond)
}

func (c *httpClient) ListTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	ctx, cancel := c.deadline(ctx)
	defer cancel()
	session, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	return session.ListTools(ctx, nil)
}

func (c *httpClient) CallTool(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	ctx, cancel := c.deadline(ctx)
	defer cancel()
	session, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	return session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: arguments})
}

func (c *httpClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}
