package upstream

import (
	"context"
	"log"
	"math"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zxkws/mcp-router/internal/config"
	"github.com/zxkws/mcp-router/internal/sandbox"
)

const maxStderrCapture = 4 * 1024

// pipeClient is the child-process transport variant (spec §4.2). It
// enforces sandbox guardrails before every spawn and retries operations
// with exponential backoff, reconnecting before each retry.
type pipeClient struct {
	cfg    config.UpstreamConfig
	policy sandbox.Policy
	logger *log.Logger

	mu      sync.Mutex
	session *mcp.ClientSession
	cmd     *exec.Cmd
}

func newPipeClient(cfg config.UpstreamConfig, policy sandbox.Policy, logger *log.Logger) *pipeClient {
	if logger == nil {
		logger = log.Default()
	}
	return &pipeClient{cfg: cfg, policy: policy, logger: logger}
}

func (c *pipeClient) restartPolicy() config.RestartPolicy {
	if c.cfg.RestartPolicy != nil {
		return *c.cfg.RestartPolicy
	}
	return config.RestartPolicy{MaxRetries: 3, InitialDelayMs: 250, MaxDelayMs: 5000, Factor: 2}
}

func (c *pipeClient) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.TimeoutMs <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMs)*time.Millisecond)
}

func (c *pipeClient) connectLocked(ctx context.Context) (*mcp.ClientSession, error) {
	if c.session != nil {
		return c.session, nil
	}

	if err := c.policy.CheckCommand(c.cfg.Command); err != nil {
		return nil, err
	}
	if err := c.policy.CheckCwd(c.cfg.Cwd); err != nil {
		return nil, err
	}
	if err := c.policy.CheckEnv(c.cfg.Env); err != nil {
		return nil, err
	}

	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	cmd.Dir = c.cfg.Cwd
	cmd.Env = sandbox.BuildChildEnv(c.policy, hostEnvMap(), c.cfg.Env)

	if c.cfg.StderrMode != "discard" {
		cmd.Stderr = &boundedWriter{limit: maxStderrCapture, logger: c.logger, name: c.cfg.Name}
	}

	client := mcp.NewClient(implementation(), nil)
	transport := &mcp.CommandTransport{Command: cmd}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, err
	}

	c.session = session
	c.cmd = cmd
	return session, nil
}

// withRetry runs op, reconnecting and retrying with exponential backoff
// on failure up to restartPolicy().MaxRetries (spec §4.2/§7).
func (c *pipeClient) withRetry(ctx context.Context, op func(*mcp.ClientSession) error) error {
	rp := c.restartPolicy()
	delay := time.Duration(rp.InitialDelayMs) * time.Millisecond
	maxDelay := time.Duration(rp.MaxDelayMs) * time.Millisecond
	factor := rp.Factor
	if factor <= 0 {
		factor = 2
	}

	var lastErr error
	for attempt := 0; attempt <= rp.MaxRetries; attempt++ {
		c.mu.Lock()
		session, err := c.connectLocked(ctx)
		c.mu.Unlock()
		if err != nil {
			lastErr = err
		} else {
			lastErr = op(session)
			if lastErr == nil {
				return nil
			}
			c.resetSession()
		}

		if attempt == rp.MaxRetries {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = time.Duration(math.Min(float64(maxDelay), float64(delay)*factor))
	}
	return lastErr
}

func (c *pipeClient) resetSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		_ = c.session.Close()
	}
	c.session = nil
	c.cmd = nil
}

func (c *pipeClient) ListTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	ctx, cancel := c.deadline(ctx)
	defer cancel()
	var result *mcp.ListToolsResult
	err := c.withRetry(ctx, func(s *mcp.ClientSession) error {
		r, err := s.ListTools(ctx, nil)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (c *pipeClient) CallTool(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	ctx, cancel := c.deadline(ctx)
	defer cancel()
	var result *mcp.CallToolResult
	err := c.withRetry(ctx, func(s *mcp.ClientSession) error {
		r, err := s.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: arguments})
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// Close performs the two-phase graceful-then-forceful shutdown: end
// stdin/close the transport, wait up to 2s, then signal termination
// (grounded on nuetzliches-hookaido's process_signal_unix.go).
func (c *pipeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}

	err := c.session.Close()

	if c.cmd != nil && c.cmd.Process != nil {
		done := make(chan struct{})
		go func() {
			_ = c.cmd.Wait()
			close(done)
		}()
		if !waitOrTimeout(done, 2*time.Second) {
			sendSignal(c.cmd.Process.Pid, terminateSignal)
			if !waitOrTimeout(done, 2*time.Second) {
				_ = c.cmd.Process.Kill()
			}
		}
	}

	c.session = nil
	c.cmd = nil
	return err
}

func waitOrTimeout(done <-chan struct{}, d time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func hostEnvMap() map[string]string {
	m := map[string]string{}
	for _, kv := range os.Environ() {
		if name, val, ok := strings.Cut(kv, "="); ok {
			m[name] = val
		}
	}
	return m
}

type boundedWriter struct {
	limit  int
	n      int
	logger *log.Logger
	name   string
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	if w.n >= w.limit {
		return len(p), nil
	}
	remaining := w.limit - w.n
	chunk := p
	if len(chunk) > remaining {
		chunk = chunk[:remaining]
	}
	w.n += len(chunk)
	w.logger.Printf("[upstream %s] stderr: %s", w.name, strings.TrimRight(string(chunk), "\n"))
	return len(p), nil
}
