package upstream

import (
	"fmt"
	"log"
	"sync"

	"github.com/zxkws/mcp-router/internal/config"
	"github.com/zxkws/mcp-router/internal/sandbox"
)

type entry struct {
	client      Client
	fingerprint string
}

// Manager is the keyed registry of upstream clients (C3). Mutations are
// serialized under mu; Get resolves a benign construction race by
// discarding the loser and returning the winner's client (atomic
// insert-or-return-existing, spec §5).
type Manager struct {
	mu      sync.Mutex
	clients map[string]*entry
	logger  *log.Logger
}

func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{clients: make(map[string]*entry), logger: logger}
}

// Get returns the existing client for name, or constructs one from cfg.
func (m *Manager) Get(name string, cfg config.UpstreamConfig, sandboxPolicy sandbox.Policy) (Client, error) {
	m.mu.Lock()
	if e, ok := m.clients[name]; ok && e.fingerprint == cfg.Fingerprint() {
		m.mu.Unlock()
		return e.client, nil
	}
	m.mu.Unlock()

	client, err := newClient(cfg, sandboxPolicy, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.clients[name]; ok && e.fingerprint == cfg.Fingerprint() {
		// another goroutine won the race; drop ours.
		_ = client.Close()
		return e.client, nil
	}
	m.clients[name] = &entry{client: client, fingerprint: cfg.Fingerprint()}
	return client, nil
}

// SetClientForTest forcibly installs client as the entry for name under
// cfg's fingerprint, bypassing transport construction, so a later Get
// with the same cfg returns it unchanged. It exists so tests in other
// packages can substitute a fake Client without reaching into
// Manager's unexported fields.
func (m *Manager) SetClientForTest(name string, cfg config.UpstreamConfig, client Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[name] = &entry{client: client, fingerprint: cfg.Fingerprint()}
}

func newClient(cfg config.UpstreamConfig, sandboxPolicy sandbox.Policy, logger *log.Logger) (Client, error) {
	switch cfg.Transport {
	case config.TransportHTTP:
		return newHTTPClient(cfg), nil
	case config.TransportPipe:
		return newPipeClient(cfg, sandboxPolicy, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q for upstream %q", cfg.Transport, cfg.Name)
	}
}

// Reconcile diffs the new upstream map against the live set (spec §4.3):
// upstreams that disappeared, were disabled, or whose fingerprint
// changed are closed and evicted. Additions are lazy, constructed on
// first Get.
func (m *Manager) Reconcile(upstreams map[string]config.UpstreamConfig) {
	m.mu.Lock()
	var toClose []Client
	for name, e := range m.clients {
		cfg, ok := upstreams[name]
		if !ok || !cfg.IsEnabled() || cfg.Fingerprint() != e.fingerprint {
			toClose = append(toClose, e.client)
			delete(m.clients, name)
		}
	}
	m.mu.Unlock()

	for _, c := range toClose {
		if err := c.Close(); err != nil {
			m.logger.Printf("error closing reconciled upstream client: %v", err)
		}
	}
}

// CloseAll drains every upstream concurrently and awaits completion
// (spec §4.3's closeAll).
func (m *Manager) CloseAll() {
	m.mu.Lock()
	clients := make([]Client, 0, len(m.clients))
	for _, e := range m.clients {
		clients = append(clients, e.client)
	}
	m.clients = make(map[string]*entry)
	m.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(clients))
	for _, c := range clients {
		go func(c Client) {
			defer wg.Done()
			if err := c.Close(); err != nil {
				m.logger.Printf("error closing upstream client: %v", err)
			}
		}(c)
	}
	wg.Wait()
}
