// Package health implements the periodic upstream health-check loop
// (C6): it cooperates with the breaker, using the same ok/fail
// classification, and maintains a point-in-time health snapshot per
// upstream for list_providers and the mcp_router_upstream_health metric.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/zxkws/mcp-router/internal/breaker"
	"github.com/zxkws/mcp-router/internal/config"
	"github.com/zxkws/mcp-router/internal/metrics"
	"github.com/zxkws/mcp-router/internal/sandbox"
	"github.com/zxkws/mcp-router/internal/upstream"
)

// healthStatuses enumerates every label SetUpstreamHealth zeroes out
// alongside the active one.
var healthStatuses = []string{string(Healthy), string(Unhealthy)}

type Status string

const (
	Unknown   Status = "UNKNOWN"
	Healthy   Status = "HEALTHY"
	Unhealthy Status = "UNHEALTHY"
)

// Entry is one upstream's health snapshot (spec §3 HealthEntry).
type Entry struct {
	Status     Status
	LastOkAt   time.Time
	LastErrAt  time.Time
	LastErrMsg string
}

// Classifier decides ok/fail for a probe result the same way the
// call-forwarding pipeline does (spec §4.6: "same classification as §4.5").
type Classifier func(err error) bool

// Alerter is notified once an upstream has stayed circuit-open across
// consecutiveOpenChecks consecutive probes; *alert.Discord satisfies
// this, with its own threshold/cooldown gate.
type Alerter interface {
	Check(upstream string, consecutiveOpenChecks int)
}

// Checker runs the periodic probe loop.
type Checker struct {
	manager      *upstream.Manager
	breaker      *breaker.Breaker
	classifier   Classifier
	metrics      *metrics.Registry
	interval     time.Duration
	timeout      time.Duration
	includeStdio bool

	alerter Alerter

	mu         sync.RWMutex
	entries    map[string]Entry
	openStreak map[string]int

	started bool
	stop    chan struct{}
	done    chan struct{}
}

func New(manager *upstream.Manager, b *breaker.Breaker, cfg config.HealthChecksConfig, classifier Classifier, mr *metrics.Registry) *Checker {
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		manager:      manager,
		breaker:      b,
		classifier:   classifier,
		metrics:      mr,
		interval:     interval,
		timeout:      timeout,
		includeStdio: cfg.IncludeStdio,
		entries:      make(map[string]Entry),
		openStreak:   make(map[string]int),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// SetAlerter wires an optional sustained-open alert, off by default.
func (c *Checker) SetAlerter(a Alerter) {
	c.alerter = a
}

// Run loops until Stop is called; it honors the stop signal between
// iterations and never interrupts an in-flight probe (spec §5).
func (c *Checker) Run(ctx context.Context, upstreams func() map[string]config.UpstreamConfig, sandboxPolicy sandbox.Policy) {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()

	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.runOnce(ctx, upstreams(), sandboxPolicy)
		}
	}
}

func (c *Checker) runOnce(ctx context.Context, upstreams map[string]config.UpstreamConfig, sandboxPolicy sandbox.Policy) {
	for name, cfg := range upstreams {
		if !cfg.IsEnabled() {
			continue
		}
		if cfg.Transport == config.TransportPipe && !c.includeStdio {
			continue
		}
		c.probe(ctx, name, cfg, sandboxPolicy)
	}
}

func (c *Checker) probe(ctx context.Context, name string, cfg config.UpstreamConfig, sandboxPolicy sandbox.Policy) {
	attempt, err := c.breaker.BeginAttempt(name)
	if err != nil {
		// breaker already open/busy; not a probe failure in itself.
		c.trackOpenStreak(name)
		return
	}

	client, err := c.manager.Get(name, cfg, sandboxPolicy)
	if err != nil {
		attempt.End(false)
		c.record(name, false, err)
		c.trackOpenStreak(name)
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	_, probeErr := client.ListTools(probeCtx)
	cancel()

	ok := c.classifier(probeErr)
	attempt.End(ok)
	c.record(name, ok, probeErr)
	c.trackOpenStreak(name)
}

// trackOpenStreak counts consecutive probes landing while the breaker is
// OPEN and notifies the alerter, if any, once a probe observes it open.
func (c *Checker) trackOpenStreak(name string) {
	open := c.breaker.Get(name).State == breaker.Open

	c.mu.Lock()
	if open {
		c.openStreak[name]++
	} else {
		c.openStreak[name] = 0
	}
	streak := c.openStreak[name]
	c.mu.Unlock()

	if open && c.alerter != nil {
		c.alerter.Check(name, streak)
	}
}

func (c *Checker) record(name string, ok bool, err error) {
	c.mu.Lock()
	e := c.entries[name]
	if ok {
		e.Status = Healthy
		e.LastOkAt = time.Now()
	} else {
		e.Status = Unhealthy
		e.LastErrAt = time.Now()
		if err != nil {
			e.LastErrMsg = err.Error()
		}
	}
	c.entries[name] = e
	c.mu.Unlock()

	if c.metrics != nil {
		okLabel := "false"
		if ok {
			okLabel = "true"
		}
		c.metrics.HealthChecksTotal.WithLabelValues(name, okLabel).Inc()
		c.metrics.SetUpstreamHealth(name, string(e.Status), healthStatuses)
	}
}

// Snapshot returns the current health entry for name.
func (c *Checker) Snapshot(name string) Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return Entry{Status: Unknown}
	}
	return e
}

// Stop signals the loop to exit and waits for it to do so. It is a no-op
// when Run was never started (spec §5: health checks are off by default,
// and shutdown must not block waiting for a loop that never began).
func (c *Checker) Stop() {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return
	}
	close(c.stop)
	<-c.done
}
