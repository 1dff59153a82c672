// Package breaker implements the per-upstream CLOSED/OPEN/HALF_OPEN
// circuit breaker state machine.
package breaker

import (
	"sync"
	"time"

	"github.com/zxkws/mcp-router/internal/apierr"
)

// State is one of the three breaker states.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

// Config controls the thresholds for one breaker entry.
type Config struct {
	FailureThreshold int
	OpenDuration     time.Duration
}

// Snapshot is a point-in-time read of one entry's state, for the
// list_providers tool.
type Snapshot struct {
	State               State
	ConsecutiveFailures int
	OpenUntil           time.Time
	HalfOpenInFlight    bool
}

type entry struct {
	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openUntil           time.Time
	halfOpenInFlight    bool
}

// Attempt is the lease returned by BeginAttempt; the caller must call
// End exactly once with the classified outcome.
type Attempt struct {
	b    *Breaker
	name string
}

// Breaker owns one entry per upstream name, each independently locked.
type Breaker struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry

	onOpen func(upstream string)
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = 30 * time.Second
	}
	return &Breaker{cfg: cfg, entries: make(map[string]*entry)}
}

// OnOpen registers a callback invoked whenever an upstream transitions
// into OPEN. Used to update the circuit-open metrics.
func (b *Breaker) OnOpen(fn func(upstream string)) {
	b.onOpen = fn
}

func (b *Breaker) entryFor(name string) *entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[name]
	if !ok {
		e = &entry{state: Closed}
		b.entries[name] = e
	}
	return e
}

// CanAttempt reports whether an attempt would currently be admitted,
// without actually taking the lease (used by selector candidate
// filtering, step 4 of resolve()).
func (b *Breaker) CanAttempt(name string) bool {
	e := b.entryFor(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case Closed:
		return true
	case Open:
		return !time.Now().Before(e.openUntil)
	case HalfOpen:
		return !e.halfOpenInFlight
	default:
		return false
	}
}

// BeginAttempt admits or rejects an attempt against the named upstream.
func (b *Breaker) BeginAttempt(name string) (*Attempt, error) {
	e := b.entryFor(name)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	switch e.state {
	case Closed:
		return &Attempt{b: b, name: name}, nil
	case Open:
		if now.Before(e.openUntil) {
			return nil, apierr.New(apierr.CircuitOpen, "circuit open for upstream "+name)
		}
		e.state = HalfOpen
		e.halfOpenInFlight = true
		return &Attempt{b: b, name: name}, nil
	case HalfOpen:
		if e.halfOpenInFlight {
			return nil, apierr.New(apierr.CircuitHalfOpenBusy, "half-open probe already in flight for upstream "+name)
		}
		e.halfOpenInFlight = true
		return &Attempt{b: b, name: name}, nil
	default:
		return &Attempt{b: b, name: name}, nil
	}
}

// End reports the outcome of the attempt. ok=true means availability was
// fine (this includes protocol-level errors per spec §4.5's
// classification policy); ok=false means a transport failure or timeout.
func (a *Attempt) End(ok bool) {
	e := a.b.entryFor(a.name)
	e.mu.Lock()

	var justOpened bool
	switch e.state {
	case Closed:
		if ok {
			e.consecutiveFailures = 0
		} else {
			e.consecutiveFailures++
			if e.consecutiveFailures >= a.b.cfg.FailureThreshold {
				e.state = Open
				e.openUntil = time.Now().Add(a.b.cfg.OpenDuration)
				e.consecutiveFailures = 0
				justOpened = true
			}
		}
	case HalfOpen:
		e.halfOpenInFlight = false
		if ok {
			e.state = Closed
			e.consecutiveFailures = 0
		} else {
			e.state = Open
			e.openUntil = time.Now().Add(a.b.cfg.OpenDuration)
			justOpened = true
		}
	case Open:
		// end() arriving after the breaker already reopened via another
		// path; nothing further to do.
	}
	e.mu.Unlock()

	if justOpened && a.b.onOpen != nil {
		a.b.onOpen(a.name)
	}
}

// Get returns a snapshot of the named upstream's entry, creating a fresh
// CLOSED entry if none exists yet.
func (b *Breaker) Get(name string) Snapshot {
	e := b.entryFor(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		State:               e.state,
		ConsecutiveFailures: e.consecutiveFailures,
		OpenUntil:           e.openUntil,
		HalfOpenInFlight:    e.halfOpenInFlight,
	}
}

// All returns a snapshot of every upstream the breaker has ever tracked.
func (b *Breaker) All() map[string]Snapshot {
	b.mu.Lock()
	names := make([]string, 0, len(b.entries))
	for name := range b.entries {
		names = append(names, name)
	}
	b.mu.Unlock()

	out := make(map[string]Snapshot, len(names))
	for _, name := range names {
		out[name] = b.Get(name)
	}
	return out
}
