// Package selector parses and resolves the router's provider selector
// grammar (spec §4.8, §6): an explicit upstream name, or a tag/version
// predicate with strategy-driven tie-breaks among candidates.
package selector

import (
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/zxkws/mcp-router/internal/apierr"
)

// Strategy picks one candidate from an ordered, filtered candidate list.
type Strategy string

const (
	RoundRobin Strategy = "roundRobin"
	Random     Strategy = "random"
)

// Parsed is the decomposed selector.
type Parsed struct {
	Explicit bool   // selector names an upstream directly
	Name     string // valid when Explicit
	Tag      string // valid when !Explicit and Tag != ""
	Range    string // semver range string, may be empty
}

// Parse implements the grammar: name | "tag:" tag | "tag:" tag "@" range | "version:" range.
func Parse(sel string) (Parsed, error) {
	switch {
	case strings.HasPrefix(sel, "tag:"):
		rest := strings.TrimPrefix(sel, "tag:")
		if rest == "" {
			return Parsed{}, apierr.New(apierr.BadRequest, "empty tag in selector")
		}
		if i := strings.Index(rest, "@"); i >= 0 {
			tag, rng := rest[:i], rest[i+1:]
			if tag == "" || rng == "" {
				return Parsed{}, apierr.New(apierr.BadRequest, "malformed tag@range selector")
			}
			if _, err := semver.NewConstraint(rng); err != nil {
				return Parsed{}, apierr.New(apierr.BadRequest, "invalid semver range: "+rng)
			}
			return Parsed{Tag: tag, Range: rng}, nil
		}
		return Parsed{Tag: rest}, nil
	case strings.HasPrefix(sel, "version:"):
		rng := strings.TrimPrefix(sel, "version:")
		if rng == "" {
			return Parsed{}, apierr.New(apierr.BadRequest, "empty version range in selector")
		}
		if _, err := semver.NewConstraint(rng); err != nil {
			return Parsed{}, apierr.New(apierr.BadRequest, "invalid semver range: "+rng)
		}
		return Parsed{Range: rng}, nil
	default:
		return Parsed{Explicit: true, Name: sel}, nil
	}
}

// Candidate is the subset of upstream data the selector needs to filter
// and rank.
type Candidate struct {
	Name    string
	Tags    []string
	Version string
}

// FilterByPredicate implements resolve() step 3: filters enabled,
// principal-visible upstreams by tag and semver satisfaction, ties broken
// by ascending name.
func FilterByPredicate(candidates []Candidate, p Parsed) ([]Candidate, error) {
	var constraint *semver.Constraints
	if p.Range != "" {
		c, err := semver.NewConstraint(p.Range)
		if err != nil {
			return nil, apierr.New(apierr.BadRequest, "invalid semver range: "+p.Range)
		}
		constraint = c
	}

	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if p.Tag != "" && !hasTag(c.Tags, p.Tag) {
			continue
		}
		if constraint != nil {
			if c.Version == "" {
				continue
			}
			v, err := semver.NewVersion(c.Version)
			if err != nil || !constraint.Check(v) {
				continue
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RNG abstracts the random source so tests can inject determinism.
type RNG interface {
	Float64() float64
}

type defaultRNG struct{}

func (defaultRNG) Float64() float64 { return rand.Float64() }

// DefaultRNG is the process-wide non-deterministic RNG used outside tests.
var DefaultRNG RNG = defaultRNG{}

// Counter is the per-session round-robin state the router engine owns.
// It is keyed by the selector string itself (spec §4.8 step 6: "the
// session's per-selector counter"), so a session alternating between two
// different tag selectors round-robins each independently instead of
// interleaving a single shared index across both.
type Counter struct {
	mu sync.Mutex
	n  map[string]int
}

// Pick implements resolve() step 6. For roundRobin it increments the
// counter keyed by key and wraps into the candidate slice (P1); for
// random it draws from rng.
func Pick(strategy Strategy, candidates []Candidate, counter *Counter, rng RNG, key string) Candidate {
	if strategy == Random {
		if rng == nil {
			rng = DefaultRNG
		}
		idx := int(rng.Float64() * float64(len(candidates)))
		if idx >= len(candidates) {
			idx = len(candidates) - 1
		}
		if idx < 0 {
			idx = 0
		}
		return candidates[idx]
	}

	counter.mu.Lock()
	if counter.n == nil {
		counter.n = make(map[string]int)
	}
	idx := counter.n[key] % len(candidates)
	counter.n[key]++
	counter.mu.Unlock()

	return candidates[idx]
}
