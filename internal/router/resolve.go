package router

import (
	"sort"

	"github.com/zxkws/mcp-router/internal/apierr"
	"github.com/zxkws/mcp-router/internal/breaker"
	"github.com/zxkws/mcp-router/internal/config"
	"github.com/zxkws/mcp-router/internal/principal"
	"github.com/zxkws/mcp-router/internal/selector"
)

// Resolve implements spec §4.8's resolve(selector) → upstreamName.
func Resolve(sel string, p principal.Principal, cfg *config.NormalizedConfig, br *breaker.Breaker, strategy selector.Strategy, counter *selector.Counter, rng selector.RNG) (string, error) {
	parsed, err := selector.Parse(sel)
	if err != nil {
		return "", err
	}

	if parsed.Explicit {
		u, ok := cfg.Upstreams[parsed.Name]
		if !ok || !u.IsEnabled() {
			return "", apierr.New(apierr.BadRequest, "unknown upstream: "+parsed.Name)
		}
		if err := principal.AssertAllowedUpstream(p, parsed.Name, u.Tags); err != nil {
			return "", err
		}
		return parsed.Name, nil
	}

	var visible []selector.Candidate
	names := make([]string, 0, len(cfg.Upstreams))
	for name := range cfg.Upstreams {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		u := cfg.Upstreams[name]
		if !u.IsEnabled() {
			continue
		}
		if principal.AssertAllowedUpstream(p, name, u.Tags) != nil {
			continue
		}
		visible = append(visible, selector.Candidate{Name: name, Tags: u.Tags, Version: u.Version})
	}

	matched, err := selector.FilterByPredicate(visible, parsed)
	if err != nil {
		return "", err
	}
	if len(matched) == 0 {
		return "", apierr.New(apierr.NoProvidersMatch, "no upstream matches selector "+sel)
	}

	available := matched[:0:0]
	for _, c := range matched {
		if br.CanAttempt(c.Name) {
			available = append(available, c)
		}
	}
	if len(available) == 0 {
		return "", apierr.New(apierr.UpstreamUnavailable, "all matching upstreams are unavailable for selector "+sel)
	}

	return selector.Pick(strategy, available, counter, rng, sel).Name, nil
}
