// Package principal resolves a bearer token into a Principal with
// intersected allowlists (spec §4.7) and provides the Forbidden check
// used before an upstream is dispatched to.
package principal

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/zxkws/mcp-router/internal/apierr"
)

// StringSet is either a concrete set of allowed values, or Top (⊤),
// meaning unrestricted. A nil StringSet with Unrestricted=true is ⊤.
type StringSet struct {
	Values        map[string]struct{}
	Unrestricted  bool
}

// Top returns the unrestricted set.
func Top() StringSet { return StringSet{Unrestricted: true} }

// SetOf builds a concrete StringSet from a slice; a nil/empty slice
// means ⊤, matching the config schema's "absent ⇒ unrestricted" rule.
func SetOf(values []string) StringSet {
	if len(values) == 0 {
		return Top()
	}
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return StringSet{Values: m}
}

func (s StringSet) contains(v string) bool {
	if s.Unrestricted {
		return true
	}
	_, ok := s.Values[v]
	return ok
}

func (s StringSet) intersectsAny(vs []string) bool {
	if s.Unrestricted {
		return true
	}
	for _, v := range vs {
		if _, ok := s.Values[v]; ok {
			return true
		}
	}
	return false
}

// Intersect computes a ∩ b under ⊤-as-identity semantics: ⊤ ∩ x = x,
// ⊤ ∩ ⊤ = ⊤, and two concrete sets intersect normally.
func Intersect(a, b StringSet) StringSet {
	switch {
	case a.Unrestricted && b.Unrestricted:
		return Top()
	case a.Unrestricted:
		return b
	case b.Unrestricted:
		return a
	default:
		out := make(map[string]struct{})
		for v := range a.Values {
			if _, ok := b.Values[v]; ok {
				out[v] = struct{}{}
			}
		}
		return StringSet{Values: out}
	}
}

// Principal is the authenticated identity bound to a session.
type Principal struct {
	Anonymous        bool
	Token            string
	ProjectID        string
	AllowedUpstreams StringSet
	AllowedTags      StringSet
	RateLimitRPM     int // 0 means unset/exempt
}

// Fingerprint returns the SHA-256 hash of the token truncated to 12 hex
// characters, the only identifier carried into audit logs (spec §3).
func (p Principal) Fingerprint() string {
	if p.Anonymous {
		return "anonymous"
	}
	sum := sha256.Sum256([]byte(p.Token))
	return hex.EncodeToString(sum[:])[:12]
}

// TokenConfig is the subset of auth.tokens[] fields needed to resolve a
// principal.
type TokenConfig struct {
	Value            string
	ProjectID        string
	AllowedUpstreams []string
	AllowedTags      []string
	RateLimitRPM     int
}

// ProjectConfig is the subset of projects[] fields needed to resolve a
// principal.
type ProjectConfig struct {
	ID               string
	AllowedUpstreams []string
	AllowedTags      []string
	RateLimitRPM     int
}

// Resolver holds the normalized auth configuration used to resolve
// tokens into principals.
type Resolver struct {
	tokensByValue map[string]TokenConfig
	projectsByID  map[string]ProjectConfig
	authEnabled   bool
}

func NewResolver(tokens []TokenConfig, projects []ProjectConfig) *Resolver {
	r := &Resolver{
		tokensByValue: make(map[string]TokenConfig, len(tokens)),
		projectsByID:  make(map[string]ProjectConfig, len(projects)),
		authEnabled:   len(tokens) > 0,
	}
	for _, t := range tokens {
		r.tokensByValue[t.Value] = t
	}
	for _, p := range projects {
		r.projectsByID[p.ID] = p
	}
	return r
}

// AuthFromToken implements spec §4.7's resolution table.
func (r *Resolver) AuthFromToken(token string) (Principal, error) {
	if !r.authEnabled {
		return Principal{Anonymous: true, AllowedUpstreams: Top(), AllowedTags: Top()}, nil
	}
	if token == "" {
		return Principal{}, apierr.New(apierr.Unauthenticated, "missing token")
	}
	tc, ok := r.tokensByValue[token]
	if !ok {
		return Principal{}, apierr.New(apierr.Unauthenticated, "invalid token")
	}

	tokenUpstreams := SetOf(tc.AllowedUpstreams)
	tokenTags := SetOf(tc.AllowedTags)
	projectUpstreams := Top()
	projectTags := Top()
	rpm := tc.RateLimitRPM

	if tc.ProjectID != "" {
		if pc, ok := r.projectsByID[tc.ProjectID]; ok {
			projectUpstreams = SetOf(pc.AllowedUpstreams)
			projectTags = SetOf(pc.AllowedTags)
			if rpm == 0 {
				rpm = pc.RateLimitRPM
			}
		}
	}

	return Principal{
		Token:            token,
		ProjectID:        tc.ProjectID,
		AllowedUpstreams: Intersect(projectUpstreams, tokenUpstreams),
		AllowedTags:      Intersect(projectTags, tokenTags),
		RateLimitRPM:     rpm,
	}, nil
}

// AssertAllowedUpstream raises Forbidden when the principal's allowlists
// exclude name/tags (spec §4.7). Anonymous principals always pass.
func AssertAllowedUpstream(p Principal, name string, tags []string) error {
	if p.Anonymous {
		return nil
	}
	if !p.AllowedUpstreams.Unrestricted && !p.AllowedUpstreams.contains(name) {
		return apierr.New(apierr.Forbidden, "principal is not allowed to use upstream "+name)
	}
	if !p.AllowedTags.Unrestricted {
		if len(tags) == 0 || !p.AllowedTags.intersectsAny(tags) {
			return apierr.New(apierr.Forbidden, "principal's allowed tags do not match upstream "+name)
		}
	}
	return nil
}
