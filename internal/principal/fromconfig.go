package principal

import "github.com/zxkws/mcp-router/internal/config"

// ResolverFromConfig adapts the config package's auth.tokens[]/projects[]
// sections into the Resolver's own TokenConfig/ProjectConfig shape, kept
// separate from config so config has no dependency on principal.
func ResolverFromConfig(tokens []config.TokenConfig, projects map[string]config.ProjectConfig) *Resolver {
	tcs := make([]TokenConfig, 0, len(tokens))
	for _, t := range tokens {
		rpm := 0
		if t.RateLimit != nil {
			rpm = t.RateLimit.RequestsPerMinute
		}
		tcs = append(tcs, TokenConfig{
			Value:            t.Value,
			ProjectID:        t.ProjectID,
			AllowedUpstreams: t.AllowedMCPServers,
			AllowedTags:      t.AllowedTags,
			RateLimitRPM:     rpm,
		})
	}

	pcs := make([]ProjectConfig, 0, len(projects))
	for _, p := range projects {
		rpm := 0
		if p.RateLimit != nil {
			rpm = p.RateLimit.RequestsPerMinute
		}
		pcs = append(pcs, ProjectConfig{
			ID:               p.ID,
			AllowedUpstreams: p.AllowedMCPServers,
			AllowedTags:      p.AllowedTags,
			RateLimitRPM:     rpm,
		})
	}

	return NewResolver(tcs, pcs)
}
