package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zxkws/mcp-router/internal/apierr"
)

var compiledSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.schema.json", strings.NewReader(schemaJSON)); err != nil {
		panic(err)
	}
	s, err := c.Compile("config.schema.json")
	if err != nil {
		panic(err)
	}
	compiledSchema = s
}

// Load reads, strictly validates, normalizes, and defaults the config
// file at path. Structural errors are reported as *apierr.Error with
// Kind ConfigInvalid; the caller decides whether that's fatal (startup)
// or should retain the prior snapshot (reload) per spec §4.1.
func Load(ctx context.Context, path string, resolver ChainResolver) (*NormalizedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apierr.Wrap(apierr.ConfigInvalid, "reading config file", err)
	}
	return Parse(ctx, data, resolver)
}

// Parse validates and decodes raw config bytes into a NormalizedConfig.
// Split out from Load so tests and the watcher can feed in-memory bytes.
func Parse(ctx context.Context, data []byte, resolver ChainResolver) (*NormalizedConfig, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apierr.Wrap(apierr.ConfigInvalid, "config is not valid JSON", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, apierr.Wrap(apierr.ConfigInvalid, "config failed schema validation", err)
	}

	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, apierr.Wrap(apierr.ConfigInvalid, "decoding config", err)
	}

	nc := &NormalizedConfig{
		Listen:       r.Listen,
		Admin:        r.Admin,
		ToolExposure: r.ToolExposure,
		Routing:      r.Routing,
		Audit:        r.Audit,
		Sandbox:      r.Sandbox,
		Alerts:       r.Alerts,
		Projects:     make(map[string]ProjectConfig, len(r.Projects)),
		Tokens:       r.Auth.Tokens,
	}

	if nc.Listen.HTTP != nil && nc.Listen.HTTP.Port != 0 {
		nc.Listen.HTTP.PortExplicit = true
	}
	setDefaults(nc)

	for _, p := range r.Projects {
		nc.Projects[p.ID] = p
	}

	upstreams := make(map[string]UpstreamConfig, len(r.MCPServers)+len(r.Upstreams))
	for name, u := range r.Upstreams { // legacy alias applied first
		u.Name = name
		upstreams[name] = u
	}
	for name, u := range r.MCPServers { // current key wins over the alias
		u.Name = name
		upstreams[name] = u
	}

	for name, u := range upstreams {
		resolvedHeaders, err := resolver.resolveStringMap(ctx, u.Headers)
		if err != nil {
			return nil, apierr.Wrap(apierr.ConfigInvalid, "resolving secrets for upstream "+name, err)
		}
		u.Headers = resolvedHeaders
		resolvedEnv, err := resolver.resolveStringMap(ctx, u.Env)
		if err != nil {
			return nil, apierr.Wrap(apierr.ConfigInvalid, "resolving secrets for upstream "+name, err)
		}
		u.Env = resolvedEnv
		upstreams[name] = u
	}
	nc.Upstreams = upstreams

	for i, t := range nc.Tokens {
		resolved, err := resolver.resolveOne(ctx, t.Value)
		if err != nil {
			return nil, apierr.Wrap(apierr.ConfigInvalid, "resolving auth token secret", err)
		}
		t.Value = resolved
		nc.Tokens[i] = t
	}

	if err := validate(nc); err != nil {
		return nil, err
	}

	return nc, nil
}

func setDefaults(nc *NormalizedConfig) {
	if nc.Listen.HTTP == nil {
		nc.Listen.HTTP = &HTTPListenConfig{}
	}
	if nc.Listen.HTTP.Port == 0 {
		nc.Listen.HTTP.Port = 4200
	}
	if nc.Listen.HTTP.Path == "" {
		nc.Listen.HTTP.Path = "/mcp"
	}
	if nc.ToolExposure == "" {
		nc.ToolExposure = "hierarchical"
	}
	if nc.Routing.SelectorStrategy == "" {
		nc.Routing.SelectorStrategy = "roundRobin"
	}
	if nc.Routing.HealthChecks.IntervalMs == 0 {
		nc.Routing.HealthChecks.IntervalMs = 30000
	}
	if nc.Routing.HealthChecks.TimeoutMs == 0 {
		nc.Routing.HealthChecks.TimeoutMs = 5000
	}
	if nc.Routing.CircuitBreaker.FailureThreshold == 0 {
		nc.Routing.CircuitBreaker.FailureThreshold = 5
	}
	if nc.Routing.CircuitBreaker.OpenMs == 0 {
		nc.Routing.CircuitBreaker.OpenMs = 30000
	}
	if nc.Audit.MaxArgumentChars == 0 {
		nc.Audit.MaxArgumentChars = 2048
	}
	if nc.Admin.Path == "" {
		nc.Admin.Path = "/admin"
	}
	if nc.Alerts.Discord.Enabled && nc.Alerts.Discord.OpenChecksThreshold == 0 {
		nc.Alerts.Discord.OpenChecksThreshold = 3
	}
	if nc.Alerts.Discord.Enabled && nc.Alerts.Discord.CooldownMs == 0 {
		nc.Alerts.Discord.CooldownMs = 15 * 60 * 1000
	}
}

// validate checks cross-references spec §3 requires: every
// principal.projectId must reference an existing project, and every
// enabled upstream must carry its transport-specific required fields.
func validate(nc *NormalizedConfig) error {
	for _, t := range nc.Tokens {
		if t.ProjectID != "" {
			if _, ok := nc.Projects[t.ProjectID]; !ok {
				return apierr.New(apierr.ConfigInvalid, fmt.Sprintf("auth token references unknown project %q", t.ProjectID))
			}
		}
	}
	for name, u := range nc.Upstreams {
		if !u.IsEnabled() {
			continue
		}
		switch u.Transport {
		case TransportHTTP:
			if u.URL == "" {
				return apierr.New(apierr.ConfigInvalid, fmt.Sprintf("upstream %q: http transport requires url", name))
			}
		case TransportPipe:
			if u.Command == "" {
				return apierr.New(apierr.ConfigInvalid, fmt.Sprintf("upstream %q: pipe transport requires command", name))
			}
		default:
			return apierr.New(apierr.ConfigInvalid, fmt.Sprintf("upstream %q: unsupported transport %q", name, u.Transport))
		}
	}
	return nil
}
