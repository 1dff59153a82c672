// Package router implements the per-session router engine (C8): the
// MCP-facing server logic that exposes router tools, resolves
// selectors, forwards calls, manages the per-session tool cache, and
// emits audit + metrics.
package router

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zxkws/mcp-router/internal/apierr"
	"github.com/zxkws/mcp-router/internal/audit"
	"github.com/zxkws/mcp-router/internal/breaker"
	"github.com/zxkws/mcp-router/internal/config"
	"github.com/zxkws/mcp-router/internal/health"
	"github.com/zxkws/mcp-router/internal/metrics"
	"github.com/zxkws/mcp-router/internal/principal"
	"github.com/zxkws/mcp-router/internal/ratelimit"
	"github.com/zxkws/mcp-router/internal/sandbox"
	"github.com/zxkws/mcp-router/internal/selector"
	"github.com/zxkws/mcp-router/internal/toolcache"
	"github.com/zxkws/mcp-router/internal/upstream"
)

// Engine is constructed fresh per session with the principal already
// bound; it owns no state shared with other sessions (spec §9).
type Engine struct {
	Principal principal.Principal

	cfgRef        *config.Ref
	manager       *upstream.Manager
	breaker       *breaker.Breaker
	health        *health.Checker
	rateLimiter   *ratelimit.Store
	metrics       *metrics.Registry
	audit         *audit.Writer
	sandboxPolicy sandbox.Policy
	rng           selector.RNG
	logger        *log.Logger

	cache   *toolcache.Cache
	counter *selector.Counter
}

func NewEngine(
	p principal.Principal,
	cfgRef *config.Ref,
	manager *upstream.Manager,
	br *breaker.Breaker,
	hc *health.Checker,
	rl *ratelimit.Store,
	mr *metrics.Registry,
	aw *audit.Writer,
	sandboxPolicy sandbox.Policy,
	rng selector.RNG,
	logger *log.Logger,
) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		Principal:     p,
		cfgRef:        cfgRef,
		manager:       manager,
		breaker:       br,
		health:        hc,
		rateLimiter:   rl,
		metrics:       mr,
		audit:         aw,
		sandboxPolicy: sandboxPolicy,
		rng:           rng,
		logger:        logger,
		cache:         toolcache.New(),
		counter:       &selector.Counter{},
	}
}

// ProviderInfo is one entry of list_providers' response.
type ProviderInfo struct {
	Name    string
	URL     string
	Transport config.Transport
	Tags    []string
	Version string
	Breaker breaker.Snapshot
	Health  health.Entry
}

// ListProviders implements the list_providers router tool.
func (e *Engine) ListProviders(tag, version string) ([]ProviderInfo, error) {
	if err := e.rateLimiter.Consume(e.Principal.Fingerprint(), e.Principal.RateLimitRPM); err != nil {
		return nil, err
	}
	cfg := e.cfgRef.Current()

	names := make([]string, 0, len(cfg.Upstreams))
	for name := range cfg.Upstreams {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []ProviderInfo
	for _, name := range names {
		u := cfg.Upstreams[name]
		if !u.IsEnabled() {
			continue
		}
		if principal.AssertAllowedUpstream(e.Principal, name, u.Tags) != nil {
			continue
		}
		if tag != "" && !hasTag(u.Tags, tag) {
			continue
		}
		if version != "" && u.Version != version {
			continue
		}
		out = append(out, ProviderInfo{
			Name:      name,
			URL:       u.URL,
			Transport: u.Transport,
			Tags:      u.Tags,
			Version:   u.Version,
			Breaker:   e.breaker.Get(name),
			Health:    e.health.Snapshot(name),
		})
	}
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

func (e *Engine) strategy(cfg *config.NormalizedConfig) selector.Strategy {
	if cfg.Routing.SelectorStrategy == string(selector.Random) {
		return selector.Random
	}
	return selector.RoundRobin
}

// resolve resolves a selector to an upstream name against the snapshot
// the caller already captured, so a config reload mid-call never
// changes which upstream an in-flight operation talks to (P8).
func (e *Engine) resolve(sel string, cfg *config.NormalizedConfig) (string, error) {
	return Resolve(sel, e.Principal, cfg, e.breaker, e.strategy(cfg), e.counter, e.rng)
}

// ToolsList implements the tools.list({provider}) router tool: resolve
// the provider, consult the per-session cache, and refresh on a miss.
func (e *Engine) ToolsList(ctx context.Context, provider string) ([]toolcache.Tool, error) {
	if err := e.rateLimiter.Consume(e.Principal.Fingerprint(), e.Principal.RateLimitRPM); err != nil {
		return nil, err
	}
	cfg := e.cfgRef.Current()
	upstreamName, err := e.resolve(provider, cfg)
	if err != nil {
		return nil, err
	}
	return e.listToolsCached(ctx, upstreamName, cfg)
}

func (e *Engine) listToolsCached(ctx context.Context, upstreamName string, cfg *config.NormalizedConfig) ([]toolcache.Tool, error) {
	if tools, ok := e.cache.Get(upstreamName); ok {
		return tools, nil
	}

	u := cfg.Upstreams[upstreamName]
	client, err := e.manager.Get(upstreamName, u, e.sandboxPolicy)
	if err != nil {
		return nil, apierr.Wrap(apierr.UpstreamUnavailable, "acquiring upstream client", err)
	}

	result, err := client.ListTools(ctx)
	if err != nil {
		return nil, apierr.Wrap(apierr.UpstreamUnavailable, "listing tools on upstream "+upstreamName, err)
	}

	allowed := toSet(u.AllowedTools)
	disallowed := toSet(u.DisallowedTools)

	tools := make([]toolcache.Tool, 0, len(result.Tools))
	namespacedToOriginal := make(map[string]string, len(result.Tools))
	for _, t := range result.Tools {
		if len(allowed) > 0 && !allowed[t.Name] {
			continue
		}
		if disallowed[t.Name] {
			continue
		}
		schema, _ := json.Marshal(t.InputSchema)
		tools = append(tools, toolcache.Tool{Name: t.Name, Description: t.Description, InputSchema: schema})
		namespacedToOriginal[Namespace(upstreamName, t.Name)] = t.Name
	}
	e.cache.Put(upstreamName, tools, namespacedToOriginal)
	return tools, nil
}

// toSet builds a membership set for the allowedTools/disallowedTools
// filter, grounded on the teacher's internal/mcp/manager.go discoverTools.
func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[strings.TrimSpace(item)] = true
	}
	return s
}

// ToolsRefresh implements tools.refresh({provider?}).
func (e *Engine) ToolsRefresh(provider string) error {
	if err := e.rateLimiter.Consume(e.Principal.Fingerprint(), e.Principal.RateLimitRPM); err != nil {
		return err
	}
	e.cache.Invalidate(provider)
	return nil
}

// CallResult is the result of a forwarded tool call.
type CallResult struct {
	Provider          string
	Name              string
	Content           []sdkmcp.Content
	StructuredContent any
}

// ToolsCall implements the tools.call({provider, name, arguments})
// router tool: resolve, then forward directly (bypassing the cache per
// spec §4.8).
func (e *Engine) ToolsCall(ctx context.Context, provider, name string, arguments map[string]any) (CallResult, error) {
	cfg := e.cfgRef.Current()
	upstreamName, err := e.resolve(provider, cfg)
	if err != nil {
		return CallResult{}, err
	}
	result, err := e.callUpstream(ctx, upstreamName, name, arguments, cfg)
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Provider: upstreamName, Name: name, Content: result.Content, StructuredContent: result.StructuredContent}, nil
}

// CallNamespaced dispatches a call by namespaced tool name, used when
// toolExposure is namespaced/both. It resolves the upstream via the
// longest matching prefix, then the original tool name via the cache
// (falling back to the remaining name fragment), per P6.
func (e *Engine) CallNamespaced(ctx context.Context, namespaced string, arguments map[string]any) (CallResult, error) {
	cfg := e.cfgRef.Current()

	names := make([]string, 0, len(cfg.Upstreams))
	for name := range cfg.Upstreams {
		names = append(names, name)
	}
	upstreamName, rest, ok := SplitNamespaced(namespaced, names)
	if !ok {
		return CallResult{}, apierr.New(apierr.BadRequest, "unknown namespaced tool: "+namespaced)
	}

	u, exists := cfg.Upstreams[upstreamName]
	if !exists || !u.IsEnabled() {
		return CallResult{}, apierr.New(apierr.BadRequest, "unknown upstream: "+upstreamName)
	}
	if err := principal.AssertAllowedUpstream(e.Principal, upstreamName, u.Tags); err != nil {
		return CallResult{}, err
	}

	originalName := e.cache.OriginalName(upstreamName, namespaced, rest)
	result, err := e.callUpstream(ctx, upstreamName, originalName, arguments, cfg)
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Provider: upstreamName, Name: originalName, Content: result.Content, StructuredContent: result.StructuredContent}, nil
}

// callUpstream is the full tool-call forwarding pipeline shared by
// ToolsCall and CallNamespaced (spec §4.8 step 1-6).
func (e *Engine) callUpstream(ctx context.Context, upstreamName, toolName string, arguments map[string]any, cfg *config.NormalizedConfig) (*sdkmcp.CallToolResult, error) {
	if err := e.rateLimiter.Consume(e.Principal.Fingerprint(), e.Principal.RateLimitRPM); err != nil {
		return nil, err
	}

	u, ok := cfg.Upstreams[upstreamName]
	if !ok || !u.IsEnabled() {
		return nil, apierr.New(apierr.BadRequest, "unknown upstream: "+upstreamName)
	}
	if err := principal.AssertAllowedUpstream(e.Principal, upstreamName, u.Tags); err != nil {
		return nil, err
	}

	attempt, err := e.breaker.BeginAttempt(upstreamName)
	if err != nil {
		return nil, apierr.Wrap(apierr.UpstreamUnavailable, "upstream unavailable: "+upstreamName, err)
	}

	client, err := e.manager.Get(upstreamName, u, e.sandboxPolicy)
	if err != nil {
		attempt.End(false)
		return nil, apierr.Wrap(apierr.UpstreamUnavailable, "acquiring upstream client", err)
	}

	argsJSON, _ := marshalArgs(arguments)
	callID := e.audit.ToolStart(e.Principal.Fingerprint(), upstreamName, toolName, argsJSON)
	start := time.Now()

	result, callErr := client.CallTool(ctx, toolName, arguments)
	ok2, classified := upstream.Classify(callErr, result)
	attempt.End(ok2)

	duration := time.Since(start)
	e.audit.ToolEnd(callID, e.Principal.Fingerprint(), upstreamName, toolName, ok2, duration, classified)
	e.recordMetrics(upstreamName, toolName, ok2, duration)

	if classified != nil {
		return nil, classified
	}
	return result, nil
}

func (e *Engine) recordMetrics(upstreamName, toolName string, ok bool, duration time.Duration) {
	if e.metrics == nil {
		return
	}
	okLabel := "false"
	if ok {
		okLabel = "true"
	}
	e.metrics.ToolCallsTotal.WithLabelValues(upstreamName, toolName, okLabel).Inc()
	e.metrics.ToolCallDuration.WithLabelValues(upstreamName, toolName, okLabel).Observe(duration.Seconds())
	if !ok {
		e.metrics.UpstreamFailuresTotal.WithLabelValues(upstreamName).Inc()
	}
}

func marshalArgs(arguments map[string]any) ([]byte, error) {
	return json.Marshal(arguments)
}
