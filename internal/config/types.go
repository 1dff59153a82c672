// Package config implements the strict-JSON configuration model (C1):
// parsing, schema validation, normalization, secret resolution, and the
// debounced hot-reload watcher publishing atomic snapshots.
package config

// Transport is one of the two upstream transport kinds.
type Transport string

const (
	TransportPipe Transport = "pipe"
	TransportHTTP Transport = "http"
)

// RestartPolicy governs pipe-client retry/backoff on operation failure.
type RestartPolicy struct {
	MaxRetries     int     `json:"maxRetries"`
	InitialDelayMs int     `json:"initialDelayMs"`
	MaxDelayMs     int     `json:"maxDelayMs"`
	Factor         float64 `json:"factor"`
}

// UpstreamConfig is one entry of mcpServers/upstreams, immutable per reload.
type UpstreamConfig struct {
	Name      string    `json:"-"`
	Transport Transport `json:"transport"`
	Enabled   *bool     `json:"enabled,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Version   string    `json:"version,omitempty"`
	TimeoutMs int       `json:"timeoutMs,omitempty"`

	// http transport
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// pipe transport
	Command       string            `json:"command,omitempty"`
	Args          []string          `json:"args,omitempty"`
	Cwd           string            `json:"cwd,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	StderrMode    string            `json:"stderrMode,omitempty"` // "discard" | "log"
	RestartPolicy *RestartPolicy    `json:"restartPolicy,omitempty"`

	// Tool visibility filter: when AllowedTools is non-empty only those
	// names are exposed, then DisallowedTools removes from what remains.
	AllowedTools    []string `json:"allowedTools,omitempty"`
	DisallowedTools []string `json:"disallowedTools,omitempty"`
}

// IsEnabled defaults to true when unset.
func (u UpstreamConfig) IsEnabled() bool {
	return u.Enabled == nil || *u.Enabled
}

// Fingerprint is a stable JSON-ish representation used by the upstream
// manager's config-diff reconciliation to decide whether an unchanged
// upstream entry needs to be torn down and recreated.
func (u UpstreamConfig) Fingerprint() string {
	b, _ := marshalStable(u)
	return string(b)
}

// ListenConfig is the listen{} top-level section.
type ListenConfig struct {
	HTTP  *HTTPListenConfig `json:"http,omitempty"`
	Stdio bool              `json:"stdio,omitempty"`
}

type HTTPListenConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
	Path string `json:"path,omitempty"`

	// PortExplicit records whether the config file set port itself, so
	// the PORT environment variable can be honored as a fallback
	// without clobbering an operator's explicit choice (spec §6).
	PortExplicit bool `json:"-"`
}

// AdminConfig is the admin{} top-level section.
type AdminConfig struct {
	Enabled              bool   `json:"enabled,omitempty"`
	Path                 string `json:"path,omitempty"`
	AllowUnauthenticated bool   `json:"allowUnauthenticated,omitempty"`
}

type HealthChecksConfig struct {
	Enabled      bool `json:"enabled,omitempty"`
	IntervalMs   int  `json:"intervalMs,omitempty"`
	TimeoutMs    int  `json:"timeoutMs,omitempty"`
	IncludeStdio bool `json:"includeStdio,omitempty"`
}

type CircuitBreakerConfig struct {
	Enabled          bool `json:"enabled,omitempty"`
	FailureThreshold int  `json:"failureThreshold,omitempty"`
	OpenMs           int  `json:"openMs,omitempty"`
}

type RoutingConfig struct {
	SelectorStrategy string               `json:"selectorStrategy,omitempty"`
	HealthChecks     HealthChecksConfig   `json:"healthChecks,omitempty"`
	CircuitBreaker   CircuitBreakerConfig `json:"circuitBreaker,omitempty"`
}

type AuditConfig struct {
	Enabled          bool `json:"enabled,omitempty"`
	LogArguments     bool `json:"logArguments,omitempty"`
	MaxArgumentChars int  `json:"maxArgumentChars,omitempty"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `json:"requestsPerMinute,omitempty"`
}

type ProjectConfig struct {
	ID                string           `json:"id"`
	Name              string           `json:"name,omitempty"`
	AllowedMCPServers []string         `json:"allowedMcpServers,omitempty"`
	AllowedTags       []string         `json:"allowedTags,omitempty"`
	RateLimit         *RateLimitConfig `json:"rateLimit,omitempty"`
}

type TokenConfig struct {
	Value             string           `json:"value"`
	ProjectID         string           `json:"projectId,omitempty"`
	AllowedMCPServers []string         `json:"allowedMcpServers,omitempty"`
	AllowedTags       []string         `json:"allowedTags,omitempty"`
	RateLimit         *RateLimitConfig `json:"rateLimit,omitempty"`
}

type AuthConfig struct {
	Tokens []TokenConfig `json:"tokens,omitempty"`
}

type SandboxStdioConfig struct {
	AllowedCommands []string `json:"allowedCommands,omitempty"`
	AllowedCwdRoots []string `json:"allowedCwdRoots,omitempty"`
	AllowedEnvKeys  []string `json:"allowedEnvKeys,omitempty"`
	InheritEnvKeys  []string `json:"inheritEnvKeys,omitempty"`
}

type SandboxConfig struct {
	Stdio SandboxStdioConfig `json:"stdio,omitempty"`
}

// DiscordAlertConfig is the alerts.discord{} section: an optional
// webhook fired when an upstream stays circuit-open across enough
// consecutive health checks. Off unless Enabled is set.
type DiscordAlertConfig struct {
	Enabled             bool   `json:"enabled,omitempty"`
	WebhookURL          string `json:"webhookUrl,omitempty"`
	OpenChecksThreshold int    `json:"openChecksThreshold,omitempty"`
	CooldownMs          int    `json:"cooldownMs,omitempty"`
}

type AlertsConfig struct {
	Discord DiscordAlertConfig `json:"discord,omitempty"`
}

// raw mirrors the top-level JSON document; it accepts both the current
// "mcpServers" key and the legacy "upstreams" alias, which are merged
// during normalization.
type raw struct {
	Listen       ListenConfig              `json:"listen,omitempty"`
	Admin        AdminConfig               `json:"admin,omitempty"`
	ToolExposure string                    `json:"toolExposure,omitempty"`
	Routing      RoutingConfig             `json:"routing,omitempty"`
	Audit        AuditConfig               `json:"audit,omitempty"`
	Projects     []ProjectConfig           `json:"projects,omitempty"`
	Auth         AuthConfig                `json:"auth,omitempty"`
	Sandbox      SandboxConfig             `json:"sandbox,omitempty"`
	Alerts       AlertsConfig              `json:"alerts,omitempty"`
	MCPServers   map[string]UpstreamConfig `json:"mcpServers,omitempty"`
	Upstreams    map[string]UpstreamConfig `json:"upstreams,omitempty"`
}

// NormalizedConfig is the fully validated, defaulted, normalized
// configuration snapshot (spec §3). It is immutable once constructed;
// reload produces an entirely new value, never an in-place mutation.
type NormalizedConfig struct {
	Listen       ListenConfig
	Admin        AdminConfig
	ToolExposure string
	Routing      RoutingConfig
	Audit        AuditConfig
	Projects     map[string]ProjectConfig
	Tokens       []TokenConfig
	Sandbox      SandboxConfig
	Alerts       AlertsConfig
	Upstreams    map[string]UpstreamConfig
}
