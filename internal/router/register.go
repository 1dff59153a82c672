package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zxkws/mcp-router/internal/apierr"
	"github.com/zxkws/mcp-router/internal/config"
	"github.com/zxkws/mcp-router/internal/principal"
)

// ServerName and ServerVersion identify this router to MCP peers and to
// the HTTP front-end's /healthz body.
const ServerName = "mcp-router"
const ServerVersion = "v1"

// NewServer builds a fresh protocol server for one session, grounded on
// the teacher's NewMCPServer/SyncTools wiring in internal/mcp/server.go.
func NewServer(ctx context.Context, e *Engine) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: ServerName, Version: ServerVersion}, nil)

	cfg := e.cfgRef.Current()
	switch cfg.ToolExposure {
	case "namespaced":
		registerNamespacedTools(ctx, server, e, cfg)
	case "both":
		registerRouterTools(server, e)
		registerNamespacedTools(ctx, server, e, cfg)
	default: // "hierarchical"
		registerRouterTools(server, e)
	}
	return server
}

func registerRouterTools(server *sdkmcp.Server, e *Engine) {
	server.AddTool(
		&sdkmcp.Tool{Name: ToolListProviders, Description: "List visible upstream providers and their circuit/health state.", InputSchema: listProvidersSchema},
		func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			var args struct {
				Tag     string `json:"tag"`
				Version string `json:"version"`
			}
			if err := decodeArgs(req, &args); err != nil {
				return errorResult(err), nil
			}
			providers, err := e.ListProviders(args.Tag, args.Version)
			if err != nil {
				return errorResult(err), nil
			}
			return structuredResult(map[string]any{"providers": providers}), nil
		},
	)

	server.AddTool(
		&sdkmcp.Tool{Name: ToolToolsList, Description: "List a resolved provider's tools.", InputSchema: toolsListSchema},
		func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			var args struct {
				Provider string `json:"provider"`
			}
			if err := decodeArgs(req, &args); err != nil {
				return errorResult(err), nil
			}
			tools, err := e.ToolsList(ctx, args.Provider)
			if err != nil {
				return errorResult(err), nil
			}
			return structuredResult(map[string]any{"provider": args.Provider, "tools": tools}), nil
		},
	)

	server.AddTool(
		&sdkmcp.Tool{Name: ToolToolsCall, Description: "Forward a tool call to a resolved provider.", InputSchema: toolsCallSchema},
		func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			var args struct {
				Provider  string         `json:"provider"`
				Name      string         `json:"name"`
				Arguments map[string]any `json:"arguments"`
			}
			if err := decodeArgs(req, &args); err != nil {
				return errorResult(err), nil
			}
			result, err := e.ToolsCall(ctx, args.Provider, args.Name, args.Arguments)
			if err != nil {
				return errorResult(err), nil
			}
			return &sdkmcp.CallToolResult{Content: result.Content, StructuredContent: result.StructuredContent}, nil
		},
	)

	server.AddTool(
		&sdkmcp.Tool{Name: ToolToolsRefresh, Description: "Invalidate the cached tool list for one or all providers.", InputSchema: toolsRefreshSchema},
		func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			var args struct {
				Provider string `json:"provider"`
			}
			if err := decodeArgs(req, &args); err != nil {
				return errorResult(err), nil
			}
			if err := e.ToolsRefresh(args.Provider); err != nil {
				return errorResult(err), nil
			}
			return structuredResult(map[string]any{"ok": true}), nil
		},
	)
}

// registerNamespacedTools enumerates every upstream visible to the
// principal and registers its discovered tools under their namespaced
// names. A per-upstream ListTools failure is swallowed and the upstream
// is simply absent from the session's tool list rather than failing the
// whole session (spec's Open Question on partial listing failures).
func registerNamespacedTools(ctx context.Context, server *sdkmcp.Server, e *Engine, cfg *config.NormalizedConfig) {
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
		if principal.AssertAllowedUpstream(e.Principal, name, u.Tags) != nil {
			continue
		}

		tools, err := e.listToolsCached(ctx, name, cfg)
		if err != nil {
			e.logger.Printf("router: skipping namespaced tools for upstream %q: %v", name, err)
			continue
		}

		for _, t := range tools {
			namespaced := Namespace(name, t.Name)
			raw := t.InputSchema
			if len(raw) == 0 {
				raw = json.RawMessage(`{"type":"object"}`)
			}
			schema := new(jsonschema.Schema)
			if err := json.Unmarshal(raw, schema); err != nil {
				schema = mustSchema(`{"type":"object"}`)
			}
			server.AddTool(
				&sdkmcp.Tool{Name: namespaced, Description: t.Description, InputSchema: schema},
				func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
					var arguments map[string]any
					if len(req.Params.Arguments) > 0 {
						if err := json.Unmarshal(req.Params.Arguments, &arguments); err != nil {
							return errorResult(apierr.New(apierr.BadRequest, "invalid arguments: "+err.Error())), nil
						}
					}
					result, err := e.CallNamespaced(ctx, namespaced, arguments)
					if err != nil {
						return errorResult(err), nil
					}
					return &sdkmcp.CallToolResult{Content: result.Content, StructuredContent: result.StructuredContent}, nil
				},
			)
		}
	}
}

func decodeArgs(req *sdkmcp.CallToolRequest, into any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, into); err != nil {
		return apierr.New(apierr.BadRequest, "invalid arguments: "+err.Error())
	}
	return nil
}

func structuredResult(v any) *sdkmcp.CallToolResult {
	text, err := json.Marshal(v)
	if err != nil {
		return errorResult(apierr.Wrap(apierr.Internal, "marshaling result", err))
	}
	return &sdkmcp.CallToolResult{
		Content:           []sdkmcp.Content{&sdkmcp.TextContent{Text: string(text)}},
		StructuredContent: v,
	}
}

func errorResult(err error) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: fmt.Sprintf("%v", err)}},
		IsError: true,
	}
}
