// Package upstream implements the upstream client capability (C2) and
// the keyed manager that owns client lifecycles (C3).
package upstream

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client is the capability trait shared by both transport variants
// (spec §9): listTools/callTool/close, parametric on implementation.
type Client interface {
	ListTools(ctx context.Context) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

const implName = "mcp-router"
const implVersion = "v1"

func implementation() *mcp.Implementation {
	return &mcp.Implementation{Name: implName, Version: implVersion}
}
