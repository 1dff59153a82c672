package frontend

import (
	"context"
	"log"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zxkws/mcp-router/internal/health"
	"github.com/zxkws/mcp-router/internal/principal"
	"github.com/zxkws/mcp-router/internal/router"
	"github.com/zxkws/mcp-router/internal/upstream"
)

// PipeConfig configures the single-session stdio front-end.
type PipeConfig struct {
	NewEngine EngineFactory
	Principal principal.Principal
	Manager   *upstream.Manager
	Health    *health.Checker
	Logger    *log.Logger
}

// ServeStdio runs one router session bound to a single pre-resolved
// principal over stdin/stdout, grounded on agentplexus-mcpkit's
// Runtime.ServeStdio (server.Run(ctx, &mcp.StdioTransport{})). It blocks
// until the peer disconnects or ctx is cancelled, then closes every
// upstream client the session may have opened.
func ServeStdio(ctx context.Context, cfg PipeConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	e := cfg.NewEngine(cfg.Principal)
	server := router.NewServer(ctx, e)

	logger.Printf("stdio session starting as %s", cfg.Principal.Fingerprint())
	err := server.Run(ctx, &sdkmcp.StdioTransport{})
	logger.Printf("stdio session ended: %v", err)

	if cfg.Health != nil {
		cfg.Health.Stop()
	}
	if cfg.Manager != nil {
		cfg.Manager.CloseAll()
	}
	return err
}
