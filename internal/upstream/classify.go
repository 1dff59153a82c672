package upstream

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zxkws/mcp-router/internal/apierr"
)

// Classify implements the third Open Question resolution (spec §9):
// a transport-level error (dial failure, timeout, context deadline) is
// UpstreamUnavailable and counts against the breaker (ok=false); a
// well-formed protocol error returned as *mcp.CallToolResult with
// IsError=true is a ProtocolError and does not count against the
// breaker (ok=true), per spec §4.5/P9.
func Classify(err error, result *mcp.CallToolResult) (ok bool, outErr error) {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return false, apierr.Wrap(apierr.UpstreamUnavailable, "upstream call timed out", err)
		}
		return false, apierr.Wrap(apierr.UpstreamUnavailable, "upstream transport error", err)
	}
	if result != nil && result.IsError {
		return true, apierr.New(apierr.ProtocolError, protocolErrorMessage(result))
	}
	return true, nil
}

func protocolErrorMessage(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok && tc.Text != "" {
			return tc.Text
		}
	}
	return "upstream tool call returned an error"
}
