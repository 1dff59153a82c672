package frontend

import (
	"context"

	"github.com/zxkws/mcp-router/internal/principal"
)

type contextKey string

const principalContextKey contextKey = "principal"

func withPrincipal(ctx context.Context, p principal.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the principal bound to the request by
// the auth middleware, or an anonymous principal if none was set.
func PrincipalFromContext(ctx context.Context) principal.Principal {
	p, ok := ctx.Value(principalContextKey).(principal.Principal)
	if !ok {
		return principal.Principal{Anonymous: true, AllowedUpstreams: principal.Top(), AllowedTags: principal.Top()}
	}
	return p
}
