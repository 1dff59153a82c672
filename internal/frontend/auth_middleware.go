package frontend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/zxkws/mcp-router/internal/apierr"
	"github.com/zxkws/mcp-router/internal/principal"
)

// tokenAuthenticator is satisfied by both *principal.Resolver and
// *principal.ResolverRef, so the middleware works whether or not the
// caller wires config hot-reload.
type tokenAuthenticator interface {
	AuthFromToken(token string) (principal.Principal, error)
}

// NewAuthMiddleware resolves a bearer token into a Principal and binds
// it to the request context, grounded on the teacher's
// internal/proxy/middleware.NewAuthMiddleware decision tree (minus the
// JWT/master-key branches this router has no use for).
func NewAuthMiddleware(resolver tokenAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			p, err := resolver.AuthFromToken(token)
			if err != nil {
				writeJSONError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
		})
	}
}

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		if token, ok := strings.CutPrefix(auth, "bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}

type jsonRPCErrorBody struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   jsonRPCError    `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeJSONError writes a JSON-RPC-shaped error body (spec §6) so MCP
// and admin REST clients alike get a parseable response instead of a
// bare HTTP status page.
func writeJSONError(w http.ResponseWriter, err error) {
	kind, _ := apierr.KindOf(err)
	message := err.Error()
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		message = apiErr.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apierr.HTTPStatus(kind))
	_ = json.NewEncoder(w).Encode(jsonRPCErrorBody{
		JSONRPC: "2.0",
		ID:      json.RawMessage("null"),
		Error:   jsonRPCError{Code: apierr.RPCCode(kind), Message: message},
	})
}
