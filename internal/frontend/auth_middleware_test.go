package frontend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxkws/mcp-router/internal/principal"
)

func TestAuthMiddlewareAnonymousWhenAuthDisabled(t *testing.T) {
	resolver := principal.NewResolver(nil, nil)
	var seen principal.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	NewAuthMiddleware(resolver)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, seen.Anonymous)
}

func TestAuthMiddlewareRejectsMissingTokenWhenAuthEnabled(t *testing.T) {
	resolver := principal.NewResolver([]principal.TokenConfig{{Value: "secret"}}, nil)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run for a rejected request")
	})

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	NewAuthMiddleware(resolver)(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body jsonRPCErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2.0", body.JSONRPC)
	assert.NotEmpty(t, body.Error.Message)
}

func TestAuthMiddlewareAcceptsValidBearerToken(t *testing.T) {
	resolver := principal.NewResolver([]principal.TokenConfig{{Value: "secret", RateLimitRPM: 10}}, nil)
	var seen principal.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	NewAuthMiddleware(resolver)(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, seen.Anonymous)
	assert.Equal(t, 10, seen.RateLimitRPM)
}

func TestAuthMiddlewareAcceptsXAPIKeyHeader(t *testing.T) {
	resolver := principal.NewResolver([]principal.TokenConfig{{Value: "secret"}}, nil)
	var seen principal.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	NewAuthMiddleware(resolver)(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, seen.Anonymous, "X-API-Key must be accepted as an alternative to Authorization: Bearer")
}
