// Package frontend implements the two user-facing entry points (C9):
// a single-session stdio front-end for process-embedded use, and a
// chi-routed HTTP front-end exposing the MCP streamable transport plus
// the deprecated SSE transport, health, and metrics.
package frontend

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zxkws/mcp-router/internal/apierr"
	"github.com/zxkws/mcp-router/internal/config"
	"github.com/zxkws/mcp-router/internal/health"
	"github.com/zxkws/mcp-router/internal/metrics"
	"github.com/zxkws/mcp-router/internal/principal"
	"github.com/zxkws/mcp-router/internal/router"
	"github.com/zxkws/mcp-router/internal/upstream"
)

const sessionHeader = "Mcp-Session-Id"

// EngineFactory builds a fresh router.Engine bound to a principal, one
// per MCP session (spec §9: sessions share no state).
type EngineFactory func(p principal.Principal) *router.Engine

// HTTPConfig configures the HTTP front-end.
type HTTPConfig struct {
	Addr           string
	MCPPath        string
	HealthPath     string
	MetricsPath    string
	NewEngine      EngineFactory
	AuthResolver   tokenAuthenticator
	Health         *health.Checker
	Metrics        *metrics.Registry
	Manager        *upstream.Manager
	Admin          config.AdminConfig
	ServiceVersion string
	Logger         *log.Logger
}

// HTTPServer is the chi-routed front-end (C9, HTTP variant).
type HTTPServer struct {
	cfg    HTTPConfig
	router chi.Router
	server *http.Server

	bindings *sessionBindings
}

// NewHTTPServer builds the chi router, grounded on the teacher's
// internal/proxy/server.go route-mounting pattern and
// internal/mcp/transport.go's NewStreamableHTTPHandler/NewSSEHandler.
func NewHTTPServer(cfg HTTPConfig) *HTTPServer {
	if cfg.MCPPath == "" {
		cfg.MCPPath = "/mcp"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	s := &HTTPServer{cfg: cfg, bindings: newSessionBindings()}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get(cfg.HealthPath, s.handleHealthz)
	if cfg.Metrics != nil {
		r.Handle(cfg.MetricsPath, cfg.Metrics.Handler())
	}

	authMW := NewAuthMiddleware(cfg.AuthResolver)

	r.Route(cfg.MCPPath, func(r chi.Router) {
		r.Use(authMW)
		r.Use(s.bindings.enforce)
		r.Mount("/", s.streamableHandler())
	})

	// Deprecated SSE transport (spec's "still served for backward
	// compatibility" supplemented feature): GET /sse opens the event
	// stream, POST /messages?sessionId= delivers client messages.
	sse := s.sseHandler()
	r.Route("/sse", func(r chi.Router) {
		r.Use(authMW)
		r.Use(s.bindings.enforce)
		r.Mount("/", sse)
	})
	r.Route("/messages", func(r chi.Router) {
		r.Use(authMW)
		r.Use(s.bindings.enforce)
		r.Mount("/", sse)
	})

	// REST convenience surface for operational tooling (spec's admin{}
	// section): gated behind admin.enabled, and behind bearer auth too
	// unless admin.allowUnauthenticated is set.
	if cfg.Admin.Enabled {
		admin := &adminHandler{newEngine: cfg.NewEngine}
		r.Route(cfg.Admin.Path, func(r chi.Router) {
			if !cfg.Admin.AllowUnauthenticated {
				r.Use(authMW)
			}
			r.Mount("/", admin.Handler())
		})
	}

	s.router = r
	return s
}

func (s *HTTPServer) streamableHandler() http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(func(r *http.Request) *sdkmcp.Server {
		p := PrincipalFromContext(r.Context())
		e := s.cfg.NewEngine(p)
		return router.NewServer(r.Context(), e)
	}, nil)
}

func (s *HTTPServer) sseHandler() http.Handler {
	return sdkmcp.NewSSEHandler(func(r *http.Request) *sdkmcp.Server {
		p := PrincipalFromContext(r.Context())
		e := s.cfg.NewEngine(p)
		return router.NewServer(r.Context(), e)
	})
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	version := s.cfg.ServiceVersion
	if version == "" {
		version = router.ServerVersion
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":      true,
		"service": router.ServerName,
		"version": version,
	})
}

// ListenAndServe blocks serving the router until ctx is cancelled, then
// shuts down gracefully.
func (s *HTTPServer) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{Addr: s.cfg.Addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.server.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// sessionBindings enforces P5: once a session ID is first seen bound to
// a principal fingerprint, later requests carrying the same session ID
// must present the same principal, or the request is rejected.
type sessionBindings struct {
	mu           sync.Mutex
	fingerprints map[string]string
}

func newSessionBindings() *sessionBindings {
	return &sessionBindings{fingerprints: make(map[string]string)}
}

func (b *sessionBindings) enforce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get(sessionHeader)
		if sessionID == "" {
			sessionID = r.URL.Query().Get("sessionId")
		}
		p := PrincipalFromContext(r.Context())
		fp := p.Fingerprint()

		if sessionID != "" {
			b.mu.Lock()
			bound, ok := b.fingerprints[sessionID]
			if !ok {
				b.fingerprints[sessionID] = fp
			}
			b.mu.Unlock()
			if ok && bound != fp {
				writeJSONError(w, apierr.New(apierr.Unauthenticated, "session is bound to a different principal"))
				return
			}
		}

		capture := &sessionCapture{ResponseWriter: w}
		next.ServeHTTP(capture, r)

		if newID := capture.Header().Get(sessionHeader); newID != "" && newID != sessionID {
			b.mu.Lock()
			b.fingerprints[newID] = fp
			b.mu.Unlock()
		}
	})
}

// sessionCapture is a pass-through http.ResponseWriter; it exists only
// so enforce can read back the Mcp-Session-Id the transport assigns on
// session creation, via Header() after ServeHTTP returns. It forwards
// Flush so the streamable and deprecated SSE transports can still push
// bytes incrementally instead of buffering until ServeHTTP returns.
type sessionCapture struct {
	http.ResponseWriter
}

func (c *sessionCapture) Flush() {
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
