package frontend

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zxkws/mcp-router/internal/apierr"
)

// adminHandler serves the REST convenience surface gated behind
// admin.enabled, mirroring the teacher's internal/mcp/rest.go without
// its MCP-manager coupling: GET {adminPath}/providers and
// POST {adminPath}/tools/call let operational tooling drive the router
// without speaking the MCP JSON-RPC envelope.
type adminHandler struct {
	newEngine EngineFactory
}

func (h *adminHandler) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/providers", h.listProviders)
	r.Post("/tools/call", h.callTool)
	return r
}

func (h *adminHandler) listProviders(w http.ResponseWriter, r *http.Request) {
	e := h.newEngine(PrincipalFromContext(r.Context()))
	providers, err := e.ListProviders(r.URL.Query().Get("tag"), r.URL.Query().Get("version"))
	if err != nil {
		writeJSONError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"providers": providers})
}

func (h *adminHandler) callTool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider  string         `json:"provider"`
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, apierr.New(apierr.BadRequest, "invalid request body"))
		return
	}

	e := h.newEngine(PrincipalFromContext(r.Context()))
	result, err := e.ToolsCall(r.Context(), req.Provider, req.Name, req.Arguments)
	if err != nil {
		writeJSONError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"provider":          result.Provider,
		"name":              result.Name,
		"content":           result.Content,
		"structuredContent": result.StructuredContent,
	})
}
