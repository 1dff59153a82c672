package frontend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxkws/mcp-router/internal/router"
)

func TestHandleHealthzBodyShape(t *testing.T) {
	s := &HTTPServer{cfg: HTTPConfig{ServiceVersion: "v9"}}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handleHealthz(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, router.ServerName, body["service"])
	assert.Equal(t, "v9", body["version"])
}

func TestHandleHealthzDefaultsVersionWhenUnset(t *testing.T) {
	s := &HTTPServer{cfg: HTTPConfig{}}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handleHealthz(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, router.ServerVersion, body["version"])
}

// flushRecorder tracks whether Flush was forwarded through sessionCapture.
type flushRecorder struct {
	*httptest.ResponseRecorder
	flushed bool
}

func (f *flushRecorder) Flush() { f.flushed = true }

func TestSessionCaptureForwardsFlush(t *testing.T) {
	inner := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	capture := &sessionCapture{ResponseWriter: inner}

	var flusher http.Flusher = capture
	flusher.Flush()

	assert.True(t, inner.flushed, "sessionCapture must forward Flush so streaming transports aren't buffered")
}

// plainWriter implements only http.ResponseWriter, not http.Flusher.
type plainWriter struct {
	header http.Header
}

func (p *plainWriter) Header() http.Header         { return p.header }
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) WriteHeader(int)             {}

func TestSessionCaptureFlushNoopWhenWrappedWriterIsNotAFlusher(t *testing.T) {
	capture := &sessionCapture{ResponseWriter: &plainWriter{header: http.Header{}}}
	assert.NotPanics(t, func() { capture.Flush() })
}
