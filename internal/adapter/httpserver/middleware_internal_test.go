package httpserver

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	obsctx "github.com/fairyhunter13/sales-cert-evaluator/internal/observability"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	var seen string
	h := RequestID(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = obsctx.RequestIDFromContext(r.Context())
		LoggerFrom(r).Info("inside")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 26)
	assert.Equal(t, seen, rec.Header().Get("X-Request-Id"))
	assert.Contains(t, buf.String(), `"request_id":"`+seen+`"`)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "given-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "given-id", seen)
}

func TestRecoverer(t *testing.T) {
	t.Parallel()

	h := Recoverer()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"INTERNAL"`)
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	SecurityHeaders(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
