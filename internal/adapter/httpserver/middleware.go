package httpserver

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/sales-cert-evaluator/internal/observability"
)

// Recoverer turns panics into a 500 error envelope.
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					LoggerFrom(r).Error("panic recovered", slog.Any("recover", rec))
					writeError(w, r, fmt.Errorf("%w: panic", domain.ErrInternal), nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID injects a request id and correlates it with tracing ids.
func RequestID(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-Id")
			if reqID == "" || len(reqID) > 128 {
				reqID = newReqID()
				r.Header.Set("X-Request-Id", reqID)
			}
			spanCtx := trace.SpanContextFromContext(r.Context())
			logger := base.With(
				slog.String("request_id", reqID),
				slog.String("trace_id", spanCtx.TraceID().String()),
			)
			ctx := obsctx.ContextWithLogger(r.Context(), logger)
			ctx = obsctx.ContextWithRequestID(ctx, reqID)
			w.Header().Set("X-Request-Id", reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TimeoutMiddleware adds a deadline to the request context.
func TimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"error":{"code":"TIMEOUT","message":"request timed out"}}`)
	}
}

// SecurityHeaders adds strict security headers suitable for a JSON API.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// LoggerFrom returns the request-scoped logger.
func LoggerFrom(r *http.Request) *slog.Logger {
	return obsctx.LoggerFromContext(r.Context())
}

var (
	entropyMu   sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0) //nolint:gosec // ULID entropy only.
)

func newReqID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulidEntropy)
	if err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return id.String()
}

// AccessLog logs one line per request, at a level that follows the status code.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			}
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			LoggerFrom(r).LogAttrs(r.Context(), level, "http_access", attrs...)
		})
	}
}
