package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID(logger))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "If-None-Match", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "ETag"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(httpserver.TimeoutMiddleware(cfg.HTTPWriteTimeout))
		v1.With(httprate.LimitByIP(10, time.Minute)).Post("/auth/token", srv.TokenHandler())

		v1.Group(func(api chi.Router) {
			api.Use(srv.Tokens.Authenticate)
			api.Use(httprate.Limit(cfg.RateLimitPerMin, time.Minute, httprate.WithKeyFuncs(subjectKey)))

			api.Get("/exercises/{id}", srv.GetExerciseHandler())
			api.Get("/learners/{id}/certification", srv.CertificationHandler())
			api.Post("/exercises/{id}/evaluate", srv.EvaluateHandler())

			api.Group(func(learner chi.Router) {
				learner.Use(httpserver.RequireRole(httpserver.RoleLearner))
				learner.Post("/exercises/{id}/start", srv.StartHandler())
				learner.Post("/exercises/{id}/submit", srv.SubmitHandler())
			})

			api.Group(func(trainer chi.Router) {
				trainer.Use(httpserver.RequireRole(httpserver.RoleTrainer))
				trainer.Post("/exercises/{id}/scores", srv.ManualScoresHandler())
				trainer.Put("/exercises/{id}/draft", srv.PutDraftHandler())
				trainer.Get("/exercises/{id}/draft", srv.GetDraftHandler())
				trainer.Delete("/exercises/{id}/draft", srv.DeleteDraftHandler())
				trainer.Post("/exercises/{id}/publish", srv.PublishHandler())
			})
		})
	})

	return httpserver.SecurityHeaders(r)
}

// subjectKey rate limits authenticated calls per caller rather than per IP.
func subjectKey(r *http.Request) (string, error) {
	if p, ok := httpserver.PrincipalFrom(r.Context()); ok {
		return string(p.Role) + ":" + p.Subject, nil
	}
	return httprate.KeyByIP(r)
}
