package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of grading requests by provider, exercise type and outcome",
		},
		[]string{"provider", "exercise_type", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Grading request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"provider", "exercise_type"},
	)
	AIPromptTokens = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_prompt_tokens",
			Help:    "Prompt size in tokens per grading request",
			Buckets: prometheus.ExponentialBuckets(64, 2, 8),
		},
		[]string{"exercise_type"},
	)

	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluations_total",
			Help: "Scoring passes by exercise type, source and outcome",
		},
		[]string{"exercise_type", "source", "outcome"},
	)
	PlaceholderFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_placeholder_fallbacks_total",
			Help: "AI passes replaced by a placeholder, by failure code",
		},
		[]string{"exercise_type", "reason"},
	)
	ShadowedEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_shadowed_entries_total",
			Help: "AI entries kept in the shadow slot behind a manual score",
		},
		[]string{"exercise_type"},
	)
	StateWriteConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exercise_state_write_conflicts_total",
			Help: "Optimistic write conflicts on exercise states",
		},
		[]string{"operation"},
	)
	CertificationRecomputesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certification_recomputes_total",
			Help: "Certification rollup recomputations by trigger",
		},
		[]string{"trigger"},
	)
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "score_events_total",
			Help: "Score change events by direction and outcome",
		},
		[]string{"direction", "outcome"},
	)

	// Score distributions, as a percentage of the rubric's rescale target
	FinalScoreHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evaluation_final_score_percent",
			Help:    "Distribution of final scores as a percentage of the rubric target",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"exercise_kind"},
	)
	DisagreementHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evaluation_ai_trainer_disagreement",
			Help:    "Absolute AI vs trainer difference per item, as a fraction of the item max",
			Buckets: []float64{0, 0.125, 0.25, 0.5, 0.75, 1},
		},
		[]string{"exercise_type"},
	)
	DisagreementDriftGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evaluation_ai_trainer_drift",
			Help: "Rolling mean AI vs trainer disagreement once above threshold",
		},
		[]string{"exercise_type"},
	)
)

var registerOnce sync.Once

// InitMetrics registers every collector with the default registry.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AIPromptTokens,
			EvaluationsTotal,
			PlaceholderFallbacksTotal,
			ShadowedEntriesTotal,
			StateWriteConflictsTotal,
			CertificationRecomputesTotal,
			EventsTotal,
			FinalScoreHistogram,
			DisagreementHistogram,
			DisagreementDriftGauge,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one grading call.
func ObserveAIRequest(provider, exerciseType, outcome string, dur time.Duration) {
	AIRequestsTotal.WithLabelValues(provider, exerciseType, outcome).Inc()
	AIRequestDuration.WithLabelValues(provider, exerciseType).Observe(dur.Seconds())
}

// ObserveEvaluation records the outcome of a scoring pass.
func ObserveEvaluation(exerciseType, source, outcome string) {
	EvaluationsTotal.WithLabelValues(exerciseType, source, outcome).Inc()
}

// ObservePlaceholder records an AI pass that fell back to a placeholder.
func ObservePlaceholder(exerciseType, reason string) {
	PlaceholderFallbacksTotal.WithLabelValues(exerciseType, reason).Inc()
	EvaluationsTotal.WithLabelValues(exerciseType, "ai", "placeholder").Inc()
}

// ObserveFinalScore records a final score against its rescale target.
func ObserveFinalScore(kind string, final, target float64) {
	if target <= 0 || final < 0 || final > target {
		return
	}
	FinalScoreHistogram.WithLabelValues(kind).Observe(final / target * 100)
}

func ObserveShadowed(exerciseType string, n int) {
	if n > 0 {
		ShadowedEntriesTotal.WithLabelValues(exerciseType).Add(float64(n))
	}
}

func ObserveStateConflict(operation string) {
	StateWriteConflictsTotal.WithLabelValues(operation).Inc()
}

func ObserveRecompute(trigger string) {
	CertificationRecomputesTotal.WithLabelValues(trigger).Inc()
}

func ObserveEvent(direction, outcome string) {
	EventsTotal.WithLabelValues(direction, outcome).Inc()
}
