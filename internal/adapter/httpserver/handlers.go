package httpserver

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/config"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/usecase"
)

// ExerciseUsecase is the learner-facing lifecycle.
type ExerciseUsecase interface {
	Start(ctx domain.Context, exerciseID, learnerID, kind string) (domain.ExerciseScoreState, error)
	Submit(ctx domain.Context, exerciseID, learnerID string) (domain.ExerciseScoreState, error)
	Fetch(ctx domain.Context, exerciseID, ifNoneMatch string) (domain.ExerciseScoreState, string, bool, error)
}

// EvaluationUsecase runs an AI scoring pass.
type EvaluationUsecase interface {
	Evaluate(ctx domain.Context, exerciseID, orgID, content string) (usecase.EvaluationOutcome, error)
}

// TrainerUsecase covers manual scoring, drafts and publication.
type TrainerUsecase interface {
	SubmitManualScores(ctx domain.Context, exerciseID string, items []domain.ScoredItem, feedback string) (domain.ExerciseScoreState, error)
	StageDraft(ctx domain.Context, exerciseID string, items []domain.ScoredItem, feedback string) (domain.RubricResult, error)
	GetDraft(ctx domain.Context, exerciseID string) (domain.RubricResult, error)
	DiscardDraft(ctx domain.Context, exerciseID string) error
	Publish(ctx domain.Context, exerciseID string) (domain.ExerciseScoreState, error)
}

// CertificationUsecase serves certification rollups.
type CertificationUsecase interface {
	Get(ctx domain.Context, learnerID string) (domain.CertificationRollup, error)
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg           config.Config
	Tokens        *TokenManager
	Exercises     ExerciseUsecase
	Evaluations   EvaluationUsecase
	Trainer       TrainerUsecase
	Certification CertificationUsecase
	DBCheck       func(ctx context.Context) error
	RedisCheck    func(ctx context.Context) error
	KafkaCheck    func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, tokens *TokenManager, ex ExerciseUsecase, ev EvaluationUsecase, tr TrainerUsecase, cert CertificationUsecase, dbCheck, redisCheck, kafkaCheck func(context.Context) error) *Server {
	return &Server{
		Cfg: cfg, Tokens: tokens,
		Exercises: ex, Evaluations: ev, Trainer: tr, Certification: cert,
		DBCheck: dbCheck, RedisCheck: redisCheck, KafkaCheck: kafkaCheck,
	}
}

// exerciseResponse is the public view of an exercise state.
type exerciseResponse struct {
	domain.ExerciseScoreState
	Entries []entryView `json:"entries"`
	Shadow  []entryView `json:"shadow,omitempty"`
}

type entryView struct {
	Group string `json:"group"`
	Item  string `json:"item"`
	domain.ScoreEntry
}

func toResponse(st domain.ExerciseScoreState) exerciseResponse {
	return exerciseResponse{ExerciseScoreState: st, Entries: entryViews(st.Entries), Shadow: entryViews(st.Shadow)}
}

func entryViews(m map[domain.ItemKey]domain.ScoreEntry) []entryView {
	keys := domain.SortedKeys(m)
	out := make([]entryView, 0, len(keys))
	for _, k := range keys {
		out = append(out, entryView{Group: k.GroupID, Item: k.Item, ScoreEntry: m[k]})
	}
	return out
}

// TokenHandler exchanges trainer credentials for a bearer token.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.Cfg.TrainerUsername)) == 1
		passOK := VerifyPassword(req.Password, s.Cfg.TrainerPasswordHash)
		if !userOK || !passOK {
			LoggerFrom(r).Warn("trainer login rejected")
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrUnauthorized, errBadCredentials), nil)
			return
		}
		token, exp, err := s.Tokens.Issue(req.Username, RoleTrainer, "")
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_at":   exp.UTC().Format(time.RFC3339),
		})
	}
}

// StartHandler opens an exercise for the calling learner.
func (s *Server) StartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, p, ok := s.pathAndPrincipal(w, r)
		if !ok {
			return
		}
		var req startRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		st, err := s.Exercises.Start(r.Context(), id, p.Subject, req.Kind)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toResponse(st))
	}
}

// SubmitHandler closes the learner's work on an exercise.
func (s *Server) SubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, p, ok := s.pathAndPrincipal(w, r)
		if !ok {
			return
		}
		st, err := s.Exercises.Submit(r.Context(), id, p.Subject)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toResponse(st))
	}
}

// EvaluateHandler runs an AI scoring pass. A placeholder outcome is still a
// 200: the previous scores are returned with the recorded failure.
func (s *Server) EvaluateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, p, ok := s.pathAndPrincipal(w, r)
		if !ok {
			return
		}
		var req evaluateRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		if p.Role == RoleLearner {
			if _, _, _, err := s.ownedState(r, id, p); err != nil {
				writeError(w, r, err, nil)
				return
			}
		}
		org := p.Organization
		if org == "" {
			org = p.Subject
		}
		out, err := s.Evaluations.Evaluate(r.Context(), id, org, req.Content)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		resp := map[string]any{"exercise": toResponse(out.State), "placeholder": out.Placeholder != nil}
		if out.Placeholder != nil {
			resp["feedback"] = out.Placeholder.Feedback
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// GetExerciseHandler returns an exercise state with ETag support.
func (s *Server) GetExerciseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, p, ok := s.pathAndPrincipal(w, r)
		if !ok {
			return
		}
		st, etag, notModified, err := s.ownedState(r, id, p)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("ETag", etag)
		if notModified {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		writeJSON(w, http.StatusOK, toResponse(st))
	}
}

// ManualScoresHandler merges trainer scores immediately.
func (s *Server) ManualScoresHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _, ok := s.pathAndPrincipal(w, r)
		if !ok {
			return
		}
		var req scoresRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		st, err := s.Trainer.SubmitManualScores(r.Context(), id, req.toDomain(), SanitizeString(req.Feedback))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toResponse(st))
	}
}

// PutDraftHandler stages trainer scores.
func (s *Server) PutDraftHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _, ok := s.pathAndPrincipal(w, r)
		if !ok {
			return
		}
		var req scoresRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		draft, err := s.Trainer.StageDraft(r.Context(), id, req.toDomain(), SanitizeString(req.Feedback))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, draft)
	}
}

// GetDraftHandler returns the staged draft.
func (s *Server) GetDraftHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _, ok := s.pathAndPrincipal(w, r)
		if !ok {
			return
		}
		draft, err := s.Trainer.GetDraft(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, draft)
	}
}

// DeleteDraftHandler discards the staged draft.
func (s *Server) DeleteDraftHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _, ok := s.pathAndPrincipal(w, r)
		if !ok {
			return
		}
		if err := s.Trainer.DiscardDraft(r.Context(), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PublishHandler folds the draft and freezes the exercise.
func (s *Server) PublishHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _, ok := s.pathAndPrincipal(w, r)
		if !ok {
			return
		}
		st, err := s.Trainer.Publish(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toResponse(st))
	}
}

// CertificationHandler returns a learner's certification rollup. Learners may
// only read their own.
func (s *Server) CertificationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, p, ok := s.pathAndPrincipal(w, r)
		if !ok {
			return
		}
		if p.Role == RoleLearner && p.Subject != id {
			writeError(w, r, fmt.Errorf("%w: certification of another learner", domain.ErrForbidden), nil)
			return
		}
		rollup, err := s.Certification.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, rollup)
	}
}

// ReadyzHandler probes the database, Redis and the broker.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name string
			fn   func(context.Context) error
		}{{"db", s.DBCheck}, {"redis", s.RedisCheck}, {"kafka", s.KafkaCheck}}

		checks := make([]check, 0, len(probes))
		status := http.StatusOK
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			c := check{Name: p.name, OK: true}
			if err := p.fn(ctx); err != nil {
				c.OK, c.Details = false, err.Error()
				status = http.StatusServiceUnavailable
			}
			checks = append(checks, c)
		}
		writeJSON(w, status, map[string]any{"checks": checks})
	}
}

func (s *Server) pathAndPrincipal(w http.ResponseWriter, r *http.Request) (string, Principal, bool) {
	id := chi.URLParam(r, "id")
	if err := ValidateID("id", id); err != nil {
		writeError(w, r, err, map[string]string{"field": "id"})
		return "", Principal{}, false
	}
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, fmt.Errorf("%w: not authenticated", domain.ErrUnauthorized), nil)
		return "", Principal{}, false
	}
	return id, p, true
}

// ownedState fetches an exercise and hides other learners' exercises behind 404.
func (s *Server) ownedState(r *http.Request, id string, p Principal) (domain.ExerciseScoreState, string, bool, error) {
	st, etag, notModified, err := s.Exercises.Fetch(r.Context(), id, r.Header.Get("If-None-Match"))
	if err != nil {
		return st, "", false, err
	}
	if p.Role == RoleLearner && st.LearnerID != p.Subject {
		return domain.ExerciseScoreState{}, "", false, fmt.Errorf("%w: exercise %s", domain.ErrNotFound, id)
	}
	return st, etag, notModified, nil
}
