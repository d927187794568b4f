package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrStaleWrite        = errors.New("stale write")
	ErrPublished         = errors.New("exercise published")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrMalformedResponse = errors.New("malformed response")
	ErrSchemaViolation   = errors.New("schema violation")
	ErrOutOfRangeScore   = errors.New("out of range score")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInternal          = errors.New("internal error")
)

// ExerciseType is the closed set of response shapes the grader can return.
type ExerciseType string

const (
	ExerciseDialogue       ExerciseType = "dialogue"
	ExerciseCharacteristic ExerciseType = "characteristic"
	ExerciseSection        ExerciseType = "section"
	ExerciseObjection      ExerciseType = "objection"
	ExerciseFreeScore      ExerciseType = "free_score"
)

// ExerciseTypes lists every supported exercise type.
var ExerciseTypes = []ExerciseType{
	ExerciseDialogue,
	ExerciseCharacteristic,
	ExerciseSection,
	ExerciseObjection,
	ExerciseFreeScore,
}

func (t ExerciseType) Valid() bool {
	for _, v := range ExerciseTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Source identifies who produced a score.
type Source string

const (
	SourceAI     Source = "ai"
	SourceManual Source = "manual"
)

func (s Source) Valid() bool { return s == SourceAI || s == SourceManual }

type ExerciseStatus string

const (
	StatusNotStarted ExerciseStatus = "not_started"
	StatusInProgress ExerciseStatus = "in_progress"
	StatusSubmitted  ExerciseStatus = "submitted"
	StatusEvaluated  ExerciseStatus = "evaluated"
	StatusPublished  ExerciseStatus = "published"
	// StatusCompleted is only produced by older records and by the certification rollup.
	StatusCompleted ExerciseStatus = "completed"
)

// ScoreEntry is a single scored item in a state slot.
// Invariants: 0 <= Points <= MaxPoints; Source in {ai, manual}
type ScoreEntry struct {
	Points    float64   `json:"points"`
	MaxPoints float64   `json:"max_points"`
	Comment   string    `json:"comment,omitempty"`
	Source    Source    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// ScoredItem is one item of a RubricResult, before it has a source or timestamp.
type ScoredItem struct {
	Key       ItemKey `json:"key"`
	Points    float64 `json:"points"`
	MaxPoints float64 `json:"max_points"`
	Comment   string  `json:"comment,omitempty"`
}

// RubricResult is the normalized output of one evaluation pass.
// Items are unique per key.
type RubricResult struct {
	Kind     string       `json:"kind"`
	Type     ExerciseType `json:"type"`
	Items    []ScoredItem `json:"items"`
	Feedback string       `json:"feedback,omitempty"`
}

// Failure describes the last evaluation attempt that fell back to a placeholder.
type Failure struct {
	Code    string    `json:"code"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ExerciseScoreState is the authoritative score document of one exercise instance for one learner.
// Invariants: once Status is published no entry changes; totals derive from Entries only.
// FeedbackSource tells whether Feedback came from the grader or a trainer; FeedbackAt is the pass that wrote it.
type ExerciseScoreState struct {
	ExerciseID     string                 `json:"exercise_id"`
	LearnerID      string                 `json:"learner_id"`
	Kind           string                 `json:"kind"`
	Type           ExerciseType           `json:"type"`
	Status         ExerciseStatus         `json:"status"`
	Entries        map[ItemKey]ScoreEntry `json:"entries"`
	Shadow         map[ItemKey]ScoreEntry `json:"shadow,omitempty"`
	GroupTotals    map[string]float64     `json:"group_totals,omitempty"`
	TotalScore     float64                `json:"total_score"`
	MaxScore       float64                `json:"max_score"`
	FinalScore     float64                `json:"final_score"`
	Feedback       string                 `json:"feedback,omitempty"`
	FeedbackSource Source                 `json:"feedback_source,omitempty"`
	FeedbackAt     time.Time              `json:"feedback_at"`
	LastFailure    *Failure               `json:"last_failure,omitempty"`
	Version        int64                  `json:"version"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	PublishedAt    *time.Time             `json:"published_at,omitempty"`
}

// NewExerciseScoreState returns the empty initial state for an exercise instance.
func NewExerciseScoreState(exerciseID, learnerID, kind string, t ExerciseType) ExerciseScoreState {
	return ExerciseScoreState{
		ExerciseID: exerciseID,
		LearnerID:  learnerID,
		Kind:       kind,
		Type:       t,
		Status:     StatusNotStarted,
		Entries:    map[ItemKey]ScoreEntry{},
		Shadow:     map[ItemKey]ScoreEntry{},
	}
}

// Contribution is what one catalogue entry added to a certification rollup.
type Contribution struct {
	Kind      string         `json:"kind"`
	Status    ExerciseStatus `json:"status"`
	Score     float64        `json:"score"`
	MaxPoints float64        `json:"max_points"`
	FinalExam bool           `json:"final_exam"`
	Counted   bool           `json:"counted"`
}

// CertificationRollup is a derived view over a learner's exercise states.
type CertificationRollup struct {
	LearnerID            string         `json:"learner_id"`
	OnlineExercisesScore float64        `json:"online_exercises_score"`
	FinalExamScore       float64        `json:"final_exam_score"`
	TotalScore           float64        `json:"total_score"`
	MaxTotal             float64        `json:"max_total"`
	Status               ExerciseStatus `json:"status"`
	Contributions        []Contribution `json:"contributions"`
	ComputedAt           time.Time      `json:"computed_at"`
}

// ScoreChangedEvent is emitted after every committed state write.
type ScoreChangedEvent struct {
	EventID    string         `json:"event_id"`
	ExerciseID string         `json:"exercise_id"`
	LearnerID  string         `json:"learner_id"`
	Kind       string         `json:"kind"`
	Status     ExerciseStatus `json:"status"`
	FinalScore float64        `json:"final_score"`
	Version    int64          `json:"version"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Repositories (ports)

type ExerciseStateRepository interface {
	Get(ctx Context, exerciseID string) (ExerciseScoreState, error)
	// Replace writes the whole document if the stored version equals expectedVersion.
	// It returns ErrStaleWrite otherwise.
	Replace(ctx Context, state ExerciseScoreState, expectedVersion int64) (ExerciseScoreState, error)
	ListByLearner(ctx Context, learnerID string) ([]ExerciseScoreState, error)
}

type RollupRepository interface {
	Upsert(ctx Context, r CertificationRollup) error
	Get(ctx Context, learnerID string) (CertificationRollup, error)
}

// DraftStore buffers staged trainer scores. Drafts are never authoritative.
type DraftStore interface {
	Stage(ctx Context, exerciseID string, r RubricResult) (RubricResult, error)
	Get(ctx Context, exerciseID string) (RubricResult, error)
	Discard(ctx Context, exerciseID string) error
}

type EventPublisher interface {
	PublishScoreChanged(ctx Context, ev ScoreChangedEvent) error
}

// AIGrader returns the raw text of the grading model for a learner submission.
type AIGrader interface {
	Grade(ctx Context, organizationID string, t ExerciseType, content string) (string, error)
}

type RateLimiter interface {
	Allow(ctx Context, key string, cost int64) (bool, time.Duration, error)
}

// Context is an alias to context.Context to avoid importing context in domain consumers.
type Context = context.Context
