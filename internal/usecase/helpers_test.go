package usecase

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/config"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/engine"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cat, err := config.LoadCatalogue("")
	require.NoError(t, err)
	e, err := engine.New(cat, engine.WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)
	return e
}

func testRetry() config.RetryConfig {
	return config.RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

// memStates is an in-memory compare-and-swap store.
type memStates struct {
	mu       sync.Mutex
	docs     map[string]domain.ExerciseScoreState
	conflict int // number of Replace calls to fail with a stale write
	replaces int
}

func newMemStates(states ...domain.ExerciseScoreState) *memStates {
	m := &memStates{docs: map[string]domain.ExerciseScoreState{}}
	for _, st := range states {
		m.docs[st.ExerciseID] = st
	}
	return m
}

func (m *memStates) Get(_ domain.Context, id string) (domain.ExerciseScoreState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.docs[id]
	if !ok {
		return domain.ExerciseScoreState{}, domain.ErrNotFound
	}
	return st, nil
}

func (m *memStates) Replace(_ domain.Context, st domain.ExerciseScoreState, expected int64) (domain.ExerciseScoreState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaces++
	if m.conflict > 0 {
		m.conflict--
		return domain.ExerciseScoreState{}, domain.ErrStaleWrite
	}
	if m.docs[st.ExerciseID].Version != expected {
		return domain.ExerciseScoreState{}, domain.ErrStaleWrite
	}
	st.Version = expected + 1
	m.docs[st.ExerciseID] = st
	return st, nil
}

func (m *memStates) ListByLearner(_ domain.Context, learnerID string) ([]domain.ExerciseScoreState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ExerciseScoreState
	for _, st := range m.docs {
		if st.LearnerID == learnerID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExerciseID < out[j].ExerciseID })
	return out, nil
}

func writer(states domain.ExerciseStateRepository, events domain.EventPublisher) StateWriter {
	w := NewStateWriter(states, events, testRetry())
	w.Now = func() time.Time { return t0 }
	return w
}

func stored(id, kind string, typ domain.ExerciseType, status domain.ExerciseStatus) domain.ExerciseScoreState {
	st := domain.NewExerciseScoreState(id, "learner-1", kind, typ)
	st.Status = status
	st.Version = 1
	st.CreatedAt = t0.Add(-time.Hour)
	st.UpdatedAt = t0.Add(-time.Hour)
	return st
}
