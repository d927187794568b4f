// Package mocks provides testify mocks for the domain ports.
package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

// MockExerciseStateRepository mocks domain.ExerciseStateRepository.
type MockExerciseStateRepository struct{ mock.Mock }

func (m *MockExerciseStateRepository) Get(ctx domain.Context, exerciseID string) (domain.ExerciseScoreState, error) {
	args := m.Called(ctx, exerciseID)
	return args.Get(0).(domain.ExerciseScoreState), args.Error(1)
}

func (m *MockExerciseStateRepository) Replace(ctx domain.Context, state domain.ExerciseScoreState, expectedVersion int64) (domain.ExerciseScoreState, error) {
	args := m.Called(ctx, state, expectedVersion)
	return args.Get(0).(domain.ExerciseScoreState), args.Error(1)
}

func (m *MockExerciseStateRepository) ListByLearner(ctx domain.Context, learnerID string) ([]domain.ExerciseScoreState, error) {
	args := m.Called(ctx, learnerID)
	out, _ := args.Get(0).([]domain.ExerciseScoreState)
	return out, args.Error(1)
}

// MockRollupRepository mocks domain.RollupRepository.
type MockRollupRepository struct{ mock.Mock }

func (m *MockRollupRepository) Upsert(ctx domain.Context, r domain.CertificationRollup) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockRollupRepository) Get(ctx domain.Context, learnerID string) (domain.CertificationRollup, error) {
	args := m.Called(ctx, learnerID)
	return args.Get(0).(domain.CertificationRollup), args.Error(1)
}

// MockDraftStore mocks domain.DraftStore.
type MockDraftStore struct{ mock.Mock }

func (m *MockDraftStore) Stage(ctx domain.Context, exerciseID string, r domain.RubricResult) (domain.RubricResult, error) {
	args := m.Called(ctx, exerciseID, r)
	return args.Get(0).(domain.RubricResult), args.Error(1)
}

func (m *MockDraftStore) Get(ctx domain.Context, exerciseID string) (domain.RubricResult, error) {
	args := m.Called(ctx, exerciseID)
	return args.Get(0).(domain.RubricResult), args.Error(1)
}

func (m *MockDraftStore) Discard(ctx domain.Context, exerciseID string) error {
	return m.Called(ctx, exerciseID).Error(0)
}

// MockEventPublisher mocks domain.EventPublisher.
type MockEventPublisher struct{ mock.Mock }

func (m *MockEventPublisher) PublishScoreChanged(ctx domain.Context, ev domain.ScoreChangedEvent) error {
	return m.Called(ctx, ev).Error(0)
}

// MockAIGrader mocks domain.AIGrader.
type MockAIGrader struct{ mock.Mock }

func (m *MockAIGrader) Grade(ctx domain.Context, organizationID string, t domain.ExerciseType, content string) (string, error) {
	args := m.Called(ctx, organizationID, t, content)
	return args.String(0), args.Error(1)
}

// MockRateLimiter mocks domain.RateLimiter.
type MockRateLimiter struct{ mock.Mock }

func (m *MockRateLimiter) Allow(ctx domain.Context, key string, cost int64) (bool, time.Duration, error) {
	args := m.Called(ctx, key, cost)
	return args.Bool(0), args.Get(1).(time.Duration), args.Error(2)
}

var (
	_ domain.ExerciseStateRepository = (*MockExerciseStateRepository)(nil)
	_ domain.RollupRepository        = (*MockRollupRepository)(nil)
	_ domain.DraftStore              = (*MockDraftStore)(nil)
	_ domain.EventPublisher          = (*MockEventPublisher)(nil)
	_ domain.AIGrader                = (*MockAIGrader)(nil)
	_ domain.RateLimiter             = (*MockRateLimiter)(nil)
)
