package postgres_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/config"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

func TestRollupRepo_Upsert(t *testing.T) {
	t.Parallel()

	pool := &poolStub{execTag: "INSERT 0 1"}
	r := domain.CertificationRollup{LearnerID: "learner-1", TotalScore: 581, Status: domain.StatusCompleted, ComputedAt: ts}
	require.NoError(t, postgres.NewRollupRepo(pool).Upsert(context.Background(), r))
	assert.Contains(t, pool.lastSQL, "computed_at <= EXCLUDED.computed_at")
	assert.Equal(t, "completed", pool.lastArgs[1])
}

func TestRollupRepo_Get(t *testing.T) {
	t.Parallel()

	doc, err := json.Marshal(domain.CertificationRollup{LearnerID: "learner-1", TotalScore: 20})
	require.NoError(t, err)
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*(dest[0].(*[]byte)) = doc
		return nil
	}}}
	got, err := postgres.NewRollupRepo(pool).Get(context.Background(), "learner-1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.TotalScore)

	missing := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	_, err = postgres.NewRollupRepo(missing).Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	pool := &poolStub{}
	require.NoError(t, postgres.EnsureSchema(context.Background(), pool))
	assert.True(t, strings.Contains(pool.lastSQL, "CREATE TABLE IF NOT EXISTS exercise_states"))
}

func TestNewPool_InvalidDSN(t *testing.T) {
	t.Parallel()

	_, err := postgres.NewPool(context.Background(), "://not-a-dsn", config.DBPoolConfig{})
	assert.Error(t, err)
}

func TestParsePoolConfig(t *testing.T) {
	t.Parallel()

	const dsn = "postgres://u:p@localhost:5432/app?sslmode=disable"

	t.Run("settings applied", func(t *testing.T) {
		t.Parallel()
		cfg, err := postgres.ParsePoolConfig(dsn, config.DBPoolConfig{
			MaxConns:          25,
			MinConns:          3,
			MaxConnLifetime:   30 * time.Minute,
			MaxConnIdleTime:   2 * time.Minute,
			HealthCheckPeriod: 15 * time.Second,
		})
		require.NoError(t, err)
		assert.Equal(t, int32(25), cfg.MaxConns)
		assert.Equal(t, int32(3), cfg.MinConns)
		assert.Equal(t, 30*time.Minute, cfg.MaxConnLifetime)
		assert.Equal(t, 2*time.Minute, cfg.MaxConnIdleTime)
		assert.Equal(t, 15*time.Second, cfg.HealthCheckPeriod)
		assert.NotNil(t, cfg.ConnConfig.Tracer)
	})

	t.Run("zero keeps dsn pool settings", func(t *testing.T) {
		t.Parallel()
		cfg, err := postgres.ParsePoolConfig(dsn+"&pool_max_conns=7", config.DBPoolConfig{})
		require.NoError(t, err)
		assert.Equal(t, int32(7), cfg.MaxConns)
	})
}
