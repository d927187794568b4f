package postgres_test

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/repo/postgres"
)

var _ postgres.PgxPool = (*poolStub)(nil)

// rowStub implements pgx.Row
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// rowsStub implements pgx.Rows over a fixed set of (document, version) pairs.
type rowsStub struct {
	docs     [][]byte
	versions []int64
	i        int
	err      error
}

func (r *rowsStub) Close()                                       {}
func (r *rowsStub) Err() error                                   { return r.err }
func (r *rowsStub) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) Values() ([]any, error)                       { return nil, nil }
func (r *rowsStub) RawValues() [][]byte                          { return nil }
func (r *rowsStub) Conn() *pgx.Conn                              { return nil }

func (r *rowsStub) Next() bool {
	if r.i >= len(r.docs) {
		return false
	}
	r.i++
	return true
}

func (r *rowsStub) Scan(dest ...any) error {
	*(dest[0].(*[]byte)) = r.docs[r.i-1]
	*(dest[1].(*int64)) = r.versions[r.i-1]
	return nil
}

// poolStub implements postgres.PgxPool for tests and records the last Exec.
type poolStub struct {
	execTag  string
	execErr  error
	row      rowStub
	rows     *rowsStub
	queryErr error

	lastSQL  string
	lastArgs []any
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.lastSQL, p.lastArgs = sql, args
	return pgconn.NewCommandTag(p.execTag), p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	if p.row.scan == nil {
		return rowStub{scan: func(_ ...any) error { return errors.New("no row configured") }}
	}
	return p.row
}

func (p *poolStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.rows == nil {
		return &rowsStub{}, nil
	}
	return p.rows, nil
}
