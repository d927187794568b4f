package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

func TestWriteError_Mapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("op=x: %w", domain.ErrInvalidArgument), http.StatusBadRequest, "INVALID_ARGUMENT"},
		{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{domain.ErrConflict, http.StatusConflict, "CONFLICT"},
		{domain.ErrPublished, http.StatusConflict, "PUBLISHED"},
		{domain.ErrStaleWrite, http.StatusConflict, "STALE_WRITE"},
		{domain.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{domain.ErrUpstreamTimeout, http.StatusServiceUnavailable, "UPSTREAM_TIMEOUT"},
		{domain.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{&domain.SchemaViolationError{Field: "items[0]", Reason: "unknown item", Err: domain.ErrOutOfRangeScore}, http.StatusUnprocessableEntity, "OUT_OF_RANGE_SCORE"},
		{&domain.SchemaViolationError{Field: "items[0]", Reason: "unknown item"}, http.StatusUnprocessableEntity, "SCHEMA_VIOLATION"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.code, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, nil)
			assert.Equal(t, tt.status, rec.Code)

			var env errorEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"), nil)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestWriteError_SchemaViolationDetails(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), &domain.SchemaViolationError{Field: "items[2]", Reason: "unknown group"}, nil)
	assert.JSONEq(t, `{"field":"items[2]","reason":"unknown group"}`, extractDetails(t, rec.Body.Bytes()))
}

func extractDetails(t *testing.T, body []byte) string {
	t.Helper()
	var raw struct {
		Error struct {
			Details json.RawMessage `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &raw))
	return string(raw.Error.Details)
}
