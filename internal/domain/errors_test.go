package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaViolationError_UnwrapsBoth(t *testing.T) {
	t.Parallel()

	err := &SchemaViolationError{Field: "responses[2].score", Reason: "3 outside [0,2]", Err: ErrOutOfRangeScore}
	wrapped := fmt.Errorf("op=engine.normalize: %w", err)

	assert.ErrorIs(t, wrapped, ErrSchemaViolation)
	assert.ErrorIs(t, wrapped, ErrOutOfRangeScore)
	assert.Contains(t, err.Error(), "responses[2].score")

	plain := &SchemaViolationError{Reason: "not an array"}
	assert.ErrorIs(t, plain, ErrSchemaViolation)
	assert.NotErrorIs(t, plain, ErrOutOfRangeScore)
	assert.Equal(t, "schema violation: not an array", plain.Error())
}

func TestMalformedResponseError(t *testing.T) {
	t.Parallel()

	err := &MalformedResponseError{Raw: "Sure, here", Reason: "no JSON object found"}
	assert.ErrorIs(t, err, ErrMalformedResponse)

	var mr *MalformedResponseError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", err), &mr))
	assert.Equal(t, "Sure, here", mr.Raw)
}

func TestFailureCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code string
	}{
		{"nil", nil, ""},
		{"malformed", &MalformedResponseError{Reason: "x"}, FailureMalformedResponse},
		{"schema", &SchemaViolationError{Field: "f"}, FailureSchemaViolation},
		{"out of range wins over schema", &SchemaViolationError{Field: "f", Err: ErrOutOfRangeScore}, FailureOutOfRangeScore},
		{"timeout", fmt.Errorf("op=ai.grade: %w", ErrUpstreamTimeout), FailureUpstreamTimeout},
		{"rate limited", ErrRateLimited, FailureRateLimited},
		{"other", errors.New("boom"), FailureInternal},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.code, FailureCode(tt.err))
		})
	}
	assert.Equal(t, "f", FailureField(&SchemaViolationError{Field: "f"}))
	assert.Empty(t, FailureField(ErrInternal))
}
