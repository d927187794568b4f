package domain

import (
	"errors"
	"fmt"
)

// MalformedResponseError is returned when the grader output cannot be parsed as JSON,
// even after the repair cycle. Raw keeps the original text for diagnostics.
type MalformedResponseError struct {
	Raw    string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %s", e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return ErrMalformedResponse }

// SchemaViolationError is returned when parsed JSON does not match the shape of its exercise type.
type SchemaViolationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *SchemaViolationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema violation: %s", e.Reason)
	}
	return fmt.Sprintf("schema violation at %s: %s", e.Field, e.Reason)
}

func (e *SchemaViolationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSchemaViolation}
	}
	return []error{ErrSchemaViolation, e.Err}
}

// Failure codes recorded on a state when an evaluation falls back to a placeholder.
const (
	FailureMalformedResponse = "MALFORMED_RESPONSE"
	FailureSchemaViolation   = "SCHEMA_VIOLATION"
	FailureOutOfRangeScore   = "OUT_OF_RANGE_SCORE"
	FailureUpstreamTimeout   = "UPSTREAM_TIMEOUT"
	FailureRateLimited       = "RATE_LIMITED"
	FailureInternal          = "INTERNAL"
)

// FailureCode maps an evaluation error to a stable code.
func FailureCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOutOfRangeScore):
		return FailureOutOfRangeScore
	case errors.Is(err, ErrSchemaViolation):
		return FailureSchemaViolation
	case errors.Is(err, ErrMalformedResponse):
		return FailureMalformedResponse
	case errors.Is(err, ErrUpstreamTimeout):
		return FailureUpstreamTimeout
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	default:
		return FailureInternal
	}
}

// FailureField returns the offending field of a schema violation, if any.
func FailureField(err error) string {
	var sv *SchemaViolationError
	if errors.As(err, &sv) {
		return sv.Field
	}
	return ""
}
