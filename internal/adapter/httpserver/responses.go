// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the exercise lifecycle, AI and trainer scoring, and the
// certification rollup as a JSON API. Handlers translate requests into
// usecase calls and domain errors into stable error codes.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a domain error to an HTTP status and a stable code.
// Order matters: out-of-range scores are also schema violations.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrOutOfRangeScore):
		return http.StatusUnprocessableEntity, "OUT_OF_RANGE_SCORE"
	case errors.Is(err, domain.ErrSchemaViolation):
		return http.StatusUnprocessableEntity, "SCHEMA_VIOLATION"
	case errors.Is(err, domain.ErrMalformedResponse):
		return http.StatusBadGateway, "MALFORMED_RESPONSE"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrPublished):
		return http.StatusConflict, "PUBLISHED"
	case errors.Is(err, domain.ErrStaleWrite):
		return http.StatusConflict, "STALE_WRITE"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusServiceUnavailable, "UPSTREAM_TIMEOUT"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func writeError(w http.ResponseWriter, r *http.Request, err error, details interface{}) {
	code, codeStr := statusFor(err)
	var sv *domain.SchemaViolationError
	if details == nil && errors.As(err, &sv) {
		details = map[string]string{"field": sv.Field, "reason": sv.Reason}
	}
	msg := err.Error()
	if code == http.StatusInternalServerError {
		LoggerFrom(r).Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: msg, Details: details}})
}
