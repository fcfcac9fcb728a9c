package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"budgetlens/internal/core"
	"budgetlens/internal/log"
	"budgetlens/internal/middleware/trace"
)

var validationErrors = []error{
	core.ErrInvalidDate,
	core.ErrInvalidAmount,
	core.ErrInvalidMonth,
	core.ErrInvalidFrequency,
	core.ErrDescriptionTooLong,
	core.ErrUnknownKind,
	core.ErrInvalidLookback,
	core.ErrInvalidMinDataPoints,
	core.ErrInvalidYear,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// statusFor maps an error to a status code. invalid is used for domain
// validation failures, which differ between queries (400) and writes (422).
func statusFor(err error, invalid int) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case isValidationError(err):
		return invalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends err as JSON. Server errors are logged and their details
// hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error, invalid int) {
	status := statusFor(err, invalid)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).WithComponent(log.ComponentHTTP).ErrorContext(r.Context(), "Request failed",
			log.FieldError, err,
			log.FieldPath, r.URL.Path)
		msg = http.StatusText(status)
	}
	ErrorResponse(status, msg, trace.GetRequestID(r.Context())).Write(w)
}

// sanitizeInput removes control characters except tab and newlines, and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
