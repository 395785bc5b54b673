// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pharmaops/pharmaops/internal/shared"
)

type errorMapping struct {
	target error
	status int
	title  string
	code   string
}

// Order matters: sentinels that wrap ErrValidation must be listed before it.
var errorMappings = []errorMapping{
	{shared.ErrNotFound, http.StatusNotFound, "Not Found", "NOT_FOUND"},
	{shared.ErrInvalidAmount, http.StatusUnprocessableEntity, "Invalid Amount", "INVALID_AMOUNT"},
	{shared.ErrInvalidQuantity, http.StatusUnprocessableEntity, "Invalid Quantity", "INVALID_QUANTITY"},
	{shared.ErrInsufficientStock, http.StatusConflict, "Insufficient Stock", "INSUFFICIENT_STOCK"},
	{shared.ErrPrescriptionRequired, http.StatusUnprocessableEntity, "Prescription Required", "PRESCRIPTION_REQUIRED"},
	{shared.ErrExhaustedRetries, http.StatusServiceUnavailable, "Exhausted Retries", "EXHAUSTED_RETRIES"},
	{shared.ErrIdempotencyConflict, http.StatusConflict, "Duplicate Request", "DUPLICATE_REQUEST"},
	{shared.ErrConflict, http.StatusConflict, "Conflict", "CONFLICT"},
	{shared.ErrValidation, http.StatusBadRequest, "Validation Failed", "VALIDATION_FAILED"},
	{shared.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid Credentials", "INVALID_CREDENTIALS"},
	{shared.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED"},
	{shared.ErrForbidden, http.StatusForbidden, "Forbidden", "FORBIDDEN"},
}

// StatusFor returns the HTTP status a domain error maps to.
func StatusFor(err error) int {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: verr.Error(),
			Code:   "VALIDATION_FAILED",
			Errors: verr.Fields,
		})
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			ProblemWithCode(w, m.status, m.title, err.Error(), m.code)
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

// RespondErrorLogged writes the error response and logs unmapped errors.
func RespondErrorLogged(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	if StatusFor(err) >= http.StatusInternalServerError && logger != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			logger.Error(msg, slog.Any("error", err))
		}
	}
	RespondError(w, err)
}
