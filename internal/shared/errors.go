package shared

import "errors"

// Error taxonomy shared by every domain package. Packages wrap these with their own
// sentinels so callers can match on either.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidAmount indicates a negative or malformed monetary amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidQuantity indicates a non-positive or malformed quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInsufficientStock indicates a decrement larger than the available quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPrescriptionRequired indicates a prescription-only item sold without evidence.
	ErrPrescriptionRequired = errors.New("prescription required")
	// ErrExhaustedRetries indicates a bounded retry loop gave up.
	ErrExhaustedRetries = errors.New("exhausted retries")
	// ErrConflict indicates the operation conflicts with current state.
	ErrConflict = errors.New("conflict")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized indicates a missing or invalid principal.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the principal lacks a permission.
	ErrForbidden = errors.New("forbidden")
)
