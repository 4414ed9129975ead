package domain

import (
	"errors" // Sentinel errors
	"fmt"    // Error formatting
)

// Error kinds surfaced by the accounting core. Callers match them with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrAuth                = errors.New("caller lacks scope")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrAlreadyProcessed    = errors.New("invoice already processed")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("version conflict")
	ErrConcurrencyConflict = errors.New("concurrency conflict: retries exhausted")
	ErrStore               = errors.New("store error")
	ErrTimeout             = errors.New("deadline exceeded")

	// ErrPendingCredit accompanies ErrStore or ErrTimeout when a debit has
	// committed but its credit has not; the money needs reconciling.
	ErrPendingCredit = errors.New("debit committed, credit pending")

	// ErrUnrecorded accompanies ErrStore when both balances moved but the
	// ledger entry could not be written. The movement is final.
	ErrUnrecorded = errors.New("balances moved, ledger entry missing")
)

// MovedFunds reports whether err was returned after money already left an
// account. Retrying the operation would move it again.
func MovedFunds(err error) bool {
	return errors.Is(err, ErrPendingCredit) || errors.Is(err, ErrUnrecorded)
}

// ValidationError describes a malformed or out-of-range input.
type ValidationError struct {
	Field   string // Offending field
	Message string // Human readable reason
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError for field.
func Invalid(field, message string) error {
	return ValidationError{Field: field, Message: message}
}

// IsRetryable reports whether the operation may succeed if attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrStore)
}
