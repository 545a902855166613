/*
errors.go - Centralized error types for the ledger engine

ERROR CATEGORIES:
  1. Validation errors - Rejected before any write (InvalidAmount)
  2. Business rule violations - InsufficientBalance, DuplicateSubmission
  3. Integrity errors - UnauthorizedDeduction (guard rejection)

USAGE:
  Callers branch with errors.Is():

    if errors.Is(err, ledger.ErrDuplicateSubmission) {
        // already applied, safe to treat as success for retries
    }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a non-positive magnitude is
	// proposed for a transaction. Rejected before any write.
	ErrInvalidAmount = errors.New("invalid amount: must be positive")

	// ErrInsufficientBalance is returned when a debit exceeds the
	// current spendable points. No partial deduction occurs.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUnauthorizedDeduction is returned by the guard when a balance
	// decrease has no matching legitimate cause.
	ErrUnauthorizedDeduction = errors.New("unauthorized deduction")

	// ErrDuplicateSubmission is returned on an idempotency-key collision
	// (already checked in today, code already redeemed, ...). Existing
	// state is unchanged. Expected behavior for retries.
	ErrDuplicateSubmission = errors.New("duplicate submission")

	// ErrProfileNotFound is returned when a user has no balance projection.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrRepairInProgress is returned when a repair is already running
	// for the same user.
	ErrRepairInProgress = errors.New("repair already in progress for user")

	// ErrStoreRequired is returned when an operation needs an extended
	// store interface the configured store does not implement.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	UserID    UserID
	Available Points
	Requested Points
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %d, requested %d",
		e.UserID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// UnauthorizedDeductionError describes a rejected projection decrease.
type UnauthorizedDeductionError struct {
	UserID    UserID
	OldPoints Points
	NewPoints Points
	Detail    string
}

func (e *UnauthorizedDeductionError) Error() string {
	return fmt.Sprintf("unauthorized deduction for %s: %d -> %d (%s)",
		e.UserID, e.OldPoints, e.NewPoints, e.Detail)
}

func (e *UnauthorizedDeductionError) Unwrap() error {
	return ErrUnauthorizedDeduction
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// and should not be retried without changing the request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateSubmission) ||
		errors.Is(err, ErrUnauthorizedDeduction)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProfileNotFound)
}
