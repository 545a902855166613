/*
store.go - Persistence interfaces for the ledger, projection and audit log

PURPOSE:
  Defines the interface between the engine and the database. The ledger
  table is append-only; the profile table is the only mutable, contended
  row per user; the audit log is append-only and write-once.

APPEND-ONLY CONTRACT:
  AppendTransaction is the ONLY write operation on the ledger. There is
  no Update or Delete. Corrections happen by appending more transactions
  (or, for projection drift, via the repair engine - which only raises).

IDEMPOTENCY:
  AppendTransaction must fail with ErrDuplicateSubmission when the
  transaction's idempotency key already exists. This is the primary
  defense against duplicate submissions from retried network calls -
  a database constraint, not an application-level check.

ATOMIC UNITS:
  WithTx wraps an entire unit (eligibility check + append + projection
  update + audit entry) in one storage transaction. A transaction insert
  must never be visible without its projection counterpart.

IMPLEMENTATIONS:
  - store/sqlite: production store backing every interface in this module
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Transaction log, projection and audit persistence
// =============================================================================

type Store interface {
	// AppendTransaction persists a ledger entry. Fails with
	// ErrDuplicateSubmission if the idempotency key exists.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// Transactions returns all entries for a user, oldest first.
	Transactions(ctx context.Context, user UserID) ([]Transaction, error)

	// TransactionsSince returns entries for a user created at or after
	// the given instant. Used by the guard's recency window.
	TransactionsSince(ctx context.Context, user UserID, since time.Time) ([]Transaction, error)

	// CountByCauseOn counts a user's transactions with the given cause
	// on a calendar day (UTC). Used for per-day caps.
	CountByCauseOn(ctx context.Context, user UserID, cause Cause, day time.Time) (int, error)

	// GetProfile returns the balance projection, or ErrProfileNotFound.
	GetProfile(ctx context.Context, user UserID) (*Profile, error)

	// SaveProfile upserts the balance projection. Callers other than the
	// balance updater and the repair engine must not invoke this.
	SaveProfile(ctx context.Context, p Profile) error

	// AppendAudit records a projection change. Append-only.
	AppendAudit(ctx context.Context, entry AuditEntry) error

	// AuditTrail returns a user's audit entries, oldest first.
	AuditTrail(ctx context.Context, user UserID) ([]AuditEntry, error)

	// ListUsers returns every user known to the ledger or projection.
	ListUsers(ctx context.Context) ([]UserID, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic units
// =============================================================================

// TxStore wraps Store with transaction support. The Store passed to fn is
// scoped to the transaction; implementations typically also satisfy the
// extended store interfaces of the earning package, so feature code can
// keep its uniqueness writes in the same atomic unit.
type TxStore interface {
	Store

	// WithTx executes fn within one storage transaction. If fn returns an
	// error the whole unit is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
