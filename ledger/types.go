/*
Package ledger provides the points ledger and integrity engine.

PURPOSE:
  This package contains the core types and algorithms for managing user
  point balances. The ledger is an append-only log of point-affecting
  events; the profile (points, total_earned) is a cached projection of
  that log, kept for fast reads and continuously reconcilable against it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: An immutable ledger entry, tagged earn or redeem
  - Points: Integer point magnitude (always positive on a transaction)
  - Profile: The mutable per-user balance projection
  - AuditEntry: Write-once record of every projection change

DESIGN PRINCIPLES:
  1. The ledger is the source of truth; the profile is derived state
  2. Direction is carried by Kind, never by a negative amount
  3. Every projection change leaves an audit entry
  4. Idempotency keys make duplicate submissions structurally impossible

SEE ALSO:
  - service.go: The single non-bypassable credit/debit operation
  - audit.go: Drift detection between ledger and projection
  - repair.go: Monotonic-increase-only drift correction
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// POINTS - Integer point quantity
// =============================================================================

// Points is a point quantity. Transaction amounts are always positive;
// signed arithmetic only appears in derived balance math.
type Points int64

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type TransactionID string

// NewTransactionID returns a fresh opaque transaction identifier.
func NewTransactionID() TransactionID {
	return TransactionID(uuid.NewString())
}

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

type TxKind string

const (
	KindEarn   TxKind = "earn"
	KindRedeem TxKind = "redeem"
)

// Cause classifies what produced a transaction.
type Cause string

const (
	CauseSignup             Cause = "signup"
	CauseDailyCheckIn       Cause = "daily_check_in"
	CauseAdView             Cause = "ad_view"
	CauseTaskCompletion     Cause = "task_completion"
	CausePromoCode          Cause = "promo_code"
	CauseReferralBonus      Cause = "referral_bonus"
	CauseReferralCommission Cause = "referral_commission"
	CauseAdminAdjustment    Cause = "admin_adjustment"
	CauseRedemption         Cause = "redemption"
)

type Transaction struct {
	ID          TransactionID
	UserID      UserID
	Kind        TxKind
	Amount      Points // always > 0; direction carried by Kind
	Cause       Cause
	Description string

	// IdempotencyKey is enforced unique by the store. Mutation sources
	// build it from (user, feature, period) so retried client calls
	// cannot double-apply.
	IdempotencyKey string

	CreatedAt time.Time
}

// =============================================================================
// PROFILE - Mutable balance projection (one row per user)
// =============================================================================

// Profile caches the ledger-derived balance for fast reads.
//
// INVARIANTS (at rest):
//   - Points >= 0
//   - Points <= TotalEarned
//   - Points == max(0, sum(earn) - sum(redeem))
//   - TotalEarned == sum(earn), monotonically non-decreasing
//
// Transient drift under bugs is expected; the Auditor detects it and the
// Repairer corrects it upward.
type Profile struct {
	UserID      UserID
	Points      Points
	TotalEarned Points
	UpdatedAt   time.Time
}

// Change reports the effect of one applied transaction.
type Change struct {
	UserID        UserID
	TransactionID TransactionID
	OldPoints     Points
	NewPoints     Points
}

// =============================================================================
// AUDIT LOG - Forensic trail of projection changes
// =============================================================================

// AuditEntry records a single projection change. Append-only, write-once;
// never read for balance computation.
type AuditEntry struct {
	ID        string
	UserID    UserID
	OldPoints Points
	NewPoints Points
	Reason    string
	ChangedBy string // "system", "admin", or a repair run identifier
	ChangedAt time.Time
}

// NewAuditEntryID returns a fresh audit entry identifier.
func NewAuditEntryID() string {
	return uuid.NewString()
}
