/*
referral.go - Referral attribution, completion bonuses and the
multi-level commission engine

LIFECYCLE:
  Signup with a referral code creates pending edges up to 3 levels deep
  (direct referrer, their referrer, and so on). The referred user's
  first qualifying earn flips every pending edge to completed - exactly
  once, never reverting - and pays one-time flat bonuses per level.

COMMISSIONS:
  Separately from completion, every qualifying earn cascades percentage
  commissions up the chain: 10% / 5% / 2% at levels 1 / 2 / 3, floored,
  skipped below 1 point. Commission transactions carry the
  referral_commission cause, which is excluded from further cascades -
  commissions never compound.

TERMINATION:
  The upward walk is a bounded loop (MaxReferralLevels) with an explicit
  visited set, so even a malformed A-refers-B-refers-A cycle in the data
  cannot loop or self-pay.

ATOMICITY:
  Everything here runs as an earn hook inside the storage transaction of
  the triggering credit. A commission is never visible without its
  source earn. Signup follows the same rule: bonus, own referral code
  and pending edges commit or roll back as one unit.
*/
package earning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/points-engine/ledger"
)

// =============================================================================
// TYPES
// =============================================================================

type EdgeStatus string

const (
	EdgePending   EdgeStatus = "pending"
	EdgeCompleted EdgeStatus = "completed"
)

// ReferralEdge links an upstream referrer to a referred user at a level
// (1 = direct). Created pending at attribution; completed exactly once.
type ReferralEdge struct {
	ID            string
	ReferrerID    ledger.UserID
	ReferredID    ledger.UserID
	Code          string
	Level         int
	Status        EdgeStatus
	PointsAwarded ledger.Points
	CreatedAt     time.Time
}

// CommissionRecord is the audit-side record of one commission payout,
// unique per (source transaction, level).
type CommissionRecord struct {
	ID               string
	ReferrerID       ledger.UserID
	ReferredID       ledger.UserID
	SourceTxID       ledger.TransactionID
	OriginalPoints   ledger.Points
	Percentage       decimal.Decimal
	CommissionPoints ledger.Points
	Level            int
	CreatedAt        time.Time
}

// ReferralStore persists codes, edges and commission records.
type ReferralStore interface {
	// SaveReferralCode registers a user's code. Codes are unique.
	SaveReferralCode(ctx context.Context, user ledger.UserID, code string) error

	// UserByReferralCode resolves a code to its owner; "" when unknown.
	UserByReferralCode(ctx context.Context, code string) (ledger.UserID, error)

	// SaveEdge must fail with ledger.ErrDuplicateSubmission on a
	// (referrer, referred, level) collision.
	SaveEdge(ctx context.Context, e ReferralEdge) error

	// EdgesByReferred returns all edges pointing at a referred user.
	EdgesByReferred(ctx context.Context, referred ledger.UserID) ([]ReferralEdge, error)

	// DirectReferrer returns the level-1 referrer of a user; "" if none.
	DirectReferrer(ctx context.Context, referred ledger.UserID) (ledger.UserID, error)

	// MarkEdgeCompleted flips one edge to completed and records the
	// bonus paid. Must be a no-op guardable one-way transition.
	MarkEdgeCompleted(ctx context.Context, edgeID string, awarded ledger.Points) error

	// SaveCommission must fail with ledger.ErrDuplicateSubmission on a
	// (source transaction, level) collision.
	SaveCommission(ctx context.Context, c CommissionRecord) error

	// CommissionsForReferrer returns a referrer's commission records.
	CommissionsForReferrer(ctx context.Context, referrer ledger.UserID) ([]CommissionRecord, error)
}

// =============================================================================
// SERVICE
// =============================================================================

type ReferralService struct {
	Ledger *ledger.Service
	Store  ReferralStore
}

// NewReferralService wires the commission cascade into the ledger as an
// earn hook, so no mutation source can credit points without the
// referral engine seeing it.
func NewReferralService(svc *ledger.Service, store ReferralStore) *ReferralService {
	s := &ReferralService{Ledger: svc, Store: store}
	svc.RegisterEarnHook(s.onEarn)
	return s
}

type SignUpResult struct {
	ReferralCode string
	Change       ledger.Change
}

// SignUp credits the one-time signup bonus, issues the user's own
// referral code, and attributes the signup to a referrer when a code is
// supplied. Bonus, code and referral edges commit in one atomic unit:
// a failed edge write rolls the bonus back too, so a retry of the whole
// signup starts clean instead of hitting the consumed idempotency key.
func (s *ReferralService) SignUp(ctx context.Context, user ledger.UserID, referredBy string) (SignUpResult, error) {
	// Resolve the referrer before opening the unit, so a bad code fails
	// without touching the ledger at all.
	if referredBy != "" {
		owner, err := s.Store.UserByReferralCode(ctx, referredBy)
		if err != nil {
			return SignUpResult{}, err
		}
		if owner == "" {
			return SignUpResult{}, fmt.Errorf("%w: %q", ErrReferralCodeNotFound, referredBy)
		}
		if owner == user {
			return SignUpResult{}, ErrSelfReferral
		}
	}

	ownCode := generateReferralCode()

	key := fmt.Sprintf("signup:%s", user)
	change, err := s.Ledger.CreditWith(ctx, user, SignupBonus, ledger.CauseSignup, "Signup bonus", key,
		func(st ledger.Store) error {
			rs, ok := st.(ReferralStore)
			if !ok {
				return ledger.ErrStoreRequired
			}
			if err := rs.SaveReferralCode(ctx, user, ownCode); err != nil {
				return err
			}
			if referredBy == "" {
				return nil
			}
			return s.attribute(ctx, rs, user, referredBy)
		})
	if err != nil {
		return SignUpResult{}, err
	}

	return SignUpResult{ReferralCode: ownCode, Change: change}, nil
}

// Attribute creates pending referral edges for a newly referred user,
// walking the referrer's own chain up to MaxReferralLevels.
func (s *ReferralService) Attribute(ctx context.Context, referred ledger.UserID, code string) error {
	return s.attribute(ctx, s.Store, referred, code)
}

func (s *ReferralService) attribute(ctx context.Context, rs ReferralStore, referred ledger.UserID, code string) error {
	owner, err := rs.UserByReferralCode(ctx, code)
	if err != nil {
		return err
	}
	if owner == "" {
		return fmt.Errorf("%w: %q", ErrReferralCodeNotFound, code)
	}
	if owner == referred {
		return ErrSelfReferral
	}

	seen := map[ledger.UserID]bool{referred: true}
	upstream := owner
	now := time.Now().UTC()

	for level := 1; level <= MaxReferralLevels; level++ {
		if seen[upstream] {
			break // defensive cycle break
		}
		seen[upstream] = true

		err := rs.SaveEdge(ctx, ReferralEdge{
			ID:         uuid.NewString(),
			ReferrerID: upstream,
			ReferredID: referred,
			Code:       code,
			Level:      level,
			Status:     EdgePending,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}

		next, err := rs.DirectReferrer(ctx, upstream)
		if err != nil {
			return err
		}
		if next == "" {
			break
		}
		upstream = next
	}
	return nil
}

// Commissions returns a referrer's commission history.
func (s *ReferralService) Commissions(ctx context.Context, referrer ledger.UserID) ([]CommissionRecord, error) {
	return s.Store.CommissionsForReferrer(ctx, referrer)
}

// =============================================================================
// EARN HOOK - completion + commission cascade
// =============================================================================

func (s *ReferralService) onEarn(ctx context.Context, st ledger.Store, tx ledger.Transaction) error {
	if tx.Kind != ledger.KindEarn || !IsQualifyingCause(tx.Cause) {
		return nil
	}

	rs, ok := st.(ReferralStore)
	if !ok {
		return ledger.ErrStoreRequired
	}

	if err := s.completeReferrals(ctx, st, rs, tx); err != nil {
		return err
	}
	return s.cascadeCommissions(ctx, st, rs, tx)
}

// completeReferrals flips the referred user's pending edges to completed
// and pays the one-time flat bonus per level.
func (s *ReferralService) completeReferrals(ctx context.Context, st ledger.Store, rs ReferralStore, tx ledger.Transaction) error {
	edges, err := rs.EdgesByReferred(ctx, tx.UserID)
	if err != nil {
		return err
	}

	for _, edge := range edges {
		if edge.Status != EdgePending || edge.Level < 1 || edge.Level > MaxReferralLevels {
			continue
		}
		bonus := CompletionBonuses[edge.Level-1]

		if err := rs.MarkEdgeCompleted(ctx, edge.ID, bonus); err != nil {
			return err
		}

		_, err := ledger.Apply(ctx, st, s.Ledger.Guard(), ledger.Transaction{
			ID:     ledger.NewTransactionID(),
			UserID: edge.ReferrerID,
			Kind:   ledger.KindEarn,
			Amount: bonus,
			Cause:  ledger.CauseReferralBonus,
			Description: fmt.Sprintf("Referral completed: %s (level %d)",
				edge.ReferredID, edge.Level),
			IdempotencyKey: fmt.Sprintf("referral_bonus:%s:%s:%d",
				edge.ReferrerID, edge.ReferredID, edge.Level),
			CreatedAt: tx.CreatedAt,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// cascadeCommissions walks up to MaxReferralLevels paying floored
// percentage commissions on the triggering earn.
func (s *ReferralService) cascadeCommissions(ctx context.Context, st ledger.Store, rs ReferralStore, tx ledger.Transaction) error {
	seen := map[ledger.UserID]bool{tx.UserID: true}
	current := tx.UserID

	for level := 1; level <= MaxReferralLevels; level++ {
		referrer, err := rs.DirectReferrer(ctx, current)
		if err != nil {
			return err
		}
		if referrer == "" || seen[referrer] {
			break
		}
		seen[referrer] = true

		commission := CommissionFor(tx.Amount, level)
		if commission >= 1 {
			if err := rs.SaveCommission(ctx, CommissionRecord{
				ID:               uuid.NewString(),
				ReferrerID:       referrer,
				ReferredID:       tx.UserID,
				SourceTxID:       tx.ID,
				OriginalPoints:   tx.Amount,
				Percentage:       CommissionRates[level-1],
				CommissionPoints: commission,
				Level:            level,
				CreatedAt:        tx.CreatedAt,
			}); err != nil {
				return err
			}

			_, err := ledger.Apply(ctx, st, s.Ledger.Guard(), ledger.Transaction{
				ID:     ledger.NewTransactionID(),
				UserID: referrer,
				Kind:   ledger.KindEarn,
				Amount: commission,
				Cause:  ledger.CauseReferralCommission,
				Description: fmt.Sprintf("Level %d commission on %d points earned by %s",
					level, tx.Amount, tx.UserID),
				IdempotencyKey: fmt.Sprintf("referral_commission:%s:%d", tx.ID, level),
				CreatedAt:      tx.CreatedAt,
			})
			if err != nil {
				return err
			}
		}

		current = referrer
	}
	return nil
}

func generateReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
