/*
promo.go - Promo code redemption

IDEMPOTENCY:
  A redemption row is unique per (user, code) - the hard constraint that
  makes double-redemption structurally impossible. The row, the usage
  counter bump and the credit all commit in one atomic unit; the usage
  bump is a conditional update so concurrent redemptions cannot blow the
  cap.
*/
package earning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/points-engine/ledger"
)

// PromoCode is a redeemable code with a point value, usage cap and
// validity window.
type PromoCode struct {
	Code       string
	Points     ledger.Points
	MaxUses    int // 0 = unlimited
	UsedCount  int
	ValidFrom  time.Time
	ValidUntil time.Time
	CreatedAt  time.Time
}

// Active reports whether the code is inside its validity window.
func (c PromoCode) Active(now time.Time) bool {
	if !c.ValidFrom.IsZero() && now.Before(c.ValidFrom) {
		return false
	}
	if !c.ValidUntil.IsZero() && now.After(c.ValidUntil) {
		return false
	}
	return true
}

// PromoRedemption records one user redeeming one code.
type PromoRedemption struct {
	ID        string
	UserID    ledger.UserID
	Code      string
	Points    ledger.Points
	CreatedAt time.Time
}

// PromoStore persists codes and redemptions.
type PromoStore interface {
	GetPromo(ctx context.Context, code string) (*PromoCode, error) // nil when unknown
	SavePromo(ctx context.Context, c PromoCode) error
	ListPromos(ctx context.Context) ([]PromoCode, error)

	// RecordRedemption must fail with ledger.ErrDuplicateSubmission on a
	// (user, code) collision.
	RecordRedemption(ctx context.Context, r PromoRedemption) error

	// IncrementPromoUse bumps used_count, failing with ErrPromoExhausted
	// once the cap is reached. The check and bump are one statement.
	IncrementPromoUse(ctx context.Context, code string) error
}

// =============================================================================
// SERVICE
// =============================================================================

type PromoService struct {
	Ledger *ledger.Service
	Store  PromoStore
}

func NewPromoService(svc *ledger.Service, store PromoStore) *PromoService {
	return &PromoService{Ledger: svc, Store: store}
}

// Redeem credits a promo code's points to the user, once.
func (s *PromoService) Redeem(ctx context.Context, user ledger.UserID, code string, now time.Time) (ledger.Change, error) {
	promo, err := s.Store.GetPromo(ctx, code)
	if err != nil {
		return ledger.Change{}, err
	}
	if promo == nil {
		return ledger.Change{}, fmt.Errorf("%w: %q", ErrPromoNotFound, code)
	}
	if !promo.Active(now.UTC()) {
		return ledger.Change{}, fmt.Errorf("%w: %q", ErrPromoNotActive, code)
	}
	if promo.MaxUses > 0 && promo.UsedCount >= promo.MaxUses {
		return ledger.Change{}, fmt.Errorf("%w: %q", ErrPromoExhausted, code)
	}

	redemption := PromoRedemption{
		ID:        uuid.NewString(),
		UserID:    user,
		Code:      promo.Code,
		Points:    promo.Points,
		CreatedAt: now.UTC(),
	}

	key := fmt.Sprintf("promo_code:%s:%s", user, promo.Code)
	desc := fmt.Sprintf("Promo code %s", promo.Code)

	return s.Ledger.CreditWith(ctx, user, promo.Points, ledger.CausePromoCode, desc, key,
		func(st ledger.Store) error {
			ps, ok := st.(PromoStore)
			if !ok {
				return ledger.ErrStoreRequired
			}
			if err := ps.RecordRedemption(ctx, redemption); err != nil {
				return err
			}
			return ps.IncrementPromoUse(ctx, promo.Code)
		})
}

// CreateCode registers a new promo code (admin surface).
func (s *PromoService) CreateCode(ctx context.Context, c PromoCode) error {
	if c.Points <= 0 {
		return fmt.Errorf("%w: got %d", ledger.ErrInvalidAmount, c.Points)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return s.Store.SavePromo(ctx, c)
}

// ListCodes returns every promo code (admin surface).
func (s *PromoService) ListCodes(ctx context.Context) ([]PromoCode, error) {
	return s.Store.ListPromos(ctx)
}
