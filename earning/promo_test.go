package earning_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/earning"
	"github.com/warp/points-engine/ledger"
)

func newPromoService(t *testing.T) (*earning.PromoService, *ledger.Service) {
	store := newTestStore(t)
	svc := ledger.NewService(store)
	return earning.NewPromoService(svc, store), svc
}

func TestPromo_RedeemOnce(t *testing.T) {
	// GIVEN: An active promo code worth 250 points
	// WHEN: A user redeems it, then retries
	// THEN: First succeeds, retry fails with ErrDuplicateSubmission, the
	//       balance is credited exactly once

	promos, svc := newPromoService(t)
	ctx := context.Background()
	now := day(1)

	require.NoError(t, promos.CreateCode(ctx, earning.PromoCode{Code: "WELCOME250", Points: 250}))

	_, err := promos.Redeem(ctx, "user-1", "WELCOME250", now)
	require.NoError(t, err)

	_, err = promos.Redeem(ctx, "user-1", "WELCOME250", now)
	assert.ErrorIs(t, err, ledger.ErrDuplicateSubmission)

	profile, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(250), profile.Points)
}

func TestPromo_UnknownCode(t *testing.T) {
	// GIVEN: No such code
	// WHEN: Redeeming
	// THEN: ErrPromoNotFound

	promos, _ := newPromoService(t)

	_, err := promos.Redeem(context.Background(), "user-1", "NOPE", day(1))
	assert.ErrorIs(t, err, earning.ErrPromoNotFound)
}

func TestPromo_ValidityWindow(t *testing.T) {
	// GIVEN: A code valid only during January
	// WHEN: Redeeming before, during and after the window
	// THEN: Only the in-window redemption succeeds

	promos, _ := newPromoService(t)
	ctx := context.Background()

	require.NoError(t, promos.CreateCode(ctx, earning.PromoCode{
		Code:       "JAN",
		Points:     100,
		ValidFrom:  time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil: time.Date(2026, time.January, 31, 23, 59, 59, 0, time.UTC),
	}))

	_, err := promos.Redeem(ctx, "early", "JAN", time.Date(2025, time.December, 25, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, earning.ErrPromoNotActive)

	_, err = promos.Redeem(ctx, "on-time", "JAN", time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)

	_, err = promos.Redeem(ctx, "late", "JAN", time.Date(2026, time.February, 2, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, earning.ErrPromoNotActive)
}

func TestPromo_UsageCap(t *testing.T) {
	// GIVEN: A code capped at 2 uses
	// WHEN: Three different users redeem
	// THEN: The third fails with ErrPromoExhausted

	promos, _ := newPromoService(t)
	ctx := context.Background()
	now := day(1)

	require.NoError(t, promos.CreateCode(ctx, earning.PromoCode{Code: "CAP2", Points: 50, MaxUses: 2}))

	_, err := promos.Redeem(ctx, "user-1", "CAP2", now)
	require.NoError(t, err)
	_, err = promos.Redeem(ctx, "user-2", "CAP2", now)
	require.NoError(t, err)

	_, err = promos.Redeem(ctx, "user-3", "CAP2", now)
	assert.ErrorIs(t, err, earning.ErrPromoExhausted)
}

func TestPromo_CreateCode_RejectsNonPositivePoints(t *testing.T) {
	// GIVEN: A promo code worth zero points
	// WHEN: Creating it
	// THEN: Rejected up front

	promos, _ := newPromoService(t)

	err := promos.CreateCode(context.Background(), earning.PromoCode{Code: "FREE", Points: 0})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}
