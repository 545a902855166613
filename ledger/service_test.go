package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/ledger"
	"github.com/warp/points-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*ledger.Service, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return ledger.NewService(store), store
}

// =============================================================================
// CREDIT TESTS
// =============================================================================

func TestService_Credit_UpdatesProjectionAndAudit(t *testing.T) {
	// GIVEN: A fresh user
	// WHEN: Crediting 100 points
	// THEN: Projection, ledger and audit trail all reflect the credit

	svc, _ := newTestService(t)
	ctx := context.Background()

	change, err := svc.Credit(ctx, "user-1", 100, ledger.CauseDailyCheckIn, "Daily check-in day 1", "daily_check_in:user-1:2026-09-01")
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(0), change.OldPoints)
	assert.Equal(t, ledger.Points(100), change.NewPoints)

	profile, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(100), profile.Points)
	assert.Equal(t, ledger.Points(100), profile.TotalEarned)

	txs, err := svc.History(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.KindEarn, txs[0].Kind)
	assert.Equal(t, ledger.Points(100), txs[0].Amount)

	entries, err := svc.AuditTrail(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.Points(0), entries[0].OldPoints)
	assert.Equal(t, ledger.Points(100), entries[0].NewPoints)
	assert.Equal(t, string(ledger.CauseDailyCheckIn), entries[0].Reason)
	assert.Equal(t, "system", entries[0].ChangedBy)
}

func TestService_Credit_NonPositiveAmount_Rejected(t *testing.T) {
	// GIVEN: A credit attempt with zero and negative amounts
	// WHEN: Crediting
	// THEN: Rejected before any write

	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, "user-1", 0, ledger.CauseAdView, "", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = svc.Credit(ctx, "user-1", -50, ledger.CauseAdView, "", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = svc.Balance(ctx, "user-1")
	assert.True(t, ledger.IsNotFound(err), "no projection should exist after rejected credits")
}

func TestService_Credit_DuplicateIdempotencyKey_Rejected(t *testing.T) {
	// GIVEN: A credit already applied under a key
	// WHEN: Retrying the same key
	// THEN: ErrDuplicateSubmission, balance unchanged

	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, "user-1", 100, ledger.CauseDailyCheckIn, "check-in", "daily_check_in:user-1:2026-09-01")
	require.NoError(t, err)

	_, err = svc.Credit(ctx, "user-1", 100, ledger.CauseDailyCheckIn, "check-in", "daily_check_in:user-1:2026-09-01")
	assert.ErrorIs(t, err, ledger.ErrDuplicateSubmission)

	profile, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(100), profile.Points)
}

// =============================================================================
// DEBIT TESTS
// =============================================================================

func TestService_Debit_DecrementsPointsOnly(t *testing.T) {
	// GIVEN: A user with 500 points
	// WHEN: Redeeming 200
	// THEN: Points drop, lifetime earnings do not

	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, "user-1", 500, ledger.CausePromoCode, "promo", "promo_code:user-1:WELCOME")
	require.NoError(t, err)

	change, err := svc.Debit(ctx, "user-1", 200, ledger.CauseRedemption, "Premium month", "")
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(500), change.OldPoints)
	assert.Equal(t, ledger.Points(300), change.NewPoints)

	profile, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(300), profile.Points)
	assert.Equal(t, ledger.Points(500), profile.TotalEarned)
}

func TestService_Debit_InsufficientBalance_Rejected(t *testing.T) {
	// GIVEN: A user with 50 points
	// WHEN: Redeeming 100
	// THEN: InsufficientBalanceError with details, nothing written

	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, "user-1", 50, ledger.CauseAdView, "ad", "ad_view:user-1:2026-09-01:1")
	require.NoError(t, err)

	_, err = svc.Debit(ctx, "user-1", 100, ledger.CauseRedemption, "too much", "")
	require.Error(t, err)

	var insufficient *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, ledger.Points(50), insufficient.Available)
	assert.Equal(t, ledger.Points(100), insufficient.Requested)

	txs, err := svc.History(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, txs, 1, "failed debit must not append a transaction")
}

func TestService_Debit_UnknownUser_Rejected(t *testing.T) {
	// GIVEN: A user with no ledger history at all
	// WHEN: Redeeming
	// THEN: Insufficient balance, not a crash

	svc, _ := newTestService(t)

	_, err := svc.Debit(context.Background(), "ghost", 10, ledger.CauseRedemption, "", "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestService_ConcurrentDebits_OnlyOneWins(t *testing.T) {
	// GIVEN: A user with exactly 100 points
	// WHEN: Two concurrent debits of 100 race
	// THEN: Exactly one succeeds; the balance never goes negative

	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, "user-1", 100, ledger.CausePromoCode, "promo", "promo_code:user-1:RACE")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Debit(ctx, "user-1", 100, ledger.CauseRedemption, "race", "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one debit should win")

	profile, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(0), profile.Points)
}

func TestService_ConcurrentCredits_NoLostUpdate(t *testing.T) {
	// GIVEN: 20 concurrent credits of 10 points each
	// WHEN: All complete
	// THEN: The projection equals the ledger sum

	svc, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Credit(ctx, "user-1", 10, ledger.CauseAdminAdjustment, "load", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	profile, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(200), profile.Points)
	assert.Equal(t, ledger.Points(200), profile.TotalEarned)
}
