package earning_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/earning"
	"github.com/warp/points-engine/ledger"
	"github.com/warp/points-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type referralFixture struct {
	Ledger    *ledger.Service
	Referrals *earning.ReferralService
	Promos    *earning.PromoService
	CheckIns  *earning.CheckInService
	Store     *sqlite.Store
}

func newReferralFixture(t *testing.T) referralFixture {
	store := newTestStore(t)
	svc := ledger.NewService(store)
	return referralFixture{
		Ledger:    svc,
		Referrals: earning.NewReferralService(svc, store),
		Promos:    earning.NewPromoService(svc, store),
		CheckIns:  earning.NewCheckInService(svc, store),
		Store:     store,
	}
}

// signUpChain registers D, then C referred by D, B referred by C, and A
// referred by B. Every user starts with the signup bonus.
func signUpChain(t *testing.T, f referralFixture) {
	t.Helper()
	ctx := context.Background()

	d, err := f.Referrals.SignUp(ctx, "D", "")
	require.NoError(t, err)
	c, err := f.Referrals.SignUp(ctx, "C", d.ReferralCode)
	require.NoError(t, err)
	b, err := f.Referrals.SignUp(ctx, "B", c.ReferralCode)
	require.NoError(t, err)
	_, err = f.Referrals.SignUp(ctx, "A", b.ReferralCode)
	require.NoError(t, err)
}

func balance(t *testing.T, svc *ledger.Service, user ledger.UserID) ledger.Points {
	t.Helper()
	profile, err := svc.Balance(context.Background(), user)
	require.NoError(t, err)
	return profile.Points
}

// =============================================================================
// SIGNUP AND ATTRIBUTION
// =============================================================================

func TestSignUp_BonusAndOwnCode(t *testing.T) {
	// GIVEN: A new user without a referrer
	// WHEN: Signing up
	// THEN: Signup bonus credited once; the user gets an own referral code

	f := newReferralFixture(t)
	ctx := context.Background()

	res, err := f.Referrals.SignUp(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Len(t, res.ReferralCode, 8)
	assert.Equal(t, earning.SignupBonus, balance(t, f.Ledger, "user-1"))

	// Retried signup does not double-credit.
	_, err = f.Referrals.SignUp(ctx, "user-1", "")
	assert.ErrorIs(t, err, ledger.ErrDuplicateSubmission)
	assert.Equal(t, earning.SignupBonus, balance(t, f.Ledger, "user-1"))
}

func TestSignUp_UnknownReferralCode(t *testing.T) {
	// GIVEN: A referral code nobody owns
	// WHEN: Signing up with it
	// THEN: ErrReferralCodeNotFound

	f := newReferralFixture(t)

	_, err := f.Referrals.SignUp(context.Background(), "user-1", "XXXXXXXX")
	assert.ErrorIs(t, err, earning.ErrReferralCodeNotFound)
}

func TestSignUp_FailedAttribution_RollsBackBonus(t *testing.T) {
	// GIVEN: An attribution that cannot be recorded (a conflicting edge
	//        already exists for the referrer/referred pair)
	// WHEN: Signing up with the referrer's code
	// THEN: The whole unit rolls back: no bonus, no profile, and the
	//       signup idempotency key is not consumed, so a later signup
	//       still succeeds

	f := newReferralFixture(t)
	ctx := context.Background()

	b, err := f.Referrals.SignUp(ctx, "B", "")
	require.NoError(t, err)

	require.NoError(t, f.Store.SaveEdge(ctx, earning.ReferralEdge{
		ID:         "edge-conflict",
		ReferrerID: "B",
		ReferredID: "A",
		Code:       b.ReferralCode,
		Level:      1,
		Status:     earning.EdgePending,
		CreatedAt:  time.Now().UTC(),
	}))

	_, err = f.Referrals.SignUp(ctx, "A", b.ReferralCode)
	require.ErrorIs(t, err, ledger.ErrDuplicateSubmission)

	_, err = f.Ledger.Balance(ctx, "A")
	assert.True(t, ledger.IsNotFound(err), "bonus must not survive a failed attribution")

	res, err := f.Referrals.SignUp(ctx, "A", "")
	require.NoError(t, err)
	assert.Len(t, res.ReferralCode, 8)
	assert.Equal(t, earning.SignupBonus, balance(t, f.Ledger, "A"))
}

func TestAttribute_SelfReferral_Rejected(t *testing.T) {
	// GIVEN: A user holding their own referral code
	// WHEN: Attributing themselves
	// THEN: ErrSelfReferral

	f := newReferralFixture(t)
	ctx := context.Background()

	res, err := f.Referrals.SignUp(ctx, "user-1", "")
	require.NoError(t, err)

	err = f.Referrals.Attribute(ctx, "user-1", res.ReferralCode)
	assert.ErrorIs(t, err, earning.ErrSelfReferral)
}

// =============================================================================
// COMPLETION AND COMMISSION CASCADE
// =============================================================================

func TestReferral_FirstQualifyingEarn_CascadesThreeLevels(t *testing.T) {
	// GIVEN: Chain D <- C <- B <- A, and a 1000-point promo code
	// WHEN: A redeems the promo (first qualifying earn)
	// THEN: Completion bonuses 500/200/100 and commissions 100/50/20 land
	//       at B, C and D; A keeps the full 1000

	f := newReferralFixture(t)
	ctx := context.Background()
	signUpChain(t, f)

	require.NoError(t, f.Promos.CreateCode(ctx, earning.PromoCode{Code: "MEGA", Points: 1000}))
	_, err := f.Promos.Redeem(ctx, "A", "MEGA", day(1))
	require.NoError(t, err)

	// Each upstream balance: signup 100 + completion bonus + commission.
	assert.Equal(t, ledger.Points(1100), balance(t, f.Ledger, "A"))
	assert.Equal(t, ledger.Points(100+500+100), balance(t, f.Ledger, "B"))
	assert.Equal(t, ledger.Points(100+200+50), balance(t, f.Ledger, "C"))
	assert.Equal(t, ledger.Points(100+100+20), balance(t, f.Ledger, "D"))

	records, err := f.Referrals.Commissions(ctx, "B")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ledger.Points(1000), records[0].OriginalPoints)
	assert.Equal(t, ledger.Points(100), records[0].CommissionPoints)
	assert.Equal(t, 1, records[0].Level)
}

func TestReferral_CompletionBonusPaidOnce(t *testing.T) {
	// GIVEN: A referred user who already completed their referral
	// WHEN: They make a second qualifying earn
	// THEN: Commissions cascade again, completion bonuses do not

	f := newReferralFixture(t)
	ctx := context.Background()
	signUpChain(t, f)

	_, err := f.CheckIns.CheckIn(ctx, "A", day(1)) // 100 points, completes referrals
	require.NoError(t, err)
	afterFirst := balance(t, f.Ledger, "B")

	_, err = f.CheckIns.CheckIn(ctx, "A", day(2)) // 150 points, day 2 of cycle
	require.NoError(t, err)

	// Second earn adds only the 10% commission on 150.
	assert.Equal(t, afterFirst+15, balance(t, f.Ledger, "B"))
}

func TestReferral_CommissionsDoNotCompound(t *testing.T) {
	// GIVEN: B holds commission income from A's earn
	// WHEN: Inspecting C's commissions
	// THEN: C earned only from A's original points; B's commission income
	//       produced no second-order commission

	f := newReferralFixture(t)
	ctx := context.Background()
	signUpChain(t, f)

	require.NoError(t, f.Promos.CreateCode(ctx, earning.PromoCode{Code: "MEGA", Points: 1000}))
	_, err := f.Promos.Redeem(ctx, "A", "MEGA", day(1))
	require.NoError(t, err)

	records, err := f.Referrals.Commissions(ctx, "C")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ledger.UserID("A"), records[0].ReferredID)
	assert.Equal(t, 2, records[0].Level)
	assert.Equal(t, ledger.Points(50), records[0].CommissionPoints)
}

func TestReferral_SubPointCommission_Skipped(t *testing.T) {
	// GIVEN: A qualifying earn of 10 points
	// WHEN: Cascading
	// THEN: Level 1 gets floor(1.0)=1, levels 2 and 3 floor below 1 and
	//       pay nothing

	f := newReferralFixture(t)
	ctx := context.Background()
	signUpChain(t, f)

	require.NoError(t, f.Promos.CreateCode(ctx, earning.PromoCode{Code: "TINY", Points: 10}))
	_, err := f.Promos.Redeem(ctx, "A", "TINY", day(1))
	require.NoError(t, err)

	recordsB, err := f.Referrals.Commissions(ctx, "B")
	require.NoError(t, err)
	require.Len(t, recordsB, 1)
	assert.Equal(t, ledger.Points(1), recordsB[0].CommissionPoints)

	recordsC, err := f.Referrals.Commissions(ctx, "C")
	require.NoError(t, err)
	assert.Empty(t, recordsC, "0.5 floors to zero and is skipped")
}

func TestReferral_NonQualifyingEarn_NoCascade(t *testing.T) {
	// GIVEN: Chain B <- A
	// WHEN: A receives an admin adjustment (non-qualifying cause)
	// THEN: No completion, no commission

	f := newReferralFixture(t)
	ctx := context.Background()

	b, err := f.Referrals.SignUp(ctx, "B", "")
	require.NoError(t, err)
	_, err = f.Referrals.SignUp(ctx, "A", b.ReferralCode)
	require.NoError(t, err)

	_, err = f.Ledger.Credit(ctx, "A", 1000, ledger.CauseAdminAdjustment, "migration", "")
	require.NoError(t, err)

	assert.Equal(t, earning.SignupBonus, balance(t, f.Ledger, "B"))

	records, err := f.Referrals.Commissions(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCommissionFor_FlooredRates(t *testing.T) {
	// GIVEN: The level rate table
	// WHEN: Computing commissions on odd amounts
	// THEN: Results floor, never round up

	assert.Equal(t, ledger.Points(100), earning.CommissionFor(1000, 1))
	assert.Equal(t, ledger.Points(50), earning.CommissionFor(1000, 2))
	assert.Equal(t, ledger.Points(20), earning.CommissionFor(1000, 3))

	assert.Equal(t, ledger.Points(9), earning.CommissionFor(99, 1))
	assert.Equal(t, ledger.Points(4), earning.CommissionFor(99, 2))
	assert.Equal(t, ledger.Points(1), earning.CommissionFor(99, 3))
}
