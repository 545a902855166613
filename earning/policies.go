/*
Package earning implements the mutation sources that feed the points
ledger: daily check-ins, ad watching, promo codes, task completion and
the referral engine.

PURPOSE:
  Each feature validates its own eligibility, then appends exactly one
  transaction through the ledger service - never touching the projection
  directly. Feature uniqueness rows (check-in records, promo
  redemptions) are written inside the same atomic unit as the credit, so
  eligibility and crediting commit together.

KEY DIFFERENCES BETWEEN SOURCES:
  - Check-in: one per user per calendar day, escalating 7-day cycle
  - Ad watch: several per day, tiered rewards, hard daily cap
  - Promo:    one per (user, code), bounded by uses and validity window
  - Referral: reacts to other users' earns (completion + commissions)

SEE ALSO:
  - policies.go (this file): every tunable reward value in one place
  - ledger/service.go: the combined append+project operation
*/
package earning

import (
	"github.com/shopspring/decimal"

	"github.com/warp/points-engine/ledger"
)

// =============================================================================
// DAILY CHECK-IN CURVE
// =============================================================================

// CheckInCycleLength is the length of the escalating streak cycle.
const CheckInCycleLength = 7

// CheckInRewards are the fixed rewards for days 1-6 of the cycle.
// Day 7 draws from the weighted buckets below.
var CheckInRewards = [CheckInCycleLength - 1]ledger.Points{
	100, 150, 200, 250, 300, 350,
}

// DaySevenBucket is one tier of the day-7 bonus draw.
type DaySevenBucket struct {
	Probability float64 // cumulative weights must sum to 1
	Min, Max    ledger.Points
}

// DaySevenBuckets is deliberately front-loaded: most draws land in the
// lowest band.
var DaySevenBuckets = []DaySevenBucket{
	{Probability: 0.80, Min: 300, Max: 400},
	{Probability: 0.15, Min: 401, Max: 600},
	{Probability: 0.04, Min: 601, Max: 800},
	{Probability: 0.01, Min: 801, Max: 1000},
}

// =============================================================================
// AD-WATCH TIERS
// =============================================================================

// AdTier rewards the nth ad of the day once MinWatched ads are behind it.
type AdTier struct {
	MinWatched int // ads already watched today to unlock this tier
	Reward     ledger.Points
}

// AdTiers escalate as more ads are watched the same day.
var AdTiers = []AdTier{
	{MinWatched: 0, Reward: 10},
	{MinWatched: 3, Reward: 15},
	{MinWatched: 5, Reward: 20},
	{MinWatched: 8, Reward: 30},
}

// MaxAdsPerDay caps ad rewards per user per calendar day.
const MaxAdsPerDay = 10

// AdRewardFor returns the reward for the next ad given how many were
// already watched today.
func AdRewardFor(watchedToday int) ledger.Points {
	reward := AdTiers[0].Reward
	for _, tier := range AdTiers {
		if watchedToday >= tier.MinWatched {
			reward = tier.Reward
		}
	}
	return reward
}

// =============================================================================
// REFERRAL RATES
// =============================================================================

// MaxReferralLevels bounds the upward commission walk. The cascade is a
// bounded loop, never recursion, so malformed referral cycles cannot
// prevent termination.
const MaxReferralLevels = 3

// CommissionRates are percentage-of-earnings payouts per level
// (level 1 = direct referrer).
var CommissionRates = [MaxReferralLevels]decimal.Decimal{
	decimal.NewFromFloat(0.10),
	decimal.NewFromFloat(0.05),
	decimal.NewFromFloat(0.02),
}

// CompletionBonuses are the one-time flat bonuses paid when a referred
// user completes their first qualifying action.
var CompletionBonuses = [MaxReferralLevels]ledger.Points{500, 200, 100}

// CommissionFor computes floor(amount * rate) for a level (1-based).
func CommissionFor(amount ledger.Points, level int) ledger.Points {
	rate := CommissionRates[level-1]
	return ledger.Points(decimal.NewFromInt(int64(amount)).Mul(rate).IntPart())
}

// qualifyingCauses are the earn causes that complete referrals and
// generate commissions. Commission and bonus transactions are excluded
// so cascades never compound.
var qualifyingCauses = map[ledger.Cause]bool{
	ledger.CauseTaskCompletion: true,
	ledger.CauseDailyCheckIn:   true,
	ledger.CauseAdView:         true,
	ledger.CausePromoCode:      true,
}

// IsQualifyingCause reports whether an earn cause triggers referral
// completion and commission.
func IsQualifyingCause(c ledger.Cause) bool {
	return qualifyingCauses[c]
}

// =============================================================================
// SIGNUP
// =============================================================================

// SignupBonus is credited once per user at registration.
const SignupBonus ledger.Points = 100
