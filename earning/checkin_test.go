package earning_test

import (
	"context"
	"math/rand"
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

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newCheckInService(t *testing.T) (*earning.CheckInService, *ledger.Service) {
	store := newTestStore(t)
	svc := ledger.NewService(store)
	// Fixed seed keeps the day-7 draw deterministic per test binary.
	checkins := earning.NewCheckInServiceWithRand(svc, store, rand.New(rand.NewSource(1)))
	return checkins, svc
}

func day(yearDay int) time.Time {
	return time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, yearDay-1)
}

// =============================================================================
// CHECK-IN TESTS
// =============================================================================

func TestCheckIn_FullCycleCurve(t *testing.T) {
	// GIVEN: Seven consecutive daily check-ins
	// WHEN: Checking in each day
	// THEN: Days 1-6 pay the fixed curve; day 7 draws from 300-1000

	checkins, svc := newCheckInService(t)
	ctx := context.Background()

	expected := []ledger.Points{100, 150, 200, 250, 300, 350}
	for i := 0; i < 6; i++ {
		res, err := checkins.CheckIn(ctx, "user-1", day(i+1))
		require.NoError(t, err)
		assert.Equal(t, i+1, res.DayInCycle)
		assert.Equal(t, i+1, res.Streak)
		assert.Equal(t, expected[i], res.Points, "day %d reward", i+1)
	}

	res, err := checkins.CheckIn(ctx, "user-1", day(7))
	require.NoError(t, err)
	assert.Equal(t, 7, res.DayInCycle)
	assert.Equal(t, 7, res.Streak)
	assert.GreaterOrEqual(t, res.Points, ledger.Points(300))
	assert.LessOrEqual(t, res.Points, ledger.Points(1000))

	// Day 8: cycle wraps to day 1, streak keeps counting.
	res, err = checkins.CheckIn(ctx, "user-1", day(8))
	require.NoError(t, err)
	assert.Equal(t, 1, res.DayInCycle)
	assert.Equal(t, 8, res.Streak)
	assert.Equal(t, ledger.Points(100), res.Points)

	profile, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, profile.Points, profile.TotalEarned)
}

func TestCheckIn_MissedDay_ResetsCycle(t *testing.T) {
	// GIVEN: Check-ins on day 1 and day 2, then a gap
	// WHEN: Checking in on day 4
	// THEN: Cycle and streak reset to 1

	checkins, _ := newCheckInService(t)
	ctx := context.Background()

	_, err := checkins.CheckIn(ctx, "user-1", day(1))
	require.NoError(t, err)
	_, err = checkins.CheckIn(ctx, "user-1", day(2))
	require.NoError(t, err)

	res, err := checkins.CheckIn(ctx, "user-1", day(4))
	require.NoError(t, err)
	assert.Equal(t, 1, res.DayInCycle)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, ledger.Points(100), res.Points)
}

func TestCheckIn_SameDayTwice_Rejected(t *testing.T) {
	// GIVEN: A user already checked in today
	// WHEN: Checking in again, even at a different hour
	// THEN: ErrDuplicateSubmission; the balance is credited once

	checkins, svc := newCheckInService(t)
	ctx := context.Background()

	_, err := checkins.CheckIn(ctx, "user-1", day(1))
	require.NoError(t, err)

	_, err = checkins.CheckIn(ctx, "user-1", day(1).Add(9*time.Hour))
	assert.ErrorIs(t, err, ledger.ErrDuplicateSubmission)

	profile, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(100), profile.Points)
}

func TestCheckIn_DaySevenDraw_StaysInBuckets(t *testing.T) {
	// GIVEN: Many independent users reaching day 7
	// WHEN: Drawing the bonus
	// THEN: Every draw lands inside the configured bucket range

	checkins, _ := newCheckInService(t)
	ctx := context.Background()

	for u := 0; u < 20; u++ {
		user := ledger.UserID(string(rune('a'+u)) + "-user")
		for d := 1; d <= 6; d++ {
			_, err := checkins.CheckIn(ctx, user, day(d))
			require.NoError(t, err)
		}
		res, err := checkins.CheckIn(ctx, user, day(7))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Points, ledger.Points(300))
		assert.LessOrEqual(t, res.Points, ledger.Points(1000))
	}
}
