package earning_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/earning"
	"github.com/warp/points-engine/ledger"
)

func newAdWatchService(t *testing.T) (*earning.AdWatchService, *ledger.Service) {
	store := newTestStore(t)
	svc := ledger.NewService(store)
	return earning.NewAdWatchService(svc, store), svc
}

func TestWatchAd_TierProgression(t *testing.T) {
	// GIVEN: A user watching all 10 ads of a day
	// WHEN: Crediting each ad
	// THEN: Rewards step through the tiers; the day totals 170

	ads, svc := newAdWatchService(t)
	ctx := context.Background()

	expected := []ledger.Points{10, 10, 10, 15, 15, 20, 20, 20, 30, 30}
	for i, want := range expected {
		res, err := ads.WatchAd(ctx, "user-1", day(1))
		require.NoError(t, err, "ad %d", i+1)
		assert.Equal(t, i+1, res.WatchedToday)
		assert.Equal(t, want, res.Points, "reward for ad %d", i+1)
	}

	profile, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(170), profile.Points)
}

func TestWatchAd_DailyCap(t *testing.T) {
	// GIVEN: A user at the 10-ad daily cap
	// WHEN: Watching an 11th ad
	// THEN: ErrDailyCapReached; a fresh day starts over at the base tier

	ads, _ := newAdWatchService(t)
	ctx := context.Background()

	for i := 0; i < earning.MaxAdsPerDay; i++ {
		_, err := ads.WatchAd(ctx, "user-1", day(1))
		require.NoError(t, err)
	}

	_, err := ads.WatchAd(ctx, "user-1", day(1))
	assert.ErrorIs(t, err, earning.ErrDailyCapReached)

	res, err := ads.WatchAd(ctx, "user-1", day(2))
	require.NoError(t, err)
	assert.Equal(t, 1, res.WatchedToday)
	assert.Equal(t, ledger.Points(10), res.Points)
}

func TestAdRewardFor_TierBoundaries(t *testing.T) {
	// GIVEN: The tier table
	// WHEN: Asking the reward at each boundary
	// THEN: Tiers unlock at 3, 5 and 8 watched

	assert.Equal(t, ledger.Points(10), earning.AdRewardFor(0))
	assert.Equal(t, ledger.Points(10), earning.AdRewardFor(2))
	assert.Equal(t, ledger.Points(15), earning.AdRewardFor(3))
	assert.Equal(t, ledger.Points(15), earning.AdRewardFor(4))
	assert.Equal(t, ledger.Points(20), earning.AdRewardFor(5))
	assert.Equal(t, ledger.Points(20), earning.AdRewardFor(7))
	assert.Equal(t, ledger.Points(30), earning.AdRewardFor(8))
	assert.Equal(t, ledger.Points(30), earning.AdRewardFor(9))
}
