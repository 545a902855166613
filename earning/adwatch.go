/*
adwatch.go - Tiered per-ad rewards with a daily cap

The reward per ad steps up as more ads are watched the same day (see
AdTiers in policies.go), capped at MaxAdsPerDay. The count of ads
watched today comes from the ledger itself - ad_view transactions are
the record - so there is no second counter to drift.
*/
package earning

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/points-engine/ledger"
)

type AdWatchService struct {
	Ledger *ledger.Service
	Store  ledger.Store
}

func NewAdWatchService(svc *ledger.Service, store ledger.Store) *AdWatchService {
	return &AdWatchService{Ledger: svc, Store: store}
}

type AdWatchResult struct {
	WatchedToday int // including this ad
	Points       ledger.Points
	Change       ledger.Change
}

// WatchAd credits the tiered reward for the next ad of the day.
// Returns ErrDailyCapReached at the cap; a concurrent duplicate of the
// same ordinal fails on the idempotency key.
func (s *AdWatchService) WatchAd(ctx context.Context, user ledger.UserID, today time.Time) (AdWatchResult, error) {
	day := truncateDay(today)

	watched, err := s.Store.CountByCauseOn(ctx, user, ledger.CauseAdView, day)
	if err != nil {
		return AdWatchResult{}, err
	}
	if watched >= MaxAdsPerDay {
		return AdWatchResult{}, fmt.Errorf("%w: %d ads on %s",
			ErrDailyCapReached, watched, day.Format("2006-01-02"))
	}

	reward := AdRewardFor(watched)
	ordinal := watched + 1

	// The ordinal in the key serializes concurrent watches: two requests
	// that both observed the same count collide on the constraint.
	key := fmt.Sprintf("ad_view:%s:%s:%d", user, day.Format("2006-01-02"), ordinal)
	desc := fmt.Sprintf("Ad view %d of %d", ordinal, MaxAdsPerDay)

	change, err := s.Ledger.Credit(ctx, user, reward, ledger.CauseAdView, desc, key)
	if err != nil {
		return AdWatchResult{}, err
	}

	return AdWatchResult{WatchedToday: ordinal, Points: reward, Change: change}, nil
}
