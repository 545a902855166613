/*
checkin.go - Daily check-in with escalating streak cycle

REWARD CURVE:
  7-day cycle. Days 1-6 pay fixed escalating amounts; day 7 draws from a
  weighted random distribution (see policies.go). Missing a day resets
  the cycle to day 1.

IDEMPOTENCY:
  One check-in per user per calendar day, enforced twice: a unique
  (user, date) check-in row and a "daily_check_in:<user>:<date>"
  idempotency key on the transaction. Both live in the same atomic unit
  as the credit, so a retried client call cannot double-credit.
*/
package earning

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/warp/points-engine/ledger"
)

// CheckInRecord is one completed daily check-in.
type CheckInRecord struct {
	UserID     ledger.UserID
	Date       time.Time // calendar day, UTC midnight
	DayInCycle int       // 1..7
	Streak     int       // consecutive days including this one
	Points     ledger.Points
	CreatedAt  time.Time
}

// CheckInStore persists check-in records. SaveCheckIn must fail with
// ledger.ErrDuplicateSubmission on a (user, date) collision.
type CheckInStore interface {
	LastCheckIn(ctx context.Context, user ledger.UserID) (*CheckInRecord, error)
	SaveCheckIn(ctx context.Context, rec CheckInRecord) error
}

// =============================================================================
// SERVICE
// =============================================================================

type CheckInService struct {
	Ledger *ledger.Service
	Store  CheckInStore

	mu  sync.Mutex
	rng *rand.Rand
}

// NewCheckInService seeds the day-7 draw from the clock. Tests inject a
// fixed-seed source via NewCheckInServiceWithRand.
func NewCheckInService(svc *ledger.Service, store CheckInStore) *CheckInService {
	return NewCheckInServiceWithRand(svc, store, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func NewCheckInServiceWithRand(svc *ledger.Service, store CheckInStore, rng *rand.Rand) *CheckInService {
	return &CheckInService{Ledger: svc, Store: store, rng: rng}
}

type CheckInResult struct {
	DayInCycle int
	Streak     int
	Points     ledger.Points
	Change     ledger.Change
}

// CheckIn records today's check-in and credits the cycle reward.
// Returns ledger.ErrDuplicateSubmission if the user already checked in
// on the given day.
func (s *CheckInService) CheckIn(ctx context.Context, user ledger.UserID, today time.Time) (CheckInResult, error) {
	day := truncateDay(today)

	last, err := s.Store.LastCheckIn(ctx, user)
	if err != nil {
		return CheckInResult{}, err
	}

	dayInCycle, streak := 1, 1
	if last != nil {
		lastDay := truncateDay(last.Date)
		switch {
		case lastDay.Equal(day):
			return CheckInResult{}, fmt.Errorf("%w: already checked in on %s",
				ledger.ErrDuplicateSubmission, day.Format("2006-01-02"))
		case lastDay.Equal(day.AddDate(0, 0, -1)):
			dayInCycle = last.DayInCycle%CheckInCycleLength + 1
			streak = last.Streak + 1
		}
		// Any older check-in: cycle resets to day 1.
	}

	reward := s.rewardFor(dayInCycle)

	rec := CheckInRecord{
		UserID:     user,
		Date:       day,
		DayInCycle: dayInCycle,
		Streak:     streak,
		Points:     reward,
		CreatedAt:  time.Now().UTC(),
	}

	key := fmt.Sprintf("daily_check_in:%s:%s", user, day.Format("2006-01-02"))
	desc := fmt.Sprintf("Daily check-in day %d (streak %d)", dayInCycle, streak)

	change, err := s.Ledger.CreditWith(ctx, user, reward, ledger.CauseDailyCheckIn, desc, key,
		func(st ledger.Store) error {
			cs, ok := st.(CheckInStore)
			if !ok {
				return ledger.ErrStoreRequired
			}
			return cs.SaveCheckIn(ctx, rec)
		})
	if err != nil {
		return CheckInResult{}, err
	}

	return CheckInResult{
		DayInCycle: dayInCycle,
		Streak:     streak,
		Points:     reward,
		Change:     change,
	}, nil
}

func (s *CheckInService) rewardFor(dayInCycle int) ledger.Points {
	if dayInCycle < CheckInCycleLength {
		return CheckInRewards[dayInCycle-1]
	}
	return s.drawDaySeven()
}

// drawDaySeven picks a bucket by cumulative probability, then a uniform
// value inside it.
func (s *CheckInService) drawDaySeven() ledger.Points {
	s.mu.Lock()
	defer s.mu.Unlock()

	roll := s.rng.Float64()
	cumulative := 0.0
	for _, bucket := range DaySevenBuckets {
		cumulative += bucket.Probability
		if roll < cumulative {
			span := int64(bucket.Max - bucket.Min + 1)
			return bucket.Min + ledger.Points(s.rng.Int63n(span))
		}
	}
	last := DaySevenBuckets[len(DaySevenBuckets)-1]
	return last.Min + ledger.Points(s.rng.Int63n(int64(last.Max-last.Min+1)))
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
