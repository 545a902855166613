/*
repair.go - Monotonic reconciliation of drifted projections

PURPOSE:
  Reconciles a drifted projection toward ledger truth under a strict
  raise-only policy:

    calculated > current  -> raise points/total_earned, audit EMERGENCY_FIX
    calculated < current  -> touch nothing, flag for human review
    equal                 -> no-op

  The asymmetry is deliberate. An engine correcting billing-like
  balances must never be the mechanism that takes value away from a
  user, even when "correct" by ledger math - the ledger itself may be
  incomplete after migration gaps.

IDEMPOTENCY:
  Each invocation carries a run identifier written into the audit trail.
  A per-user in-flight set prevents the same user being repaired by two
  concurrent runs, which would double-fire audit side effects. Bulk runs
  process users independently; one user's failure never aborts the rest.
*/
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// RepairRunPrefix marks audit entries written by the repair engine.
const RepairRunPrefix = "repair:"

// RepairReason tags every repair-engine audit entry.
const RepairReason = "EMERGENCY_FIX"

type RepairResult struct {
	UserID         UserID
	OldPoints      Points
	NewPoints      Points
	OldTotalEarned Points
	NewTotalEarned Points
	Fixed          bool

	// Flagged holds overstatement descriptions left for human review.
	Flagged []string
}

type BulkRepairResult struct {
	RunID        string
	UsersChecked int
	UsersFixed   int
	Fixes        []string
	IssuesFound  []string
}

// =============================================================================
// REPAIRER
// =============================================================================

type Repairer struct {
	Store TxStore
	Guard *Guard

	mu       sync.Mutex
	inflight map[UserID]bool
}

func NewRepairer(store TxStore, guard *Guard) *Repairer {
	return &Repairer{Store: store, Guard: guard, inflight: make(map[UserID]bool)}
}

// RepairUser reconciles one user's projection. Raise-only.
func (r *Repairer) RepairUser(ctx context.Context, user UserID) (RepairResult, error) {
	runID := RepairRunPrefix + uuid.NewString()
	return r.repairUser(ctx, user, runID)
}

// RepairAll reconciles every known user under one run identifier.
// Per-user failures are collected, not fatal.
func (r *Repairer) RepairAll(ctx context.Context) (BulkRepairResult, error) {
	runID := RepairRunPrefix + uuid.NewString()
	result := BulkRepairResult{RunID: runID}

	users, err := r.Store.ListUsers(ctx)
	if err != nil {
		return result, err
	}

	for _, user := range users {
		res, err := r.repairUser(ctx, user, runID)
		if err != nil {
			result.IssuesFound = append(result.IssuesFound,
				fmt.Sprintf("%s: repair failed: %v", user, err))
			continue
		}
		result.UsersChecked++
		if res.Fixed {
			result.UsersFixed++
			result.Fixes = append(result.Fixes,
				fmt.Sprintf("%s: points %d -> %d, total_earned %d -> %d",
					user, res.OldPoints, res.NewPoints, res.OldTotalEarned, res.NewTotalEarned))
		}
		result.IssuesFound = append(result.IssuesFound, res.Flagged...)
	}

	return result, nil
}

func (r *Repairer) repairUser(ctx context.Context, user UserID, runID string) (RepairResult, error) {
	if err := r.acquire(user); err != nil {
		return RepairResult{}, err
	}
	defer r.release(user)

	var result RepairResult
	err := r.Store.WithTx(ctx, func(st Store) error {
		txs, err := st.Transactions(ctx, user)
		if err != nil {
			return err
		}
		calcPoints, calcTotal := Replay(txs)

		profile, err := st.GetProfile(ctx, user)
		if err != nil {
			if !IsNotFound(err) {
				return err
			}
			profile = &Profile{UserID: user}
		}

		result = RepairResult{
			UserID:         user,
			OldPoints:      profile.Points,
			NewPoints:      profile.Points,
			OldTotalEarned: profile.TotalEarned,
			NewTotalEarned: profile.TotalEarned,
		}

		// Raise-only: never lower, flag instead.
		if calcPoints < profile.Points {
			result.Flagged = append(result.Flagged,
				fmt.Sprintf("%s: points overstated: has %d, ledger says %d - left for human review",
					user, profile.Points, calcPoints))
		}
		if calcTotal < profile.TotalEarned {
			result.Flagged = append(result.Flagged,
				fmt.Sprintf("%s: total_earned overstated: has %d, ledger says %d - left for human review",
					user, profile.TotalEarned, calcTotal))
		}

		raisePoints := calcPoints > profile.Points
		raiseTotal := calcTotal > profile.TotalEarned
		if !raisePoints && !raiseTotal {
			return nil
		}

		old := profile.Points
		if raisePoints {
			profile.Points = calcPoints
		}
		if raiseTotal {
			profile.TotalEarned = calcTotal
		}
		profile.UpdatedAt = now()

		if r.Guard != nil {
			if err := r.Guard.Authorize(ctx, st, user, old, profile.Points, nil); err != nil {
				return err
			}
		}
		if err := st.SaveProfile(ctx, *profile); err != nil {
			return err
		}
		if err := st.AppendAudit(ctx, AuditEntry{
			ID:        NewAuditEntryID(),
			UserID:    user,
			OldPoints: old,
			NewPoints: profile.Points,
			Reason:    RepairReason,
			ChangedBy: runID,
			ChangedAt: profile.UpdatedAt,
		}); err != nil {
			return err
		}

		result.NewPoints = profile.Points
		result.NewTotalEarned = profile.TotalEarned
		result.Fixed = true
		return nil
	})
	if err != nil {
		return RepairResult{}, err
	}
	return result, nil
}

func (r *Repairer) acquire(user UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[user] {
		return fmt.Errorf("%w: %s", ErrRepairInProgress, user)
	}
	r.inflight[user] = true
	return nil
}

func (r *Repairer) release(user UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, user)
}
