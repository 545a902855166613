/*
updater.go - The balance updater: apply one ledger entry to the projection

PURPOSE:
  The single logical responsibility that turns a durably appended
  transaction into a projection change. It is not a separate step call
  sites can forget: the Service (service.go) runs it inside the same
  storage transaction as the append, and mutation sources never write to
  the projection directly. This kills the "my feature updated the
  transaction log but forgot to update the cached balance" bug class at
  the structural level - the append and the update are one unit.

CONTRACT:
  - amount must be > 0 (direction comes from Kind), else ErrInvalidAmount
  - earn:   points += amount; total_earned += amount
  - redeem: points = max(0, points - amount) - the updater clamps rather
    than erroring, because the log is the authority; spend paths pre-check
    balance before appending (see Service.Debit)
  - every committed change is mirrored into the audit log
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/points-engine/auth"
)

// Apply appends tx to the ledger and folds it into the user's balance
// projection, guarded, within the store view it is given. Callers that
// need atomicity (all of them) pass a transaction-scoped store.
func Apply(ctx context.Context, st Store, g *Guard, tx Transaction) (Change, error) {
	if tx.Amount <= 0 {
		return Change{}, fmt.Errorf("%w: got %d", ErrInvalidAmount, tx.Amount)
	}
	if tx.Kind != KindEarn && tx.Kind != KindRedeem {
		return Change{}, fmt.Errorf("unknown transaction kind %q", tx.Kind)
	}

	if err := st.AppendTransaction(ctx, tx); err != nil {
		return Change{}, err
	}

	profile, err := st.GetProfile(ctx, tx.UserID)
	if err != nil {
		if !IsNotFound(err) {
			return Change{}, err
		}
		profile = &Profile{UserID: tx.UserID}
	}

	old := profile.Points
	switch tx.Kind {
	case KindEarn:
		profile.Points += tx.Amount
		profile.TotalEarned += tx.Amount
	case KindRedeem:
		profile.Points -= tx.Amount
		if profile.Points < 0 {
			profile.Points = 0
		}
	}

	if err := g.Authorize(ctx, st, tx.UserID, old, profile.Points, &tx); err != nil {
		return Change{}, err
	}

	profile.UpdatedAt = tx.CreatedAt
	if err := st.SaveProfile(ctx, *profile); err != nil {
		return Change{}, err
	}

	if err := st.AppendAudit(ctx, AuditEntry{
		ID:        NewAuditEntryID(),
		UserID:    tx.UserID,
		OldPoints: old,
		NewPoints: profile.Points,
		Reason:    string(tx.Cause),
		ChangedBy: changedBy(ctx),
		ChangedAt: tx.CreatedAt,
	}); err != nil {
		return Change{}, err
	}

	return Change{
		UserID:        tx.UserID,
		TransactionID: tx.ID,
		OldPoints:     old,
		NewPoints:     profile.Points,
	}, nil
}

func changedBy(ctx context.Context) string {
	if auth.IsAdmin(ctx) {
		return "admin"
	}
	return "system"
}

func now() time.Time {
	return time.Now().UTC()
}
