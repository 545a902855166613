/*
guard.go - Anti-regression check on the balance projection

PURPOSE:
  Balances have historically been corrupted by unrelated bugs silently
  subtracting points. The guard converts silent corruption into a loud,
  rejected operation: any attempted decrease of a user's points must be
  backed by a legitimate cause or it does not happen.

ALLOWED DECREASE CONDITIONS:
  a) A matching redeem transaction - either the one being applied in the
     same atomic unit, or one appended within a short preceding window -
     whose amount equals the decrease.
  b) The caller is explicitly a privileged administrative context.

Anything else is rejected with ErrUnauthorizedDeduction and the
projection is left unchanged.
*/
package ledger

import (
	"context"
	"time"

	"github.com/warp/points-engine/auth"
)

// DefaultGuardWindow bounds how far back a justifying redeem transaction
// may have been appended by out-of-unit callers.
const DefaultGuardWindow = 5 * time.Second

type Guard struct {
	// Window for condition (a) when the justifying transaction is not
	// part of the current unit. Zero means DefaultGuardWindow.
	Window time.Duration
}

func NewGuard() *Guard {
	return &Guard{Window: DefaultGuardWindow}
}

// Authorize validates a proposed points decrease from old to new.
// justification, when non-nil, is the transaction being applied in the
// same atomic unit. Increases and no-ops always pass.
func (g *Guard) Authorize(ctx context.Context, st Store, user UserID, old, new Points, justification *Transaction) error {
	if new >= old {
		return nil
	}

	if auth.IsAdmin(ctx) {
		return nil
	}

	decrease := old - new
	if justification != nil &&
		justification.Kind == KindRedeem &&
		justification.UserID == user &&
		justification.Amount >= decrease {
		// Amount may exceed the decrease when the projection clamps at
		// zero; the ledger still records the full redeem magnitude.
		return nil
	}

	window := g.Window
	if window == 0 {
		window = DefaultGuardWindow
	}
	recent, err := st.TransactionsSince(ctx, user, time.Now().UTC().Add(-window))
	if err != nil {
		return err
	}
	// Out-of-unit justification is strict equality. The >= relaxation
	// above exists only for the in-unit clamp-at-zero case, which the
	// window cannot distinguish from an unrelated redeem.
	for _, tx := range recent {
		if tx.Kind == KindRedeem && tx.Amount == decrease {
			return nil
		}
	}

	return &UnauthorizedDeductionError{
		UserID:    user,
		OldPoints: old,
		NewPoints: new,
		Detail:    "no matching redeem transaction and caller is not privileged",
	}
}
