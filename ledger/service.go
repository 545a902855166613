/*
service.go - The combined credit/debit operation exposed to all features

PURPOSE:
  Every mutation source (check-in, ads, promo codes, referrals, admin
  adjustments, subscription redemption) credits or debits points through
  this service and nothing else. Each call is one atomic unit: feature
  uniqueness writes, the ledger append, the projection update and the
  audit entry all commit or roll back together.

CONCURRENCY:
  The balance read-modify-write is serialized per user with a keyed
  mutex on top of the store transaction, so two concurrent earns for the
  same user cannot lose an update and two concurrent debits cannot both
  pass the balance pre-check.

EARN HOOKS:
  Cross-cutting reactions to earned points (the referral commission
  cascade) register as hooks. Hooks run inside the same storage
  transaction as the triggering credit; a hook failure rolls the whole
  unit back, never leaving a commission without its source.
*/
package ledger

import (
	"context"
	"fmt"
	"sync"
)

// EarnHook reacts to a committed-in-unit earn transaction. The store it
// receives is scoped to the same transaction as the triggering credit.
type EarnHook func(ctx context.Context, st Store, tx Transaction) error

type Service struct {
	store TxStore
	guard *Guard

	hookMu sync.RWMutex
	hooks  []EarnHook

	locks sync.Map // UserID -> *sync.Mutex
}

func NewService(store TxStore) *Service {
	return &Service{store: store, guard: NewGuard()}
}

// RegisterEarnHook adds a reaction to earn transactions. Hooks must
// tolerate being invoked for any earn cause and filter for themselves.
func (s *Service) RegisterEarnHook(h EarnHook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Guard returns the projection guard, shared with the repair engine.
func (s *Service) Guard() *Guard { return s.guard }

// =============================================================================
// CREDIT / DEBIT
// =============================================================================

// Credit appends an earn transaction and applies it to the projection.
// idempotencyKey may be empty for sources without a natural period key
// (admin adjustments).
func (s *Service) Credit(ctx context.Context, user UserID, amount Points, cause Cause, description, idempotencyKey string) (Change, error) {
	return s.CreditWith(ctx, user, amount, cause, description, idempotencyKey, nil)
}

// CreditWith is Credit with a feature-supplied step running first inside
// the same atomic unit. Features use it to place their uniqueness writes
// (promo redemption rows, check-in records) in the unit, so eligibility
// and crediting commit together.
func (s *Service) CreditWith(ctx context.Context, user UserID, amount Points, cause Cause, description, idempotencyKey string, pre func(Store) error) (Change, error) {
	if amount <= 0 {
		return Change{}, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}

	unlock := s.lock(user)
	defer unlock()

	var change Change
	err := s.store.WithTx(ctx, func(st Store) error {
		if pre != nil {
			if err := pre(st); err != nil {
				return err
			}
		}

		tx := Transaction{
			ID:             NewTransactionID(),
			UserID:         user,
			Kind:           KindEarn,
			Amount:         amount,
			Cause:          cause,
			Description:    description,
			IdempotencyKey: idempotencyKey,
			CreatedAt:      now(),
		}

		var err error
		change, err = Apply(ctx, st, s.guard, tx)
		if err != nil {
			return err
		}

		return s.runHooks(ctx, st, tx)
	})
	if err != nil {
		return Change{}, err
	}
	return change, nil
}

// Debit appends a redeem transaction after a balance pre-check. The
// pre-check, append and projection decrement are one atomic unit per
// user, so two concurrent debits can never both pass the check.
func (s *Service) Debit(ctx context.Context, user UserID, amount Points, cause Cause, description, idempotencyKey string) (Change, error) {
	return s.DebitWith(ctx, user, amount, cause, description, idempotencyKey, nil)
}

// DebitWith is Debit with a feature-supplied step running first inside
// the same atomic unit.
func (s *Service) DebitWith(ctx context.Context, user UserID, amount Points, cause Cause, description, idempotencyKey string, pre func(Store) error) (Change, error) {
	if amount <= 0 {
		return Change{}, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}

	unlock := s.lock(user)
	defer unlock()

	var change Change
	err := s.store.WithTx(ctx, func(st Store) error {
		if pre != nil {
			if err := pre(st); err != nil {
				return err
			}
		}

		available := Points(0)
		profile, err := st.GetProfile(ctx, user)
		if err != nil && !IsNotFound(err) {
			return err
		}
		if profile != nil {
			available = profile.Points
		}
		if available < amount {
			return &InsufficientBalanceError{UserID: user, Available: available, Requested: amount}
		}

		tx := Transaction{
			ID:             NewTransactionID(),
			UserID:         user,
			Kind:           KindRedeem,
			Amount:         amount,
			Cause:          cause,
			Description:    description,
			IdempotencyKey: idempotencyKey,
			CreatedAt:      now(),
		}

		change, err = Apply(ctx, st, s.guard, tx)
		return err
	})
	if err != nil {
		return Change{}, err
	}
	return change, nil
}

func (s *Service) runHooks(ctx context.Context, st Store, tx Transaction) error {
	s.hookMu.RLock()
	hooks := s.hooks
	s.hookMu.RUnlock()

	for _, h := range hooks {
		if err := h(ctx, st, tx); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Balance returns the cached projection for a user.
func (s *Service) Balance(ctx context.Context, user UserID) (*Profile, error) {
	return s.store.GetProfile(ctx, user)
}

// History returns a user's ledger entries, oldest first.
func (s *Service) History(ctx context.Context, user UserID) ([]Transaction, error) {
	return s.store.Transactions(ctx, user)
}

// AuditTrail returns a user's audit log, oldest first.
func (s *Service) AuditTrail(ctx context.Context, user UserID) ([]AuditEntry, error) {
	return s.store.AuditTrail(ctx, user)
}

// =============================================================================
// PER-USER SERIALIZATION
// =============================================================================

func (s *Service) lock(user UserID) func() {
	v, _ := s.locks.LoadOrStore(user, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
