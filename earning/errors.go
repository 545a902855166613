// errors.go - Feature-level eligibility errors. Ledger-level errors
// (duplicate submission, invalid amount) pass through from the ledger
// package unchanged.
package earning

import "errors"

var (
	// ErrDailyCapReached is returned when a per-day feature cap is hit.
	ErrDailyCapReached = errors.New("daily cap reached")

	// ErrPromoNotFound is returned for an unknown promo code.
	ErrPromoNotFound = errors.New("promo code not found")

	// ErrPromoNotActive is returned outside a code's validity window.
	ErrPromoNotActive = errors.New("promo code not active")

	// ErrPromoExhausted is returned when a code's usage cap is reached.
	ErrPromoExhausted = errors.New("promo code usage cap reached")

	// ErrTaskNotFound is returned for an unknown task.
	ErrTaskNotFound = errors.New("task not found")

	// ErrReferralCodeNotFound is returned for an unknown referral code.
	ErrReferralCodeNotFound = errors.New("referral code not found")

	// ErrSelfReferral is returned when a user tries to refer themselves.
	ErrSelfReferral = errors.New("self referral not allowed")
)
