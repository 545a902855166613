/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/warp/points-engine/earning"
	"github.com/warp/points-engine/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// SignUpRequest creates a user, optionally attributed to a referrer.
type SignUpRequest struct {
	UserID       string `json:"user_id"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// SignUpResponse returns the new user's own referral code and balance.
type SignUpResponse struct {
	UserID       string     `json:"user_id"`
	ReferralCode string     `json:"referral_code"`
	Balance      BalanceDTO `json:"balance"`
}

// BalanceDTO is the balance projection for one user.
type BalanceDTO struct {
	UserID      string `json:"user_id"`
	Points      int64  `json:"points"`
	TotalEarned int64  `json:"total_earned"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// TransactionDTO represents one ledger transaction.
type TransactionDTO struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Kind        string `json:"kind"`
	Amount      int64  `json:"amount"`
	Cause       string `json:"cause"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// AuditEntryDTO represents one audit log entry.
type AuditEntryDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	OldPoints int64  `json:"old_points"`
	NewPoints int64  `json:"new_points"`
	Reason    string `json:"reason"`
	ChangedBy string `json:"changed_by"`
	ChangedAt string `json:"changed_at"`
}

// CheckInResponse is returned after a daily check-in.
type CheckInResponse struct {
	DayInCycle int        `json:"day_in_cycle"`
	Streak     int        `json:"streak"`
	Points     int64      `json:"points"`
	Balance    BalanceDTO `json:"balance"`
}

// AdWatchResponse is returned after an ad view credit.
type AdWatchResponse struct {
	WatchedToday int        `json:"watched_today"`
	Points       int64      `json:"points"`
	Balance      BalanceDTO `json:"balance"`
}

// TaskDTO describes one completable task.
type TaskDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int64  `json:"points"`
}

// RedeemPromoRequest redeems a promo code.
type RedeemPromoRequest struct {
	Code string `json:"code"`
}

// RedeemPointsRequest spends points from the balance.
type RedeemPointsRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

// PromoCodeDTO represents a promo code (admin surface).
type PromoCodeDTO struct {
	Code       string `json:"code"`
	Points     int64  `json:"points"`
	MaxUses    int    `json:"max_uses"`
	UsedCount  int    `json:"used_count"`
	ValidFrom  string `json:"valid_from,omitempty"`
	ValidUntil string `json:"valid_until,omitempty"`
}

// CreatePromoRequest registers a promo code (admin surface).
type CreatePromoRequest struct {
	Code       string `json:"code"`
	Points     int64  `json:"points"`
	MaxUses    int    `json:"max_uses,omitempty"`
	ValidFrom  string `json:"valid_from,omitempty"`  // RFC3339
	ValidUntil string `json:"valid_until,omitempty"` // RFC3339
}

// AdjustmentRequest is a manual admin balance adjustment.
type AdjustmentRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"` // positive = credit, negative = debit
	Reason string `json:"reason"`
}

// AuditReportDTO is the drift report for one user.
type AuditReportDTO struct {
	UserID            string     `json:"user_id"`
	Clean             bool       `json:"clean"`
	ExpectedPoints    int64      `json:"expected_points"`
	ActualPoints      int64      `json:"actual_points"`
	ExpectedEarned    int64      `json:"expected_total_earned"`
	ActualEarned      int64      `json:"actual_total_earned"`
	Issues            []IssueDTO `json:"issues"`
	RecommendedAction string     `json:"recommended_action"`
}

// IssueDTO is one integrity finding.
type IssueDTO struct {
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
	Expected int64  `json:"expected,omitempty"`
	Actual   int64  `json:"actual,omitempty"`
}

// RepairResultDTO reports one user's repair outcome.
type RepairResultDTO struct {
	UserID         string   `json:"user_id"`
	OldPoints      int64    `json:"old_points"`
	NewPoints      int64    `json:"new_points"`
	OldTotalEarned int64    `json:"old_total_earned"`
	NewTotalEarned int64    `json:"new_total_earned"`
	Fixed          bool     `json:"fixed"`
	Flagged        []string `json:"flagged,omitempty"`
}

// BulkRepairResultDTO reports a full repair run.
type BulkRepairResultDTO struct {
	RunID        string   `json:"run_id"`
	UsersChecked int      `json:"users_checked"`
	UsersFixed   int      `json:"users_fixed"`
	Fixes        []string `json:"fixes,omitempty"`
	IssuesFound  []string `json:"issues_found,omitempty"`
}

// CommissionDTO represents one commission payout record.
type CommissionDTO struct {
	ReferrerID       string `json:"referrer_id"`
	ReferredID       string `json:"referred_id"`
	SourceTxID       string `json:"source_tx_id"`
	OriginalPoints   int64  `json:"original_points"`
	Percentage       string `json:"percentage"`
	CommissionPoints int64  `json:"commission_points"`
	Level            int    `json:"level"`
	CreatedAt        string `json:"created_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toBalanceDTO(p *ledger.Profile) BalanceDTO {
	return BalanceDTO{
		UserID:      string(p.UserID),
		Points:      int64(p.Points),
		TotalEarned: int64(p.TotalEarned),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(tx.ID),
		UserID:      string(tx.UserID),
		Kind:        string(tx.Kind),
		Amount:      int64(tx.Amount),
		Cause:       string(tx.Cause),
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toAuditEntryDTOs(entries []ledger.AuditEntry) []AuditEntryDTO {
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:        e.ID,
			UserID:    string(e.UserID),
			OldPoints: int64(e.OldPoints),
			NewPoints: int64(e.NewPoints),
			Reason:    e.Reason,
			ChangedBy: e.ChangedBy,
			ChangedAt: e.ChangedAt.Format(time.RFC3339),
		}
	}
	return dtos
}

func toAuditReportDTO(rep ledger.Report) AuditReportDTO {
	issues := make([]IssueDTO, len(rep.Issues))
	for i, iss := range rep.Issues {
		issues[i] = IssueDTO{
			Kind:     string(iss.Kind),
			Detail:   iss.Detail,
			Expected: int64(iss.Expected),
			Actual:   int64(iss.Actual),
		}
	}
	return AuditReportDTO{
		UserID:            string(rep.UserID),
		Clean:             rep.Clean(),
		ExpectedPoints:    int64(rep.CalculatedPoints),
		ActualPoints:      int64(rep.CurrentPoints),
		ExpectedEarned:    int64(rep.CalculatedTotalEarned),
		ActualEarned:      int64(rep.CurrentTotalEarned),
		Issues:            issues,
		RecommendedAction: rep.RecommendedAction(),
	}
}

func toRepairResultDTO(res ledger.RepairResult) RepairResultDTO {
	return RepairResultDTO{
		UserID:         string(res.UserID),
		OldPoints:      int64(res.OldPoints),
		NewPoints:      int64(res.NewPoints),
		OldTotalEarned: int64(res.OldTotalEarned),
		NewTotalEarned: int64(res.NewTotalEarned),
		Fixed:          res.Fixed,
		Flagged:        res.Flagged,
	}
}

func toPromoCodeDTO(c earning.PromoCode) PromoCodeDTO {
	dto := PromoCodeDTO{
		Code:      c.Code,
		Points:    int64(c.Points),
		MaxUses:   c.MaxUses,
		UsedCount: c.UsedCount,
	}
	if !c.ValidFrom.IsZero() {
		dto.ValidFrom = c.ValidFrom.Format(time.RFC3339)
	}
	if !c.ValidUntil.IsZero() {
		dto.ValidUntil = c.ValidUntil.Format(time.RFC3339)
	}
	return dto
}

func toCommissionDTOs(records []earning.CommissionRecord) []CommissionDTO {
	dtos := make([]CommissionDTO, len(records))
	for i, c := range records {
		dtos[i] = CommissionDTO{
			ReferrerID:       string(c.ReferrerID),
			ReferredID:       string(c.ReferredID),
			SourceTxID:       string(c.SourceTxID),
			OriginalPoints:   int64(c.OriginalPoints),
			Percentage:       c.Percentage.String(),
			CommissionPoints: int64(c.CommissionPoints),
			Level:            c.Level,
			CreatedAt:        c.CreatedAt.Format(time.RFC3339),
		}
	}
	return dtos
}
