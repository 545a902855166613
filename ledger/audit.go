/*
audit.go - Read-only drift detection between ledger and projection

PURPOSE:
  Recomputes ground truth by replaying a user's transactions and diffs
  it against the cached projection. Reports discrepancies, impossible
  states and suspicious event patterns. Mutates nothing - correction is
  the repair engine's job, and only ever upward.

FLAGS:
  points_mismatch        projection points != replayed points
  total_earned_mismatch  projection total_earned != sum(earn)
  negative_points        structurally impossible, checked defensively
  points_exceed_earned   points > total_earned (impossible state)
  unexpected_deduction   audit-log decrease not tagged redeem/admin/repair
  suspicious_duplicate   same user+amount+description within 60 seconds
*/
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultDuplicateWindow is the double-submit heuristic window.
const DefaultDuplicateWindow = 60 * time.Second

type IssueKind string

const (
	IssuePointsMismatch      IssueKind = "points_mismatch"
	IssueTotalEarnedMismatch IssueKind = "total_earned_mismatch"
	IssueNegativePoints      IssueKind = "negative_points"
	IssuePointsExceedEarned  IssueKind = "points_exceed_earned"
	IssueUnexpectedDeduction IssueKind = "unexpected_deduction"
	IssueSuspiciousDuplicate IssueKind = "suspicious_duplicate"
	IssueAuditFailed         IssueKind = "audit_failed"
)

type Issue struct {
	Kind     IssueKind
	Detail   string
	Expected Points // meaningful for mismatch kinds
	Actual   Points
}

// Report is the structured audit result for one user.
type Report struct {
	UserID UserID

	CurrentPoints         Points
	CurrentTotalEarned    Points
	CalculatedPoints      Points
	CalculatedTotalEarned Points

	Issues []Issue
}

func (r Report) Clean() bool { return len(r.Issues) == 0 }

// RecommendedAction summarizes what an operator should do about the report.
func (r Report) RecommendedAction() string {
	if r.Clean() {
		return "none"
	}
	if r.CalculatedPoints > r.CurrentPoints || r.CalculatedTotalEarned > r.CurrentTotalEarned {
		return "run repair: projection understates ledger truth"
	}
	return "manual review: projection overstates ledger truth or events look suspicious"
}

// =============================================================================
// AUDITOR
// =============================================================================

type Auditor struct {
	Store Store

	// DuplicateWindow for the double-submit heuristic. Zero means
	// DefaultDuplicateWindow.
	DuplicateWindow time.Duration
}

func NewAuditor(store Store) *Auditor {
	return &Auditor{Store: store, DuplicateWindow: DefaultDuplicateWindow}
}

// AuditUser recomputes ledger truth for one user and diffs it against
// the projection. Read-only.
func (a *Auditor) AuditUser(ctx context.Context, user UserID) (Report, error) {
	report := Report{UserID: user}

	txs, err := a.Store.Transactions(ctx, user)
	if err != nil {
		return report, err
	}

	report.CalculatedPoints, report.CalculatedTotalEarned = Replay(txs)

	profile, err := a.Store.GetProfile(ctx, user)
	if err != nil && !IsNotFound(err) {
		return report, err
	}
	if profile != nil {
		report.CurrentPoints = profile.Points
		report.CurrentTotalEarned = profile.TotalEarned
	}

	if report.CurrentPoints != report.CalculatedPoints {
		report.Issues = append(report.Issues, Issue{
			Kind:     IssuePointsMismatch,
			Detail:   fmt.Sprintf("points mismatch: has %d, should have %d", report.CurrentPoints, report.CalculatedPoints),
			Expected: report.CalculatedPoints,
			Actual:   report.CurrentPoints,
		})
	}
	if report.CurrentTotalEarned != report.CalculatedTotalEarned {
		report.Issues = append(report.Issues, Issue{
			Kind:     IssueTotalEarnedMismatch,
			Detail:   fmt.Sprintf("total_earned mismatch: has %d, should have %d", report.CurrentTotalEarned, report.CalculatedTotalEarned),
			Expected: report.CalculatedTotalEarned,
			Actual:   report.CurrentTotalEarned,
		})
	}
	if report.CurrentPoints < 0 {
		report.Issues = append(report.Issues, Issue{
			Kind:   IssueNegativePoints,
			Detail: fmt.Sprintf("negative points: %d", report.CurrentPoints),
			Actual: report.CurrentPoints,
		})
	}
	if report.CurrentPoints > report.CurrentTotalEarned {
		report.Issues = append(report.Issues, Issue{
			Kind:     IssuePointsExceedEarned,
			Detail:   fmt.Sprintf("points %d exceed lifetime earnings %d", report.CurrentPoints, report.CurrentTotalEarned),
			Expected: report.CurrentTotalEarned,
			Actual:   report.CurrentPoints,
		})
	}

	report.Issues = append(report.Issues, a.unexpectedDeductions(ctx, user)...)
	report.Issues = append(report.Issues, a.suspiciousDuplicates(txs)...)

	return report, nil
}

// AuditAll audits every known user. A failure for one user is reported
// on that user and does not abort the sweep.
func (a *Auditor) AuditAll(ctx context.Context) ([]Report, error) {
	users, err := a.Store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]Report, 0, len(users))
	for _, user := range users {
		report, err := a.AuditUser(ctx, user)
		if err != nil {
			report = Report{UserID: user, Issues: []Issue{{
				Kind:   IssueAuditFailed,
				Detail: err.Error(),
			}}}
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// unexpectedDeductions scans the audit log for decreases without a
// legitimate reason tag.
func (a *Auditor) unexpectedDeductions(ctx context.Context, user UserID) []Issue {
	entries, err := a.Store.AuditTrail(ctx, user)
	if err != nil {
		return []Issue{{Kind: IssueAuditFailed, Detail: "audit trail unavailable: " + err.Error()}}
	}

	var issues []Issue
	for _, e := range entries {
		if e.NewPoints >= e.OldPoints {
			continue
		}
		if e.Reason == string(CauseRedemption) || e.Reason == string(CauseAdminAdjustment) {
			continue
		}
		if strings.HasPrefix(e.ChangedBy, RepairRunPrefix) {
			continue
		}
		issues = append(issues, Issue{
			Kind: IssueUnexpectedDeduction,
			Detail: fmt.Sprintf("deduction %d -> %d tagged %q by %q at %s",
				e.OldPoints, e.NewPoints, e.Reason, e.ChangedBy, e.ChangedAt.Format(time.RFC3339)),
		})
	}
	return issues
}

// suspiciousDuplicates flags same-amount same-description pairs landing
// within the duplicate window. Heuristic only; never auto-corrected.
func (a *Auditor) suspiciousDuplicates(txs []Transaction) []Issue {
	window := a.DuplicateWindow
	if window == 0 {
		window = DefaultDuplicateWindow
	}

	var issues []Issue
	for i := 1; i < len(txs); i++ {
		for j := i - 1; j >= 0; j-- {
			gap := txs[i].CreatedAt.Sub(txs[j].CreatedAt)
			if gap > window {
				break
			}
			if txs[i].Amount == txs[j].Amount &&
				txs[i].Description == txs[j].Description &&
				txs[i].Kind == txs[j].Kind {
				issues = append(issues, Issue{
					Kind: IssueSuspiciousDuplicate,
					Detail: fmt.Sprintf("transactions %s and %s: %s %d (%q) within %s",
						txs[j].ID, txs[i].ID, txs[i].Kind, txs[i].Amount, txs[i].Description, gap),
				})
			}
		}
	}
	return issues
}

// Replay computes ledger truth from a transaction history:
// points = max(0, sum(earn) - sum(redeem)), totalEarned = sum(earn).
func Replay(txs []Transaction) (points, totalEarned Points) {
	var earned, redeemed Points
	for _, tx := range txs {
		switch tx.Kind {
		case KindEarn:
			earned += tx.Amount
		case KindRedeem:
			redeemed += tx.Amount
		}
	}
	points = earned - redeemed
	if points < 0 {
		points = 0
	}
	return points, earned
}
