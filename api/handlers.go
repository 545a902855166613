/*
handlers.go - HTTP API handlers for the points engine

PURPOSE:
  Exposes the ledger and earning features via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Users:
    POST   /api/users                       Sign up (optional referral code)
    GET    /api/users/{id}/balance          Balance projection
    GET    /api/users/{id}/transactions     Ledger history
    GET    /api/users/{id}/audit            Audit trail
    GET    /api/users/{id}/commissions      Referral commission history

  Earning:
    POST   /api/users/{id}/checkin          Daily check-in
    POST   /api/users/{id}/ads              Ad view credit
    GET    /api/tasks                       Task catalog
    POST   /api/users/{id}/tasks/{taskID}   Task completion
    POST   /api/users/{id}/promo            Promo code redemption
    POST   /api/users/{id}/redeem           Spend points

  Admin:
    POST   /api/admin/adjustments           Manual balance adjustment
    GET    /api/admin/audit                 Integrity sweep, all users
    GET    /api/admin/audit/{id}            Integrity check, one user
    POST   /api/admin/repair                Repair run, all users
    POST   /api/admin/repair/{id}           Repair one user
    GET    /api/admin/promos                List promo codes
    POST   /api/admin/promos                Create promo code

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (ledger service, earning services)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 402: Insufficient balance
  - 403: Unauthorized deduction, missing admin role
  - 404: Resource not found
  - 409: Conflict (idempotency, duplicate)
  - 500: Internal errors

AUTHENTICATION:
  Actor identity comes from the X-Actor-ID / X-Actor-Role headers set by
  the gateway. This service trusts them; it performs authorization only.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/points-engine/auth"
	"github.com/warp/points-engine/earning"
	"github.com/warp/points-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *ledger.Service
	CheckIns  *earning.CheckInService
	Ads       *earning.AdWatchService
	Tasks     *earning.TaskService
	Promos    *earning.PromoService
	Referrals *earning.ReferralService
	Auditor   *ledger.Auditor
	Repairer  *ledger.Repairer
}

// Deps bundles the stores a handler needs beyond the ledger service.
type Deps struct {
	Store     ledger.TxStore
	CheckIns  earning.CheckInStore
	Promos    earning.PromoStore
	Referrals earning.ReferralStore
}

// NewHandler wires the full service graph. Registering the referral
// service hooks the commission cascade into every credit.
func NewHandler(d Deps) *Handler {
	svc := ledger.NewService(d.Store)
	return &Handler{
		Ledger:    svc,
		CheckIns:  earning.NewCheckInService(svc, d.CheckIns),
		Ads:       earning.NewAdWatchService(svc, d.Store),
		Tasks:     earning.NewTaskService(svc, nil),
		Promos:    earning.NewPromoService(svc, d.Promos),
		Referrals: earning.NewReferralService(svc, d.Referrals),
		Auditor:   ledger.NewAuditor(d.Store),
		Repairer:  ledger.NewRepairer(d.Store, svc.Guard()),
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// SignUp creates a user with the signup bonus and an own referral code.
// POST /api/users
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	res, err := h.Referrals.SignUp(r.Context(), ledger.UserID(req.UserID), req.ReferralCode)
	if err != nil {
		writeDomainError(w, "Signup failed", err)
		return
	}

	profile, err := h.Ledger.Balance(r.Context(), ledger.UserID(req.UserID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read balance", err)
		return
	}

	writeJSON(w, http.StatusCreated, SignUpResponse{
		UserID:       req.UserID,
		ReferralCode: res.ReferralCode,
		Balance:      toBalanceDTO(profile),
	})
}

// GetBalance returns the balance projection.
// GET /api/users/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))

	profile, err := h.Ledger.Balance(r.Context(), user)
	if err != nil {
		if ledger.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "User not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read balance", err)
		return
	}

	writeJSON(w, http.StatusOK, toBalanceDTO(profile))
}

// GetTransactions returns the user's ledger history, oldest first.
// GET /api/users/{id}/transactions
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))

	txs, err := h.Ledger.History(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetAuditTrail returns the user's audit log, oldest first.
// GET /api/users/{id}/audit
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))

	entries, err := h.Ledger.AuditTrail(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read audit trail", err)
		return
	}

	writeJSON(w, http.StatusOK, toAuditEntryDTOs(entries))
}

// GetCommissions returns the user's referral commission history.
// GET /api/users/{id}/commissions
func (h *Handler) GetCommissions(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))

	records, err := h.Referrals.Commissions(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read commissions", err)
		return
	}

	writeJSON(w, http.StatusOK, toCommissionDTOs(records))
}

// =============================================================================
// EARNING HANDLERS
// =============================================================================

// CheckIn performs the daily check-in.
// POST /api/users/{id}/checkin
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))

	res, err := h.CheckIns.CheckIn(r.Context(), user, time.Now().UTC())
	if err != nil {
		writeDomainError(w, "Check-in failed", err)
		return
	}

	h.writeWithBalance(w, r, user, func(b BalanceDTO) any {
		return CheckInResponse{
			DayInCycle: res.DayInCycle,
			Streak:     res.Streak,
			Points:     int64(res.Points),
			Balance:    b,
		}
	})
}

// WatchAd credits the next ad view of the day.
// POST /api/users/{id}/ads
func (h *Handler) WatchAd(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))

	res, err := h.Ads.WatchAd(r.Context(), user, time.Now().UTC())
	if err != nil {
		writeDomainError(w, "Ad credit failed", err)
		return
	}

	h.writeWithBalance(w, r, user, func(b BalanceDTO) any {
		return AdWatchResponse{
			WatchedToday: res.WatchedToday,
			Points:       int64(res.Points),
			Balance:      b,
		}
	})
}

// ListTasks returns the task catalog.
// GET /api/tasks
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.Tasks.Tasks()
	dtos := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		dtos[i] = TaskDTO{ID: t.ID, Name: t.Name, Points: int64(t.Points)}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CompleteTask credits a task completion.
// POST /api/users/{id}/tasks/{taskID}
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))
	taskID := chi.URLParam(r, "taskID")

	res, err := h.Tasks.Complete(r.Context(), user, taskID, time.Now().UTC())
	if err != nil {
		writeDomainError(w, "Task completion failed", err)
		return
	}

	h.writeWithBalance(w, r, user, func(b BalanceDTO) any {
		return struct {
			Task    TaskDTO    `json:"task"`
			Balance BalanceDTO `json:"balance"`
		}{
			Task:    TaskDTO{ID: res.Task.ID, Name: res.Task.Name, Points: int64(res.Task.Points)},
			Balance: b,
		}
	})
}

// RedeemPromo redeems a promo code for the user.
// POST /api/users/{id}/promo
func (h *Handler) RedeemPromo(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))

	var req RedeemPromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required", nil)
		return
	}

	if _, err := h.Promos.Redeem(r.Context(), user, req.Code, time.Now().UTC()); err != nil {
		writeDomainError(w, "Promo redemption failed", err)
		return
	}

	h.writeWithBalance(w, r, user, func(b BalanceDTO) any { return b })
}

// RedeemPoints spends points from the balance.
// POST /api/users/{id}/redeem
func (h *Handler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))

	var req RedeemPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	desc := req.Description
	if desc == "" {
		desc = "Points redemption"
	}

	_, err := h.Ledger.Debit(r.Context(), user, ledger.Points(req.Amount),
		ledger.CauseRedemption, desc, "")
	if err != nil {
		writeDomainError(w, "Redemption failed", err)
		return
	}

	h.writeWithBalance(w, r, user, func(b BalanceDTO) any { return b })
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateAdjustment applies a manual admin balance change. Negative
// amounts debit; the admin role in the actor context authorizes the
// deduction with the guard.
// POST /api/admin/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "user_id and a non-zero amount are required", nil)
		return
	}

	user := ledger.UserID(req.UserID)
	desc := req.Reason
	if desc == "" {
		desc = "Manual adjustment"
	}

	var err error
	if req.Amount > 0 {
		_, err = h.Ledger.Credit(r.Context(), user, ledger.Points(req.Amount),
			ledger.CauseAdminAdjustment, desc, "")
	} else {
		_, err = h.Ledger.Debit(r.Context(), user, ledger.Points(-req.Amount),
			ledger.CauseAdminAdjustment, desc, "")
	}
	if err != nil {
		writeDomainError(w, "Adjustment failed", err)
		return
	}

	h.writeWithBalance(w, r, user, func(b BalanceDTO) any { return b })
}

// AuditAll runs the integrity sweep over every known user.
// GET /api/admin/audit
func (h *Handler) AuditAll(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	reports, err := h.Auditor.AuditAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Audit sweep failed", err)
		return
	}

	dtos := make([]AuditReportDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = toAuditReportDTO(rep)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AuditUser runs the integrity check for one user.
// GET /api/admin/audit/{id}
func (h *Handler) AuditUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	user := ledger.UserID(chi.URLParam(r, "id"))

	report, err := h.Auditor.AuditUser(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Audit failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toAuditReportDTO(report))
}

// RepairAll runs a raise-only reconciliation over every known user.
// POST /api/admin/repair
func (h *Handler) RepairAll(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	result, err := h.Repairer.RepairAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Repair run failed", err)
		return
	}

	writeJSON(w, http.StatusOK, BulkRepairResultDTO{
		RunID:        result.RunID,
		UsersChecked: result.UsersChecked,
		UsersFixed:   result.UsersFixed,
		Fixes:        result.Fixes,
		IssuesFound:  result.IssuesFound,
	})
}

// RepairUser reconciles one user's projection.
// POST /api/admin/repair/{id}
func (h *Handler) RepairUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	user := ledger.UserID(chi.URLParam(r, "id"))

	result, err := h.Repairer.RepairUser(r.Context(), user)
	if err != nil {
		writeDomainError(w, "Repair failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toRepairResultDTO(result))
}

// ListPromos returns every promo code.
// GET /api/admin/promos
func (h *Handler) ListPromos(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	codes, err := h.Promos.ListCodes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list promo codes", err)
		return
	}

	dtos := make([]PromoCodeDTO, len(codes))
	for i, c := range codes {
		dtos[i] = toPromoCodeDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePromo registers a new promo code.
// POST /api/admin/promos
func (h *Handler) CreatePromo(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req CreatePromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required", nil)
		return
	}

	code := earning.PromoCode{
		Code:    req.Code,
		Points:  ledger.Points(req.Points),
		MaxUses: req.MaxUses,
	}
	var err error
	if req.ValidFrom != "" {
		if code.ValidFrom, err = time.Parse(time.RFC3339, req.ValidFrom); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid valid_from", err)
			return
		}
	}
	if req.ValidUntil != "" {
		if code.ValidUntil, err = time.Parse(time.RFC3339, req.ValidUntil); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid valid_until", err)
			return
		}
	}

	if err := h.Promos.CreateCode(r.Context(), code); err != nil {
		writeDomainError(w, "Failed to create promo code", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPromoCodeDTO(code))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !auth.IsAdmin(r.Context()) {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return false
	}
	return true
}

// writeWithBalance re-reads the projection after a mutation and wraps it
// in the endpoint-specific response shape.
func (h *Handler) writeWithBalance(w http.ResponseWriter, r *http.Request, user ledger.UserID, wrap func(BalanceDTO) any) {
	profile, err := h.Ledger.Balance(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read balance", err)
		return
	}
	writeJSON(w, http.StatusOK, wrap(toBalanceDTO(profile)))
}

// writeDomainError maps domain errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	var insufficient *ledger.InsufficientBalanceError
	var unauthorized *ledger.UnauthorizedDeductionError

	switch {
	case errors.Is(err, ledger.ErrDuplicateSubmission),
		errors.Is(err, ledger.ErrRepairInProgress):
		writeError(w, http.StatusConflict, message, err)
	case errors.As(err, &insufficient):
		writeError(w, http.StatusPaymentRequired, message, err)
	case errors.As(err, &unauthorized):
		writeError(w, http.StatusForbidden, message, err)
	case ledger.IsNotFound(err),
		errors.Is(err, earning.ErrPromoNotFound),
		errors.Is(err, earning.ErrTaskNotFound),
		errors.Is(err, earning.ErrReferralCodeNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsClientError(err),
		errors.Is(err, earning.ErrDailyCapReached),
		errors.Is(err, earning.ErrPromoNotActive),
		errors.Is(err, earning.ErrPromoExhausted),
		errors.Is(err, earning.ErrSelfReferral):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
