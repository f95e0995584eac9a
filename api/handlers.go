/*
handlers.go - HTTP API handlers for the dues engine

PURPOSE:
  Exposes the escalation engine via REST. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Dues:
    POST   /api/dues/check               Run the escalation check now
    GET    /api/dues/status              Current-month status report

  Members:
    GET    /api/members                  List roster
    POST   /api/members                  Create/update member
    GET    /api/members/{id}             Member details
    GET    /api/members/{id}/months      Month record history
    POST   /api/members/{id}/status      Manual month status update
    POST   /api/members/{id}/sync        Sync from the payment ledger
    POST   /api/members/{id}/extension   Grant extension
    DELETE /api/members/{id}/extension   Revoke extension
    POST   /api/members/{id}/forgive     Forgive a month
    POST   /api/members/{id}/reinstate   Restore platform access

  Config:
    GET    /api/templates                List stage templates
    PUT    /api/templates/{stage}        Create/update a stage template
    GET    /api/settings                 Read category switches
    PUT    /api/settings                 Write category switches

ERROR HANDLING:
  - 400: validation errors (past extension date, bad month key, ...)
  - 404: unknown member/template
  - 503: payment ledger not configured
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/club-engine/dues"
)

const dateLayout = "2006-01-02"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      dues.Store
	Engine     *dues.Engine
	Ledger     *dues.DuesLedger
	Overrides  *dues.OverrideService
	Reinstater *dues.Reinstater
	Payments   dues.PaymentLedger // may be nil when no ledger is wired
	Clock      dues.Clock
	Log        zerolog.Logger
}

func NewHandler(store dues.Store, engine *dues.Engine, reinstater *dues.Reinstater, payments dues.PaymentLedger, clock dues.Clock, log zerolog.Logger) *Handler {
	return &Handler{
		Store:      store,
		Engine:     engine,
		Ledger:     dues.NewDuesLedger(store, clock),
		Overrides:  dues.NewOverrideService(store, clock),
		Reinstater: reinstater,
		Payments:   payments,
		Clock:      clock,
		Log:        log.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// DUES HANDLERS
// =============================================================================

// RunCheck triggers an immediate escalation run ("run check now"). Shares
// the daily tick's code path and idempotency guard.
func (h *Handler) RunCheck(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.RunCheck(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Escalation run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, RunResultDTO{
		RunID:          res.RunID,
		Month:          string(res.Month),
		DayOfMonth:     res.Day.Day(),
		MembersChecked: res.MembersChecked,
		MembersSkipped: res.MembersSkipped,
		StagesFired:    res.StagesFired,
		ActionsFired:   res.ActionsFired,
		Failures:       res.Failures,
	})
}

// GetStatus returns the current-month operator report.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.Engine.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute status", err)
		return
	}

	dto := StatusReportDTO{
		CurrentMonth:   string(report.CurrentMonth),
		DayOfMonth:     report.DayOfMonth,
		UnpaidCount:    report.UnpaidCount,
		SuspendedCount: report.SuspendedCount,
		UnpaidMembers:  make([]MemberStatusDTO, 0, len(report.UnpaidMembers)),
	}
	for _, m := range report.UnpaidMembers {
		dto.UnpaidMembers = append(dto.UnpaidMembers, MemberStatusDTO{
			MemberID: string(m.MemberID),
			Name:     m.Name,
			Status:   string(m.Status),
			State:    string(m.State),
			Exempt:   m.Exempt,
		})
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = memberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id := dues.MemberID(chi.URLParam(r, "id"))
	m, err := h.Store.GetMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get member", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Member not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, memberDTO(*m))
}

func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	joined, err := time.Parse(dateLayout, req.JoinedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid joined_at format (use YYYY-MM-DD)", err)
		return
	}
	monthly := decimal.Zero
	if req.MonthlyDues != "" {
		if monthly, err = decimal.NewFromString(req.MonthlyDues); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid monthly_dues", err)
			return
		}
	}

	m := dues.Member{
		ID:          dues.MemberID(req.ID),
		Name:        req.Name,
		Email:       req.Email,
		Exempt:      req.Exempt,
		PlatformID:  req.PlatformID,
		MonthlyDues: monthly,
		JoinedAt:    joined,
	}
	if err := h.Store.SaveMember(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save member", err)
		return
	}
	writeJSON(w, http.StatusCreated, memberDTO(m))
}

func (h *Handler) ListMemberMonths(w http.ResponseWriter, r *http.Request) {
	id := dues.MemberID(chi.URLParam(r, "id"))
	recs, err := h.Store.ListMemberMonths(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list months", err)
		return
	}
	dtos := make([]MonthRecordDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = MonthRecordDTO{
			MemberID:  string(rec.MemberID),
			Month:     string(rec.Month),
			Status:    string(rec.Status),
			Notes:     rec.Notes,
			UpdatedBy: string(rec.UpdatedBy),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SetStatus records a manual month status update.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id := dues.MemberID(chi.URLParam(r, "id"))
	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	month, err := dues.ParseMonthKey(req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	err = h.Ledger.SetStatus(r.Context(), id, month, dues.PaymentStatus(req.Status), req.Notes, dues.SourceManual)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SyncPayments pulls settled payments for a member from the external
// payment ledger and marks the matching months paid.
func (h *Handler) SyncPayments(w http.ResponseWriter, r *http.Request) {
	if h.Payments == nil {
		writeError(w, http.StatusServiceUnavailable, "Payment ledger not configured", nil)
		return
	}
	id := dues.MemberID(chi.URLParam(r, "id"))
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := time.Parse(dateLayout, req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := time.Parse(dateLayout, req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}

	updated, err := h.Ledger.SyncFromPayments(r.Context(), h.Payments, id, dues.Period{From: from, To: to})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Updated: updated})
}

// =============================================================================
// OVERRIDE HANDLERS
// =============================================================================

func (h *Handler) GrantExtension(w http.ResponseWriter, r *http.Request) {
	id := dues.MemberID(chi.URLParam(r, "id"))
	var req GrantExtensionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	until, err := time.Parse(dateLayout, req.Until)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid until date (use YYYY-MM-DD)", err)
		return
	}

	ext, err := h.Overrides.GrantExtension(r.Context(), id, until, req.Reason, req.GrantedBy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ExtensionDTO{
		ID:         ext.ID,
		MemberID:   string(ext.MemberID),
		ValidUntil: ext.ValidUntil.Format(dateLayout),
		Reason:     ext.Reason,
		Active:     ext.Active,
		GrantedBy:  ext.GrantedBy,
	})
}

func (h *Handler) RevokeExtension(w http.ResponseWriter, r *http.Request) {
	id := dues.MemberID(chi.URLParam(r, "id"))
	if err := h.Overrides.RevokeExtension(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Forgive(w http.ResponseWriter, r *http.Request) {
	id := dues.MemberID(chi.URLParam(r, "id"))
	var req ForgiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	month, err := dues.ParseMonthKey(req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use e.g. Mar_2025)", err)
		return
	}
	if err := h.Overrides.Forgive(r.Context(), id, month, req.Reason, req.GrantedBy); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Reinstate(w http.ResponseWriter, r *http.Request) {
	id := dues.MemberID(chi.URLParam(r, "id"))
	res, err := h.Reinstater.Reinstate(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReinstateResponse{
		MemberID: string(res.MemberID),
		Restored: res.Restored,
		Message:  res.Message,
	})
}

// =============================================================================
// TEMPLATE + SETTINGS HANDLERS
// =============================================================================

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Store.ListTemplates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates", err)
		return
	}
	dtos := make([]TemplateDTO, len(templates))
	for i, t := range templates {
		dtos[i] = TemplateDTO{
			Stage:   t.Stage.Threshold(),
			Subject: t.Subject,
			Body:    t.Body,
			Active:  t.Active,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	stage, err := parseStage(chi.URLParam(r, "stage"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid stage (want 3, 8, 10 or 30)", err)
		return
	}
	var req TemplateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	t := dues.Template{
		Stage:   stage,
		Subject: req.Subject,
		Body:    req.Body,
		Active:  req.Active,
	}
	if err := h.Store.SaveTemplate(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save template", err)
		return
	}
	writeJSON(w, http.StatusOK, TemplateDTO{
		Stage:   t.Stage.Threshold(),
		Subject: t.Subject,
		Body:    t.Body,
		Active:  t.Active,
	})
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Store.GetSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, SettingsDTO{
		EmailRemindersEnabled: cfg.EmailRemindersEnabled,
		SuspensionEnabled:     cfg.SuspensionEnabled,
		RemovalEnabled:        cfg.RemovalEnabled,
	})
}

func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cfg := dues.Settings{
		EmailRemindersEnabled: req.EmailRemindersEnabled,
		SuspensionEnabled:     req.SuspensionEnabled,
		RemovalEnabled:        req.RemovalEnabled,
	}
	if err := h.Store.SaveSettings(r.Context(), cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// =============================================================================
// HELPERS
// =============================================================================

func memberDTO(m dues.Member) MemberDTO {
	return MemberDTO{
		ID:          string(m.ID),
		Name:        m.Name,
		Email:       m.Email,
		Exempt:      m.Exempt,
		PlatformID:  m.PlatformID,
		MonthlyDues: m.MonthlyDues.StringFixed(2),
		JoinedAt:    m.JoinedAt.Format(dateLayout),
	}
}

func parseStage(s string) (dues.Stage, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	stage := dues.Stage(n)
	if !stage.Valid() {
		return 0, dues.ErrInvalidStage
	}
	return stage, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case dues.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case dues.IsValidation(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
