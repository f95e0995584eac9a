package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/club-engine/dispatch"
	"github.com/warp/club-engine/dues"
	"github.com/warp/club-engine/dues/store"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

type stubEmail struct{ sent int }

func (s *stubEmail) Send(context.Context, string, string, string) error {
	s.sent++
	return nil
}

type stubAccess struct{ suspended, restored, removed int }

func (s *stubAccess) Suspend(context.Context, string) error { s.suspended++; return nil }
func (s *stubAccess) Restore(context.Context, string) error { s.restored++; return nil }
func (s *stubAccess) Remove(context.Context, string) error  { s.removed++; return nil }

type stubPayments struct{ payments []dues.Payment }

func (s *stubPayments) ListPayments(_ context.Context, id dues.MemberID, _ dues.Period) ([]dues.Payment, error) {
	var out []dues.Payment
	for _, p := range s.payments {
		if p.MemberID == id {
			out = append(out, p)
		}
	}
	return out, nil
}

type harness struct {
	Router   http.Handler
	Store    *store.Memory
	Clock    *dues.FixedClock
	Email    *stubEmail
	Access   *stubAccess
	Payments *stubPayments
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mem := store.NewMemory()
	clock := dues.NewFixedClock(2025, time.March, 1)
	email := &stubEmail{}
	access := &stubAccess{}
	payments := &stubPayments{}

	ctx := context.Background()
	for _, stage := range dues.Stages() {
		require.NoError(t, mem.SaveTemplate(ctx, dues.Template{
			Stage:   stage,
			Subject: "Dues for {month}",
			Body:    "Hi {member_name}",
			Active:  true,
		}))
	}
	require.NoError(t, mem.SaveMember(ctx, dues.Member{
		ID:          "mem-1",
		Name:        "Member One",
		Email:       "one@example.com",
		PlatformID:  "plat-1",
		MonthlyDues: decimal.NewFromInt(25),
		JoinedAt:    time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
	}))

	d := dispatch.New(email, access, zerolog.Nop())
	d.Limiter = nil
	engine := dues.NewEngine(mem, d, clock, zerolog.Nop())
	reinstater := dues.NewReinstater(mem, access, clock, zerolog.Nop())
	handler := NewHandler(mem, engine, reinstater, payments, clock, zerolog.Nop())

	return &harness{
		Router:   NewRouter(handler),
		Store:    mem,
		Clock:    clock,
		Email:    email,
		Access:   access,
		Payments: payments,
	}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// =============================================================================
// DUES ENDPOINTS
// =============================================================================

func TestRunCheckEndpoint(t *testing.T) {
	h := newHarness(t)
	h.Clock.SetDay(3)

	rec := h.do(t, http.MethodPost, "/api/dues/check", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[RunResultDTO](t, rec)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "Mar_2025", res.Month)
	assert.Equal(t, 1, res.StagesFired)
	assert.Equal(t, 1, h.Email.sent)
}

func TestGetStatusEndpoint(t *testing.T) {
	h := newHarness(t)
	h.Clock.SetDay(10)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/dues/check", nil).Code)

	rec := h.do(t, http.MethodGet, "/api/dues/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[StatusReportDTO](t, rec)
	assert.Equal(t, "Mar_2025", report.CurrentMonth)
	assert.Equal(t, 10, report.DayOfMonth)
	assert.Equal(t, 1, report.UnpaidCount)
	assert.Equal(t, 1, report.SuspendedCount)
	require.Len(t, report.UnpaidMembers, 1)
	assert.Equal(t, "suspended", report.UnpaidMembers[0].State)
}

// =============================================================================
// MEMBER ENDPOINTS
// =============================================================================

func TestCreateAndGetMember(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/members/", CreateMemberRequest{
		ID:          "mem-2",
		Name:        "Member Two",
		Email:       "two@example.com",
		MonthlyDues: "30.50",
		JoinedAt:    "2025-01-15",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/members/mem-2/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[MemberDTO](t, rec)
	assert.Equal(t, "Member Two", m.Name)
	assert.Equal(t, "30.50", m.MonthlyDues)
	assert.Equal(t, "2025-01-15", m.JoinedAt)
}

func TestCreateMember_Validation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/members/", CreateMemberRequest{Name: "No ID", JoinedAt: "2025-01-15"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/members/", CreateMemberRequest{
		ID: "mem-x", Name: "Bad Date", JoinedAt: "15/01/2025",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMember_NotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/members/ghost/", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetStatusEndpoint(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/members/mem-1/status", SetStatusRequest{
		Month: "Mar_2025", Status: "paid", Notes: "check #7",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/members/mem-1/months", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	months := decode[[]MonthRecordDTO](t, rec)
	require.Len(t, months, 1)
	assert.Equal(t, "paid", months[0].Status)
	assert.Equal(t, "manual", months[0].UpdatedBy)
}

func TestSetStatusEndpoint_BadMonth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/members/mem-1/status", SetStatusRequest{
		Month: "2025-03", Status: "paid",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncPaymentsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.Payments.payments = []dues.Payment{
		{MemberID: "mem-1", Month: "Feb_2025", Amount: decimal.NewFromInt(25), PaidAt: time.Date(2025, time.February, 2, 0, 0, 0, 0, time.UTC)},
	}

	rec := h.do(t, http.MethodPost, "/api/members/mem-1/sync", SyncRequest{
		From: "2025-02-01", To: "2025-03-01",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[SyncResponse](t, rec)
	assert.Equal(t, 1, res.Updated)
}

// =============================================================================
// OVERRIDE ENDPOINTS
// =============================================================================

func TestExtensionEndpoints(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/members/mem-1/extension", GrantExtensionRequest{
		Until: "2025-03-20", Reason: "hardship", GrantedBy: "officer-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	ext := decode[ExtensionDTO](t, rec)
	assert.Equal(t, "2025-03-20", ext.ValidUntil)
	assert.True(t, ext.Active)

	rec = h.do(t, http.MethodDelete, "/api/members/mem-1/extension", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// revoking again: nothing active
	rec = h.do(t, http.MethodDelete, "/api/members/mem-1/extension", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGrantExtension_PastDateRejected(t *testing.T) {
	h := newHarness(t)
	h.Clock.SetDay(15)

	rec := h.do(t, http.MethodPost, "/api/members/mem-1/extension", GrantExtensionRequest{
		Until: "2025-03-10", Reason: "too late", GrantedBy: "officer-1",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	res := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Validation failed", res.Error)
}

func TestForgiveEndpoint(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/members/mem-1/forgive", ForgiveRequest{
		Month: "Mar_2025", Reason: "family emergency", GrantedBy: "officer-1",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// idempotent
	rec = h.do(t, http.MethodPost, "/api/members/mem-1/forgive", ForgiveRequest{
		Month: "Mar_2025", Reason: "again", GrantedBy: "officer-2",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	h.Clock.SetDay(30)
	rec = h.do(t, http.MethodPost, "/api/dues/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[RunResultDTO](t, rec)
	assert.Equal(t, 0, res.StagesFired)
}

func TestReinstateEndpoint(t *testing.T) {
	h := newHarness(t)
	h.Clock.SetDay(10)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/dues/check", nil).Code)
	require.Equal(t, 1, h.Access.suspended)

	rec := h.do(t, http.MethodPost, "/api/members/mem-1/reinstate", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[ReinstateResponse](t, rec)
	assert.True(t, res.Restored)
	assert.Equal(t, 1, h.Access.restored)
}

func TestReinstateEndpoint_NotSuspended(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/members/mem-1/reinstate", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// TEMPLATE + SETTINGS ENDPOINTS
// =============================================================================

func TestTemplateEndpoints(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPut, "/api/templates/10", TemplateDTO{
		Subject: "Suspension notice", Body: "Access suspended, {member_name}", Active: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/templates/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	templates := decode[[]TemplateDTO](t, rec)
	require.Len(t, templates, 4)
	assert.Equal(t, []int{3, 8, 10, 30}, []int{templates[0].Stage, templates[1].Stage, templates[2].Stage, templates[3].Stage})
	assert.Equal(t, "Suspension notice", templates[2].Subject)
}

func TestSaveTemplate_InvalidStage(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPut, "/api/templates/15", TemplateDTO{Subject: "s", Active: true})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/settings/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decode[SettingsDTO](t, rec)
	assert.True(t, cfg.EmailRemindersEnabled, "defaults are all enabled")

	cfg.SuspensionEnabled = false
	rec = h.do(t, http.MethodPut, "/api/settings/", cfg)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/settings/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg = decode[SettingsDTO](t, rec)
	assert.False(t, cfg.SuspensionEnabled)
	assert.True(t, cfg.RemovalEnabled)
}
