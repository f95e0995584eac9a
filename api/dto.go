/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes for the API layer. Domain types never cross the HTTP
  boundary directly; handlers map between DTOs and dues types.
*/
package api

// =============================================================================
// MEMBERS
// =============================================================================

type MemberDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Exempt      bool   `json:"exempt"`
	PlatformID  string `json:"platform_id,omitempty"`
	MonthlyDues string `json:"monthly_dues"`
	JoinedAt    string `json:"joined_at"`
}

type CreateMemberRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Exempt      bool   `json:"exempt"`
	PlatformID  string `json:"platform_id"`
	MonthlyDues string `json:"monthly_dues"`
	JoinedAt    string `json:"joined_at"` // YYYY-MM-DD
}

// =============================================================================
// MONTH RECORDS
// =============================================================================

type MonthRecordDTO struct {
	MemberID  string `json:"member_id"`
	Month     string `json:"month"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

type SetStatusRequest struct {
	Month  string `json:"month"`
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type SyncRequest struct {
	From string `json:"from"` // YYYY-MM-DD
	To   string `json:"to"`
}

type SyncResponse struct {
	Updated int `json:"updated"`
}

// =============================================================================
// ESCALATION
// =============================================================================

type RunResultDTO struct {
	RunID          string `json:"run_id"`
	Month          string `json:"month"`
	DayOfMonth     int    `json:"day_of_month"`
	MembersChecked int    `json:"members_checked"`
	MembersSkipped int    `json:"members_skipped"`
	StagesFired    int    `json:"stages_fired"`
	ActionsFired   int    `json:"actions_fired"`
	Failures       int    `json:"failures"`
}

type StatusReportDTO struct {
	CurrentMonth   string            `json:"current_month"`
	DayOfMonth     int               `json:"day_of_month"`
	UnpaidCount    int               `json:"unpaid_count"`
	SuspendedCount int               `json:"suspended_count"`
	UnpaidMembers  []MemberStatusDTO `json:"unpaid_members"`
}

type MemberStatusDTO struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	State    string `json:"state"`
	Exempt   bool   `json:"exempt"`
}

// =============================================================================
// OVERRIDES
// =============================================================================

type GrantExtensionRequest struct {
	Until     string `json:"until"` // YYYY-MM-DD, inclusive
	Reason    string `json:"reason"`
	GrantedBy string `json:"granted_by"`
}

type ExtensionDTO struct {
	ID         string `json:"id"`
	MemberID   string `json:"member_id"`
	ValidUntil string `json:"valid_until"`
	Reason     string `json:"reason"`
	Active     bool   `json:"active"`
	GrantedBy  string `json:"granted_by"`
}

type ForgiveRequest struct {
	Month     string `json:"month"` // e.g. "Mar_2025"
	Reason    string `json:"reason"`
	GrantedBy string `json:"granted_by"`
}

type ReinstateResponse struct {
	MemberID string `json:"member_id"`
	Restored bool   `json:"restored"`
	Message  string `json:"message"`
}

// =============================================================================
// TEMPLATES + SETTINGS
// =============================================================================

type TemplateDTO struct {
	Stage   int    `json:"stage"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Active  bool   `json:"active"`
}

type SettingsDTO struct {
	EmailRemindersEnabled bool `json:"email_reminders_enabled"`
	SuspensionEnabled     bool `json:"suspension_enabled"`
	RemovalEnabled        bool `json:"removal_enabled"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
