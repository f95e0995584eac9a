/*
store.go - Persistence interfaces for the dues engine

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  MemberStore:   Roster persistence
  MonthStore:    Sparse per-member, per-month payment records
  ReminderLog:   Append-only fired-stage log with conditional insert
  OverrideStore: Extensions and forgiveness
  TemplateStore: Stage message templates
  SettingsStore: Category switches

CONDITIONAL INSERT CONTRACT:
  ReminderLog.Record is an "insert if absent" on the (member, month, stage)
  triple. If the triple exists it returns ErrStageAlreadyFired and writes
  nothing. This is what makes concurrent runs race-safe: two processes
  evaluating the same member on the same day cannot both fire a stage.

SPARSE MONTH RECORDS:
  GetMonth returns nil (not an error) when no record exists; an absent
  record means implicit "unpaid". Records are never hard-deleted; status
  changes supersede prior status.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite (UNIQUE constraint backs Record)
  - dues/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level month-record operations
  - escalation.go: The engine consuming these interfaces
*/
package dues

import "context"

// =============================================================================
// MEMBER STORE
// =============================================================================

type MemberStore interface {
	SaveMember(ctx context.Context, m Member) error

	// GetMember returns nil if the member doesn't exist.
	GetMember(ctx context.Context, id MemberID) (*Member, error)

	ListMembers(ctx context.Context) ([]Member, error)
}

// =============================================================================
// MONTH STORE - Sparse (member, month) -> status
// =============================================================================

type MonthStore interface {
	// GetMonth returns nil if no record exists (implicit unpaid).
	GetMonth(ctx context.Context, id MemberID, month MonthKey) (*DuesMonthRecord, error)

	// UpsertMonth creates or supersedes the record for (member, month).
	UpsertMonth(ctx context.Context, rec DuesMonthRecord) error

	// ListMonth returns all existing records for a month.
	ListMonth(ctx context.Context, month MonthKey) ([]DuesMonthRecord, error)

	// ListMemberMonths returns all records for a member, oldest first.
	ListMemberMonths(ctx context.Context, id MemberID) ([]DuesMonthRecord, error)
}

// =============================================================================
// REMINDER LOG - Append-only, conditional insert
// =============================================================================

type ReminderLog interface {
	// Record inserts the entry if the (member, month, stage) triple is
	// absent, otherwise returns ErrStageAlreadyFired. This is the ONLY
	// write operation; entries are never updated or deleted.
	Record(ctx context.Context, e ReminderEntry) error

	// HasFired reports whether the triple exists.
	HasFired(ctx context.Context, id MemberID, month MonthKey, stage Stage) (bool, error)

	// HasFiredAny reports whether the stage has fired for the member in any
	// month. Used for the permanent "removed" derivation.
	HasFiredAny(ctx context.Context, id MemberID, stage Stage) (bool, error)

	// Entries returns the member's fired stages for a month, in stage order.
	Entries(ctx context.Context, id MemberID, month MonthKey) ([]ReminderEntry, error)
}

// =============================================================================
// OVERRIDE STORE - Extensions and forgiveness
// =============================================================================

type OverrideStore interface {
	// SaveExtension persists a new extension, deactivating any prior active
	// extension for the member in the same write.
	SaveExtension(ctx context.Context, e Extension) error

	// ActiveExtension returns nil if the member has no active extension.
	// Natural date expiry is the caller's concern (Extension.Covers).
	ActiveExtension(ctx context.Context, id MemberID) (*Extension, error)

	// DeactivateExtension flips the active flag; ErrNoActiveExtension if
	// there is nothing to revoke.
	DeactivateExtension(ctx context.Context, id MemberID) error

	// SaveForgiveness is idempotent per (member, month): saving an existing
	// forgiveness is a successful no-op.
	SaveForgiveness(ctx context.Context, f Forgiveness) error

	// GetForgiveness returns nil if the month is not forgiven.
	GetForgiveness(ctx context.Context, id MemberID, month MonthKey) (*Forgiveness, error)
}

// =============================================================================
// TEMPLATE + SETTINGS STORES
// =============================================================================

type TemplateStore interface {
	SaveTemplate(ctx context.Context, t Template) error

	// GetTemplate returns nil if no template exists for the stage.
	GetTemplate(ctx context.Context, stage Stage) (*Template, error)

	ListTemplates(ctx context.Context) ([]Template, error)
}

type SettingsStore interface {
	// GetSettings returns DefaultSettings if none were ever saved.
	GetSettings(ctx context.Context) (Settings, error)

	SaveSettings(ctx context.Context, s Settings) error
}

// =============================================================================
// STORE - Everything the engine needs, satisfied by sqlite and memory stores
// =============================================================================

type Store interface {
	MemberStore
	MonthStore
	ReminderLog
	OverrideStore
	TemplateStore
	SettingsStore
}

// =============================================================================
// EXTERNAL PAYMENT LEDGER - Consumed interface, read-only
// =============================================================================

// PaymentLedger is the external system of record for settled payments.
// The engine only reads it during ledger sync; how a payment becomes
// "paid" is outside this module.
type PaymentLedger interface {
	ListPayments(ctx context.Context, id MemberID, period Period) ([]Payment, error)
}
