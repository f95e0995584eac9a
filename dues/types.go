/*
Package dues implements the dues compliance escalation engine.

PURPOSE:
  This package contains the core types and algorithms for tracking each
  member's monthly payment state and escalating unpaid months through
  reminder -> suspension -> removal stages. It coordinates administrator
  overrides (extensions, forgiveness, reinstatement) and records every
  fired stage in an append-only reminder log.

KEY CONCEPTS IN THIS FILE (types.go):
  - Member: club roster entry with optional external platform identity
  - MonthKey: a (month, year) key in "Jan_2006" wire format
  - Stage: one rung of the escalation ladder (day 3 / 8 / 10 / 30)
  - DuesMonthRecord: per-member, per-month payment status
  - ReminderEntry: append-only record of a fired (member, month, stage)
  - Extension / Forgiveness: administrator overrides
  - Settings: independent category switches for each action kind

DESIGN PRINCIPLES:
  1. Idempotency: a (member, month, stage) triple fires at most once
  2. Derived state: suspension/removal are computed, never persisted
  3. Precision: dues amounts use decimal.Decimal, never float
  4. Isolation: one member's failure never blocks another's evaluation

SEE ALSO:
  - escalation.go: The engine that advances the stage ladder
  - store.go: Persistence interfaces
  - state.go: Derived member state
*/
package dues

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string

// =============================================================================
// MEMBER - Club roster entry
// =============================================================================

type Member struct {
	ID          MemberID
	Name        string
	Email       string
	Exempt      bool   // non-dues-paying member, never escalated
	PlatformID  string // identity on the external community platform, may be empty
	MonthlyDues decimal.Decimal
	JoinedAt    time.Time
	CreatedAt   time.Time
}

// =============================================================================
// MONTH KEY - Wire format "Jan_2006", e.g. "Mar_2025"
// =============================================================================

const monthKeyLayout = "Jan_2006"

type MonthKey string

// MonthKeyFor returns the key for the month containing t.
func MonthKeyFor(t time.Time) MonthKey {
	return MonthKey(t.Format(monthKeyLayout))
}

// ParseMonthKey validates and normalizes a month key string.
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse(monthKeyLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q (want e.g. %q)", ErrInvalidMonthKey, s, "Mar_2025")
	}
	return MonthKeyFor(t), nil
}

// Time returns the first day of the month in UTC.
func (m MonthKey) Time() time.Time {
	t, err := time.Parse(monthKeyLayout, string(m))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (m MonthKey) MonthName() string { return m.Time().Month().String() }
func (m MonthKey) Year() int         { return m.Time().Year() }
func (m MonthKey) Valid() bool       { return !m.Time().IsZero() }

func (m MonthKey) Next() MonthKey { return MonthKeyFor(m.Time().AddDate(0, 1, 0)) }
func (m MonthKey) Prev() MonthKey { return MonthKeyFor(m.Time().AddDate(0, -1, 0)) }

// =============================================================================
// PAYMENT STATUS
// =============================================================================

type PaymentStatus string

const (
	StatusUnpaid   PaymentStatus = "unpaid"
	StatusPaid     PaymentStatus = "paid"
	StatusLate     PaymentStatus = "late"
	StatusForgiven PaymentStatus = "forgiven"
	StatusExtended PaymentStatus = "extended"
)

// Escalatable reports whether a month with this status is still on the
// escalation ladder. Paid, forgiven and extended months never escalate.
func (s PaymentStatus) Escalatable() bool {
	return s == StatusUnpaid || s == StatusLate
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPaid, StatusLate, StatusForgiven, StatusExtended:
		return true
	}
	return false
}

// UpdateSource records which path last mutated a month record.
type UpdateSource string

const (
	SourceManual     UpdateSource = "manual"
	SourceLedgerSync UpdateSource = "ledger_sync"
	SourceScheduler  UpdateSource = "scheduler"
)

// =============================================================================
// DUES MONTH RECORD - Sparse: created lazily, at most one per (member, month)
// =============================================================================

type DuesMonthRecord struct {
	MemberID  MemberID
	Month     MonthKey
	Status    PaymentStatus
	Notes     string
	UpdatedBy UpdateSource
	UpdatedAt time.Time
}

// =============================================================================
// STAGE - Escalation ladder rung, named by its day-of-month threshold
// =============================================================================

type Stage int

const (
	StageReminder1 Stage = 3  // first reminder email
	StageReminder2 Stage = 8  // second reminder email
	StageSuspend   Stage = 10 // email + suspend platform access
	StageRemove    Stage = 30 // remove platform access
)

// Stages returns the ladder in strictly increasing threshold order.
// Higher stages must never fire before lower ones within a month.
func Stages() []Stage {
	return []Stage{StageReminder1, StageReminder2, StageSuspend, StageRemove}
}

// Threshold is the day-of-month on or after which the stage is due.
func (s Stage) Threshold() int { return int(s) }

func (s Stage) Valid() bool {
	switch s {
	case StageReminder1, StageReminder2, StageSuspend, StageRemove:
		return true
	}
	return false
}

// SendsEmail reports whether the stage's action set includes a reminder email.
func (s Stage) SendsEmail() bool { return s != StageRemove }

func (s Stage) String() string { return fmt.Sprintf("day_%d", int(s)) }

// CategoryEnabled maps each stage to its independent settings switch.
// This is separate from the per-stage template Active flag.
func (s Stage) CategoryEnabled(cfg Settings) bool {
	switch s {
	case StageReminder1, StageReminder2:
		return cfg.EmailRemindersEnabled
	case StageSuspend:
		return cfg.SuspensionEnabled
	case StageRemove:
		return cfg.RemovalEnabled
	}
	return false
}

// =============================================================================
// REMINDER LOG ENTRY - Append-only, unique per (member, month, stage)
// =============================================================================

type ReminderEntry struct {
	ID       string
	MemberID MemberID
	Month    MonthKey
	Stage    Stage
	FiredAt  time.Time
	RunID    string
}

// =============================================================================
// OVERRIDES
// =============================================================================

// Extension temporarily suppresses escalation for a member until a date.
// At most one active extension per member; a new grant replaces the prior one.
type Extension struct {
	ID         string
	MemberID   MemberID
	ValidUntil time.Time // inclusive date; must not be in the past at grant time
	Reason     string
	Active     bool
	GrantedBy  string
	GrantedAt  time.Time
}

// Covers reports whether the extension suppresses escalation on the given day.
func (e Extension) Covers(day time.Time) bool {
	if !e.Active {
		return false
	}
	y1, m1, d1 := day.Date()
	y2, m2, d2 := e.ValidUntil.Date()
	return y1 < y2 || (y1 == y2 && (m1 < m2 || (m1 == m2 && d1 <= d2)))
}

// Forgiveness permanently waives escalation for one specific month.
// Distinct from "paid" for reporting, identical in escalation effect.
type Forgiveness struct {
	ID        string
	MemberID  MemberID
	Month     MonthKey
	Reason    string
	GrantedBy string
	GrantedAt time.Time
}

// =============================================================================
// TEMPLATE - Stage-specific message content with {placeholder} tokens
// =============================================================================

type Template struct {
	Stage     Stage
	Subject   string
	Body      string
	Active    bool // inactive template skips the stage entirely
	UpdatedAt time.Time
}

// =============================================================================
// SETTINGS - Independent enable/disable switches per action category
// =============================================================================

type Settings struct {
	EmailRemindersEnabled bool
	SuspensionEnabled     bool
	RemovalEnabled        bool
}

func DefaultSettings() Settings {
	return Settings{
		EmailRemindersEnabled: true,
		SuspensionEnabled:     true,
		RemovalEnabled:        true,
	}
}

// =============================================================================
// EXTERNAL PAYMENT LEDGER - Read-only collaborator feeding ledger sync
// =============================================================================

// Period bounds a payment query, inclusive on both ends.
type Period struct {
	From time.Time
	To   time.Time
}

// Payment is a settled payment reported by the external ledger.
type Payment struct {
	MemberID MemberID
	Month    MonthKey
	Amount   decimal.Decimal
	PaidAt   time.Time
}
