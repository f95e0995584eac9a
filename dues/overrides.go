/*
overrides.go - Administrator overrides: extensions and forgiveness

PURPOSE:
  Extensions temporarily suppress escalation for a member until a date;
  forgiveness permanently waives one specific month. Either makes the
  member exempt: no stage fires while exempt, regardless of unpaid
  status.

SEMANTICS:
  - GrantExtension rejects valid-until dates in the past and replaces
    any existing active extension.
  - RevokeExtension is forward-looking only: stages already skipped
    earlier in the month are NOT retroactively fired; evaluation simply
    resumes on the next run.
  - Forgive is idempotent: forgiving an already-forgiven month is a
    successful no-op.

SEE ALSO:
  - escalation.go: Exemption check gating every stage
*/
package dues

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OverrideService manages extensions and forgiveness.
type OverrideService struct {
	Store Store
	Clock Clock
}

func NewOverrideService(store Store, clock Clock) *OverrideService {
	return &OverrideService{Store: store, Clock: clock}
}

// GrantExtension suppresses escalation for the member through until
// (inclusive). Replaces any existing active extension for the member.
func (s *OverrideService) GrantExtension(ctx context.Context, id MemberID, until time.Time, reason, grantedBy string) (*Extension, error) {
	m, err := s.Store.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}

	today := s.Clock.Today()
	untilDay := time.Date(until.Year(), until.Month(), until.Day(), 0, 0, 0, 0, time.UTC)
	if untilDay.Before(today) {
		return nil, &PastDateError{MemberID: id, Until: untilDay, Today: today}
	}

	ext := Extension{
		ID:         uuid.NewString(),
		MemberID:   id,
		ValidUntil: untilDay,
		Reason:     reason,
		Active:     true,
		GrantedBy:  grantedBy,
		GrantedAt:  today,
	}
	if err := s.Store.SaveExtension(ctx, ext); err != nil {
		return nil, err
	}
	return &ext, nil
}

// RevokeExtension deactivates the member's active extension immediately.
// Forward-looking only: stages already skipped this month stay skipped.
func (s *OverrideService) RevokeExtension(ctx context.Context, id MemberID) error {
	m, err := s.Store.GetMember(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	return s.Store.DeactivateExtension(ctx, id)
}

// Forgive waives escalation for one month and marks the month record
// forgiven. Idempotent: forgiving a forgiven month is a no-op.
func (s *OverrideService) Forgive(ctx context.Context, id MemberID, month MonthKey, reason, grantedBy string) error {
	if !month.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMonthKey, month)
	}
	m, err := s.Store.GetMember(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}

	if existing, err := s.Store.GetForgiveness(ctx, id, month); err != nil {
		return err
	} else if existing != nil {
		return nil // already forgiven
	}

	err = s.Store.SaveForgiveness(ctx, Forgiveness{
		ID:        uuid.NewString(),
		MemberID:  id,
		Month:     month,
		Reason:    reason,
		GrantedBy: grantedBy,
		GrantedAt: s.Clock.Today(),
	})
	if err != nil {
		return err
	}

	return s.Store.UpsertMonth(ctx, DuesMonthRecord{
		MemberID:  id,
		Month:     month,
		Status:    StatusForgiven,
		Notes:     reason,
		UpdatedBy: SourceManual,
		UpdatedAt: s.Clock.Today(),
	})
}

// Exempt reports whether escalation is suppressed for the member on the
// given day: dues-exempt flag, active extension covering the day, or a
// forgiveness entry for the month.
func (s *OverrideService) Exempt(ctx context.Context, m Member, month MonthKey, day time.Time) (bool, error) {
	if m.Exempt {
		return true, nil
	}
	ext, err := s.Store.ActiveExtension(ctx, m.ID)
	if err != nil {
		return false, err
	}
	if ext != nil && ext.Covers(day) {
		return true, nil
	}
	f, err := s.Store.GetForgiveness(ctx, m.ID, month)
	if err != nil {
		return false, err
	}
	return f != nil, nil
}
