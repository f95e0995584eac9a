/*
state.go - Derived member state

PURPOSE:
  Suspension and removal are never persisted as their own fields; they
  are computed from the reminder log, the month record, and the override
  state. This avoids dual-write drift between the log and a cached flag.

LADDER (per member, per month):
  UNPAID -> REMINDED_3 -> REMINDED_8 -> SUSPENDED -> REMOVED
  PAID is reachable from any position via ledger sync or manual update
  and is terminal for the month. EXEMPT is an overlay, not a ladder
  position: it suppresses forward transitions but does not by itself
  reverse the access effects of SUSPENDED/REMOVED - those require
  explicit reinstatement.
*/
package dues

import (
	"context"
	"time"
)

// DerivedState is a member's position on the escalation ladder.
type DerivedState string

const (
	StateUnpaid    DerivedState = "unpaid"
	StateReminded3 DerivedState = "reminded_3"
	StateReminded8 DerivedState = "reminded_8"
	StateSuspended DerivedState = "suspended"
	StateRemoved   DerivedState = "removed"
	StatePaid      DerivedState = "paid"
	StateForgiven  DerivedState = "forgiven"
)

// MemberState is the computed view of a member for one month.
type MemberState struct {
	MemberID MemberID
	Month    MonthKey
	State    DerivedState
	Exempt   bool // overlay: escalation currently suppressed

	// Suspended: a day-10 entry exists for the month and the month was not
	// settled (paid/forgiven). An extension granted after suspension leaves
	// this true; access comes back only via explicit reinstatement.
	Suspended bool

	// Removed: a day-30 entry exists in any month. Permanent.
	Removed bool
}

// StateResolver derives member state from stores. Pure with respect to
// the stores' contents; nothing here mutates.
type StateResolver struct {
	Store Store
}

func NewStateResolver(store Store) *StateResolver {
	return &StateResolver{Store: store}
}

// Resolve computes the member's derived state for a month as of day.
func (r *StateResolver) Resolve(ctx context.Context, m Member, month MonthKey, day time.Time) (MemberState, error) {
	st := MemberState{MemberID: m.ID, Month: month}

	rec, err := r.Store.GetMonth(ctx, m.ID, month)
	if err != nil {
		return st, err
	}
	status := StatusUnpaid
	if rec != nil {
		status = rec.Status
	}

	entries, err := r.Store.Entries(ctx, m.ID, month)
	if err != nil {
		return st, err
	}
	highest := Stage(0)
	for _, e := range entries {
		if e.Stage > highest {
			highest = e.Stage
		}
	}

	st.Removed, err = r.Store.HasFiredAny(ctx, m.ID, StageRemove)
	if err != nil {
		return st, err
	}

	settled := status == StatusPaid || status == StatusForgiven
	st.Suspended = highest >= StageSuspend && !settled

	st.Exempt = m.Exempt
	if !st.Exempt {
		ext, err := r.Store.ActiveExtension(ctx, m.ID)
		if err != nil {
			return st, err
		}
		if ext != nil && ext.Covers(day) {
			st.Exempt = true
		} else {
			f, err := r.Store.GetForgiveness(ctx, m.ID, month)
			if err != nil {
				return st, err
			}
			st.Exempt = f != nil
		}
	}

	switch {
	case status == StatusPaid:
		st.State = StatePaid
	case status == StatusForgiven:
		st.State = StateForgiven
	case st.Removed:
		st.State = StateRemoved
	case highest >= StageSuspend:
		st.State = StateSuspended
	case highest >= StageReminder2:
		st.State = StateReminded8
	case highest >= StageReminder1:
		st.State = StateReminded3
	default:
		st.State = StateUnpaid
	}
	return st, nil
}
