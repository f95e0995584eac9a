/*
ledger.go - Per-member, per-month dues records

PURPOSE:
  DuesLedger owns the sparse month-record map: lazy creation, manual
  status updates, and synchronization from the external payment ledger.

LAZY CREATION:
  Most (member, month) combinations are never touched. A record only
  exists once the month is evaluated, synced, or overridden; until then
  MonthRecord synthesizes an implicit "unpaid" view without persisting.

CORRECTIONS:
  A month marked paid or forgiven is effectively immutable for reporting,
  but a later manual correction is allowed; the record is superseded in
  place with a new UpdatedBy source, never deleted.

SEE ALSO:
  - store.go: MonthStore interface
  - escalation.go: Reads records through MonthRecord
*/
package dues

import (
	"context"
	"fmt"
)

// DuesLedger provides month-record operations on top of a Store.
type DuesLedger struct {
	Store Store
	Clock Clock
}

func NewDuesLedger(store Store, clock Clock) *DuesLedger {
	return &DuesLedger{Store: store, Clock: clock}
}

// MonthRecord returns the record for (member, month), synthesizing an
// implicit unpaid record when none exists. The synthesized record is not
// persisted; persistence happens on first mutation.
func (l *DuesLedger) MonthRecord(ctx context.Context, id MemberID, month MonthKey) (DuesMonthRecord, error) {
	rec, err := l.Store.GetMonth(ctx, id, month)
	if err != nil {
		return DuesMonthRecord{}, err
	}
	if rec == nil {
		return DuesMonthRecord{
			MemberID: id,
			Month:    month,
			Status:   StatusUnpaid,
		}, nil
	}
	return *rec, nil
}

// SetStatus records a manual or scheduler-driven status change.
func (l *DuesLedger) SetStatus(ctx context.Context, id MemberID, month MonthKey, status PaymentStatus, notes string, source UpdateSource) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if !month.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMonthKey, month)
	}
	m, err := l.Store.GetMember(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	return l.Store.UpsertMonth(ctx, DuesMonthRecord{
		MemberID:  id,
		Month:     month,
		Status:    status,
		Notes:     notes,
		UpdatedBy: source,
		UpdatedAt: l.Clock.Today(),
	})
}

// SyncFromPayments marks months paid according to the external payment
// ledger. Returns the number of records updated. Months already forgiven
// are left alone; payment and forgiveness are distinct for reporting.
func (l *DuesLedger) SyncFromPayments(ctx context.Context, payments PaymentLedger, id MemberID, period Period) (int, error) {
	m, err := l.Store.GetMember(ctx, id)
	if err != nil {
		return 0, err
	}
	if m == nil {
		return 0, fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}

	list, err := payments.ListPayments(ctx, id, period)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, p := range list {
		if !p.Month.Valid() {
			continue
		}
		rec, err := l.Store.GetMonth(ctx, id, p.Month)
		if err != nil {
			return updated, err
		}
		if rec != nil && (rec.Status == StatusPaid || rec.Status == StatusForgiven) {
			continue
		}
		err = l.Store.UpsertMonth(ctx, DuesMonthRecord{
			MemberID:  id,
			Month:     p.Month,
			Status:    StatusPaid,
			Notes:     fmt.Sprintf("paid %s on %s", p.Amount.StringFixed(2), p.PaidAt.Format("2006-01-02")),
			UpdatedBy: SourceLedgerSync,
			UpdatedAt: l.Clock.Today(),
		})
		if err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
