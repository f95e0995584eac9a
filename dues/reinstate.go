/*
reinstate.go - Manual reversal of the access consequence of suspension

PURPOSE:
  Reinstate restores a suspended member's external platform access.
  It deliberately does NOT touch the DuesMonthRecord: dues state and
  external-access state are decoupled so an officer can restore access
  ahead of confirmed payment.

SEMANTICS:
  - Only meaningful when the member's derived state is suspended;
    anything else is a validation error.
  - Invokes the external restore exactly once; no automatic retry.
  - The restore outcome (success or failure) is reported to the caller
    with a message either way.
*/
package dues

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AccessRestorer is the slice of the external access-control system
// needed for reinstatement.
type AccessRestorer interface {
	Restore(ctx context.Context, externalID string) error
}

// ReinstateResult reports the restore outcome.
type ReinstateResult struct {
	MemberID MemberID
	Restored bool
	Message  string
}

// Reinstater handles manual reinstatement of suspended members.
type Reinstater struct {
	Store   Store
	Access  AccessRestorer
	Clock   Clock
	Timeout time.Duration
	Log     zerolog.Logger

	resolver *StateResolver
}

func NewReinstater(store Store, access AccessRestorer, clock Clock, log zerolog.Logger) *Reinstater {
	return &Reinstater{
		Store:    store,
		Access:   access,
		Clock:    clock,
		Timeout:  10 * time.Second,
		Log:      log.With().Str("component", "reinstate").Logger(),
		resolver: NewStateResolver(store),
	}
}

// Reinstate restores external access for a suspended member. The dues
// month record is left unchanged.
func (r *Reinstater) Reinstate(ctx context.Context, id MemberID) (ReinstateResult, error) {
	res := ReinstateResult{MemberID: id}

	m, err := r.Store.GetMember(ctx, id)
	if err != nil {
		return res, err
	}
	if m == nil {
		return res, fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}

	today := r.Clock.Today()
	st, err := r.resolver.Resolve(ctx, *m, MonthKeyFor(today), today)
	if err != nil {
		return res, err
	}
	if !st.Suspended {
		return res, fmt.Errorf("%w: %s is %s", ErrNotSuspended, id, st.State)
	}
	if m.PlatformID == "" {
		return res, fmt.Errorf("%w: %s", ErrNoPlatformIdentity, id)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	if err := r.Access.Restore(callCtx, m.PlatformID); err != nil {
		r.Log.Error().Err(err).Str("member", string(id)).Msg("restore access failed")
		res.Message = fmt.Sprintf("access restore failed: %v; dues status unchanged", err)
		return res, nil
	}

	r.Log.Info().Str("member", string(id)).Msg("access restored")
	res.Restored = true
	res.Message = "access restored; dues status unchanged"
	return res, nil
}
