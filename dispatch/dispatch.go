/*
Package dispatch executes a stage's side effects against the external
email sender and community-platform access control.

PURPOSE:
  The engine decides WHAT fires; this package does the firing. Per-stage
  action sets:
    day 3, day 8  -> reminder email only
    day 10        -> reminder email + suspend platform access (if enabled)
    day 30        -> remove platform access (if enabled), no email

GUARANTEES:
  - Bounded per-call timeout: a hang on one external call never blocks
    the run.
  - Outbound email is rate-limited so a large roster cannot trip the
    provider's throttle.
  - Per-action results are reported back so the engine can decide whether
    the stage counts as fired.

SEE ALSO:
  - postmark.go: EmailSender implementation
  - platform.go: AccessControl implementation
*/
package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/warp/club-engine/dues"
)

// =============================================================================
// EXTERNAL COLLABORATOR INTERFACES
// =============================================================================

// EmailSender delivers a rendered reminder.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AccessControl is the third-party community platform's membership/role
// system.
type AccessControl interface {
	Suspend(ctx context.Context, externalID string) error
	Restore(ctx context.Context, externalID string) error
	Remove(ctx context.Context, externalID string) error
}

// =============================================================================
// DISPATCHER
// =============================================================================

type Dispatcher struct {
	Email   EmailSender
	Access  AccessControl
	Timeout time.Duration // per external call
	Limiter *rate.Limiter // outbound email throttle
	Log     zerolog.Logger
}

var _ dues.ActionDispatcher = (*Dispatcher)(nil)

func New(email EmailSender, access AccessControl, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Email:   email,
		Access:  access,
		Timeout: 10 * time.Second,
		Limiter: rate.NewLimiter(rate.Limit(5), 10), // 5 emails/sec, burst 10
		Log:     log.With().Str("component", "dispatch").Logger(),
	}
}

// Dispatch executes the stage's action set and reports per-action results.
// A member with no platform identity skips access actions rather than
// failing them; there is nothing to act on.
func (d *Dispatcher) Dispatch(ctx context.Context, m dues.Member, stage dues.Stage, msg dues.RenderedMessage, cfg dues.Settings) dues.DispatchOutcome {
	var out dues.DispatchOutcome

	// Stage-10 email rides along with suspension regardless of the
	// reminder switch; day 3/8 emails honor it.
	sendEmail := false
	switch stage {
	case dues.StageReminder1, dues.StageReminder2:
		sendEmail = cfg.EmailRemindersEnabled
	case dues.StageSuspend:
		sendEmail = true
	}
	if sendEmail {
		out.Results = append(out.Results, dues.ActionResult{
			Action: dues.ActionEmail,
			Err:    d.sendEmail(ctx, m, stage, msg),
		})
	}

	switch stage {
	case dues.StageSuspend:
		if cfg.SuspensionEnabled && m.PlatformID != "" {
			out.Results = append(out.Results, dues.ActionResult{
				Action: dues.ActionSuspend,
				Err:    d.accessCall(ctx, m, stage, dues.ActionSuspend),
			})
		}
	case dues.StageRemove:
		if cfg.RemovalEnabled && m.PlatformID != "" {
			out.Results = append(out.Results, dues.ActionResult{
				Action: dues.ActionRemove,
				Err:    d.accessCall(ctx, m, stage, dues.ActionRemove),
			})
		}
	}
	return out
}

func (d *Dispatcher) sendEmail(ctx context.Context, m dues.Member, stage dues.Stage, msg dues.RenderedMessage) error {
	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return &dues.DispatchError{MemberID: m.ID, Stage: stage, Action: dues.ActionEmail, Err: err}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	if err := d.Email.Send(callCtx, m.Email, msg.Subject, msg.Body); err != nil {
		d.Log.Error().Err(err).Str("member", string(m.ID)).Stringer("stage", stage).Msg("email send failed")
		return &dues.DispatchError{MemberID: m.ID, Stage: stage, Action: dues.ActionEmail, Err: err}
	}
	d.Log.Debug().Str("member", string(m.ID)).Stringer("stage", stage).Msg("reminder email sent")
	return nil
}

func (d *Dispatcher) accessCall(ctx context.Context, m dues.Member, stage dues.Stage, action dues.ActionKind) error {
	callCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var err error
	switch action {
	case dues.ActionSuspend:
		err = d.Access.Suspend(callCtx, m.PlatformID)
	case dues.ActionRemove:
		err = d.Access.Remove(callCtx, m.PlatformID)
	}
	if err != nil {
		d.Log.Error().Err(err).Str("member", string(m.ID)).Str("action", string(action)).Msg("access control call failed")
		return &dues.DispatchError{MemberID: m.ID, Stage: stage, Action: action, Err: err}
	}
	d.Log.Info().Str("member", string(m.ID)).Str("action", string(action)).Msg("access control call succeeded")
	return nil
}
