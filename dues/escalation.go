/*
escalation.go - The escalation engine

PURPOSE:
  Drives the stage ladder for every member with an unpaid current month.
  The daily tick and the administrator's "run check now" both call
  RunCheck; the reminder log's conditional insert makes the two paths
  share one idempotency guard, so a manual run and the daily tick on the
  same day cannot double-fire a stage.

ALGORITHM (per member, per run):
  1. Skip if exempt (dues-exempt flag, active extension, or forgiveness
     for the current month) or the month's status is not unpaid/late.
  2. For each threshold T in {3, 8, 10, 30} ascending: if day-of-month
     >= T, the stage has not fired for (member, month), the stage's
     template is active, and its category switch is on - render, dispatch,
     record. A missed run therefore catches up: skipping from day 2 to
     day 11 fires stages 3, 8 and 10 in order within one run.

FIRE-THEN-RECORD POLICY (at-least-once):
  A stage is appended to the reminder log only when every action
  attempted for it succeeded. A failed dispatch leaves the stage
  unrecorded, so the next run retries it; a reminder may be delivered
  more than once under retry, but is never silently dropped. The member's
  ladder also stops for the run at the first failed stage, so stages
  cannot fire out of order across runs. Consistent across all four
  stages.

ISOLATION:
  Per-member errors are counted, logged and swallowed; a run always
  completes and reports aggregate counts.

SEE ALSO:
  - dispatch/dispatch.go: ActionDispatcher implementation
  - state.go: Derived state used by Status
*/
package dues

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// =============================================================================
// ACTION DISPATCH CONTRACT
// =============================================================================

type ActionKind string

const (
	ActionEmail   ActionKind = "email"
	ActionSuspend ActionKind = "suspend"
	ActionRemove  ActionKind = "remove"
)

// ActionResult is the outcome of one external call.
type ActionResult struct {
	Action ActionKind
	Err    error
}

// DispatchOutcome reports per-action success/failure for one stage so the
// engine can decide whether the stage counts as fired.
type DispatchOutcome struct {
	Results []ActionResult
}

func (o DispatchOutcome) Succeeded() int {
	n := 0
	for _, r := range o.Results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

func (o DispatchOutcome) Failed() int { return len(o.Results) - o.Succeeded() }

// OK reports whether the stage counts as fired: no attempted action
// failed. A zero-action outcome (nothing to act on, e.g. removal for a
// member with no platform identity) is vacuously OK so the stage is
// recorded and not re-evaluated forever.
func (o DispatchOutcome) OK() bool { return o.Failed() == 0 }

// ActionDispatcher executes a stage's side effects via the external
// email sender and access-control collaborators.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, m Member, stage Stage, msg RenderedMessage, cfg Settings) DispatchOutcome
}

// =============================================================================
// RUN RESULT
// =============================================================================

// RunResult is the aggregate outcome of one escalation run, for operator
// feedback. A run never aborts on a member's failure.
type RunResult struct {
	RunID          string
	Day            time.Time
	Month          MonthKey
	MembersChecked int
	MembersSkipped int
	StagesFired    int
	ActionsFired   int
	Failures       int
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store      Store
	Dispatcher ActionDispatcher
	Clock      Clock
	Log        zerolog.Logger

	ledger    *DuesLedger
	overrides *OverrideService
	resolver  *StateResolver
}

func NewEngine(store Store, dispatcher ActionDispatcher, clock Clock, log zerolog.Logger) *Engine {
	return &Engine{
		Store:      store,
		Dispatcher: dispatcher,
		Clock:      clock,
		Log:        log.With().Str("component", "escalation").Logger(),
		ledger:     NewDuesLedger(store, clock),
		overrides:  NewOverrideService(store, clock),
		resolver:   NewStateResolver(store),
	}
}

// RunCheck evaluates every member against the stage ladder for today.
// Safe to run twice on the same day: the reminder log check guarantees no
// duplicate external calls.
func (e *Engine) RunCheck(ctx context.Context) (RunResult, error) {
	today := e.Clock.Today()
	res := RunResult{
		RunID: uuid.NewString(),
		Day:   today,
		Month: MonthKeyFor(today),
	}

	cfg, err := e.Store.GetSettings(ctx)
	if err != nil {
		return res, err
	}
	members, err := e.Store.ListMembers(ctx)
	if err != nil {
		return res, err
	}

	e.Log.Info().Str("run_id", res.RunID).Int("day", today.Day()).
		Str("month", string(res.Month)).Int("members", len(members)).
		Msg("escalation run started")

	for _, m := range members {
		eligible, err := e.eligible(ctx, m, res.Month, today)
		if err != nil {
			res.Failures++
			e.Log.Error().Err(err).Str("member", string(m.ID)).Msg("eligibility check failed")
			continue
		}
		if !eligible {
			res.MembersSkipped++
			continue
		}
		res.MembersChecked++
		e.evaluateMember(ctx, m, cfg, today, &res)
	}

	e.Log.Info().Str("run_id", res.RunID).Int("actions_fired", res.ActionsFired).
		Int("failures", res.Failures).Int("checked", res.MembersChecked).
		Msg("escalation run completed")
	return res, nil
}

// eligible filters out exempt members and months that are off the ladder.
func (e *Engine) eligible(ctx context.Context, m Member, month MonthKey, day time.Time) (bool, error) {
	exempt, err := e.overrides.Exempt(ctx, m, month, day)
	if err != nil {
		return false, err
	}
	if exempt {
		return false, nil
	}
	rec, err := e.ledger.MonthRecord(ctx, m.ID, month)
	if err != nil {
		return false, err
	}
	return rec.Status.Escalatable(), nil
}

// evaluateMember walks the ladder for one member. Errors are recorded in
// res and never propagated; one member's failure must not stop the run.
func (e *Engine) evaluateMember(ctx context.Context, m Member, cfg Settings, today time.Time, res *RunResult) {
	month := MonthKeyFor(today)
	day := today.Day()

	for _, stage := range Stages() {
		if day < stage.Threshold() {
			break // thresholds are strictly increasing
		}

		fired, err := e.Store.HasFired(ctx, m.ID, month, stage)
		if err != nil {
			res.Failures++
			e.Log.Error().Err(err).Str("member", string(m.ID)).Stringer("stage", stage).Msg("reminder log check failed")
			return
		}
		if fired {
			continue
		}

		tmpl, err := e.Store.GetTemplate(ctx, stage)
		if err != nil {
			res.Failures++
			e.Log.Error().Err(err).Stringer("stage", stage).Msg("template lookup failed")
			return
		}
		if tmpl == nil || !tmpl.Active {
			continue // per-stage override, independent of the category switch
		}
		if !stage.CategoryEnabled(cfg) {
			continue
		}

		msg := Render(*tmpl, m, month)
		outcome := e.Dispatcher.Dispatch(ctx, m, stage, msg, cfg)
		res.ActionsFired += outcome.Succeeded()
		res.Failures += outcome.Failed()

		if !outcome.OK() {
			// At-least-once: leave the stage unrecorded so the next run
			// retries it, and stop the ladder to preserve stage order.
			e.Log.Warn().Str("member", string(m.ID)).Stringer("stage", stage).
				Int("failed", outcome.Failed()).Msg("dispatch failed, stage not recorded")
			return
		}

		if err := e.recordFired(ctx, m.ID, month, stage, res.RunID, today); err != nil {
			if IsAlreadyFired(err) {
				// Lost the race to a concurrent run; the stage fired.
				continue
			}
			res.Failures++
			e.Log.Error().Err(err).Str("member", string(m.ID)).Stringer("stage", stage).Msg("reminder log write failed")
			return
		}
		res.StagesFired++
	}
}

// recordFired performs the conditional insert, retrying once on transient
// store errors. ErrStageAlreadyFired is final: another run won the race.
func (e *Engine) recordFired(ctx context.Context, id MemberID, month MonthKey, stage Stage, runID string, today time.Time) error {
	entry := ReminderEntry{
		ID:       uuid.NewString(),
		MemberID: id,
		Month:    month,
		Stage:    stage,
		FiredAt:  today,
		RunID:    runID,
	}
	backoff := retry.WithMaxRetries(1, retry.NewConstant(50*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := e.Store.Record(ctx, entry)
		if err == nil || IsAlreadyFired(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// =============================================================================
// STATUS REPORT
// =============================================================================

// MemberStatus is one row of the operator status report.
type MemberStatus struct {
	MemberID MemberID
	Name     string
	Status   PaymentStatus
	State    DerivedState
	Exempt   bool
}

// StatusReport is the engine's answer to "where does everyone stand".
type StatusReport struct {
	CurrentMonth   MonthKey
	DayOfMonth     int
	UnpaidCount    int
	SuspendedCount int
	UnpaidMembers  []MemberStatus
}

// Status computes the current-month report across all members.
func (e *Engine) Status(ctx context.Context) (StatusReport, error) {
	today := e.Clock.Today()
	month := MonthKeyFor(today)
	report := StatusReport{CurrentMonth: month, DayOfMonth: today.Day()}

	members, err := e.Store.ListMembers(ctx)
	if err != nil {
		return report, err
	}

	for _, m := range members {
		rec, err := e.ledger.MonthRecord(ctx, m.ID, month)
		if err != nil {
			return report, err
		}
		st, err := e.resolver.Resolve(ctx, m, month, today)
		if err != nil {
			return report, err
		}
		if st.Suspended {
			report.SuspendedCount++
		}
		if rec.Status.Escalatable() && !m.Exempt {
			report.UnpaidCount++
			report.UnpaidMembers = append(report.UnpaidMembers, MemberStatus{
				MemberID: m.ID,
				Name:     m.Name,
				Status:   rec.Status,
				State:    st.State,
				Exempt:   st.Exempt,
			})
		}
	}
	return report, nil
}
