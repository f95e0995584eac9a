/*
errors.go - Centralized error types for the dues engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Validation errors - rejected synchronously, no state mutation
  2. Not-found errors  - unknown member/template/record, no mutation
  3. Dispatch errors   - external email/access-control call failed; logged,
     never fatal to a run
  4. Race errors       - concurrent idempotency write lost; retried once,
     then treated as an already-fired no-op

SEE ALSO:
  - escalation.go: Uses ErrStageAlreadyFired as the idempotency guard
  - api/handlers.go: Maps these onto HTTP status codes
*/
package dues

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMemberNotFound is returned when a referenced member doesn't exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrTemplateNotFound is returned when no template exists for a stage.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrInvalidMonthKey is returned for a malformed month key.
	ErrInvalidMonthKey = errors.New("invalid month key")

	// ErrInvalidStatus is returned for an unknown payment status value.
	ErrInvalidStatus = errors.New("invalid payment status")

	// ErrInvalidStage is returned for a stage outside the ladder.
	ErrInvalidStage = errors.New("invalid stage")

	// ErrExtensionDateInPast is returned when granting an extension whose
	// valid-until date is before today.
	ErrExtensionDateInPast = errors.New("extension date in the past")

	// ErrNoActiveExtension is returned when revoking a member with no
	// active extension.
	ErrNoActiveExtension = errors.New("no active extension")

	// ErrStageAlreadyFired is returned by the reminder log's conditional
	// insert when the (member, month, stage) triple already exists. This is
	// the expected outcome of the idempotency guard, not a failure.
	ErrStageAlreadyFired = errors.New("stage already fired")

	// ErrDispatchFailed is returned when an external email or access-control
	// call failed. Non-fatal to a run.
	ErrDispatchFailed = errors.New("external dispatch failed")

	// ErrNotSuspended is returned when reinstating a member whose derived
	// state is not suspended.
	ErrNotSuspended = errors.New("member is not suspended")

	// ErrNoPlatformIdentity is returned when an access-control action is
	// requested for a member with no linked platform identity.
	ErrNoPlatformIdentity = errors.New("member has no platform identity")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PastDateError details a rejected extension grant.
type PastDateError struct {
	MemberID MemberID
	Until    time.Time
	Today    time.Time
}

func (e *PastDateError) Error() string {
	return fmt.Sprintf("extension for %s rejected: valid-until %s is before %s",
		e.MemberID, e.Until.Format("2006-01-02"), e.Today.Format("2006-01-02"))
}

func (e *PastDateError) Unwrap() error { return ErrExtensionDateInPast }

// DispatchError details a failed external action.
type DispatchError struct {
	MemberID MemberID
	Stage    Stage
	Action   ActionKind
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s for %s at %s: %v", e.Action, e.MemberID, e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error { return ErrDispatchFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrTemplateNotFound)
}

// IsValidation returns true if the error is due to invalid caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrExtensionDateInPast) ||
		errors.Is(err, ErrNoActiveExtension) ||
		errors.Is(err, ErrInvalidMonthKey) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidStage) ||
		errors.Is(err, ErrNotSuspended) ||
		errors.Is(err, ErrNoPlatformIdentity)
}

// IsAlreadyFired returns true if a reminder-log write lost the idempotency
// race. Safe to treat as success.
func IsAlreadyFired(err error) bool {
	return errors.Is(err, ErrStageAlreadyFired)
}
