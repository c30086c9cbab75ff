/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error categories in one place for consistency and discoverability.
  Callers (HTTP layer, batch jobs) map categories to responses without
  inspecting error strings.

ERROR CATEGORIES:
  1. Validation errors - malformed input, incompatible resolution method,
     bad period span. Fix-and-resubmit.
  2. Conflict errors   - duplicate identifier, calculation already running.
     Retry-after.
  3. State errors      - invalid lifecycle transition, write to a locked
     period. Rejected before any write occurs.
  4. Not-found errors  - missing worker, period, or rate card reference.

USAGE:
  if payroll.IsConflict(err) { ... retry later ... }

  var rateErr *payroll.MissingRateCardError
  if errors.As(err, &rateErr) { ... report worker ... }
*/
package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all fix-and-resubmit failures.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is the root of all retry-after failures.
	ErrConflict = errors.New("conflict")

	// ErrState is returned for invalid lifecycle transitions and writes to
	// immutable records. Always rejected before any write.
	ErrState = errors.New("invalid state")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMissingBound is returned by hour normalization when either time
	// bound is absent. Hours are undefined; callers must not substitute
	// zero as if it were measured.
	ErrMissingBound = fmt.Errorf("%w: missing time bound", ErrValidation)

	// ErrCalculationInProgress is returned when a second wage calculation is
	// requested for a period whose first run has not finished.
	ErrCalculationInProgress = fmt.Errorf("%w: calculation already in progress", ErrConflict)

	// ErrPeriodLocked is returned for any write touching a locked period.
	ErrPeriodLocked = fmt.Errorf("%w: period is locked", ErrState)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a specific invalid field or rule violation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StateError reports a rejected lifecycle transition.
type StateError struct {
	Entity string
	From   string
	Action string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: cannot %s from status %q", e.Entity, e.Action, e.From)
}

func (e *StateError) Unwrap() error { return ErrState }

// MissingRateCardError reports a worker with reportable hours but no
// effective income profile. Never silently folded into a zero wage.
type MissingRateCardError struct {
	WorkerID WorkerID
	AsOf     Date
}

func (e *MissingRateCardError) Error() string {
	return fmt.Sprintf("no income profile for worker %s effective %s", e.WorkerID, e.AsOf)
}

func (e *MissingRateCardError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsState(err error) bool      { return errors.Is(err, ErrState) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
