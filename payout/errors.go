/*
errors.go - Error types for the report pipeline

PURPOSE:
  Separates the three outcomes a fetch can have: data, legitimate absence,
  and failure. Absence maps to an explicit default in the component that
  asked; failure is surfaced (or degraded, for enrichment steps) but never
  silently turned into a zero.

ERROR CATEGORIES:
  1. Absence      - ErrContractNotFound (caller applies the default)
  2. Hard failure - ErrActivityUnavailable (report cannot be built)
  3. Data quality - ErrInvalidSchedule (schedule rejected at load time)
  4. Client input - ErrInvalidPeriod, ErrInvalidAudience
  5. Transient    - ErrTransient (store said "try again")

USAGE:
  report, err := builder.Build(ctx, "A001", period, payout.AudiencePublic)
  if errors.Is(err, payout.ErrActivityUnavailable) {
      // no meaningful report without raw data
  }
  if payout.IsTransient(err) {
      // safe to retry
  }

SEE ALSO:
  - store.go: Source interface whose implementations return these
  - report.go: Partial-failure policy per step
*/
package payout

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrActivityUnavailable is returned when the raw activity fetch fails.
	// An empty result is not an error.
	ErrActivityUnavailable = errors.New("activity records unavailable")

	// ErrContractNotFound is returned by FetchContractConfig when the contract
	// has no configuration row.
	ErrContractNotFound = errors.New("contract config not found")

	// ErrInvalidSchedule is returned when schedule rows violate the
	// ascending-unique-threshold precondition.
	ErrInvalidSchedule = errors.New("invalid incentive schedule")

	// ErrInvalidPeriod is returned for malformed period strings.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidAudience is returned for unknown audience names.
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrInvalidContract is returned when the contract code is blank.
	ErrInvalidContract = errors.New("invalid contract code")

	// ErrTransient marks store failures that may succeed on retry.
	ErrTransient = errors.New("transient store failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SourceError wraps a failed fetch with the operation that issued it.
type SourceError struct {
	Op  string // e.g. "fetch_activity_records"
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// ScheduleError describes which schedule row broke the precondition.
type ScheduleError struct {
	Threshold int64
	Reason    string
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("invalid incentive schedule: threshold %d: %s", e.Threshold, e.Reason)
}

func (e *ScheduleError) Unwrap() error {
	return ErrInvalidSchedule
}

// InvalidAudienceError carries the rejected audience value.
type InvalidAudienceError struct {
	Value string
}

func (e *InvalidAudienceError) Error() string {
	return fmt.Sprintf("invalid audience %q (want public, player, agent or admin)", e.Value)
}

func (e *InvalidAudienceError) Unwrap() error {
	return ErrInvalidAudience
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsTransient returns true if the error might succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidAudience) ||
		errors.Is(err, ErrInvalidContract)
}
