package blackboard

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingEvidence is returned when a finding carries no evidence_ids.
	ErrMissingEvidence = errors.New("finding has no evidence_ids")

	// ErrDuplicatePolicyHit is returned when a (policy_id, event_id) pair was
	// already recorded in the cycle. The hit is dropped.
	ErrDuplicatePolicyHit = errors.New("duplicate policy hit")

	// ErrCycleNotFound is returned for unknown or evicted cycle ids.
	ErrCycleNotFound = errors.New("cycle not found")

	// ErrInvalidFinding wraps every field-level validation failure.
	ErrInvalidFinding = errors.New("invalid finding")
)

// ConcurrentCycleError is returned by StartCycle while another cycle is open.
// It is fatal to the caller, not to the store.
type ConcurrentCycleError struct {
	OpenCycleID string
}

func (e *ConcurrentCycleError) Error() string {
	return fmt.Sprintf("cycle %s is still open: only one cycle may be open at a time", e.OpenCycleID)
}

// CycleClosedError is returned when writing to a completed or aborted cycle.
type CycleClosedError struct {
	CycleID string
	Status  CycleStatus
}

func (e *CycleClosedError) Error() string {
	return fmt.Sprintf("cycle %s is %s and accepts no further writes", e.CycleID, e.Status)
}

// UnauthorizedSectionError is returned when an agent writes outside its role.
type UnauthorizedSectionError struct {
	Agent   string
	Section Section
}

func (e *UnauthorizedSectionError) Error() string {
	return fmt.Sprintf("agent %q is not authorized to write section %q", e.Agent, e.Section)
}

// IsConcurrentCycle reports whether err is a ConcurrentCycleError.
func IsConcurrentCycle(err error) bool {
	var target *ConcurrentCycleError
	return errors.As(err, &target)
}

// IsCycleClosed reports whether err is a CycleClosedError.
func IsCycleClosed(err error) bool {
	var target *CycleClosedError
	return errors.As(err, &target)
}

// IsUnauthorized reports whether err is an UnauthorizedSectionError.
func IsUnauthorized(err error) bool {
	var target *UnauthorizedSectionError
	return errors.As(err, &target)
}
