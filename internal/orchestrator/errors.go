package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// AgentTimeoutError records a detector that exceeded its budget. The
// detector's output is discarded and the cycle continues.
type AgentTimeoutError struct {
	Agent   string
	Timeout time.Duration
}

func (e *AgentTimeoutError) Error() string {
	return fmt.Sprintf("agent %s exceeded its %s budget", e.Agent, e.Timeout)
}

// PhaseComputationError aborts a cycle. It is always returned to the caller
// of RunCycle.
type PhaseComputationError struct {
	CycleID string
	Phase   blackboard.Phase
	Err     error
}

func (e *PhaseComputationError) Error() string {
	return fmt.Sprintf("cycle %s aborted in %s: %v", e.CycleID, e.Phase, e.Err)
}

func (e *PhaseComputationError) Unwrap() error {
	return e.Err
}

// IsAgentTimeout reports whether err is an AgentTimeoutError.
func IsAgentTimeout(err error) bool {
	var target *AgentTimeoutError
	return errors.As(err, &target)
}

// IsPhaseComputation reports whether err is a PhaseComputationError.
func IsPhaseComputation(err error) bool {
	var target *PhaseComputationError
	return errors.As(err, &target)
}
