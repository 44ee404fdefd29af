package orchestrator

import (
	"sort"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// AgentOutcome is the result of one detector run in PHASE_DETECT.
type AgentOutcome struct {
	Agent    string
	Findings []blackboard.Finding
	Err      error // nil, *AgentTimeoutError, or the detector's own error
	Duration time.Duration
}

// TimedOut reports whether the detector exceeded its budget.
func (o AgentOutcome) TimedOut() bool {
	return IsAgentTimeout(o.Err)
}

// PhaseState tracks the execution of one phase of one cycle.
// It is owned by the goroutine running the cycle.
type PhaseState struct {
	CycleID   string
	Phase     blackboard.Phase
	Agents    []string                // agents expected to report in this phase
	Outcomes  map[string]AgentOutcome // agent → outcome
	Appended  map[blackboard.Section]int
	Rejected  int
	StartTime time.Time
}

// NewPhaseState creates a tracker for a phase about to start.
func NewPhaseState(cycleID string, phase blackboard.Phase, agents []string) *PhaseState {
	return &PhaseState{
		CycleID:   cycleID,
		Phase:     phase,
		Agents:    agents,
		Outcomes:  make(map[string]AgentOutcome, len(agents)),
		Appended:  make(map[blackboard.Section]int),
		StartTime: time.Now(),
	}
}

// Record stores an agent's outcome.
func (ps *PhaseState) Record(o AgentOutcome) {
	ps.Outcomes[o.Agent] = o
}

// IsComplete returns true once every expected agent has an outcome.
func (ps *PhaseState) IsComplete() bool {
	for _, a := range ps.Agents {
		if _, ok := ps.Outcomes[a]; !ok {
			return false
		}
	}
	return true
}

// Succeeded returns the agents whose findings were kept, sorted.
func (ps *PhaseState) Succeeded() []string {
	return ps.agentsWhere(func(o AgentOutcome) bool { return o.Err == nil })
}

// TimedOut returns the agents whose output was discarded for exceeding their budget, sorted.
func (ps *PhaseState) TimedOut() []string {
	return ps.agentsWhere(AgentOutcome.TimedOut)
}

// Failed returns the agents that returned an error or panicked, sorted.
func (ps *PhaseState) Failed() []string {
	return ps.agentsWhere(func(o AgentOutcome) bool { return o.Err != nil && !o.TimedOut() })
}

func (ps *PhaseState) agentsWhere(match func(AgentOutcome) bool) []string {
	var out []string
	for agent, o := range ps.Outcomes {
		if match(o) {
			out = append(out, agent)
		}
	}
	sort.Strings(out)
	return out
}

// Total returns the number of findings appended in the phase.
func (ps *PhaseState) Total() int {
	n := 0
	for _, c := range ps.Appended {
		n += c
	}
	return n
}
