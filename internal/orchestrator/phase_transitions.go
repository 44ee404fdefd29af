package orchestrator

import (
	"fmt"
	"log"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// nextPhase is the orchestrator's state machine. CLOSED is reached only
// through CompleteCycle, and IDLE is the absence of an open cycle.
var nextPhase = map[blackboard.Phase]blackboard.Phase{
	blackboard.PhaseOpen:       blackboard.PhaseDetect,
	blackboard.PhaseDetect:     blackboard.PhaseRisk,
	blackboard.PhaseRisk:       blackboard.PhaseCausal,
	blackboard.PhaseCausal:     blackboard.PhaseSynthesize,
	blackboard.PhaseSynthesize: blackboard.PhaseClosed,
}

// transition moves the cycle from one phase to the next. Skipping a phase is an error.
func (e *Engine) transition(cycleID string, from, to blackboard.Phase) error {
	if nextPhase[from] != to {
		return fmt.Errorf("invalid phase transition %s -> %s", from, to)
	}
	if err := e.store.AdvancePhase(cycleID, to); err != nil {
		return fmt.Errorf("failed to advance to %s: %w", to, err)
	}

	log.Printf("[Orchestrator] Cycle %s: %s -> %s", cycleID, from, to)
	e.logEvent("phase_started", map[string]interface{}{
		"cycle_id": cycleID,
		"phase":    string(to),
	})
	return nil
}

// appendAll appends one phase's findings, counting them in ps. Rejections are
// logged and counted; the returned error is the first rejection, if any.
func (e *Engine) appendAll(ps *PhaseState, findings []blackboard.Finding) error {
	var first error
	for _, f := range findings {
		sec := f.Section()
		if _, err := e.store.Append(ps.CycleID, sec, f); err != nil {
			ps.Rejected++
			e.logEvent("finding_rejected", map[string]interface{}{
				"cycle_id": ps.CycleID,
				"phase":    string(ps.Phase),
				"agent":    f.Base().Agent,
				"section":  string(sec),
				"kind":     f.Kind(),
				"error":    err.Error(),
			})
			if first == nil {
				first = err
			}
			continue
		}
		ps.Appended[sec]++
		e.metrics.FindingsTotal.WithLabelValues(string(sec)).Inc()
	}
	return first
}

// completePhase logs the end of a phase.
func (e *Engine) completePhase(ps *PhaseState) {
	e.logEvent("phase_complete", map[string]interface{}{
		"cycle_id":    ps.CycleID,
		"phase":       string(ps.Phase),
		"appended":    ps.Total(),
		"rejected":    ps.Rejected,
		"duration_ms": time.Since(ps.StartTime).Milliseconds(),
	})
}
