package synthesis

import (
	"fmt"
	"sort"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

type action struct {
	name      string
	priority  blackboard.Priority
	rationale string
}

var anomalyActions = map[blackboard.AnomalyType]action{
	blackboard.AnomalySustainedResourceCritical: {"scale_resource", blackboard.PriorityUrgent, "resource held above its critical threshold"},
	blackboard.AnomalySustainedResourceWarning:  {"review_capacity", blackboard.PriorityMedium, "resource held above its warning threshold"},
	blackboard.AnomalyResourceDrift:             {"investigate_resource_growth", blackboard.PriorityMedium, "resource usage trending upward"},
	blackboard.AnomalyMissingStep:               {"rerun_missing_step", blackboard.PriorityHigh, "workflow skipped a required step"},
	blackboard.AnomalyDelay:                     {"expedite_workflow", blackboard.PriorityMedium, "workflow step exceeded its SLA"},
	blackboard.AnomalySequenceViolation:         {"audit_workflow_order", blackboard.PriorityMedium, "workflow steps ran out of order"},
	blackboard.AnomalyBaselineDeviation:         {"review_metric_baseline", blackboard.PriorityLow, "metric deviates from its baseline"},
}

var violationActions = map[string]action{
	"WRITE_WITHOUT_APPROVAL": {"enforce_approval_gate", blackboard.PriorityHigh, "write performed without approval"},
	"AFTER_HOURS_ACCESS":     {"review_access_window", blackboard.PriorityMedium, "access outside permitted hours"},
	"CREDENTIAL_SHARING":     {"rotate_credentials", blackboard.PriorityUrgent, "credentials used by more than one actor"},
}

var defaultViolationAction = action{"review_policy_violation", blackboard.PriorityHigh, "compliance policy violated"}

var priorityRank = map[blackboard.Priority]int{
	blackboard.PriorityLow:    0,
	blackboard.PriorityMedium: 1,
	blackboard.PriorityHigh:   2,
	blackboard.PriorityUrgent: 3,
}

var byPriorityRank = []blackboard.Priority{
	blackboard.PriorityLow,
	blackboard.PriorityMedium,
	blackboard.PriorityHigh,
	blackboard.PriorityUrgent,
}

func raise(p blackboard.Priority) blackboard.Priority {
	r := priorityRank[p] + 1
	if r >= len(byPriorityRank) {
		r = len(byPriorityRank) - 1
	}
	return byPriorityRank[r]
}

// riskAction maps a signal's horizon to urgency.
func riskAction(s *blackboard.RiskSignal) action {
	p := blackboard.PriorityMedium
	switch s.TimeHorizon {
	case blackboard.HorizonImmediate:
		p = blackboard.PriorityUrgent
	case blackboard.HorizonShort:
		p = blackboard.PriorityHigh
	}
	return action{"mitigate_risk", p, fmt.Sprintf("risk %s, projected %s", s.CurrentState, s.ProjectedState)}
}

type recKey struct {
	action, target string
}

// recommend maps findings through the action tables. Findings that are the
// root of a hypothesis have their priority raised one level. Recommendations
// sharing (action, target) are merged.
func recommend(in Input, roots map[string]int) ([]*blackboard.Recommendation, error) {
	merged := make(map[recKey]*blackboard.Recommendation)

	add := func(f blackboard.Finding, target string, act action) error {
		b := f.Base()
		if b.ID == "" {
			return fmt.Errorf("%s finding without id", f.Kind())
		}
		priority, rationale := act.priority, act.rationale
		if n := roots[b.ID]; n > 0 {
			priority = raise(priority)
			rationale = fmt.Sprintf("%s; root cause of %d downstream finding(s)", rationale, n)
		}

		k := recKey{act.name, target}
		rec, ok := merged[k]
		if !ok {
			merged[k] = &blackboard.Recommendation{
				FindingBase: blackboard.FindingBase{
					Agent:       blackboard.AgentSynthesis,
					Confidence:  b.Confidence,
					EvidenceIDs: []string{b.ID},
					Timestamp:   b.Timestamp,
				},
				Action:    act.name,
				Target:    target,
				Priority:  priority,
				Rationale: rationale,
			}
			return nil
		}

		rec.EvidenceIDs = append(rec.EvidenceIDs, b.ID)
		if b.Confidence > rec.Confidence {
			rec.Confidence = b.Confidence
		}
		if b.Timestamp.After(rec.Timestamp) {
			rec.Timestamp = b.Timestamp
		}
		if priorityRank[priority] > priorityRank[rec.Priority] {
			rec.Priority = priority
			rec.Rationale = rationale
		}
		return nil
	}

	for _, a := range in.Anomalies {
		act, ok := anomalyActions[a.Type]
		if !ok {
			continue
		}
		if err := add(a, a.Entity, act); err != nil {
			return nil, err
		}
	}
	for _, h := range in.PolicyHits {
		act, ok := violationActions[h.ViolationType]
		if !ok {
			act = defaultViolationAction
		}
		target := h.Entity
		if target == "" {
			target = "policy:" + h.PolicyID
		}
		if err := add(h, target, act); err != nil {
			return nil, err
		}
	}
	for _, s := range in.RiskSignals {
		escalating := s.ProjectedState.Rank() > s.CurrentState.Rank()
		breached := s.CurrentState.Rank() >= blackboard.RiskViolation.Rank()
		if s.ProjectedState.Rank() < blackboard.RiskAtRisk.Rank() || !(escalating || breached) {
			continue
		}
		if err := add(s, s.Entity, riskAction(s)); err != nil {
			return nil, err
		}
	}

	out := make([]*blackboard.Recommendation, 0, len(merged))
	for _, r := range merged {
		sort.Strings(r.EvidenceIDs)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if priorityRank[a.Priority] != priorityRank[b.Priority] {
			return priorityRank[a.Priority] > priorityRank[b.Priority]
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Action < b.Action
	})
	return out, nil
}
