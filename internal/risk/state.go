package risk

import "github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"

// Score thresholds between risk states.
const (
	DegradedThreshold = 30.0
	AtRiskThreshold   = 50.0
	BreachThreshold   = 70.0
)

// StateFor derives the risk state from a composite score and its component
// sub-scores. It is a pure function of fields persisted on every snapshot.
//
// A breach is a score at or above BreachThreshold, or compliance risk
// co-occurring with workflow or resource risk. A breach with any compliance
// risk is INCIDENT, otherwise VIOLATION.
func StateFor(score, workflow, resource, compliance float64) blackboard.RiskState {
	breach := score >= BreachThreshold || (compliance > 0 && (workflow > 0 || resource > 0))
	if breach {
		if compliance > 0 {
			return blackboard.RiskIncident
		}
		return blackboard.RiskViolation
	}

	switch {
	case score < DegradedThreshold:
		return blackboard.RiskNormal
	case score < AtRiskThreshold:
		return blackboard.RiskDegraded
	default:
		return blackboard.RiskAtRisk
	}
}

// StateOf re-derives the state of a persisted snapshot.
func StateOf(s *blackboard.RiskSnapshot) blackboard.RiskState {
	return StateFor(s.RiskScore, s.WorkflowRisk, s.ResourceRisk, s.ComplianceRisk)
}

// nextThreshold is the score at which state s escalates, or false if s is
// already a breach state.
func nextThreshold(s blackboard.RiskState) (float64, bool) {
	switch s {
	case blackboard.RiskNormal:
		return DegradedThreshold, true
	case blackboard.RiskDegraded:
		return AtRiskThreshold, true
	case blackboard.RiskAtRisk:
		return BreachThreshold, true
	default:
		return 0, false
	}
}

var byRank = []blackboard.RiskState{
	blackboard.RiskNormal,
	blackboard.RiskDegraded,
	blackboard.RiskAtRisk,
	blackboard.RiskViolation,
	blackboard.RiskIncident,
}

// shift moves s by delta ranks, clamped to NORMAL..INCIDENT.
func shift(s blackboard.RiskState, delta int) blackboard.RiskState {
	r := s.Rank() + delta
	if r < 0 {
		r = 0
	}
	if r >= len(byRank) {
		r = len(byRank) - 1
	}
	return byRank[r]
}
