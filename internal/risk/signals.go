package risk

import (
	"math"
	"sort"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// Time horizon band limits.
const (
	horizonImmediate = 15 * time.Minute
	horizonShort     = time.Hour
	horizonMedium    = 4 * time.Hour
)

// HorizonFor buckets a time-to-escalation into a band.
func HorizonFor(d time.Duration) blackboard.TimeHorizon {
	switch {
	case d < horizonImmediate:
		return blackboard.HorizonImmediate
	case d < horizonShort:
		return blackboard.HorizonShort
	case d < horizonMedium:
		return blackboard.HorizonMedium
	default:
		return blackboard.HorizonLong
	}
}

// signals projects a risk state per entity from that entity's counted
// findings. perCycle is the trend slope of the composite score.
func (e *Engine) signals(counted []scored, trend blackboard.Trend, perCycle float64, at time.Time) []*blackboard.RiskSignal {
	byEntity := make(map[string][]scored)
	for _, c := range counted {
		byEntity[c.entity] = append(byEntity[c.entity], c)
	}

	entities := make([]string, 0, len(byEntity))
	for ent := range byEntity {
		entities = append(entities, ent)
	}
	sort.Strings(entities)

	out := make([]*blackboard.RiskSignal, 0, len(entities))
	for _, ent := range entities {
		group := byEntity[ent]

		raw := componentPoints(group)
		score := e.blend(raw)
		current := StateFor(score, raw[blackboard.ComponentWorkflow], raw[blackboard.ComponentResource], raw[blackboard.ComponentCompliance])

		projected := current
		switch trend {
		case blackboard.TrendIncreasing:
			projected = shift(current, 1)
		case blackboard.TrendDecreasing:
			projected = shift(current, -1)
		}

		var confSum float64
		latest := time.Time{}
		evidence := make([]string, 0, len(group))
		for _, c := range group {
			b := c.finding.Base()
			confSum += b.Confidence
			evidence = append(evidence, b.ID)
			if b.Timestamp.After(latest) {
				latest = b.Timestamp
			}
		}
		if latest.IsZero() {
			latest = at
		}

		out = append(out, &blackboard.RiskSignal{
			FindingBase: blackboard.FindingBase{
				Agent:       blackboard.AgentRisk,
				Confidence:  round2(confSum / float64(len(group))),
				EvidenceIDs: evidence,
				Timestamp:   latest,
			},
			Entity:         ent,
			CurrentState:   current,
			ProjectedState: projected,
			TimeHorizon:    e.horizon(current, score, perCycle),
		})
	}
	return out
}

// horizon estimates when an entity reaches its next state at the current
// slope. Breach states are IMMEDIATE; a flat or falling slope is LONG.
func (e *Engine) horizon(current blackboard.RiskState, score, perCycle float64) blackboard.TimeHorizon {
	next, ok := nextThreshold(current)
	if !ok {
		return blackboard.HorizonImmediate
	}
	if perCycle <= trendDeadband {
		return blackboard.HorizonLong
	}
	cycles := math.Ceil((next - score) / perCycle)
	if cycles < 1 {
		cycles = 1
	}
	return HorizonFor(time.Duration(cycles) * e.cycleInterval)
}
