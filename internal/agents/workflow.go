package agents

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/config"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/observation"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// WorkflowDetector checks workflow instances against their expected step
// order and step SLAs. An instance is matched to the first definition whose
// Match prefix its workflow id starts with.
type WorkflowDetector struct {
	workflows []config.WorkflowDefinition
}

// NewWorkflowDetector creates a detector over the given definitions.
func NewWorkflowDetector(workflows []config.WorkflowDefinition) *WorkflowDetector {
	return &WorkflowDetector{workflows: append([]config.WorkflowDefinition(nil), workflows...)}
}

func (d *WorkflowDetector) Name() string { return blackboard.AgentWorkflow }

// Run implements Detector.
func (d *WorkflowDetector) Run(ctx context.Context, w *observation.Window) ([]blackboard.Finding, error) {
	byWorkflow := w.EventsByWorkflow()

	ids := make([]string, 0, len(byWorkflow))
	for id := range byWorkflow {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var findings []blackboard.Finding
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		def := d.match(id)
		if def == nil {
			continue
		}
		for _, a := range checkInstance(def, id, byWorkflow[id], w.End()) {
			findings = append(findings, a)
		}
	}
	return findings, nil
}

func (d *WorkflowDetector) match(workflowID string) *config.WorkflowDefinition {
	for i := range d.workflows {
		if strings.HasPrefix(workflowID, d.workflows[i].Match) {
			return &d.workflows[i]
		}
	}
	return nil
}

// checkInstance evaluates one workflow instance. events are in timestamp order.
func checkInstance(def *config.WorkflowDefinition, workflowID string, events []observation.Event, windowEnd time.Time) []*blackboard.Anomaly {
	stepIndex := make(map[string]int, len(def.Steps))
	for i, s := range def.Steps {
		stepIndex[s.Name] = i
	}

	// First occurrence of each defined step.
	seen := make(map[int]observation.Event)
	var order []int
	for _, e := range events {
		idx, ok := stepIndex[e.Step]
		if !ok {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = e
		order = append(order, idx)
	}
	if len(order) == 0 {
		return nil
	}

	var out []*blackboard.Anomaly

	// Out-of-order steps.
	maxIdx := -1
	for _, idx := range order {
		if idx < maxIdx {
			e, prev := seen[idx], seen[maxIdx]
			out = append(out, newAnomaly(blackboard.AgentWorkflow, blackboard.AnomalySequenceViolation, workflowID,
				blackboard.SeverityMedium, 0.85, e.Timestamp,
				fmt.Sprintf("step %q of %s observed after %q", def.Steps[idx].Name, def.Name, def.Steps[maxIdx].Name),
				e.ID, prev.ID))
			continue
		}
		maxIdx = idx
	}

	// Steps skipped before the furthest step reached.
	for i := 0; i < maxIdx; i++ {
		if _, ok := seen[i]; ok {
			continue
		}
		next := firstSeenAfter(seen, i, maxIdx)
		out = append(out, newAnomaly(blackboard.AgentWorkflow, blackboard.AnomalyMissingStep, workflowID,
			blackboard.SeverityHigh, 0.9, next.Timestamp,
			fmt.Sprintf("step %q of %s skipped before %q", def.Steps[i].Name, def.Name, next.Step),
			next.ID))
	}

	// SLA breaches between consecutive reached steps, in definition order.
	reached := make([]int, 0, len(seen))
	for idx := range seen {
		reached = append(reached, idx)
	}
	sort.Ints(reached)
	for k := 1; k < len(reached); k++ {
		prev, cur := seen[reached[k-1]], seen[reached[k]]
		sla := def.Steps[reached[k]].MaxDuration
		gap := cur.Timestamp.Sub(prev.Timestamp)
		if sla <= 0 || gap <= sla {
			continue
		}
		out = append(out, delayAnomaly(workflowID, cur.Timestamp, gap, sla,
			fmt.Sprintf("step %q of %s took %s (limit %s)", cur.Step, def.Name, gap.Round(time.Second), sla),
			prev.ID, cur.ID))
	}

	// Stalled waiting for the next step.
	last := reached[len(reached)-1]
	if last+1 < len(def.Steps) {
		next := def.Steps[last+1]
		lastEvent := seen[last]
		waited := windowEnd.Sub(lastEvent.Timestamp)
		if next.MaxDuration > 0 && waited > next.MaxDuration {
			out = append(out, delayAnomaly(workflowID, lastEvent.Timestamp.Add(next.MaxDuration), waited, next.MaxDuration,
				fmt.Sprintf("%s waiting %s for step %q (limit %s)", def.Name, waited.Round(time.Second), next.Name, next.MaxDuration),
				lastEvent.ID))
		}
	}

	return out
}

func firstSeenAfter(seen map[int]observation.Event, after, upTo int) observation.Event {
	for j := after + 1; j <= upTo; j++ {
		if e, ok := seen[j]; ok {
			return e
		}
	}
	return seen[upTo]
}

func delayAnomaly(workflowID string, at time.Time, took, limit time.Duration, desc string, evidence ...string) *blackboard.Anomaly {
	ratio := took.Seconds() / limit.Seconds()
	severity := blackboard.SeverityMedium
	if ratio >= 2 {
		severity = blackboard.SeverityHigh
	}
	confidence := math.Min(0.95, 0.6+0.15*ratio)
	return newAnomaly(blackboard.AgentWorkflow, blackboard.AnomalyDelay, workflowID, severity, confidence, at, desc, evidence...)
}

func newAnomaly(agent string, typ blackboard.AnomalyType, entity string, severity blackboard.Severity,
	confidence float64, at time.Time, desc string, evidence ...string) *blackboard.Anomaly {
	return &blackboard.Anomaly{
		FindingBase: blackboard.FindingBase{
			Agent:       agent,
			Confidence:  confidence,
			EvidenceIDs: evidence,
			Timestamp:   at,
		},
		Type:        typ,
		Entity:      entity,
		Severity:    severity,
		Description: desc,
	}
}
