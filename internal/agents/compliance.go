package agents

import (
	"context"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/config"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/observation"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// ComplianceDetector evaluates every event against a data-driven policy set.
// Repeat hits for the same (policy, event) are left to the blackboard to drop.
type ComplianceDetector struct {
	policies []config.PolicyConfig
}

// NewComplianceDetector creates a detector over the given policies.
func NewComplianceDetector(policies []config.PolicyConfig) *ComplianceDetector {
	return &ComplianceDetector{policies: append([]config.PolicyConfig(nil), policies...)}
}

func (d *ComplianceDetector) Name() string { return blackboard.AgentCompliance }

// Run implements Detector.
func (d *ComplianceDetector) Run(ctx context.Context, w *observation.Window) ([]blackboard.Finding, error) {
	var findings []blackboard.Finding
	for _, e := range w.Events() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range d.policies {
			p := &d.policies[i]
			if !Violates(p, &e) {
				continue
			}
			findings = append(findings, &blackboard.PolicyHit{
				FindingBase: blackboard.FindingBase{
					Agent:       blackboard.AgentCompliance,
					Confidence:  p.Confidence,
					EvidenceIDs: []string{e.ID},
					Timestamp:   e.Timestamp,
				},
				PolicyID:      p.ID,
				EventID:       e.ID,
				ViolationType: p.ViolationType,
				Entity:        hitEntity(&e),
			})
		}
	}
	return findings, nil
}

// Violates reports whether e meets every condition of p.
func Violates(p *config.PolicyConfig, e *observation.Event) bool {
	if len(p.EventTypes) > 0 && !contains(p.EventTypes, e.Type) {
		return false
	}
	for k, v := range p.Where {
		if e.Attributes[k] != v {
			return false
		}
	}
	for k, v := range p.WhereNot {
		if got, ok := e.Attributes[k]; ok && got == v {
			return false
		}
	}
	if h := p.OutsideHours; h != nil {
		hour := e.Timestamp.UTC().Hour()
		if hour >= h.Start && hour < h.End {
			return false
		}
	}
	return true
}

// hitEntity prefers the workflow, then the resource, then the actor.
func hitEntity(e *observation.Event) string {
	switch {
	case e.WorkflowID != "":
		return e.WorkflowID
	case e.Resource != "":
		return e.Resource
	default:
		return e.Actor
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
