package blackboard

import (
	"sort"
	"time"
)

// Component identifies one weighted input of the composite risk score.
type Component string

const (
	ComponentWorkflow   Component = "workflow"
	ComponentResource   Component = "resource"
	ComponentCompliance Component = "compliance"
)

// Trend is the direction of recent risk scores.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Contribution ties part of a risk score to the agent and finding that caused it.
type Contribution struct {
	Component Component `json:"component"`
	Agent     string    `json:"agent"`
	FindingID string    `json:"finding_id"`
	Entity    string    `json:"entity,omitempty"`
	Reason    string    `json:"reason"`   // anomaly type or policy id
	Points    float64   `json:"points"`   // raw component points
	Weighted  float64   `json:"weighted"` // points × component weight
}

// RiskSnapshot is the per-cycle output of the risk index engine.
type RiskSnapshot struct {
	CycleID        string         `json:"cycle_id"`
	Timestamp      time.Time      `json:"timestamp"`
	RiskScore      float64        `json:"risk_score"`
	RiskState      RiskState      `json:"risk_state"`
	WorkflowRisk   float64        `json:"workflow_risk"`
	ResourceRisk   float64        `json:"resource_risk"`
	ComplianceRisk float64        `json:"compliance_risk"`
	Delta          float64        `json:"delta"` // change against the previous snapshot
	Trend          Trend          `json:"trend"`
	Contributions  []Contribution `json:"contributions"`
}

// Clone returns a deep copy of the snapshot.
func (r *RiskSnapshot) Clone() *RiskSnapshot {
	if r == nil {
		return nil
	}
	c := *r
	c.Contributions = append([]Contribution(nil), r.Contributions...)
	return &c
}

// CycleSnapshot is the read-only view of a completed cycle handed to
// persistence and downstream consumers.
type CycleSnapshot struct {
	Cycle           Cycle             `json:"cycle"`
	Anomalies       []*Anomaly        `json:"anomalies"`
	PolicyHits      []*PolicyHit      `json:"policy_hits"`
	RiskSignals     []*RiskSignal     `json:"risk_signals"`
	CausalLinks     []*CausalLink     `json:"causal_links"`
	Hypotheses      []*Hypothesis     `json:"hypotheses"`
	Recommendations []*Recommendation `json:"recommendations"`
	Risk            *RiskSnapshot     `json:"risk,omitempty"`
}

// Findings returns every finding in the snapshot, ordered by section then append order.
func (s *CycleSnapshot) Findings() []Finding {
	var out []Finding
	for _, a := range s.Anomalies {
		out = append(out, a)
	}
	for _, p := range s.PolicyHits {
		out = append(out, p)
	}
	for _, r := range s.RiskSignals {
		out = append(out, r)
	}
	for _, c := range s.CausalLinks {
		out = append(out, c)
	}
	for _, h := range s.Hypotheses {
		out = append(out, h)
	}
	for _, r := range s.Recommendations {
		out = append(out, r)
	}
	return out
}

// Clone returns a deep copy of the snapshot.
func (s *CycleSnapshot) Clone() *CycleSnapshot {
	if s == nil {
		return nil
	}
	c := &CycleSnapshot{Cycle: s.Cycle, Risk: s.Risk.Clone()}
	if s.Cycle.CompletedAt != nil {
		t := *s.Cycle.CompletedAt
		c.Cycle.CompletedAt = &t
	}
	c.Anomalies = cloneAll(s.Anomalies)
	c.PolicyHits = cloneAll(s.PolicyHits)
	c.RiskSignals = cloneAll(s.RiskSignals)
	c.CausalLinks = cloneAll(s.CausalLinks)
	c.Hypotheses = cloneAll(s.Hypotheses)
	c.Recommendations = cloneAll(s.Recommendations)
	return c
}

func cloneAll[T Finding](in []T) []T {
	out := make([]T, 0, len(in))
	for _, f := range in {
		out = append(out, f.Clone().(T))
	}
	return out
}

// CycleSummary is the compact form of a completed cycle used for listings and events.
type CycleSummary struct {
	ID              string     `json:"cycle_id"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	RiskScore       float64    `json:"risk_score"`
	RiskState       RiskState  `json:"risk_state"`
	Trend           Trend      `json:"trend,omitempty"`
	Anomalies       int        `json:"anomalies"`
	PolicyHits      int        `json:"policy_hits"`
	CausalLinks     int        `json:"causal_links"`
	Hypotheses      int        `json:"hypotheses"`
	Recommendations int        `json:"recommendations"`
	Agents          []string   `json:"agents"`
}

// Summary derives the listing form of the snapshot.
func (s *CycleSnapshot) Summary() CycleSummary {
	sum := CycleSummary{
		ID:              s.Cycle.ID,
		StartedAt:       s.Cycle.StartedAt,
		CompletedAt:     s.Cycle.CompletedAt,
		Anomalies:       len(s.Anomalies),
		PolicyHits:      len(s.PolicyHits),
		CausalLinks:     len(s.CausalLinks),
		Hypotheses:      len(s.Hypotheses),
		Recommendations: len(s.Recommendations),
	}
	if s.Risk != nil {
		sum.RiskScore = s.Risk.RiskScore
		sum.RiskState = s.Risk.RiskState
		sum.Trend = s.Risk.Trend
	}

	agents := make(map[string]struct{})
	for _, f := range s.Findings() {
		agents[f.Base().Agent] = struct{}{}
	}
	sum.Agents = make([]string, 0, len(agents))
	for a := range agents {
		sum.Agents = append(sum.Agents, a)
	}
	sort.Strings(sum.Agents)
	return sum
}
