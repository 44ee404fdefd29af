package blackboard

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Section names one append-only list of findings within a cycle.
type Section string

const (
	// SectionAnomalies holds detector anomalies (PHASE_DETECT)
	SectionAnomalies Section = "anomalies"

	// SectionPolicyHits holds compliance policy hits (PHASE_DETECT)
	SectionPolicyHits Section = "policy_hits"

	// SectionRiskSignals holds per-entity risk projections (PHASE_RISK)
	SectionRiskSignals Section = "risk_signals"

	// SectionCausalLinks holds inferred cause→effect links (PHASE_CAUSAL)
	SectionCausalLinks Section = "causal_links"

	// SectionHypotheses holds root-cause hypotheses (PHASE_SYNTHESIZE)
	SectionHypotheses Section = "hypotheses"

	// SectionRecommendations holds suggested actions (PHASE_SYNTHESIZE)
	SectionRecommendations Section = "recommendations"
)

// AllSections returns every section in a fixed order.
// Locks over multiple sections are always taken in this order.
func AllSections() []Section {
	return []Section{
		SectionAnomalies,
		SectionPolicyHits,
		SectionRiskSignals,
		SectionCausalLinks,
		SectionHypotheses,
		SectionRecommendations,
	}
}

// Validate checks if the Section is a valid enum value.
func (s Section) Validate() error {
	switch s {
	case SectionAnomalies, SectionPolicyHits, SectionRiskSignals,
		SectionCausalLinks, SectionHypotheses, SectionRecommendations:
		return nil
	default:
		return fmt.Errorf("unknown section: %q", s)
	}
}

// Phase is a state of the cycle state machine.
// Phases only ever move forward: IDLE → OPEN → PHASE_DETECT → PHASE_RISK →
// PHASE_CAUSAL → PHASE_SYNTHESIZE → CLOSED.
type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhaseOpen       Phase = "OPEN"
	PhaseDetect     Phase = "PHASE_DETECT"
	PhaseRisk       Phase = "PHASE_RISK"
	PhaseCausal     Phase = "PHASE_CAUSAL"
	PhaseSynthesize Phase = "PHASE_SYNTHESIZE"
	PhaseClosed     Phase = "CLOSED"
)

var phaseOrder = map[Phase]int{
	PhaseIdle:       0,
	PhaseOpen:       1,
	PhaseDetect:     2,
	PhaseRisk:       3,
	PhaseCausal:     4,
	PhaseSynthesize: 5,
	PhaseClosed:     6,
}

// Ordinal returns the position of the phase in the state machine, or -1 if unknown.
func (p Phase) Ordinal() int {
	if o, ok := phaseOrder[p]; ok {
		return o
	}
	return -1
}

// Before reports whether p comes strictly before other.
func (p Phase) Before(other Phase) bool {
	return p.Ordinal() < other.Ordinal()
}

// CycleStatus is the lifecycle status of a cycle.
type CycleStatus string

const (
	// CycleStatusOpen indicates the cycle is accepting findings
	CycleStatusOpen CycleStatus = "open"

	// CycleStatusComplete indicates the cycle is immutable and in history
	CycleStatusComplete CycleStatus = "complete"

	// CycleStatusAborted indicates a phase failed; the cycle never reaches history
	CycleStatusAborted CycleStatus = "aborted"
)

// Cycle is one bounded execution of the detect→risk→causal→synthesize pipeline.
// No field changes once CompletedAt is set.
type Cycle struct {
	ID            string      `json:"cycle_id"`
	StartedAt     time.Time   `json:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	Status        CycleStatus `json:"status"`
	Phase         Phase       `json:"phase"`
	FailureReason string      `json:"failure_reason,omitempty"`
}

// CycleHandle is returned by StartCycle and identifies the open cycle.
type CycleHandle struct {
	ID        string
	StartedAt time.Time
}

// Well-known producer identities. Section authorization is keyed on these.
const (
	AgentWorkflow   = "workflow-agent"
	AgentResource   = "resource-agent"
	AgentCompliance = "compliance-agent"
	AgentBaseline   = "baseline-agent"
	AgentRisk       = "risk-engine"
	AgentCausal     = "causal-engine"
	AgentSynthesis  = "synthesis-engine"
)

// FindingBase is the shape shared by every finding kind.
type FindingBase struct {
	ID          string    `json:"id"`
	CycleID     string    `json:"cycle_id"`
	Agent       string    `json:"agent"`
	Confidence  float64   `json:"confidence"`
	EvidenceIDs []string  `json:"evidence_ids"`
	Timestamp   time.Time `json:"timestamp"`
}

// Base returns the shared finding fields.
func (b *FindingBase) Base() *FindingBase {
	return b
}

func (b *FindingBase) validate() error {
	if b.ID != "" && !isValidUUID(b.ID) {
		return fmt.Errorf("%w: id is not a valid UUID", ErrInvalidFinding)
	}
	if b.Agent == "" {
		return fmt.Errorf("%w: agent cannot be empty", ErrInvalidFinding)
	}
	if math.IsNaN(b.Confidence) || b.Confidence < 0 || b.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be in [0,1], got %v", ErrInvalidFinding, b.Confidence)
	}
	if len(b.EvidenceIDs) == 0 {
		return ErrMissingEvidence
	}
	for i, id := range b.EvidenceIDs {
		if id == "" {
			return fmt.Errorf("%w: empty evidence id at index %d", ErrInvalidFinding, i)
		}
	}
	return nil
}

func (b FindingBase) clone() FindingBase {
	b.EvidenceIDs = append([]string(nil), b.EvidenceIDs...)
	return b
}

// Finding is any typed claim appended to the blackboard.
type Finding interface {
	// Base exposes the shared fields (id, cycle, agent, confidence, evidence, timestamp).
	Base() *FindingBase

	// Section is the blackboard section this kind of finding lives in.
	Section() Section

	// Kind is the finding's type as seen by causal pattern matching.
	Kind() string

	// Validate checks field values. Missing evidence yields ErrMissingEvidence.
	Validate() error

	// Clone returns a deep copy.
	Clone() Finding
}

// AnomalyType enumerates detector-specific anomaly kinds.
type AnomalyType string

const (
	AnomalyMissingStep               AnomalyType = "MISSING_STEP"
	AnomalyDelay                     AnomalyType = "DELAY"
	AnomalySequenceViolation         AnomalyType = "SEQUENCE_VIOLATION"
	AnomalySustainedResourceCritical AnomalyType = "SUSTAINED_RESOURCE_CRITICAL"
	AnomalySustainedResourceWarning  AnomalyType = "SUSTAINED_RESOURCE_WARNING"
	AnomalyResourceDrift             AnomalyType = "RESOURCE_DRIFT"
	AnomalyBaselineDeviation         AnomalyType = "BASELINE_DEVIATION"
)

// Severity grades an anomaly.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Validate checks if the Severity is a valid enum value.
func (s Severity) Validate() error {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return nil
	default:
		return fmt.Errorf("unknown severity: %q", s)
	}
}

// Anomaly is a detector finding about an entity (workflow, resource, metric series).
type Anomaly struct {
	FindingBase
	Type        AnomalyType `json:"type"`
	Entity      string      `json:"entity"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description,omitempty"`
}

func (a *Anomaly) Section() Section { return SectionAnomalies }
func (a *Anomaly) Kind() string     { return string(a.Type) }

func (a *Anomaly) Clone() Finding {
	c := *a
	c.FindingBase = a.FindingBase.clone()
	return &c
}

// Validate checks if the Anomaly has valid field values.
func (a *Anomaly) Validate() error {
	if err := a.FindingBase.validate(); err != nil {
		return err
	}
	if a.Type == "" {
		return fmt.Errorf("%w: anomaly type cannot be empty", ErrInvalidFinding)
	}
	if a.Entity == "" {
		return fmt.Errorf("%w: anomaly entity cannot be empty", ErrInvalidFinding)
	}
	if err := a.Severity.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFinding, err)
	}
	return nil
}

// KindPolicyViolation is the causal kind of every PolicyHit.
const KindPolicyViolation = "POLICY_VIOLATION"

// PolicyHit records that an observed event violated a compliance policy.
// (PolicyID, EventID) is unique within a cycle.
type PolicyHit struct {
	FindingBase
	PolicyID      string `json:"policy_id"`
	EventID       string `json:"event_id"`
	ViolationType string `json:"violation_type"`
	Entity        string `json:"entity,omitempty"`
}

func (p *PolicyHit) Section() Section { return SectionPolicyHits }
func (p *PolicyHit) Kind() string     { return KindPolicyViolation }

func (p *PolicyHit) Clone() Finding {
	c := *p
	c.FindingBase = p.FindingBase.clone()
	return &c
}

// DedupKey returns the composite key used to drop repeated hits within a cycle.
func (p *PolicyHit) DedupKey() string {
	return p.PolicyID + "\x00" + p.EventID
}

// Validate checks if the PolicyHit has valid field values.
func (p *PolicyHit) Validate() error {
	if err := p.FindingBase.validate(); err != nil {
		return err
	}
	if p.PolicyID == "" {
		return fmt.Errorf("%w: policy_id cannot be empty", ErrInvalidFinding)
	}
	if p.EventID == "" {
		return fmt.Errorf("%w: event_id cannot be empty", ErrInvalidFinding)
	}
	if p.ViolationType == "" {
		return fmt.Errorf("%w: violation_type cannot be empty", ErrInvalidFinding)
	}
	return nil
}

// RiskState is the discrete bucket derived from a composite risk score.
type RiskState string

const (
	RiskNormal    RiskState = "NORMAL"
	RiskDegraded  RiskState = "DEGRADED"
	RiskAtRisk    RiskState = "AT_RISK"
	RiskViolation RiskState = "VIOLATION"
	RiskIncident  RiskState = "INCIDENT"
)

var riskRank = map[RiskState]int{
	RiskNormal:    0,
	RiskDegraded:  1,
	RiskAtRisk:    2,
	RiskViolation: 3,
	RiskIncident:  4,
}

// Rank orders risk states from NORMAL (0) to INCIDENT (4); unknown states rank -1.
func (s RiskState) Rank() int {
	if r, ok := riskRank[s]; ok {
		return r
	}
	return -1
}

// Validate checks if the RiskState is a valid enum value.
func (s RiskState) Validate() error {
	if s.Rank() < 0 {
		return fmt.Errorf("unknown risk state: %q", s)
	}
	return nil
}

// TimeHorizon is a bucketed estimate of when a projected state is reached.
type TimeHorizon string

const (
	HorizonImmediate TimeHorizon = "IMMEDIATE" // under 15 minutes
	HorizonShort     TimeHorizon = "SHORT"     // under 1 hour
	HorizonMedium    TimeHorizon = "MEDIUM"    // under 4 hours
	HorizonLong      TimeHorizon = "LONG"
)

// Validate checks if the TimeHorizon is a valid enum value.
func (h TimeHorizon) Validate() error {
	switch h {
	case HorizonImmediate, HorizonShort, HorizonMedium, HorizonLong:
		return nil
	default:
		return fmt.Errorf("unknown time horizon: %q", h)
	}
}

// Causal kinds of risk signals.
const (
	KindRiskEscalation = "RISK_ESCALATION"
	KindRiskSignal     = "RISK_SIGNAL"
)

// RiskSignal projects the risk state of one entity.
type RiskSignal struct {
	FindingBase
	Entity         string      `json:"entity"`
	CurrentState   RiskState   `json:"current_state"`
	ProjectedState RiskState   `json:"projected_state"`
	TimeHorizon    TimeHorizon `json:"time_horizon"`
}

func (r *RiskSignal) Section() Section { return SectionRiskSignals }

// Kind is RISK_ESCALATION when the projection is worse than the current state.
func (r *RiskSignal) Kind() string {
	if r.ProjectedState.Rank() > r.CurrentState.Rank() {
		return KindRiskEscalation
	}
	return KindRiskSignal
}

func (r *RiskSignal) Clone() Finding {
	c := *r
	c.FindingBase = r.FindingBase.clone()
	return &c
}

// Validate checks if the RiskSignal has valid field values.
func (r *RiskSignal) Validate() error {
	if err := r.FindingBase.validate(); err != nil {
		return err
	}
	if r.Entity == "" {
		return fmt.Errorf("%w: risk signal entity cannot be empty", ErrInvalidFinding)
	}
	if err := r.CurrentState.Validate(); err != nil {
		return fmt.Errorf("%w: current_state: %v", ErrInvalidFinding, err)
	}
	if err := r.ProjectedState.Validate(); err != nil {
		return fmt.Errorf("%w: projected_state: %v", ErrInvalidFinding, err)
	}
	if err := r.TimeHorizon.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFinding, err)
	}
	return nil
}

// Reasoning is the structured justification attached to a causal link.
type Reasoning struct {
	Rule            string  `json:"rule"`             // pattern table key, "CAUSE->EFFECT"
	BaseConfidence  float64 `json:"base_confidence"`  // from the pattern table
	ProximityFactor float64 `json:"proximity_factor"` // temporal decay multiplier
	LagSeconds      float64 `json:"lag_seconds"`      // effect timestamp minus cause timestamp
	CrossCycle      bool    `json:"cross_cycle,omitempty"`
}

// String renders the reasoning compactly, e.g. "rule=A->B base=0.80 proximity=1.12 lag=120s".
func (r Reasoning) String() string {
	return fmt.Sprintf("rule=%s base=%.2f proximity=%.2f lag=%.0fs", r.Rule, r.BaseConfidence, r.ProximityFactor, r.LagSeconds)
}

// KindCausalLink is the kind of every CausalLink.
const KindCausalLink = "CAUSAL_LINK"

// CausalLink is a directed, confidence-scored inferred relationship between two findings.
// Links may form cycles; consumers must not assume a DAG.
type CausalLink struct {
	FindingBase
	CauseID    string    `json:"cause"`
	EffectID   string    `json:"effect"`
	CauseKind  string    `json:"cause_kind"`
	EffectKind string    `json:"effect_kind"`
	Reasoning  Reasoning `json:"reasoning"`
}

func (c *CausalLink) Section() Section { return SectionCausalLinks }
func (c *CausalLink) Kind() string     { return KindCausalLink }

func (c *CausalLink) Clone() Finding {
	cp := *c
	cp.FindingBase = c.FindingBase.clone()
	return &cp
}

// Validate checks if the CausalLink has valid field values.
func (c *CausalLink) Validate() error {
	if err := c.FindingBase.validate(); err != nil {
		return err
	}
	if c.CauseID == "" || c.EffectID == "" {
		return fmt.Errorf("%w: cause and effect are required", ErrInvalidFinding)
	}
	if c.CauseID == c.EffectID {
		return fmt.Errorf("%w: a finding cannot cause itself", ErrInvalidFinding)
	}
	return nil
}

// KindHypothesis is the kind of every Hypothesis.
const KindHypothesis = "HYPOTHESIS"

// Hypothesis names a root cause for an effect by way of a causal chain.
type Hypothesis struct {
	FindingBase
	RootCauseID string   `json:"root_cause_id"`
	EffectID    string   `json:"effect_id"`
	Chain       []string `json:"chain"` // finding ids from root cause to effect
	Statement   string   `json:"statement"`
}

func (h *Hypothesis) Section() Section { return SectionHypotheses }
func (h *Hypothesis) Kind() string     { return KindHypothesis }

func (h *Hypothesis) Clone() Finding {
	c := *h
	c.FindingBase = h.FindingBase.clone()
	c.Chain = append([]string(nil), h.Chain...)
	return &c
}

// Validate checks if the Hypothesis has valid field values.
func (h *Hypothesis) Validate() error {
	if err := h.FindingBase.validate(); err != nil {
		return err
	}
	if h.RootCauseID == "" || h.EffectID == "" {
		return fmt.Errorf("%w: hypothesis needs root cause and effect", ErrInvalidFinding)
	}
	if len(h.Chain) < 2 {
		return fmt.Errorf("%w: hypothesis chain needs at least two findings", ErrInvalidFinding)
	}
	return nil
}

// Priority ranks recommendations.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// KindRecommendation is the kind of every Recommendation.
const KindRecommendation = "RECOMMENDATION"

// Recommendation is a suggested operator action backed by findings.
type Recommendation struct {
	FindingBase
	Action    string   `json:"action"`
	Target    string   `json:"target"`
	Priority  Priority `json:"priority"`
	Rationale string   `json:"rationale,omitempty"`
}

func (r *Recommendation) Section() Section { return SectionRecommendations }
func (r *Recommendation) Kind() string     { return KindRecommendation }

func (r *Recommendation) Clone() Finding {
	c := *r
	c.FindingBase = r.FindingBase.clone()
	return &c
}

// Validate checks if the Recommendation has valid field values.
func (r *Recommendation) Validate() error {
	if err := r.FindingBase.validate(); err != nil {
		return err
	}
	if r.Action == "" {
		return fmt.Errorf("%w: recommendation action cannot be empty", ErrInvalidFinding)
	}
	if r.Target == "" {
		return fmt.Errorf("%w: recommendation target cannot be empty", ErrInvalidFinding)
	}
	return nil
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
