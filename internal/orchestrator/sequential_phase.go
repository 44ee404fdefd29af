package orchestrator

import (
	"fmt"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/synthesis"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// detectFindings reads everything PHASE_DETECT produced.
func (e *Engine) detectFindings(cycleID string) ([]*blackboard.Anomaly, []*blackboard.PolicyHit, error) {
	anomalies, err := blackboard.ReadSection[*blackboard.Anomaly](e.store, cycleID, blackboard.SectionAnomalies)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read anomalies: %w", err)
	}
	hits, err := blackboard.ReadSection[*blackboard.PolicyHit](e.store, cycleID, blackboard.SectionPolicyHits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read policy hits: %w", err)
	}
	return anomalies, hits, nil
}

// runRiskPhase scores the detect findings, appends per-entity risk signals
// and attaches the cycle's risk snapshot. Any rejection aborts the cycle.
func (e *Engine) runRiskPhase(cycleID string, at time.Time) error {
	ps := NewPhaseState(cycleID, blackboard.PhaseRisk, []string{blackboard.AgentRisk})

	anomalies, hits, err := e.detectFindings(cycleID)
	if err != nil {
		return err
	}

	assessment, err := e.risk.Assess(cycleID, anomalies, hits, at)
	if err != nil {
		return fmt.Errorf("risk assessment failed: %w", err)
	}

	signals := make([]blackboard.Finding, 0, len(assessment.Signals))
	for _, s := range assessment.Signals {
		signals = append(signals, s)
	}
	if err := e.appendAll(ps, signals); err != nil {
		return fmt.Errorf("risk signal rejected: %w", err)
	}
	if err := e.store.AttachRisk(cycleID, blackboard.AgentRisk, assessment.Snapshot); err != nil {
		return fmt.Errorf("failed to attach risk snapshot: %w", err)
	}

	ps.Record(AgentOutcome{Agent: blackboard.AgentRisk, Duration: time.Since(ps.StartTime)})
	e.completePhase(ps)
	return nil
}

// runCausalPhase links this cycle's findings, and the prior cycle's tail, into causal links.
func (e *Engine) runCausalPhase(cycleID string) error {
	ps := NewPhaseState(cycleID, blackboard.PhaseCausal, []string{blackboard.AgentCausal})

	anomalies, hits, err := e.detectFindings(cycleID)
	if err != nil {
		return err
	}
	signals, err := blackboard.ReadSection[*blackboard.RiskSignal](e.store, cycleID, blackboard.SectionRiskSignals)
	if err != nil {
		return fmt.Errorf("failed to read risk signals: %w", err)
	}

	current := make([]blackboard.Finding, 0, len(anomalies)+len(hits)+len(signals))
	for _, a := range anomalies {
		current = append(current, a)
	}
	for _, h := range hits {
		current = append(current, h)
	}
	for _, s := range signals {
		current = append(current, s)
	}

	links, err := e.causal.Infer(current, e.priorFindings())
	if err != nil {
		return fmt.Errorf("causal inference failed: %w", err)
	}

	out := make([]blackboard.Finding, 0, len(links))
	for _, l := range links {
		out = append(out, l)
	}
	if err := e.appendAll(ps, out); err != nil {
		return fmt.Errorf("causal link rejected: %w", err)
	}
	e.metrics.CausalLinks.Add(float64(ps.Appended[blackboard.SectionCausalLinks]))

	ps.Record(AgentOutcome{Agent: blackboard.AgentCausal, Duration: time.Since(ps.StartTime)})
	e.completePhase(ps)
	return nil
}

// runSynthesizePhase derives hypotheses and recommendations.
func (e *Engine) runSynthesizePhase(cycleID string, at time.Time) error {
	ps := NewPhaseState(cycleID, blackboard.PhaseSynthesize, []string{blackboard.AgentSynthesis})

	anomalies, hits, err := e.detectFindings(cycleID)
	if err != nil {
		return err
	}
	signals, err := blackboard.ReadSection[*blackboard.RiskSignal](e.store, cycleID, blackboard.SectionRiskSignals)
	if err != nil {
		return fmt.Errorf("failed to read risk signals: %w", err)
	}
	links, err := blackboard.ReadSection[*blackboard.CausalLink](e.store, cycleID, blackboard.SectionCausalLinks)
	if err != nil {
		return fmt.Errorf("failed to read causal links: %w", err)
	}

	out, err := e.synth.Synthesize(synthesis.Input{
		Anomalies:   anomalies,
		PolicyHits:  hits,
		RiskSignals: signals,
		CausalLinks: links,
	}, at)
	if err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}

	findings := make([]blackboard.Finding, 0, len(out.Hypotheses)+len(out.Recommendations))
	for _, h := range out.Hypotheses {
		findings = append(findings, h)
	}
	for _, r := range out.Recommendations {
		findings = append(findings, r)
	}
	if err := e.appendAll(ps, findings); err != nil {
		return fmt.Errorf("synthesis finding rejected: %w", err)
	}

	ps.Record(AgentOutcome{Agent: blackboard.AgentSynthesis, Duration: time.Since(ps.StartTime)})
	e.completePhase(ps)
	return nil
}
