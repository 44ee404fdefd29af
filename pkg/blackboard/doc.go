// Package blackboard provides the typed, append-only shared state of a
// reasoning cycle and the Redis schema used to persist completed cycles.
//
// # Overview
//
// The blackboard is the only channel between cycle participants. Detectors,
// the risk engine, the causal engine and the synthesis stage never call each
// other: each reads the findings earlier phases left on the board and appends
// its own. Every finding carries its producing agent, a confidence and the ids
// of the evidence it rests on, so any conclusion can be traced back to raw
// observations.
//
// # Cycles and Phases
//
// At most one cycle is open at a time. A cycle moves through
//
//	IDLE → OPEN → PHASE_DETECT → PHASE_RISK → PHASE_CAUSAL → PHASE_SYNTHESIZE → CLOSED
//
// and an entry becomes visible to readers only once the cycle has advanced
// past the phase in which it was appended. Completed cycles are immutable and
// kept in a bounded FIFO history (DefaultHistorySize).
//
// # Sections
//
// Findings live in six sections: anomalies, policy_hits, risk_signals,
// causal_links, hypotheses and recommendations. Each agent identity is
// authorized for a fixed set of sections (see DefaultAuthorizations).
//
// # Persistence
//
// Store hands each completed cycle to a PersistenceSink. Client is the Redis
// sink; it keeps one hash per cycle, a ZSET index scored by completion time,
// a capped risk history list, and publishes a CycleSummary on the cycle
// events channel.
//
// # Redis Schema
//
//	cognicore:{instance}:cycle:{cycle_id}     HASH  cycle fields + JSON sections
//	cognicore:{instance}:cycles               ZSET  cycle ids by completed_at ms
//	cognicore:{instance}:risk_history         LIST  RiskSnapshot JSON, newest last
//	cognicore:{instance}:observations:{kind}  ZSET  event/metric JSON by timestamp ms
//	cognicore:{instance}:cycle_events         Pub/Sub channel of CycleSummary JSON
//
// # Usage Example
//
//	store := blackboard.NewStore(client, 0)
//	h, err := store.StartCycle()
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = store.AdvancePhase(h.ID, blackboard.PhaseDetect)
//	_, err = store.Append(h.ID, blackboard.SectionAnomalies, &blackboard.Anomaly{
//		FindingBase: blackboard.FindingBase{
//			Agent:       blackboard.AgentWorkflow,
//			Confidence:  0.9,
//			EvidenceIDs: []string{"evt-42"},
//		},
//		Type:     blackboard.AnomalyMissingStep,
//		Entity:   "wf-onboarding",
//		Severity: blackboard.SeverityHigh,
//	})
package blackboard
