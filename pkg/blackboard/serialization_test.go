package blackboard

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completedSnapshot drives a cycle with one finding in every section through the store.
func completedSnapshot(t *testing.T) *CycleSnapshot {
	t.Helper()
	s := NewStore(nil, 0)
	cycleID := startDetect(t, s)

	anomalyID, err := s.Append(cycleID, SectionAnomalies, newAnomaly("wf-1"))
	require.NoError(t, err)
	hitID, err := s.Append(cycleID, SectionPolicyHits, newPolicyHit("no-after-hours", "evt-9"))
	require.NoError(t, err)

	require.NoError(t, s.AdvancePhase(cycleID, PhaseRisk))
	_, err = s.Append(cycleID, SectionRiskSignals, &RiskSignal{
		FindingBase:    FindingBase{Agent: AgentRisk, Confidence: 0.7, EvidenceIDs: []string{anomalyID}},
		Entity:         "wf-1",
		CurrentState:   RiskDegraded,
		ProjectedState: RiskAtRisk,
		TimeHorizon:    HorizonShort,
	})
	require.NoError(t, err)
	require.NoError(t, s.AttachRisk(cycleID, AgentRisk, &RiskSnapshot{
		Timestamp:    time.Now().UTC(),
		RiskScore:    34.75,
		RiskState:    RiskIncident,
		WorkflowRisk: 15,
		Trend:        TrendIncreasing,
		Contributions: []Contribution{
			{Component: ComponentWorkflow, Agent: AgentWorkflow, FindingID: anomalyID, Reason: "DELAY", Points: 15, Weighted: 5.25},
		},
	}))

	require.NoError(t, s.AdvancePhase(cycleID, PhaseCausal))
	linkID, err := s.Append(cycleID, SectionCausalLinks, &CausalLink{
		FindingBase: FindingBase{Agent: AgentCausal, Confidence: 0.82, EvidenceIDs: []string{anomalyID, hitID}},
		CauseID:     anomalyID,
		EffectID:    hitID,
		CauseKind:   "DELAY",
		EffectKind:  KindPolicyViolation,
		Reasoning:   Reasoning{Rule: "DELAY->POLICY_VIOLATION", BaseConfidence: 0.7, ProximityFactor: 1.17, LagSeconds: 120},
	})
	require.NoError(t, err)

	require.NoError(t, s.AdvancePhase(cycleID, PhaseSynthesize))
	_, err = s.Append(cycleID, SectionHypotheses, &Hypothesis{
		FindingBase: FindingBase{Agent: AgentSynthesis, Confidence: 0.82, EvidenceIDs: []string{linkID}},
		RootCauseID: anomalyID,
		EffectID:    hitID,
		Chain:       []string{anomalyID, hitID},
		Statement:   "DELAY on wf-1 led to POLICY_VIOLATION",
	})
	require.NoError(t, err)
	_, err = s.Append(cycleID, SectionRecommendations, &Recommendation{
		FindingBase: FindingBase{Agent: AgentSynthesis, Confidence: 0.82, EvidenceIDs: []string{anomalyID}},
		Action:      "Escalate to workflow owner",
		Target:      "wf-1",
		Priority:    PriorityHigh,
	})
	require.NoError(t, err)

	snap, err := s.CompleteCycle(context.Background(), cycleID)
	require.NoError(t, err)
	return snap
}

func TestCycleSnapshotHashRoundTrip(t *testing.T) {
	orig := completedSnapshot(t)

	hash, err := CycleSnapshotToHash(orig)
	require.NoError(t, err)
	assert.Equal(t, orig.Cycle.ID, hash["id"])
	assert.Equal(t, "INCIDENT", hash["risk_state"])
	assert.Equal(t, "34.75", hash["risk_score"])

	strHash := make(map[string]string, len(hash))
	for k, v := range hash {
		switch val := v.(type) {
		case string:
			strHash[k] = val
		case int64:
			strHash[k] = strconv.FormatInt(val, 10)
		}
	}

	got, err := HashToCycleSnapshot(strHash)
	require.NoError(t, err)

	assert.Equal(t, orig.Cycle.ID, got.Cycle.ID)
	assert.Equal(t, CycleStatusComplete, got.Cycle.Status)
	assert.Equal(t, PhaseClosed, got.Cycle.Phase)
	assert.Equal(t, orig.Cycle.StartedAt.UnixMilli(), got.Cycle.StartedAt.UnixMilli())
	require.NotNil(t, got.Cycle.CompletedAt)
	assert.Equal(t, orig.Cycle.CompletedAt.UnixMilli(), got.Cycle.CompletedAt.UnixMilli())

	require.Len(t, got.Anomalies, 1)
	assert.Equal(t, orig.Anomalies[0].ID, got.Anomalies[0].ID)
	assert.Equal(t, AnomalyDelay, got.Anomalies[0].Type)
	require.Len(t, got.PolicyHits, 1)
	assert.Equal(t, "no-after-hours", got.PolicyHits[0].PolicyID)
	require.Len(t, got.CausalLinks, 1)
	assert.Equal(t, orig.CausalLinks[0].Reasoning, got.CausalLinks[0].Reasoning)
	require.Len(t, got.Hypotheses, 1)
	assert.Equal(t, orig.Hypotheses[0].Chain, got.Hypotheses[0].Chain)
	require.Len(t, got.Recommendations, 1)

	require.NotNil(t, got.Risk)
	assert.Equal(t, 34.75, got.Risk.RiskScore)
	assert.Equal(t, orig.Risk.Contributions, got.Risk.Contributions)
}

func TestCycleSnapshotToHash_EmptySections(t *testing.T) {
	s := NewStore(nil, 0)
	h, err := s.StartCycle()
	require.NoError(t, err)
	snap, err := s.CompleteCycle(context.Background(), h.ID)
	require.NoError(t, err)

	hash, err := CycleSnapshotToHash(snap)
	require.NoError(t, err)
	assert.Equal(t, "[]", hash["anomalies"])
	assert.Equal(t, "[]", hash["recommendations"])
	assert.Equal(t, "", hash["risk"])
}

func TestHashToCycleSnapshot_Malformed(t *testing.T) {
	base := map[string]string{
		"id":              "c1",
		"status":          "complete",
		"phase":           "CLOSED",
		"started_at_ms":   "1700000000000",
		"completed_at_ms": "1700000001000",
	}

	t.Run("missing id", func(t *testing.T) {
		_, err := HashToCycleSnapshot(map[string]string{})
		assert.Error(t, err)
	})

	t.Run("bad start time", func(t *testing.T) {
		h := copyHash(base)
		h["started_at_ms"] = "yesterday"
		_, err := HashToCycleSnapshot(h)
		assert.Error(t, err)
	})

	t.Run("bad section JSON", func(t *testing.T) {
		h := copyHash(base)
		h["anomalies"] = "{not json"
		_, err := HashToCycleSnapshot(h)
		assert.Error(t, err)
	})

	t.Run("bad risk JSON", func(t *testing.T) {
		h := copyHash(base)
		h["risk"] = "[]"
		_, err := HashToCycleSnapshot(h)
		assert.Error(t, err)
	})
}

func copyHash(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
