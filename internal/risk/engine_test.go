package risk

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

var now = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

func anomaly(typ blackboard.AnomalyType, entity string) *blackboard.Anomaly {
	return &blackboard.Anomaly{
		FindingBase: blackboard.FindingBase{
			ID:          uuid.New().String(),
			Agent:       blackboard.AgentResource,
			Confidence:  0.8,
			EvidenceIDs: []string{"evt"},
			Timestamp:   now,
		},
		Type:     typ,
		Entity:   entity,
		Severity: blackboard.SeverityHigh,
	}
}

func hit(policy, event, entity string) *blackboard.PolicyHit {
	return &blackboard.PolicyHit{
		FindingBase: blackboard.FindingBase{
			ID:          uuid.New().String(),
			Agent:       blackboard.AgentCompliance,
			Confidence:  0.95,
			EvidenceIDs: []string{event},
			Timestamp:   now,
		},
		PolicyID:      policy,
		EventID:       event,
		ViolationType: "X",
		Entity:        entity,
	}
}

func TestAssess_EmptyCycleIsBaseline(t *testing.T) {
	e := NewEngine(Options{})

	a, err := e.Assess("c1", nil, nil, now)
	require.NoError(t, err)
	assert.Equal(t, 20.0, a.Snapshot.RiskScore)
	assert.Equal(t, blackboard.RiskNormal, a.Snapshot.RiskState)
	assert.Equal(t, blackboard.TrendStable, a.Snapshot.Trend)
	assert.Empty(t, a.Snapshot.Contributions)
	assert.Empty(t, a.Signals)
}

func TestAssess_SustainedCritical(t *testing.T) {
	e := NewEngine(Options{})

	a, err := e.Assess("c1", []*blackboard.Anomaly{anomaly(blackboard.AnomalySustainedResourceCritical, "db-1")}, nil, now)
	require.NoError(t, err)

	snap := a.Snapshot
	assert.InDelta(t, 30.5, snap.RiskScore, 1e-9)
	assert.Equal(t, blackboard.RiskDegraded, snap.RiskState)
	assert.Equal(t, 30.0, snap.ResourceRisk)
	require.Len(t, snap.Contributions, 1)
	assert.Equal(t, blackboard.ComponentResource, snap.Contributions[0].Component)
	assert.Equal(t, 10.5, snap.Contributions[0].Weighted)
}

func TestAssess_ComplianceBreachIsIncident(t *testing.T) {
	e := NewEngine(Options{})

	a, err := e.Assess("c1",
		[]*blackboard.Anomaly{anomaly(blackboard.AnomalyMissingStep, "wf-1")},
		[]*blackboard.PolicyHit{hit("write-requires-approval", "evt-9", "wf-1")},
		now)
	require.NoError(t, err)

	snap := a.Snapshot
	assert.InDelta(t, 34.75, snap.RiskScore, 1e-9)
	assert.Equal(t, 25.0, snap.WorkflowRisk)
	assert.Equal(t, 20.0, snap.ComplianceRisk)
	assert.Equal(t, blackboard.RiskIncident, snap.RiskState)
}

func TestAssess_DistinctAnomaliesOnly(t *testing.T) {
	e := NewEngine(Options{})

	a, err := e.Assess("c1", []*blackboard.Anomaly{
		anomaly(blackboard.AnomalyDelay, "wf-1"),
		anomaly(blackboard.AnomalyDelay, "wf-1"),
		anomaly(blackboard.AnomalyDelay, "wf-2"),
		anomaly(blackboard.AnomalyBaselineDeviation, "api-1"),
	}, nil, now)
	require.NoError(t, err)

	assert.Equal(t, 30.0, a.Snapshot.WorkflowRisk, "two distinct delays")
	assert.Len(t, a.Snapshot.Contributions, 2)
}

func TestAssess_ComponentAndScoreCaps(t *testing.T) {
	e := NewEngine(Options{})

	var anomalies []*blackboard.Anomaly
	var hits []*blackboard.PolicyHit
	for i := 0; i < 10; i++ {
		ent := uuid.New().String()
		anomalies = append(anomalies,
			anomaly(blackboard.AnomalyMissingStep, ent),
			anomaly(blackboard.AnomalySustainedResourceCritical, ent))
		hits = append(hits, hit("p", uuid.New().String(), ent))
	}

	a, err := e.Assess("c1", anomalies, hits, now)
	require.NoError(t, err)
	assert.Equal(t, 100.0, a.Snapshot.WorkflowRisk)
	assert.Equal(t, 100.0, a.Snapshot.ResourceRisk)
	assert.Equal(t, 100.0, a.Snapshot.ComplianceRisk)
	assert.Equal(t, 100.0, a.Snapshot.RiskScore)
	assert.Equal(t, blackboard.RiskIncident, a.Snapshot.RiskState)
}

func TestAssess_PureResourceBreachIsViolation(t *testing.T) {
	e := NewEngine(Options{})

	var anomalies []*blackboard.Anomaly
	for i := 0; i < 4; i++ {
		ent := uuid.New().String()
		anomalies = append(anomalies,
			anomaly(blackboard.AnomalyMissingStep, ent),
			anomaly(blackboard.AnomalySustainedResourceCritical, ent))
	}

	a, err := e.Assess("c1", anomalies, nil, now)
	require.NoError(t, err)
	// 20 + 0.35*100 + 0.35*100 = 90
	assert.Equal(t, 90.0, a.Snapshot.RiskScore)
	assert.Equal(t, blackboard.RiskViolation, a.Snapshot.RiskState)
}

func TestAssess_OrderInvariant(t *testing.T) {
	anomalies := []*blackboard.Anomaly{
		anomaly(blackboard.AnomalyDelay, "wf-1"),
		anomaly(blackboard.AnomalyDelay, "wf-1"),
		anomaly(blackboard.AnomalyMissingStep, "wf-2"),
		anomaly(blackboard.AnomalyResourceDrift, "db-1"),
		anomaly(blackboard.AnomalySustainedResourceWarning, "db-1"),
	}
	anomalies[1].Confidence = 0.9
	hits := []*blackboard.PolicyHit{
		hit("p1", "e1", "wf-1"),
		hit("p2", "e2", ""),
		hit("p1", "e3", "wf-2"),
	}

	base, err := NewEngine(Options{}).Assess("c1", anomalies, hits, now)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		a := append([]*blackboard.Anomaly(nil), anomalies...)
		h := append([]*blackboard.PolicyHit(nil), hits...)
		rng.Shuffle(len(a), func(i, j int) { a[i], a[j] = a[j], a[i] })
		rng.Shuffle(len(h), func(i, j int) { h[i], h[j] = h[j], h[i] })

		got, err := NewEngine(Options{}).Assess("c1", a, h, now)
		require.NoError(t, err)
		assert.Equal(t, base.Snapshot, got.Snapshot)
		assert.Equal(t, base.Signals, got.Signals)
	}
}

func TestAssess_RejectsNilFindings(t *testing.T) {
	e := NewEngine(Options{})
	_, err := e.Assess("c1", []*blackboard.Anomaly{nil}, nil, now)
	assert.Error(t, err)
	_, err = e.Assess("c1", nil, []*blackboard.PolicyHit{nil}, now)
	assert.Error(t, err)
}

func TestAssess_TrendAndDelta(t *testing.T) {
	e := NewEngine(Options{})
	for i, score := range []float64{20, 25, 30, 35} {
		e.Record(&blackboard.RiskSnapshot{CycleID: uuid.New().String(), Timestamp: now.Add(time.Duration(i) * time.Minute), RiskScore: score})
	}

	a, err := e.Assess("c5", []*blackboard.Anomaly{anomaly(blackboard.AnomalySustainedResourceCritical, "db-1")}, nil, now)
	require.NoError(t, err)
	assert.Equal(t, blackboard.TrendIncreasing, a.Snapshot.Trend)
	assert.InDelta(t, -4.5, a.Snapshot.Delta, 1e-9)

	// Assess does not record.
	assert.Equal(t, 4, e.History().Len())
}

func TestStateRoundTrip(t *testing.T) {
	e := NewEngine(Options{})
	cases := [][]*blackboard.Anomaly{
		nil,
		{anomaly(blackboard.AnomalySustainedResourceCritical, "db-1")},
		{anomaly(blackboard.AnomalyMissingStep, "wf-1"), anomaly(blackboard.AnomalySustainedResourceCritical, "db-1"), anomaly(blackboard.AnomalyResourceDrift, "db-2")},
	}
	for _, anomalies := range cases {
		a, err := e.Assess("c", anomalies, nil, now)
		require.NoError(t, err)
		assert.Equal(t, a.Snapshot.RiskState, StateOf(a.Snapshot))
	}
}
