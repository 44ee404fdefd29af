package causal

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/config"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

var t0 = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

func anomaly(typ blackboard.AnomalyType, entity string, at time.Time, evidence ...string) *blackboard.Anomaly {
	if len(evidence) == 0 {
		evidence = []string{"evt-" + entity}
	}
	return &blackboard.Anomaly{
		FindingBase: blackboard.FindingBase{
			ID:          uuid.New().String(),
			Agent:       blackboard.AgentResource,
			Confidence:  0.9,
			EvidenceIDs: evidence,
			Timestamp:   at,
		},
		Type:     typ,
		Entity:   entity,
		Severity: blackboard.SeverityHigh,
	}
}

func findings(fs ...blackboard.Finding) []blackboard.Finding {
	return fs
}

func linkBetween(links []*blackboard.CausalLink, cause, effect string) *blackboard.CausalLink {
	for _, l := range links {
		if l.CauseID == cause && l.EffectID == effect {
			return l
		}
	}
	return nil
}

func TestProximity(t *testing.T) {
	w := 10 * time.Minute

	assert.InDelta(t, 1.2, Proximity(0, w, 1), 1e-9)
	assert.InDelta(t, 1.2, Proximity(-time.Minute, w, 1), 1e-9, "negative lag clamps to zero")

	prev := Proximity(0, w, 1.5)
	for lag := time.Minute; lag <= w; lag += time.Minute {
		p := Proximity(lag, w, 1.5)
		assert.Less(t, p, prev, "strictly decreasing at %v", lag)
		assert.Greater(t, p, 0.5)
		prev = p
	}
}

func TestInfer_CloserPairIsMoreConfident(t *testing.T) {
	e := NewEngine(Options{Window: 10 * time.Minute})

	near := anomaly(blackboard.AnomalySustainedResourceCritical, "db-1", t0)
	nearDelay := anomaly(blackboard.AnomalyDelay, "deploy-1", t0.Add(2*time.Minute))
	far := anomaly(blackboard.AnomalySustainedResourceCritical, "db-2", t0)
	farDelay := anomaly(blackboard.AnomalyDelay, "deploy-2", t0.Add(9*time.Minute))

	nearLinks, err := e.Infer(findings(near, nearDelay), nil)
	require.NoError(t, err)
	farLinks, err := e.Infer(findings(far, farDelay), nil)
	require.NoError(t, err)

	require.Len(t, nearLinks, 1)
	require.Len(t, farLinks, 1)
	assert.Greater(t, nearLinks[0].Confidence, farLinks[0].Confidence)
	assert.Greater(t, nearLinks[0].Confidence, 0.8, "proximity scales upward near zero lag")
	assert.Less(t, farLinks[0].Confidence, 0.8, "and downward near the window edge")
}

func TestInfer_Link(t *testing.T) {
	e := NewEngine(Options{})

	cause := anomaly(blackboard.AnomalySustainedResourceCritical, "db-1", t0, "m-1", "m-2")
	effect := anomaly(blackboard.AnomalyDelay, "deploy-1", t0.Add(2*time.Minute), "e-1", "m-2")

	links, err := e.Infer(findings(effect, cause), nil)
	require.NoError(t, err)
	require.Len(t, links, 1)

	l := links[0]
	assert.Equal(t, blackboard.AgentCausal, l.Agent)
	assert.Equal(t, cause.ID, l.CauseID)
	assert.Equal(t, effect.ID, l.EffectID)
	assert.Equal(t, "SUSTAINED_RESOURCE_CRITICAL", l.CauseKind)
	assert.Equal(t, "DELAY", l.EffectKind)
	assert.Equal(t, effect.Timestamp, l.Timestamp)
	assert.Equal(t, []string{"m-1", "m-2", "e-1", cause.ID, effect.ID}, l.EvidenceIDs)

	assert.Equal(t, "SUSTAINED_RESOURCE_CRITICAL->DELAY", l.Reasoning.Rule)
	assert.Equal(t, 0.8, l.Reasoning.BaseConfidence)
	assert.Equal(t, 120.0, l.Reasoning.LagSeconds)
	assert.False(t, l.Reasoning.CrossCycle)
	assert.InDelta(t, 0.8*l.Reasoning.ProximityFactor, l.Confidence, 1e-3)

	assert.NoError(t, l.Validate())
}

func TestInfer_Exclusions(t *testing.T) {
	e := NewEngine(Options{Window: 10 * time.Minute})

	t.Run("effect before cause", func(t *testing.T) {
		delay := anomaly(blackboard.AnomalyDelay, "deploy-1", t0)
		critical := anomaly(blackboard.AnomalySustainedResourceCritical, "db-1", t0.Add(time.Minute))
		links, err := e.Infer(findings(delay, critical), nil)
		require.NoError(t, err)
		assert.Empty(t, links)
	})

	t.Run("outside window", func(t *testing.T) {
		critical := anomaly(blackboard.AnomalySustainedResourceCritical, "db-1", t0)
		delay := anomaly(blackboard.AnomalyDelay, "deploy-1", t0.Add(11*time.Minute))
		links, err := e.Infer(findings(critical, delay), nil)
		require.NoError(t, err)
		assert.Empty(t, links)
	})

	t.Run("no pattern", func(t *testing.T) {
		a := anomaly(blackboard.AnomalyDelay, "deploy-1", t0)
		b := anomaly(blackboard.AnomalyDelay, "deploy-2", t0.Add(time.Minute))
		links, err := e.Infer(findings(a, b), nil)
		require.NoError(t, err)
		assert.Empty(t, links)
	})

	t.Run("self pair", func(t *testing.T) {
		table := NewPatternTable(Pattern{Cause: "DELAY", Effect: "DELAY", BaseConfidence: 0.5})
		e := NewEngine(Options{Patterns: table})
		a := anomaly(blackboard.AnomalyDelay, "deploy-1", t0)
		links, err := e.Infer(findings(a), nil)
		require.NoError(t, err)
		assert.Empty(t, links)
	})

	t.Run("findings need ids", func(t *testing.T) {
		a := anomaly(blackboard.AnomalyDelay, "deploy-1", t0)
		a.ID = ""
		_, err := e.Infer(findings(a), nil)
		assert.Error(t, err)

		_, err = e.Infer([]blackboard.Finding{nil}, nil)
		assert.Error(t, err)
	})
}

func TestInfer_KeepsEveryCause(t *testing.T) {
	e := NewEngine(Options{})

	critical := anomaly(blackboard.AnomalySustainedResourceCritical, "db-1", t0)
	warning := anomaly(blackboard.AnomalySustainedResourceWarning, "cache-1", t0.Add(time.Minute))
	delay := anomaly(blackboard.AnomalyDelay, "deploy-1", t0.Add(3*time.Minute))

	links, err := e.Infer(findings(critical, warning, delay), nil)
	require.NoError(t, err)

	assert.NotNil(t, linkBetween(links, critical.ID, delay.ID))
	assert.NotNil(t, linkBetween(links, warning.ID, delay.ID))
	for i := 1; i < len(links); i++ {
		assert.GreaterOrEqual(t, links[i-1].Confidence, links[i].Confidence)
	}
}

func TestInfer_TieBreaksOnEvidence(t *testing.T) {
	e := NewEngine(Options{})

	delay := anomaly(blackboard.AnomalyDelay, "deploy-1", t0.Add(2*time.Minute))
	thin := anomaly(blackboard.AnomalySustainedResourceCritical, "db-1", t0, "m-1")
	thick := anomaly(blackboard.AnomalySustainedResourceCritical, "db-2", t0, "m-2", "m-3", "m-4")

	links, err := e.Infer(findings(delay, thin, thick), nil)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, links[0].Confidence, links[1].Confidence)
	assert.Equal(t, thick.ID, links[0].CauseID)
	assert.Equal(t, thin.ID, links[1].CauseID)
}

func TestInfer_PriorCycleTail(t *testing.T) {
	e := NewEngine(Options{Window: 10 * time.Minute, Lookback: 2 * time.Minute})

	old := anomaly(blackboard.AnomalySustainedResourceCritical, "db-old", t0)
	tail := anomaly(blackboard.AnomalySustainedResourceCritical, "db-1", t0.Add(3*time.Minute))
	priorDelay := anomaly(blackboard.AnomalyDelay, "deploy-0", t0.Add(4*time.Minute))
	delay := anomaly(blackboard.AnomalyDelay, "deploy-1", t0.Add(6*time.Minute))

	links, err := e.Infer(findings(delay), findings(old, tail, priorDelay))
	require.NoError(t, err)

	require.Len(t, links, 1, "only the tail links, and only into the current cycle")
	assert.Equal(t, tail.ID, links[0].CauseID)
	assert.Equal(t, delay.ID, links[0].EffectID)
	assert.True(t, links[0].Reasoning.CrossCycle)

	t.Run("disabled without lookback", func(t *testing.T) {
		links, err := NewEngine(Options{}).Infer(findings(delay), findings(tail))
		require.NoError(t, err)
		assert.Empty(t, links)
	})
}

func TestInfer_PolicyAndRiskKinds(t *testing.T) {
	e := NewEngine(Options{})

	missing := anomaly(blackboard.AnomalyMissingStep, "deploy-1", t0)
	hit := &blackboard.PolicyHit{
		FindingBase: blackboard.FindingBase{
			ID:          uuid.New().String(),
			Agent:       blackboard.AgentCompliance,
			Confidence:  0.95,
			EvidenceIDs: []string{"evt-9"},
			Timestamp:   t0.Add(30 * time.Second),
		},
		PolicyID:      "write-requires-approval",
		EventID:       "evt-9",
		ViolationType: "WRITE_WITHOUT_APPROVAL",
	}
	signal := &blackboard.RiskSignal{
		FindingBase: blackboard.FindingBase{
			ID:          uuid.New().String(),
			Agent:       blackboard.AgentRisk,
			Confidence:  0.9,
			EvidenceIDs: []string{missing.ID, hit.ID},
			Timestamp:   t0.Add(30 * time.Second),
		},
		Entity:         "deploy-1",
		CurrentState:   blackboard.RiskAtRisk,
		ProjectedState: blackboard.RiskIncident,
		TimeHorizon:    blackboard.HorizonShort,
	}

	links, err := e.Infer(findings(missing, hit, signal), nil)
	require.NoError(t, err)

	assert.NotNil(t, linkBetween(links, missing.ID, hit.ID))
	assert.NotNil(t, linkBetween(links, hit.ID, signal.ID))
	assert.NotNil(t, linkBetween(links, missing.ID, signal.ID))
	assert.Len(t, links, 3)
}

func TestInfer_ConfidenceCapped(t *testing.T) {
	table := NewPatternTable(Pattern{Cause: "DELAY", Effect: "MISSING_STEP", BaseConfidence: 1})
	e := NewEngine(Options{Patterns: table})

	links, err := e.Infer(findings(
		anomaly(blackboard.AnomalyDelay, "deploy-1", t0),
		anomaly(blackboard.AnomalyMissingStep, "deploy-1", t0),
	), nil)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, MaxConfidence, links[0].Confidence)
}

func TestPatternsFromConfig(t *testing.T) {
	decay := 3.0
	table, err := PatternsFromConfig([]config.PatternConfig{
		{Cause: "SUSTAINED_RESOURCE_CRITICAL", Effect: "DELAY", BaseConfidence: 0.9},
		{Cause: "BASELINE_DEVIATION", Effect: "MISSING_STEP", BaseConfidence: 0.3, Decay: &decay},
	})
	require.NoError(t, err)

	p, ok := table.Lookup("SUSTAINED_RESOURCE_CRITICAL", "DELAY")
	require.True(t, ok)
	assert.Equal(t, 0.9, p.BaseConfidence, "override replaces the built-in row")
	assert.Equal(t, DefaultDecay, p.Decay)

	p, ok = table.Lookup("BASELINE_DEVIATION", "MISSING_STEP")
	require.True(t, ok)
	assert.Equal(t, 3.0, p.Decay)

	assert.Equal(t, len(DefaultPatterns())+1, table.Len())

	_, err = PatternsFromConfig([]config.PatternConfig{{Cause: "DELAY"}})
	assert.Error(t, err)
}
