package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/agents"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/config"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/observation"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

var t0 = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

// stubDetector returns whatever its run func produces.
type stubDetector struct {
	name  string
	run   func(ctx context.Context, w *observation.Window) ([]blackboard.Finding, error)
	calls atomic.Int32
}

func (s *stubDetector) Name() string { return s.name }

func (s *stubDetector) Run(ctx context.Context, w *observation.Window) ([]blackboard.Finding, error) {
	s.calls.Add(1)
	return s.run(ctx, w)
}

func returning(name string, findings ...func() blackboard.Finding) *stubDetector {
	return &stubDetector{name: name, run: func(context.Context, *observation.Window) ([]blackboard.Finding, error) {
		out := make([]blackboard.Finding, len(findings))
		for i, f := range findings {
			out[i] = f()
		}
		return out, nil
	}}
}

// hungDetector ignores its context and blocks until the test ends.
func hungDetector(t *testing.T, name string) *stubDetector {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	return &stubDetector{name: name, run: func(context.Context, *observation.Window) ([]blackboard.Finding, error) {
		<-release
		return []blackboard.Finding{anomaly(blackboard.AnomalyDelay, "wf-late", t0)()}, nil
	}}
}

func anomaly(typ blackboard.AnomalyType, entity string, at time.Time) func() blackboard.Finding {
	return func() blackboard.Finding {
		return &blackboard.Anomaly{
			FindingBase: blackboard.FindingBase{
				Agent:       "stub",
				Confidence:  0.8,
				EvidenceIDs: []string{uuid.NewString()},
				Timestamp:   at,
			},
			Type:     typ,
			Entity:   entity,
			Severity: blackboard.SeverityCritical,
		}
	}
}

func policyHit(policy, event, entity string, at time.Time) func() blackboard.Finding {
	return func() blackboard.Finding {
		return &blackboard.PolicyHit{
			FindingBase: blackboard.FindingBase{
				Agent:       "stub",
				Confidence:  0.95,
				EvidenceIDs: []string{event},
				Timestamp:   at,
			},
			PolicyID:      policy,
			EventID:       event,
			ViolationType: "WRITE_WITHOUT_APPROVAL",
			Entity:        entity,
		}
	}
}

// clock is a settable time source. Cycles run one at a time so it needs no lock.
type clock struct{ now time.Time }

func newClock(at time.Time) *clock { return &clock{now: at} }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testConfig() *config.CognicoreConfig {
	return testConfigWith(func(*config.CognicoreConfig) {})
}

func testConfigWith(mod func(*config.CognicoreConfig)) *config.CognicoreConfig {
	cfg := config.Default()
	cfg.Orchestrator.AgentTimeout = 100 * time.Millisecond
	mod(cfg)
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.CognicoreConfig, source observation.Source, client *blackboard.Client, clk *clock, detectors ...*stubDetector) *Engine {
	t.Helper()
	if source == nil {
		source = observation.NewMemorySource(0)
	}
	opts := []Option{WithHealthAddr("off"), WithClock(clk.Now)}
	if detectors != nil {
		ds := make([]agents.Detector, len(detectors))
		for i, d := range detectors {
			ds[i] = d
		}
		opts = append(opts, WithDetectors(ds...))
	}
	e, err := NewEngine(cfg, source, client, opts...)
	require.NoError(t, err)
	return e
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(nil, nil, nil)
	assert.ErrorContains(t, err, "observation source is required")

	bad := config.Default()
	bad.Version = "2.0"
	_, err = NewEngine(bad, observation.NewMemorySource(0), nil)
	assert.ErrorContains(t, err, "invalid configuration")

	e, err := NewEngine(nil, observation.NewMemorySource(0), nil, WithHealthAddr("off"))
	require.NoError(t, err)
	assert.Nil(t, e.healthServer)
	assert.Len(t, e.detectors, 4, "built-in detectors from the default configuration")
}

func TestRunCycle_Empty(t *testing.T) {
	e := newTestEngine(t, testConfig(), nil, nil, newClock(t0), returning(blackboard.AgentResource))

	snap, err := e.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, blackboard.CycleStatusComplete, snap.Cycle.Status)
	assert.Equal(t, blackboard.PhaseClosed, snap.Cycle.Phase)
	require.NotNil(t, snap.Risk)
	assert.Equal(t, 20.0, snap.Risk.RiskScore)
	assert.Equal(t, blackboard.RiskNormal, snap.Risk.RiskState)
	assert.Empty(t, snap.Findings())

	_, open := e.Store().OpenCycle()
	assert.False(t, open)
	assert.Len(t, e.Store().History(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics().CyclesTotal.WithLabelValues("complete")))
}

func TestRunCycle_FullPipeline(t *testing.T) {
	resource := returning(blackboard.AgentResource,
		anomaly(blackboard.AnomalySustainedResourceCritical, "db-1", t0.Add(-4*time.Minute)))
	workflow := returning(blackboard.AgentWorkflow,
		anomaly(blackboard.AnomalyDelay, "wf-1", t0.Add(-2*time.Minute)))

	e := newTestEngine(t, testConfig(), nil, nil, newClock(t0), resource, workflow)

	snap, err := e.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Anomalies, 2)
	for _, a := range snap.Anomalies {
		assert.Equal(t, snap.Cycle.ID, a.CycleID)
		assert.NotEmpty(t, a.ID)
		assert.NotEqual(t, "stub", a.Agent, "agent is stamped with the detector name")
	}
	critical, delay := snap.Anomalies[0], snap.Anomalies[1]
	assert.Equal(t, blackboard.AgentResource, critical.Agent)
	assert.Equal(t, blackboard.AgentWorkflow, delay.Agent)

	var link *blackboard.CausalLink
	for _, l := range snap.CausalLinks {
		if l.CauseID == critical.ID && l.EffectID == delay.ID {
			link = l
		}
	}
	require.NotNil(t, link, "critical resource anomaly explains the delay")
	assert.Equal(t, blackboard.AgentCausal, link.Agent)
	assert.False(t, link.Reasoning.CrossCycle)
	assert.Contains(t, link.EvidenceIDs, critical.ID)
	assert.Contains(t, link.EvidenceIDs, delay.ID)

	require.NotEmpty(t, snap.Hypotheses)
	require.NotEmpty(t, snap.Recommendations)
	for _, f := range snap.Findings() {
		assert.NotEmpty(t, f.Base().EvidenceIDs, "%s carries evidence", f.Kind())
	}

	assert.Equal(t, float64(len(snap.CausalLinks)), testutil.ToFloat64(e.Metrics().CausalLinks))
	assert.Equal(t, snap.Risk.RiskScore, testutil.ToFloat64(e.Metrics().RiskScore))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.Metrics().FindingsTotal.WithLabelValues(string(blackboard.SectionAnomalies))))
}

func TestRunCycle_ComplianceIncident(t *testing.T) {
	e := newTestEngine(t, testConfig(), nil, nil, newClock(t0),
		returning(blackboard.AgentWorkflow, anomaly(blackboard.AnomalyMissingStep, "wf-9", t0.Add(-3*time.Minute))),
		returning(blackboard.AgentCompliance, policyHit("write-requires-approval", "evt-1", "wf-9", t0.Add(-time.Minute))),
	)

	snap, err := e.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, blackboard.RiskIncident, snap.Risk.RiskState)
	require.Len(t, snap.PolicyHits, 1)

	found := false
	for _, l := range snap.CausalLinks {
		if l.CauseKind == string(blackboard.AnomalyMissingStep) && l.EffectKind == blackboard.KindPolicyViolation {
			found = true
		}
	}
	assert.True(t, found, "missing step explains the policy violation")
}

func TestRunCycle_HungAgentIsDiscarded(t *testing.T) {
	resource := returning(blackboard.AgentResource,
		anomaly(blackboard.AnomalySustainedResourceCritical, "db-1", t0.Add(-time.Minute)))
	hung := hungDetector(t, blackboard.AgentWorkflow)

	e := newTestEngine(t, testConfig(), nil, nil, newClock(t0), resource, hung)

	start := time.Now()
	snap, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "the barrier does not wait on a hung agent")

	require.Len(t, snap.Anomalies, 1)
	assert.Equal(t, blackboard.AgentResource, snap.Anomalies[0].Agent)
	assert.Equal(t, 30.5, snap.Risk.RiskScore)
	assert.Equal(t, blackboard.RiskDegraded, snap.Risk.RiskState)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics().AgentTimeouts.WithLabelValues(blackboard.AgentWorkflow)))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.Metrics().AgentTimeouts.WithLabelValues(blackboard.AgentResource)))
}

func TestRunCycle_ContextAwareTimeout(t *testing.T) {
	slow := &stubDetector{name: blackboard.AgentBaseline, run: func(ctx context.Context, _ *observation.Window) ([]blackboard.Finding, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	e := newTestEngine(t, testConfig(), nil, nil, newClock(t0), slow)

	_, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics().AgentTimeouts.WithLabelValues(blackboard.AgentBaseline)))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.Metrics().AgentFailures.WithLabelValues(blackboard.AgentBaseline)))
}

func TestRunCycle_FailingAgents(t *testing.T) {
	failing := &stubDetector{name: blackboard.AgentCompliance, run: func(context.Context, *observation.Window) ([]blackboard.Finding, error) {
		return nil, errors.New("policy store unavailable")
	}}
	panicking := &stubDetector{name: blackboard.AgentBaseline, run: func(context.Context, *observation.Window) ([]blackboard.Finding, error) {
		panic("index out of range")
	}}
	healthy := returning(blackboard.AgentResource,
		anomaly(blackboard.AnomalySustainedResourceCritical, "db-1", t0.Add(-time.Minute)))

	e := newTestEngine(t, testConfig(), nil, nil, newClock(t0), failing, panicking, healthy)

	snap, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Anomalies, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics().AgentFailures.WithLabelValues(blackboard.AgentCompliance)))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics().AgentFailures.WithLabelValues(blackboard.AgentBaseline)))
}

func TestRunCycle_RejectedFindingsDoNotAbort(t *testing.T) {
	// A detector outside the authorization table cannot write anomalies.
	rogue := returning("rogue-agent", anomaly(blackboard.AnomalyDelay, "wf-1", t0))
	noEvidence := &stubDetector{name: blackboard.AgentWorkflow, run: func(context.Context, *observation.Window) ([]blackboard.Finding, error) {
		a := anomaly(blackboard.AnomalyDelay, "wf-2", t0)().(*blackboard.Anomaly)
		a.EvidenceIDs = nil
		return []blackboard.Finding{a, nil}, nil
	}}

	e := newTestEngine(t, testConfig(), nil, nil, newClock(t0), rogue, noEvidence)

	snap, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Anomalies)
	assert.Equal(t, 20.0, snap.Risk.RiskScore)
}

func TestRunCycle_SourceFailureAborts(t *testing.T) {
	e := newTestEngine(t, testConfig(), failingSource{}, nil, newClock(t0), returning(blackboard.AgentResource))

	snap, err := e.RunCycle(context.Background())
	require.Error(t, err)
	assert.Nil(t, snap)
	assert.True(t, IsPhaseComputation(err))

	var perr *PhaseComputationError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, blackboard.PhaseOpen, perr.Phase)

	aborted := e.Store().AbortedCycles()
	require.Len(t, aborted, 1)
	assert.Equal(t, perr.CycleID, aborted[0].ID)
	assert.Equal(t, blackboard.CycleStatusAborted, aborted[0].Status)
	assert.Empty(t, e.Store().History())
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics().CyclesTotal.WithLabelValues("aborted")))

	// The store accepts a new cycle after an abort.
	_, open := e.Store().OpenCycle()
	assert.False(t, open)
}

func TestRunCycle_CancelledContextAborts(t *testing.T) {
	detector := &stubDetector{name: blackboard.AgentResource, run: func(ctx context.Context, _ *observation.Window) ([]blackboard.Finding, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	e := newTestEngine(t, testConfigWith(func(c *config.CognicoreConfig) {
		c.Orchestrator.AgentTimeout = 5 * time.Second
	}), nil, nil, newClock(t0), detector)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.RunCycle(ctx)
	require.Error(t, err)

	var perr *PhaseComputationError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, blackboard.PhaseDetect, perr.Phase)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0.0, testutil.ToFloat64(e.Metrics().AgentTimeouts.WithLabelValues(blackboard.AgentResource)),
		"a cancelled cycle is not an agent timeout")
}

func TestRunCycle_ConcurrentCycle(t *testing.T) {
	e := newTestEngine(t, testConfig(), nil, nil, newClock(t0), returning(blackboard.AgentResource))

	handle, err := e.Store().StartCycle()
	require.NoError(t, err)

	_, err = e.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, blackboard.IsConcurrentCycle(err))
	assert.False(t, IsPhaseComputation(err))

	// The already-open cycle is untouched.
	cycle, err := e.Store().Cycle(handle.ID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.CycleStatusOpen, cycle.Status)
	assert.Empty(t, e.Store().AbortedCycles())
}

func TestRunCycle_TrendAcrossCycles(t *testing.T) {
	clk := newClock(t0)
	var n atomic.Int32
	rising := &stubDetector{name: blackboard.AgentResource, run: func(_ context.Context, w *observation.Window) ([]blackboard.Finding, error) {
		// one more distinct critical resource per cycle
		count := int(n.Add(1))
		out := make([]blackboard.Finding, count)
		for i := range out {
			out[i] = anomaly(blackboard.AnomalySustainedResourceCritical, "db-"+string(rune('a'+i)), w.End().Add(-time.Minute))()
		}
		return out, nil
	}}
	e := newTestEngine(t, testConfig(), nil, nil, clk, rising)

	var scores []float64
	for i := 0; i < 3; i++ {
		snap, err := e.RunCycle(context.Background())
		require.NoError(t, err)
		scores = append(scores, snap.Risk.RiskScore)
		clk.Advance(time.Minute)
	}

	assert.Less(t, scores[0], scores[1])
	assert.Less(t, scores[1], scores[2])
	assert.Equal(t, 3, e.Risk().History().Len())

	last, ok := e.Store().LastCompleted()
	require.True(t, ok)
	assert.Equal(t, blackboard.TrendIncreasing, last.Risk.Trend)
	assert.Greater(t, last.Risk.Delta, 0.0)
}

func TestRunCycle_CrossCycleLink(t *testing.T) {
	clk := newClock(t0)
	var n atomic.Int32
	detector := &stubDetector{name: blackboard.AgentWorkflow, run: func(_ context.Context, w *observation.Window) ([]blackboard.Finding, error) {
		at := w.End().Add(-30 * time.Second)
		if n.Add(1) == 1 {
			return []blackboard.Finding{anomaly(blackboard.AnomalySustainedResourceCritical, "db-1", at)()}, nil
		}
		return []blackboard.Finding{anomaly(blackboard.AnomalyDelay, "wf-1", at)()}, nil
	}}

	cfg := testConfigWith(func(c *config.CognicoreConfig) {
		c.Causal.Lookback = 5 * time.Minute
	})
	e := newTestEngine(t, cfg, nil, nil, clk, detector)

	first, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Anomalies, 1)

	clk.Advance(time.Minute)
	second, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, second.Anomalies, 1)

	var cross *blackboard.CausalLink
	for _, l := range second.CausalLinks {
		if l.Reasoning.CrossCycle && l.EffectID == second.Anomalies[0].ID {
			cross = l
		}
	}
	require.NotNil(t, cross)
	assert.Equal(t, first.Anomalies[0].ID, cross.CauseID)
	assert.Equal(t, second.Anomalies[0].ID, cross.EffectID)
	assert.Equal(t, second.Cycle.ID, cross.CycleID)
	assert.InDelta(t, 60.0, cross.Reasoning.LagSeconds, 0.001)
}

func TestRunCycle_NoLookbackNoCrossCycleLink(t *testing.T) {
	clk := newClock(t0)
	var n atomic.Int32
	detector := &stubDetector{name: blackboard.AgentWorkflow, run: func(_ context.Context, w *observation.Window) ([]blackboard.Finding, error) {
		at := w.End().Add(-30 * time.Second)
		if n.Add(1) == 1 {
			return []blackboard.Finding{anomaly(blackboard.AnomalySustainedResourceCritical, "db-1", at)()}, nil
		}
		return []blackboard.Finding{anomaly(blackboard.AnomalyDelay, "wf-1", at)()}, nil
	}}
	e := newTestEngine(t, testConfig(), nil, nil, clk, detector)

	_, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	clk.Advance(time.Minute)
	second, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	for _, l := range second.CausalLinks {
		assert.False(t, l.Reasoning.CrossCycle)
	}
}

func TestRunCycle_BuiltinDetectors(t *testing.T) {
	source := observation.NewMemorySource(0)
	for i, v := range []float64{50, 92, 95, 97} {
		require.NoError(t, source.AddMetrics(observation.Metric{
			ID:         "cpu-" + string(rune('0'+i)),
			ResourceID: "db-1",
			Name:       "cpu",
			Value:      v,
			Timestamp:  t0.Add(time.Duration(i-4) * time.Minute),
		}))
	}
	require.NoError(t, source.AddEvents(observation.Event{
		ID:        "evt-write-1",
		Type:      "WRITE",
		Actor:     "svc-batch",
		Resource:  "db-1",
		Timestamp: t0.Add(-30 * time.Second),
	}))

	e, err := NewEngine(testConfig(), source, nil, WithHealthAddr("off"), WithClock(newClock(t0).Now))
	require.NoError(t, err)

	snap, err := e.RunCycle(context.Background())
	require.NoError(t, err)

	var kinds []string
	for _, a := range snap.Anomalies {
		kinds = append(kinds, a.Kind())
	}
	assert.Contains(t, kinds, string(blackboard.AnomalySustainedResourceCritical))
	require.Len(t, snap.PolicyHits, 1)
	assert.Equal(t, "write-requires-approval", snap.PolicyHits[0].PolicyID)
	assert.Equal(t, blackboard.AgentCompliance, snap.PolicyHits[0].Agent)

	// Resource and compliance both contribute, so the cycle is in breach.
	assert.Equal(t, blackboard.RiskIncident, snap.Risk.RiskState)
	assert.NotEmpty(t, snap.RiskSignals)
	assert.NotEmpty(t, snap.Recommendations)
}

type failingSource struct{}

func (failingSource) GetWindow(context.Context, time.Time, time.Time) (*observation.Window, error) {
	return nil, errors.New("source offline")
}
