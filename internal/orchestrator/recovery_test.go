package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/config"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *blackboard.Client) {
	mr := miniredis.RunT(t)
	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRunCycle_PersistsCompletedCycles(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	e := newTestEngine(t, testConfig(), nil, client, newClock(t0),
		returning(blackboard.AgentResource, anomaly(blackboard.AnomalySustainedResourceCritical, "db-1", t0.Add(-time.Minute))))

	snap, err := e.RunCycle(ctx)
	require.NoError(t, err)

	stored, err := client.GetCycle(ctx, snap.Cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Cycle.ID, stored.Cycle.ID)
	require.Len(t, stored.Anomalies, 1)
	assert.Equal(t, snap.Anomalies[0].ID, stored.Anomalies[0].ID)
	assert.Equal(t, snap.Risk.RiskScore, stored.Risk.RiskScore)

	history, err := client.RiskHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, snap.Cycle.ID, history[0].CycleID)
}

func TestRunCycle_RiskHistoryRetainedIndependently(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	clk := newClock(t0)

	cfg := testConfigWith(func(c *config.CognicoreConfig) {
		cycles := 2
		c.Orchestrator.HistorySize = &cycles
		c.Risk.HistorySize = 4
	})
	e := newTestEngine(t, cfg, nil, client, clk, returning(blackboard.AgentResource))

	for i := 0; i < 5; i++ {
		_, err := e.RunCycle(ctx)
		require.NoError(t, err)
		clk.Advance(time.Minute)
	}

	cycles, err := client.ListCycles(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, cycles, 2)

	history, err := client.RiskHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, history, 4)

	// A restarted engine seeds its trend from all four snapshots.
	restarted := newTestEngine(t, cfg, nil, client, clk, returning(blackboard.AgentResource))
	require.NoError(t, restarted.RecoverState(ctx))
	assert.Equal(t, 4, restarted.Risk().History().Len())
}

func TestRunCycle_AbortedCyclesAreNotPersisted(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	e := newTestEngine(t, testConfig(), failingSource{}, client, newClock(t0), returning(blackboard.AgentResource))

	_, err := e.RunCycle(ctx)
	require.Error(t, err)

	_, err = client.LatestCycle(ctx)
	assert.True(t, blackboard.IsNotFound(err))
}

func TestRecoverState(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	clk := newClock(t0)

	cfg := testConfigWith(func(c *config.CognicoreConfig) {
		c.Causal.Lookback = 5 * time.Minute
	})
	first := newTestEngine(t, cfg, nil, client, clk,
		returning(blackboard.AgentResource, anomaly(blackboard.AnomalySustainedResourceCritical, "db-1", t0.Add(-30*time.Second))))

	var last *blackboard.CycleSnapshot
	for i := 0; i < 3; i++ {
		snap, err := first.RunCycle(ctx)
		require.NoError(t, err)
		last = snap
	}

	// A restarted engine picks up where the first one stopped.
	clk.Advance(time.Minute)
	restarted := newTestEngine(t, cfg, nil, client, clk,
		returning(blackboard.AgentWorkflow, anomaly(blackboard.AnomalyDelay, "wf-1", t0.Add(30*time.Second))))
	require.NoError(t, restarted.RecoverState(ctx))

	assert.Equal(t, 3, restarted.Risk().History().Len())
	prior := restarted.priorFindings()
	require.NotEmpty(t, prior)
	assert.Equal(t, last.Anomalies[0].ID, prior[0].Base().ID)

	snap, err := restarted.RunCycle(ctx)
	require.NoError(t, err)
	assert.InDelta(t, snap.Risk.RiskScore-last.Risk.RiskScore, snap.Risk.Delta, 0.01, "delta against the recovered history")

	found := false
	for _, l := range snap.CausalLinks {
		if l.Reasoning.CrossCycle && l.CauseID == last.Anomalies[0].ID {
			found = true
		}
	}
	assert.True(t, found, "recovered findings feed the causal look-back")
}

func TestRecoverState_FreshInstance(t *testing.T) {
	_, client := setupTestRedis(t)

	e := newTestEngine(t, testConfig(), nil, client, newClock(t0))
	require.NoError(t, e.RecoverState(context.Background()))
	assert.Zero(t, e.Risk().History().Len())
	assert.Empty(t, e.priorFindings())
}

func TestRecoverState_WithoutRedis(t *testing.T) {
	e := newTestEngine(t, testConfig(), nil, nil, newClock(t0))
	assert.NoError(t, e.RecoverState(context.Background()))
}

func TestRecoverState_RedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	e := newTestEngine(t, testConfig(), nil, client, newClock(t0))
	err := e.RecoverState(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load risk history")
}
