package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// RecoverState restores engine state from Redis after a restart:
//  1. Seed the risk engine's history from the persisted risk history
//  2. Restore the causal look-back from the most recently persisted cycle
//
// Without a Redis client there is nothing to recover.
func (e *Engine) RecoverState(ctx context.Context) error {
	if e.client == nil {
		return nil
	}

	log.Printf("[Orchestrator] Starting state recovery...")
	startTime := time.Now()

	history, err := e.client.RiskHistory(ctx, e.riskHistory)
	if err != nil {
		return fmt.Errorf("failed to load risk history: %w", err)
	}
	e.risk.History().Seed(history)

	priorCount := 0
	latest, err := e.client.LatestCycle(ctx)
	switch {
	case err == nil:
		e.setPrior(latest)
		priorCount = len(e.priorFindings())
	case blackboard.IsNotFound(err):
		// fresh instance
	default:
		return fmt.Errorf("failed to load latest cycle: %w", err)
	}

	duration := time.Since(startTime)
	e.logEvent("recovery_complete", map[string]interface{}{
		"risk_snapshots": len(history),
		"prior_findings": priorCount,
		"duration_ms":    duration.Milliseconds(),
	})

	log.Printf("[Orchestrator] State recovery complete: %d risk snapshots, %d prior findings (duration: %v)",
		len(history), priorCount, duration.Round(time.Millisecond))

	return nil
}
