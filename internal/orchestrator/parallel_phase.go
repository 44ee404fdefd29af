package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/agents"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/observation"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// runDetectPhase dispatches every detector concurrently over the same window
// and waits until each has returned or exceeded the agent timeout. Only then
// are the kept findings appended, in detector order, so no later phase ever
// sees a partial detect result.
func (e *Engine) runDetectPhase(ctx context.Context, cycleID string, w *observation.Window) (*PhaseState, error) {
	names := make([]string, len(e.detectors))
	for i, d := range e.detectors {
		names[i] = d.Name()
	}
	ps := NewPhaseState(cycleID, blackboard.PhaseDetect, names)

	outcomes := make([]AgentOutcome, len(e.detectors))
	g, gCtx := errgroup.WithContext(ctx)
	for i, d := range e.detectors {
		i, d := i, d
		g.Go(func() error {
			outcomes[i] = e.runDetector(gCtx, d, w)
			return nil // detector failures never cancel their siblings
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return ps, err
	}

	for _, o := range outcomes {
		ps.Record(o)
		fields := map[string]interface{}{
			"cycle_id":    cycleID,
			"agent":       o.Agent,
			"duration_ms": o.Duration.Milliseconds(),
		}

		switch {
		case o.TimedOut():
			e.metrics.AgentTimeouts.WithLabelValues(o.Agent).Inc()
			log.Printf("[Orchestrator] Cycle %s: %v, output discarded", cycleID, o.Err)
			e.logEvent("agent_timeout", fields)
			continue
		case o.Err != nil:
			e.metrics.AgentFailures.WithLabelValues(o.Agent).Inc()
			log.Printf("[Orchestrator] Cycle %s: agent %s failed: %v", cycleID, o.Agent, o.Err)
			fields["error"] = o.Err.Error()
			e.logEvent("agent_failed", fields)
			continue
		}

		// Findings are appended under the detector's identity so section
		// authorization applies to it.
		valid := make([]blackboard.Finding, 0, len(o.Findings))
		for _, f := range o.Findings {
			if f == nil {
				ps.Rejected++
				continue
			}
			f.Base().Agent = o.Agent
			valid = append(valid, f)
		}
		_ = e.appendAll(ps, valid)

		fields["findings"] = len(valid)
		e.logEvent("agent_complete", fields)
	}

	e.completePhase(ps)
	return ps, nil
}

// runDetector runs one detector with its own deadline. The detector runs on
// its own goroutine so that one which ignores its context cannot hold the
// phase barrier; its late result is dropped.
func (e *Engine) runDetector(ctx context.Context, d agents.Detector, w *observation.Window) AgentOutcome {
	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, e.agentTimeout)
	defer cancel()

	type result struct {
		findings []blackboard.Finding
		err      error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Orchestrator] Agent %s panicked: %v\n%s", d.Name(), r, debug.Stack())
				done <- result{err: fmt.Errorf("agent panicked: %v", r)}
			}
		}()
		findings, err := d.Run(actx, w)
		done <- result{findings: findings, err: err}
	}()

	select {
	case r := <-done:
		o := AgentOutcome{Agent: d.Name(), Findings: r.findings, Err: r.err, Duration: time.Since(start)}
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			o.Err = &AgentTimeoutError{Agent: d.Name(), Timeout: e.agentTimeout}
			o.Findings = nil
		}
		return o
	case <-actx.Done():
		o := AgentOutcome{Agent: d.Name(), Duration: time.Since(start), Err: actx.Err()}
		if ctx.Err() == nil {
			o.Err = &AgentTimeoutError{Agent: d.Name(), Timeout: e.agentTimeout}
		}
		return o
	}
}
