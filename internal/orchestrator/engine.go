// Package orchestrator owns the cycle lifecycle: it opens a cycle, runs the
// detectors in parallel behind a timeout-bounded barrier, runs the risk,
// causal and synthesis engines in sequence, and completes or aborts the cycle.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/agents"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/causal"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/config"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/observation"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/risk"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/synthesis"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// Engine is the cycle orchestrator.
type Engine struct {
	store        *blackboard.Store
	client       *blackboard.Client // nil when running without Redis
	source       observation.Source
	detectors    []agents.Detector
	risk         *risk.Engine
	causal       *causal.Engine
	synth        *synthesis.Engine
	metrics      *Metrics
	healthServer *HealthServer
	instanceName string

	interval     time.Duration
	window       time.Duration
	agentTimeout time.Duration
	riskHistory  int
	healthAddr   string
	registry     *prometheus.Registry
	now          func() time.Time

	mu    sync.Mutex
	prior []blackboard.Finding // detect and risk findings of the last completed cycle
}

// Option customizes an Engine.
type Option func(*Engine)

// WithDetectors replaces the detectors built from configuration.
func WithDetectors(detectors ...agents.Detector) Option {
	return func(e *Engine) {
		e.detectors = detectors
	}
}

// WithClock sets the time source used to place observation windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// WithHealthAddr overrides orchestrator.health_addr. "off" disables the server.
func WithHealthAddr(addr string) Option {
	return func(e *Engine) {
		e.healthAddr = addr
	}
}

// NewEngine creates an orchestrator from a configuration. client may be nil,
// in which case completed cycles are kept in memory only.
func NewEngine(cfg *config.CognicoreConfig, source observation.Source, client *blackboard.Client, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("observation source is required")
	}

	patterns, err := causal.PatternsFromConfig(cfg.Causal.Patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid causal patterns: %w", err)
	}

	historySize := *cfg.Orchestrator.HistorySize
	var store *blackboard.Store
	if client != nil {
		client.SetHistorySize(historySize)
		client.SetRiskHistorySize(cfg.Risk.HistorySize)
		store = blackboard.NewStore(client, historySize)
	} else {
		store = blackboard.NewStore(nil, historySize)
	}

	e := &Engine{
		store:     store,
		client:    client,
		source:    source,
		detectors: agents.FromConfig(cfg.Detectors),
		risk: risk.NewEngine(risk.Options{
			Baseline:      *cfg.Risk.Baseline,
			TrendWindow:   cfg.Risk.TrendWindow,
			HistorySize:   cfg.Risk.HistorySize,
			CycleInterval: cfg.Orchestrator.CycleInterval,
		}),
		causal: causal.NewEngine(causal.Options{
			Window:        cfg.Causal.CorrelationWindow,
			Lookback:      cfg.Causal.Lookback,
			MaxChainDepth: cfg.Causal.MaxChainDepth,
			Patterns:      patterns,
		}),
		synth:        synthesis.NewEngine(cfg.Causal.MaxChainDepth),
		instanceName: cfg.Instance,
		interval:     cfg.Orchestrator.CycleInterval,
		window:       cfg.Orchestrator.Window,
		agentTimeout: cfg.Orchestrator.AgentTimeout,
		riskHistory:  cfg.Risk.HistorySize,
		healthAddr:   cfg.Orchestrator.HealthAddr,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}

	e.metrics = NewMetrics(e.registry)
	if e.healthAddr != "off" {
		e.healthServer = NewHealthServer(e.healthAddr, client, store, e.metrics.Registry())
	}
	return e, nil
}

// Store exposes the blackboard for read-only consumers.
func (e *Engine) Store() *blackboard.Store {
	return e.store
}

// Risk exposes the risk engine, whose history consumers may read.
func (e *Engine) Risk() *risk.Engine {
	return e.risk
}

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Run recovers state, then runs one cycle immediately and one per cycle
// interval until ctx is cancelled. Failed cycles are logged and the loop
// continues.
func (e *Engine) Run(ctx context.Context) error {
	if e.healthServer != nil {
		if err := e.healthServer.Start(); err != nil {
			return fmt.Errorf("failed to start health server: %w", err)
		}
		defer e.healthServer.Shutdown(context.Background())
	}

	log.Printf("[Orchestrator] Starting for instance '%s' (interval %s, window %s, %d detectors)",
		e.instanceName, e.interval, e.window, len(e.detectors))

	if err := e.RecoverState(ctx); err != nil {
		log.Printf("[Orchestrator] Warning: state recovery failed: %v", err)
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		if _, err := e.RunCycle(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[Orchestrator] Cycle failed: %v", err)
		}

		select {
		case <-ctx.Done():
			log.Printf("[Orchestrator] Shutting down...")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle executes one full cycle and returns its completed snapshot.
//
// A ConcurrentCycleError is returned as is. Any failure after the cycle is
// opened aborts it and is returned as a *PhaseComputationError; the aborted
// cycle stays visible through the store but never enters history.
func (e *Engine) RunCycle(ctx context.Context) (*blackboard.CycleSnapshot, error) {
	start := time.Now()

	handle, err := e.store.StartCycle()
	if err != nil {
		return nil, err
	}
	id := handle.ID
	e.logEvent("cycle_started", map[string]interface{}{
		"cycle_id":  id,
		"detectors": len(e.detectors),
	})

	end := e.now()
	w, err := e.source.GetWindow(ctx, end.Add(-e.window), end)
	if err != nil {
		return nil, e.abort(id, blackboard.PhaseOpen, fmt.Errorf("failed to read observation window: %w", err), start)
	}

	if err := e.transition(id, blackboard.PhaseOpen, blackboard.PhaseDetect); err != nil {
		return nil, e.abort(id, blackboard.PhaseOpen, err, start)
	}
	if _, err := e.runDetectPhase(ctx, id, w); err != nil {
		return nil, e.abort(id, blackboard.PhaseDetect, err, start)
	}

	if err := e.transition(id, blackboard.PhaseDetect, blackboard.PhaseRisk); err != nil {
		return nil, e.abort(id, blackboard.PhaseDetect, err, start)
	}
	if err := e.runRiskPhase(id, end); err != nil {
		return nil, e.abort(id, blackboard.PhaseRisk, err, start)
	}

	if err := e.transition(id, blackboard.PhaseRisk, blackboard.PhaseCausal); err != nil {
		return nil, e.abort(id, blackboard.PhaseRisk, err, start)
	}
	if err := e.runCausalPhase(id); err != nil {
		return nil, e.abort(id, blackboard.PhaseCausal, err, start)
	}

	if err := e.transition(id, blackboard.PhaseCausal, blackboard.PhaseSynthesize); err != nil {
		return nil, e.abort(id, blackboard.PhaseCausal, err, start)
	}
	if err := e.runSynthesizePhase(id, end); err != nil {
		return nil, e.abort(id, blackboard.PhaseSynthesize, err, start)
	}

	snap, err := e.store.CompleteCycle(ctx, id)
	if err != nil {
		return nil, e.abort(id, blackboard.PhaseSynthesize, err, start)
	}

	if snap.Risk != nil {
		e.risk.Record(snap.Risk)
		e.metrics.RiskScore.Set(snap.Risk.RiskScore)
	}
	e.setPrior(snap)

	duration := time.Since(start)
	e.metrics.CyclesTotal.WithLabelValues("complete").Inc()
	e.metrics.CycleDuration.Observe(duration.Seconds())

	summary := snap.Summary()
	e.logEvent("cycle_complete", map[string]interface{}{
		"cycle_id":        id,
		"risk_score":      summary.RiskScore,
		"risk_state":      string(summary.RiskState),
		"anomalies":       summary.Anomalies,
		"policy_hits":     summary.PolicyHits,
		"causal_links":    summary.CausalLinks,
		"hypotheses":      summary.Hypotheses,
		"recommendations": summary.Recommendations,
		"duration_ms":     duration.Milliseconds(),
	})

	return snap, nil
}

// abort marks the cycle failed and wraps cause for the caller.
func (e *Engine) abort(cycleID string, phase blackboard.Phase, cause error, start time.Time) error {
	perr := &PhaseComputationError{CycleID: cycleID, Phase: phase, Err: cause}

	if err := e.store.AbortCycle(cycleID, perr.Error()); err != nil {
		log.Printf("[Orchestrator] Failed to abort cycle %s: %v", cycleID, err)
	}

	e.metrics.CyclesTotal.WithLabelValues("aborted").Inc()
	e.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	e.logEvent("cycle_aborted", map[string]interface{}{
		"cycle_id": cycleID,
		"phase":    string(phase),
		"error":    cause.Error(),
	})
	return perr
}

// setPrior keeps the findings of the last completed cycle for the causal look-back.
func (e *Engine) setPrior(snap *blackboard.CycleSnapshot) {
	prior := make([]blackboard.Finding, 0, len(snap.Anomalies)+len(snap.PolicyHits)+len(snap.RiskSignals))
	for _, a := range snap.Anomalies {
		prior = append(prior, a)
	}
	for _, h := range snap.PolicyHits {
		prior = append(prior, h)
	}
	for _, s := range snap.RiskSignals {
		prior = append(prior, s)
	}

	e.mu.Lock()
	e.prior = prior
	e.mu.Unlock()
}

func (e *Engine) priorFindings() []blackboard.Finding {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prior
}

// logEvent logs a structured event in JSON format.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "orchestrator"
	data["event_type"] = eventType
	data["instance"] = e.instanceName

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Orchestrator] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
