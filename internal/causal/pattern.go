package causal

import (
	"fmt"
	"sort"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/config"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// DefaultDecay is the proximity decay rate used when a pattern sets none.
const DefaultDecay = 1.5

// Pattern is one row of the pattern table: a known cause kind → effect kind
// relationship with its base confidence and proximity decay rate.
type Pattern struct {
	Cause          string
	Effect         string
	BaseConfidence float64
	Decay          float64
}

// Rule is the pattern's key as recorded in link reasoning.
func (p Pattern) Rule() string {
	return p.Cause + "->" + p.Effect
}

type patternKey struct {
	cause, effect string
}

// PatternTable is the finite lookup of causal patterns keyed on
// (cause kind, effect kind). Pairs without an entry are never linked.
type PatternTable struct {
	rows map[patternKey]Pattern
}

// NewPatternTable builds a table. Later rows replace earlier ones with the same key.
func NewPatternTable(patterns ...Pattern) *PatternTable {
	t := &PatternTable{rows: make(map[patternKey]Pattern, len(patterns))}
	for _, p := range patterns {
		if p.Decay <= 0 {
			p.Decay = DefaultDecay
		}
		t.rows[patternKey{p.Cause, p.Effect}] = p
	}
	return t
}

// Lookup returns the pattern for a (cause kind, effect kind) pair.
func (t *PatternTable) Lookup(cause, effect string) (Pattern, bool) {
	p, ok := t.rows[patternKey{cause, effect}]
	return p, ok
}

// Len returns the number of patterns.
func (t *PatternTable) Len() int {
	return len(t.rows)
}

// Patterns returns every row sorted by rule.
func (t *PatternTable) Patterns() []Pattern {
	out := make([]Pattern, 0, len(t.rows))
	for _, p := range t.rows {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rule() < out[j].Rule() })
	return out
}

// DefaultPatterns is the built-in table.
func DefaultPatterns() []Pattern {
	const (
		critical  = string(blackboard.AnomalySustainedResourceCritical)
		warning   = string(blackboard.AnomalySustainedResourceWarning)
		drift     = string(blackboard.AnomalyResourceDrift)
		baseline  = string(blackboard.AnomalyBaselineDeviation)
		delay     = string(blackboard.AnomalyDelay)
		missing   = string(blackboard.AnomalyMissingStep)
		sequence  = string(blackboard.AnomalySequenceViolation)
		policy    = blackboard.KindPolicyViolation
		escalates = blackboard.KindRiskEscalation
	)

	return []Pattern{
		// resource saturation slows or breaks workflows
		{Cause: critical, Effect: delay, BaseConfidence: 0.8, Decay: 1.0},
		{Cause: critical, Effect: missing, BaseConfidence: 0.6},
		{Cause: warning, Effect: delay, BaseConfidence: 0.6},
		{Cause: drift, Effect: delay, BaseConfidence: 0.45},

		// resource pressure builds up
		{Cause: drift, Effect: warning, BaseConfidence: 0.7},
		{Cause: drift, Effect: critical, BaseConfidence: 0.7},
		{Cause: warning, Effect: critical, BaseConfidence: 0.65},
		{Cause: baseline, Effect: warning, BaseConfidence: 0.5},
		{Cause: baseline, Effect: critical, BaseConfidence: 0.5},
		{Cause: baseline, Effect: delay, BaseConfidence: 0.4, Decay: 2.0},

		// workflow shortcuts surface as compliance violations
		{Cause: delay, Effect: missing, BaseConfidence: 0.55},
		{Cause: missing, Effect: policy, BaseConfidence: 0.75},
		{Cause: sequence, Effect: policy, BaseConfidence: 0.5},
		{Cause: delay, Effect: policy, BaseConfidence: 0.35, Decay: 2.0},

		// findings that drive risk escalation
		{Cause: policy, Effect: escalates, BaseConfidence: 0.7},
		{Cause: critical, Effect: escalates, BaseConfidence: 0.65},
		{Cause: missing, Effect: escalates, BaseConfidence: 0.6},
		{Cause: delay, Effect: escalates, BaseConfidence: 0.5},
		{Cause: drift, Effect: escalates, BaseConfidence: 0.45},
	}
}

// PatternsFromConfig returns the built-in table with configured rows added or overriding.
func PatternsFromConfig(rows []config.PatternConfig) (*PatternTable, error) {
	patterns := DefaultPatterns()
	for i, r := range rows {
		if r.Cause == "" || r.Effect == "" {
			return nil, fmt.Errorf("pattern %d: cause and effect are required", i)
		}
		p := Pattern{Cause: r.Cause, Effect: r.Effect, BaseConfidence: r.BaseConfidence}
		if r.Decay != nil {
			p.Decay = *r.Decay
		}
		patterns = append(patterns, p)
	}
	return NewPatternTable(patterns...), nil
}
