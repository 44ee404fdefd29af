// Package synthesis runs PHASE_SYNTHESIZE: it turns causal chains into
// root-cause hypotheses and findings into operator recommendations.
package synthesis

import (
	"fmt"
	"strings"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/causal"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// Input is everything visible to the synthesis phase.
type Input struct {
	Anomalies   []*blackboard.Anomaly
	PolicyHits  []*blackboard.PolicyHit
	RiskSignals []*blackboard.RiskSignal
	CausalLinks []*blackboard.CausalLink
}

// Output is appended to the hypotheses and recommendations sections.
type Output struct {
	Hypotheses      []*blackboard.Hypothesis
	Recommendations []*blackboard.Recommendation
}

// Engine derives hypotheses and recommendations. It holds no per-cycle state.
type Engine struct {
	depth int
}

// NewEngine creates an engine whose root-cause walks stop at maxDepth links.
func NewEngine(maxDepth int) *Engine {
	if maxDepth <= 0 {
		maxDepth = causal.DefaultMaxChainDepth
	}
	return &Engine{depth: maxDepth}
}

// Synthesize builds one hypothesis per (root cause, terminal effect) from the
// causal graph and a deduplicated, priority-ordered recommendation list.
func (e *Engine) Synthesize(in Input, at time.Time) (*Output, error) {
	labels := labelFindings(in)

	for _, l := range in.CausalLinks {
		if l == nil || l.ID == "" {
			return nil, fmt.Errorf("causal link without id")
		}
	}

	graph := causal.NewGraph(in.CausalLinks)
	var hypotheses []*blackboard.Hypothesis
	roots := make(map[string]int) // root finding id → downstream effects explained
	for _, effect := range graph.Terminals() {
		for _, chain := range graph.RootCauses(effect, e.depth) {
			hypotheses = append(hypotheses, hypothesis(chain, labels, at))
			roots[chain.Root()]++
		}
	}

	recs, err := recommend(in, roots)
	if err != nil {
		return nil, err
	}

	return &Output{Hypotheses: hypotheses, Recommendations: recs}, nil
}

type label struct {
	text string
	at   time.Time
}

func labelFindings(in Input) map[string]label {
	labels := make(map[string]label)
	for _, a := range in.Anomalies {
		labels[a.ID] = label{fmt.Sprintf("%s on %s", a.Type, a.Entity), a.Timestamp}
	}
	for _, h := range in.PolicyHits {
		labels[h.ID] = label{fmt.Sprintf("%s (%s)", h.ViolationType, h.PolicyID), h.Timestamp}
	}
	for _, s := range in.RiskSignals {
		labels[s.ID] = label{fmt.Sprintf("%s risk on %s", s.ProjectedState, s.Entity), s.Timestamp}
	}
	return labels
}

func hypothesis(chain causal.Chain, labels map[string]label, at time.Time) *blackboard.Hypothesis {
	evidence := make([]string, 0, len(chain.Links))
	for _, l := range chain.Links {
		evidence = append(evidence, l.ID)
	}

	steps := make([]string, 0, len(chain.IDs))
	for _, id := range chain.IDs {
		if lb, ok := labels[id]; ok {
			steps = append(steps, lb.text)
		} else {
			steps = append(steps, id)
		}
	}

	effect := chain.IDs[len(chain.IDs)-1]
	ts := at
	if lb, ok := labels[effect]; ok && !lb.at.IsZero() {
		ts = lb.at
	}

	return &blackboard.Hypothesis{
		FindingBase: blackboard.FindingBase{
			Agent:       blackboard.AgentSynthesis,
			Confidence:  chain.Confidence,
			EvidenceIDs: evidence,
			Timestamp:   ts,
		},
		RootCauseID: chain.Root(),
		EffectID:    effect,
		Chain:       append([]string(nil), chain.IDs...),
		Statement:   strings.Join(steps, " -> "),
	}
}
