// Package risk implements the risk index engine: a composite 0-100 score
// blended from workflow, resource and compliance components, a discrete risk
// state, a trend over recent cycles, and per-entity risk signals.
package risk

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// Component weights. They sum to 1.
const (
	WeightWorkflow   = 0.35
	WeightResource   = 0.35
	WeightCompliance = 0.30
)

const (
	// DefaultBaseline is the floor of every composite score.
	DefaultBaseline = 20.0

	// DefaultTrendWindow is how many snapshots, including the current one, the trend spans.
	DefaultTrendWindow = 10

	// ComponentCap bounds each component's raw points and the composite score.
	ComponentCap = 100.0

	// PolicyViolationPoints is added to compliance per distinct policy hit.
	PolicyViolationPoints = 20.0
)

type rule struct {
	component blackboard.Component
	points    float64
}

// contributionTable holds the raw points per distinct anomaly. Types not
// listed carry no risk weight.
var contributionTable = map[blackboard.AnomalyType]rule{
	blackboard.AnomalyMissingStep:               {blackboard.ComponentWorkflow, 25},
	blackboard.AnomalyDelay:                     {blackboard.ComponentWorkflow, 15},
	blackboard.AnomalySequenceViolation:         {blackboard.ComponentWorkflow, 10},
	blackboard.AnomalySustainedResourceCritical: {blackboard.ComponentResource, 30},
	blackboard.AnomalySustainedResourceWarning:  {blackboard.ComponentResource, 15},
	blackboard.AnomalyResourceDrift:             {blackboard.ComponentResource, 20},
}

func weightOf(c blackboard.Component) float64 {
	switch c {
	case blackboard.ComponentWorkflow:
		return WeightWorkflow
	case blackboard.ComponentResource:
		return WeightResource
	default:
		return WeightCompliance
	}
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Baseline      float64
	TrendWindow   int
	HistorySize   int
	CycleInterval time.Duration // used to turn cycles-to-threshold into a time horizon
}

// Engine computes risk snapshots. Only history is shared state; a single
// Engine may be used from one cycle at a time.
type Engine struct {
	baseline      float64
	trendWindow   int
	cycleInterval time.Duration
	history       *History
}

// NewEngine creates an engine with an empty history.
func NewEngine(opts Options) *Engine {
	if opts.Baseline <= 0 {
		opts.Baseline = DefaultBaseline
	}
	if opts.TrendWindow < 2 {
		opts.TrendWindow = DefaultTrendWindow
	}
	if opts.CycleInterval <= 0 {
		opts.CycleInterval = time.Minute
	}
	return &Engine{
		baseline:      opts.Baseline,
		trendWindow:   opts.TrendWindow,
		cycleInterval: opts.CycleInterval,
		history:       NewHistory(opts.HistorySize),
	}
}

// History exposes the engine's snapshot history.
func (e *Engine) History() *History {
	return e.history
}

// Assessment is the output of one risk evaluation.
type Assessment struct {
	Snapshot *blackboard.RiskSnapshot
	Signals  []*blackboard.RiskSignal
}

// scored is one counted finding.
type scored struct {
	finding blackboard.Finding
	entity  string
	contrib blackboard.Contribution
}

// Assess scores a cycle's anomalies and policy hits. The result does not
// depend on input order. The snapshot is not recorded; call Record once the
// cycle completes. An empty finding set yields the baseline score.
func (e *Engine) Assess(cycleID string, anomalies []*blackboard.Anomaly, hits []*blackboard.PolicyHit, at time.Time) (*Assessment, error) {
	counted, err := distinct(anomalies, hits)
	if err != nil {
		return nil, err
	}

	raw := componentPoints(counted)
	snap := &blackboard.RiskSnapshot{
		CycleID:        cycleID,
		Timestamp:      at,
		WorkflowRisk:   raw[blackboard.ComponentWorkflow],
		ResourceRisk:   raw[blackboard.ComponentResource],
		ComplianceRisk: raw[blackboard.ComponentCompliance],
		Contributions:  make([]blackboard.Contribution, 0, len(counted)),
	}
	snap.RiskScore = e.blend(raw)
	snap.RiskState = StateFor(snap.RiskScore, snap.WorkflowRisk, snap.ResourceRisk, snap.ComplianceRisk)
	for _, c := range counted {
		snap.Contributions = append(snap.Contributions, c.contrib)
	}

	recent := e.history.Recent(e.trendWindow - 1)
	scores := make([]float64, 0, len(recent)+1)
	for _, r := range recent {
		scores = append(scores, r.RiskScore)
	}
	scores = append(scores, snap.RiskScore)
	snap.Trend = TrendOf(scores)
	if len(recent) > 0 {
		snap.Delta = round2(snap.RiskScore - recent[len(recent)-1].RiskScore)
	}

	return &Assessment{
		Snapshot: snap,
		Signals:  e.signals(counted, snap.Trend, slope(scores), at),
	}, nil
}

// Record appends a completed cycle's snapshot to history.
func (e *Engine) Record(s *blackboard.RiskSnapshot) {
	e.history.Push(s)
	log.Printf("[Risk] Cycle %s scored %.2f (%s, %s)", s.CycleID, s.RiskScore, s.RiskState, s.Trend)
}

// blend combines capped component points with the baseline.
func (e *Engine) blend(raw map[blackboard.Component]float64) float64 {
	score := e.baseline +
		WeightWorkflow*raw[blackboard.ComponentWorkflow] +
		WeightResource*raw[blackboard.ComponentResource] +
		WeightCompliance*raw[blackboard.ComponentCompliance]
	return round2(math.Min(score, ComponentCap))
}

func componentPoints(counted []scored) map[blackboard.Component]float64 {
	raw := make(map[blackboard.Component]float64, 3)
	for _, c := range counted {
		raw[c.contrib.Component] += c.contrib.Points
	}
	for k, v := range raw {
		raw[k] = math.Min(v, ComponentCap)
	}
	return raw
}

// distinct keeps one anomaly per (type, entity), preferring the highest
// confidence and then the smallest id, and one hit per (policy, event).
// The result is sorted so that it is independent of input order.
func distinct(anomalies []*blackboard.Anomaly, hits []*blackboard.PolicyHit) ([]scored, error) {
	type key struct{ a, b string }

	bestAnomaly := make(map[key]*blackboard.Anomaly)
	for _, a := range anomalies {
		if a == nil {
			return nil, fmt.Errorf("nil anomaly in finding set")
		}
		if _, weighted := contributionTable[a.Type]; !weighted {
			continue
		}
		k := key{string(a.Type), a.Entity}
		cur, ok := bestAnomaly[k]
		if !ok || a.Confidence > cur.Confidence || (a.Confidence == cur.Confidence && a.ID < cur.ID) {
			bestAnomaly[k] = a
		}
	}

	bestHit := make(map[key]*blackboard.PolicyHit)
	for _, h := range hits {
		if h == nil {
			return nil, fmt.Errorf("nil policy hit in finding set")
		}
		k := key{h.PolicyID, h.EventID}
		cur, ok := bestHit[k]
		if !ok || h.ID < cur.ID {
			bestHit[k] = h
		}
	}

	out := make([]scored, 0, len(bestAnomaly)+len(bestHit))
	for _, a := range bestAnomaly {
		r := contributionTable[a.Type]
		out = append(out, scored{
			finding: a,
			entity:  a.Entity,
			contrib: blackboard.Contribution{
				Component: r.component,
				Agent:     a.Agent,
				FindingID: a.ID,
				Entity:    a.Entity,
				Reason:    string(a.Type),
				Points:    r.points,
				Weighted:  round2(r.points * weightOf(r.component)),
			},
		})
	}
	for _, h := range bestHit {
		entity := h.Entity
		if entity == "" {
			entity = "policy:" + h.PolicyID
		}
		out = append(out, scored{
			finding: h,
			entity:  entity,
			contrib: blackboard.Contribution{
				Component: blackboard.ComponentCompliance,
				Agent:     h.Agent,
				FindingID: h.ID,
				Entity:    entity,
				Reason:    h.PolicyID,
				Points:    PolicyViolationPoints,
				Weighted:  round2(PolicyViolationPoints * WeightCompliance),
			},
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].contrib, out[j].contrib
		if a.Component != b.Component {
			return a.Component < b.Component
		}
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		return a.FindingID < b.FindingID
	})
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
