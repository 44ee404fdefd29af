// Package causal implements the causal inference engine. It pairs findings
// that occur close together in time, scores each pair from an explicit
// pattern table scaled by temporal proximity, and emits directed causal links.
//
// Links are a plain directed edge set and may contain cycles. Graph provides
// bounded-depth root-cause walks over them.
package causal

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

const (
	// DefaultWindow is the correlation window.
	DefaultWindow = 10 * time.Minute

	// DefaultMaxChainDepth bounds root-cause walks.
	DefaultMaxChainDepth = 5

	// MaxConfidence caps every link's confidence.
	MaxConfidence = 0.99

	// Proximity factor bounds: a lag of zero scales the base confidence by
	// proximityFloor+proximitySpan, a lag far beyond the window by proximityFloor.
	proximityFloor = 0.5
	proximitySpan  = 0.7
)

// Options configures an Engine. Zero values select defaults; Lookback 0
// disables pairing with the prior cycle.
type Options struct {
	Window        time.Duration
	Lookback      time.Duration
	MaxChainDepth int
	Patterns      *PatternTable
}

// Engine infers causal links. It holds no per-cycle state.
type Engine struct {
	window   time.Duration
	lookback time.Duration
	depth    int
	patterns *PatternTable
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MaxChainDepth <= 0 {
		opts.MaxChainDepth = DefaultMaxChainDepth
	}
	if opts.Patterns == nil {
		opts.Patterns = NewPatternTable(DefaultPatterns()...)
	}
	return &Engine{
		window:   opts.Window,
		lookback: opts.Lookback,
		depth:    opts.MaxChainDepth,
		patterns: opts.Patterns,
	}
}

// MaxChainDepth returns the configured root-cause walk depth.
func (e *Engine) MaxChainDepth() int {
	return e.depth
}

// Window returns the correlation window.
func (e *Engine) Window() time.Duration {
	return e.window
}

// Proximity is the temporal scaling applied to a pattern's base confidence.
// It decays monotonically from 1.2 at zero lag towards 0.5.
func Proximity(lag, window time.Duration, decay float64) float64 {
	if lag < 0 {
		lag = 0
	}
	x := float64(lag) / float64(window)
	return proximityFloor + proximitySpan*math.Exp(-decay*x)
}

type candidate struct {
	finding blackboard.Finding
	prior   bool
}

// Infer links findings of the current cycle, and optionally the tail of the
// prior cycle, into cause→effect pairs. Every effect belongs to the current
// cycle; prior-cycle findings can only be causes, and only if they fall
// within Lookback of the prior cycle's latest finding.
//
// All candidate causes for an effect are kept. Links are returned ordered by
// confidence, then by the size of their evidence, then by cause and effect id.
func (e *Engine) Infer(current, prior []blackboard.Finding) ([]*blackboard.CausalLink, error) {
	pool := make([]candidate, 0, len(current)+len(prior))
	for _, f := range current {
		if err := checkFinding(f); err != nil {
			return nil, err
		}
		pool = append(pool, candidate{finding: f})
	}

	tail, err := e.priorTail(prior)
	if err != nil {
		return nil, err
	}
	pool = append(pool, tail...)

	var links []*blackboard.CausalLink
	for _, effect := range pool {
		if effect.prior {
			continue
		}
		eb := effect.finding.Base()
		for _, cause := range pool {
			cb := cause.finding.Base()
			if cb.ID == eb.ID {
				continue
			}
			lag := eb.Timestamp.Sub(cb.Timestamp)
			if lag < 0 || lag > e.window {
				continue
			}
			p, ok := e.patterns.Lookup(cause.finding.Kind(), effect.finding.Kind())
			if !ok {
				continue
			}
			links = append(links, e.link(cause, effect.finding, p, lag))
		}
	}

	sortLinks(links)
	if len(links) > 0 {
		log.Printf("[Causal] Inferred %d links from %d findings (%d from prior cycle)", len(links), len(pool), len(tail))
	}
	return links, nil
}

func (e *Engine) priorTail(prior []blackboard.Finding) ([]candidate, error) {
	if e.lookback <= 0 || len(prior) == 0 {
		return nil, nil
	}

	var latest time.Time
	for _, f := range prior {
		if err := checkFinding(f); err != nil {
			return nil, fmt.Errorf("prior cycle: %w", err)
		}
		if ts := f.Base().Timestamp; ts.After(latest) {
			latest = ts
		}
	}

	cutoff := latest.Add(-e.lookback)
	var tail []candidate
	for _, f := range prior {
		if !f.Base().Timestamp.Before(cutoff) {
			tail = append(tail, candidate{finding: f, prior: true})
		}
	}
	return tail, nil
}

func (e *Engine) link(cause candidate, effect blackboard.Finding, p Pattern, lag time.Duration) *blackboard.CausalLink {
	cb, eb := cause.finding.Base(), effect.Base()
	factor := Proximity(lag, e.window, p.Decay)

	return &blackboard.CausalLink{
		FindingBase: blackboard.FindingBase{
			Agent:       blackboard.AgentCausal,
			Confidence:  round4(math.Min(MaxConfidence, p.BaseConfidence*factor)),
			EvidenceIDs: union(cb.EvidenceIDs, eb.EvidenceIDs, []string{cb.ID, eb.ID}),
			Timestamp:   eb.Timestamp,
		},
		CauseID:    cb.ID,
		EffectID:   eb.ID,
		CauseKind:  cause.finding.Kind(),
		EffectKind: effect.Kind(),
		Reasoning: blackboard.Reasoning{
			Rule:            p.Rule(),
			BaseConfidence:  p.BaseConfidence,
			ProximityFactor: round4(factor),
			LagSeconds:      lag.Seconds(),
			CrossCycle:      cause.prior,
		},
	}
}

func checkFinding(f blackboard.Finding) error {
	if f == nil {
		return fmt.Errorf("nil finding")
	}
	if f.Base().ID == "" {
		return fmt.Errorf("%s finding has no id", f.Kind())
	}
	return nil
}

// union concatenates id lists, dropping duplicates and keeping first occurrence order.
func union(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lists {
		for _, id := range l {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func sortLinks(links []*blackboard.CausalLink) {
	sort.SliceStable(links, func(i, j int) bool {
		a, b := links[i], links[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if len(a.EvidenceIDs) != len(b.EvidenceIDs) {
			return len(a.EvidenceIDs) > len(b.EvidenceIDs)
		}
		if a.CauseID != b.CauseID {
			return a.CauseID < b.CauseID
		}
		return a.EffectID < b.EffectID
	})
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
