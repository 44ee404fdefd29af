package causal

import (
	"container/heap"
	"sort"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// Graph is an adjacency list over causal links keyed by finding id.
// It may contain cycles; every walk is depth-bounded and visited-guarded.
type Graph struct {
	causes  map[string][]*blackboard.CausalLink // effect id → incoming links
	effects map[string][]*blackboard.CausalLink // cause id → outgoing links
}

// NewGraph indexes links. Incoming and outgoing lists are ordered by
// descending confidence, then id.
func NewGraph(links []*blackboard.CausalLink) *Graph {
	g := &Graph{
		causes:  make(map[string][]*blackboard.CausalLink),
		effects: make(map[string][]*blackboard.CausalLink),
	}
	for _, l := range links {
		g.causes[l.EffectID] = append(g.causes[l.EffectID], l)
		g.effects[l.CauseID] = append(g.effects[l.CauseID], l)
	}
	for _, m := range []map[string][]*blackboard.CausalLink{g.causes, g.effects} {
		for _, ls := range m {
			sort.SliceStable(ls, func(i, j int) bool {
				if ls[i].Confidence != ls[j].Confidence {
					return ls[i].Confidence > ls[j].Confidence
				}
				if ls[i].CauseID != ls[j].CauseID {
					return ls[i].CauseID < ls[j].CauseID
				}
				return ls[i].EffectID < ls[j].EffectID
			})
		}
	}
	return g
}

// Causes returns the links whose effect is id.
func (g *Graph) Causes(id string) []*blackboard.CausalLink {
	return g.causes[id]
}

// Effects returns the links whose cause is id.
func (g *Graph) Effects(id string) []*blackboard.CausalLink {
	return g.effects[id]
}

// Terminals returns the ids of findings that have causes but cause nothing,
// sorted. When every effect lies on a cycle there are no terminals, and all
// effects are returned instead.
func (g *Graph) Terminals() []string {
	var terminals, all []string
	for id := range g.causes {
		all = append(all, id)
		if len(g.effects[id]) == 0 {
			terminals = append(terminals, id)
		}
	}
	if len(terminals) == 0 {
		terminals = all
	}
	sort.Strings(terminals)
	return terminals
}

// Chain is a path of links from a root cause to an effect.
type Chain struct {
	IDs        []string // finding ids, root cause first
	Links      []*blackboard.CausalLink
	Confidence float64 // product of link confidences
}

// Root returns the root cause id.
func (c Chain) Root() string {
	return c.IDs[0]
}

// RootCauses walks backwards from effectID and returns, per root cause, the
// highest-confidence chain reaching it. Findings are settled best-first in
// order of decreasing chain confidence and each is settled once, so the walk
// is O((V+E) log V). A root is a settled finding whose every cause already
// lies on its own chain, or the finding at maxDepth links from the effect.
// Chains are ordered by descending confidence, then root id.
func (g *Graph) RootCauses(effectID string, maxDepth int) []Chain {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxChainDepth
	}

	settled := make(map[string]*step)
	queued := make(map[string]*step)
	q := &stepQueue{}

	start := &step{id: effectID, confidence: 1}
	queued[effectID] = start
	heap.Push(q, start)

	for q.Len() > 0 {
		cur := heap.Pop(q).(*step)
		if _, done := settled[cur.id]; done || queued[cur.id] != cur {
			continue
		}
		settled[cur.id] = cur
		if cur.depth >= maxDepth {
			continue
		}

		for _, l := range g.causes[cur.id] {
			if _, done := settled[l.CauseID]; done {
				continue
			}
			next := &step{
				id:         l.CauseID,
				confidence: cur.confidence * l.Confidence,
				depth:      cur.depth + 1,
				via:        l,
				parent:     cur,
			}
			if prev, ok := queued[l.CauseID]; ok && !next.before(prev) {
				continue
			}
			queued[l.CauseID] = next
			heap.Push(q, next)
		}
	}

	var out []Chain
	for id, s := range settled {
		if id == effectID || !g.isRoot(s, maxDepth) {
			continue
		}
		out = append(out, s.chain())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Root() < out[j].Root()
	})
	return out
}

// isRoot reports whether s ends its chain: it sits at the depth bound or every
// cause of it is already on the chain.
func (g *Graph) isRoot(s *step, maxDepth int) bool {
	if s.depth >= maxDepth {
		return true
	}
	onChain := make(map[string]bool, s.depth+1)
	for p := s; p != nil; p = p.parent {
		onChain[p.id] = true
	}
	for _, l := range g.causes[s.id] {
		if !onChain[l.CauseID] {
			return false
		}
	}
	return true
}

// step is one finding reached by the walk, with the best chain found to it.
type step struct {
	id         string
	confidence float64
	depth      int
	via        *blackboard.CausalLink // link from this finding toward the effect
	parent     *step
	index      int
}

// before orders steps by confidence, then shorter chain, then id.
func (s *step) before(o *step) bool {
	if s.confidence != o.confidence {
		return s.confidence > o.confidence
	}
	if s.depth != o.depth {
		return s.depth < o.depth
	}
	return s.id < o.id
}

// chain follows parent pointers from s back to the effect.
func (s *step) chain() Chain {
	c := Chain{IDs: []string{s.id}, Confidence: round4(s.confidence)}
	for p := s; p.parent != nil; p = p.parent {
		c.IDs = append(c.IDs, p.parent.id)
		c.Links = append(c.Links, p.via)
	}
	return c
}

// stepQueue is a max-heap of steps by confidence.
type stepQueue []*step

func (q stepQueue) Len() int           { return len(q) }
func (q stepQueue) Less(i, j int) bool { return q[i].before(q[j]) }
func (q stepQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *stepQueue) Push(x any) {
	s := x.(*step)
	s.index = len(*q)
	*q = append(*q, s)
}

func (q *stepQueue) Pop() any {
	old := *q
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return s
}
