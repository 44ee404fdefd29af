package risk

import (
	"sync"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// DefaultHistorySize is the number of snapshots retained.
const DefaultHistorySize = 100

// History is a bounded FIFO of risk snapshots, oldest first. Safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	items []*blackboard.RiskSnapshot
	size  int
}

// NewHistory creates a history retaining up to size snapshots.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size}
}

// Push appends a copy of s, evicting the oldest snapshot when full.
func (h *History) Push(s *blackboard.RiskSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = append(h.items, s.Clone())
	if over := len(h.items) - h.size; over > 0 {
		h.items = append([]*blackboard.RiskSnapshot(nil), h.items[over:]...)
	}
}

// Seed replaces the contents with snaps (oldest first), keeping only the newest size.
func (h *History) Seed(snaps []*blackboard.RiskSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if over := len(snaps) - h.size; over > 0 {
		snaps = snaps[over:]
	}
	h.items = make([]*blackboard.RiskSnapshot, 0, len(snaps))
	for _, s := range snaps {
		h.items = append(h.items, s.Clone())
	}
}

// Recent returns up to n of the newest snapshots, oldest first.
func (h *History) Recent(n int) []*blackboard.RiskSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := 0
	if n > 0 && len(h.items) > n {
		start = len(h.items) - n
	}
	out := make([]*blackboard.RiskSnapshot, 0, len(h.items)-start)
	for _, s := range h.items[start:] {
		out = append(out, s.Clone())
	}
	return out
}

// Last returns the newest snapshot.
func (h *History) Last() (*blackboard.RiskSnapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[len(h.items)-1].Clone(), true
}

// Len returns the number of retained snapshots.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}
