package observation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Source supplies read-only observation windows. Implementations never hand
// out references to their internal state.
type Source interface {
	GetWindow(ctx context.Context, start, end time.Time) (*Window, error)
}

// DefaultMemoryCapacity bounds a MemorySource created with capacity <= 0.
const DefaultMemoryCapacity = 10000

// MemorySource is an in-process Source backed by two bounded rings.
// When a ring is full the oldest observation is overwritten.
type MemorySource struct {
	mu      sync.RWMutex
	events  ring[Event]
	metrics ring[Metric]
}

// NewMemorySource creates a source retaining up to capacity events and capacity metrics.
func NewMemorySource(capacity int) *MemorySource {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemorySource{
		events:  newRing[Event](capacity),
		metrics: newRing[Metric](capacity),
	}
}

// AddEvents validates and stores events. Nothing is stored if any event is invalid.
func (s *MemorySource) AddEvents(events ...Event) error {
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return fmt.Errorf("invalid event at index %d: %w", i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.events.push(e.clone())
	}
	return nil
}

// AddMetrics validates and stores metric samples. Nothing is stored if any sample is invalid.
func (s *MemorySource) AddMetrics(metrics ...Metric) error {
	for i := range metrics {
		if err := metrics[i].Validate(); err != nil {
			return fmt.Errorf("invalid metric at index %d: %w", i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range metrics {
		s.metrics.push(m)
	}
	return nil
}

// GetWindow implements Source.
func (s *MemorySource) GetWindow(ctx context.Context, start, end time.Time) (*Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("window end %s is before start %s", end, start)
	}

	s.mu.RLock()
	events := s.events.items()
	metrics := s.metrics.items()
	s.mu.RUnlock()

	return NewWindow(start, end, events, metrics), nil
}

type ring[T any] struct {
	buf  []T
	next int
	full bool
}

func newRing[T any](capacity int) ring[T] {
	return ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// items returns a copy of the ring contents, oldest first.
func (r *ring[T]) items() []T {
	if !r.full {
		return append([]T(nil), r.buf[:r.next]...)
	}
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
