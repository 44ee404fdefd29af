// Package observation holds the raw, pre-normalized facts that detectors read:
// workflow/access events and resource metric samples, grouped into immutable
// time windows.
package observation

import (
	"fmt"
	"sort"
	"time"
)

// Event is a single discrete fact: a workflow step, an access, a write.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	WorkflowID string            `json:"workflow_id,omitempty"`
	Step       string            `json:"step,omitempty"`
	Actor      string            `json:"actor,omitempty"`
	Resource   string            `json:"resource,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Validate checks the fields every consumer relies on.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id cannot be empty")
	}
	if e.Type == "" {
		return fmt.Errorf("event %s: type cannot be empty", e.ID)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event %s: timestamp cannot be zero", e.ID)
	}
	return nil
}

func (e Event) clone() Event {
	if e.Attributes != nil {
		attrs := make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			attrs[k] = v
		}
		e.Attributes = attrs
	}
	return e
}

// Metric is one sample of a named resource metric.
type Metric struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate checks the fields every consumer relies on.
func (m *Metric) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("metric id cannot be empty")
	}
	if m.ResourceID == "" || m.Name == "" {
		return fmt.Errorf("metric %s: resource_id and name are required", m.ID)
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("metric %s: timestamp cannot be zero", m.ID)
	}
	return nil
}

// SeriesKey identifies one metric series.
type SeriesKey struct {
	ResourceID string
	Name       string
}

// String renders the key as "resource/metric".
func (k SeriesKey) String() string {
	return k.ResourceID + "/" + k.Name
}

// Window is an immutable, time-bounded view of observations. Detectors may
// share one Window concurrently: every accessor returns copies.
type Window struct {
	start   time.Time
	end     time.Time
	events  []Event
	metrics []Metric
}

// NewWindow builds a window over [start, end). Inputs are copied and sorted by
// timestamp; observations outside the bounds are dropped.
func NewWindow(start, end time.Time, events []Event, metrics []Metric) *Window {
	w := &Window{start: start, end: end}
	for _, e := range events {
		if w.contains(e.Timestamp) {
			w.events = append(w.events, e.clone())
		}
	}
	for _, m := range metrics {
		if w.contains(m.Timestamp) {
			w.metrics = append(w.metrics, m)
		}
	}
	sort.SliceStable(w.events, func(i, j int) bool { return w.events[i].Timestamp.Before(w.events[j].Timestamp) })
	sort.SliceStable(w.metrics, func(i, j int) bool { return w.metrics[i].Timestamp.Before(w.metrics[j].Timestamp) })
	return w
}

func (w *Window) contains(t time.Time) bool {
	return !t.Before(w.start) && t.Before(w.end)
}

func (w *Window) Start() time.Time { return w.start }
func (w *Window) End() time.Time   { return w.end }

// Duration is the window length.
func (w *Window) Duration() time.Duration {
	return w.end.Sub(w.start)
}

// Events returns the window's events ordered by timestamp.
func (w *Window) Events() []Event {
	out := make([]Event, len(w.events))
	for i, e := range w.events {
		out[i] = e.clone()
	}
	return out
}

// Metrics returns the window's metric samples ordered by timestamp.
func (w *Window) Metrics() []Metric {
	return append([]Metric(nil), w.metrics...)
}

// Len returns the number of events and metric samples in the window.
func (w *Window) Len() int {
	return len(w.events) + len(w.metrics)
}

// EventsByWorkflow groups workflow events by WorkflowID, each group in timestamp order.
// Events without a workflow id are skipped.
func (w *Window) EventsByWorkflow() map[string][]Event {
	out := make(map[string][]Event)
	for _, e := range w.events {
		if e.WorkflowID == "" {
			continue
		}
		out[e.WorkflowID] = append(out[e.WorkflowID], e.clone())
	}
	return out
}

// Series groups metric samples by series, each in timestamp order.
func (w *Window) Series() map[SeriesKey][]Metric {
	out := make(map[SeriesKey][]Metric)
	for _, m := range w.metrics {
		k := SeriesKey{ResourceID: m.ResourceID, Name: m.Name}
		out[k] = append(out[k], m)
	}
	return out
}
