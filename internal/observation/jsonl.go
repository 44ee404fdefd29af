package observation

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 1024 * 1024

type record struct {
	Kind string `json:"kind"`
}

// DecodeJSONL reads newline-delimited observation records. Each line is an
// Event or Metric object with an extra "kind" field ("event" or "metric").
// Blank lines are ignored. Records without an id are assigned a UUID.
// The first malformed record aborts decoding with its line number.
func DecodeJSONL(r io.Reader) ([]Event, []Metric, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var events []Event
	var metrics []Metric
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, nil, fmt.Errorf("line %d: invalid JSON: %w", lineNo, err)
		}

		switch rec.Kind {
		case kindEvent:
			var e Event
			if err := json.Unmarshal([]byte(line), &e); err != nil {
				return nil, nil, fmt.Errorf("line %d: invalid event: %w", lineNo, err)
			}
			if e.ID == "" {
				e.ID = uuid.New().String()
			}
			if err := e.Validate(); err != nil {
				return nil, nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			events = append(events, e)
		case kindMetric:
			var m Metric
			if err := json.Unmarshal([]byte(line), &m); err != nil {
				return nil, nil, fmt.Errorf("line %d: invalid metric: %w", lineNo, err)
			}
			if m.ID == "" {
				m.ID = uuid.New().String()
			}
			if err := m.Validate(); err != nil {
				return nil, nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			metrics = append(metrics, m)
		default:
			return nil, nil, fmt.Errorf("line %d: unknown kind %q (expected 'event' or 'metric')", lineNo, rec.Kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read input: %w", err)
	}
	return events, metrics, nil
}
