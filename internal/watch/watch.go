package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// OutputFormat selects how streamed cycles are rendered.
type OutputFormat string

const (
	// OutputFormatDefault is human-readable output with timestamps and emojis
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON is one JSON object per line
	OutputFormatJSON OutputFormat = "json"
)

// formatter renders cycle events.
type formatter interface {
	FormatCycle(s *blackboard.CycleSummary) error
	FormatError(err error) error
}

func newFormatter(format OutputFormat, w io.Writer) (formatter, error) {
	switch format {
	case OutputFormatDefault:
		return &defaultFormatter{writer: w}, nil
	case OutputFormatJSON:
		return &jsonFormatter{writer: w}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// StreamCycles prints every completed cycle published by the instance until
// ctx is cancelled. Malformed events are reported and skipped.
func StreamCycles(ctx context.Context, client *blackboard.Client, format OutputFormat, w io.Writer) error {
	f, err := newFormatter(format, w)
	if err != nil {
		return err
	}

	sub, err := client.SubscribeCycleEvents(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	if format == OutputFormatDefault {
		fmt.Fprintf(w, "👀 Watching cycles for instance '%s' (Ctrl+C to stop)\n", client.InstanceName())
	}

	events, errs := sub.Events(), sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-events:
			if !ok {
				return nil
			}
			if err := f.FormatCycle(s); err != nil {
				return err
			}
		case e, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err := f.FormatError(e); err != nil {
				return err
			}
		}
	}
}

// PollForCycle polls until a cycle completed after the given time is persisted.
// Polls every 200ms for the specified timeout duration.
func PollForCycle(ctx context.Context, client *blackboard.Client, after time.Time, timeout time.Duration) (*blackboard.CycleSnapshot, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for a cycle after %v", timeout)

		case <-ticker.C:
			latest, err := client.LatestCycle(ctx)
			if err != nil {
				if blackboard.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("failed to query latest cycle: %w", err)
			}
			if latest.Cycle.CompletedAt != nil && latest.Cycle.CompletedAt.After(after) {
				return latest, nil
			}
		}
	}
}

type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) FormatCycle(s *blackboard.CycleSummary) error {
	at := s.StartedAt
	if s.CompletedAt != nil {
		at = *s.CompletedAt
	}

	_, err := fmt.Fprintf(f.writer, "[%s] %s Cycle %s: risk=%.2f %s%s findings=%d links=%d hypotheses=%d recommendations=%d\n",
		at.Local().Format("15:04:05"),
		stateEmoji(s.RiskState),
		shortID(s.ID),
		s.RiskScore,
		s.RiskState,
		trendSuffix(s.Trend),
		s.Anomalies+s.PolicyHits,
		s.CausalLinks,
		s.Hypotheses,
		s.Recommendations,
	)
	if err != nil {
		return err
	}
	if len(s.Agents) > 0 {
		_, err = fmt.Fprintf(f.writer, "           agents: %s\n", strings.Join(s.Agents, ", "))
	}
	return err
}

func (f *defaultFormatter) FormatError(err error) error {
	_, werr := fmt.Fprintf(f.writer, "⚠️  %v\n", err)
	return werr
}

type jsonFormatter struct {
	writer io.Writer
}

func (f *jsonFormatter) FormatCycle(s *blackboard.CycleSummary) error {
	return f.write(map[string]interface{}{
		"event": "cycle_complete",
		"data":  s,
	})
}

func (f *jsonFormatter) FormatError(err error) error {
	return f.write(map[string]interface{}{
		"event": "error",
		"error": err.Error(),
	})
}

func (f *jsonFormatter) write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(f.writer, "%s\n", data)
	return err
}

func stateEmoji(s blackboard.RiskState) string {
	switch s {
	case blackboard.RiskNormal:
		return "✅"
	case blackboard.RiskDegraded:
		return "🟡"
	case blackboard.RiskAtRisk:
		return "🟠"
	case blackboard.RiskViolation, blackboard.RiskIncident:
		return "🚨"
	default:
		return "❔"
	}
}

func trendSuffix(t blackboard.Trend) string {
	switch t {
	case blackboard.TrendIncreasing:
		return " ↑"
	case blackboard.TrendDecreasing:
		return " ↓"
	default:
		return ""
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
