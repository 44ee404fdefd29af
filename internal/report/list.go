package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/filter"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

// OutputFormat specifies how to format the cycle list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table of cycle summaries
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete cycle snapshots as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat maps a --output flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSONL:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

// ListCycles reads the persisted cycles of an instance, oldest first, applies
// the filter criteria and writes them to w. A nil criteria matches everything.
func ListCycles(ctx context.Context, bbClient *blackboard.Client, format OutputFormat, criteria *filter.Criteria, w io.Writer) error {
	var since, until time.Time
	if criteria != nil {
		since, until = criteria.Since, criteria.Until
	}

	cycles, err := bbClient.ListCycles(ctx, since, until)
	if err != nil {
		return fmt.Errorf("failed to list cycles: %w", err)
	}

	kept := make([]*blackboard.CycleSnapshot, 0, len(cycles))
	for _, c := range cycles {
		if criteria != nil {
			sum := c.Summary()
			if !criteria.Matches(&sum) {
				continue
			}
		}
		kept = append(kept, c)
	}

	switch format {
	case OutputFormatDefault:
		summaries := make([]blackboard.CycleSummary, len(kept))
		for i, c := range kept {
			summaries[i] = c.Summary()
		}
		FormatTable(w, summaries, bbClient.InstanceName(), time.Now())
	case OutputFormatJSONL:
		if err := FormatJSONL(w, kept); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
