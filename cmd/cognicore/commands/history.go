package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/filter"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/printer"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/report"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/resolver"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/timespec"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

var (
	historyOutputFormat string
	historySince        string
	historyUntil        string
	historyState        string
	historyAgent        string
	historyMinScore     float64
	historyJSON         bool
)

var historyCmd = &cobra.Command{
	Use:   "history [CYCLE_ID]",
	Short: "Inspect completed cycles with filtering",
	Long: `Inspect completed cycles in list or get mode.

List Mode (no CYCLE_ID):
  Displays cycles matching filters as a table or JSONL stream.

Get Mode (with CYCLE_ID):
  Displays the full report of a single cycle: risk breakdown, findings,
  causal links, hypotheses and recommendations.
  Supports short IDs (e.g., "3fa85f" instead of the full UUID) and
  relative references ("latest", "latest~1" for the cycle before it).

Output Formats (list mode only):
  default - Human-readable table with ID, State, Score, Trend and counts
  jsonl   - Line-delimited JSON, one complete cycle per line

Filters (list mode only):
  --since, --until - Completion time bounds (duration or RFC3339)
  --state          - Minimum risk state (NORMAL < DEGRADED < AT_RISK < VIOLATION < INCIDENT)
  --min-score      - Minimum composite risk score
  --agent          - Cycles where this agent produced a finding

Examples:
  # List all retained cycles
  cognicore history

  # Cycles at risk or worse in the last two hours
  cognicore history --state AT_RISK --since 2h

  # Feed cycles to jq
  cognicore history -o jsonl | jq '.risk.risk_score'

  # Show one cycle by short ID
  cognicore history 3fa85f

  # Show the cycle before the most recent one
  cognicore history latest~1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyOutputFormat, "output", "o", "default", "Output format: default or jsonl (ignored in get mode)")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Show cycles completed after time (duration or RFC3339)")
	historyCmd.Flags().StringVar(&historyUntil, "until", "", "Show cycles completed before time (duration or RFC3339)")
	historyCmd.Flags().StringVar(&historyState, "state", "", "Minimum risk state")
	historyCmd.Flags().Float64Var(&historyMinScore, "min-score", 0, "Minimum risk score")
	historyCmd.Flags().StringVar(&historyAgent, "agent", "", "Filter by agent name (exact match)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print the cycle as JSON (get mode only)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	isGetMode := len(args) > 0

	var outputFormat report.OutputFormat
	var criteria *filter.Criteria
	if !isGetMode {
		var err error
		outputFormat, err = report.ParseOutputFormat(historyOutputFormat)
		if err != nil {
			return printer.Error(
				"invalid output format",
				fmt.Sprintf("Unknown format: %s", historyOutputFormat),
				[]string{"Valid formats: default, jsonl"},
			)
		}

		criteria, err = buildCriteria(time.Now().UTC())
		if err != nil {
			return err
		}
	}

	_, client, err := setup(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if !isGetMode {
		if err := report.ListCycles(ctx, client, outputFormat, criteria, cmd.OutOrStdout()); err != nil {
			return printer.Error("failed to list cycles", err.Error(), nil)
		}
		return nil
	}

	shortID := args[0]
	fullID, err := resolver.ResolveCycleID(ctx, client, shortID)
	if err != nil {
		var ambiguous *resolver.AmbiguousError
		switch {
		case resolver.IsNotFoundError(err):
			return printer.Error(
				fmt.Sprintf("cycle with ID '%s' not found", shortID),
				"No retained cycle matches this ID. Old cycles are evicted once history_size is exceeded.",
				[]string{"List retained cycles:\n  cognicore history"},
			)
		case errors.As(err, &ambiguous):
			return printer.Error("ambiguous cycle ID", resolver.FormatAmbiguousError(ambiguous), nil)
		default:
			return printer.Error("invalid cycle ID", err.Error(), nil)
		}
	}

	if err := report.GetCycle(ctx, client, fullID, historyJSON, cmd.OutOrStdout()); err != nil {
		if report.IsNotFound(err) {
			return printer.Error(
				fmt.Sprintf("cycle with ID '%s' not found", shortID),
				"The cycle was evicted while it was being read.",
				nil,
			)
		}
		return printer.Error("failed to read cycle", err.Error(), nil)
	}
	return nil
}

// buildCriteria turns the filter flags into validated criteria.
func buildCriteria(now time.Time) (*filter.Criteria, error) {
	since, until, err := timespec.ParseRange(historySince, historyUntil, now)
	if err != nil {
		return nil, printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use a duration (30m, 2h) or an RFC3339 timestamp (2026-04-02T09:00:00Z)"},
		)
	}

	criteria := &filter.Criteria{
		Since:    since,
		Until:    until,
		MinState: blackboard.RiskState(strings.ToUpper(historyState)),
		MinScore: historyMinScore,
		Agent:    historyAgent,
	}
	if err := criteria.Validate(); err != nil {
		return nil, printer.Error("invalid filter", err.Error(), nil)
	}
	return criteria, nil
}
