package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/observation"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/printer"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/watch"
)

var (
	ingestRetain  time.Duration
	ingestWait    bool
	ingestTimeout time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE",
	Short: "Load events and metrics from a JSONL file",
	Long: `Load observations into an instance's observation store.

FILE holds one JSON record per line, either an event or a metric.
Use '-' to read from stdin.

  {"kind":"event","type":"WORKFLOW_STEP","workflow_id":"wf-1","step":"build","timestamp":"2026-04-02T09:00:00Z"}
  {"kind":"metric","resource_id":"db-1","name":"cpu","value":93.5,"timestamp":"2026-04-02T09:01:00Z"}

Records without an id are assigned one. The whole file is validated
before anything is written.

Examples:
  # Ingest a file
  cognicore ingest observations.jsonl

  # Stream from another tool, dropping observations older than a day
  producer | cognicore ingest - --retain 24h

  # Ingest and wait for the next cycle that sees the data
  cognicore ingest observations.jsonl --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().DurationVar(&ingestRetain, "retain", 0, "Drop stored observations older than this (0 keeps everything)")
	ingestCmd.Flags().BoolVar(&ingestWait, "wait", false, "Wait for the next completed cycle and print its risk")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 2*time.Minute, "Maximum time to wait with --wait")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var in io.Reader
	if args[0] == "-" {
		in = cmd.InOrStdin()
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return printer.Error(
				"cannot open observation file",
				err.Error(),
				[]string{"Check the path, or use '-' to read from stdin"},
			)
		}
		defer f.Close()
		in = f
	}

	events, metrics, err := observation.DecodeJSONL(in)
	if err != nil {
		return printer.ErrorWithContext(
			"invalid observation file",
			err.Error(),
			map[string]string{"file": args[0]},
			[]string{"Each line must be a JSON object with \"kind\" set to \"event\" or \"metric\""},
		)
	}

	cfg, client, err := setup(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	source, err := observation.NewRedisSource(client.RedisClient(), cfg.Instance)
	if err != nil {
		return fmt.Errorf("failed to create observation source: %w", err)
	}

	ingestedAt := time.Now().UTC()
	if err := source.Add(ctx, events, metrics); err != nil {
		return printer.Error("ingest failed", err.Error(), nil)
	}
	printer.Success("Ingested %d event(s) and %d metric(s) into instance '%s'\n", len(events), len(metrics), cfg.Instance)

	if ingestRetain > 0 {
		removed, err := source.Trim(ctx, ingestedAt.Add(-ingestRetain))
		if err != nil {
			return printer.Error("failed to trim observations", err.Error(), nil)
		}
		if removed > 0 {
			printer.Info("Dropped %d observation(s) older than %s\n", removed, ingestRetain)
		}
	}

	if !ingestWait {
		return nil
	}

	printer.Step("Waiting for the next cycle...\n")
	snap, err := watch.PollForCycle(ctx, client, ingestedAt, ingestTimeout)
	if err != nil {
		return printer.Error(
			"no cycle completed",
			err.Error(),
			[]string{"Make sure an engine is running for this instance:\n  cognicore run --instance " + cfg.Instance},
		)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cycle %s\n", snap.Cycle.ID)
	if snap.Risk != nil {
		printer.Risk(snap.Risk.RiskScore, snap.Risk.RiskState, snap.Risk.Trend)
	}
	return nil
}
