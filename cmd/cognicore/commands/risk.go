package commands

import (
	"github.com/spf13/cobra"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/printer"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/report"
)

var riskLimit int

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Show the risk history of an instance",
	Long: `Show the most recent risk snapshots, oldest first, followed by the
current risk state.

Examples:
  # Last 20 snapshots
  cognicore risk

  # Everything retained
  cognicore risk -n 0`,
	Args: cobra.NoArgs,
	RunE: runRisk,
}

func init() {
	riskCmd.Flags().IntVarP(&riskLimit, "limit", "n", 20, "Number of snapshots to show (0 for all)")
	rootCmd.AddCommand(riskCmd)
}

func runRisk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	_, client, err := setup(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	history, err := client.RiskHistory(ctx, riskLimit)
	if err != nil {
		return printer.Error("failed to read risk history", err.Error(), nil)
	}

	if report.FormatRiskHistory(cmd.OutOrStdout(), history) == 0 {
		return nil
	}

	latest := history[len(history)-1]
	printer.Risk(latest.RiskScore, latest.RiskState, latest.Trend)
	return nil
}
