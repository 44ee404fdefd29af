package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/observation"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/orchestrator"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/printer"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/report"
)

var (
	runOnce       bool
	runHealthAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run reasoning cycles over ingested observations",
	Long: `Run reasoning cycles for an instance.

Each cycle reads the observation window ending now, runs every enabled
detector agent, scores risk, infers causal links and synthesizes
hypotheses and recommendations. Completed cycles are written to Redis and
published to 'cognicore watch' subscribers.

Without --once, a cycle runs immediately and then once per configured
cycle_interval until interrupted. State (risk trend and the prior cycle
used for cross-cycle causal links) is recovered from Redis on start.

Examples:
  # Run continuously with ./cognicore.yml
  cognicore run

  # Run a single cycle and print its report
  cognicore run --once --redis-url redis://localhost:6379`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single cycle, print it and exit")
	runCmd.Flags().StringVar(&runHealthAddr, "health-addr", "", "Health and metrics listen address, overrides config (\"off\" disables)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, client, err := setup(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	source, err := observation.NewRedisSource(client.RedisClient(), cfg.Instance)
	if err != nil {
		return fmt.Errorf("failed to create observation source: %w", err)
	}

	var opts []orchestrator.Option
	switch {
	case runOnce:
		opts = append(opts, orchestrator.WithHealthAddr("off"))
	case runHealthAddr != "":
		opts = append(opts, orchestrator.WithHealthAddr(runHealthAddr))
	}

	engine, err := orchestrator.NewEngine(cfg, source, client, opts...)
	if err != nil {
		return printer.Error("failed to create engine", err.Error(), nil)
	}

	if !runOnce {
		printer.Step("Running cycles for instance '%s' every %s\n", cfg.Instance, cfg.Orchestrator.CycleInterval)
		return engine.Run(ctx)
	}

	return runSingleCycle(ctx, cmd, engine)
}

func runSingleCycle(ctx context.Context, cmd *cobra.Command, engine *orchestrator.Engine) error {
	if err := engine.RecoverState(ctx); err != nil {
		printer.Warning("state recovery failed: %v\n", err)
	}

	snap, err := engine.RunCycle(ctx)
	if err != nil {
		return printer.Error(
			"cycle failed",
			err.Error(),
			[]string{"Inspect completed cycles:\n  cognicore history"},
		)
	}

	report.FormatDetail(cmd.OutOrStdout(), snap)
	printer.Success("Cycle %s complete\n", snap.Cycle.ID)
	return nil
}
