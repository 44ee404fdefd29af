package commands

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/printer"
	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/scaffold"
)

var (
	forceInit bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter cognicore.yml and sample observations",
	Long: `Initialize a directory with:
  • cognicore.yml      - configuration with every section filled in
  • observations.jsonl - sample events and metrics timestamped for the next cycle

Use --force to overwrite existing files.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing cognicore.yml and observations.jsonl")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to initialize")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	created, err := scaffold.Initialize(initDir, forceInit, time.Now())
	if err != nil {
		var existing *scaffold.ExistingFilesError
		if errors.As(err, &existing) {
			return printer.Error(
				"project already initialized",
				err.Error(),
				[]string{"Use 'cognicore init --force' to overwrite (this replaces your configuration)"},
			)
		}
		return printer.Error("initialization failed", err.Error(), nil)
	}

	printer.Success("Initialized cognicore in %s\n", initDir)
	for _, f := range created {
		printer.Info("  ✓ %s\n", f)
	}
	printer.Info("\nNext steps:\n")
	printer.Info("  1. cognicore ingest %s\n", scaffold.ObservationsFile)
	printer.Info("  2. cognicore run --once\n")
	return nil
}
