package main

import (
	"github.com/spf13/cobra"

	"github.com/krittin/tallyscan/internal/api"
	"github.com/krittin/tallyscan/version"
)

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "tallyscan",
	Short: "Ballot report extraction from polling-station tally sheets",
	Long: `Tallyscan turns photographed Thai polling-station ballot report forms
into structured, validated vote tallies using a hosted multimodal model.

The pipeline includes:
  - Page image and scanned-PDF ingestion
  - Schema-constrained prompt construction
  - Truncation-aware response parsing and repair
  - Arithmetic validation of ballot statistics
  - Span-correlated telemetry for out-of-band feedback`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.tallyscan/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}
