package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "signal-engine",
	Short: "Multi-strategy trading-signal engine",
	Long: `Multi-strategy trading-signal engine that concurrently scans
prediction-market and crypto-exchange data sources, detects actionable
opportunities, and paper-executes trades against slot-limited virtual
portfolios, streaming live events to dashboard clients.`,
}

//nolint:gochecknoglobals // Cobra boilerplate
var configPath string

// Execute runs the root command. Called by main.main().
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	// .env is optional; real config lives in the YAML file.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
}
