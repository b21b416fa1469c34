package cmd

import (
	"fmt"

	"github.com/polysignal/signal-engine/internal/app"
	"github.com/polysignal/signal-engine/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the signal engine",
	Long: `Starts every bot the config enables:
- the two-stage within-market arbitrage monitor with the paper trader
- the wallet-mirroring bot
- the live sports datafeed bot
- the cross-exchange crypto arbitrage scanner

Events stream to dashboard clients over /ws/events.`,
	RunE: runEngine,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	return application.Run()
}
