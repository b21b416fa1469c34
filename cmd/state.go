package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/polysignal/signal-engine/internal/papertrader"
	"github.com/polysignal/signal-engine/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the paper trader's persisted state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		statePath := filepath.Join(cfg.Logging.LogDir, "paper_state.json")
		data, err := os.ReadFile(statePath)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Printf("No paper state at %s — the trader has not run yet.\n", statePath)
				return nil
			}
			return fmt.Errorf("read paper state: %w", err)
		}

		var state papertrader.State
		if err := json.Unmarshal(data, &state); err != nil {
			return fmt.Errorf("decode paper state: %w", err)
		}

		fmt.Printf("Balance:            %.2f USDC\n", state.BalanceUSDC)
		fmt.Printf("Total profit:       %.4f USDC\n", state.TotalProfitUSDC)
		fmt.Printf("Trades executed:    %d\n", state.TradesExecuted)
		fmt.Printf("Trades aborted:     %d\n", state.TradesAborted)
		fmt.Printf("Opportunities seen: %d\n", state.OpportunitiesSeen)
		return nil
	},
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(stateCmd)
}
