package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/polysignal/signal-engine/internal/arbitrage"
	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/config"
	"github.com/polysignal/signal-engine/pkg/fetcher"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a one-shot market scan and print candidates",
	Long: `Fetches the configured market segments once, applies the Gamma
pre-screen estimate, and prints the markets whose estimated combined price
suggests a possible arbitrage. No order books are fetched and no trades are
simulated.`,
	RunE: runScan,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
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

	client := polymarket.NewClient(polymarket.Config{
		GammaHost: cfg.GammaHost,
		ClobHost:  cfg.ClobHost,
		DataHost:  cfg.DataHost,
		Fetcher:   fetcher.New(fetcher.Config{Logger: logger}),
		Logger:    logger,
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	markets := client.GetSportsMarkets(ctx, cfg.Filters.SportsTags)
	fmt.Printf("Fetched %d unique markets for tags %v\n\n", len(markets), cfg.Filters.SportsTags)

	threshold := 1.0 - cfg.Strategy.MinProfitThresholdPct/100 + 0.02
	candidates := 0

	for i := range markets {
		mkt := &markets[i]
		if mkt.BestAsk == nil || mkt.BestBid == nil {
			continue
		}
		yesAsk := *mkt.BestAsk
		impliedNoAsk := 1.0 - *mkt.BestBid
		if yesAsk <= 0 || yesAsk >= 1 || impliedNoAsk <= 0 || impliedNoAsk >= 1 {
			continue
		}
		combined := yesAsk + impliedNoAsk
		if combined >= threshold {
			continue
		}

		candidates++
		yesID, noID := arbitrage.ExtractTokenIDs(mkt)
		question := mkt.Question
		if len(question) > 70 {
			question = question[:70]
		}
		fmt.Printf("%-72s est=%.4f yes=%s no=%s\n", question, combined, short(yesID), short(noID))
	}

	fmt.Printf("\n%d candidate(s) below the pre-screen threshold %.4f\n", candidates, threshold)

	return nil
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}

	return id
}
