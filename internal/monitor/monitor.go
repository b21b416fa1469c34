// Package monitor runs the two-stage within-market arbitrage scan: a cheap
// pre-screen over prices already present in the Gamma market records, then a
// bounded-parallel order-book confirmation for the survivors.
package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/polysignal/signal-engine/internal/arbitrage"
	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/internal/storage"
	"github.com/polysignal/signal-engine/pkg/bus"
	"github.com/polysignal/signal-engine/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// prescreenBuffer widens the pre-screen threshold: the NO ask is only
// estimated as 1-bestBid, so candidates get this much slack before the real
// order books decide.
const prescreenBuffer = 0.02

const maxConfirmWorkers = 10

// Config holds monitor configuration.
type Config struct {
	Tags         []string
	Caps         arbitrage.Caps
	ScanInterval time.Duration
	Logger       *zap.Logger
}

// Monitor polls the market catalogue and confirms arbitrage candidates.
type Monitor struct {
	client        *polymarket.Client
	store         storage.Storage
	bus           *bus.Bus
	cfg           Config
	logger        *zap.Logger
	onOpportunity func(*arbitrage.Opportunity)

	prescreenThreshold float64
}

// New creates a monitor. onOpportunity is invoked for every confirmed
// opportunity, from the confirmation workers.
func New(cfg Config, client *polymarket.Client, store storage.Storage, eventBus *bus.Bus, onOpportunity func(*arbitrage.Opportunity)) *Monitor {
	return &Monitor{
		client:             client,
		store:              store,
		bus:                eventBus,
		cfg:                cfg,
		logger:             cfg.Logger,
		onOpportunity:      onOpportunity,
		prescreenThreshold: 1.0 - cfg.Caps.MinProfitPct/100 + prescreenBuffer,
	}
}

// Run blocks, scanning every ScanInterval until the context is cancelled.
// Scan errors never terminate the loop.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor-started",
		zap.Duration("interval", m.cfg.ScanInterval),
		zap.Strings("tags", m.cfg.Tags))

	for {
		m.scan(ctx)

		select {
		case <-ctx.Done():
			m.logger.Info("monitor-stopping")
			return ctx.Err()
		case <-time.After(m.cfg.ScanInterval):
		}
	}
}

func (m *Monitor) scan(ctx context.Context) {
	start := time.Now()

	markets := m.client.GetSportsMarkets(ctx, m.cfg.Tags)
	m.logger.Info("monitor-markets-fetched", zap.Int("count", len(markets)))

	candidates := make([]types.Market, 0, len(markets))
	for _, mkt := range markets {
		if m.prescreen(&mkt) {
			candidates = append(candidates, mkt)
		}
	}

	scanMS := time.Since(start).Milliseconds()
	ScansTotal.Inc()
	ScanDurationSeconds.Observe(time.Since(start).Seconds())
	CandidatesGauge.Set(float64(len(candidates)))

	m.logger.Info("monitor-prescreen-complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("markets", len(markets)),
		zap.Int64("scan-ms", scanMS))

	m.bus.Publish("scan", map[string]interface{}{
		"markets_total": len(markets),
		"candidates":    len(candidates),
		"scan_ms":       scanMS,
	})

	if len(candidates) == 0 {
		return
	}

	m.bus.Publish("candidates", map[string]interface{}{
		"markets": candidateSummaries(candidates),
	})

	m.confirm(ctx, candidates)
}

// prescreen estimates the combined ask from prices already in the market
// record: YES ask is bestAsk, NO ask at most 1-bestBid. Markets without
// price data pass by default and let the order book decide.
func (m *Monitor) prescreen(mkt *types.Market) bool {
	if mkt.BestAsk == nil || mkt.BestBid == nil {
		return true
	}

	yesAsk := *mkt.BestAsk
	impliedNoAsk := 1.0 - *mkt.BestBid

	if yesAsk <= 0 || yesAsk >= 1 || impliedNoAsk <= 0 || impliedNoAsk >= 1 {
		return false
	}

	return yesAsk+impliedNoAsk < m.prescreenThreshold
}

// confirm fetches the real order books for each candidate in parallel
// (bounded) and re-runs the kernel on confirmed prices.
func (m *Monitor) confirm(ctx context.Context, candidates []types.Market) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConfirmWorkers)

	for i := range candidates {
		mkt := candidates[i]
		g.Go(func() error {
			// A crashed check fails only this market for this cycle.
			m.checkMarket(gctx, &mkt)
			return nil
		})
	}

	_ = g.Wait()
}

func (m *Monitor) checkMarket(ctx context.Context, mkt *types.Market) {
	yesID, noID := arbitrage.ExtractTokenIDs(mkt)
	if yesID == "" || noID == "" {
		return
	}

	yesAsk, okYes := m.client.GetBestAsk(ctx, yesID)
	noAsk, okNo := m.client.GetBestAsk(ctx, noID)
	if !okYes || !okNo {
		return
	}
	if yesAsk <= 0 || yesAsk >= 1 || noAsk <= 0 || noAsk >= 1 {
		return
	}

	opp, ok := arbitrage.Find(mkt, yesAsk, noAsk, m.cfg.Caps)
	if !ok {
		return
	}

	opp.ID = uuid.New().String()
	opp.DetectedAt = time.Now()

	m.logger.Info("monitor-opportunity-confirmed",
		zap.String("opportunity-id", opp.ID),
		zap.Float64("combined-pct", opp.CombinedPct),
		zap.Float64("profit-pct", opp.ProfitPct),
		zap.Float64("est-profit-usdc", opp.EstProfitUSDC),
		zap.String("question", opp.MarketQuestion))

	if err := m.store.StoreOpportunity(ctx, opp); err != nil {
		m.logger.Error("monitor-store-opportunity-failed",
			zap.String("opportunity-id", opp.ID),
			zap.Error(err))
	}

	m.bus.Publish("opportunity", map[string]interface{}{
		"question":        opp.MarketQuestion,
		"yes_ask":         opp.YesAsk,
		"no_ask":          opp.NoAsk,
		"combined_pct":    opp.CombinedPct,
		"profit_pct":      opp.ProfitPct,
		"est_profit_usdc": opp.EstProfitUSDC,
	})

	if m.onOpportunity != nil {
		m.onOpportunity(opp)
	}
}

func candidateSummaries(candidates []types.Market) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(candidates))
	for _, mkt := range candidates {
		est := 0.0
		if mkt.BestAsk != nil && mkt.BestBid != nil {
			est = *mkt.BestAsk + (1.0 - *mkt.BestBid)
		}
		question := mkt.Question
		if len(question) > 80 {
			question = question[:80]
		}
		out = append(out, map[string]interface{}{
			"question":     question,
			"combined_est": est,
		})
	}

	return out
}
