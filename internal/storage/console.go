package storage

import (
	"context"

	"github.com/polysignal/signal-engine/internal/arbitrage"
	"go.uber.org/zap"
)

// ConsoleStorage implements Storage by logging opportunities.
type ConsoleStorage struct {
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{logger: logger}
}

// StoreOpportunity logs the opportunity.
func (c *ConsoleStorage) StoreOpportunity(_ context.Context, opp *arbitrage.Opportunity) error {
	c.logger.Info("opportunity-detected",
		zap.String("opportunity-id", opp.ID),
		zap.String("market-id", opp.MarketID),
		zap.String("question", opp.MarketQuestion),
		zap.Float64("yes-ask", opp.YesAsk),
		zap.Float64("no-ask", opp.NoAsk),
		zap.Float64("combined-pct", opp.CombinedPct),
		zap.Float64("profit-pct", opp.ProfitPct),
		zap.Float64("shares", opp.Shares),
		zap.Float64("est-profit-usdc", opp.EstProfitUSDC))

	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
