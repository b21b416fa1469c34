package datafeed

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/bus"
	"go.uber.org/zap"
)

const (
	// Slots is the number of concurrent paper positions.
	Slots = 40

	// SlotSizeUSDC is the fixed capital allocation per slot.
	SlotSizeUSDC = 500.0

	resolvedHistoryCap = 50
	priceBatchSize     = 20
)

// Portfolio is the datafeed bot's slot-limited paper book. One mutex
// serializes all mutations; the poll loop opens positions while the price
// loop refreshes and closes them.
type Portfolio struct {
	bus    *bus.Bus
	logger *zap.Logger

	mu              sync.Mutex
	startingBalance float64
	balance         float64
	realizedPnL     float64
	positions       map[string]*Position
	resolved        []ResolvedTrade
}

// Overview is the summary snapshot.
type Overview struct {
	BalanceUSDC   float64 `json:"balance_usdc"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	SlotsUsed     int     `json:"slots_used"`
	SlotsTotal    int     `json:"slots_total"`
	TotalDeployed float64 `json:"total_deployed"`
}

// NewPortfolio creates an empty portfolio.
func NewPortfolio(startingBalance float64, eventBus *bus.Bus, logger *zap.Logger) *Portfolio {
	return &Portfolio{
		bus:             eventBus,
		logger:          logger,
		startingBalance: startingBalance,
		balance:         startingBalance,
		positions:       make(map[string]*Position),
	}
}

// Reset clears all state back to the starting balance.
func (p *Portfolio) Reset() {
	p.mu.Lock()
	p.balance = p.startingBalance
	p.realizedPnL = 0
	p.positions = make(map[string]*Position)
	p.resolved = nil
	p.mu.Unlock()

	p.emitOverview()
	p.emitPositions()
}

// OpenPosition paper-buys the opportunity's token. Duplicates and
// slot/balance exhaustion drop the opportunity (no queue on this book).
func (p *Portfolio) OpenPosition(opp *Opportunity) *Position {
	if opp.TokenID == "" {
		return nil
	}

	p.mu.Lock()
	if _, open := p.positions[opp.TokenID]; open {
		p.mu.Unlock()
		return nil
	}
	if len(p.positions) >= Slots || p.balance < SlotSizeUSDC {
		p.mu.Unlock()
		p.logger.Info("datafeed-slot-limit-skipping",
			zap.String("question", opp.MarketQuestion))
		return nil
	}

	entryPrice := opp.MarketPrice
	shares := 0.0
	if entryPrice > 0 {
		shares = SlotSizeUSDC / entryPrice
	}

	position := &Position{
		ID:             uuid.New().String()[:8],
		MarketQuestion: opp.MarketQuestion,
		TokenID:        opp.TokenID,
		Outcome:        opp.Outcome,
		EntryPrice:     entryPrice,
		CurrentPrice:   entryPrice,
		Shares:         shares,
		USDCDeployed:   SlotSizeUSDC,
		OpenedAt:       time.Now(),
		SourceEvent:    opp.SourceEvent,
		FixtureID:      opp.FixtureID,
	}
	p.positions[opp.TokenID] = position
	p.balance -= SlotSizeUSDC
	slotsUsed := len(p.positions)
	p.mu.Unlock()

	OpenPositionsGauge.Set(float64(slotsUsed))
	p.logger.Info("datafeed-position-opened",
		zap.String("outcome", position.Outcome),
		zap.String("question", position.MarketQuestion),
		zap.Float64("entry-price", entryPrice),
		zap.Float64("edge-pct", opp.EdgePct),
		zap.Int("slots-used", slotsUsed),
		zap.Int("slots-total", Slots))

	p.bus.Publish("datafeed_position_opened", position)
	p.emitPositions()
	p.emitOverview()

	return position
}

// ClosePositionByToken closes the open position for tokenID at exitPrice.
func (p *Portfolio) ClosePositionByToken(tokenID string, exitPrice float64) *ResolvedTrade {
	p.mu.Lock()
	position, ok := p.positions[tokenID]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	delete(p.positions, tokenID)

	pnl := (exitPrice - position.EntryPrice) * position.Shares
	result := classifyResult(pnl)

	resolved := ResolvedTrade{
		MarketQuestion: position.MarketQuestion,
		Outcome:        position.Outcome,
		EntryPrice:     position.EntryPrice,
		ExitPrice:      exitPrice,
		Shares:         position.Shares,
		USDCDeployed:   position.USDCDeployed,
		PnLUSDC:        pnl,
		Duration:       time.Since(position.OpenedAt).Seconds(),
		SourceEvent:    position.SourceEvent,
		ResolvedAt:     time.Now(),
		Result:         result,
	}

	p.balance += SlotSizeUSDC + pnl
	p.realizedPnL += pnl
	p.resolved = append([]ResolvedTrade{resolved}, p.resolved...)
	if len(p.resolved) > resolvedHistoryCap {
		p.resolved = p.resolved[:resolvedHistoryCap]
	}
	slotsUsed := len(p.positions)
	p.mu.Unlock()

	OpenPositionsGauge.Set(float64(slotsUsed))
	ClosedTradesTotal.WithLabelValues(result).Inc()
	p.logger.Info("datafeed-position-closed",
		zap.String("question", resolved.MarketQuestion),
		zap.String("result", result),
		zap.Float64("pnl-usdc", pnl))

	p.bus.Publish("datafeed_position_closed", resolved)
	p.emitPositions()
	p.emitOverview()

	return &resolved
}

// UpdatePrices refreshes current prices on open positions, batched by 20.
func (p *Portfolio) UpdatePrices(ctx context.Context, client *polymarket.Client) {
	tokenIDs := p.openTokenIDs()
	if len(tokenIDs) == 0 {
		return
	}

	for i := 0; i < len(tokenIDs); i += priceBatchSize {
		end := i + priceBatchSize
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}

		markets, err := client.GetMarketsByTokenIDs(ctx, tokenIDs[i:end])
		if err != nil {
			p.logger.Warn("datafeed-price-update-failed", zap.Error(err))
			return
		}

		p.mu.Lock()
		for _, mkt := range markets {
			price, ok := marketPrice(&mkt)
			if !ok {
				continue
			}
			for _, tid := range mkt.ClobTokenIDs {
				if position, open := p.positions[tid]; open {
					position.CurrentPrice = price
				}
			}
		}
		p.mu.Unlock()
	}

	p.emitPositions()
	p.emitOverview()
}

// CloseResolvedMarkets closes positions whose market is no longer active,
// at the published outcome price.
func (p *Portfolio) CloseResolvedMarkets(ctx context.Context, client *polymarket.Client) {
	tokenIDs := p.openTokenIDs()
	if len(tokenIDs) == 0 {
		return
	}

	type closing struct {
		tokenID   string
		exitPrice float64
	}
	var toClose []closing

	for _, tokenID := range tokenIDs {
		markets, err := client.GetMarketsByTokenIDs(ctx, []string{tokenID})
		if err != nil {
			p.logger.Warn("datafeed-resolve-check-failed",
				zap.String("token-id", tokenID),
				zap.Error(err))
			continue
		}
		if len(markets) == 0 {
			continue
		}
		mkt := markets[0]
		if mkt.Active {
			continue
		}

		exitPrice := 0.5
		if prices := mkt.OutcomePrices.Floats(); len(prices) > 0 {
			exitPrice = prices[0]
		}
		toClose = append(toClose, closing{tokenID, exitPrice})
	}

	for _, c := range toClose {
		p.ClosePositionByToken(c.tokenID, c.exitPrice)
	}
}

// GetOverview returns the summary snapshot.
func (p *Portfolio) GetOverview() Overview {
	p.mu.Lock()
	defer p.mu.Unlock()

	unrealized := 0.0
	for _, position := range p.positions {
		unrealized += position.UnrealizedPnL()
	}

	return Overview{
		BalanceUSDC:   p.balance,
		RealizedPnL:   p.realizedPnL,
		UnrealizedPnL: unrealized,
		TotalPnL:      p.realizedPnL + unrealized,
		SlotsUsed:     len(p.positions),
		SlotsTotal:    Slots,
		TotalDeployed: float64(len(p.positions)) * SlotSizeUSDC,
	}
}

// GetPositions returns copies of all open positions.
func (p *Portfolio) GetPositions() []Position {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Position, 0, len(p.positions))
	for _, position := range p.positions {
		out = append(out, *position)
	}

	return out
}

// GetResolved returns up to limit resolved trades, newest first.
func (p *Portfolio) GetResolved(limit int) []ResolvedTrade {
	p.mu.Lock()
	defer p.mu.Unlock()

	if limit <= 0 || limit > len(p.resolved) {
		limit = len(p.resolved)
	}
	out := make([]ResolvedTrade, limit)
	copy(out, p.resolved[:limit])

	return out
}

// RefPositions exposes open positions in the shape the matcher biases
// toward.
func (p *Portfolio) RefPositions() []RefPosition {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]RefPosition, 0, len(p.positions))
	for _, position := range p.positions {
		out = append(out, RefPosition{
			Question: position.MarketQuestion,
			TokenID:  position.TokenID,
			Price:    position.CurrentPrice,
		})
	}

	return out
}

func (p *Portfolio) openTokenIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.positions))
	for tid := range p.positions {
		out = append(out, tid)
	}

	return out
}

func (p *Portfolio) emitOverview() {
	p.bus.Publish("datafeed_overview", p.GetOverview())
}

func (p *Portfolio) emitPositions() {
	p.bus.Publish("datafeed_positions", map[string]interface{}{"positions": p.GetPositions()})
}

func classifyResult(pnl float64) string {
	switch {
	case pnl > 0.01:
		return "WIN"
	case pnl < -0.01:
		return "LOSS"
	default:
		return "PUSH"
	}
}
