package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/bus"
	"github.com/polysignal/signal-engine/pkg/types"
	"go.uber.org/zap"
)

// priceBatchSize bounds token IDs per markets request to stay within URL
// length limits.
const priceBatchSize = 20

// Portfolio is the 40-slot mirrored portfolio with a FIFO overflow queue.
// All mutations are serialized by a single mutex; callbacks from the monitor
// and the price loop may arrive concurrently.
type Portfolio struct {
	bus    *bus.Bus
	logger *zap.Logger

	mu              sync.Mutex
	startingBalance float64
	balance         float64
	realizedPnL     float64
	positions       map[string]*Position
	queue           []QueuedTrade
	resolved        []ResolvedTrade
}

// Overview is a portfolio summary snapshot.
type Overview struct {
	BalanceUSDC   float64 `json:"balance_usdc"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	SlotsUsed     int     `json:"slots_used"`
	SlotsTotal    int     `json:"slots_total"`
	QueueSize     int     `json:"queue_size"`
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
	p.queue = nil
	p.resolved = nil
	p.mu.Unlock()

	p.emitOverview()
	p.emitPositions()
	p.emitQueue()
}

// OpenPosition mirrors a newly observed wallet position. Duplicate token IDs
// (open or queued) are dropped; when no slot or balance is free the trade is
// queued instead.
func (p *Portfolio) OpenPosition(cfg *WatchedAddress, pos polymarket.Position) *Position {
	tokenID := pos.Asset
	if tokenID == "" {
		p.logger.Warn("mirror-open-missing-token-id")
		return nil
	}

	entryPrice := pos.CurPrice
	if entryPrice <= 0 {
		entryPrice = 0.5
	}

	p.mu.Lock()

	if _, open := p.positions[tokenID]; open {
		p.mu.Unlock()
		return nil
	}
	for _, q := range p.queue {
		if q.TokenID == tokenID {
			p.mu.Unlock()
			return nil
		}
	}

	if len(p.positions) >= Slots || p.balance < SlotSizeUSDC {
		qt := QueuedTrade{
			ID:              shortID(),
			MarketID:        pos.ConditionID,
			MarketQuestion:  truncate(pos.Title, 100),
			TokenID:         tokenID,
			Outcome:         defaultOutcome(pos.Outcome),
			EntryPrice:      entryPrice,
			TriggeredBy:     cfg.Nickname,
			TriggeredByAddr: cfg.Address,
			QueuedAt:        time.Now(),
		}
		p.queue = append(p.queue, qt)
		queueLen := len(p.queue)
		p.mu.Unlock()

		QueuedTradesGauge.Set(float64(queueLen))
		p.logger.Info("mirror-trade-queued",
			zap.String("nickname", cfg.Nickname),
			zap.String("question", qt.MarketQuestion),
			zap.Int("queue-size", queueLen))
		p.emitQueue()
		return nil
	}

	position := p.newPositionLocked(cfg.Nickname, cfg.Address, pos.ConditionID, truncate(pos.Title, 100), defaultOutcome(pos.Outcome), tokenID, entryPrice)
	p.positions[tokenID] = position
	p.balance -= SlotSizeUSDC
	cfg.Stats.TradesMirrored++
	slotsUsed := len(p.positions)
	p.mu.Unlock()

	OpenPositionsGauge.Set(float64(slotsUsed))
	p.logger.Info("mirror-position-opened",
		zap.String("nickname", cfg.Nickname),
		zap.String("question", position.MarketQuestion),
		zap.Float64("entry-price", entryPrice),
		zap.Int("slots-used", slotsUsed),
		zap.Int("slots-total", Slots))

	p.bus.Publish("mirror_position_opened", position)
	p.emitPositions()
	p.emitOverview()

	return position
}

// ClosePositionByToken closes the open position matching the wallet
// position's token ID, returns the slot plus P&L to the balance, records the
// resolved trade, updates the source's stats and drains the queue.
func (p *Portfolio) ClosePositionByToken(cfg *WatchedAddress, pos polymarket.Position) *ResolvedTrade {
	tokenID := pos.Asset

	p.mu.Lock()
	position, ok := p.positions[tokenID]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	delete(p.positions, tokenID)

	exitPrice := pos.CurPrice
	if exitPrice <= 0 {
		exitPrice = position.EntryPrice
	}

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
		TriggeredBy:    position.TriggeredBy,
		ResolvedAt:     time.Now(),
		Result:         result,
	}

	p.balance += SlotSizeUSDC + pnl
	p.realizedPnL += pnl
	p.resolved = append([]ResolvedTrade{resolved}, p.resolved...)
	if len(p.resolved) > resolvedHistoryCap {
		p.resolved = p.resolved[:resolvedHistoryCap]
	}

	cfg.Stats.TotalPnLUSDC += pnl
	switch result {
	case "WIN":
		cfg.Stats.Wins++
	case "LOSS":
		cfg.Stats.Losses++
	}
	p.mu.Unlock()

	ClosedTradesTotal.WithLabelValues(result).Inc()
	p.logger.Info("mirror-position-closed",
		zap.String("nickname", cfg.Nickname),
		zap.String("question", resolved.MarketQuestion),
		zap.String("result", result),
		zap.Float64("pnl-usdc", pnl))

	p.bus.Publish("mirror_position_closed", resolved)
	p.emitPositions()
	p.emitOverview()
	p.drainQueue()

	return &resolved
}

// drainQueue greedily opens queued trades while slots and balance allow.
// Queued trades carry only their source's identity, not its live stats
// record, so stand-in sources here do not advance address stats. Known
// deficit carried over from the close-callback path.
func (p *Portfolio) drainQueue() {
	var opened []*Position

	p.mu.Lock()
	for len(p.queue) > 0 && len(p.positions) < Slots && p.balance >= SlotSizeUSDC {
		qt := p.queue[0]
		p.queue = p.queue[1:]

		position := p.newPositionLocked(qt.TriggeredBy, qt.TriggeredByAddr, qt.MarketID, qt.MarketQuestion, qt.Outcome, qt.TokenID, qt.EntryPrice)
		p.positions[qt.TokenID] = position
		p.balance -= SlotSizeUSDC
		opened = append(opened, position)
	}
	queueLen := len(p.queue)
	slotsUsed := len(p.positions)
	p.mu.Unlock()

	QueuedTradesGauge.Set(float64(queueLen))
	OpenPositionsGauge.Set(float64(slotsUsed))

	for _, position := range opened {
		p.logger.Info("mirror-dequeued-opened",
			zap.String("question", position.MarketQuestion),
			zap.Float64("entry-price", position.EntryPrice),
			zap.Int("queue-remaining", queueLen))
		p.bus.Publish("mirror_position_opened", position)
	}

	p.emitQueue()
	p.emitPositions()
	p.emitOverview()
}

// UpdatePrices refreshes current prices on all open positions, batching
// token IDs in groups of 20 against the markets endpoint. bestAsk wins,
// falling back to bestBid. No-op without open positions.
func (p *Portfolio) UpdatePrices(ctx context.Context, client *polymarket.Client) {
	p.mu.Lock()
	tokenIDs := make([]string, 0, len(p.positions))
	for tid := range p.positions {
		tokenIDs = append(tokenIDs, tid)
	}
	p.mu.Unlock()

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
			p.logger.Warn("mirror-price-update-failed", zap.Error(err))
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

// GetOverview returns the summary snapshot.
func (p *Portfolio) GetOverview() Overview {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.overviewLocked()
}

func (p *Portfolio) overviewLocked() Overview {
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
		QueueSize:     len(p.queue),
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

// GetQueue returns a copy of the overflow queue, FIFO order.
func (p *Portfolio) GetQueue() []QueuedTrade {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]QueuedTrade, len(p.queue))
	copy(out, p.queue)

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

func (p *Portfolio) newPositionLocked(nickname, address, marketID, question, outcome, tokenID string, entryPrice float64) *Position {
	shares := 0.0
	if entryPrice > 0 {
		shares = SlotSizeUSDC / entryPrice
	}

	return &Position{
		ID:              shortID(),
		MarketID:        marketID,
		MarketQuestion:  question,
		TokenID:         tokenID,
		Outcome:         outcome,
		EntryPrice:      entryPrice,
		CurrentPrice:    entryPrice,
		Shares:          shares,
		USDCDeployed:    SlotSizeUSDC,
		OpenedAt:        time.Now(),
		TriggeredBy:     nickname,
		TriggeredByAddr: address,
	}
}

func (p *Portfolio) emitOverview() {
	p.bus.Publish("mirror_overview", p.GetOverview())
}

func (p *Portfolio) emitPositions() {
	p.bus.Publish("mirror_positions", map[string]interface{}{"positions": p.GetPositions()})
}

func (p *Portfolio) emitQueue() {
	p.bus.Publish("mirror_queue", map[string]interface{}{"queue": p.GetQueue()})
}

func marketPrice(mkt *types.Market) (float64, bool) {
	if mkt.BestAsk != nil && *mkt.BestAsk > 0 {
		return *mkt.BestAsk, true
	}
	if mkt.BestBid != nil && *mkt.BestBid > 0 {
		return *mkt.BestBid, true
	}

	return 0, false
}

func shortID() string {
	return uuid.New().String()[:8]
}

func truncate(s string, n int) string {
	if s == "" {
		return "Unknown market"
	}
	if len(s) > n {
		return s[:n]
	}

	return s
}

func defaultOutcome(outcome string) string {
	if outcome == "" {
		return "Yes"
	}

	return outcome
}
