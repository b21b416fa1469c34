package mirror

import (
	"fmt"
	"testing"

	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPortfolio() *Portfolio {
	return NewPortfolio(20_000, bus.New(50, zap.NewNop()), zap.NewNop())
}

func walletPos(tokenID string, price float64) polymarket.Position {
	return polymarket.Position{
		Asset:       tokenID,
		ConditionID: "cond-" + tokenID,
		Title:       "Market " + tokenID,
		Outcome:     "Yes",
		CurPrice:    price,
	}
}

func testAddr() *WatchedAddress {
	return &WatchedAddress{Address: "0xwhale", Nickname: "whale", Enabled: true}
}

func TestOpenPositionFillsSlot(t *testing.T) {
	p := newTestPortfolio()
	cfg := testAddr()

	pos := p.OpenPosition(cfg, walletPos("t1", 0.5))
	require.NotNil(t, pos)
	assert.Equal(t, 1000.0, pos.Shares) // 500 / 0.5
	assert.Equal(t, SlotSizeUSDC, pos.USDCDeployed)
	assert.Equal(t, 1, cfg.Stats.TradesMirrored)

	ov := p.GetOverview()
	assert.Equal(t, 19_500.0, ov.BalanceUSDC)
	assert.Equal(t, 1, ov.SlotsUsed)
}

func TestOpenPositionDeduplicates(t *testing.T) {
	p := newTestPortfolio()
	cfg := testAddr()

	require.NotNil(t, p.OpenPosition(cfg, walletPos("t1", 0.5)))
	assert.Nil(t, p.OpenPosition(cfg, walletPos("t1", 0.6)))
	assert.Equal(t, 1, p.GetOverview().SlotsUsed)
}

func TestOverflowQueuesAndDrains(t *testing.T) {
	p := newTestPortfolio()
	cfg := testAddr()

	// Fill all 40 slots.
	for i := 0; i < Slots; i++ {
		require.NotNil(t, p.OpenPosition(cfg, walletPos(fmt.Sprintf("t%d", i), 0.5)))
	}

	ov := p.GetOverview()
	assert.Equal(t, Slots, ov.SlotsUsed)
	assert.Equal(t, 0.0, ov.BalanceUSDC)

	// 41st goes to the queue.
	assert.Nil(t, p.OpenPosition(cfg, walletPos("t40", 0.4)))
	assert.Equal(t, 1, p.GetOverview().QueueSize)

	// Duplicate of the queued token is dropped.
	assert.Nil(t, p.OpenPosition(cfg, walletPos("t40", 0.4)))
	assert.Equal(t, 1, p.GetOverview().QueueSize)

	// Close one at entry price: queued trade fills, queue drains, slots full.
	resolved := p.ClosePositionByToken(cfg, walletPos("t7", 0.5))
	require.NotNil(t, resolved)
	assert.Equal(t, "PUSH", resolved.Result)

	ov = p.GetOverview()
	assert.Equal(t, Slots, ov.SlotsUsed)
	assert.Equal(t, 0, ov.QueueSize)

	// The dequeued token is now an open position.
	found := false
	for _, pos := range p.GetPositions() {
		if pos.TokenID == "t40" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCloseAtEntryPriceRestoresBalance(t *testing.T) {
	p := newTestPortfolio()
	cfg := testAddr()

	p.OpenPosition(cfg, walletPos("t1", 0.5))
	resolved := p.ClosePositionByToken(cfg, walletPos("t1", 0.5))
	require.NotNil(t, resolved)

	ov := p.GetOverview()
	assert.Equal(t, 20_000.0, ov.BalanceUSDC)
	assert.Equal(t, 0.0, ov.RealizedPnL)
	assert.Equal(t, "PUSH", resolved.Result)
}

func TestCloseWinUpdatesStats(t *testing.T) {
	p := newTestPortfolio()
	cfg := testAddr()

	p.OpenPosition(cfg, walletPos("t1", 0.5))
	resolved := p.ClosePositionByToken(cfg, walletPos("t1", 0.6))
	require.NotNil(t, resolved)

	// 1000 shares * 0.1 = 100 USDC profit.
	assert.Equal(t, "WIN", resolved.Result)
	assert.InDelta(t, 100.0, resolved.PnLUSDC, 1e-9)
	assert.Equal(t, 1, cfg.Stats.Wins)
	assert.InDelta(t, 100.0, cfg.Stats.TotalPnLUSDC, 1e-9)

	ov := p.GetOverview()
	assert.InDelta(t, 20_100.0, ov.BalanceUSDC, 1e-9)
	assert.InDelta(t, 100.0, ov.RealizedPnL, 1e-9)
}

func TestCloseUnknownTokenNoOp(t *testing.T) {
	p := newTestPortfolio()
	cfg := testAddr()

	assert.Nil(t, p.ClosePositionByToken(cfg, walletPos("missing", 0.5)))
	assert.Equal(t, 20_000.0, p.GetOverview().BalanceUSDC)
}

func TestResolvedHistoryCapped(t *testing.T) {
	p := newTestPortfolio()
	cfg := testAddr()

	for i := 0; i < resolvedHistoryCap+10; i++ {
		tid := fmt.Sprintf("t%d", i)
		p.OpenPosition(cfg, walletPos(tid, 0.5))
		p.ClosePositionByToken(cfg, walletPos(tid, 0.5))
	}

	resolved := p.GetResolved(0)
	assert.Len(t, resolved, resolvedHistoryCap)
	// Newest first.
	assert.Contains(t, resolved[0].MarketQuestion, fmt.Sprintf("t%d", resolvedHistoryCap+9))
}

func TestBalanceInvariant(t *testing.T) {
	p := newTestPortfolio()
	cfg := testAddr()

	for i := 0; i < 10; i++ {
		p.OpenPosition(cfg, walletPos(fmt.Sprintf("t%d", i), 0.25))
	}
	p.ClosePositionByToken(cfg, walletPos("t3", 0.30))
	p.ClosePositionByToken(cfg, walletPos("t4", 0.20))

	ov := p.GetOverview()
	assert.GreaterOrEqual(t, ov.BalanceUSDC, 0.0)
	assert.LessOrEqual(t, ov.SlotsUsed, Slots)
	// balance + deployed == starting + realized (entry==current so no
	// unrealized component).
	assert.InDelta(t, 20_000+ov.RealizedPnL, ov.BalanceUSDC+ov.TotalDeployed, 1e-6)
}
