// Package papertrader simulates arbitrage execution against live prices. It
// runs the same pre-trade gates as the live executor (risk cap, balance,
// liquidity, slippage, evaporation) but fills virtually and persists its
// state to a JSON snapshot that survives restarts.
package papertrader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"github.com/polysignal/signal-engine/internal/arbitrage"
	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/bus"
	"go.uber.org/zap"
)

// TradeOutcome classifies the result of one execution attempt.
type TradeOutcome string

const (
	OutcomeSuccess          TradeOutcome = "SUCCESS"
	OutcomeAbortedRisk      TradeOutcome = "ABORTED_RISK"
	OutcomeAbortedBalance   TradeOutcome = "ABORTED_BALANCE"
	OutcomeAbortedLiquidity TradeOutcome = "ABORTED_LIQUIDITY"
	OutcomeAbortedSlippage  TradeOutcome = "ABORTED_SLIPPAGE"
	OutcomeAbortedEvaporated TradeOutcome = "ABORTED_ARB_EVAPORATED"
	OutcomeError            TradeOutcome = "ERROR"
)

// TradeResult is the outcome of executing one opportunity.
type TradeResult struct {
	Outcome      TradeOutcome
	Reason       string
	YesFillPrice float64
	NoFillPrice  float64
	ProfitUSDC   float64
}

// TradeEngine executes detected opportunities. The paper trader is the
// shipped implementation; the live executor reuses the same gates.
type TradeEngine interface {
	Execute(ctx context.Context, opp *arbitrage.Opportunity) TradeResult
}

// State is the persisted snapshot.
type State struct {
	BalanceUSDC      float64 `json:"balance_usdc"`
	TotalProfitUSDC  float64 `json:"total_profit_usdc"`
	TradesExecuted   int     `json:"trades_executed"`
	TradesAborted    int     `json:"trades_aborted"`
	OpportunitiesSeen int    `json:"opportunities_seen"`
}

// Config holds paper trader configuration.
type Config struct {
	MaxTradeSizeUSDC    float64
	MaxRiskPerTradeUSDC float64
	SlippageTolerancePct float64
	MinLiquidityUSDC    float64
	StartingBalanceUSDC float64
	LogDir              string
	Logger              *zap.Logger
}

// PaperTrader simulates fills under the pre-trade gates.
type PaperTrader struct {
	client *polymarket.Client
	bus    *bus.Bus
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	state     State
	statePath string
}

// New creates a paper trader, resuming from the state file when present.
func New(cfg Config, client *polymarket.Client, eventBus *bus.Bus) (*PaperTrader, error) {
	statePath := filepath.Join(cfg.LogDir, "paper_state.json")

	t := &PaperTrader{
		client:    client,
		bus:       eventBus,
		cfg:       cfg,
		logger:    cfg.Logger,
		statePath: statePath,
	}

	if err := t.loadState(); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *PaperTrader) loadState() error {
	data, err := os.ReadFile(t.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read paper state: %w", err)
		}
		t.state = State{BalanceUSDC: t.cfg.StartingBalanceUSDC}
		t.logger.Info("paper-trader-starting-fresh",
			zap.Float64("balance-usdc", t.state.BalanceUSDC))
		return nil
	}

	if err := json.Unmarshal(data, &t.state); err != nil {
		return fmt.Errorf("decode paper state: %w", err)
	}

	t.logger.Info("paper-trader-resumed",
		zap.Float64("balance-usdc", t.state.BalanceUSDC),
		zap.Float64("total-profit-usdc", t.state.TotalProfitUSDC),
		zap.Int("trades-executed", t.state.TradesExecuted),
		zap.Int("opportunities-seen", t.state.OpportunitiesSeen))

	return nil
}

// saveStateLocked rewrites the snapshot. Write failures log and do not roll
// back in-memory state (at-least-once update semantics).
func (t *PaperTrader) saveStateLocked() {
	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		t.logger.Error("paper-state-encode-failed", zap.Error(err))
		return
	}

	if err := os.MkdirAll(filepath.Dir(t.statePath), 0o755); err != nil {
		t.logger.Error("paper-state-mkdir-failed", zap.Error(err))
		return
	}

	tmp := t.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		t.logger.Error("paper-state-write-failed", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, t.statePath); err != nil {
		t.logger.Error("paper-state-rename-failed", zap.Error(err))
	}
}

// Execute runs the pre-trade gates against live prices and simulates the
// fill. Every call, success or abort, persists state and publishes trade and
// stats events. The state mutex is only held around state mutation and the
// disk rewrite, never across the HTTP gates.
func (t *PaperTrader) Execute(ctx context.Context, opp *arbitrage.Opportunity) TradeResult {
	t.mu.Lock()
	t.state.OpportunitiesSeen++
	balance := t.state.BalanceUSDC
	t.mu.Unlock()

	// 1. Risk cap.
	totalCost := opp.TotalCostUSDC()
	if totalCost > t.cfg.MaxRiskPerTradeUSDC {
		return t.abort(opp, OutcomeAbortedRisk,
			fmt.Sprintf("cost %.2f USDC > max risk %.2f USDC", totalCost, t.cfg.MaxRiskPerTradeUSDC))
	}

	// 2. Virtual balance.
	if balance < totalCost {
		return t.abort(opp, OutcomeAbortedBalance,
			fmt.Sprintf("paper balance %.2f < cost %.2f USDC", balance, totalCost))
	}

	// 3. Per-side liquidity at or below the seen ask.
	yesLiq := t.client.GetAvailableLiquidityUSDC(ctx, opp.YesTokenID, opp.YesAsk, opp.YesCostUSDC)
	if yesLiq < t.cfg.MinLiquidityUSDC {
		return t.abort(opp, OutcomeAbortedLiquidity,
			fmt.Sprintf("YES liquidity %.2f < min %.2f USDC", yesLiq, t.cfg.MinLiquidityUSDC))
	}

	noLiq := t.client.GetAvailableLiquidityUSDC(ctx, opp.NoTokenID, opp.NoAsk, opp.NoCostUSDC)
	if noLiq < t.cfg.MinLiquidityUSDC {
		return t.abort(opp, OutcomeAbortedLiquidity,
			fmt.Sprintf("NO liquidity %.2f < min %.2f USDC", noLiq, t.cfg.MinLiquidityUSDC))
	}

	// 4. Slippage against re-fetched live prices.
	liveYes, okYes := t.client.GetBestAsk(ctx, opp.YesTokenID)
	liveNo, okNo := t.client.GetBestAsk(ctx, opp.NoTokenID)
	if !okYes || !okNo {
		return t.abort(opp, OutcomeError, "could not re-fetch live prices")
	}

	yesSlip := abs(liveYes-opp.YesAsk) / opp.YesAsk * 100
	noSlip := abs(liveNo-opp.NoAsk) / opp.NoAsk * 100
	if yesSlip > t.cfg.SlippageTolerancePct {
		return t.abort(opp, OutcomeAbortedSlippage,
			fmt.Sprintf("YES moved %.2f%% (tolerance %.2f%%)", yesSlip, t.cfg.SlippageTolerancePct))
	}
	if noSlip > t.cfg.SlippageTolerancePct {
		return t.abort(opp, OutcomeAbortedSlippage,
			fmt.Sprintf("NO moved %.2f%% (tolerance %.2f%%)", noSlip, t.cfg.SlippageTolerancePct))
	}

	// 5. The arb must still exist at live prices.
	if liveYes+liveNo >= 1.0 {
		return t.abort(opp, OutcomeAbortedEvaporated,
			fmt.Sprintf("arb gone: live combined = %.2f%%", (liveYes+liveNo)*100))
	}

	// 6. Simulated fill at live prices. One side pays out 1 USDC/share at
	// settlement by construction.
	shares := minFloat(
		t.cfg.MaxTradeSizeUSDC/liveYes,
		t.cfg.MaxTradeSizeUSDC/liveNo,
		t.cfg.MaxRiskPerTradeUSDC/(liveYes+liveNo),
	)
	cost := shares * (liveYes + liveNo)
	profit := shares * (1.0 - liveYes - liveNo)

	t.mu.Lock()
	t.state.BalanceUSDC -= cost
	t.state.BalanceUSDC += shares // winning-side payout, locked in
	t.state.TotalProfitUSDC += profit
	t.state.TradesExecuted++
	t.saveStateLocked()
	newBalance := t.state.BalanceUSDC
	t.publishTradeLocked(opp, OutcomeSuccess, "", liveYes, liveNo, profit)
	t.mu.Unlock()

	TradesTotal.WithLabelValues(string(OutcomeSuccess)).Inc()
	ProfitUSDC.Add(profit)

	t.logger.Info("paper-trade-success",
		zap.String("question", opp.MarketQuestion),
		zap.Float64("yes-fill", liveYes),
		zap.Float64("no-fill", liveNo),
		zap.Float64("shares", shares),
		zap.Float64("cost-usdc", cost),
		zap.Float64("profit-usdc", profit),
		zap.Float64("balance-usdc", newBalance))

	return TradeResult{
		Outcome:      OutcomeSuccess,
		Reason:       "simulated fill at live prices",
		YesFillPrice: liveYes,
		NoFillPrice:  liveNo,
		ProfitUSDC:   profit,
	}
}

// Snapshot returns a copy of the current state.
func (t *PaperTrader) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

func (t *PaperTrader) abort(opp *arbitrage.Opportunity, outcome TradeOutcome, reason string) TradeResult {
	t.mu.Lock()
	t.state.TradesAborted++
	t.saveStateLocked()
	t.publishTradeLocked(opp, outcome, reason, 0, 0, 0)
	t.mu.Unlock()

	TradesTotal.WithLabelValues(string(outcome)).Inc()

	t.logger.Info("paper-trade-aborted",
		zap.String("outcome", string(outcome)),
		zap.String("question", opp.MarketQuestion),
		zap.String("reason", reason))

	return TradeResult{Outcome: outcome, Reason: reason}
}

func (t *PaperTrader) publishTradeLocked(opp *arbitrage.Opportunity, outcome TradeOutcome, reason string, yesFill, noFill, profit float64) {
	question := opp.MarketQuestion
	if len(question) > 80 {
		question = question[:80]
	}

	payload := map[string]interface{}{
		"outcome":           string(outcome),
		"question":          question,
		"cumulative_profit": t.state.TotalProfitUSDC,
		"balance":           t.state.BalanceUSDC,
	}
	if outcome == OutcomeSuccess {
		payload["yes_fill"] = yesFill
		payload["no_fill"] = noFill
		payload["profit_usdc"] = profit
	} else {
		payload["reason"] = reason
	}

	t.bus.Publish("trade", payload)
	t.bus.Publish("stats", t.state)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minFloat(vals ...float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
