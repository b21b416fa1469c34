package papertrader

import (
	"context"
	"fmt"

	"github.com/polysignal/signal-engine/internal/arbitrage"
	"github.com/polysignal/signal-engine/internal/polymarket"
	"go.uber.org/zap"
)

// Live-path outcomes beyond the shared abort taxonomy.
const (
	OutcomeFailedYesNotFilled TradeOutcome = "FAILED_YES_NOT_FILLED"
	OutcomeFailedNoNotFilled  TradeOutcome = "FAILED_NO_NOT_FILLED"
)

// OrderResult is the placer's response to one order.
type OrderResult struct {
	Filled    bool
	OrderID   string
	FillPrice float64
	Reason    string
}

// OrderPlacer submits real orders. No implementation ships with the engine;
// the live executor exists so the pre-trade gates have a single home.
type OrderPlacer interface {
	// PlaceFOKBuy places a fill-or-kill buy for shares at the limit price.
	PlaceFOKBuy(ctx context.Context, tokenID string, price, shares float64) (OrderResult, error)

	// PlaceGTCSell places a good-till-cancelled sell, used for emergency
	// hedging when only one leg filled.
	PlaceGTCSell(ctx context.Context, tokenID string, price, shares float64) error

	// BalanceUSDC returns the wallet's available USDC.
	BalanceUSDC(ctx context.Context) (float64, error)
}

// Executor is the live trade engine. It reuses the paper trader's gate order:
// risk, balance, liquidity, slippage, evaporation — then places FOK orders on
// both legs, hedging the YES leg if the NO leg fails to fill.
type Executor struct {
	client *polymarket.Client
	placer OrderPlacer
	cfg    Config
	logger *zap.Logger
}

// NewExecutor creates a live executor.
func NewExecutor(cfg Config, client *polymarket.Client, placer OrderPlacer) *Executor {
	return &Executor{
		client: client,
		placer: placer,
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Execute runs the gates and places both legs.
func (e *Executor) Execute(ctx context.Context, opp *arbitrage.Opportunity) TradeResult {
	totalCost := opp.TotalCostUSDC()
	if totalCost > e.cfg.MaxRiskPerTradeUSDC {
		return TradeResult{
			Outcome: OutcomeAbortedRisk,
			Reason:  fmt.Sprintf("cost %.2f USDC > max risk %.2f USDC", totalCost, e.cfg.MaxRiskPerTradeUSDC),
		}
	}

	balance, err := e.placer.BalanceUSDC(ctx)
	if err != nil {
		return TradeResult{Outcome: OutcomeError, Reason: fmt.Sprintf("balance fetch failed: %v", err)}
	}
	if balance < totalCost {
		return TradeResult{
			Outcome: OutcomeAbortedBalance,
			Reason:  fmt.Sprintf("balance %.2f < cost %.2f USDC", balance, totalCost),
		}
	}

	yesLiq := e.client.GetAvailableLiquidityUSDC(ctx, opp.YesTokenID, opp.YesAsk, opp.YesCostUSDC)
	if yesLiq < e.cfg.MinLiquidityUSDC {
		return TradeResult{
			Outcome: OutcomeAbortedLiquidity,
			Reason:  fmt.Sprintf("YES liquidity %.2f < min %.2f USDC", yesLiq, e.cfg.MinLiquidityUSDC),
		}
	}
	noLiq := e.client.GetAvailableLiquidityUSDC(ctx, opp.NoTokenID, opp.NoAsk, opp.NoCostUSDC)
	if noLiq < e.cfg.MinLiquidityUSDC {
		return TradeResult{
			Outcome: OutcomeAbortedLiquidity,
			Reason:  fmt.Sprintf("NO liquidity %.2f < min %.2f USDC", noLiq, e.cfg.MinLiquidityUSDC),
		}
	}

	liveYes, okYes := e.client.GetBestAsk(ctx, opp.YesTokenID)
	liveNo, okNo := e.client.GetBestAsk(ctx, opp.NoTokenID)
	if !okYes || !okNo {
		return TradeResult{Outcome: OutcomeError, Reason: "could not fetch live prices"}
	}

	yesSlip := abs(liveYes-opp.YesAsk) / opp.YesAsk * 100
	noSlip := abs(liveNo-opp.NoAsk) / opp.NoAsk * 100
	if yesSlip > e.cfg.SlippageTolerancePct || noSlip > e.cfg.SlippageTolerancePct {
		return TradeResult{
			Outcome: OutcomeAbortedSlippage,
			Reason:  fmt.Sprintf("price moved YES %.2f%% / NO %.2f%% (tolerance %.2f%%)", yesSlip, noSlip, e.cfg.SlippageTolerancePct),
		}
	}

	if liveYes+liveNo >= 1.0 {
		return TradeResult{
			Outcome: OutcomeAbortedEvaporated,
			Reason:  fmt.Sprintf("arb gone: live combined = %.2f%%", (liveYes+liveNo)*100),
		}
	}

	shares := minFloat(
		e.cfg.MaxTradeSizeUSDC/liveYes,
		e.cfg.MaxTradeSizeUSDC/liveNo,
		e.cfg.MaxRiskPerTradeUSDC/(liveYes+liveNo),
	)

	yesResp, err := e.placer.PlaceFOKBuy(ctx, opp.YesTokenID, liveYes, shares)
	if err != nil || !yesResp.Filled {
		reason := yesResp.Reason
		if err != nil {
			reason = err.Error()
		}
		return TradeResult{
			Outcome: OutcomeFailedYesNotFilled,
			Reason:  fmt.Sprintf("YES FOK not filled: %s", reason),
		}
	}

	noResp, err := e.placer.PlaceFOKBuy(ctx, opp.NoTokenID, liveNo, shares)
	if err != nil || !noResp.Filled {
		// YES filled but NO failed: unhedged directional exposure. Exit the
		// YES leg quickly with a GTC sell slightly below cost.
		reason := noResp.Reason
		if err != nil {
			reason = err.Error()
		}
		e.logger.Error("executor-partial-fill",
			zap.String("yes-order-id", yesResp.OrderID),
			zap.String("question", opp.MarketQuestion),
			zap.String("reason", reason))

		hedgePrice := liveYes * 0.97
		if hedgeErr := e.placer.PlaceGTCSell(ctx, opp.YesTokenID, hedgePrice, shares); hedgeErr != nil {
			e.logger.Error("executor-emergency-hedge-failed",
				zap.String("token-id", opp.YesTokenID),
				zap.Float64("shares", shares),
				zap.Error(hedgeErr))
		}

		return TradeResult{
			Outcome: OutcomeFailedNoNotFilled,
			Reason:  fmt.Sprintf("NO FOK not filled: %s; emergency GTC sell placed", reason),
		}
	}

	profit := shares * (1.0 - yesResp.FillPrice - noResp.FillPrice)
	e.logger.Info("executor-trade-success",
		zap.String("question", opp.MarketQuestion),
		zap.Float64("yes-fill", yesResp.FillPrice),
		zap.Float64("no-fill", noResp.FillPrice),
		zap.Float64("profit-usdc", profit))

	return TradeResult{
		Outcome:      OutcomeSuccess,
		Reason:       "both sides filled",
		YesFillPrice: yesResp.FillPrice,
		NoFillPrice:  noResp.FillPrice,
		ProfitUSDC:   profit,
	}
}
