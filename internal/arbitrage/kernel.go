// Package arbitrage holds the pure within-market arbitrage kernel: given the
// best ask on each side of a binary market, decide whether buying both sides
// locks in a payoff of 1 per share pair, and size the trade under the
// configured caps. The kernel performs no I/O and is deterministic; the
// monitor stamps IDs and timestamps on accepted opportunities.
package arbitrage

import (
	"fmt"
	"time"

	"github.com/polysignal/signal-engine/pkg/types"
)

// Opportunity is a detected within-market arbitrage.
type Opportunity struct {
	ID             string    `json:"id"`
	MarketID       string    `json:"market_id"`
	MarketQuestion string    `json:"market_question"`
	YesTokenID     string    `json:"yes_token_id"`
	NoTokenID      string    `json:"no_token_id"`
	YesAsk         float64   `json:"yes_ask"`
	NoAsk          float64   `json:"no_ask"`
	CombinedPct    float64   `json:"combined_pct"`       // (yes+no)*100, below 100 means arb
	ProfitPct      float64   `json:"expected_profit_pct"` // profit as % of capital deployed
	Shares         float64   `json:"shares"`
	YesCostUSDC    float64   `json:"yes_cost_usdc"`
	NoCostUSDC     float64   `json:"no_cost_usdc"`
	EstProfitUSDC  float64   `json:"estimated_profit_usdc"`
	DetectedAt     time.Time `json:"detected_at"`
}

// TotalCostUSDC returns the combined capital required for both legs.
func (o *Opportunity) TotalCostUSDC() float64 {
	return o.YesCostUSDC + o.NoCostUSDC
}

// String returns a compact human-readable summary.
func (o *Opportunity) String() string {
	return fmt.Sprintf(
		"Opportunity YES=%.4f NO=%.4f combined=%.2f%% profit=%.2f%% shares=%.4f est=$%.4f | %s",
		o.YesAsk, o.NoAsk, o.CombinedPct, o.ProfitPct, o.Shares, o.EstProfitUSDC,
		truncate(o.MarketQuestion, 60),
	)
}

// Caps bound the size of a single arbitrage trade.
type Caps struct {
	MaxTradeSizeUSDC    float64 // per-side spend cap
	MaxRiskPerTradeUSDC float64 // total spend cap across both sides
	MinProfitPct        float64 // reject below this expected profit %
}

// Find returns an Opportunity when the combined ask price is below 1.0 and
// the expected profit clears the threshold.
//
// Shares are equal on both sides so exactly one side pays out 1 USDC/share at
// settlement; size is the minimum allowed by the per-side cap on each leg and
// the total risk cap.
func Find(market *types.Market, yesAsk, noAsk float64, caps Caps) (*Opportunity, bool) {
	combined := yesAsk + noAsk

	if combined >= 1.0 {
		RejectedTotal.WithLabelValues("combined_at_or_above_one").Inc()
		return nil, false
	}

	profitPct := (1.0 - combined) / combined * 100
	if profitPct < caps.MinProfitPct {
		RejectedTotal.WithLabelValues("below_profit_threshold").Inc()
		return nil, false
	}

	maxByYes := caps.MaxTradeSizeUSDC / yesAsk
	maxByNo := caps.MaxTradeSizeUSDC / noAsk
	maxByRisk := caps.MaxRiskPerTradeUSDC / combined

	shares := maxByYes
	if maxByNo < shares {
		shares = maxByNo
	}
	if maxByRisk < shares {
		shares = maxByRisk
	}

	yesID, noID := ExtractTokenIDs(market)

	question := market.Question
	if question == "" {
		question = "Unknown market"
	}

	DetectedTotal.Inc()
	ProfitPctHistogram.Observe(profitPct)

	return &Opportunity{
		MarketID:       market.ConditionID,
		MarketQuestion: question,
		YesTokenID:     yesID,
		NoTokenID:      noID,
		YesAsk:         yesAsk,
		NoAsk:          noAsk,
		CombinedPct:    combined * 100,
		ProfitPct:      profitPct,
		Shares:         shares,
		YesCostUSDC:    shares * yesAsk,
		NoCostUSDC:     shares * noAsk,
		EstProfitUSDC:  shares * (1.0 - combined),
	}, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}
