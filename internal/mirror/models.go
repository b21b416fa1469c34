// Package mirror tracks external wallets' position changes and mirrors them
// into a slot-limited virtual portfolio.
package mirror

import (
	"time"

	"github.com/polysignal/signal-engine/internal/polymarket"
)

const (
	// Slots is the number of concurrent mirrored positions.
	Slots = 40

	// SlotSizeUSDC is the fixed capital allocation per slot. Documented
	// constant, not a config knob.
	SlotSizeUSDC = 500.0

	// maxFailuresStale flags an address unhealthy after this many
	// consecutive non-429 failures.
	maxFailuresStale = 5

	// rateLimitPause is how long an address sits out after a 429.
	rateLimitPause = 60 * time.Second

	// resolvedHistoryCap bounds the resolved-trade list (newest first).
	resolvedHistoryCap = 50
)

// AddressStats accumulates per-address mirroring results.
type AddressStats struct {
	TradesMirrored int     `json:"trades_mirrored"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	TotalPnLUSDC   float64 `json:"total_pnl_usdc"`
}

// WinRate returns the win percentage over decided trades.
func (s *AddressStats) WinRate() float64 {
	total := s.Wins + s.Losses
	if total == 0 {
		return 0
	}

	return float64(s.Wins) / float64(total) * 100
}

// WatchedAddress is the per-wallet polling state. It is mutated only by its
// own poll step; the roster map itself is guarded by the monitor's mutex.
type WatchedAddress struct {
	Address      string
	Nickname     string
	Enabled      bool
	PollInterval time.Duration

	LastPollTS       time.Time
	LastSuccessTS    time.Time
	ConsecutiveFails int
	RateLimitedUntil time.Time

	// Token ID → last seen position. Nil until the baseline snapshot.
	LastPositions map[string]polymarket.Position
	IsInitialized bool

	Stats AddressStats

	// Poll diagnostics.
	LastPollCount  int
	LastPollNew    int
	LastPollClosed int
}

// IsStale reports whether the address has failed too many polls in a row.
func (a *WatchedAddress) IsStale() bool {
	return a.ConsecutiveFails >= maxFailuresStale
}

// IsRateLimited reports whether the address is inside a 429 cooldown.
func (a *WatchedAddress) IsRateLimited(now time.Time) bool {
	return now.Before(a.RateLimitedUntil)
}

// Health returns "stale", "rate_limited" or "ok".
func (a *WatchedAddress) Health(now time.Time) string {
	if a.IsStale() {
		return "stale"
	}
	if a.IsRateLimited(now) {
		return "rate_limited"
	}

	return "ok"
}

// Position is a mirrored open position occupying one slot.
type Position struct {
	ID             string  `json:"id"`
	MarketID       string  `json:"market_id"`
	MarketQuestion string  `json:"market_question"`
	TokenID        string  `json:"token_id"`
	Outcome        string  `json:"outcome"`
	EntryPrice     float64 `json:"entry_price"`
	CurrentPrice   float64 `json:"current_price"`
	Shares         float64 `json:"shares"`
	USDCDeployed   float64 `json:"usdc_deployed"`
	OpenedAt       time.Time `json:"opened_at"`
	TriggeredBy    string  `json:"triggered_by"`
	TriggeredByAddr string `json:"triggered_by_address"`
}

// UnrealizedPnL returns (current - entry) * shares.
func (p *Position) UnrealizedPnL() float64 {
	return (p.CurrentPrice - p.EntryPrice) * p.Shares
}

// UnrealizedPnLPct returns the unrealized move as a percentage of entry.
func (p *Position) UnrealizedPnLPct() float64 {
	if p.EntryPrice == 0 {
		return 0
	}

	return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
}

// QueuedTrade buffers an open signal while all slots are occupied.
type QueuedTrade struct {
	ID              string    `json:"id"`
	MarketID        string    `json:"market_id"`
	MarketQuestion  string    `json:"market_question"`
	TokenID         string    `json:"token_id"`
	Outcome         string    `json:"outcome"`
	EntryPrice      float64   `json:"entry_price"`
	TriggeredBy     string    `json:"triggered_by"`
	TriggeredByAddr string    `json:"triggered_by_address"`
	QueuedAt        time.Time `json:"queued_at"`
}

// ResolvedTrade is a closed position.
type ResolvedTrade struct {
	MarketQuestion string    `json:"market_question"`
	Outcome        string    `json:"outcome"`
	EntryPrice     float64   `json:"entry_price"`
	ExitPrice      float64   `json:"exit_price"`
	Shares         float64   `json:"shares"`
	USDCDeployed   float64   `json:"usdc_deployed"`
	PnLUSDC        float64   `json:"pnl_usdc"`
	Duration       float64   `json:"duration_s"`
	TriggeredBy    string    `json:"triggered_by"`
	ResolvedAt     time.Time `json:"resolved_at"`
	Result         string    `json:"result"` // WIN | LOSS | PUSH
}

// classifyResult applies the ε = 0.01 USDC win/loss boundary.
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
