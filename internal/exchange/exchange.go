// Package exchange provides a unified read-only interface over the public
// market-data APIs of the crypto exchanges scanned for cross-exchange
// arbitrage.
package exchange

import (
	"context"
	"time"
)

// Client is the read-only exchange surface the scanner needs.
type Client interface {
	// Name returns the exchange identifier ("coinbase", "kraken").
	Name() string

	// LoadMarkets returns the exchange's tradable markets keyed by unified
	// "BASE/QUOTE" symbol.
	LoadMarkets(ctx context.Context) (map[string]Market, error)

	// FetchTickers returns 24h ticker data keyed by unified symbol.
	FetchTickers(ctx context.Context) (map[string]Ticker, error)

	// FetchOrderBook returns the order book for a unified symbol, truncated
	// to depth levels per side.
	FetchOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)
}

// Market describes one tradable pair.
type Market struct {
	Symbol string // unified "BASE/QUOTE"
	Active bool
	Spot   bool
}

// Ticker carries the 24h quote-currency volume used by pair discovery.
type Ticker struct {
	Symbol      string
	QuoteVolume float64
}

// PriceLevel is one order book level.
type PriceLevel struct {
	Price  float64
	Volume float64
}

// OrderBook is a depth-limited snapshot.
type OrderBook struct {
	Symbol    string
	Bids      []PriceLevel // descending price
	Asks      []PriceLevel // ascending price
	Timestamp time.Time
}

// BestBid returns the highest bid, or false on an empty side.
func (b *OrderBook) BestBid() (float64, bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}

	return b.Bids[0].Price, true
}

// BestAsk returns the lowest ask, or false on an empty side.
func (b *OrderBook) BestAsk() (float64, bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}

	return b.Asks[0].Price, true
}

// Fees is an exchange's taker/maker fee schedule as fractions.
type Fees struct {
	Taker float64
	Maker float64
}
