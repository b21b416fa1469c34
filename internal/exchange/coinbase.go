package exchange

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/polysignal/signal-engine/pkg/fetcher"
	"go.uber.org/zap"
)

// DefaultCoinbaseHost is the Advanced Trade public API base URL.
const DefaultCoinbaseHost = "https://api.coinbase.com"

// Coinbase reads public market data from the Advanced Trade API.
type Coinbase struct {
	host   string
	http   *fetcher.Fetcher
	logger *zap.Logger
}

// NewCoinbase creates a Coinbase client.
func NewCoinbase(host string, httpFetcher *fetcher.Fetcher, logger *zap.Logger) *Coinbase {
	if host == "" {
		host = DefaultCoinbaseHost
	}

	return &Coinbase{host: host, http: httpFetcher, logger: logger}
}

// Name returns "coinbase".
func (c *Coinbase) Name() string { return "coinbase" }

type coinbaseProduct struct {
	ProductID   string `json:"product_id"` // "BTC-USD"
	Status      string `json:"status"`     // "online"
	ProductType string `json:"product_type"`
	Price       string `json:"price"`
	Volume24h   string `json:"volume_24h"` // base-currency volume
}

type coinbaseProductsResponse struct {
	Products []coinbaseProduct `json:"products"`
}

// LoadMarkets lists products, mapping "BTC-USD" to "BTC/USD".
func (c *Coinbase) LoadMarkets(ctx context.Context) (map[string]Market, error) {
	var resp coinbaseProductsResponse
	err := c.http.GetJSON(ctx, c.host+"/api/v3/brokerage/market/products", nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("coinbase load markets: %w", err)
	}

	markets := make(map[string]Market, len(resp.Products))
	for _, p := range resp.Products {
		symbol := coinbaseSymbol(p.ProductID)
		if symbol == "" {
			continue
		}
		markets[symbol] = Market{
			Symbol: symbol,
			Active: p.Status == "online",
			Spot:   p.ProductType == "" || p.ProductType == "SPOT",
		}
	}

	return markets, nil
}

// FetchTickers derives 24h quote volume from each product's base volume and
// last price.
func (c *Coinbase) FetchTickers(ctx context.Context) (map[string]Ticker, error) {
	var resp coinbaseProductsResponse
	err := c.http.GetJSON(ctx, c.host+"/api/v3/brokerage/market/products", nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("coinbase fetch tickers: %w", err)
	}

	tickers := make(map[string]Ticker, len(resp.Products))
	for _, p := range resp.Products {
		symbol := coinbaseSymbol(p.ProductID)
		if symbol == "" {
			continue
		}
		price, _ := strconv.ParseFloat(p.Price, 64)
		baseVol, _ := strconv.ParseFloat(p.Volume24h, 64)
		tickers[symbol] = Ticker{
			Symbol:      symbol,
			QuoteVolume: price * baseVol,
		}
	}

	return tickers, nil
}

type coinbaseBookResponse struct {
	PriceBook struct {
		Bids []coinbaseBookLevel `json:"bids"`
		Asks []coinbaseBookLevel `json:"asks"`
		Time time.Time           `json:"time"`
	} `json:"pricebook"`
}

type coinbaseBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// FetchOrderBook returns the product book for a unified symbol.
func (c *Coinbase) FetchOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	productID := strings.ReplaceAll(symbol, "/", "-")

	var resp coinbaseBookResponse
	err := c.http.GetJSON(ctx, c.host+"/api/v3/brokerage/market/product_book", url.Values{
		"product_id": {productID},
		"limit":      {strconv.Itoa(depth)},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("coinbase order book %s: %w", symbol, err)
	}

	ts := resp.PriceBook.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return &OrderBook{
		Symbol:    symbol,
		Bids:      coinbaseLevels(resp.PriceBook.Bids, depth),
		Asks:      coinbaseLevels(resp.PriceBook.Asks, depth),
		Timestamp: ts,
	}, nil
}

func coinbaseLevels(raw []coinbaseBookLevel, depth int) []PriceLevel {
	if len(raw) > depth {
		raw = raw[:depth]
	}

	out := make([]PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		price, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(lvl.Size, 64)
		if err != nil {
			continue
		}
		out = append(out, PriceLevel{Price: price, Volume: size})
	}

	return out
}

func coinbaseSymbol(productID string) string {
	parts := strings.Split(productID, "-")
	if len(parts) != 2 {
		return ""
	}

	return parts[0] + "/" + parts[1]
}
