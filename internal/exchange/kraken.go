package exchange

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/polysignal/signal-engine/pkg/fetcher"
	"go.uber.org/zap"
)

// DefaultKrakenHost is the public REST API base URL.
const DefaultKrakenHost = "https://api.kraken.com"

// Kraken reads public market data from the Kraken REST API. Symbols come
// back in Kraken's own alphabet (XBT, XDG); the scanner applies the renames.
type Kraken struct {
	host   string
	http   *fetcher.Fetcher
	logger *zap.Logger

	// wsname ("XBT/USD") → REST pair key ("XXBTZUSD"), filled by
	// LoadMarkets and used to address Depth/Ticker queries.
	pairKeys map[string]string
}

// NewKraken creates a Kraken client.
func NewKraken(host string, httpFetcher *fetcher.Fetcher, logger *zap.Logger) *Kraken {
	if host == "" {
		host = DefaultKrakenHost
	}

	return &Kraken{
		host:     host,
		http:     httpFetcher,
		logger:   logger,
		pairKeys: make(map[string]string),
	}
}

// Name returns "kraken".
func (k *Kraken) Name() string { return "kraken" }

type krakenAssetPair struct {
	WSName string `json:"wsname"` // "XBT/USD"
	Status string `json:"status"` // "online"
}

type krakenResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (k *Kraken) call(ctx context.Context, path string, params url.Values, result interface{}) error {
	var resp krakenResponse
	if err := k.http.GetJSON(ctx, k.host+path, params, &resp); err != nil {
		return err
	}
	if len(resp.Error) > 0 {
		return fmt.Errorf("kraken api error: %s", strings.Join(resp.Error, "; "))
	}

	return json.Unmarshal(resp.Result, result)
}

// LoadMarkets lists asset pairs keyed by wsname.
func (k *Kraken) LoadMarkets(ctx context.Context) (map[string]Market, error) {
	var pairs map[string]krakenAssetPair
	if err := k.call(ctx, "/0/public/AssetPairs", nil, &pairs); err != nil {
		return nil, fmt.Errorf("kraken load markets: %w", err)
	}

	markets := make(map[string]Market, len(pairs))
	for key, pair := range pairs {
		if pair.WSName == "" {
			continue
		}
		k.pairKeys[pair.WSName] = key
		markets[pair.WSName] = Market{
			Symbol: pair.WSName,
			Active: pair.Status == "" || pair.Status == "online",
			Spot:   true,
		}
	}

	return markets, nil
}

type krakenTicker struct {
	V []string `json:"v"` // volume [today, 24h] in base currency
	P []string `json:"p"` // vwap [today, 24h]
}

// FetchTickers derives 24h quote volume as base volume times 24h VWAP.
func (k *Kraken) FetchTickers(ctx context.Context) (map[string]Ticker, error) {
	var raw map[string]krakenTicker
	if err := k.call(ctx, "/0/public/Ticker", nil, &raw); err != nil {
		return nil, fmt.Errorf("kraken fetch tickers: %w", err)
	}

	keyToWS := make(map[string]string, len(k.pairKeys))
	for ws, key := range k.pairKeys {
		keyToWS[key] = ws
	}

	tickers := make(map[string]Ticker, len(raw))
	for key, t := range raw {
		symbol, ok := keyToWS[key]
		if !ok {
			continue
		}
		if len(t.V) < 2 || len(t.P) < 2 {
			continue
		}
		vol, _ := strconv.ParseFloat(t.V[1], 64)
		vwap, _ := strconv.ParseFloat(t.P[1], 64)
		tickers[symbol] = Ticker{
			Symbol:      symbol,
			QuoteVolume: vol * vwap,
		}
	}

	return tickers, nil
}

type krakenDepth struct {
	Bids [][]json.RawMessage `json:"bids"`
	Asks [][]json.RawMessage `json:"asks"`
}

// FetchOrderBook returns the depth for a wsname symbol.
func (k *Kraken) FetchOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	pairKey, ok := k.pairKeys[symbol]
	if !ok {
		pairKey = strings.ReplaceAll(symbol, "/", "")
	}

	var raw map[string]krakenDepth
	err := k.call(ctx, "/0/public/Depth", url.Values{
		"pair":  {pairKey},
		"count": {strconv.Itoa(depth)},
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("kraken order book %s: %w", symbol, err)
	}

	for _, book := range raw {
		return &OrderBook{
			Symbol:    symbol,
			Bids:      krakenLevels(book.Bids, depth),
			Asks:      krakenLevels(book.Asks, depth),
			Timestamp: time.Now(),
		}, nil
	}

	return nil, fmt.Errorf("kraken order book %s: empty result", symbol)
}

// krakenLevels decodes [price, volume, timestamp] triples where price and
// volume arrive as strings.
func krakenLevels(raw [][]json.RawMessage, depth int) []PriceLevel {
	if len(raw) > depth {
		raw = raw[:depth]
	}

	out := make([]PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		if len(lvl) < 2 {
			continue
		}
		price, ok1 := parseKrakenNumber(lvl[0])
		volume, ok2 := parseKrakenNumber(lvl[1])
		if !ok1 || !ok2 {
			continue
		}
		out = append(out, PriceLevel{Price: price, Volume: volume})
	}

	return out
}

func parseKrakenNumber(raw json.RawMessage) (float64, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return v, true
	}

	return 0, false
}
