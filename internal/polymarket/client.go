// Package polymarket is the HTTP client for the prediction-market APIs:
// Gamma (market discovery and pricing), CLOB (order books) and the data API
// (wallet positions and activity).
package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/polysignal/signal-engine/pkg/fetcher"
	"github.com/polysignal/signal-engine/pkg/types"
	"go.uber.org/zap"
)

// Client wraps the three prediction-market API hosts behind one type.
type Client struct {
	gammaHost string
	clobHost  string
	dataHost  string
	http      *fetcher.Fetcher
	logger    *zap.Logger
}

// Config holds client configuration.
type Config struct {
	GammaHost string
	ClobHost  string
	DataHost  string
	Fetcher   *fetcher.Fetcher
	Logger    *zap.Logger
}

// NewClient creates a Polymarket API client.
func NewClient(cfg Config) *Client {
	return &Client{
		gammaHost: strings.TrimSuffix(cfg.GammaHost, "/"),
		clobHost:  strings.TrimSuffix(cfg.ClobHost, "/"),
		dataHost:  strings.TrimSuffix(cfg.DataHost, "/"),
		http:      cfg.Fetcher,
		logger:    cfg.Logger,
	}
}

// GetSportsMarkets returns deduplicated active markets matching any of the
// given tags. A failing tag fetch skips that tag; the rest still return.
func (c *Client) GetSportsMarkets(ctx context.Context, tags []string) []types.Market {
	var all []types.Market

	for _, tag := range tags {
		var batch []types.Market
		err := c.http.GetJSON(ctx, c.gammaHost+"/markets", url.Values{
			"tag":    {tag},
			"active": {"true"},
			"closed": {"false"},
			"limit":  {"100"},
		}, &batch)
		if err != nil {
			c.logger.Error("gamma-markets-fetch-failed",
				zap.String("tag", tag),
				zap.Error(err))
			continue
		}
		all = append(all, batch...)
	}

	seen := make(map[string]struct{}, len(all))
	unique := make([]types.Market, 0, len(all))
	for _, m := range all {
		if m.ConditionID == "" {
			continue
		}
		if _, ok := seen[m.ConditionID]; ok {
			continue
		}
		seen[m.ConditionID] = struct{}{}
		unique = append(unique, m)
	}

	return unique
}

// GetMarketsByTag returns active markets for a single tag without dedup.
func (c *Client) GetMarketsByTag(ctx context.Context, tag string, limit int) ([]types.Market, error) {
	var markets []types.Market
	err := c.http.GetJSON(ctx, c.gammaHost+"/markets", url.Values{
		"tag":    {tag},
		"active": {"true"},
		"limit":  {fmt.Sprintf("%d", limit)},
	}, &markets)
	if err != nil {
		return nil, fmt.Errorf("fetch markets for tag %q: %w", tag, err)
	}

	return markets, nil
}

// GetMarketsByTokenIDs returns the markets carrying any of the given CLOB
// token IDs. Callers batch IDs (≤20) to stay within URL limits.
func (c *Client) GetMarketsByTokenIDs(ctx context.Context, tokenIDs []string) ([]types.Market, error) {
	var markets []types.Market
	err := c.http.GetJSON(ctx, c.gammaHost+"/markets", url.Values{
		"clobTokenIds": {strings.Join(tokenIDs, ",")},
	}, &markets)
	if err != nil {
		return nil, fmt.Errorf("fetch markets by token ids: %w", err)
	}

	return markets, nil
}

// GetOrderBook returns the order book for a token.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*types.OrderBook, error) {
	var book types.OrderBook
	err := c.http.GetJSON(ctx, c.clobHost+"/book", url.Values{
		"token_id": {tokenID},
	}, &book)
	if err != nil {
		return nil, fmt.Errorf("fetch order book for token %s: %w", tokenID, err)
	}

	return &book, nil
}

// GetBestAsk returns the lowest ask price for a token. The bool is false when
// the book is empty or the fetch failed.
func (c *Client) GetBestAsk(ctx context.Context, tokenID string) (float64, bool) {
	book, err := c.GetOrderBook(ctx, tokenID)
	if err != nil {
		c.logger.Error("best-ask-fetch-failed",
			zap.String("token-id", tokenID),
			zap.Error(err))
		return 0, false
	}

	return book.BestAsk()
}

// GetAvailableLiquidityUSDC sums the USDC value of ask levels priced at or
// below maxPrice, stopping early once targetUSDC is reached.
func (c *Client) GetAvailableLiquidityUSDC(ctx context.Context, tokenID string, maxPrice, targetUSDC float64) float64 {
	book, err := c.GetOrderBook(ctx, tokenID)
	if err != nil {
		c.logger.Error("liquidity-fetch-failed",
			zap.String("token-id", tokenID),
			zap.Error(err))
		return 0
	}

	return book.LiquidityAtOrBelow(maxPrice, targetUSDC)
}

// Position is a wallet position from the data API.
type Position struct {
	Asset       string  `json:"asset"`
	ConditionID string  `json:"conditionId"`
	Title       string  `json:"title"`
	Outcome     string  `json:"outcome"`
	Size        float64 `json:"size"`
	CurPrice    float64 `json:"curPrice"`
	AvgPrice    float64 `json:"avgPrice"`
}

// GetPositions fetches a wallet's active positions. The endpoint serves
// either a bare list or a {positions: [...]} envelope; both are accepted.
// Rate limiting surfaces as types.ErrRateLimited.
func (c *Client) GetPositions(ctx context.Context, address string) ([]Position, error) {
	var raw json.RawMessage
	err := c.http.GetJSON(ctx, c.dataHost+"/positions", url.Values{
		"user":          {address},
		"sizeThreshold": {"0.01"},
		"redeemable":    {"false"},
		"limit":         {"500"},
	}, &raw)
	if err != nil {
		return nil, err
	}

	return decodePositions(raw)
}

func decodePositions(raw json.RawMessage) ([]Position, error) {
	var list []Position
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var envelope struct {
		Positions []Position `json:"positions"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode positions payload: %w", err)
	}

	return envelope.Positions, nil
}

// Activity is a single trade-activity record from the data API.
type Activity struct {
	Type      string  `json:"type"`
	Side      string  `json:"side"`
	Title     string  `json:"title"`
	Outcome   string  `json:"outcome"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	USDCSize  float64 `json:"usdcSize"`
	Timestamp int64   `json:"timestamp"`
}

// GetActivity fetches a wallet's recent trade activity, trying /activity and
// falling back to /trades. Accepts bare lists or {data|activities|trades}
// envelopes.
func (c *Client) GetActivity(ctx context.Context, address string, limit int) []Activity {
	for _, path := range []string{"/activity", "/trades"} {
		var raw json.RawMessage
		err := c.http.GetJSON(ctx, c.dataHost+path, url.Values{
			"user":  {address},
			"limit": {fmt.Sprintf("%d", limit)},
		}, &raw)
		if err != nil {
			c.logger.Debug("activity-fetch-failed",
				zap.String("path", path),
				zap.Error(err))
			continue
		}

		if activities, ok := decodeActivity(raw); ok {
			return activities
		}
	}

	return nil
}

func decodeActivity(raw json.RawMessage) ([]Activity, bool) {
	var list []Activity
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}

	var envelope struct {
		Data       []Activity `json:"data"`
		Activities []Activity `json:"activities"`
		Trades     []Activity `json:"trades"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, false
	}

	switch {
	case len(envelope.Data) > 0:
		return envelope.Data, true
	case len(envelope.Activities) > 0:
		return envelope.Activities, true
	case len(envelope.Trades) > 0:
		return envelope.Trades, true
	}

	return nil, true
}
