// Package cryptoarb scans a pair of crypto exchanges for cross-exchange
// arbitrage: discover the tradable overlap once at startup, then repeatedly
// fetch both books per pair under bounded concurrency, evaluate both trade
// directions with VWAP-depth fee/slippage accounting, and paper-execute
// anything clearing the profit threshold.
package cryptoarb

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/polysignal/signal-engine/internal/exchange"
	"github.com/polysignal/signal-engine/pkg/bus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	// fetchConcurrency bounds in-flight order-book requests per exchange.
	fetchConcurrency = 5

	// minFillUSDC rejects opportunities whose fillable size is dust.
	minFillUSDC = 10.0

	tradesCap        = 500
	opportunitiesCap = 200
	pnlHistoryCap    = 500
	topPairsCap      = 10
)

// symbolRenames maps exchange-local currency codes to unified ones.
var symbolRenames = map[string]map[string]string{
	"kraken": {"XBT": "BTC", "XDG": "DOGE"},
}

// Config holds scanner configuration.
type Config struct {
	StartingBalanceUSDC float64
	ScanInterval        time.Duration
	MinProfitPct        float64
	MaxPositionUSDC     float64
	MaxPositionPct      float64
	MinVolumeUSDC       float64
	MaxVolumeUSDC       float64 // 0 means unbounded
	OrderBookDepth      int
	MaxBookAge          time.Duration
	Fees                map[string]exchange.Fees
	Logger              *zap.Logger
}

// PairScan is the per-pair, per-direction evaluation result.
type PairScan struct {
	Symbol       string  `json:"sym"`
	BuyExchange  string  `json:"buy_ex"`
	SellExchange string  `json:"sell_ex"`
	BuyAsk       float64 `json:"buy_ask"`
	SellBid      float64 `json:"sell_bid"`
	RawSpreadPct float64 `json:"raw_pct"`
	FeePct       float64 `json:"fee_pct"`
	SlippagePct  float64 `json:"slip_pct"`
	NetPct       float64 `json:"net_pct"`
	FilledUSDC   float64 `json:"filled_usdc"`
	EstProfit    float64 `json:"est_usd"`
	Quality      float64 `json:"quality"`
	Timestamp    int64   `json:"ts"`
}

// Trade is a simulated cross-exchange execution.
type Trade struct {
	ID           string  `json:"id"`
	Symbol       string  `json:"sym"`
	BuyExchange  string  `json:"buy_ex"`
	SellExchange string  `json:"sell_ex"`
	BuyPrice     float64 `json:"buy_price"`
	SellPrice    float64 `json:"sell_price"`
	PositionUSDC float64 `json:"pos_usdc"`
	PnLUSDC      float64 `json:"pnl_usdc"`
	NetPct       float64 `json:"net_pct"`
	Timestamp    int64   `json:"ts"`
}

// PnLPoint is one point of the cumulative P&L series.
type PnLPoint struct {
	Timestamp int64   `json:"ts"`
	PnL       float64 `json:"pnl"`
}

// Bot is the cross-exchange scanner.
type Bot struct {
	exchanges []exchange.Client
	bus       *bus.Bus
	cfg       Config
	logger    *zap.Logger

	// symbols[exchange][unified] = exchange-local symbol
	symbols map[string]map[string]string

	mu             sync.Mutex
	pairs          []string // unified symbols, sweet-spot first
	scanCount      int
	oppCount       int
	tradeCount     int
	balance        float64
	realizedPnL    float64
	trades         []Trade
	opportunities  []PairScan
	pnlHistory     []PnLPoint
	topPairs       map[string]int
	lastScanPairs  []PairScan
	exchangeHealth map[string]bool
	startTS        time.Time
}

// NewBot creates a scanner over the given exchanges (typically two).
func NewBot(cfg Config, exchanges []exchange.Client, eventBus *bus.Bus) *Bot {
	health := make(map[string]bool, len(exchanges))
	for _, ex := range exchanges {
		health[ex.Name()] = true
	}

	return &Bot{
		exchanges:      exchanges,
		bus:            eventBus,
		cfg:            cfg,
		logger:         cfg.Logger,
		symbols:        make(map[string]map[string]string),
		balance:        cfg.StartingBalanceUSDC,
		topPairs:       make(map[string]int),
		exchangeHealth: health,
	}
}

// Run discovers pairs once, then scans until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.startTS = time.Now()
	b.mu.Unlock()
	b.emitInitialState()

	pairs, err := b.discoverPairs(ctx)
	if err != nil {
		b.logger.Error("cryptoarb-discovery-failed", zap.Error(err))
	}
	b.mu.Lock()
	b.pairs = pairs
	b.mu.Unlock()
	b.emitOverview()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("cryptoarb-stopping")
			return ctx.Err()
		default:
		}

		b.scan(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.cfg.ScanInterval):
		}
	}
}

// discoverPairs intersects both exchanges' active spot symbols (after
// renames), filters by both-side 24h quote volume, and orders sweet-spot
// pairs (both sides inside the volume window) ahead of high-volume ones.
func (b *Bot) discoverPairs(ctx context.Context) ([]string, error) {
	type exchangeData struct {
		name    string
		symbols map[string]string // unified → local
		tickers map[string]exchange.Ticker
	}

	data := make([]exchangeData, 0, len(b.exchanges))
	for _, ex := range b.exchanges {
		markets, err := ex.LoadMarkets(ctx)
		if err != nil {
			return nil, err
		}

		unified := make(map[string]string, len(markets))
		for local, mkt := range markets {
			if !mkt.Active || !mkt.Spot || !strings.Contains(local, "/") {
				continue
			}
			unified[b.unifySymbol(ex.Name(), local)] = local
		}

		tickers, err := ex.FetchTickers(ctx)
		if err != nil {
			b.logger.Warn("cryptoarb-tickers-failed",
				zap.String("exchange", ex.Name()),
				zap.Error(err))
			tickers = map[string]exchange.Ticker{}
		}

		data = append(data, exchangeData{name: ex.Name(), symbols: unified, tickers: tickers})
		b.symbols[ex.Name()] = unified
	}

	if len(data) < 2 {
		return nil, nil
	}

	maxVol := b.cfg.MaxVolumeUSDC
	if maxVol <= 0 {
		maxVol = math.Inf(1)
	}

	var sweetSpot, highVolume []string

	common := make([]string, 0)
	for sym := range data[0].symbols {
		onAll := true
		for _, d := range data[1:] {
			if _, ok := d.symbols[sym]; !ok {
				onAll = false
				break
			}
		}
		if onAll {
			common = append(common, sym)
		}
	}
	sort.Strings(common)

	for _, sym := range common {
		qualified := true
		sweet := true
		for _, d := range data {
			vol := d.tickers[d.symbols[sym]].QuoteVolume
			if vol < b.cfg.MinVolumeUSDC {
				qualified = false
				break
			}
			if vol > maxVol {
				sweet = false
			}
		}
		if !qualified {
			continue
		}
		if sweet {
			sweetSpot = append(sweetSpot, sym)
		} else {
			highVolume = append(highVolume, sym)
		}
	}

	b.logger.Info("cryptoarb-pairs-discovered",
		zap.Int("common", len(common)),
		zap.Int("sweet-spot", len(sweetSpot)),
		zap.Int("high-volume", len(highVolume)))

	// Sweet-spot pairs first so the scan reaches them before the deadline.
	return append(sweetSpot, highVolume...), nil
}

func (b *Bot) unifySymbol(exchangeName, local string) string {
	renames, ok := symbolRenames[exchangeName]
	if !ok {
		return local
	}

	unified := local
	for from, to := range renames {
		unified = strings.ReplaceAll(unified, from, to)
	}

	return unified
}

type bookKey struct {
	exchange string
	symbol   string
}

// scan fetches both books for every pair under per-exchange semaphores and
// evaluates both directions.
func (b *Bot) scan(ctx context.Context) {
	b.mu.Lock()
	pairs := make([]string, len(b.pairs))
	copy(pairs, b.pairs)
	b.mu.Unlock()

	if len(pairs) == 0 {
		return
	}

	deadline := time.Duration(2*len(pairs)) * time.Second
	if deadline < 60*time.Second {
		deadline = 60 * time.Second
	}
	scanCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	books := make(map[bookKey]*exchange.OrderBook)
	success := make(map[string]bool, len(b.exchanges))
	var booksMu sync.Mutex

	g, gctx := errgroup.WithContext(scanCtx)
	sems := make(map[string]*semaphore.Weighted, len(b.exchanges))
	for _, ex := range b.exchanges {
		sems[ex.Name()] = semaphore.NewWeighted(fetchConcurrency)
	}

	for _, ex := range b.exchanges {
		ex := ex
		sem := sems[ex.Name()]
		local := b.symbols[ex.Name()]
		for _, sym := range pairs {
			sym := sym
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return nil
				}
				defer sem.Release(1)

				book, err := ex.FetchOrderBook(gctx, local[sym], b.cfg.OrderBookDepth)
				booksMu.Lock()
				defer booksMu.Unlock()
				if err != nil {
					b.logger.Debug("cryptoarb-book-fetch-failed",
						zap.String("exchange", ex.Name()),
						zap.String("symbol", sym),
						zap.Error(err))
					return nil
				}
				book.Symbol = sym
				books[bookKey{ex.Name(), sym}] = book
				success[ex.Name()] = true
				return nil
			})
		}
	}
	_ = g.Wait()

	// Exchange health is the OR of per-pair fetch successes this scan.
	b.mu.Lock()
	for _, ex := range b.exchanges {
		b.exchangeHealth[ex.Name()] = success[ex.Name()]
	}
	b.scanCount++
	scanCount := b.scanCount
	health := make(map[string]bool, len(b.exchangeHealth))
	for k, v := range b.exchangeHealth {
		health[k] = v
	}
	b.mu.Unlock()

	b.bus.Publish("arb_exchange_health", health)
	ScansTotal.Inc()

	scanPairs := b.evaluate(pairs, books)

	sort.Slice(scanPairs, func(i, j int) bool { return scanPairs[i].Quality > scanPairs[j].Quality })

	b.mu.Lock()
	b.lastScanPairs = scanPairs
	b.mu.Unlock()

	if len(scanPairs) > 0 {
		best := scanPairs[0]
		b.logger.Info("cryptoarb-scan-complete",
			zap.Int("scan", scanCount),
			zap.Int("pairs", len(pairs)),
			zap.String("best-symbol", best.Symbol),
			zap.Float64("best-quality", best.Quality),
			zap.Float64("best-net-pct", best.NetPct))
	} else {
		b.logger.Info("cryptoarb-scan-empty", zap.Int("scan", scanCount))
	}

	b.bus.Publish("arb_quality_pairs", map[string]interface{}{
		"pairs":      headPairs(scanPairs, 10),
		"scan_count": scanCount,
	})
	b.bus.Publish("arb_scan_result", map[string]interface{}{
		"pairs":       headPairs(scanPairs, 30),
		"scan_count":  scanCount,
		"total_pairs": len(pairs),
	})
	b.emitOverview()
}

// evaluate checks both (buy, sell) directions for every pair with both
// books present and fresh.
func (b *Bot) evaluate(pairs []string, books map[bookKey]*exchange.OrderBook) []PairScan {
	now := time.Now()
	var scanPairs []PairScan

	for _, sym := range pairs {
		for i, buyEx := range b.exchanges {
			for j, sellEx := range b.exchanges {
				if i == j {
					continue
				}

				buyBook := books[bookKey{buyEx.Name(), sym}]
				sellBook := books[bookKey{sellEx.Name(), sym}]
				if buyBook == nil || sellBook == nil {
					continue
				}
				if now.Sub(buyBook.Timestamp) > b.cfg.MaxBookAge ||
					now.Sub(sellBook.Timestamp) > b.cfg.MaxBookAge {
					continue
				}

				result, ok := b.evaluateDirection(sym, buyEx.Name(), sellEx.Name(), buyBook, sellBook, now)
				if !ok {
					continue
				}
				scanPairs = append(scanPairs, result)

				if result.NetPct >= b.cfg.MinProfitPct {
					b.handleOpportunity(result)
				}
			}
		}
	}

	return scanPairs
}

func (b *Bot) evaluateDirection(sym, buyName, sellName string, buyBook, sellBook *exchange.OrderBook, now time.Time) (PairScan, bool) {
	buyAsk, okAsk := buyBook.BestAsk()
	sellBid, okBid := sellBook.BestBid()
	if !okAsk || !okBid || sellBid <= buyAsk {
		return PairScan{}, false
	}

	rawSpread := (sellBid - buyAsk) / buyAsk * 100
	feePct := (b.fees(buyName).Taker + b.fees(sellName).Maker) * 100

	b.mu.Lock()
	balance := b.balance
	b.mu.Unlock()
	intended := math.Min(balance*b.cfg.MaxPositionPct, b.cfg.MaxPositionUSDC)

	buyVWAP, buyFill := VWAPBuy(buyBook.Asks, intended)
	sellVWAP, sellFill := VWAPSell(sellBook.Bids, intended)
	actual := math.Min(math.Min(buyFill, sellFill), intended)
	if actual < minFillUSDC {
		return PairScan{}, false
	}

	slipBuy := 0.0
	if buyAsk > 0 && !math.IsInf(buyVWAP, 1) {
		slipBuy = math.Abs(buyVWAP-buyAsk) / buyAsk * 100
	}
	slipSell := 0.0
	if sellBid > 0 {
		slipSell = math.Abs(sellVWAP-sellBid) / sellBid * 100
	}
	slippage := slipBuy + slipSell

	net := rawSpread - feePct - slippage

	quality := 0.0
	if feePct > 0 {
		quality = rawSpread / feePct
	}

	return PairScan{
		Symbol:       sym,
		BuyExchange:  buyName,
		SellExchange: sellName,
		BuyAsk:       buyAsk,
		SellBid:      sellBid,
		RawSpreadPct: rawSpread,
		FeePct:       feePct,
		SlippagePct:  slippage,
		NetPct:       net,
		FilledUSDC:   actual,
		EstProfit:    actual * net / 100,
		Quality:      quality,
		Timestamp:    now.Unix(),
	}, true
}

func (b *Bot) handleOpportunity(scan PairScan) {
	opp := scan

	b.mu.Lock()
	b.oppCount++
	b.topPairs[scan.Symbol]++
	b.opportunities = append(b.opportunities, opp)
	if len(b.opportunities) > opportunitiesCap {
		b.opportunities = b.opportunities[len(b.opportunities)-opportunitiesCap:]
	}
	b.mu.Unlock()

	OpportunitiesTotal.Inc()
	b.bus.Publish("arb_opportunity", map[string]interface{}{
		"opp_id":      uuid.New().String()[:8],
		"detected_at": time.Now().Unix(),
		"scan":        opp,
	})
	b.bus.Publish("arb_top_pairs", map[string]interface{}{"pairs": b.TopPairs()})

	b.executePaperTrade(scan)
}

// executePaperTrade simulates the two legs: taker buy with the fee off the
// top, maker sell with the fee off the proceeds.
func (b *Bot) executePaperTrade(scan PairScan) {
	b.mu.Lock()
	position := math.Min(b.balance*b.cfg.MaxPositionPct, b.cfg.MaxPositionUSDC)
	position = math.Min(position, b.balance)
	if position < minFillUSDC || scan.BuyAsk <= 0 {
		b.mu.Unlock()
		return
	}

	buyFee := position * b.fees(scan.BuyExchange).Taker
	qty := (position - buyFee) / scan.BuyAsk
	proceeds := qty * scan.SellBid
	sellFee := proceeds * b.fees(scan.SellExchange).Maker
	pnl := (proceeds - sellFee) - position

	b.balance += pnl
	b.realizedPnL += pnl
	b.tradeCount++

	trade := Trade{
		ID:           uuid.New().String()[:8],
		Symbol:       scan.Symbol,
		BuyExchange:  scan.BuyExchange,
		SellExchange: scan.SellExchange,
		BuyPrice:     scan.BuyAsk,
		SellPrice:    scan.SellBid,
		PositionUSDC: position,
		PnLUSDC:      pnl,
		NetPct:       scan.NetPct,
		Timestamp:    time.Now().Unix(),
	}
	b.trades = append(b.trades, trade)
	if len(b.trades) > tradesCap {
		b.trades = b.trades[len(b.trades)-tradesCap:]
	}

	b.pnlHistory = append(b.pnlHistory, PnLPoint{Timestamp: trade.Timestamp, PnL: b.realizedPnL})
	if len(b.pnlHistory) > pnlHistoryCap {
		b.pnlHistory = b.pnlHistory[len(b.pnlHistory)-pnlHistoryCap:]
	}
	history := make([]PnLPoint, len(b.pnlHistory))
	copy(history, b.pnlHistory)
	b.mu.Unlock()

	TradesTotal.Inc()
	b.logger.Info("cryptoarb-paper-trade",
		zap.String("symbol", scan.Symbol),
		zap.String("buy-exchange", scan.BuyExchange),
		zap.String("sell-exchange", scan.SellExchange),
		zap.Float64("pnl-usdc", pnl))

	b.bus.Publish("arb_trade", trade)
	b.bus.Publish("arb_pnl", map[string]interface{}{"history": history})
}

func (b *Bot) fees(exchangeName string) exchange.Fees {
	return b.cfg.Fees[exchangeName]
}

// Overview is the stats-bar snapshot.
type Overview struct {
	Balance     float64 `json:"balance"`
	RealizedPnL float64 `json:"realized_pnl"`
	ScanCount   int     `json:"scan_count"`
	OppCount    int     `json:"opp_count"`
	TradeCount  int     `json:"trade_count"`
	PairCount   int     `json:"pair_count"`
	StartTS     int64   `json:"start_ts"`
}

// GetOverview returns the stats snapshot.
func (b *Bot) GetOverview() Overview {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Overview{
		Balance:     b.balance,
		RealizedPnL: b.realizedPnL,
		ScanCount:   b.scanCount,
		OppCount:    b.oppCount,
		TradeCount:  b.tradeCount,
		PairCount:   len(b.pairs),
		StartTS:     b.startTS.Unix(),
	}
}

// TopPair is one entry of the by-opportunity-count ranking.
type TopPair struct {
	Symbol string `json:"sym"`
	Count  int    `json:"count"`
}

// TopPairs returns the ten most frequently arbitraged pairs.
func (b *Bot) TopPairs() []TopPair {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]TopPair, 0, len(b.topPairs))
	for sym, count := range b.topPairs {
		out = append(out, TopPair{Symbol: sym, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Symbol < out[j].Symbol
	})
	if len(out) > topPairsCap {
		out = out[:topPairsCap]
	}

	return out
}

// BotSnapshot is the REST view of the scanner.
type BotSnapshot struct {
	Overview       Overview        `json:"overview"`
	Trades         []Trade         `json:"trades"`
	Opportunities  []PairScan      `json:"opportunities"`
	ScanPairs      []PairScan      `json:"scan_pairs"`
	ExchangeHealth map[string]bool `json:"exchange_health"`
	TopPairs       []TopPair       `json:"top_pairs"`
	PnLHistory     []PnLPoint      `json:"pnl_history"`
}

// Snapshot returns the current state for the dashboard API.
func (b *Bot) Snapshot() BotSnapshot {
	overview := b.GetOverview()
	top := b.TopPairs()

	b.mu.Lock()
	defer b.mu.Unlock()

	snap := BotSnapshot{
		Overview:       overview,
		Trades:         tailTrades(b.trades, 100),
		Opportunities:  tailScans(b.opportunities, 50),
		ScanPairs:      append([]PairScan(nil), b.lastScanPairs...),
		ExchangeHealth: make(map[string]bool, len(b.exchangeHealth)),
		TopPairs:       top,
		PnLHistory:     append([]PnLPoint(nil), b.pnlHistory...),
	}
	for k, v := range b.exchangeHealth {
		snap.ExchangeHealth[k] = v
	}

	return snap
}

// Reset clears all accumulated state back to the starting balance.
func (b *Bot) Reset() {
	b.mu.Lock()
	b.balance = b.cfg.StartingBalanceUSDC
	b.realizedPnL = 0
	b.trades = nil
	b.opportunities = nil
	b.topPairs = make(map[string]int)
	b.pnlHistory = nil
	b.scanCount = 0
	b.oppCount = 0
	b.tradeCount = 0
	b.startTS = time.Now()
	startTS := b.startTS
	b.mu.Unlock()

	b.emitOverview()
	b.bus.Publish("arb_start", map[string]interface{}{"ts": startTS.Unix()})
	b.bus.Publish("arb_top_pairs", map[string]interface{}{"pairs": []TopPair{}})
	b.bus.Publish("arb_pnl", map[string]interface{}{"history": []PnLPoint{}})
}

func (b *Bot) emitOverview() {
	b.bus.Publish("arb_overview", b.GetOverview())
}

func (b *Bot) emitInitialState() {
	b.mu.Lock()
	startTS := b.startTS
	health := make(map[string]bool, len(b.exchangeHealth))
	for k, v := range b.exchangeHealth {
		health[k] = v
	}
	b.mu.Unlock()

	b.bus.Publish("arb_start", map[string]interface{}{"ts": startTS.Unix()})
	b.bus.Publish("arb_overview", b.GetOverview())
	b.bus.Publish("arb_exchange_health", health)
	b.bus.Publish("arb_top_pairs", map[string]interface{}{"pairs": []TopPair{}})
	b.bus.Publish("arb_pnl", map[string]interface{}{"history": []PnLPoint{}})
}

func headPairs(pairs []PairScan, n int) []PairScan {
	if len(pairs) > n {
		pairs = pairs[:n]
	}

	return append([]PairScan(nil), pairs...)
}

func tailTrades(trades []Trade, n int) []Trade {
	if len(trades) > n {
		trades = trades[len(trades)-n:]
	}

	return append([]Trade(nil), trades...)
}

func tailScans(scans []PairScan, n int) []PairScan {
	if len(scans) > n {
		scans = scans[len(scans)-n:]
	}

	return append([]PairScan(nil), scans...)
}
