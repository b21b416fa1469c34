package datafeed

import (
	"context"
	"sync"
	"time"

	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/bus"
	"go.uber.org/zap"
)

// priceLoopInterval is the cadence of price refresh and resolution checks.
const priceLoopInterval = 30 * time.Second

// Bot runs the four cooperative datafeed loops: one poller per feed, a price
// loop, and the edge-tracker loop.
type Bot struct {
	Portfolio *Portfolio
	Matcher   *Matcher
	Detector  *Detector
	Edges     *EdgeTracker

	feeds     []feedSchedule
	client    *polymarket.Client
	bus       *bus.Bus
	logger    *zap.Logger
	dedup     *Deduper
	edgePoll  time.Duration
	startTS   time.Time
	wg        sync.WaitGroup
}

type feedSchedule struct {
	feed     Feed
	interval time.Duration
}

// BotConfig holds datafeed bot configuration.
type BotConfig struct {
	StartingBalanceUSDC float64
	EdgeTrackerPoll     time.Duration
	Logger              *zap.Logger
}

// NewBot creates a datafeed bot without feeds; attach them with AddFeed.
func NewBot(cfg BotConfig, client *polymarket.Client, matcher *Matcher, detector *Detector, edges *EdgeTracker, eventBus *bus.Bus) *Bot {
	return &Bot{
		Portfolio: NewPortfolio(cfg.StartingBalanceUSDC, eventBus, cfg.Logger),
		Matcher:   matcher,
		Detector:  detector,
		Edges:     edges,
		client:    client,
		bus:       eventBus,
		logger:    cfg.Logger,
		dedup:     NewDeduper(),
		edgePoll:  cfg.EdgeTrackerPoll,
	}
}

// AddFeed registers a feed polled at the given interval.
func (b *Bot) AddFeed(feed Feed, interval time.Duration) {
	b.feeds = append(b.feeds, feedSchedule{feed: feed, interval: interval})
}

// Run starts all loops and blocks until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.startTS = time.Now()
	b.emitInitialState()

	for _, fs := range b.feeds {
		fs := fs
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.feedLoop(ctx, fs)
		}()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.priceLoop(ctx)
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.edgeLoop(ctx)
	}()

	b.logger.Info("datafeed-bot-started", zap.Int("feeds", len(b.feeds)))
	b.wg.Wait()
	b.logger.Info("datafeed-bot-stopped")

	return ctx.Err()
}

func (b *Bot) feedLoop(ctx context.Context, fs feedSchedule) {
	ticker := time.NewTicker(fs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events, err := fs.feed.Poll(ctx)
			if err != nil {
				b.logger.Error("datafeed-poll-failed",
					zap.String("feed", fs.feed.Name()),
					zap.Error(err))
				continue
			}
			for i := range events {
				b.handleEvent(ctx, &events[i])
			}
		}
	}
}

// handleEvent dedups the event across feeds, publishes it, and routes goal
// and red-card events into detection.
func (b *Bot) handleEvent(ctx context.Context, evt *LiveEvent) {
	if b.dedup.Seen(evt) {
		DedupSuppressedTotal.Inc()
		return
	}

	b.bus.Publish("datafeed_live_event", evt)

	if evt.EventType != EventGoal && evt.EventType != EventRedCard {
		return
	}

	market, ok := b.Matcher.FindMarket(ctx, evt, b.Portfolio.RefPositions())
	if !ok {
		return
	}

	opp, ok := b.Detector.Evaluate(evt, market)
	if !ok {
		return
	}

	OpportunitiesTotal.Inc()
	b.bus.Publish("datafeed_opportunity", opp)
	b.Portfolio.OpenPosition(opp)
	b.Edges.Track(evt, opp)
}

func (b *Bot) priceLoop(ctx context.Context) {
	ticker := time.NewTicker(priceLoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Portfolio.UpdatePrices(ctx, b.client)
			b.Portfolio.CloseResolvedMarkets(ctx, b.client)
		}
	}
}

func (b *Bot) edgeLoop(ctx context.Context) {
	ticker := time.NewTicker(b.edgePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Edges.PollPending(ctx)
		}
	}
}

// Snapshot is the REST view of the bot.
type Snapshot struct {
	Overview  Overview        `json:"overview"`
	Positions []Position      `json:"positions"`
	Resolved  []ResolvedTrade `json:"resolved"`
	EdgeStats EdgeStats       `json:"edge_stats"`
	StartTS   int64           `json:"start_ts"`
}

// Snapshot returns the current state for the dashboard API.
func (b *Bot) Snapshot() Snapshot {
	return Snapshot{
		Overview:  b.Portfolio.GetOverview(),
		Positions: b.Portfolio.GetPositions(),
		Resolved:  b.Portfolio.GetResolved(resolvedHistoryCap),
		EdgeStats: b.Edges.Stats(),
		StartTS:   b.startTS.Unix(),
	}
}

// Reset clears the portfolio.
func (b *Bot) Reset() {
	b.startTS = time.Now()
	b.Portfolio.Reset()
	b.bus.Publish("datafeed_start", map[string]interface{}{"ts": b.startTS.Unix()})
	b.logger.Info("datafeed-bot-reset")
}

func (b *Bot) emitInitialState() {
	snap := b.Snapshot()
	b.bus.Publish("datafeed_start", map[string]interface{}{"ts": b.startTS.Unix()})
	b.bus.Publish("datafeed_overview", snap.Overview)
	b.bus.Publish("datafeed_positions", map[string]interface{}{"positions": snap.Positions})
}
