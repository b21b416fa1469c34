package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/bus"
	"go.uber.org/zap"
)

// priceUpdateInterval is the cadence of the bulk price refresh.
const priceUpdateInterval = 30 * time.Second

// Bot wires the address monitor to the portfolio: monitor callbacks open and
// close mirrored positions, a background loop refreshes prices.
type Bot struct {
	Portfolio *Portfolio
	Monitor   *AddressMonitor

	client  *polymarket.Client
	bus     *bus.Bus
	logger  *zap.Logger
	startTS time.Time
	wg      sync.WaitGroup
}

// BotConfig holds mirror bot configuration.
type BotConfig struct {
	StartingBalanceUSDC float64
	PollInterval        time.Duration
	LogDir              string
	Logger              *zap.Logger
}

// NewBot creates a mirror bot.
func NewBot(cfg BotConfig, client *polymarket.Client, eventBus *bus.Bus) *Bot {
	b := &Bot{
		client: client,
		bus:    eventBus,
		logger: cfg.Logger,
	}

	b.Portfolio = NewPortfolio(cfg.StartingBalanceUSDC, eventBus, cfg.Logger)
	b.Monitor = NewAddressMonitor(MonitorConfig{
		DefaultInterval: cfg.PollInterval,
		LogDir:          cfg.LogDir,
		Logger:          cfg.Logger,
	}, client, eventBus, b.onOpened, b.onClosed)

	return b
}

// Run starts the poll and price loops and blocks until the context is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.startTS = time.Now()
	b.emitInitialState()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		_ = b.Monitor.Run(ctx)
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.priceLoop(ctx)
	}()

	b.logger.Info("mirror-bot-started")
	b.wg.Wait()
	b.logger.Info("mirror-bot-stopped")

	return ctx.Err()
}

func (b *Bot) priceLoop(ctx context.Context) {
	ticker := time.NewTicker(priceUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Portfolio.UpdatePrices(ctx, b.client)
		}
	}
}

func (b *Bot) onOpened(cfg *WatchedAddress, pos polymarket.Position) {
	b.logger.Info("mirror-wallet-opened",
		zap.String("nickname", cfg.Nickname),
		zap.String("title", truncate(pos.Title, 55)))
	b.Portfolio.OpenPosition(cfg, pos)
}

func (b *Bot) onClosed(cfg *WatchedAddress, pos polymarket.Position) {
	b.logger.Info("mirror-wallet-closed",
		zap.String("nickname", cfg.Nickname),
		zap.String("title", truncate(pos.Title, 55)))
	b.Portfolio.ClosePositionByToken(cfg, pos)
}

// Snapshot is the REST view of the whole bot.
type Snapshot struct {
	Overview  Overview        `json:"overview"`
	Positions []Position      `json:"positions"`
	Queue     []QueuedTrade   `json:"queue"`
	Resolved  []ResolvedTrade `json:"resolved"`
	Addresses []AddressStatus `json:"addresses"`
	StartTS   int64           `json:"start_ts"`
}

// Snapshot returns the current state for the dashboard API.
func (b *Bot) Snapshot() Snapshot {
	return Snapshot{
		Overview:  b.Portfolio.GetOverview(),
		Positions: b.Portfolio.GetPositions(),
		Queue:     b.Portfolio.GetQueue(),
		Resolved:  b.Portfolio.GetResolved(resolvedHistoryCap),
		Addresses: b.Monitor.GetAddresses(),
		StartTS:   b.startTS.Unix(),
	}
}

// Reset clears the portfolio and re-baselines every address.
func (b *Bot) Reset() {
	b.startTS = time.Now()
	b.Portfolio.Reset()
	b.Monitor.ResetAll()
	b.bus.Publish("mirror_bot_start", map[string]interface{}{"ts": b.startTS.Unix()})
	b.logger.Info("mirror-bot-reset")
}

// emitInitialState pushes current state so a fresh dashboard is not blank.
func (b *Bot) emitInitialState() {
	snap := b.Snapshot()
	b.bus.Publish("mirror_bot_start", map[string]interface{}{"ts": b.startTS.Unix()})
	b.bus.Publish("mirror_overview", snap.Overview)
	b.bus.Publish("mirror_positions", map[string]interface{}{"positions": snap.Positions})
	b.bus.Publish("mirror_queue", map[string]interface{}{"queue": snap.Queue})
	b.bus.Publish("mirror_addresses", map[string]interface{}{"addresses": snap.Addresses})
}
