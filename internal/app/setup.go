package app

import (
	"context"
	"fmt"
	"time"

	"github.com/polysignal/signal-engine/internal/arbitrage"
	"github.com/polysignal/signal-engine/internal/cryptoarb"
	"github.com/polysignal/signal-engine/internal/datafeed"
	"github.com/polysignal/signal-engine/internal/exchange"
	"github.com/polysignal/signal-engine/internal/mirror"
	"github.com/polysignal/signal-engine/internal/monitor"
	"github.com/polysignal/signal-engine/internal/papertrader"
	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/internal/storage"
	"github.com/polysignal/signal-engine/pkg/bus"
	"github.com/polysignal/signal-engine/pkg/cache"
	"github.com/polysignal/signal-engine/pkg/config"
	"github.com/polysignal/signal-engine/pkg/fetcher"
	"github.com/polysignal/signal-engine/pkg/healthprobe"
	"github.com/polysignal/signal-engine/pkg/httpserver"
	"go.uber.org/zap"
)

// Default exchange fee schedules as fractions.
var defaultFees = map[string]exchange.Fees{
	"coinbase": {Taker: 0.006, Maker: 0.004},
	"kraken":   {Taker: 0.0026, Maker: 0.0016},
}

// New creates the application with every bot the config enables.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthprobe.New(),
		eventBus:      bus.New(bus.DefaultHistorySize, logger),
		ctx:           ctx,
		cancel:        cancel,
	}

	appCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}
	a.appCache = appCache

	httpFetcher := fetcher.New(fetcher.Config{Logger: logger})
	a.client = polymarket.NewClient(polymarket.Config{
		GammaHost: cfg.GammaHost,
		ClobHost:  cfg.ClobHost,
		DataHost:  cfg.DataHost,
		Fetcher:   httpFetcher,
		Logger:    logger,
	})

	a.store, err = setupStorage(cfg, logger)
	if err != nil {
		cancel()
		appCache.Close()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	if cfg.PaperMode.Enabled {
		a.paperTrader, err = papertrader.New(papertrader.Config{
			MaxTradeSizeUSDC:     cfg.Strategy.MaxTradeSizeUSDC,
			MaxRiskPerTradeUSDC:  cfg.Strategy.MaxRiskPerTradeUSDC,
			SlippageTolerancePct: cfg.Strategy.SlippageTolerancePct,
			MinLiquidityUSDC:     cfg.Strategy.MinLiquidityUSDC,
			StartingBalanceUSDC:  cfg.PaperMode.StartingBalanceUSDC,
			LogDir:               cfg.Logging.LogDir,
			Logger:               logger,
		}, a.client, a.eventBus)
		if err != nil {
			cancel()
			appCache.Close()
			return nil, fmt.Errorf("setup paper trader: %w", err)
		}

		a.arbMonitor = monitor.New(monitor.Config{
			Tags: cfg.Filters.SportsTags,
			Caps: arbitrage.Caps{
				MaxTradeSizeUSDC:    cfg.Strategy.MaxTradeSizeUSDC,
				MaxRiskPerTradeUSDC: cfg.Strategy.MaxRiskPerTradeUSDC,
				MinProfitPct:        cfg.Strategy.MinProfitThresholdPct,
			},
			ScanInterval: cfg.PollingInterval(),
			Logger:       logger,
		}, a.client, a.store, a.eventBus, a.onOpportunity)
	}

	if cfg.Mirror.Enabled {
		a.mirrorBot = mirror.NewBot(mirror.BotConfig{
			StartingBalanceUSDC: cfg.Mirror.StartingBalanceUSDC,
			PollInterval:        time.Duration(cfg.Mirror.PollIntervalSecs) * time.Second,
			LogDir:              cfg.Logging.LogDir,
			Logger:              logger,
		}, a.client, a.eventBus)

		for _, wa := range cfg.Mirror.WatchedAddresses {
			a.mirrorBot.Monitor.AddAddress(wa.Address, wa.Nickname, 0)
		}

		a.analyzer = mirror.NewAnalyzer(a.client, appCache, cfg.Logging.LogDir, logger)
	}

	if cfg.DataFeed.Enabled {
		a.datafeedBot = setupDataFeed(cfg, logger, a.client, appCache, httpFetcher, a.eventBus)
	}

	if cfg.CryptoArb.Enabled {
		a.cryptoBot = setupCryptoArb(cfg, logger, httpFetcher, a.eventBus)
	}

	a.httpServer = setupHTTPServer(cfg, logger, a)

	return a, nil
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.Storage.Mode == "postgres" {
		pgStorage, err := storage.NewPostgresStorage(&storage.PostgresConfig{
			Host:     cfg.Storage.PostgresHost,
			Port:     cfg.Storage.PostgresPort,
			User:     cfg.Storage.PostgresUser,
			Password: cfg.Storage.PostgresPass,
			Database: cfg.Storage.PostgresDB,
			SSLMode:  cfg.Storage.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	}

	return storage.NewConsoleStorage(logger), nil
}

func setupDataFeed(cfg *config.Config, logger *zap.Logger, client *polymarket.Client, appCache cache.Cache, httpFetcher *fetcher.Fetcher, eventBus *bus.Bus) *datafeed.Bot {
	matcher := datafeed.NewMatcher(client, appCache, logger)
	detector := datafeed.NewDetector(cfg.DataFeed.MinEdgePct,
		time.Duration(cfg.DataFeed.EntryWindowSecs)*time.Second)
	edges := datafeed.NewEdgeTracker(client, eventBus,
		cfg.DataFeed.EdgePriceMoveThreshold, logger)

	bot := datafeed.NewBot(datafeed.BotConfig{
		StartingBalanceUSDC: cfg.DataFeed.StartingBalanceUSDC,
		EdgeTrackerPoll:     time.Duration(cfg.DataFeed.EdgeTrackerPollSecs) * time.Second,
		Logger:              logger,
	}, client, matcher, detector, edges, eventBus)

	if cfg.DataFeed.APIFootballKey != "" {
		bot.AddFeed(
			datafeed.NewFootballFeed("", cfg.DataFeed.APIFootballKey, httpFetcher, eventBus, logger),
			time.Duration(cfg.DataFeed.PollIntervalSecs)*time.Second,
		)
	}
	if cfg.DataFeed.SportradarAPIKey != "" {
		bot.AddFeed(
			datafeed.NewSportradarFeed("", cfg.DataFeed.SportradarAPIKey, false, httpFetcher, eventBus, logger),
			time.Duration(cfg.DataFeed.SportradarPollSecs)*time.Second,
		)
	}

	return bot
}

func setupCryptoArb(cfg *config.Config, logger *zap.Logger, httpFetcher *fetcher.Fetcher, eventBus *bus.Bus) *cryptoarb.Bot {
	exchanges := []exchange.Client{
		exchange.NewCoinbase("", httpFetcher, logger),
		exchange.NewKraken("", httpFetcher, logger),
	}

	return cryptoarb.NewBot(cryptoarb.Config{
		StartingBalanceUSDC: cfg.CryptoArb.StartingBalanceUSDC,
		ScanInterval:        time.Duration(cfg.CryptoArb.ScanIntervalSecs) * time.Second,
		MinProfitPct:        cfg.CryptoArb.MinProfitPct,
		MaxPositionUSDC:     cfg.CryptoArb.MaxPositionUSDC,
		MaxPositionPct:      cfg.CryptoArb.MaxPositionPct,
		MinVolumeUSDC:       cfg.CryptoArb.MinVolumeUSDC,
		MaxVolumeUSDC:       cfg.CryptoArb.MaxVolumeUSDC,
		OrderBookDepth:      cfg.CryptoArb.OrderBookDepth,
		MaxBookAge:          time.Duration(cfg.CryptoArb.MinOrderBookAgeSecs) * time.Second,
		Fees:                defaultFees,
		Logger:              logger,
	}, exchanges, eventBus)
}

func setupHTTPServer(cfg *config.Config, logger *zap.Logger, a *App) *httpserver.Server {
	snapshots := map[string]httpserver.SnapshotFunc{}
	if a.paperTrader != nil {
		snapshots["paper"] = func() interface{} { return a.paperTrader.Snapshot() }
	}
	if a.mirrorBot != nil {
		snapshots["mirror"] = func() interface{} { return a.mirrorBot.Snapshot() }
	}
	if a.datafeedBot != nil {
		snapshots["datafeed"] = func() interface{} { return a.datafeedBot.Snapshot() }
	}
	if a.cryptoBot != nil {
		snapshots["cryptoarb"] = func() interface{} { return a.cryptoBot.Snapshot() }
	}

	serverCfg := &httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: a.healthChecker,
		Bus:           a.eventBus,
		Snapshots:     snapshots,
	}

	if a.mirrorBot != nil {
		serverCfg.AddressBook = &mirrorAddressBook{bot: a.mirrorBot}
		if a.analyzer != nil {
			analyzer := a.analyzer
			serverCfg.Analyze = func(ctx context.Context, address string) (interface{}, error) {
				return analyzer.Analyze(ctx, address)
			}
		}
	}

	return httpserver.New(serverCfg)
}

// onOpportunity routes confirmed arbitrage opportunities into the trade
// engine.
func (a *App) onOpportunity(opp *arbitrage.Opportunity) {
	if a.paperTrader == nil {
		return
	}

	result := a.paperTrader.Execute(a.ctx, opp)
	if result.Outcome == papertrader.OutcomeSuccess {
		a.logger.Info("trade-success",
			zap.Float64("profit-usdc", result.ProfitUSDC),
			zap.String("question", opp.MarketQuestion))
	} else {
		a.logger.Info("trade-not-executed",
			zap.String("outcome", string(result.Outcome)),
			zap.String("reason", result.Reason),
			zap.String("question", opp.MarketQuestion))
	}
}

// mirrorAddressBook adapts the mirror bot to the HTTP address surface.
type mirrorAddressBook struct {
	bot *mirror.Bot
}

func (m *mirrorAddressBook) List() interface{} {
	return m.bot.Monitor.GetAddresses()
}

func (m *mirrorAddressBook) Add(address, nickname string) interface{} {
	added := m.bot.Monitor.AddAddress(address, nickname, 0)
	return map[string]string{"address": added.Address, "nickname": added.Nickname}
}

func (m *mirrorAddressBook) Remove(address string) bool {
	return m.bot.Monitor.RemoveAddress(address)
}
