// Package app wires the engine together: config, logger, bus, fetcher,
// storage, the enabled bots, and the HTTP serving surface.
package app

import (
	"context"
	"sync"

	"github.com/polysignal/signal-engine/internal/cryptoarb"
	"github.com/polysignal/signal-engine/internal/datafeed"
	"github.com/polysignal/signal-engine/internal/mirror"
	"github.com/polysignal/signal-engine/internal/monitor"
	"github.com/polysignal/signal-engine/internal/papertrader"
	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/internal/storage"
	"github.com/polysignal/signal-engine/pkg/bus"
	"github.com/polysignal/signal-engine/pkg/cache"
	"github.com/polysignal/signal-engine/pkg/config"
	"github.com/polysignal/signal-engine/pkg/healthprobe"
	"github.com/polysignal/signal-engine/pkg/httpserver"
	"go.uber.org/zap"
)

// App is the application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	eventBus      *bus.Bus
	appCache      cache.Cache
	httpServer    *httpserver.Server
	client        *polymarket.Client
	store         storage.Storage

	// Bots; nil when not enabled by config.
	arbMonitor  *monitor.Monitor
	paperTrader *papertrader.PaperTrader
	mirrorBot   *mirror.Bot
	datafeedBot *datafeed.Bot
	cryptoBot   *cryptoarb.Bot
	analyzer    *mirror.Analyzer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}
