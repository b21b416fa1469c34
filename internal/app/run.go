package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Run starts every enabled bot and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.Bool("paper-mode", a.cfg.PaperMode.Enabled),
		zap.Bool("mirror-mode", a.cfg.Mirror.Enabled),
		zap.Bool("datafeed-mode", a.cfg.DataFeed.Enabled),
		zap.Bool("crypto-arb-mode", a.cfg.CryptoArb.Enabled),
		zap.String("log-level", a.cfg.Logging.Level))

	a.startComponents()

	a.healthChecker.SetReady(true)
	a.logger.Info("application-ready", zap.String("http-addr", ":"+a.cfg.HTTPPort))

	return a.waitForShutdown()
}

func (a *App) startComponents() {
	a.wg.Add(1)
	go a.runHTTPServer()

	if a.arbMonitor != nil {
		a.runLoop("monitor", func(ctx context.Context) error {
			return a.arbMonitor.Run(ctx)
		})
	}
	if a.mirrorBot != nil {
		a.runLoop("mirror", func(ctx context.Context) error {
			return a.mirrorBot.Run(ctx)
		})
	}
	if a.datafeedBot != nil {
		a.runLoop("datafeed", func(ctx context.Context) error {
			return a.datafeedBot.Run(ctx)
		})
	}
	if a.cryptoBot != nil {
		a.runLoop("cryptoarb", func(ctx context.Context) error {
			return a.cryptoBot.Run(ctx)
		})
	}
}

func (a *App) runLoop(name string, run func(context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := run(a.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("bot-loop-exited",
				zap.String("bot", name),
				zap.Error(err))
		}
	}()
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
