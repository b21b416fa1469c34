package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown stops every component and waits for the loops to drain.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	a.wg.Wait()

	err = a.store.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	if a.appCache != nil {
		a.appCache.Close()
	}

	a.logger.Info("application-shutdown-complete")

	return nil
}
