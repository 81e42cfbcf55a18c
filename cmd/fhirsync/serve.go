package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/healthflow/fhirsync/internal/domain/ingest"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the sync API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.Close()

	go a.admission.StartCleanup(ctx, cfg.AdmissionCleanupInterval)

	// Background syncs must stop before the deferred Close releases the
	// stores they write to.
	var background sync.WaitGroup
	if cfg.SyncInterval > 0 {
		scheduler := ingest.NewScheduler(a.sync, cfg.SyncInterval, cfg.DefaultBulkCount, logger)
		background.Add(1)
		go func() {
			defer background.Done()
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("scheduler exited")
			}
		}()
	}

	e := a.router()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("upstream", a.upstream.BaseURL()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownErr := e.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("server shutdown failed")
	}

	drain := cfg.SubjectTimeout
	if drain <= 0 {
		drain = defaultDrainTimeout
	}
	if !waitTimeout(&background, drain) {
		logger.Warn().Dur("timeout", drain).Msg("background sync still running at shutdown")
	}
	if shutdownErr != nil {
		return shutdownErr
	}
	logger.Info().Msg("server stopped")
	return nil
}

const defaultDrainTimeout = 5 * time.Minute

// waitTimeout waits for wg and reports whether it finished within timeout.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
