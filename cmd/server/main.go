package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pefman/w40k-mathhammer/internal/api"
	"github.com/pefman/w40k-mathhammer/internal/config"
	"github.com/pefman/w40k-mathhammer/internal/history"
	"github.com/pefman/w40k-mathhammer/internal/logging"
	"github.com/pefman/w40k-mathhammer/internal/server"
	"github.com/pefman/w40k-mathhammer/internal/sim"
)

// Build metadata injected via -ldflags at build time
var (
	buildVersion = "dev"
	buildTime    = ""
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	var roster server.Roster
	if cfg.DataAPIBase != "" {
		roster = api.NewClient(cfg.DataAPIBase, log.Named("roster"))
	}
	srv := server.New(server.Options{
		Logger:    log,
		Worker:    sim.NewWorker(log.Named("sim")),
		History:   history.NewStore(cfg.HistorySize),
		Roster:    roster,
		MaxTrials: cfg.MaxTrials,
		Version:   buildVersion,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("mathhammer server listening",
			zap.String("addr", httpSrv.Addr),
			zap.String("data_api", cfg.DataAPIBase),
			zap.String("version", buildVersion),
			zap.String("built", buildTime),
		)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
