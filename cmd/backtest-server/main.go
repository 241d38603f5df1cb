package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"quantlab/internal/backtest"
	"quantlab/internal/config"
	"quantlab/internal/httpapi"
	"quantlab/internal/strategy/builtins"
	"quantlab/internal/util"
)

func main() {
	cfgPath := flag.String("config", config.Path(), "path to the YAML config")
	maxRuns := flag.Int("max-runs", httpapi.DefaultMaxRuns, "completed runs kept in memory")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	bt := backtest.NewBacktester(builtins.NewRegistry(), backtest.SourcesFromConfig(cfg), logger)
	srv := httpapi.NewServer(bt, *maxRuns, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("backtest server listening", "addr", httpServer.Addr, "sources", bt.Sources())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down backtest server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
