package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"quantlab/internal/config"
	"quantlab/internal/gather"
	"quantlab/internal/gather/alpaca"
	"quantlab/internal/store"
	"quantlab/internal/util"
)

func main() {
	cfgPath := flag.String("config", config.Path(), "path to the YAML config")
	kind := flag.String("kind", "bars", "what to download: bars or quotes")
	symbols := flag.String("symbols", "", "comma-separated symbols (overrides gather.symbols)")
	end := flag.String("end", "", "end date YYYY-MM-DD (default now)")
	limit := flag.Int("limit", 0, "max quotes per batch, 0 for all")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		log.Fatal("alpaca credentials missing: set APCA_API_KEY_ID and APCA_API_SECRET_KEY")
	}
	syms := cfg.Gather.Symbols
	if *symbols != "" {
		syms = strings.Split(*symbols, ",")
	}

	// Log to stdout and to a dated file in the temp dir.
	logFileName := filepath.Join(os.TempDir(), fmt.Sprintf("alpaca-data-%s.log", time.Now().Format(time.DateOnly)))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()
	logger := util.NewLoggerWithFormat(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	client := alpaca.NewClient(cfg.Alpaca)

	var g gather.Gatherer
	switch *kind {
	case "bars":
		rng, err := gather.ParseDateRange(cfg.Gather.Bars.StartDate, *end)
		if err != nil {
			log.Fatal(err)
		}
		if *end == "" {
			// Stop at the last session that has fully settled.
			day, err := alpaca.LatestFinishedTradingDay(alpaca.NewCalendarClient(cfg.Alpaca), time.Now())
			if err != nil {
				log.Fatalf("determining end date: %v", err)
			}
			rng.End = day.Add(24*time.Hour - time.Second)
		}
		g = alpaca.NewBarGatherer(client, store.NewParquetStore(cfg.Storage.DataDir),
			cfg.Alpaca.Feed, syms, rng, cfg.Gather.Bars)
	case "quotes":
		rng, err := gather.ParseDateRange(cfg.Gather.Quotes.StartDate, *end)
		if err != nil {
			log.Fatal(err)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			log.Fatalf("creating sqlite dir: %v", err)
		}
		qs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening sqlite: %v", err)
		}
		defer qs.Close()
		qg := alpaca.NewQuoteGatherer(client, qs, cfg.Alpaca.Feed, syms, rng, cfg.Gather.Quotes)
		qg.Limit = *limit
		g = qg
	default:
		log.Fatalf("unknown -kind %q (want bars or quotes)", *kind)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting gatherer", "name", g.Name(), "symbols", len(syms), "logFile", logFileName)
	if err := g.Run(ctx); err != nil {
		logger.Error("gatherer failed", "name", g.Name(), "error", err)
		os.Exit(1)
	}
}
