package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"quantlab/internal/backtest"
	"quantlab/internal/config"
	"quantlab/internal/report"
	"quantlab/internal/strategy/builtins"
	"quantlab/internal/util"
)

func main() {
	cfgPath := flag.String("config", config.Path(), "path to the YAML config")
	strat := flag.String("strategy", "", "strategy name (overrides strategy.name)")
	source := flag.String("source", "", "data source: sample, csv, parquet or sqlite")
	symbol := flag.String("symbol", "", "symbol to trade")
	csvPath := flag.String("csv", "", "market data CSV (implies -source csv)")
	capital := flag.Float64("capital", 0, "initial capital")
	commission := flag.Float64("commission", -1, "commission rate per trade")
	outDir := flag.String("out", "", "export report, results, trades and equity under this directory")
	asJSON := flag.Bool("json", false, "print results as JSON instead of the text report")
	list := flag.Bool("list", false, "list strategies and exit")
	params := map[string]float64{}
	flag.Func("param", "strategy parameter key=value (repeatable)", func(s string) error {
		k, v, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("want key=value, got %q", s)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		params[k] = f
		return nil
	})
	flag.Parse()

	registry := builtins.NewRegistry()
	if *list {
		for _, name := range registry.List() {
			fmt.Println(name)
		}
		return
	}

	cfg, err := config.LoadOrDefault(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Flags win over the file.
	if *strat != "" {
		cfg.Strategy.Name = *strat
		cfg.Strategy.Params = nil
	}
	if len(params) > 0 {
		if cfg.Strategy.Params == nil {
			cfg.Strategy.Params = map[string]float64{}
		}
		for k, v := range params {
			cfg.Strategy.Params[k] = v
		}
	}
	if *csvPath != "" {
		cfg.Backtest.CSVPath = *csvPath
		cfg.Backtest.Source = config.SourceCSV
	}
	if *source != "" {
		cfg.Backtest.Source = *source
	}
	if *symbol != "" {
		cfg.Backtest.Symbol = *symbol
	}
	if *capital > 0 {
		cfg.Backtest.InitialCapital = *capital
	}
	if *commission >= 0 {
		cfg.Backtest.CommissionRate = *commission
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	// Logs go to stderr so stdout carries only the report.
	logger := util.NewLoggerWithFormat(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	req, err := backtest.RequestFromConfig(cfg)
	if err != nil {
		log.Fatalf("building request: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bt := backtest.NewBacktester(registry, backtest.SourcesFromConfig(cfg), logger)
	res, err := bt.Run(ctx, req)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	if *asJSON {
		err = report.WriteJSON(os.Stdout, res)
	} else {
		err = report.WriteText(os.Stdout, res)
	}
	if err != nil {
		log.Fatalf("writing report: %v", err)
	}

	if *outDir != "" {
		files, err := report.Export(*outDir, res)
		if err != nil {
			log.Fatalf("exporting results: %v", err)
		}
		logger.Info("results exported", "dir", files.Dir)
	}
}
