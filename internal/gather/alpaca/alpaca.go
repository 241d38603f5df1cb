// Package alpaca downloads US equity bars and quotes from the Alpaca
// market-data API into the local stores.
package alpaca

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantlab/internal/config"
	"quantlab/internal/domain"
	"quantlab/internal/gather"
	"quantlab/internal/util"
)

// Client is the subset of *marketdata.Client the gatherers call.
type Client interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
	GetMultiQuotes(symbols []string, req marketdata.GetQuotesRequest) (map[string][]marketdata.Quote, error)
}

var _ Client = (*marketdata.Client)(nil)

const retryAttempts = 3

var retryDelay = 2 * time.Second

// NewClient builds a market-data client from the alpaca config section.
func NewClient(cfg config.Alpaca) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	return marketdata.NewClient(opts)
}

// job is the batch/worker/rate-limit plumbing shared by both gatherers.
type job struct {
	name    string
	symbols []string
	cfg     config.GatherJobConfig
	limiter *util.RateLimiter
	log     *slog.Logger
}

func newJob(name string, symbols []string, cfg config.GatherJobConfig) job {
	upper := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			upper = append(upper, s)
		}
	}
	return job{
		name:    name,
		symbols: upper,
		cfg:     cfg,
		limiter: util.NewRateLimiter(max(cfg.RateLimitPerMin, 1)),
		log:     slog.Default().With("gatherer", name),
	}
}

// run fans batches out to workers. fetch returns the number of rows stored
// for a batch. Failed batches are logged and counted; run reports an error
// if any batch failed.
func (j job) run(ctx context.Context, fetch func(ctx context.Context, batch []string) (int, error)) error {
	batches := gather.Batches(j.symbols, j.cfg.BatchSize)
	if len(batches) == 0 {
		j.log.Info("no symbols configured")
		return nil
	}

	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		wg       sync.WaitGroup
		rows     atomic.Int64
		failed   atomic.Int64
		runStart = time.Now()
	)

	j.log.Info("starting", "symbols", len(j.symbols), "batches", len(batches))

	workers := min(max(j.cfg.MaxWorkers, 1), len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range batchCh {
				if ctx.Err() != nil {
					return
				}
				label := fmt.Sprintf("%d/%d", idx+1, len(batches))

				var n int
				err := util.Retry(ctx, retryAttempts, retryDelay, func() error {
					if err := j.limiter.Wait(ctx); err != nil {
						return util.Permanent(err)
					}
					var err error
					n, err = fetch(ctx, batches[idx])
					return err
				})
				if err != nil {
					failed.Add(1)
					j.log.Error("batch failed", "batch", label, "err", err)
					continue
				}
				rows.Add(int64(n))
				j.log.Info("batch done",
					"batch", label,
					"rows", n,
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	j.log.Info("complete",
		"rows", rows.Load(),
		"failed", failed.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	if f := failed.Load(); f > 0 {
		return fmt.Errorf("%s: %d of %d batches failed", j.name, f, len(batches))
	}
	return nil
}

func convertBars(multi map[string][]marketdata.Bar) []domain.Bar {
	var bars []domain.Bar
	for symbol, list := range multi {
		for _, ab := range list {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp.UTC(),
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars
}

func convertQuotes(multi map[string][]marketdata.Quote) []domain.Quote {
	var quotes []domain.Quote
	for symbol, list := range multi {
		for _, q := range list {
			quotes = append(quotes, domain.Quote{
				Symbol:    strings.ToUpper(symbol),
				Timestamp: q.Timestamp.UTC(),
				BidPrice:  q.BidPrice,
				BidSize:   float64(q.BidSize),
				AskPrice:  q.AskPrice,
				AskSize:   float64(q.AskSize),
			})
		}
	}
	return quotes
}
