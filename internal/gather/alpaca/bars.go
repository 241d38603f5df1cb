package alpaca

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantlab/internal/config"
	"quantlab/internal/gather"
	"quantlab/internal/store"
	"quantlab/internal/util"
)

var _ gather.Gatherer = (*BarGatherer)(nil)

// BarMarket is the store partition daily equity bars are written under.
const BarMarket = "us"

// BarGatherer downloads daily bars for a fixed symbol list and merges them
// into a BarStore.
type BarGatherer struct {
	client Client
	store  store.BarStore
	feed   string
	rng    gather.DateRange
	job    job
}

// NewBarGatherer creates a BarGatherer over rng.
func NewBarGatherer(client Client, s store.BarStore, feed string, symbols []string, rng gather.DateRange, cfg config.GatherJobConfig) *BarGatherer {
	return &BarGatherer{
		client: client,
		store:  s,
		feed:   feed,
		rng:    rng,
		job:    newJob("alpaca-bars", symbols, cfg),
	}
}

// Name returns the gatherer identifier.
func (g *BarGatherer) Name() string { return g.job.name }

// Run fetches every batch and writes the bars. Re-running is idempotent:
// bars already on disk are replaced by timestamp.
func (g *BarGatherer) Run(ctx context.Context) error {
	return g.job.run(ctx, g.fetchBatch)
}

func (g *BarGatherer) fetchBatch(ctx context.Context, symbols []string) (int, error) {
	multi, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     g.rng.Start,
		End:       g.rng.End,
		Feed:      marketdata.Feed(g.feed),
	})
	if err != nil {
		return 0, fmt.Errorf("GetMultiBars: %w", err)
	}
	bars := convertBars(multi)
	if len(bars) == 0 {
		return 0, nil
	}
	if err := g.store.WriteBars(ctx, BarMarket, bars); err != nil {
		return 0, util.Permanent(fmt.Errorf("writing bars: %w", err))
	}
	return len(bars), nil
}
