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

var _ gather.Gatherer = (*QuoteGatherer)(nil)

// QuoteGatherer downloads top-of-book quotes into a QuoteStore. Limit caps
// the quotes fetched per batch; zero fetches the full range.
type QuoteGatherer struct {
	client Client
	store  store.QuoteStore
	feed   string
	rng    gather.DateRange
	Limit  int
	job    job
}

// NewQuoteGatherer creates a QuoteGatherer over rng.
func NewQuoteGatherer(client Client, s store.QuoteStore, feed string, symbols []string, rng gather.DateRange, cfg config.GatherJobConfig) *QuoteGatherer {
	return &QuoteGatherer{
		client: client,
		store:  s,
		feed:   feed,
		rng:    rng,
		job:    newJob("alpaca-quotes", symbols, cfg),
	}
}

// Name returns the gatherer identifier.
func (g *QuoteGatherer) Name() string { return g.job.name }

// Run fetches every batch and upserts the quotes.
func (g *QuoteGatherer) Run(ctx context.Context) error {
	return g.job.run(ctx, g.fetchBatch)
}

func (g *QuoteGatherer) fetchBatch(ctx context.Context, symbols []string) (int, error) {
	multi, err := g.client.GetMultiQuotes(symbols, marketdata.GetQuotesRequest{
		Start:      g.rng.Start,
		End:        g.rng.End,
		TotalLimit: g.Limit,
		Feed:       marketdata.Feed(g.feed),
	})
	if err != nil {
		return 0, fmt.Errorf("GetMultiQuotes: %w", err)
	}
	quotes := convertQuotes(multi)
	if err := g.store.WriteQuotes(ctx, quotes); err != nil {
		return 0, util.Permanent(fmt.Errorf("writing quotes: %w", err))
	}
	return len(quotes), nil
}
