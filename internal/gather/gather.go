// Package gather defines the market-data download jobs that fill the local
// bar and quote stores used by backtests.
package gather

import (
	"context"
	"fmt"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run downloads the configured range and returns once it is stored.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses a YYYY-MM-DD start date. An empty end date means
// now.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("parsing start date %q: %w", start, err)
	}
	e := time.Now().UTC()
	if end != "" {
		if e, err = time.Parse(time.DateOnly, end); err != nil {
			return DateRange{}, fmt.Errorf("parsing end date %q: %w", end, err)
		}
	}
	if !e.After(s) {
		return DateRange{}, fmt.Errorf("end %s is not after start %s", e.Format(time.DateOnly), start)
	}
	return DateRange{Start: s, End: e}, nil
}

// Batches splits symbols into consecutive chunks of at most size.
func Batches(symbols []string, size int) [][]string {
	size = max(size, 1)
	var out [][]string
	for i := 0; i < len(symbols); i += size {
		out = append(out, symbols[i:min(i+size, len(symbols))])
	}
	return out
}
