package alpaca

import (
	"fmt"
	"time"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"quantlab/internal/config"
)

// CalendarClient is the subset of *alpacaapi.Client used for the trading
// calendar.
type CalendarClient interface {
	GetCalendar(req alpacaapi.GetCalendarRequest) ([]alpacaapi.CalendarDay, error)
}

var _ CalendarClient = (*alpacaapi.Client)(nil)

// NewCalendarClient builds a trading API client for calendar lookups.
func NewCalendarClient(cfg config.Alpaca) *alpacaapi.Client {
	return alpacaapi.NewClient(alpacaapi.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})
}

// LatestFinishedTradingDay returns the most recent US trading day whose
// extended session has ended (20:05 ET) as of now.
func LatestFinishedTradingDay(client CalendarClient, now time.Time) (time.Time, error) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}
	now = now.In(et)

	calendar, err := client.GetCalendar(alpacaapi.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}

	today := now.Format(time.DateOnly)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, et)
	for i := len(calendar) - 1; i >= 0; i-- {
		day, err := time.Parse(time.DateOnly, calendar[i].Date)
		if err != nil {
			continue
		}
		if calendar[i].Date == today {
			if now.After(cutoff) {
				return day, nil
			}
			continue
		}
		if calendar[i].Date < today {
			return day, nil
		}
	}
	return time.Time{}, fmt.Errorf("no finished trading day in calendar ending %s", today)
}
