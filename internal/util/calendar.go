package util

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"quantlab/internal/domain"
)

// ErrUnknownTimeframe is returned for a bar size PeriodsPerYear cannot parse.
var ErrUnknownTimeframe = errors.New("unknown timeframe")

const (
	usTradingDays    = 252
	usSessionMinutes = 390 // 09:30-16:00 ET
	cryptoDays       = 365
	cryptoDayMinutes = 24 * 60
	weeksPerYear     = 52
)

// PeriodsPerYear returns how many bars of the given timeframe make up one
// year in market, the annualization factor for Sharpe ratios. US equities
// trade 252 sessions of 6.5 hours; crypto trades around the clock.
//
// Timeframes are "1d", "1w", or any Go duration of at most one day such as
// "1h", "15m" or "30s".
func PeriodsPerYear(market domain.Market, timeframe string) (int, error) {
	days, dayMinutes := usTradingDays, usSessionMinutes
	if market == domain.MarketCrypto {
		days, dayMinutes = cryptoDays, cryptoDayMinutes
	}

	tf := strings.ToLower(strings.TrimSpace(timeframe))
	switch tf {
	case "1d", "day", "daily":
		return days, nil
	case "1w", "week", "weekly":
		return weeksPerYear, nil
	}

	d, err := time.ParseDuration(tf)
	if err != nil || d <= 0 || d > 24*time.Hour {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTimeframe, timeframe)
	}
	perDay := float64(time.Duration(dayMinutes)*time.Minute) / float64(d)
	if perDay < 1 {
		return days, nil
	}
	return int(float64(days) * perDay), nil
}
