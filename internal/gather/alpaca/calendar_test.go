package alpaca

import (
	"errors"
	"testing"
	"time"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

type fakeCalendar struct {
	days []string
	err  error
}

func (f fakeCalendar) GetCalendar(alpacaapi.GetCalendarRequest) ([]alpacaapi.CalendarDay, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]alpacaapi.CalendarDay, len(f.days))
	for i, d := range f.days {
		out[i] = alpacaapi.CalendarDay{Date: d}
	}
	return out, nil
}

func TestLatestFinishedTradingDay(t *testing.T) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	week := fakeCalendar{days: []string{"2024-03-04", "2024-03-05", "2024-03-06"}}

	tests := []struct {
		name string
		cal  fakeCalendar
		now  time.Time
		want string
	}{
		{"session still open", week, time.Date(2024, 3, 6, 10, 0, 0, 0, et), "2024-03-05"},
		{"after settlement", week, time.Date(2024, 3, 6, 21, 0, 0, 0, et), "2024-03-06"},
		{"weekend", fakeCalendar{days: []string{"2024-03-07", "2024-03-08"}}, time.Date(2024, 3, 10, 12, 0, 0, 0, et), "2024-03-08"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LatestFinishedTradingDay(tt.cal, tt.now)
			if err != nil {
				t.Fatal(err)
			}
			if s := got.Format(time.DateOnly); s != tt.want {
				t.Errorf("LatestFinishedTradingDay = %s, want %s", s, tt.want)
			}
		})
	}

	if _, err := LatestFinishedTradingDay(fakeCalendar{}, time.Now()); err == nil {
		t.Error("empty calendar returned nil error")
	}
	boom := errors.New("boom")
	if _, err := LatestFinishedTradingDay(fakeCalendar{err: boom}, time.Now()); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
}
