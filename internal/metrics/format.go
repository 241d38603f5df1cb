package metrics

import (
	"fmt"
	"io"
	"strings"
)

// FormatMoney formats a dollar amount with comma separators and cents.
func FormatMoney(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	cents := int64(v*100 + 0.5)
	return fmt.Sprintf("%s$%s.%02d", sign, formatInt(cents/100), cents%100)
}

// formatInt formats a non-negative integer with comma separators.
func formatInt(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPct formats a fraction as a signed percentage, e.g. 0.1234 → "12.34%".
func FormatPct(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}

// WriteReport prints a human-readable summary of m. A nil m prints a note
// that the run produced no equity.
func WriteReport(w io.Writer, m *Metrics) error {
	rule := strings.Repeat("=", 50)
	if m == nil {
		_, err := fmt.Fprintf(w, "%s\nno equity recorded\n%s\n", rule, rule)
		return err
	}

	lines := []struct {
		label string
		value string
	}{
		{"Initial Capital", FormatMoney(m.InitialCapital)},
		{"Final Equity", FormatMoney(m.FinalEquity)},
		{"Profit", FormatMoney(m.Profit)},
		{"Total Return", FormatPct(m.TotalReturn)},
		{"Sharpe Ratio", fmt.Sprintf("%.2f", m.SharpeRatio)},
		{"Max Drawdown", FormatPct(m.MaxDrawdown)},
		{"Drawdown Length", fmt.Sprintf("%d periods", m.MaxDrawdownDuration)},
		{"Total Trades", fmt.Sprintf("%d", m.TotalTrades)},
		{"Round Trips", fmt.Sprintf("%d", m.RoundTrips)},
	}
	if m.WinRate != nil {
		lines = append(lines, struct{ label, value string }{"Win Rate", FormatPct(*m.WinRate)})
	}
	if m.ProfitFactor != nil {
		lines = append(lines, struct{ label, value string }{"Profit Factor", fmt.Sprintf("%.2f", *m.ProfitFactor)})
	}
	if m.Volatility != nil {
		lines = append(lines, struct{ label, value string }{"Volatility", fmt.Sprintf("%.4f", *m.Volatility)})
	}
	if m.AvgReturn != nil {
		lines = append(lines, struct{ label, value string }{"Avg Return", fmt.Sprintf("%.4f", *m.AvgReturn)})
	}

	var b strings.Builder
	b.WriteString(rule + "\nBACKTEST PERFORMANCE METRICS\n" + rule + "\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "%-20s%s\n", l.label+":", l.value)
	}
	b.WriteString(rule + "\n")
	_, err := io.WriteString(w, b.String())
	return err
}
