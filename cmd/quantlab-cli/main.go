package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"quantlab/pkg/quantlab"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: quantlab-cli [-server URL] <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version                 Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  strategies              List strategies and data sources\n")
	fmt.Fprintf(os.Stderr, "  run [options]           Submit a backtest and print its summary\n")
	fmt.Fprintf(os.Stderr, "  runs                    List stored runs\n")
	fmt.Fprintf(os.Stderr, "  show <id>               Print full results as JSON\n")
	fmt.Fprintf(os.Stderr, "  equity <id>             Print the equity curve\n")
	fmt.Fprintf(os.Stderr, "  trades <id>             Print the trade log CSV\n")
	fmt.Fprintf(os.Stderr, "  delete <id>             Delete a stored run\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	server := flag.String("server", envOr("QUANTLAB_SERVER", "http://127.0.0.1:8080"), "backtest-server base URL")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	client := quantlab.NewClient(*server)
	ctx := context.Background()

	var err error
	switch args[0] {
	case "version":
		fmt.Printf("quantlab-cli %s\n", version)
	case "strategies":
		err = cmdStrategies(ctx, client)
	case "run":
		err = cmdRun(ctx, client, args[1:])
	case "runs":
		err = cmdRuns(ctx, client)
	case "show", "equity", "trades", "delete":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "%s: run id required\n", args[0])
			os.Exit(1)
		}
		err = cmdRunID(ctx, client, args[0], args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func cmdStrategies(ctx context.Context, c *quantlab.Client) error {
	cat, err := c.Catalog(ctx)
	if err != nil {
		return err
	}
	fmt.Println("strategies:", strings.Join(cat.Strategies, ", "))
	fmt.Println("sources:   ", strings.Join(cat.Sources, ", "))
	return nil
}

func cmdRun(ctx context.Context, c *quantlab.Client, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	strat := fs.String("strategy", "sma-cross", "strategy name")
	source := fs.String("source", "sample", "data source")
	symbol := fs.String("symbol", "BTC-PERPETUAL", "symbol")
	market := fs.String("market", "", "market: us or crypto")
	timeframe := fs.String("timeframe", "", "bar timeframe, e.g. 1d or 1h")
	start := fs.String("start", "", "start date YYYY-MM-DD")
	end := fs.String("end", "", "end date YYYY-MM-DD")
	limit := fs.Int("limit", 0, "max rows to load")
	capital := fs.Float64("capital", 0, "initial capital")
	commission := fs.Float64("commission", 0, "commission rate")
	params := map[string]float64{}
	fs.Func("param", "strategy parameter key=value (repeatable)", func(s string) error {
		k, v, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("want key=value, got %q", s)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		params[k] = f
		return nil
	})
	fs.Parse(args)

	req := quantlab.BacktestRequest{
		Strategy:  *strat,
		Params:    params,
		Source:    *source,
		Symbol:    *symbol,
		Market:    *market,
		Timeframe: *timeframe,
		Limit:     *limit,
		Options:   quantlab.Options{InitialCapital: *capital, CommissionRate: *commission},
	}
	for _, d := range []struct {
		s   string
		dst **time.Time
	}{{*start, &req.Start}, {*end, &req.End}} {
		if d.s == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, d.s)
		if err != nil {
			return err
		}
		*d.dst = &t
	}

	sum, err := c.RunBacktest(ctx, req)
	if err != nil {
		return err
	}
	printSummaries([]quantlab.RunSummary{sum})
	return nil
}

func cmdRuns(ctx context.Context, c *quantlab.Client) error {
	runs, err := c.ListRuns(ctx)
	if err != nil {
		return err
	}
	printSummaries(runs)
	return nil
}

func printSummaries(runs []quantlab.RunSummary) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTRATEGY\tSYMBOL\tROWS\tTRADES\tRETURN\tSHARPE\tMAX DD")
	for _, r := range runs {
		ret, sharpe, dd := "-", "-", "-"
		if m := r.Metrics; m != nil {
			ret = fmt.Sprintf("%.2f%%", m.TotalReturnPct)
			sharpe = fmt.Sprintf("%.2f", m.SharpeRatio)
			dd = fmt.Sprintf("%.2f%%", m.MaxDrawdownPct)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			r.RunID, r.Strategy, r.Symbol, r.Rows, r.Trades, ret, sharpe, dd)
	}
	tw.Flush()
}

func cmdRunID(ctx context.Context, c *quantlab.Client, cmd, id string) error {
	switch cmd {
	case "show":
		raw, err := c.GetRun(ctx, id)
		if err != nil {
			return err
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "equity":
		curve, err := c.Equity(ctx, id)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIMESTAMP\tEQUITY\tCASH\tPOSITIONS")
		for _, p := range curve {
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\n", p.Timestamp.Format(time.RFC3339), p.Equity, p.Cash, p.PositionsValue)
		}
		return tw.Flush()
	case "trades":
		data, err := c.TradesCSV(ctx, id)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	default:
		if err := c.DeleteRun(ctx, id); err != nil {
			return err
		}
		fmt.Println("deleted", id)
		return nil
	}
}
