// Package main - daily-stats prints a performance summary for one day's
// Completed Trades, read from the Postgres audit mirror (internal/storage).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kestrel-labs/daytrader-engine/internal/analytics"
	"github.com/kestrel-labs/daytrader-engine/internal/config"
	"github.com/kestrel-labs/daytrader-engine/internal/storage"
)

const (
	Reset  = "\033[0m"
	Red    = "\033[0;31m"
	Green  = "\033[0;32m"
	Yellow = "\033[1;33m"
	Blue   = "\033[0;34m"
	Cyan   = "\033[0;36m"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	dateFlag := flag.String("date", "", "date in YYYY-MM-DD format (defaults to today)")
	curveFlag := flag.Bool("curve", false, "print the equity curve alongside the summary")
	capitalFlag := flag.Float64("capital", 0, "starting capital for equity curve / drawdown calculations")
	flag.Parse()

	date := *dateFlag
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		fmt.Fprintln(os.Stderr, "invalid date format, use YYYY-MM-DD")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "database_url is not configured; no audit mirror to query")
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit mirror: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	trades, err := store.TradesForDate(ctx, date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query trades: %v\n", err)
		os.Exit(1)
	}

	report := analytics.Analyze(trades, *capitalFlag)
	printSummary(date, report)
	printTrades(trades)
	if *curveFlag {
		printEquityCurve(analytics.EquityCurve(trades, *capitalFlag))
	}
}

func printSummary(date string, r *analytics.PerformanceReport) {
	fmt.Printf("%s==== Daily Trading Statistics — %s ====%s\n\n", Cyan, date, Reset)

	if r.TotalTrades == 0 {
		fmt.Printf("%sNo trades found for %s%s\n\n", Yellow, date, Reset)
		return
	}

	pnlColor := Green
	if r.TotalPnL < 0 {
		pnlColor = Red
	}

	fmt.Printf("  %sTotal trades:%s   %d\n", Yellow, Reset, r.TotalTrades)
	fmt.Printf("  %sWin rate:%s       %.1f%% (%d win / %d loss)\n", Yellow, Reset, r.WinRate, r.WinningTrades, r.LosingTrades)
	fmt.Printf("  %sTotal P&L:%s      %s$%.2f%s\n", Yellow, Reset, pnlColor, r.TotalPnL, Reset)
	fmt.Printf("  %sProfit factor:%s  %.2f\n\n", Yellow, Reset, r.ProfitFactor)

	if len(r.StrategyReports) > 1 {
		fmt.Printf("%sBy indicator%s\n", Blue, Reset)
		for name, sr := range r.StrategyReports {
			fmt.Printf("  %-16s trades=%-4d win_rate=%.1f%% pnl=$%.2f\n", name, sr.TotalTrades, sr.WinRate, sr.TotalPnL)
		}
		fmt.Println()
	}
}

func printTrades(trades []storage.TradeRecord) {
	if len(trades) == 0 {
		return
	}
	fmt.Printf("%sTrades%s\n", Blue, Reset)
	fmt.Printf("%-10s %-12s %-10s %-10s %-10s %-10s\n", "Ticker", "Indicator", "Entry", "Exit", "P&L", "Exit time")
	fmt.Println(strings.Repeat("-", 70))
	for _, t := range trades {
		pnlColor := Green
		if t.PnLDollars < 0 {
			pnlColor = Red
		}
		fmt.Printf("%-10s %-12s %-10.2f %-10.2f %s%-10.2f%s %s\n",
			t.Ticker, t.Indicator, t.EntryPrice, t.ExitPrice, pnlColor, t.PnLDollars, Reset, t.ExitTime.Format("15:04:05"))
	}
	fmt.Println()
}

func printEquityCurve(points []analytics.EquityCurvePoint) {
	if len(points) == 0 {
		return
	}
	fmt.Printf("%sEquity curve%s\n", Blue, Reset)
	fmt.Printf("%-10s %-12s %-10s\n", "Time", "Equity", "Drawdown")
	fmt.Println(strings.Repeat("-", 40))
	for _, p := range points {
		ddColor := Reset
		if p.Drawdown > 0 {
			ddColor = Red
		}
		fmt.Printf("%-10s $%-11.2f %s$%-9.2f%s\n",
			p.Date.Format("15:04:05"), p.Equity, ddColor, p.Drawdown, Reset)
	}
	fmt.Println()
}
