package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"breakoutBot/internal/adapters/logger"
	"breakoutBot/internal/adapters/sqlite"
	"breakoutBot/internal/domain"
	"breakoutBot/internal/utils"
)

func main() {
	dbPath := flag.String("db", "./data/breakout_bot.db", "path to the trade database")
	out := flag.String("out", "trade_history.csv", "output CSV file")
	underlying := flag.String("underlying", "", "filter by underlying (default: all)")
	limit := flag.Int("limit", 500, "maximum trades when filtering by underlying")
	flag.Parse()

	appLogger, err := logger.NewZapLogger("warn")
	if err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}
	defer appLogger.Sync()

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("Error opening trade database: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	var trades []*domain.Trade
	if *underlying != "" {
		trades, err = repo.FindByUnderlying(ctx, *underlying, *limit)
	} else {
		trades, err = repo.FindAll(ctx)
	}
	if err != nil {
		log.Fatalf("Error reading trades: %v", err)
	}

	if len(trades) == 0 {
		log.Println("No trades recorded yet.")
		return
	}

	if err := utils.WriteTradesToCSV(trades, *out); err != nil {
		log.Fatalf("Error writing %s: %v", *out, err)
	}
	fmt.Printf("Wrote %d trades to %s\n\n", len(trades), *out)

	printSummary(trades)
}

// printSummary prints per-exit-reason statistics for the trade set.
func printSummary(trades []*domain.Trade) {
	type bucket struct {
		count int
		pnl   float64
	}
	byReason := make(map[domain.ExitReason]*bucket)

	wins := 0
	totalPnL := 0.0
	for _, t := range trades {
		totalPnL += t.PNL
		if t.PNL > 0 {
			wins++
		}
		b := byReason[t.ExitReason]
		if b == nil {
			b = &bucket{}
			byReason[t.ExitReason] = b
		}
		b.count++
		b.pnl += t.PNL
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "ExitReason\tTrades\tTotalPnL\t")
	for reason, b := range byReason {
		fmt.Fprintf(w, "%s\t%d\t%.2f\t\n", reason, b.count, b.pnl)
	}
	w.Flush()

	fmt.Printf("\nTrades: %d  WinRate: %.1f%%  TotalPnL: %.2f\n",
		len(trades), float64(wins)/float64(len(trades))*100, totalPnL)
}
