package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"breakoutBot/internal/domain"
)

func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{
		"entry_time", "exit_time", "underlying", "symbol", "direction",
		"entry_price", "exit_price", "entry_quantity", "exit_quantity",
		"partial_exits", "exit_reason", "pnl", "max_up", "max_down", "holding",
	})

	for _, t := range trades {
		writer.Write([]string{
			t.EntryTime.Format(time.RFC3339),
			t.ExitTime.Format(time.RFC3339),
			t.Underlying,
			t.Symbol,
			string(t.Direction),
			strconv.FormatFloat(t.EntryPrice, 'f', 2, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', 2, 64),
			strconv.Itoa(t.EntryQuantity),
			strconv.Itoa(t.ExitQuantity),
			strconv.Itoa(len(t.PartialExits)),
			string(t.ExitReason),
			strconv.FormatFloat(t.PNL, 'f', 2, 64),
			strconv.FormatFloat(t.MaxUp, 'f', 2, 64),
			strconv.FormatFloat(t.MaxDown, 'f', 2, 64),
			t.HoldingDuration().String(),
		})
	}
	return writer.Error()
}
