package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"papertrader/internal/domain"
)

// WriteTradesToCSV dumps a trade log to a CSV file, one row per trade.
func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"id", "timestamp", "instrument", "name", "side", "amount_eur", "shares", "price"})

	for _, t := range trades {
		writer.Write([]string{
			strconv.FormatInt(t.ID, 10),
			t.Timestamp.Format(time.RFC3339),
			t.InstrumentID,
			t.DisplayName,
			string(t.Side),
			t.Amount.String(),
			t.Shares.String(),
			t.Price.String(),
		})
	}
	return writer.Error()
}
