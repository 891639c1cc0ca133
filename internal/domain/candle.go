package domain

import "time"

// Candle represents a single OHLCV bar for an instrument.
type Candle struct {
	Symbol    string    // Instrument symbol (index or option contract)
	Open      float64   // Opening price
	High      float64   // Highest price
	Low       float64   // Lowest price
	Close     float64   // Closing price
	Volume    float64   // Traded volume
	Timestamp time.Time // Start time of the bar
}
