package domain

import "time"

// Trade is the immutable record of a completed position: entry and exit
// prices and times, the quantity path through partial exits, and total
// realized P&L.
type Trade struct {
	ID            int64         // Assigned by the repository
	Underlying    string        // Index the contract belongs to
	Symbol        string        // Option contract symbol
	Direction     Direction     // LONG or SHORT
	EntryPrice    float64       // Entry fill price
	ExitPrice     float64       // Final exit fill price
	EntryQuantity int           // Quantity at entry
	ExitQuantity  int           // Quantity closed at final exit
	PNL           float64       // Total realized P&L over all fills
	EntryTime     time.Time     // Entry timestamp
	ExitTime      time.Time     // Final exit timestamp
	ExitReason    ExitReason    // Terminal reason (exactly one)
	PartialExits  []PartialExit // Rung fills executed before the final exit
	MaxUp         float64       // Best unrealized P&L during the trade
	MaxDown       float64       // Worst unrealized P&L during the trade
}

// HoldingDuration returns the time between entry and final exit.
func (t *Trade) HoldingDuration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}
