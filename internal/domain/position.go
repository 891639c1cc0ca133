package domain

import "time"

// PartialExit records a single executed rung of the partial-exit ladder.
type PartialExit struct {
	AfterMinutes int       // Ladder rung this fill belongs to (elapsed-time bucket)
	Quantity     int       // Quantity closed at this rung
	Price        float64   // Fill price
	ProfitPct    float64   // Signed profit percentage at fill time
	ExecutedAt   time.Time // Fill timestamp
}

// Position represents an open option position. It is owned exclusively by
// the monitoring task for its underlying; no other goroutine mutates it.
type Position struct {
	ID            int64          // Assigned by the repository on settlement
	Underlying    string         // Index this contract belongs to
	Symbol        string         // Option contract symbol
	Direction     Direction      // LONG or SHORT
	EntryTime     time.Time      // Timestamp of entry fill
	EntryPrice    float64        // Entry fill price
	EntryQuantity int            // Original quantity at entry
	Quantity      int            // Current remaining quantity (decreases on partial exits)
	Lots          int            // Number of lots entered
	StopLoss      float64        // Current stop; only ever tightens
	Target        float64        // Fixed at entry
	PartialExits  []PartialExit  // Executed rungs, in fill order
	ExitTime      time.Time      // Zero value while open
	ExitPrice     float64        // 0 while open
	ExitReason    ExitReason     // Empty while open
	Status        PositionStatus // open, partially_exited, closed
	RealizedPNL   float64        // Accumulated from partial exits plus final exit
	MaxUp         float64        // Best unrealized P&L seen (favourable excursion)
	MaxDown       float64        // Worst unrealized P&L seen (adverse excursion)
}

// IsOpen reports whether the position still has live quantity.
func (p *Position) IsOpen() bool {
	return p.Status != StatusClosed
}

// ProfitPct returns the signed profit percentage at the given price,
// positive when the position is in profit regardless of direction.
func (p *Position) ProfitPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	pct := ((price - p.EntryPrice) / p.EntryPrice) * 100
	if p.Direction == Short {
		pct = -pct
	}
	return pct
}

// UnrealizedProfit returns the per-unit profit in price terms at the
// given price (positive when favourable).
func (p *Position) UnrealizedProfit(price float64) float64 {
	if p.Direction == Short {
		return p.EntryPrice - price
	}
	return price - p.EntryPrice
}

// PNLAt returns the open-quantity P&L at the given price.
func (p *Position) PNLAt(price float64) float64 {
	return p.UnrealizedProfit(price) * float64(p.Quantity)
}

// TightenStop adopts the candidate stop only if it reduces risk
// (raises the stop for longs, lowers it for shorts). Returns true when
// the stop moved.
func (p *Position) TightenStop(candidate float64) bool {
	if p.Direction == Long && candidate > p.StopLoss {
		p.StopLoss = candidate
		return true
	}
	if p.Direction == Short && candidate < p.StopLoss {
		p.StopLoss = candidate
		return true
	}
	return false
}

// ApplyPartialExit records a rung fill and reduces the remaining quantity.
func (p *Position) ApplyPartialExit(pe PartialExit) {
	p.PartialExits = append(p.PartialExits, pe)
	p.Quantity -= pe.Quantity
	p.RealizedPNL += p.UnrealizedProfit(pe.Price) * float64(pe.Quantity)
	p.Status = StatusPartiallyExited
}

// RungExecuted reports whether the ladder rung identified by its
// elapsed-time bucket has already fired for this position.
func (p *Position) RungExecuted(afterMinutes int) bool {
	for _, pe := range p.PartialExits {
		if pe.AfterMinutes == afterMinutes {
			return true
		}
	}
	return false
}

// HoldingTime returns how long the position has been held as of now.
func (p *Position) HoldingTime(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}
