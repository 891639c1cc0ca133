package engine

import "sync"

// Session holds the daily counters shared between the entry gate and
// settlement. Settlement is the single writer; monitors only read.
type Session struct {
	mu          sync.Mutex
	tradesToday int
	pnlToday    float64
}

// NewSession creates session state seeded with today's counters, usually
// restored from the trade repository at startup.
func NewSession(tradesToday int, pnlToday float64) *Session {
	return &Session{tradesToday: tradesToday, pnlToday: pnlToday}
}

// RecordTrade adds one completed trade and its realized P&L to the
// daily counters.
func (s *Session) RecordTrade(pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradesToday++
	s.pnlToday += pnl
}

// Snapshot returns the current trade count and cumulative P&L for today.
func (s *Session) Snapshot() (trades int, pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradesToday, s.pnlToday
}
