package domain

import "time"

// BreakoutLevel holds the trigger prices derived from the opening range
// for one underlying. Read-only after creation; one instance per
// underlying per session.
type BreakoutLevel struct {
	Underlying   string    // Index name (e.g. "banknifty")
	IndexSymbol  string    // Tradable index symbol (e.g. "NSE:NIFTYBANK-INDEX")
	CESymbol     string    // Resolved call contract
	PESymbol     string    // Resolved put contract
	CETrigger    float64   // Call trigger price (reference + buffer)
	PETrigger    float64   // Put trigger price (reference + buffer)
	CEReference  float64   // Call reference (closing) price at capture
	PEReference  float64   // Put reference (closing) price at capture
	SpotPrice    float64   // Underlying spot at capture
	CalculatedAt time.Time // Capture timestamp
}
