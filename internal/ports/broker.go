package ports

import (
	"context"
	"time"

	"breakoutBot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       string    // Broker's order ID
	ClientOrderID string    // Client-generated order ID
	Symbol        string    // Symbol for the order
	Quantity      int       // Quantity submitted
	Side          domain.OrderSide
	Timestamp     time.Time // Time the order response was generated
}

// MarketDataClient retrieves bars and last-traded prices from the broker.
type MarketDataClient interface {
	// GetOpeningBar retrieves the first bar of the given duration for the
	// trading session. Returns ErrDataUnavailable when the broker has no
	// bar for the window yet.
	GetOpeningBar(ctx context.Context, symbol string, barDuration time.Duration) (*domain.Candle, error)

	// GetLastPrice retrieves the last traded price for a symbol.
	// Returns ErrPriceUnavailable when the feed has no price.
	GetLastPrice(ctx context.Context, symbol string) (float64, error)

	// GetHistory retrieves up to limit recent bars for the symbol,
	// oldest first.
	GetHistory(ctx context.Context, symbol string, barDuration time.Duration, limit int) ([]*domain.Candle, error)
}

// InstrumentResolver maps an underlying, expiry, strike and option class
// to a tradable contract symbol.
type InstrumentResolver interface {
	ResolveOptionInstrument(ctx context.Context, underlying string, expiry time.Time, strike int, class domain.OptionClass) (string, error)
}

// OrderClient submits orders to the broker.
type OrderClient interface {
	// SubmitOrder places a market order. Returns ErrOrderRejected (wrapped)
	// when the broker refuses the order.
	SubmitOrder(ctx context.Context, symbol string, quantity int, side domain.OrderSide) (*OrderResponse, error)
}

// BrokerClient is the full broker surface the engine depends on.
type BrokerClient interface {
	MarketDataClient
	InstrumentResolver
	OrderClient
}
