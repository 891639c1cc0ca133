package ports

import (
	"context"

	"breakoutBot/internal/domain"
)

// TradeRepository defines the interface for storing and retrieving completed trades.
type TradeRepository interface {
	// CreateTrade saves a completed trade record (including its partial
	// fills) and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindByUnderlying retrieves the most recent trades for an underlying, up to a limit.
	FindByUnderlying(ctx context.Context, underlying string, limit int) ([]*domain.Trade, error)
	// FindAll retrieves all trades, ordered by entry time descending.
	FindAll(ctx context.Context) ([]*domain.Trade, error)
	// CountToday counts trades recorded today across all underlyings.
	CountToday(ctx context.Context) (int, error)
	// TotalPNLToday sums realized P&L for trades recorded today.
	TotalPNLToday(ctx context.Context) (float64, error)
}
