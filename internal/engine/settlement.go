package engine

import (
	"context"
	"fmt"
	"time"

	"breakoutBot/internal/domain"
	"breakoutBot/internal/ports"
	"breakoutBot/internal/risk"
)

// Settlement executes exit orders and turns closed positions into
// immutable trade records. It is the single writer of the session's
// daily counters.
type Settlement struct {
	orders  ports.OrderClient
	repo    ports.TradeRepository
	session *Session
	logger  ports.Logger
	now     func() time.Time
}

// NewSettlement creates a settlement handler.
func NewSettlement(orders ports.OrderClient, repo ports.TradeRepository, session *Session, logger ports.Logger) *Settlement {
	return &Settlement{
		orders:  orders,
		repo:    repo,
		session: session,
		logger:  logger,
		now:     time.Now,
	}
}

// PartialClose executes one ladder rung: it sells the rung's percentage
// of the remaining quantity and records the fill on the position. An
// order failure leaves the rung unfired so the caller retries next tick.
func (s *Settlement) PartialClose(ctx context.Context, pos *domain.Position, rung risk.PartialExitRung, price float64) error {
	quantity := int(float64(pos.Quantity) * rung.ExitPercent / 100)
	if quantity <= 0 {
		// Too little remaining to split; the rung stays eligible and the
		// position exits through a terminal condition instead.
		s.logger.Debug(ctx, "Partial exit skipped: remaining quantity too small", map[string]interface{}{
			"symbol": pos.Symbol, "remaining": pos.Quantity, "exitPercent": rung.ExitPercent,
		})
		return nil
	}

	side := domain.Sell
	if pos.Direction == domain.Short {
		side = domain.Buy
	}
	resp, err := s.orders.SubmitOrder(ctx, pos.Symbol, quantity, side)
	if err != nil {
		return fmt.Errorf("partial exit order failed for %s: %w", pos.Symbol, err)
	}

	fill := domain.PartialExit{
		AfterMinutes: rung.AfterMinutes,
		Quantity:     quantity,
		Price:        price,
		ProfitPct:    pos.ProfitPct(price),
		ExecutedAt:   s.now(),
	}
	pos.ApplyPartialExit(fill)

	s.logger.Info(ctx, "Partial exit executed", map[string]interface{}{
		"symbol": pos.Symbol, "orderID": resp.OrderID,
		"quantity": quantity, "price": price,
		"profitPct": fill.ProfitPct, "remaining": pos.Quantity,
	})
	return nil
}

// Close executes the final exit for the remaining quantity, settles the
// position and records the completed trade. An order failure leaves the
// position open so the caller keeps monitoring and retries; persistence
// failure is logged but never blocks the trading loop.
func (s *Settlement) Close(ctx context.Context, pos *domain.Position, price float64, reason domain.ExitReason) error {
	quantity := pos.Quantity
	if quantity > 0 {
		side := domain.Sell
		if pos.Direction == domain.Short {
			side = domain.Buy
		}
		if _, err := s.orders.SubmitOrder(ctx, pos.Symbol, quantity, side); err != nil {
			return fmt.Errorf("exit order failed for %s (%s): %w", pos.Symbol, reason, err)
		}
	}

	pos.ExitTime = s.now()
	pos.ExitPrice = price
	pos.ExitReason = reason
	pos.RealizedPNL += pos.UnrealizedProfit(price) * float64(quantity)
	pos.Quantity = 0
	pos.Status = domain.StatusClosed

	trade := &domain.Trade{
		Underlying:    pos.Underlying,
		Symbol:        pos.Symbol,
		Direction:     pos.Direction,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     price,
		EntryQuantity: pos.EntryQuantity,
		ExitQuantity:  quantity,
		PNL:           pos.RealizedPNL,
		EntryTime:     pos.EntryTime,
		ExitTime:      pos.ExitTime,
		ExitReason:    reason,
		PartialExits:  pos.PartialExits,
		MaxUp:         pos.MaxUp,
		MaxDown:       pos.MaxDown,
	}
	if _, err := s.repo.CreateTrade(ctx, trade); err != nil {
		s.logger.Error(ctx, err, "Failed to persist completed trade", map[string]interface{}{
			"symbol": pos.Symbol, "pnl": trade.PNL,
		})
	}
	pos.ID = trade.ID

	s.session.RecordTrade(pos.RealizedPNL)

	s.logger.Info(ctx, "Position closed", map[string]interface{}{
		"symbol": pos.Symbol, "reason": reason,
		"entryPrice": pos.EntryPrice, "exitPrice": price,
		"pnl": pos.RealizedPNL, "holding": trade.HoldingDuration().String(),
		"maxUp": pos.MaxUp, "maxDown": pos.MaxDown,
	})
	return nil
}
