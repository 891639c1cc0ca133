package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"breakoutBot/config"
	"breakoutBot/internal/domain"
	"breakoutBot/internal/ports"
	"breakoutBot/internal/risk"
	"breakoutBot/internal/strategy/indicators"
)

const cleanupTimeout = 10 * time.Second

// PositionManager opens positions and runs the per-tick state machine
// over them: stop-loss, target, time exit, the partial-exit ladder and
// the trailing-stop ratchet. Each position is owned by exactly one
// Run loop.
type PositionManager struct {
	orders     ports.OrderClient
	data       ports.MarketDataClient
	params     *risk.Parameters
	settlement *Settlement
	atr        *indicators.ATR
	poll       time.Duration
	logger     ports.Logger
	now        func() time.Time
}

// NewPositionManager creates a position manager.
func NewPositionManager(orders ports.OrderClient, data ports.MarketDataClient, params *risk.Parameters, settlement *Settlement, poll time.Duration, logger ports.Logger) *PositionManager {
	return &PositionManager{
		orders:     orders,
		data:       data,
		params:     params,
		settlement: settlement,
		atr: indicators.NewATR(indicators.ATRConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: params.ATRPeriods},
		}),
		poll:   poll,
		logger: logger,
		now:    time.Now,
	}
}

// Open submits the entry order and builds the position with its initial
// stop and target. Quantity is lots times the contract lot size.
func (m *PositionManager) Open(ctx context.Context, underlying, symbol string, price float64, sym config.SymbolConfig) (*domain.Position, error) {
	quantity := sym.Lots * sym.LotSize
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: non-positive quantity for %s", ports.ErrInvalidRequest, symbol)
	}

	atrValue := m.entryATR(ctx, symbol)

	resp, err := m.orders.SubmitOrder(ctx, symbol, quantity, domain.Buy)
	if err != nil {
		return nil, fmt.Errorf("entry order failed for %s: %w", symbol, err)
	}

	pos := &domain.Position{
		Underlying:    underlying,
		Symbol:        symbol,
		Direction:     domain.Long,
		EntryTime:     m.now(),
		EntryPrice:    price,
		EntryQuantity: quantity,
		Quantity:      quantity,
		Lots:          sym.Lots,
		StopLoss:      m.params.StopLossFor(price, domain.Long, atrValue),
		Target:        m.params.TargetFor(price, domain.Long),
		Status:        domain.StatusOpen,
	}

	m.logger.Info(ctx, "Position opened", map[string]interface{}{
		"underlying": underlying, "symbol": symbol, "orderID": resp.OrderID,
		"entryPrice": price, "quantity": quantity,
		"stopLoss": pos.StopLoss, "target": pos.Target, "atr": atrValue,
	})
	return pos, nil
}

// entryATR computes the ATR used for the volatility stop. Any failure
// falls back to the fixed-point stop distance.
func (m *PositionManager) entryATR(ctx context.Context, symbol string) float64 {
	if !m.params.UseATRStop {
		return 0
	}
	bars, err := m.data.GetHistory(ctx, symbol, time.Minute, m.params.ATRPeriods+1)
	if err != nil {
		m.logger.Debug(ctx, "ATR history unavailable, using fixed stop", map[string]interface{}{
			"symbol": symbol, "error": err.Error(),
		})
		return 0
	}
	value, err := m.atr.Calculate(ctx, bars)
	if err != nil {
		m.logger.Debug(ctx, "ATR calculation failed, using fixed stop", map[string]interface{}{
			"symbol": symbol, "error": err.Error(),
		})
		return 0
	}
	return value
}

// tickDecision is the outcome of one evaluation pass over a position.
// A terminal reason suppresses the ladder and trailing actions for the
// same tick.
type tickDecision struct {
	exitReason domain.ExitReason
	rungs      []risk.PartialExitRung
	trailStop  float64
	trail      bool
}

// evaluateTick applies the fixed per-tick check order: stop, target,
// time, then partial-exit rungs and the trailing-stop candidate. It
// does not mutate the position.
func (m *PositionManager) evaluateTick(pos *domain.Position, price float64, now time.Time) tickDecision {
	if pos.Direction == domain.Long && price <= pos.StopLoss ||
		pos.Direction == domain.Short && price >= pos.StopLoss {
		return tickDecision{exitReason: domain.ExitReasonStopLoss}
	}
	if pos.Direction == domain.Long && price >= pos.Target ||
		pos.Direction == domain.Short && price <= pos.Target {
		return tickDecision{exitReason: domain.ExitReasonTarget}
	}
	if pos.HoldingTime(now) >= m.params.MaxHolding() {
		return tickDecision{exitReason: domain.ExitReasonTimeExit}
	}

	var d tickDecision
	held := pos.HoldingTime(now)
	profitPct := pos.ProfitPct(price)
	for _, rung := range m.params.PartialExits {
		if pos.RungExecuted(rung.AfterMinutes) {
			continue
		}
		if held < time.Duration(rung.AfterMinutes)*time.Minute {
			continue
		}
		if profitPct >= rung.MinProfitPct {
			d.rungs = append(d.rungs, rung)
		}
	}

	if candidate, ok := m.params.TrailingCandidate(pos, price); ok {
		d.trailStop = candidate
		d.trail = true
	}
	return d
}

// Run manages the position until it closes. Transient price and order
// failures are logged and retried on the next tick; the maximum holding
// ceiling is enforced even when no fresh price arrives. Cancellation
// force-closes the position with reason CLEANUP before returning.
func (m *PositionManager) Run(ctx context.Context, pos *domain.Position) error {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	lastPrice := pos.EntryPrice

	for pos.IsOpen() {
		select {
		case <-ctx.Done():
			return m.cleanup(pos, lastPrice)
		case <-ticker.C:
		}

		now := m.now()
		price, err := m.data.GetLastPrice(ctx, pos.Symbol)
		if err != nil || price <= 0 {
			if err != nil {
				m.logger.Debug(ctx, "No price for position, retrying next tick", map[string]interface{}{
					"symbol": pos.Symbol, "error": err.Error(),
				})
			}
			// The holding ceiling does not wait for the feed to recover.
			if pos.HoldingTime(now) >= m.params.MaxHolding() {
				if err := m.settlement.Close(ctx, pos, lastPrice, domain.ExitReasonTimeExit); err != nil {
					m.logger.Error(ctx, err, "Time exit failed, retrying next tick", map[string]interface{}{"symbol": pos.Symbol})
				}
			}
			continue
		}
		lastPrice = price

		pnl := pos.PNLAt(price)
		if pnl > pos.MaxUp {
			pos.MaxUp = pnl
		}
		if pnl < pos.MaxDown {
			pos.MaxDown = pnl
		}

		d := m.evaluateTick(pos, price, now)
		if d.exitReason != domain.ExitReasonNone {
			if err := m.settlement.Close(ctx, pos, price, d.exitReason); err != nil {
				m.logger.Error(ctx, err, "Exit failed, retrying next tick", map[string]interface{}{
					"symbol": pos.Symbol, "reason": d.exitReason,
				})
			}
			continue
		}

		for _, rung := range d.rungs {
			if err := m.settlement.PartialClose(ctx, pos, rung, price); err != nil {
				m.logger.Error(ctx, err, "Partial exit failed, retrying next tick", map[string]interface{}{
					"symbol": pos.Symbol, "afterMinutes": rung.AfterMinutes,
				})
				break
			}
		}

		if d.trail && pos.TightenStop(d.trailStop) {
			m.logger.Info(ctx, "Trailing stop tightened", map[string]interface{}{
				"symbol": pos.Symbol, "stopLoss": pos.StopLoss, "price": price,
			})
		}
	}
	return nil
}

// cleanup force-closes the position at the best available price. It
// runs on its own context so shutdown still settles the position.
func (m *PositionManager) cleanup(pos *domain.Position, lastPrice float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	price, err := m.data.GetLastPrice(ctx, pos.Symbol)
	if err != nil || price <= 0 {
		price = lastPrice
	}

	retry := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2,
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if lastErr = m.settlement.Close(ctx, pos, price, domain.ExitReasonCleanup); lastErr == nil {
			return nil
		}
		time.Sleep(retry.Duration())
	}
	m.logger.Error(ctx, lastErr, "Failed to settle position during cleanup", map[string]interface{}{
		"symbol": pos.Symbol, "quantity": pos.Quantity,
	})
	return lastErr
}
