package engine

import (
	"context"
	"time"

	"breakoutBot/config"
	"breakoutBot/internal/domain"
	"breakoutBot/internal/ports"
	"breakoutBot/internal/risk"
)

// Monitor polls live option premiums against the session's breakout
// triggers until one side breaches at an acceptable premium, the
// monitoring window elapses, or the context is cancelled.
type Monitor struct {
	data      ports.MarketDataClient
	gate      *EntryGate
	positions *PositionManager
	params    *risk.Parameters
	filters   config.EntryFilters
	window    time.Duration
	poll      time.Duration
	barDur    time.Duration
	logger    ports.Logger
	now       func() time.Time
}

// NewMonitor creates a breakout monitor.
func NewMonitor(data ports.MarketDataClient, gate *EntryGate, positions *PositionManager, params *risk.Parameters, filters config.EntryFilters, window, poll, barDuration time.Duration, logger ports.Logger) *Monitor {
	return &Monitor{
		data:      data,
		gate:      gate,
		positions: positions,
		params:    params,
		filters:   filters,
		window:    window,
		poll:      poll,
		barDur:    barDuration,
		logger:    logger,
		now:       time.Now,
	}
}

// monitorSide is one leg of the level being watched.
type monitorSide struct {
	symbol  string
	trigger float64
	class   domain.OptionClass
}

// Run watches both legs of the level. It returns the opened position on
// a valid breach, or (nil, nil) when the window expires with no trade.
// Missing prices on a tick are tolerated and retried on the next tick.
func (m *Monitor) Run(ctx context.Context, level *domain.BreakoutLevel, sym config.SymbolConfig) (*domain.Position, error) {
	sides := []monitorSide{
		{symbol: level.CESymbol, trigger: level.CETrigger, class: domain.Call},
		{symbol: level.PESymbol, trigger: level.PETrigger, class: domain.Put},
	}

	deadline := m.now().Add(m.window)
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	m.logger.Info(ctx, "Monitoring for breakout", map[string]interface{}{
		"underlying": level.Underlying,
		"ceSymbol":   level.CESymbol, "ceTrigger": level.CETrigger,
		"peSymbol": level.PESymbol, "peTrigger": level.PETrigger,
		"window": m.window.String(),
	})

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		if m.now().After(deadline) {
			m.logger.Info(ctx, "Monitoring window expired with no breakout", map[string]interface{}{
				"underlying": level.Underlying,
			})
			return nil, nil
		}

		for _, side := range sides {
			price, err := m.data.GetLastPrice(ctx, side.symbol)
			if err != nil {
				// No price on this tick is normal early in the session.
				m.logger.Debug(ctx, "No price for leg, retrying next tick", map[string]interface{}{
					"symbol": side.symbol, "error": err.Error(),
				})
				continue
			}
			if price < side.trigger {
				continue
			}

			premium := (price - side.trigger) / side.trigger
			if premium > m.params.MaxEntryPremiumPct/100 {
				m.logger.Info(ctx, "Breakout premium too high, waiting for retrace", map[string]interface{}{
					"symbol": side.symbol, "price": price, "trigger": side.trigger,
					"premiumPct": premium * 100, "maxPct": m.params.MaxEntryPremiumPct,
				})
				continue
			}

			bars := m.filterHistory(ctx, side.symbol)
			if allowed, reason := m.gate.Validate(ctx, level.Underlying, bars); !allowed {
				m.logger.Info(ctx, "Entry denied", map[string]interface{}{
					"symbol": side.symbol, "price": price, "reason": reason,
				})
				continue
			}

			pos, err := m.positions.Open(ctx, level.Underlying, side.symbol, price, sym)
			if err != nil {
				m.logger.Error(ctx, err, "Failed to open position, monitoring continues", map[string]interface{}{
					"symbol": side.symbol, "price": price,
				})
				continue
			}
			return pos, nil
		}
	}
}

// filterHistory fetches recent bars for the confirmation filters. A nil
// return is acceptable: the filters fail open on missing history.
func (m *Monitor) filterHistory(ctx context.Context, symbol string) []*domain.Candle {
	if !m.filters.VolumeConfirmation && !m.filters.MomentumConfirmation {
		return nil
	}
	limit := m.filters.VolumePeriods + 1
	if m.filters.MomentumPeriods > limit {
		limit = m.filters.MomentumPeriods
	}
	bars, err := m.data.GetHistory(ctx, symbol, m.barDur, limit)
	if err != nil {
		m.logger.Debug(ctx, "Filter history unavailable", map[string]interface{}{
			"symbol": symbol, "error": err.Error(),
		})
		return nil
	}
	return bars
}
