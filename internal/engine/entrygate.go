package engine

import (
	"context"
	"fmt"

	"breakoutBot/config"
	"breakoutBot/internal/domain"
	"breakoutBot/internal/ports"
	"breakoutBot/internal/risk"
	"breakoutBot/internal/strategy/indicators"
)

// EntryGate enforces the daily trade-count and loss ceilings and the
// optional volume/momentum confirmation filters before an entry is
// allowed. The confirmation filters fail open: insufficient history
// passes rather than stalling entries.
type EntryGate struct {
	session  *Session
	params   *risk.Parameters
	filters  config.EntryFilters
	avgVol   *indicators.AverageVolume
	momentum *indicators.Momentum
	logger   ports.Logger
}

// NewEntryGate creates an entry gate over the shared session counters.
func NewEntryGate(session *Session, params *risk.Parameters, filters config.EntryFilters, logger ports.Logger) *EntryGate {
	return &EntryGate{
		session: session,
		params:  params,
		filters: filters,
		avgVol: indicators.NewAverageVolume(indicators.AverageVolumeConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: filters.VolumePeriods},
		}),
		momentum: indicators.NewMomentum(indicators.MomentumConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: filters.MomentumPeriods},
		}),
		logger: logger,
	}
}

// Validate reports whether a new entry is allowed right now. The bars
// argument carries recent history for the instrument being entered and
// may be nil or short; the deny reason is returned for logging.
func (g *EntryGate) Validate(ctx context.Context, underlying string, bars []*domain.Candle) (bool, string) {
	trades, pnl := g.session.Snapshot()

	if trades >= g.params.MaxDailyTrades {
		return false, fmt.Sprintf("daily trade limit reached (%d/%d)", trades, g.params.MaxDailyTrades)
	}
	if pnl <= g.params.MaxDailyLoss {
		return false, fmt.Sprintf("daily loss limit reached (%.2f <= %.2f)", pnl, g.params.MaxDailyLoss)
	}

	if g.filters.VolumeConfirmation {
		if ok, reason := g.volumeConfirmed(ctx, bars); !ok {
			return false, reason
		}
	}
	if g.filters.MomentumConfirmation {
		if ok, reason := g.momentumConfirmed(ctx, bars); !ok {
			return false, reason
		}
	}

	g.logger.Debug(ctx, "Entry allowed", map[string]interface{}{
		"underlying": underlying, "tradesToday": trades, "pnlToday": pnl,
	})
	return true, ""
}

// volumeConfirmed requires the latest bar's volume to be at least the
// trailing average times the threshold multiplier.
func (g *EntryGate) volumeConfirmed(ctx context.Context, bars []*domain.Candle) (bool, string) {
	// The average excludes the bar being confirmed.
	if len(bars) < g.filters.VolumePeriods+1 {
		g.logger.Debug(ctx, "Volume filter skipped: insufficient history", map[string]interface{}{"bars": len(bars)})
		return true, ""
	}
	current := bars[len(bars)-1]
	avg, err := g.avgVol.Calculate(ctx, bars[:len(bars)-1])
	if err != nil || avg <= 0 {
		return true, ""
	}
	if current.Volume < avg*g.filters.VolumeThreshold {
		return false, fmt.Sprintf("volume confirmation failed (%.0f < %.0f x %.2f)",
			current.Volume, avg, g.filters.VolumeThreshold)
	}
	return true, ""
}

// momentumConfirmed requires the most recent close to be above the close
// MomentumPeriods bars earlier.
func (g *EntryGate) momentumConfirmed(ctx context.Context, bars []*domain.Candle) (bool, string) {
	rising, err := g.momentum.Rising(ctx, bars)
	if err != nil {
		g.logger.Debug(ctx, "Momentum filter skipped: insufficient history", map[string]interface{}{"bars": len(bars)})
		return true, ""
	}
	if !rising {
		return false, "momentum confirmation failed"
	}
	return true, ""
}
