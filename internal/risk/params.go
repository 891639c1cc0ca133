package risk

import (
	"fmt"
	"strings"
	"time"

	"breakoutBot/internal/domain"
)

// PartialExitRung is one step of the partial-exit ladder: after
// AfterMinutes of holding time, if profit is at least MinProfitPct,
// close ExitPercent of the remaining quantity.
type PartialExitRung struct {
	AfterMinutes int     `yaml:"after_minutes"`
	MinProfitPct float64 `yaml:"min_profit_pct"`
	ExitPercent  float64 `yaml:"exit_percent"`
}

// TrailingStop configures the trailing-stop ratchet.
type TrailingStop struct {
	Enabled       bool    `yaml:"enabled"`
	ActivationPct float64 `yaml:"activation_pct"` // % of target distance before trailing starts
	TrailingPct   float64 `yaml:"trailing_pct"`   // % of unrealized profit locked in
}

// Parameters holds the full stop/target/trailing/partial-exit policy.
// Loaded once at startup and read-only for the session.
type Parameters struct {
	StopLossPoints     float64           `yaml:"stop_loss_points"`
	UseATRStop         bool              `yaml:"use_atr_stop"`
	ATRPeriods         int               `yaml:"atr_periods"`
	ATRMultiplier      float64           `yaml:"atr_multiplier"`
	TargetPoints       float64           `yaml:"target_points"`
	Trailing           TrailingStop      `yaml:"trailing"`
	MaxHoldingMinutes  int               `yaml:"max_holding_minutes"`
	PartialExits       []PartialExitRung `yaml:"partial_exits"`
	MaxEntryPremiumPct float64           `yaml:"max_entry_premium_pct"`
	MaxDailyTrades     int               `yaml:"max_daily_trades"`
	MaxDailyLoss       float64           `yaml:"max_daily_loss"` // negative floor, e.g. -2000
}

// Validate checks the parameters and returns all problems found.
// Running with undefined risk limits is never acceptable, so any error
// here is fatal at startup.
func (p *Parameters) Validate() error {
	var errs []string

	if p.StopLossPoints <= 0 {
		errs = append(errs, "stop_loss_points must be positive")
	}
	if p.UseATRStop {
		if p.ATRPeriods <= 0 {
			errs = append(errs, "atr_periods must be positive when use_atr_stop is set")
		}
		if p.ATRMultiplier <= 0 {
			errs = append(errs, "atr_multiplier must be positive when use_atr_stop is set")
		}
	}
	if p.TargetPoints <= 0 {
		errs = append(errs, "target_points must be positive")
	}
	if p.Trailing.Enabled {
		if p.Trailing.ActivationPct <= 0 || p.Trailing.ActivationPct > 100 {
			errs = append(errs, "trailing.activation_pct must be in (0, 100]")
		}
		if p.Trailing.TrailingPct <= 0 || p.Trailing.TrailingPct > 100 {
			errs = append(errs, "trailing.trailing_pct must be in (0, 100]")
		}
	}
	if p.MaxHoldingMinutes <= 0 {
		errs = append(errs, "max_holding_minutes must be positive")
	}
	for i, rung := range p.PartialExits {
		if rung.AfterMinutes <= 0 {
			errs = append(errs, fmt.Sprintf("partial_exits[%d].after_minutes must be positive", i))
		}
		if rung.MinProfitPct < 0 {
			errs = append(errs, fmt.Sprintf("partial_exits[%d].min_profit_pct cannot be negative", i))
		}
		// 100% of remaining is a full exit, not a partial one.
		if rung.ExitPercent <= 0 || rung.ExitPercent >= 100 {
			errs = append(errs, fmt.Sprintf("partial_exits[%d].exit_percent must be in (0, 100)", i))
		}
	}
	if p.MaxEntryPremiumPct <= 0 {
		errs = append(errs, "max_entry_premium_pct must be positive")
	}
	if p.MaxDailyTrades <= 0 {
		errs = append(errs, "max_daily_trades must be positive")
	}
	if p.MaxDailyLoss >= 0 {
		errs = append(errs, "max_daily_loss must be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("risk parameter validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// MaxHolding returns the maximum holding duration as a time.Duration.
func (p *Parameters) MaxHolding() time.Duration {
	return time.Duration(p.MaxHoldingMinutes) * time.Minute
}

// StopLossFor calculates the initial stop for an entry. When the ATR
// stop is enabled and a positive ATR value is supplied, the stop
// distance is atr*multiplier; otherwise the fixed point distance is used.
func (p *Parameters) StopLossFor(entryPrice float64, dir domain.Direction, atr float64) float64 {
	distance := p.StopLossPoints
	if p.UseATRStop && atr > 0 {
		distance = atr * p.ATRMultiplier
	}
	if dir == domain.Short {
		return entryPrice + distance
	}
	return entryPrice - distance
}

// TargetFor calculates the fixed target for an entry.
func (p *Parameters) TargetFor(entryPrice float64, dir domain.Direction) float64 {
	if dir == domain.Short {
		return entryPrice - p.TargetPoints
	}
	return entryPrice + p.TargetPoints
}

// TrailingCandidate computes the candidate trailing stop at the current
// price, or ok=false when trailing is disabled or not yet activated.
// Activation requires unrealized profit of at least ActivationPct of
// the entry-to-target distance. The candidate locks in TrailingPct of
// the unrealized profit; the caller adopts it only if it tightens.
func (p *Parameters) TrailingCandidate(pos *domain.Position, price float64) (float64, bool) {
	if !p.Trailing.Enabled {
		return 0, false
	}
	profit := pos.UnrealizedProfit(price)
	if profit <= 0 {
		return 0, false
	}
	targetDistance := pos.Target - pos.EntryPrice
	if pos.Direction == domain.Short {
		targetDistance = pos.EntryPrice - pos.Target
	}
	activation := targetDistance * (p.Trailing.ActivationPct / 100)
	if profit < activation {
		return 0, false
	}
	trailAmount := profit * (p.Trailing.TrailingPct / 100)
	if pos.Direction == domain.Short {
		return price + trailAmount, true
	}
	return price - trailAmount, true
}
