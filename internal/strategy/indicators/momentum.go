package indicators

import (
	"context"
	"fmt"

	"breakoutBot/internal/domain"
)

// MomentumConfig holds configuration for the close-over-close momentum check
type MomentumConfig struct {
	IndicatorConfig
}

// Momentum implements a simple close-over-close momentum check.
type Momentum struct {
	config MomentumConfig
}

// NewMomentum creates a new momentum indicator instance
func NewMomentum(config MomentumConfig) *Momentum {
	return &Momentum{
		config: config,
	}
}

// Rising reports whether the most recent close is above the close
// 'period' bars earlier.
func (m *Momentum) Rising(ctx context.Context, candles []*domain.Candle) (bool, error) {
	period := m.config.Period
	if len(candles) < period {
		return false, fmt.Errorf("not enough data points for momentum: need %d, got %d", period, len(candles))
	}

	window := candles[len(candles)-period:]
	return window[len(window)-1].Close > window[0].Close, nil
}
