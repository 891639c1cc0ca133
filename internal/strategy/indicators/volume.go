package indicators

import (
	"context"
	"fmt"

	"breakoutBot/internal/domain"
)

// AverageVolumeConfig holds configuration for the trailing average volume indicator
type AverageVolumeConfig struct {
	IndicatorConfig
}

// AverageVolume computes the mean volume over the trailing period.
type AverageVolume struct {
	config AverageVolumeConfig
}

// NewAverageVolume creates a new trailing average volume indicator instance
func NewAverageVolume(config AverageVolumeConfig) *AverageVolume {
	return &AverageVolume{
		config: config,
	}
}

// Calculate computes the mean volume over the most recent 'period' candles.
func (v *AverageVolume) Calculate(ctx context.Context, candles []*domain.Candle) (float64, error) {
	period := v.config.Period
	if len(candles) < period {
		return 0, fmt.Errorf("not enough data points for average volume: need %d, got %d", period, len(candles))
	}

	sum := 0.0
	for _, c := range candles[len(candles)-period:] {
		sum += c.Volume
	}
	return sum / float64(period), nil
}
