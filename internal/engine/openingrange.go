package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"breakoutBot/internal/domain"
	"breakoutBot/internal/ports"
)

// OpeningRange captures the first bar of the trading session for a
// symbol, retrying with exponential backoff while the broker has no bar
// for the window yet.
type OpeningRange struct {
	data        ports.MarketDataClient
	logger      ports.Logger
	barDuration time.Duration
	maxRetries  int
	retryDelay  time.Duration
}

// NewOpeningRange creates an opening-range capturer.
func NewOpeningRange(data ports.MarketDataClient, logger ports.Logger, barDuration time.Duration, maxRetries int, retryDelay time.Duration) *OpeningRange {
	return &OpeningRange{
		data:        data,
		logger:      logger,
		barDuration: barDuration,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
	}
}

// Capture blocks until the session's opening bar for the symbol is
// available or the retry budget is exhausted. Exhaustion is reported as
// ErrDataUnavailable; the caller aborts that underlying's session with
// no side effects.
func (o *OpeningRange) Capture(ctx context.Context, symbol string) (*domain.Candle, error) {
	retry := &backoff.Backoff{
		Min:    o.retryDelay,
		Max:    o.retryDelay * 8,
		Factor: 2,
	}

	var lastErr error
	for attempt := 1; attempt <= o.maxRetries; attempt++ {
		candle, err := o.data.GetOpeningBar(ctx, symbol, o.barDuration)
		if err == nil {
			o.logger.Info(ctx, "Opening range captured", map[string]interface{}{
				"symbol": symbol,
				"open":   candle.Open, "high": candle.High, "low": candle.Low, "close": candle.Close,
				"volume": candle.Volume,
			})
			return candle, nil
		}
		lastErr = err

		wait := retry.Duration()
		o.logger.Warn(ctx, "Opening bar not available yet, retrying", map[string]interface{}{
			"symbol": symbol, "attempt": attempt, "maxRetries": o.maxRetries, "wait": wait.String(), "error": err.Error(),
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, fmt.Errorf("%w: opening bar for %s after %d attempts: %v",
		ports.ErrDataUnavailable, symbol, o.maxRetries, lastErr)
}
