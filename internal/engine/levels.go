package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jpillora/backoff"

	"breakoutBot/config"
	"breakoutBot/internal/domain"
	"breakoutBot/internal/ports"
)

const expiryCutoverHour = 15 // after 15:30 on expiry day, roll to next week

// ATMStrike rounds the reference price to the nearest multiple of the
// index's strike step.
func ATMStrike(price float64, step int) int {
	if step <= 0 {
		return int(math.Round(price))
	}
	return int(math.Round(price/float64(step))) * step
}

// NextWeeklyExpiry returns the upcoming Thursday expiry for the given
// time. On a Thursday after market close (15:30) it rolls to the
// following week.
func NextWeeklyExpiry(now time.Time) time.Time {
	daysAhead := (int(time.Thursday) - int(now.Weekday()) + 7) % 7
	if daysAhead == 0 {
		if now.Hour() > expiryCutoverHour || (now.Hour() == expiryCutoverHour && now.Minute() >= 30) {
			daysAhead = 7
		}
	}
	expiry := now.AddDate(0, 0, daysAhead)
	return time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, now.Location())
}

// LevelCalculator turns an underlying's opening bar into the session's
// breakout trigger levels: the call strike from the bar high, the put
// strike from the bar low, each leg's trigger at its own opening-bar
// close plus an absolute premium buffer. Leg data fetches retry with
// the same backoff budget as the index capture before the underlying
// is given up for the day.
type LevelCalculator struct {
	resolver   ports.InstrumentResolver
	opening    *OpeningRange
	logger     ports.Logger
	buffer     float64
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
}

// NewLevelCalculator creates a level calculator. The buffer is an
// absolute currency amount added to each leg's reference price; leg
// opening bars are fetched through the given opening-range capturer.
func NewLevelCalculator(resolver ports.InstrumentResolver, opening *OpeningRange, logger ports.Logger, buffer float64, maxRetries int, retryDelay time.Duration) *LevelCalculator {
	return &LevelCalculator{
		resolver:   resolver,
		opening:    opening,
		logger:     logger,
		buffer:     buffer,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		now:        time.Now,
	}
}

// Compute resolves both option legs for the underlying and derives their
// trigger prices from each leg's own opening bar.
func (l *LevelCalculator) Compute(ctx context.Context, underlying string, sym config.SymbolConfig, bar *domain.Candle) (*domain.BreakoutLevel, error) {
	expiry := NextWeeklyExpiry(l.now())
	ceStrike := ATMStrike(bar.High, sym.StepSize)
	peStrike := ATMStrike(bar.Low, sym.StepSize)

	ceSymbol, err := l.resolve(ctx, underlying, expiry, ceStrike, domain.Call)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve call contract for %s strike %d: %w", underlying, ceStrike, err)
	}
	peSymbol, err := l.resolve(ctx, underlying, expiry, peStrike, domain.Put)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve put contract for %s strike %d: %w", underlying, peStrike, err)
	}

	ceBar, err := l.opening.Capture(ctx, ceSymbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch opening bar for %s: %w", ceSymbol, err)
	}
	peBar, err := l.opening.Capture(ctx, peSymbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch opening bar for %s: %w", peSymbol, err)
	}

	level := &domain.BreakoutLevel{
		Underlying:   underlying,
		IndexSymbol:  sym.IndexSymbol,
		CESymbol:     ceSymbol,
		PESymbol:     peSymbol,
		CEReference:  ceBar.Close,
		PEReference:  peBar.Close,
		CETrigger:    ceBar.Close + l.buffer,
		PETrigger:    peBar.Close + l.buffer,
		SpotPrice:    bar.Close,
		CalculatedAt: l.now(),
	}

	l.logger.Info(ctx, "Breakout levels calculated", map[string]interface{}{
		"underlying": underlying,
		"ceSymbol":   ceSymbol, "ceTrigger": level.CETrigger,
		"peSymbol": peSymbol, "peTrigger": level.PETrigger,
		"spot": level.SpotPrice,
	})
	return level, nil
}

// resolve maps a strike to its tradable contract, retrying with backoff.
// The quotability probe behind the resolver can fail transiently right
// after the open, just like the opening-bar fetches.
func (l *LevelCalculator) resolve(ctx context.Context, underlying string, expiry time.Time, strike int, class domain.OptionClass) (string, error) {
	retry := &backoff.Backoff{
		Min:    l.retryDelay,
		Max:    l.retryDelay * 8,
		Factor: 2,
	}

	var lastErr error
	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		symbol, err := l.resolver.ResolveOptionInstrument(ctx, underlying, expiry, strike, class)
		if err == nil {
			return symbol, nil
		}
		lastErr = err

		wait := retry.Duration()
		l.logger.Warn(ctx, "Contract resolution failed, retrying", map[string]interface{}{
			"underlying": underlying, "strike": strike, "class": class,
			"attempt": attempt, "maxRetries": l.maxRetries, "wait": wait.String(), "error": err.Error(),
		})
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}
