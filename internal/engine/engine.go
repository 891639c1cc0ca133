package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"breakoutBot/config"
	"breakoutBot/internal/ports"
)

// PriceStreamer is implemented by broker adapters that can push last
// traded prices over a persistent connection. The engine treats the
// stream as an optimization; REST polling remains the fallback.
type PriceStreamer interface {
	StartFeed(ctx context.Context, symbols []string) error
}

// Engine orchestrates one trading session: it waits for the opening
// range to complete, then runs an independent lifecycle per enabled
// underlying (capture, levels, monitor, position management).
type Engine struct {
	cfg     *config.Config
	broker  ports.BrokerClient
	repo    ports.TradeRepository
	logger  ports.Logger
	session *Session
	now     func() time.Time
}

// New creates a session engine.
func New(cfg *config.Config, broker ports.BrokerClient, repo ports.TradeRepository, logger ports.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		broker: broker,
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Run executes the session until all underlyings finish or ctx is
// cancelled. Cancellation force-closes open positions before returning.
func (e *Engine) Run(ctx context.Context) error {
	e.session = e.restoreSession(ctx)

	if err := e.waitForFirstCandle(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for name, sym := range e.cfg.Strategy.Symbols {
		if !sym.Enabled {
			continue
		}
		name, sym := name, sym
		g.Go(func() error {
			return e.runUnderlying(ctx, name, sym)
		})
	}
	return g.Wait()
}

// restoreSession seeds today's counters from the trade repository so a
// restart mid-session keeps honoring the daily ceilings.
func (e *Engine) restoreSession(ctx context.Context) *Session {
	trades, err := e.repo.CountToday(ctx)
	if err != nil {
		e.logger.Warn(ctx, "Could not restore today's trade count, starting at zero", map[string]interface{}{"error": err.Error()})
		return NewSession(0, 0)
	}
	pnl, err := e.repo.TotalPNLToday(ctx)
	if err != nil {
		e.logger.Warn(ctx, "Could not restore today's P&L, starting at zero", map[string]interface{}{"error": err.Error()})
		return NewSession(trades, 0)
	}
	if trades > 0 {
		e.logger.Info(ctx, "Restored session counters", map[string]interface{}{"trades": trades, "pnl": pnl})
	}
	return NewSession(trades, pnl)
}

// waitForFirstCandle blocks until the opening-range window has closed
// for today, so capture does not race an incomplete first bar.
func (e *Engine) waitForFirstCandle(ctx context.Context) error {
	clock, err := config.ParseClock(e.cfg.Strategy.Timing.FirstCandleEnd)
	if err != nil {
		// Validated at load; defensive only.
		return err
	}
	now := e.now()
	target := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, now.Location())
	if !now.Before(target) {
		return nil
	}

	wait := target.Sub(now)
	e.logger.Info(ctx, "Waiting for opening range to complete", map[string]interface{}{
		"until": target.Format("15:04:05"), "wait": wait.String(),
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// runUnderlying runs the full lifecycle for one underlying. Data
// failures abort only this underlying; other underlyings continue.
func (e *Engine) runUnderlying(ctx context.Context, name string, sym config.SymbolConfig) error {
	strat := &e.cfg.Strategy

	opening := NewOpeningRange(e.broker, e.logger, strat.OpeningRange(), strat.Data.MaxRetries, strat.RetryDelay())
	bar, err := opening.Capture(ctx, sym.IndexSymbol)
	if err != nil {
		return e.abortUnderlying(ctx, name, "opening range capture failed", err)
	}

	levels := NewLevelCalculator(e.broker, opening, e.logger, strat.BreakoutBuffer, strat.Data.MaxRetries, strat.RetryDelay())
	level, err := levels.Compute(ctx, name, sym, bar)
	if err != nil {
		return e.abortUnderlying(ctx, name, "level calculation failed", err)
	}

	if streamer, ok := e.broker.(PriceStreamer); ok {
		go func() {
			feedErr := streamer.StartFeed(ctx, []string{level.CESymbol, level.PESymbol, sym.IndexSymbol})
			if feedErr != nil && ctx.Err() == nil {
				e.logger.Warn(ctx, "Price feed stopped, falling back to REST quotes", map[string]interface{}{
					"underlying": name, "error": feedErr.Error(),
				})
			}
		}()
	}

	gate := NewEntryGate(e.session, &strat.Risk, strat.EntryFilters, e.logger)
	settlement := NewSettlement(e.broker, e.repo, e.session, e.logger)
	positions := NewPositionManager(e.broker, e.broker, &strat.Risk, settlement, strat.PositionPoll(), e.logger)
	monitor := NewMonitor(e.broker, gate, positions, &strat.Risk, strat.EntryFilters, strat.MonitorWindow(), strat.MonitorPoll(), strat.OpeningRange(), e.logger)

	pos, err := monitor.Run(ctx, level, sym)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	if pos == nil {
		// Window expired with no breakout; a no-trade day, not an error.
		return nil
	}

	return positions.Run(ctx, pos)
}

// abortUnderlying logs a per-underlying failure and decides whether it
// should take the whole session down. Data problems never do.
func (e *Engine) abortUnderlying(ctx context.Context, name, msg string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	e.logger.Error(ctx, err, msg+", underlying session aborted", map[string]interface{}{"underlying": name})
	if errors.Is(err, ports.ErrDataUnavailable) || errors.Is(err, ports.ErrInstrumentNotFound) {
		return nil
	}
	return err
}
