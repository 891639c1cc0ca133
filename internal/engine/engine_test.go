package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakoutBot/config"
	"breakoutBot/internal/domain"
	"breakoutBot/internal/risk"
)

func engineConfig() *config.Config {
	return &config.Config{
		Strategy: config.StrategyConfig{
			BreakoutBuffer: 5,
			Timing: config.TimingConfig{
				MarketOpen:           "09:15",
				FirstCandleEnd:       "00:00", // already past, capture starts immediately
				OpeningRangeMinutes:  5,
				MonitorWindowMinutes: 1,
				MonitorPollMs:        1,
				PositionPollMs:       1,
			},
			Symbols: map[string]config.SymbolConfig{
				"banknifty": {Enabled: true, IndexSymbol: "NSE:NIFTYBANK-INDEX", StepSize: 100, Lots: 1, LotSize: 35},
				"nifty":     {Enabled: false, IndexSymbol: "NSE:NIFTY50-INDEX", StepSize: 50, Lots: 1, LotSize: 75},
			},
			Data: config.DataConfig{MaxRetries: 3, RetryDelayMs: 1},
			Risk: risk.Parameters{
				StopLossPoints:     10,
				TargetPoints:       10,
				MaxHoldingMinutes:  30,
				MaxEntryPremiumPct: 5,
				MaxDailyTrades:     3,
				MaxDailyLoss:       -2000,
			},
		},
	}
}

func TestEngineRunFullLifecycle(t *testing.T) {
	broker := &mockBroker{
		openingBars: map[string]*domain.Candle{
			"NSE:NIFTYBANK-INDEX": {High: 51234, Low: 51010, Close: 51150},
			"BANKNIFTY-51200-CE":  {Close: 100},
			"BANKNIFTY-51000-PE":  {Close: 100},
		},
		prices: map[string][]float64{
			"BANKNIFTY-51200-CE": {106, 120}, // entry at 106, target 116 hit at 120
			"BANKNIFTY-51000-PE": {50},
		},
	}
	repo := &mockRepo{}
	eng := New(engineConfig(), broker, repo, &mockLogger{})

	require.NoError(t, eng.Run(context.Background()))

	trades := repo.recorded()
	require.Len(t, trades, 1)
	trade := trades[0]
	assert.Equal(t, "banknifty", trade.Underlying)
	assert.Equal(t, "BANKNIFTY-51200-CE", trade.Symbol)
	assert.Equal(t, domain.ExitReasonTarget, trade.ExitReason)
	assert.Equal(t, 106.0, trade.EntryPrice)
	assert.Equal(t, 120.0, trade.ExitPrice)
	assert.InDelta(t, 14*35.0, trade.PNL, 1e-9)
}

func TestEngineDataFailureAbortsOnlyThatUnderlying(t *testing.T) {
	cfg := engineConfig()
	nifty := cfg.Strategy.Symbols["nifty"]
	nifty.Enabled = true
	cfg.Strategy.Symbols["nifty"] = nifty

	// The nifty index has no opening bar at all; banknifty trades through.
	broker := &mockBroker{
		openingBars: map[string]*domain.Candle{
			"NSE:NIFTYBANK-INDEX": {High: 51234, Low: 51010, Close: 51150},
			"BANKNIFTY-51200-CE":  {Close: 100},
			"BANKNIFTY-51000-PE":  {Close: 100},
		},
		prices: map[string][]float64{
			"BANKNIFTY-51200-CE": {106, 120},
			"BANKNIFTY-51000-PE": {50},
		},
	}
	repo := &mockRepo{}
	eng := New(cfg, broker, repo, &mockLogger{})

	require.NoError(t, eng.Run(context.Background()))

	trades := repo.recorded()
	require.Len(t, trades, 1)
	assert.Equal(t, "banknifty", trades[0].Underlying)
}

func TestEngineWaitForFirstCandle(t *testing.T) {
	t.Run("past window proceeds immediately", func(t *testing.T) {
		cfg := engineConfig()
		cfg.Strategy.Timing.FirstCandleEnd = "09:20"
		eng := New(cfg, &mockBroker{}, &mockRepo{}, &mockLogger{})
		eng.now = func() time.Time {
			return time.Date(2025, 10, 13, 10, 0, 0, 0, time.Local)
		}
		assert.NoError(t, eng.waitForFirstCandle(context.Background()))
	})

	t.Run("cancellation interrupts the wait", func(t *testing.T) {
		cfg := engineConfig()
		cfg.Strategy.Timing.FirstCandleEnd = "23:59"
		eng := New(cfg, &mockBroker{}, &mockRepo{}, &mockLogger{})
		eng.now = func() time.Time {
			return time.Date(2025, 10, 13, 9, 0, 0, 0, time.Local)
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		assert.ErrorIs(t, eng.waitForFirstCandle(ctx), context.Canceled)
	})
}

func TestEngineRestoresSessionCounters(t *testing.T) {
	repo := &mockRepo{trades: []*domain.Trade{
		{Underlying: "banknifty", PNL: -800},
		{Underlying: "banknifty", PNL: 300},
	}}
	eng := New(engineConfig(), &mockBroker{}, repo, &mockLogger{})

	session := eng.restoreSession(context.Background())
	trades, pnl := session.Snapshot()
	assert.Equal(t, 2, trades)
	assert.InDelta(t, -500.0, pnl, 1e-9)
}
