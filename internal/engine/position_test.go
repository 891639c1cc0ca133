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

func newTestManager(broker *mockBroker, params *risk.Parameters) (*PositionManager, *mockRepo, *Session) {
	logger := &mockLogger{}
	repo := &mockRepo{}
	session := NewSession(0, 0)
	settlement := NewSettlement(broker, repo, session, logger)
	manager := NewPositionManager(broker, broker, params, settlement, time.Millisecond, logger)
	return manager, repo, session
}

func openTestPosition(t *testing.T, manager *PositionManager, price float64) *domain.Position {
	t.Helper()
	pos, err := manager.Open(context.Background(), "banknifty", "CE-LEG", price,
		config.SymbolConfig{Lots: 1, LotSize: 35})
	require.NoError(t, err)
	return pos
}

func TestOpenSetsStopAndTarget(t *testing.T) {
	params := gateParams() // fixed 10 point stop, 20 point target
	broker := &mockBroker{}
	manager, _, _ := newTestManager(broker, &params)

	pos := openTestPosition(t, manager, 100)
	assert.Equal(t, 90.0, pos.StopLoss)
	assert.Equal(t, 120.0, pos.Target)
	assert.Equal(t, 35, pos.EntryQuantity)
	assert.Equal(t, domain.StatusOpen, pos.Status)
}

func TestOpenUsesATRStopWhenAvailable(t *testing.T) {
	params := gateParams()
	params.UseATRStop = true
	params.ATRPeriods = 2
	params.ATRMultiplier = 1.5
	broker := &mockBroker{history: map[string][]*domain.Candle{
		// TRs are [2, 2, 3]; ATR(2) = 2.5, so the stop distance is 3.75.
		"CE-LEG": {
			{High: 12, Low: 10, Close: 11},
			{High: 13, Low: 11, Close: 12},
			{High: 15, Low: 12, Close: 14},
		},
	}}
	manager, _, _ := newTestManager(broker, &params)

	pos := openTestPosition(t, manager, 100)
	assert.InDelta(t, 96.25, pos.StopLoss, 1e-9)
}

func TestOpenFallsBackToFixedStopWithoutHistory(t *testing.T) {
	params := gateParams()
	params.UseATRStop = true
	params.ATRPeriods = 14
	params.ATRMultiplier = 1.5
	broker := &mockBroker{} // no history
	manager, _, _ := newTestManager(broker, &params)

	pos := openTestPosition(t, manager, 100)
	assert.Equal(t, 90.0, pos.StopLoss)
}

func TestEvaluateTick(t *testing.T) {
	params := gateParams()
	params.TargetPoints = 10
	params.Trailing = risk.TrailingStop{Enabled: true, ActivationPct: 50, TrailingPct: 50}
	params.PartialExits = []risk.PartialExitRung{
		{AfterMinutes: 10, MinProfitPct: 2, ExitPercent: 25},
		{AfterMinutes: 15, MinProfitPct: 5, ExitPercent: 50},
	}
	manager, _, _ := newTestManager(&mockBroker{}, &params)

	entry := time.Date(2025, 10, 13, 9, 30, 0, 0, time.Local)
	newPos := func() *domain.Position {
		return &domain.Position{
			Direction: domain.Long, EntryTime: entry, EntryPrice: 100,
			EntryQuantity: 35, Quantity: 35, StopLoss: 90, Target: 110,
			Status: domain.StatusOpen,
		}
	}

	t.Run("stop loss", func(t *testing.T) {
		d := manager.evaluateTick(newPos(), 89, entry.Add(time.Minute))
		assert.Equal(t, domain.ExitReasonStopLoss, d.exitReason)
	})

	t.Run("target", func(t *testing.T) {
		d := manager.evaluateTick(newPos(), 110, entry.Add(time.Minute))
		assert.Equal(t, domain.ExitReasonTarget, d.exitReason)
	})

	t.Run("time exit", func(t *testing.T) {
		d := manager.evaluateTick(newPos(), 100, entry.Add(31*time.Minute))
		assert.Equal(t, domain.ExitReasonTimeExit, d.exitReason)
	})

	t.Run("terminal exit suppresses ladder on the same tick", func(t *testing.T) {
		// Price satisfies both the target and both ladder rungs.
		d := manager.evaluateTick(newPos(), 111, entry.Add(16*time.Minute))
		assert.Equal(t, domain.ExitReasonTarget, d.exitReason)
		assert.Empty(t, d.rungs)
	})

	t.Run("multiple rungs fire on one tick", func(t *testing.T) {
		d := manager.evaluateTick(newPos(), 106, entry.Add(16*time.Minute))
		assert.Equal(t, domain.ExitReasonNone, d.exitReason)
		require.Len(t, d.rungs, 2)
		assert.Equal(t, 10, d.rungs[0].AfterMinutes)
		assert.Equal(t, 15, d.rungs[1].AfterMinutes)
	})

	t.Run("executed rung stays silent", func(t *testing.T) {
		pos := newPos()
		pos.ApplyPartialExit(domain.PartialExit{AfterMinutes: 10, Quantity: 8, Price: 103})
		d := manager.evaluateTick(pos, 103, entry.Add(12*time.Minute))
		assert.Empty(t, d.rungs)
	})

	t.Run("rung needs its profit floor", func(t *testing.T) {
		d := manager.evaluateTick(newPos(), 101, entry.Add(16*time.Minute))
		assert.Empty(t, d.rungs, "1 percent profit is under both rung floors")
	})

	t.Run("trailing candidate after activation", func(t *testing.T) {
		d := manager.evaluateTick(newPos(), 107, entry.Add(2*time.Minute))
		// 7 points of profit also clears the 2% rung floor at minute 16,
		// but at minute 2 no rung is eligible yet.
		assert.True(t, d.trail)
		assert.InDelta(t, 103.5, d.trailStop, 1e-9)
		assert.Empty(t, d.rungs)
	})
}

func TestRunTrailingStopRatchet(t *testing.T) {
	params := gateParams()
	params.TargetPoints = 10
	params.Trailing = risk.TrailingStop{Enabled: true, ActivationPct: 50, TrailingPct: 50}

	broker := &mockBroker{prices: map[string][]float64{"CE-LEG": {107, 103}}}
	manager, repo, _ := newTestManager(broker, &params)

	pos := openTestPosition(t, manager, 100)
	require.NoError(t, manager.Run(context.Background(), pos))

	// 107 activates trailing and sets the stop to 103.5; 103 then stops out.
	assert.Equal(t, domain.ExitReasonStopLoss, pos.ExitReason)
	assert.InDelta(t, 103.5, pos.StopLoss, 1e-9)
	assert.Equal(t, 103.0, pos.ExitPrice)

	trades := repo.recorded()
	require.Len(t, trades, 1)
	assert.InDelta(t, 3*35.0, trades[0].PNL, 1e-9)
}

func TestRunPartialExitLadder(t *testing.T) {
	params := gateParams()
	params.TargetPoints = 10
	params.PartialExits = []risk.PartialExitRung{{AfterMinutes: 15, MinProfitPct: 5, ExitPercent: 50}}

	broker := &mockBroker{prices: map[string][]float64{"CE-LEG": {106, 106, 111}}}
	manager, repo, session := newTestManager(broker, &params)

	pos := openTestPosition(t, manager, 100)
	pos.EntryTime = time.Now().Add(-16 * time.Minute) // rung already eligible

	require.NoError(t, manager.Run(context.Background(), pos))

	require.Len(t, pos.PartialExits, 1, "rung fires exactly once across repeated eligible ticks")
	assert.Equal(t, 17, pos.PartialExits[0].Quantity)
	assert.Equal(t, 106.0, pos.PartialExits[0].Price)
	assert.Equal(t, domain.ExitReasonTarget, pos.ExitReason)

	trades := repo.recorded()
	require.Len(t, trades, 1)
	trade := trades[0]
	assert.Equal(t, 35, trade.EntryQuantity)
	assert.Equal(t, 18, trade.ExitQuantity)
	assert.Equal(t, 35, trade.ExitQuantity+trade.PartialExits[0].Quantity, "quantity is conserved")
	assert.InDelta(t, 6*17.0+11*18.0, trade.PNL, 1e-9)

	_, pnl := session.Snapshot()
	assert.InDelta(t, trade.PNL, pnl, 1e-9)

	orders := broker.orderLog()
	require.Len(t, orders, 3)
	assert.Equal(t, orderRecord{symbol: "CE-LEG", quantity: 35, side: domain.Buy}, orders[0])
	assert.Equal(t, orderRecord{symbol: "CE-LEG", quantity: 17, side: domain.Sell}, orders[1])
	assert.Equal(t, orderRecord{symbol: "CE-LEG", quantity: 18, side: domain.Sell}, orders[2])
}

func TestRunRetriesFailedExitOrder(t *testing.T) {
	params := gateParams()
	broker := &mockBroker{prices: map[string][]float64{"CE-LEG": {89}}}
	manager, repo, _ := newTestManager(broker, &params)

	pos := openTestPosition(t, manager, 100)
	broker.setOrderFailures(1) // first exit attempt is rejected

	require.NoError(t, manager.Run(context.Background(), pos))

	assert.Equal(t, domain.ExitReasonStopLoss, pos.ExitReason)
	require.Len(t, repo.recorded(), 1, "the position is settled exactly once despite the rejection")
}

func TestRunTimeExitWithoutPrices(t *testing.T) {
	params := gateParams()
	broker := &mockBroker{prices: map[string][]float64{}} // feed never recovers
	manager, repo, _ := newTestManager(broker, &params)

	pos := openTestPosition(t, manager, 100)
	pos.EntryTime = time.Now().Add(-31 * time.Minute)

	require.NoError(t, manager.Run(context.Background(), pos))

	assert.Equal(t, domain.ExitReasonTimeExit, pos.ExitReason)
	assert.Equal(t, 100.0, pos.ExitPrice, "falls back to the last known price")
	require.Len(t, repo.recorded(), 1)
}

func TestRunCleanupOnCancellation(t *testing.T) {
	params := gateParams()
	broker := &mockBroker{prices: map[string][]float64{"CE-LEG": {95}}}
	manager, repo, _ := newTestManager(broker, &params)

	pos := openTestPosition(t, manager, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx, pos) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	assert.Equal(t, domain.StatusClosed, pos.Status)
	assert.Equal(t, domain.ExitReasonCleanup, pos.ExitReason)
	require.Len(t, repo.recorded(), 1, "no position is abandoned without a settlement record")
}

func TestCleanupRetriesRejectedExitOrder(t *testing.T) {
	params := gateParams()
	broker := &mockBroker{prices: map[string][]float64{"CE-LEG": {95}}}
	manager, repo, _ := newTestManager(broker, &params)

	pos := openTestPosition(t, manager, 100)
	broker.setOrderFailures(1)

	require.NoError(t, manager.cleanup(pos, 100))

	assert.Equal(t, domain.ExitReasonCleanup, pos.ExitReason)
	assert.Equal(t, 95.0, pos.ExitPrice, "cleanup settles at the freshest available price")
	require.Len(t, repo.recorded(), 1)
}

func TestRunTracksExcursions(t *testing.T) {
	params := gateParams()
	params.TargetPoints = 20
	broker := &mockBroker{prices: map[string][]float64{"CE-LEG": {108, 95, 89}}}
	manager, repo, _ := newTestManager(broker, &params)

	pos := openTestPosition(t, manager, 100)
	require.NoError(t, manager.Run(context.Background(), pos))

	trades := repo.recorded()
	require.Len(t, trades, 1)
	assert.InDelta(t, 8*35.0, trades[0].MaxUp, 1e-9)
	assert.InDelta(t, -11*35.0, trades[0].MaxDown, 1e-9)
}
