package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakoutBot/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "trades.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleTrade(underlying string, pnl float64, entry time.Time) *domain.Trade {
	return &domain.Trade{
		Underlying:    underlying,
		Symbol:        "NSE:BANKNIFTY25O1451000CE",
		Direction:     domain.Long,
		EntryPrice:    100,
		ExitPrice:     110,
		EntryQuantity: 70,
		ExitQuantity:  35,
		PNL:           pnl,
		EntryTime:     entry,
		ExitTime:      entry.Add(20 * time.Minute),
		ExitReason:    domain.ExitReasonTarget,
		PartialExits: []domain.PartialExit{
			{AfterMinutes: 15, Quantity: 35, Price: 106, ProfitPct: 6, ExecutedAt: entry.Add(16 * time.Minute)},
		},
		MaxUp:   420,
		MaxDown: -70,
	}
}

func TestCreateAndFindTrade(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	trade := sampleTrade("banknifty", 595, time.Now().Add(-time.Hour))
	id, err := repo.CreateTrade(ctx, trade)
	require.NoError(t, err)
	assert.Equal(t, id, trade.ID)

	found, err := repo.FindByUnderlying(ctx, "banknifty", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	got := found[0]
	assert.Equal(t, trade.Symbol, got.Symbol)
	assert.Equal(t, domain.Long, got.Direction)
	assert.Equal(t, domain.ExitReasonTarget, got.ExitReason)
	assert.Equal(t, 70, got.EntryQuantity)
	assert.Equal(t, 35, got.ExitQuantity)
	assert.InDelta(t, 595, got.PNL, 1e-9)
	assert.InDelta(t, 420, got.MaxUp, 1e-9)

	require.Len(t, got.PartialExits, 1, "partial fills round-trip with the trade")
	assert.Equal(t, 15, got.PartialExits[0].AfterMinutes)
	assert.Equal(t, 35, got.PartialExits[0].Quantity)
	assert.InDelta(t, 106, got.PartialExits[0].Price, 1e-9)
}

func TestFindAllOrdersByEntryTimeDescending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	older := sampleTrade("banknifty", 100, time.Now().Add(-3*time.Hour))
	newer := sampleTrade("nifty", -50, time.Now().Add(-time.Hour))
	_, err := repo.CreateTrade(ctx, older)
	require.NoError(t, err)
	_, err = repo.CreateTrade(ctx, newer)
	require.NoError(t, err)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "nifty", all[0].Underlying)
	assert.Equal(t, "banknifty", all[1].Underlying)
}

func TestDailyCounters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.CreateTrade(ctx, sampleTrade("banknifty", 300, time.Now().Add(-time.Hour)))
	require.NoError(t, err)
	_, err = repo.CreateTrade(ctx, sampleTrade("banknifty", -800, time.Now().Add(-2*time.Hour)))
	require.NoError(t, err)
	// Yesterday's trade must not count toward today.
	_, err = repo.CreateTrade(ctx, sampleTrade("banknifty", 999, time.Now().Add(-30*time.Hour)))
	require.NoError(t, err)

	count, err := repo.CountToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	pnl, err := repo.TotalPNLToday(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -500, pnl, 1e-9)
}

func TestFindByUnderlyingFiltersAndLimits(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.CreateTrade(ctx, sampleTrade("banknifty", float64(i), time.Now().Add(-time.Duration(i+1)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := repo.CreateTrade(ctx, sampleTrade("nifty", 10, time.Now()))
	require.NoError(t, err)

	found, err := repo.FindByUnderlying(ctx, "banknifty", 2)
	require.NoError(t, err)
	assert.Len(t, found, 2)
	for _, tr := range found {
		assert.Equal(t, "banknifty", tr.Underlying)
	}
}
