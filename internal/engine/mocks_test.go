package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"breakoutBot/internal/domain"
	"breakoutBot/internal/ports"
)

// Mock implementations

type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type orderRecord struct {
	symbol   string
	quantity int
	side     domain.OrderSide
}

// mockBroker scripts the full broker surface. Price sequences advance
// one entry per GetLastPrice call and repeat their last value; a
// non-positive entry scripts an unavailable tick.
type mockBroker struct {
	mu sync.Mutex

	openingBars     map[string]*domain.Candle
	openingFailures int
	openingCalls    int

	prices   map[string][]float64
	priceIdx map[string]int

	history    map[string][]*domain.Candle
	historyErr error

	resolveErr      error
	resolveFailures int
	resolved        []int // strikes, in resolution order

	orders        []orderRecord
	orderFailures int
}

func (m *mockBroker) GetOpeningBar(ctx context.Context, symbol string, barDuration time.Duration) (*domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openingCalls++
	if m.openingFailures > 0 {
		m.openingFailures--
		return nil, ports.ErrDataUnavailable
	}
	bar, ok := m.openingBars[symbol]
	if !ok {
		return nil, ports.ErrDataUnavailable
	}
	return bar, nil
}

func (m *mockBroker) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.prices[symbol]
	if len(seq) == 0 {
		return 0, ports.ErrPriceUnavailable
	}
	if m.priceIdx == nil {
		m.priceIdx = make(map[string]int)
	}
	i := m.priceIdx[symbol]
	if i >= len(seq) {
		i = len(seq) - 1
	} else {
		m.priceIdx[symbol] = i + 1
	}
	if seq[i] <= 0 {
		return 0, ports.ErrPriceUnavailable
	}
	return seq[i], nil
}

func (m *mockBroker) GetHistory(ctx context.Context, symbol string, barDuration time.Duration, limit int) ([]*domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	bars, ok := m.history[symbol]
	if !ok {
		return nil, ports.ErrDataUnavailable
	}
	return bars, nil
}

func (m *mockBroker) ResolveOptionInstrument(ctx context.Context, underlying string, expiry time.Time, strike int, class domain.OptionClass) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resolveErr != nil {
		return "", m.resolveErr
	}
	if m.resolveFailures > 0 {
		m.resolveFailures--
		return "", ports.ErrInstrumentNotFound
	}
	m.resolved = append(m.resolved, strike)
	return fmt.Sprintf("%s-%d-%s", strings.ToUpper(underlying), strike, class), nil
}

func (m *mockBroker) SubmitOrder(ctx context.Context, symbol string, quantity int, side domain.OrderSide) (*ports.OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderFailures > 0 {
		m.orderFailures--
		return nil, ports.ErrOrderRejected
	}
	m.orders = append(m.orders, orderRecord{symbol: symbol, quantity: quantity, side: side})
	return &ports.OrderResponse{
		OrderID:   fmt.Sprintf("order-%d", len(m.orders)),
		Symbol:    symbol,
		Quantity:  quantity,
		Side:      side,
		Timestamp: time.Now(),
	}, nil
}

func (m *mockBroker) orderLog() []orderRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]orderRecord, len(m.orders))
	copy(out, m.orders)
	return out
}

func (m *mockBroker) setOrderFailures(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderFailures = n
}

type mockRepo struct {
	mu        sync.Mutex
	trades    []*domain.Trade
	createErr error
	countErr  error
}

func (m *mockRepo) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.trades = append(m.trades, trade)
	trade.ID = int64(len(m.trades))
	return trade.ID, nil
}

func (m *mockRepo) FindByUnderlying(ctx context.Context, underlying string, limit int) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Trade
	for _, t := range m.trades {
		if t.Underlying == underlying {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockRepo) FindAll(ctx context.Context) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Trade(nil), m.trades...), nil
}

func (m *mockRepo) CountToday(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return len(m.trades), nil
}

func (m *mockRepo) TotalPNLToday(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for _, t := range m.trades {
		total += t.PNL
	}
	return total, nil
}

func (m *mockRepo) recorded() []*domain.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Trade(nil), m.trades...)
}
