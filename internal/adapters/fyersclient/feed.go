package fyersclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"breakoutBot/internal/ports"
)

// priceFeed caches last-traded prices pushed over the Fyers websocket.
// Readers fall back to REST quotes when a symbol has no cached tick yet,
// so feed outages degrade latency rather than correctness.
type priceFeed struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func newPriceFeed() *priceFeed {
	return &priceFeed{prices: make(map[string]float64)}
}

func (f *priceFeed) last(symbol string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ltp, ok := f.prices[symbol]
	return ltp, ok && ltp > 0
}

func (f *priceFeed) update(symbol string, ltp float64) {
	f.mu.Lock()
	f.prices[symbol] = ltp
	f.mu.Unlock()
}

type feedSubscribe struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

type feedTick struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"ltp"`
}

// StartFeed connects to the websocket endpoint and streams ticks for the
// given symbols into the price cache until ctx is cancelled. It keeps
// reconnecting with exponential backoff and returns only on cancellation
// or after exhausting the reconnect budget.
func (c *Client) StartFeed(ctx context.Context, symbols []string) error {
	if c.wsURL == "" {
		return fmt.Errorf("%w: websocket URL not configured", ports.ErrConfigurationError)
	}

	retry := &backoff.Backoff{
		Min:    c.reconnectDelay,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 0; attempt < c.maxReconnectAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.streamOnce(ctx, symbols)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		wait := retry.Duration()
		c.logger.Warn(ctx, "Price feed disconnected, reconnecting", map[string]interface{}{
			"error": err.Error(), "attempt": attempt + 1, "wait": wait.String(),
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%w: price feed reconnect attempts exhausted", ports.ErrBrokerUnavailable)
}

// streamOnce runs a single websocket session: dial, subscribe, read until
// the connection drops or ctx is cancelled.
func (c *Client) streamOnce(ctx context.Context, symbols []string) error {
	auth, err := c.authHeader(ctx)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL+"?access_token="+auth, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(feedSubscribe{Type: "SUB_DATA", Symbols: symbols}); err != nil {
		return fmt.Errorf("websocket subscribe failed: %w", err)
	}
	c.logger.Info(ctx, "Price feed connected", map[string]interface{}{"symbols": symbols})

	// Unblock the read loop when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("websocket read failed: %w", err)
		}

		var tick feedTick
		if err := json.Unmarshal(raw, &tick); err != nil {
			c.logger.Debug(ctx, "Ignoring non-tick feed message", map[string]interface{}{"error": err.Error()})
			continue
		}
		if tick.Symbol == "" || tick.LastPrice <= 0 {
			continue
		}
		c.feed.update(tick.Symbol, tick.LastPrice)
	}
}
