package fyersclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"breakoutBot/internal/domain"
	"breakoutBot/internal/ports"
)

// TokenProvider yields a valid bearer credential on demand. Token
// acquisition and refresh happen behind this interface; the client only
// consumes the result.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider backed by a fixed access token.
type StaticToken string

// Token returns the fixed token.
func (s StaticToken) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", ports.ErrAuthenticationFailed
	}
	return string(s), nil
}

// Client implements the ports.BrokerClient interface against the Fyers
// REST API, with an optional websocket feed for last-traded prices.
type Client struct {
	httpClient           *http.Client
	baseURL              string
	wsURL                string
	clientID             string
	tokens               TokenProvider
	logger               ports.Logger
	simulateOrders       bool
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	feed                 *priceFeed
}

// Config holds configuration specific to the Fyers client adapter.
type Config struct {
	ClientID             string
	Tokens               TokenProvider
	BaseURL              string
	WSURL                string
	Logger               ports.Logger
	HTTPClient           *http.Client
	SimulateOrders       bool
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// New creates a new Fyers client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Fyers client")
	}
	if cfg.ClientID == "" || cfg.Tokens == nil {
		return nil, fmt.Errorf("client ID and token provider are required for Fyers client")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		httpClient:           httpClient,
		baseURL:              cfg.BaseURL,
		wsURL:                cfg.WSURL,
		clientID:             cfg.ClientID,
		tokens:               cfg.Tokens,
		logger:               cfg.Logger,
		simulateOrders:       cfg.SimulateOrders,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
		feed:                 newPriceFeed(),
	}, nil
}

// --- wire formats ---

type historyResponse struct {
	Status  string          `json:"s"`
	Candles [][]json.Number `json:"candles"`
}

type quotesResponse struct {
	Status string `json:"s"`
	Data   []struct {
		Symbol string `json:"n"`
		Values struct {
			LastPrice float64 `json:"lp"`
		} `json:"v"`
	} `json:"d"`
}

type orderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           int    `json:"qty"`
	Type          int    `json:"type"` // 2 = market
	Side          int    `json:"side"` // 1 = buy, -1 = sell
	ProductType   string `json:"productType"`
	LimitPrice    int    `json:"limitPrice"`
	StopPrice     int    `json:"stopPrice"`
	Validity      string `json:"validity"`
	DisclosedQty  int    `json:"disclosedQty"`
	OfflineOrder  bool   `json:"offlineOrder"`
	ClientOrderID string `json:"orderTag"`
}

type orderResponse struct {
	Status  string `json:"s"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// --- request plumbing ---

func (c *Client) authHeader(ctx context.Context) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to obtain access token: %w", err)
	}
	return c.clientID + ":" + token, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	auth, err := c.authHeader(req.Context())
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrBrokerUnavailable, err)
	}
	defer resp.Body.Close()

	if err := c.statusError(resp.StatusCode); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

// statusError translates HTTP status codes into standardized ports errors.
func (c *Client) statusError(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ports.ErrAuthenticationFailed
	case code == http.StatusTooManyRequests:
		return ports.ErrRateLimited
	case code >= 500:
		return fmt.Errorf("%w: status %d", ports.ErrBrokerUnavailable, code)
	default:
		return fmt.Errorf("%w: status %d", ports.ErrInvalidRequest, code)
	}
}

// --- ports.MarketDataClient ---

// GetHistory retrieves up to limit recent bars for the symbol, oldest first.
func (c *Client) GetHistory(ctx context.Context, symbol string, barDuration time.Duration, limit int) ([]*domain.Candle, error) {
	now := time.Now()
	from := now.Add(-time.Duration(limit+1) * barDuration)

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("resolution", strconv.Itoa(int(barDuration.Minutes())))
	query.Set("date_format", "0")
	query.Set("range_from", strconv.FormatInt(from.Unix(), 10))
	query.Set("range_to", strconv.FormatInt(now.Unix(), 10))
	query.Set("cont_flag", "1")

	var resp historyResponse
	if err := c.get(ctx, "/data/history", query, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" || len(resp.Candles) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s", ports.ErrDataUnavailable, symbol)
	}

	candles := make([]*domain.Candle, 0, len(resp.Candles))
	for _, raw := range resp.Candles {
		candle, err := parseCandle(symbol, raw)
		if err != nil {
			c.logger.Warn(ctx, "Skipping malformed bar", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			continue
		}
		candles = append(candles, candle)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no parsable bars for %s", ports.ErrDataUnavailable, symbol)
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// GetOpeningBar retrieves the first bar of the current session for the symbol.
func (c *Client) GetOpeningBar(ctx context.Context, symbol string, barDuration time.Duration) (*domain.Candle, error) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("resolution", strconv.Itoa(int(barDuration.Minutes())))
	query.Set("date_format", "0")
	query.Set("range_from", strconv.FormatInt(midnight.Unix(), 10))
	query.Set("range_to", strconv.FormatInt(now.Unix(), 10))
	query.Set("cont_flag", "1")

	var resp historyResponse
	if err := c.get(ctx, "/data/history", query, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" || len(resp.Candles) == 0 {
		return nil, fmt.Errorf("%w: no opening bar for %s", ports.ErrDataUnavailable, symbol)
	}
	return parseCandle(symbol, resp.Candles[0])
}

// GetLastPrice retrieves the last traded price, preferring the websocket
// feed cache when connected and falling back to the REST quotes endpoint.
func (c *Client) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	if c.feed != nil {
		if ltp, ok := c.feed.last(symbol); ok {
			return ltp, nil
		}
	}

	query := url.Values{}
	query.Set("symbols", symbol)

	var resp quotesResponse
	if err := c.get(ctx, "/data/quotes", query, &resp); err != nil {
		return 0, err
	}
	if resp.Status != "ok" || len(resp.Data) == 0 || resp.Data[0].Values.LastPrice <= 0 {
		return 0, fmt.Errorf("%w: %s", ports.ErrPriceUnavailable, symbol)
	}
	return resp.Data[0].Values.LastPrice, nil
}

// --- ports.InstrumentResolver ---

// ResolveOptionInstrument builds the weekly contract symbol and verifies
// it is quotable before returning it.
func (c *Client) ResolveOptionInstrument(ctx context.Context, underlying string, expiry time.Time, strike int, class domain.OptionClass) (string, error) {
	if strike <= 0 {
		return "", fmt.Errorf("%w: invalid strike %d for %s", ports.ErrInstrumentNotFound, strike, underlying)
	}
	symbol := WeeklyOptionSymbol(underlying, expiry, strike, class)

	if _, err := c.GetLastPrice(ctx, symbol); err != nil {
		return "", fmt.Errorf("%w: %s is not quotable", ports.ErrInstrumentNotFound, symbol)
	}
	return symbol, nil
}

// --- ports.OrderClient ---

// SubmitOrder places an intraday market order. In simulation mode the
// order is logged and acknowledged without touching the broker.
func (c *Client) SubmitOrder(ctx context.Context, symbol string, quantity int, side domain.OrderSide) (*ports.OrderResponse, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ports.ErrInvalidRequest)
	}
	clientOrderID := uuid.NewString()

	if c.simulateOrders {
		c.logger.Info(ctx, "SIMULATION: order not sent to broker", map[string]interface{}{
			"symbol": symbol, "quantity": quantity, "side": side, "clientOrderID": clientOrderID,
		})
		return &ports.OrderResponse{
			OrderID:       "sim-" + clientOrderID,
			ClientOrderID: clientOrderID,
			Symbol:        symbol,
			Quantity:      quantity,
			Side:          side,
			Timestamp:     time.Now(),
		}, nil
	}

	sideCode := 1
	if side == domain.Sell {
		sideCode = -1
	}
	payload, err := json.Marshal(orderRequest{
		Symbol:        symbol,
		Qty:           quantity,
		Type:          2,
		Side:          sideCode,
		ProductType:   "INTRADAY",
		Validity:      "DAY",
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v3/orders/sync", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}

	var resp orderResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrOrderRejected, err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("%w: %s", ports.ErrOrderRejected, resp.Message)
	}

	return &ports.OrderResponse{
		OrderID:       resp.ID,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Quantity:      quantity,
		Side:          side,
		Timestamp:     time.Now(),
	}, nil
}

// --- helpers ---

func parseCandle(symbol string, raw []json.Number) (*domain.Candle, error) {
	if len(raw) < 6 {
		return nil, fmt.Errorf("bar has %d fields, want 6", len(raw))
	}
	ts, err := raw[0].Int64()
	if err != nil {
		return nil, fmt.Errorf("bad bar timestamp: %w", err)
	}
	values := make([]float64, 5)
	for i := 1; i < 6; i++ {
		v, err := raw[i].Float64()
		if err != nil {
			return nil, fmt.Errorf("bad bar field %d: %w", i, err)
		}
		values[i-1] = v
	}
	return &domain.Candle{
		Symbol:    symbol,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		Timestamp: time.Unix(ts, 0),
	}, nil
}
