package broker

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

	"ufo-trading-engine/config"
	"ufo-trading-engine/internal/ledger"
)

// BridgeClient talks to the broker bridge over its JSON HTTP API. The bridge
// is the process that owns the actual trading terminal; this client never
// speaks the broker's native protocol.
type BridgeClient struct {
	baseURL      string
	login        string
	password     string
	server       string
	symbolSuffix string
	httpClient   *http.Client
}

// NewBridgeClient creates a client for the bridge at cfg.BaseURL.
func NewBridgeClient(cfg config.BrokerConfig) *BridgeClient {
	return &BridgeClient{
		baseURL:      cfg.BaseURL,
		login:        cfg.Login,
		password:     cfg.Password,
		server:       cfg.Server,
		symbolSuffix: cfg.SymbolSuffix,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

// brokerSymbol appends the broker-specific suffix, e.g. EURUSD -> EURUSD.r.
func (c *BridgeClient) brokerSymbol(symbol string) string {
	return symbol + c.symbolSuffix
}

// Ping verifies the bridge is reachable and logged in.
func (c *BridgeClient) Ping(ctx context.Context) error {
	var status struct {
		Connected bool   `json:"connected"`
		Server    string `json:"server"`
	}
	if err := c.getJSON(ctx, "/status", nil, &status); err != nil {
		return fmt.Errorf("bridge unreachable: %w", err)
	}
	if !status.Connected {
		return fmt.Errorf("bridge not connected to trading server %s", c.server)
	}
	return nil
}

// GetBars fetches historical bars. An empty slice with nil error means the
// symbol/timeframe has no data right now.
func (c *BridgeClient) GetBars(ctx context.Context, symbol, timeframe string, count int) ([]Bar, error) {
	params := url.Values{}
	params.Set("symbol", c.brokerSymbol(symbol))
	params.Set("timeframe", timeframe)
	params.Set("count", strconv.Itoa(count))

	var resp struct {
		Bars []Bar `json:"bars"`
	}
	if err := c.getJSON(ctx, "/bars", params, &resp); err != nil {
		return nil, fmt.Errorf("fetching bars for %s %s: %w", symbol, timeframe, err)
	}
	return resp.Bars, nil
}

type bridgePosition struct {
	Ticket    int64   `json:"ticket"`
	Symbol    string  `json:"symbol"`
	Type      string  `json:"type"` // "buy" or "sell"
	Volume    float64 `json:"volume"`
	PriceOpen float64 `json:"price_open"`
	Profit    float64 `json:"profit"`
	OpenTime  int64   `json:"open_time"` // unix seconds
	Comment   string  `json:"comment"`
}

// GetPositions returns the bridge's open position list mapped to ledger
// positions.
func (c *BridgeClient) GetPositions(ctx context.Context) ([]ledger.Position, error) {
	var resp struct {
		Positions []bridgePosition `json:"positions"`
	}
	if err := c.getJSON(ctx, "/positions", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}

	out := make([]ledger.Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		direction := ledger.DirectionLong
		if p.Type == "sell" {
			direction = ledger.DirectionShort
		}
		out = append(out, ledger.Position{
			Ticket:     p.Ticket,
			Symbol:     trimSuffix(p.Symbol, c.symbolSuffix),
			Direction:  direction,
			Volume:     p.Volume,
			EntryPrice: p.PriceOpen,
			OpenTime:   time.Unix(p.OpenTime, 0).UTC(),
			PnL:        p.Profit,
		})
	}
	return out, nil
}

// GetAccountInfo returns balance and equity.
func (c *BridgeClient) GetAccountInfo(ctx context.Context) (ledger.AccountInfo, error) {
	var info ledger.AccountInfo
	if err := c.getJSON(ctx, "/account", nil, &info); err != nil {
		return ledger.AccountInfo{}, fmt.Errorf("fetching account info: %w", err)
	}
	if info.Balance == 0 && info.Equity == 0 {
		return ledger.AccountInfo{}, ErrUnavailable
	}
	return info, nil
}

// GetTick returns the live quote for a symbol.
func (c *BridgeClient) GetTick(ctx context.Context, symbol string) (Tick, error) {
	params := url.Values{}
	params.Set("symbol", c.brokerSymbol(symbol))

	var tick Tick
	if err := c.getJSON(ctx, "/tick", params, &tick); err != nil {
		return Tick{}, fmt.Errorf("fetching tick for %s: %w", symbol, err)
	}
	if tick.Bid <= 0 || tick.Ask <= 0 {
		return Tick{}, ErrUnavailable
	}
	tick.Symbol = symbol
	return tick, nil
}

// Open places an order. A non-2xx response or success=false is an execution
// failure carrying the bridge's reason.
func (c *BridgeClient) Open(ctx context.Context, req OrderRequest) (OrderResult, error) {
	payload := map[string]interface{}{
		"symbol":    c.brokerSymbol(req.Symbol),
		"direction": string(req.Direction),
		"volume":    req.Volume,
		"comment":   req.Comment,
	}
	if req.Price > 0 {
		payload["price"] = req.Price
	}

	var result OrderResult
	if err := c.postJSON(ctx, "/order/open", payload, &result); err != nil {
		return OrderResult{}, fmt.Errorf("opening %s %s: %w", req.Direction, req.Symbol, err)
	}
	if !result.Success {
		return result, fmt.Errorf("order rejected: %s", result.Reason)
	}
	return result, nil
}

// Close closes a position by ticket.
func (c *BridgeClient) Close(ctx context.Context, ticket int64) error {
	var result struct {
		Success bool   `json:"success"`
		Reason  string `json:"reason"`
	}
	if err := c.postJSON(ctx, "/order/close", map[string]interface{}{"ticket": ticket}, &result); err != nil {
		return fmt.Errorf("closing ticket %d: %w", ticket, err)
	}
	if !result.Success {
		return fmt.Errorf("close rejected for ticket %d: %s", ticket, result.Reason)
	}
	return nil
}

// GetEvents returns upcoming calendar events. Bridges without a calendar
// endpoint return an empty list.
func (c *BridgeClient) GetEvents(ctx context.Context) ([]CalendarEvent, error) {
	var resp struct {
		Events []CalendarEvent `json:"events"`
	}
	if err := c.getJSON(ctx, "/calendar", nil, &resp); err != nil {
		return nil, nil
	}
	return resp.Events, nil
}

func (c *BridgeClient) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *BridgeClient) postJSON(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *BridgeClient) do(req *http.Request, out interface{}) error {
	if c.login != "" {
		req.SetBasicAuth(c.login, c.password)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge returned %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func trimSuffix(symbol, suffix string) string {
	if suffix != "" && len(symbol) > len(suffix) && symbol[len(symbol)-len(suffix):] == suffix {
		return symbol[:len(symbol)-len(suffix)]
	}
	return symbol
}
