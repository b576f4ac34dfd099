package broker

import (
	"context"
	"errors"
	"time"

	"ufo-trading-engine/internal/ledger"
)

// ErrUnavailable is returned when the bridge cannot serve a request the
// caller may recover from (missing tick, empty account snapshot).
var ErrUnavailable = errors.New("broker data unavailable")

// Bar is one OHLC price bar.
type Bar struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Tick is a live bid/ask observation.
type Tick struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// OrderRequest describes an order to open. Price zero means market
// execution.
type OrderRequest struct {
	Symbol    string           `json:"symbol"`
	Direction ledger.Direction `json:"direction"`
	Volume    float64          `json:"volume"`
	Price     float64          `json:"price,omitempty"`
	Comment   string           `json:"comment,omitempty"`
}

// OrderResult is the broker's answer to an open request.
type OrderResult struct {
	Success   bool    `json:"success"`
	Ticket    int64   `json:"ticket"`
	FillPrice float64 `json:"fill_price"`
	Reason    string  `json:"reason,omitempty"`
}

// CalendarEvent is one scheduled economic release.
type CalendarEvent struct {
	Time     time.Time `json:"time"`
	Currency string    `json:"currency"`
	Impact   string    `json:"impact"` // "low", "medium", "high"
	Title    string    `json:"title"`
}

// PriceFeed supplies historical bars. Empty results mean "skip this
// symbol/timeframe", never an error the caller should abort on.
type PriceFeed interface {
	GetBars(ctx context.Context, symbol, timeframe string, count int) ([]Bar, error)
}

// BrokerSnapshot supplies the live position list and account figures.
type BrokerSnapshot interface {
	GetPositions(ctx context.Context) ([]ledger.Position, error)
	GetAccountInfo(ctx context.Context) (ledger.AccountInfo, error)
}

// OrderExecutor places and closes orders.
type OrderExecutor interface {
	Open(ctx context.Context, req OrderRequest) (OrderResult, error)
	Close(ctx context.Context, ticket int64) error
}

// QuoteProvider supplies live ticks.
type QuoteProvider interface {
	GetTick(ctx context.Context, symbol string) (Tick, error)
}

// EconomicCalendar supplies upcoming releases.
type EconomicCalendar interface {
	GetEvents(ctx context.Context) ([]CalendarEvent, error)
}

// Client is the full broker surface the engine consumes. Ping is used once
// at startup; failure there is fatal.
type Client interface {
	PriceFeed
	BrokerSnapshot
	OrderExecutor
	QuoteProvider
	EconomicCalendar
	Ping(ctx context.Context) error
}
