package broker

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"ufo-trading-engine/internal/ledger"
	"ufo-trading-engine/internal/pricing"
)

// MockClient simulates the broker bridge for dry-run mode and tests. Prices
// follow a deterministic per-symbol random walk so runs are reproducible,
// and open positions accrue P&L against the simulated market.
type MockClient struct {
	mu         sync.Mutex
	positions  map[int64]*ledger.Position
	balance    float64
	nextTicket int64
	prices     map[string]float64
	rng        *rand.Rand
	start      time.Time
}

// NewMockClient creates a simulated broker with the given starting balance.
func NewMockClient(balance float64) *MockClient {
	return &MockClient{
		positions:  make(map[int64]*ledger.Position),
		balance:    balance,
		nextTicket: 100000,
		prices:     make(map[string]float64),
		rng:        rand.New(rand.NewSource(42)),
		start:      time.Now().UTC(),
	}
}

func (m *MockClient) Ping(ctx context.Context) error { return nil }

// basePrice derives a stable starting price from the symbol name.
func basePrice(symbol string) float64 {
	if pricing.PipSize(symbol) == 0.01 {
		return 150.0
	}
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return 0.8 + float64(h.Sum32()%8000)/10000.0
}

func (m *MockClient) currentPrice(symbol string) float64 {
	price, ok := m.prices[symbol]
	if !ok {
		price = basePrice(symbol)
	}
	price *= 1 + (m.rng.Float64()-0.5)*0.0004
	m.prices[symbol] = price
	return price
}

// GetBars synthesizes a random-walk bar series ending at the current price.
func (m *MockClient) GetBars(ctx context.Context, symbol, timeframe string, count int) ([]Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	price := m.currentPrice(symbol)
	step := barDuration(timeframe)
	bars := make([]Bar, count)
	p := price
	for i := count - 1; i >= 0; i-- {
		open := p * (1 + (m.rng.Float64()-0.5)*0.002)
		bars[i] = Bar{
			Time:  time.Now().UTC().Add(-step * time.Duration(count-i)),
			Open:  open,
			High:  math.Max(open, p) * 1.0003,
			Low:   math.Min(open, p) * 0.9997,
			Close: p,
		}
		p = open
	}
	return bars, nil
}

func barDuration(timeframe string) time.Duration {
	switch timeframe {
	case "M5":
		return 5 * time.Minute
	case "M15":
		return 15 * time.Minute
	case "H1":
		return time.Hour
	case "H4":
		return 4 * time.Hour
	case "D1":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

func (m *MockClient) GetTick(ctx context.Context, symbol string) (Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price := m.currentPrice(symbol)
	spread := price * 0.00015
	return Tick{Symbol: symbol, Bid: price - spread/2, Ask: price + spread/2}, nil
}

func (m *MockClient) GetPositions(ctx context.Context) ([]ledger.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ledger.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		price := m.currentPrice(pos.Symbol)
		move := price - pos.EntryPrice
		if pos.Direction == ledger.DirectionShort {
			move = -move
		}
		// ~10 per pip per standard lot, the usual USD-quote approximation
		pos.PnL = move / pricing.PipSize(pos.Symbol) * pos.Volume * 10
		out = append(out, *pos)
	}
	return out, nil
}

func (m *MockClient) GetAccountInfo(ctx context.Context) (ledger.AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	equity := m.balance
	for _, pos := range m.positions {
		equity += pos.PnL
	}
	return ledger.AccountInfo{Balance: m.balance, Equity: equity, Currency: "USD"}, nil
}

func (m *MockClient) Open(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if req.Volume <= 0 {
		return OrderResult{Reason: "invalid volume"}, fmt.Errorf("order rejected: invalid volume %v", req.Volume)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fill := req.Price
	if fill == 0 {
		fill = m.currentPrice(req.Symbol)
	}
	m.nextTicket++
	ticket := m.nextTicket
	m.positions[ticket] = &ledger.Position{
		Ticket:     ticket,
		Symbol:     req.Symbol,
		Direction:  req.Direction,
		Volume:     req.Volume,
		EntryPrice: fill,
		OpenTime:   time.Now().UTC(),
	}
	return OrderResult{Success: true, Ticket: ticket, FillPrice: fill}, nil
}

func (m *MockClient) Close(ctx context.Context, ticket int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[ticket]
	if !ok {
		return fmt.Errorf("close rejected for ticket %d: unknown ticket", ticket)
	}
	m.balance += pos.PnL
	delete(m.positions, ticket)
	return nil
}

func (m *MockClient) GetEvents(ctx context.Context) ([]CalendarEvent, error) {
	return nil, nil
}
