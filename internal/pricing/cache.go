package pricing

import (
	"sync"
	"time"
)

// quoteTTL bounds how long a cached quote may be served. Stale quotes are
// worse than no quotes for limit pricing.
const quoteTTL = 60 * time.Second

// midHistorySize is how many mid prices are retained per symbol for momentum
// and spread-baseline calculations.
const midHistorySize = 20

// MarketQuote is one observed bid/ask for a symbol. Spread is always ask-bid
// and never negative.
type MarketQuote struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Spread    float64   `json:"spread"`
	Timestamp time.Time `json:"timestamp"`
}

// Mid returns the quote midpoint.
func (q MarketQuote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

type symbolHistory struct {
	mids    []float64
	spreads []float64
}

// SnapshotCache is a short-lived per-symbol quote cache. It also keeps a
// small rolling history of mids and spreads per symbol so the optimizer and
// the reinforcement detector can reason about drift without extra broker
// calls.
type SnapshotCache struct {
	mu      sync.RWMutex
	quotes  map[string]MarketQuote
	history map[string]*symbolHistory
	now     func() time.Time
}

// NewSnapshotCache creates an empty cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{
		quotes:  make(map[string]MarketQuote),
		history: make(map[string]*symbolHistory),
		now:     time.Now,
	}
}

// Put stores a quote. A negative spread is rejected by normalizing bid/ask
// ordering first; the capture timestamp is set here.
func (c *SnapshotCache) Put(symbol string, bid, ask float64) MarketQuote {
	if ask < bid {
		bid, ask = ask, bid
	}
	quote := MarketQuote{
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Spread:    ask - bid,
		Timestamp: c.now().UTC(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[symbol] = quote

	h, ok := c.history[symbol]
	if !ok {
		h = &symbolHistory{}
		c.history[symbol] = h
	}
	h.mids = appendBounded(h.mids, quote.Mid(), midHistorySize)
	h.spreads = appendBounded(h.spreads, quote.Spread, midHistorySize)

	return quote
}

// Get returns the cached quote for a symbol if it is still fresh. Expired
// entries are treated as absent.
func (c *SnapshotCache) Get(symbol string) (MarketQuote, bool) {
	c.mu.RLock()
	quote, ok := c.quotes[symbol]
	c.mu.RUnlock()
	if !ok {
		return MarketQuote{}, false
	}
	if c.now().UTC().Sub(quote.Timestamp) > quoteTTL {
		c.mu.Lock()
		delete(c.quotes, symbol)
		c.mu.Unlock()
		return MarketQuote{}, false
	}
	return quote, true
}

// MidDrift returns the average per-step mid-price change over the retained
// history. Positive means the mid has been rising.
func (c *SnapshotCache) MidDrift(symbol string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.history[symbol]
	if !ok || len(h.mids) < 2 {
		return 0
	}
	return (h.mids[len(h.mids)-1] - h.mids[0]) / float64(len(h.mids)-1)
}

// SpreadBaseline returns the average spread over the retained history, or
// zero when no history exists.
func (c *SnapshotCache) SpreadBaseline(symbol string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.history[symbol]
	if !ok || len(h.spreads) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range h.spreads {
		sum += s
	}
	return sum / float64(len(h.spreads))
}

func appendBounded(s []float64, v float64, bound int) []float64 {
	s = append(s, v)
	if len(s) > bound {
		s = s[len(s)-bound:]
	}
	return s
}
