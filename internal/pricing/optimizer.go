package pricing

import (
	"errors"
	"strings"

	"ufo-trading-engine/internal/ledger"
	"ufo-trading-engine/internal/strength"
)

// ErrNoQuote is returned when no fresh quote exists for the symbol. Callers
// fall back to market execution.
var ErrNoQuote = errors.New("no fresh quote for symbol")

// Adjustment scale factors, all expressed as fractions of the current spread.
const (
	strengthScale         = 2.0  // strength differential that saturates the factor
	strengthSpreadWeight  = 0.5  // max shave/concession from the differential
	momentumSpreadWeight  = 0.25 // pull toward market on favorable drift
	uncertaintyBiasWeight = 0.3  // concession when the market state is unclear
	oscillationBuffer     = 0.2  // safety margin around oscillating currencies
	maxSpreadMultiple     = 1.5  // hard clamp around the market side
)

// OptimizedPrice carries the adjusted limit price and the inputs that shaped
// it, for cycle summaries.
type OptimizedPrice struct {
	Symbol         string  `json:"symbol"`
	Price          float64 `json:"price"`
	MarketPrice    float64 `json:"market_price"` // the unadjusted side (ask for buy, bid for sell)
	Spread         float64 `json:"spread"`
	StrengthFactor float64 `json:"strength_factor"`
}

// Optimizer computes adjusted limit prices for new and reinforcement orders
// from the live quote, the strength differential of the pair's legs, recent
// price drift, and the market state.
type Optimizer struct {
	cache *SnapshotCache
}

// NewOptimizer creates an optimizer over the shared quote cache.
func NewOptimizer(cache *SnapshotCache) *Optimizer {
	return &Optimizer{cache: cache}
}

// Optimize returns a limit price for opening a position in the given
// direction. snap may be nil when no strength data is available; only the
// quote-based adjustments apply then. Returns ErrNoQuote when the cache has
// no fresh quote.
func (o *Optimizer) Optimize(symbol string, direction ledger.Direction, snap *strength.Snapshot) (OptimizedPrice, error) {
	quote, ok := o.cache.Get(symbol)
	if !ok {
		return OptimizedPrice{}, ErrNoQuote
	}

	market := quote.Ask
	if direction == ledger.DirectionShort {
		market = quote.Bid
	}
	spread := quote.Spread
	if spread <= 0 {
		return OptimizedPrice{Symbol: symbol, Price: market, MarketPrice: market}, nil
	}

	// sign +1 moves the price in the trade's favorable direction (cheaper
	// buy, richer sell); -1 concedes toward a likelier fill.
	favor := -1.0
	if direction == ledger.DirectionShort {
		favor = 1.0
	}

	factor := o.strengthFactor(symbol, direction, snap)
	price := market + favor*factor*strengthSpreadWeight*spread

	// Favorable drift means waiting costs money: pull back toward market.
	drift := o.cache.MidDrift(symbol)
	if (direction == ledger.DirectionLong && drift > 0) || (direction == ledger.DirectionShort && drift < 0) {
		price -= favor * momentumSpreadWeight * spread
	}

	if snap != nil && snap.Uncertainty.State != strength.MarketStable {
		price -= favor * uncertaintyBiasWeight * spread
	}
	if o.anyLegOscillating(symbol, snap) {
		price -= favor * oscillationBuffer * spread
	}

	// Clamp so stacked adjustments can never produce an unfillable or
	// nonsensical limit.
	lo, hi := market-maxSpreadMultiple*spread, market+maxSpreadMultiple*spread
	if price < lo {
		price = lo
	}
	if price > hi {
		price = hi
	}

	return OptimizedPrice{
		Symbol:         symbol,
		Price:          price,
		MarketPrice:    market,
		Spread:         spread,
		StrengthFactor: factor,
	}, nil
}

// strengthFactor is the base-minus-quote strength differential signed toward
// the trade and clipped to [-1, 1]. Positive supports the trade.
func (o *Optimizer) strengthFactor(symbol string, direction ledger.Direction, snap *strength.Snapshot) float64 {
	if snap == nil {
		return 0
	}
	base, quote, ok := strength.SplitPair(symbol)
	if !ok {
		return 0
	}
	baseVal, okB := snap.Current(strength.TimeframeM5, base)
	quoteVal, okQ := snap.Current(strength.TimeframeM5, quote)
	if !okB || !okQ {
		return 0
	}

	diff := (baseVal - quoteVal) / strengthScale
	if direction == ledger.DirectionShort {
		diff = -diff
	}
	if diff > 1 {
		diff = 1
	}
	if diff < -1 {
		diff = -1
	}
	return diff
}

func (o *Optimizer) anyLegOscillating(symbol string, snap *strength.Snapshot) bool {
	if snap == nil {
		return false
	}
	base, quote, ok := strength.SplitPair(symbol)
	if !ok {
		return false
	}
	return snap.IsOscillating(strength.TimeframeM5, base) || snap.IsOscillating(strength.TimeframeM5, quote)
}

// PipSize returns the pip unit for a symbol: 0.01 for JPY-quoted pairs,
// 0.0001 otherwise.
func PipSize(symbol string) float64 {
	_, quote, ok := strength.SplitPair(symbol)
	if ok && strings.EqualFold(quote, "JPY") {
		return 0.01
	}
	return 0.0001
}
