package pricing

import (
	"math"
	"testing"
	"time"

	"ufo-trading-engine/internal/ledger"
	"ufo-trading-engine/internal/strength"
)

func TestCachePutAndGet(t *testing.T) {
	cache := NewSnapshotCache()
	cache.Put("EURUSD", 1.1000, 1.1002)

	quote, ok := cache.Get("EURUSD")
	if !ok {
		t.Fatal("fresh quote not found")
	}
	if math.Abs(quote.Spread-0.0002) > 1e-12 {
		t.Errorf("spread = %v, want 0.0002", quote.Spread)
	}
	if _, ok := cache.Get("GBPUSD"); ok {
		t.Error("unknown symbol returned a quote")
	}
}

func TestCacheNormalizesInvertedQuote(t *testing.T) {
	cache := NewSnapshotCache()
	quote := cache.Put("EURUSD", 1.1002, 1.1000) // bid above ask
	if quote.Spread < 0 {
		t.Errorf("spread = %v, want non-negative", quote.Spread)
	}
	if quote.Bid > quote.Ask {
		t.Errorf("bid %v above ask %v after normalization", quote.Bid, quote.Ask)
	}
}

func TestCacheEvictsStaleQuotes(t *testing.T) {
	cache := NewSnapshotCache()
	current := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	cache.Put("EURUSD", 1.1000, 1.1002)

	current = current.Add(59 * time.Second)
	if _, ok := cache.Get("EURUSD"); !ok {
		t.Error("quote evicted before the 60s TTL")
	}

	current = current.Add(2 * time.Second)
	if _, ok := cache.Get("EURUSD"); ok {
		t.Error("stale quote served past the 60s TTL")
	}
}

func TestMidDriftAndSpreadBaseline(t *testing.T) {
	cache := NewSnapshotCache()
	cache.Put("EURUSD", 1.1000, 1.1002)
	cache.Put("EURUSD", 1.1010, 1.1012)
	cache.Put("EURUSD", 1.1020, 1.1022)

	drift := cache.MidDrift("EURUSD")
	if math.Abs(drift-0.0010) > 1e-9 {
		t.Errorf("drift = %v, want 0.0010 per step", drift)
	}
	baseline := cache.SpreadBaseline("EURUSD")
	if math.Abs(baseline-0.0002) > 1e-9 {
		t.Errorf("spread baseline = %v, want 0.0002", baseline)
	}
	if cache.MidDrift("GBPUSD") != 0 {
		t.Error("drift for unknown symbol should be zero")
	}
}

func m5Snapshot(values map[string]float64, oscillating map[string]bool) *strength.Snapshot {
	series := make(map[string][]float64, len(values))
	for c, v := range values {
		series[c] = []float64{v}
	}
	return &strength.Snapshot{
		Series: map[strength.Timeframe]map[string][]float64{
			strength.TimeframeM5: series,
		},
		Oscillation: map[strength.Timeframe]map[string]bool{
			strength.TimeframeM5: oscillating,
		},
		Uncertainty: strength.UncertaintyMetrics{State: strength.MarketStable},
	}
}

func TestOptimizeNoQuote(t *testing.T) {
	opt := NewOptimizer(NewSnapshotCache())
	if _, err := opt.Optimize("EURUSD", ledger.DirectionLong, nil); err != ErrNoQuote {
		t.Fatalf("err = %v, want ErrNoQuote", err)
	}
}

func TestOptimizeSupportiveStrengthImprovesPrice(t *testing.T) {
	cache := NewSnapshotCache()
	cache.Put("EURUSD", 1.1000, 1.1010)
	opt := NewOptimizer(cache)

	// EUR much stronger than USD supports a long: shave the ask.
	snap := m5Snapshot(map[string]float64{"EUR": 4, "USD": 0}, nil)
	result, err := opt.Optimize("EURUSD", ledger.DirectionLong, snap)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if result.Price >= result.MarketPrice {
		t.Errorf("price %v not better than ask %v with supportive strength", result.Price, result.MarketPrice)
	}
	if result.StrengthFactor != 1.0 {
		t.Errorf("strength factor = %v, want clipped to 1.0", result.StrengthFactor)
	}

	// The same differential supports a short on the other side.
	short, _ := opt.Optimize("EURUSD", ledger.DirectionShort, snap)
	if short.StrengthFactor != -1.0 {
		t.Errorf("short strength factor = %v, want -1.0", short.StrengthFactor)
	}
}

func TestOptimizeUncertaintyConcedesPrice(t *testing.T) {
	cache := NewSnapshotCache()
	cache.Put("EURUSD", 1.1000, 1.1010)
	opt := NewOptimizer(cache)

	stable := m5Snapshot(map[string]float64{"EUR": 0, "USD": 0}, nil)
	uncertain := m5Snapshot(map[string]float64{"EUR": 0, "USD": 0}, nil)
	uncertain.Uncertainty.State = strength.MarketUncertain

	base, _ := opt.Optimize("EURUSD", ledger.DirectionLong, stable)
	conceded, _ := opt.Optimize("EURUSD", ledger.DirectionLong, uncertain)
	if conceded.Price <= base.Price {
		t.Errorf("uncertain price %v not worse than stable %v for a buy", conceded.Price, base.Price)
	}
}

func TestOptimizeOscillationBuffer(t *testing.T) {
	cache := NewSnapshotCache()
	cache.Put("EURUSD", 1.1000, 1.1010)
	opt := NewOptimizer(cache)

	plain := m5Snapshot(map[string]float64{"EUR": 0, "USD": 0}, nil)
	wobbling := m5Snapshot(map[string]float64{"EUR": 0, "USD": 0}, map[string]bool{"EUR": true})

	base, _ := opt.Optimize("EURUSD", ledger.DirectionLong, plain)
	buffered, _ := opt.Optimize("EURUSD", ledger.DirectionLong, wobbling)
	if buffered.Price <= base.Price {
		t.Errorf("oscillation buffer did not move buy price up: %v vs %v", buffered.Price, base.Price)
	}
}

func TestOptimizePriceClampedNearMarket(t *testing.T) {
	cache := NewSnapshotCache()
	// Rising mids arm the momentum pull for a long.
	cache.Put("EURUSD", 1.0980, 1.0990)
	cache.Put("EURUSD", 1.1000, 1.1010)
	opt := NewOptimizer(cache)

	// Every adjustment pushed the same way still stays within the clamp.
	snap := m5Snapshot(map[string]float64{"EUR": -10, "USD": 10}, map[string]bool{"EUR": true, "USD": true})
	snap.Uncertainty.State = strength.MarketVolatile

	result, err := opt.Optimize("EURUSD", ledger.DirectionLong, snap)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	limit := maxSpreadMultiple * result.Spread
	if math.Abs(result.Price-result.MarketPrice) > limit+1e-12 {
		t.Errorf("price %v further than %v from market %v", result.Price, limit, result.MarketPrice)
	}
}

func TestPipSize(t *testing.T) {
	tests := []struct {
		symbol string
		want   float64
	}{
		{"EURUSD", 0.0001},
		{"USDJPY", 0.01},
		{"GBPJPY.r", 0.01},
		{"XAU", 0.0001},
	}
	for _, tt := range tests {
		if got := PipSize(tt.symbol); got != tt.want {
			t.Errorf("PipSize(%q) = %v, want %v", tt.symbol, got, tt.want)
		}
	}
}
