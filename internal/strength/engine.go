package strength

import (
	"errors"
	"strings"
	"time"

	"ufo-trading-engine/config"
)

// ErrNoData is returned when no timeframe produced a single valid price column.
// Callers must skip the cycle.
var ErrNoData = errors.New("no price data available for strength analysis")

// Timeframe identifies a bar aggregation period.
type Timeframe string

const (
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
)

// AllTimeframes lists the timeframes analyzed each cycle, shortest first.
var AllTimeframes = []Timeframe{TimeframeM5, TimeframeM15, TimeframeH1, TimeframeH4, TimeframeD1}

// BarCounts is the number of bars requested per timeframe.
var BarCounts = map[Timeframe]int{
	TimeframeM5:  240,
	TimeframeM15: 80,
	TimeframeH1:  20,
	TimeframeH4:  120,
	TimeframeD1:  100,
}

// PriceTable holds close-price series per symbol for a single timeframe.
type PriceTable map[string][]float64

// Snapshot is the immutable result of one analysis pass. Series maps
// timeframe -> currency -> cumulative strength series; the last element of
// each series is the current strength reading.
type Snapshot struct {
	Series      map[Timeframe]map[string][]float64
	Oscillation map[Timeframe]map[string]bool
	Uncertainty UncertaintyMetrics
	Coherence   CoherenceReport
	GeneratedAt time.Time
}

// Current returns the latest strength reading for a currency on a timeframe.
func (s *Snapshot) Current(tf Timeframe, currency string) (float64, bool) {
	series, ok := s.Series[tf][currency]
	if !ok || len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// IsOscillating reports whether a currency is flagged oscillating on a timeframe.
func (s *Snapshot) IsOscillating(tf Timeframe, currency string) bool {
	return s.Oscillation[tf][currency]
}

// Engine converts multi-timeframe close-price tables into per-currency
// strength series and derived metrics.
type Engine struct {
	currencies []string
	cfg        config.StrengthConfig
}

// NewEngine creates a strength engine for the given currency universe.
func NewEngine(currencies []string, cfg config.StrengthConfig) *Engine {
	return &Engine{currencies: currencies, cfg: cfg}
}

// Analyze runs the full pipeline: percentage variation, incremental sum,
// per-currency aggregation, then oscillation, uncertainty and coherence
// metrics. The returned snapshot is never mutated afterwards.
func (e *Engine) Analyze(prices map[Timeframe]PriceTable) (*Snapshot, error) {
	series := make(map[Timeframe]map[string][]float64, len(prices))

	for tf, table := range prices {
		signals := make(map[string][]float64, len(table))
		for symbol, closes := range table {
			if len(closes) < 2 {
				continue
			}
			signals[symbol] = incrementalSum(percentageVariation(closes))
		}
		if len(signals) == 0 {
			continue
		}
		series[tf] = e.aggregateCurrencies(signals)
	}

	if len(series) == 0 {
		return nil, ErrNoData
	}

	snap := &Snapshot{
		Series:      series,
		Oscillation: make(map[Timeframe]map[string]bool, len(series)),
		GeneratedAt: time.Now().UTC(),
	}

	for tf, currencies := range series {
		flags := make(map[string]bool, len(currencies))
		for currency, s := range currencies {
			flags[currency] = e.isOscillating(s)
		}
		snap.Oscillation[tf] = flags
	}

	snap.Uncertainty = e.analyzeUncertainty(snap)
	snap.Coherence = e.analyzeCoherence(snap)

	return snap, nil
}

// percentageVariation computes (close[t]-close[t-1])/close[t-1] for every
// consecutive pair. The first sample has no variation.
func percentageVariation(closes []float64) []float64 {
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-prev)/prev*100)
	}
	return out
}

// incrementalSum is a running cumulative sum starting at zero, never reset
// within the series.
func incrementalSum(variations []float64) []float64 {
	out := make([]float64, len(variations))
	sum := 0.0
	for i, v := range variations {
		sum += v
		out[i] = sum
	}
	return out
}

// aggregateCurrencies folds per-symbol cumulative signals into one strength
// series per currency: the signal is added when the currency is the base leg
// of the pair and subtracted when it is the quote leg. All series within a
// timeframe are truncated to a common length so readings stay aligned.
func (e *Engine) aggregateCurrencies(signals map[string][]float64) map[string][]float64 {
	minLen := 0
	for _, s := range signals {
		if minLen == 0 || len(s) < minLen {
			minLen = len(s)
		}
	}

	out := make(map[string][]float64, len(e.currencies))
	for _, currency := range e.currencies {
		agg := make([]float64, minLen)
		matched := false
		for symbol, signal := range signals {
			base, quote, ok := SplitPair(symbol)
			if !ok {
				continue
			}
			tail := signal[len(signal)-minLen:]
			switch currency {
			case base:
				matched = true
				for i, v := range tail {
					agg[i] += v
				}
			case quote:
				matched = true
				for i, v := range tail {
					agg[i] -= v
				}
			}
		}
		if matched {
			out[currency] = agg
		}
	}
	return out
}

// SplitPair splits a symbol like "EURUSD" (with optional broker suffix) into
// its base and quote currency codes.
func SplitPair(symbol string) (base, quote string, ok bool) {
	s := strings.ToUpper(symbol)
	if i := strings.IndexAny(s, "._-"); i > 0 {
		s = s[:i]
	}
	if len(s) < 6 {
		return "", "", false
	}
	return s[:3], s[3:6], true
}
