package strength

import "math"

// Market state classifications derived from oscillation and recent movement.
const (
	MarketStable    = "stable"
	MarketUncertain = "uncertain"
	MarketVolatile  = "volatile"
)

// UncertaintyMetrics classifies the overall market state for the snapshot.
type UncertaintyMetrics struct {
	State               string  `json:"state"`
	Confidence          float64 `json:"confidence"` // 0..1, higher means clearer signals
	OscillatingFraction float64 `json:"oscillating_fraction"`
	RecentChange        float64 `json:"recent_change"` // mean |last-step strength delta|
}

// analyzeUncertainty derives the market state from the fraction of
// oscillating currencies and the magnitude of the latest strength moves.
func (e *Engine) analyzeUncertainty(snap *Snapshot) UncertaintyMetrics {
	total, oscillating := 0, 0
	changeSum, changeCount := 0.0, 0

	for tf, currencies := range snap.Series {
		for currency, series := range currencies {
			total++
			if snap.Oscillation[tf][currency] {
				oscillating++
			}
			if len(series) >= 2 {
				changeSum += math.Abs(series[len(series)-1] - series[len(series)-2])
				changeCount++
			}
		}
	}

	m := UncertaintyMetrics{State: MarketStable, Confidence: 1.0}
	if total == 0 {
		return m
	}

	m.OscillatingFraction = float64(oscillating) / float64(total)
	if changeCount > 0 {
		m.RecentChange = changeSum / float64(changeCount)
	}

	switch {
	case m.OscillatingFraction >= 0.5:
		m.State = MarketUncertain
	case m.RecentChange >= e.cfg.ReversalThreshold:
		m.State = MarketVolatile
	}
	m.Confidence = clamp01(1.0 - m.OscillatingFraction)

	return m
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
