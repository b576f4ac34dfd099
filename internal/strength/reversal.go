package strength

import "math"

// ReversalSignal marks a currency whose strength moved sharply away from its
// recent average between two consecutive snapshots.
type ReversalSignal struct {
	Currency  string    `json:"currency"`
	Timeframe Timeframe `json:"timeframe"`
	Delta     float64   `json:"delta"`
	Direction string    `json:"direction"` // "strengthening" or "weakening"
}

// DetectReversals compares the current snapshot against the previous one.
// For each currency present on the same timeframe in both, delta is the
// current reading minus the mean of that currency's last `lookback` samples
// in the previous snapshot. The threshold is strict: a delta of exactly the
// threshold is not flagged.
func DetectReversals(current, previous *Snapshot, threshold float64, lookback int) []ReversalSignal {
	if current == nil || previous == nil {
		return nil
	}

	var signals []ReversalSignal
	for tf, currencies := range current.Series {
		prevCurrencies, ok := previous.Series[tf]
		if !ok {
			continue
		}
		for currency, series := range currencies {
			prevSeries, ok := prevCurrencies[currency]
			if !ok || len(series) == 0 || len(prevSeries) == 0 {
				continue
			}

			delta := series[len(series)-1] - tailMean(prevSeries, lookback)
			if math.Abs(delta) <= threshold {
				continue
			}

			direction := "strengthening"
			if delta < 0 {
				direction = "weakening"
			}
			signals = append(signals, ReversalSignal{
				Currency:  currency,
				Timeframe: tf,
				Delta:     delta,
				Direction: direction,
			})
		}
	}
	return signals
}

// FlaggedCurrencies returns the distinct currency codes across signals.
func FlaggedCurrencies(signals []ReversalSignal) map[string]bool {
	out := make(map[string]bool, len(signals))
	for _, s := range signals {
		out[s.Currency] = true
	}
	return out
}

func tailMean(series []float64, n int) float64 {
	if n <= 0 || n > len(series) {
		n = len(series)
	}
	tail := series[len(series)-n:]
	sum := 0.0
	for _, v := range tail {
		sum += v
	}
	return sum / float64(len(tail))
}
