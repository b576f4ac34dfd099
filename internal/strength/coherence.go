package strength

import "sort"

// CoherenceReport measures agreement of currency strength rankings across
// timeframes. A low score means the horizons disagree about who is strong.
type CoherenceReport struct {
	Score      float64 `json:"score"` // mean pairwise rank correlation, -1..1
	Coherent   bool    `json:"coherent"`
	Timeframes int     `json:"timeframes"`
}

const coherenceFloor = 0.5

// analyzeCoherence computes the mean pairwise Spearman rank correlation of
// currency rankings (by latest strength) between every timeframe pair.
func (e *Engine) analyzeCoherence(snap *Snapshot) CoherenceReport {
	rankings := make([]map[string]int, 0, len(snap.Series))
	for _, tf := range AllTimeframes {
		currencies, ok := snap.Series[tf]
		if !ok {
			continue
		}
		rankings = append(rankings, rankByStrength(currencies))
	}

	report := CoherenceReport{Timeframes: len(rankings)}
	if len(rankings) < 2 {
		// A single horizon cannot disagree with itself
		report.Score = 1.0
		report.Coherent = true
		return report
	}

	sum, pairs := 0.0, 0
	for i := 0; i < len(rankings); i++ {
		for j := i + 1; j < len(rankings); j++ {
			if rho, ok := spearman(rankings[i], rankings[j]); ok {
				sum += rho
				pairs++
			}
		}
	}
	if pairs > 0 {
		report.Score = sum / float64(pairs)
	}
	report.Coherent = report.Score >= coherenceFloor
	return report
}

// rankByStrength ranks currencies by latest strength, strongest first.
func rankByStrength(currencies map[string][]float64) map[string]int {
	type reading struct {
		currency string
		value    float64
	}
	readings := make([]reading, 0, len(currencies))
	for currency, series := range currencies {
		if len(series) == 0 {
			continue
		}
		readings = append(readings, reading{currency, series[len(series)-1]})
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].value > readings[j].value })

	ranks := make(map[string]int, len(readings))
	for i, r := range readings {
		ranks[r.currency] = i
	}
	return ranks
}

// spearman computes the Spearman rank correlation over the currencies present
// in both rankings. Needs at least three shared currencies to be meaningful.
func spearman(a, b map[string]int) (float64, bool) {
	shared := make([]string, 0, len(a))
	for currency := range a {
		if _, ok := b[currency]; ok {
			shared = append(shared, currency)
		}
	}
	n := len(shared)
	if n < 3 {
		return 0, false
	}

	var d2 float64
	for _, currency := range shared {
		d := float64(a[currency] - b[currency])
		d2 += d * d
	}
	return 1 - (6*d2)/float64(n*(n*n-1)), true
}
