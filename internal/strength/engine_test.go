package strength

import (
	"math"
	"testing"

	"ufo-trading-engine/config"
)

func testConfig() config.StrengthConfig {
	return config.StrengthConfig{
		OscillationWindow:    20,
		OscillationReversals: 4,
		OscillationAmplitude: 0.5,
		ReversalThreshold:    2.0,
		ReversalLookback:     5,
		MinExitSignals:       3,
	}
}

func TestPercentageVariation(t *testing.T) {
	tests := []struct {
		name     string
		closes   []float64
		expected []float64
	}{
		{
			name:     "rising series",
			closes:   []float64{100, 101, 102.01},
			expected: []float64{1.0, 1.0},
		},
		{
			name:     "falling series",
			closes:   []float64{200, 190},
			expected: []float64{-5.0},
		},
		{
			name:     "flat series",
			closes:   []float64{1.5, 1.5, 1.5},
			expected: []float64{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := percentageVariation(tt.closes)
			if len(got) != len(tt.expected) {
				t.Fatalf("got %d variations, want %d", len(got), len(tt.expected))
			}
			for i := range got {
				if math.Abs(got[i]-tt.expected[i]) > 1e-9 {
					t.Errorf("variation[%d] = %v, want %v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestIncrementalSumNeverResets(t *testing.T) {
	got := incrementalSum([]float64{1, -2, 3, 0.5})
	want := []float64{1, -1, 2, 2.5}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("sum[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSplitPair(t *testing.T) {
	tests := []struct {
		symbol      string
		base, quote string
		ok          bool
	}{
		{"EURUSD", "EUR", "USD", true},
		{"gbpjpy", "GBP", "JPY", true},
		{"USDCHF.r", "USD", "CHF", true},
		{"XAU", "", "", false},
	}
	for _, tt := range tests {
		base, quote, ok := SplitPair(tt.symbol)
		if base != tt.base || quote != tt.quote || ok != tt.ok {
			t.Errorf("SplitPair(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.symbol, base, quote, ok, tt.base, tt.quote, tt.ok)
		}
	}
}

func TestAnalyzeAggregatesBaseAndQuoteLegs(t *testing.T) {
	engine := NewEngine([]string{"EUR", "USD", "JPY"}, testConfig())

	// EURUSD rises 1% per bar, USDJPY flat:
	// EUR gains from the base leg, USD loses from the quote leg.
	snap, err := engine.Analyze(map[Timeframe]PriceTable{
		TimeframeH1: {
			"EURUSD": {1.0, 1.01, 1.0201},
			"USDJPY": {150, 150, 150},
		},
	})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	eur, ok := snap.Current(TimeframeH1, "EUR")
	if !ok {
		t.Fatal("no EUR strength reading")
	}
	usd, _ := snap.Current(TimeframeH1, "USD")
	jpy, _ := snap.Current(TimeframeH1, "JPY")

	if eur <= 0 {
		t.Errorf("EUR strength = %v, want positive", eur)
	}
	if usd >= 0 {
		t.Errorf("USD strength = %v, want negative", usd)
	}
	if math.Abs(eur+usd-jpy) > 1e-9 {
		// EUR = +cum(EURUSD), USD = -cum(EURUSD) + cum(USDJPY), JPY = -cum(USDJPY)
		t.Errorf("legs do not balance: EUR=%v USD=%v JPY=%v", eur, usd, jpy)
	}

	// Series lengths within a timeframe must match.
	want := len(snap.Series[TimeframeH1]["EUR"])
	for currency, series := range snap.Series[TimeframeH1] {
		if len(series) != want {
			t.Errorf("series length for %s = %d, want %d", currency, len(series), want)
		}
	}
}

func TestAnalyzeNoData(t *testing.T) {
	engine := NewEngine([]string{"EUR", "USD"}, testConfig())

	_, err := engine.Analyze(map[Timeframe]PriceTable{
		TimeframeH1: {"EURUSD": {1.1}}, // a single close has no variation
	})
	if err != ErrNoData {
		t.Fatalf("Analyze error = %v, want ErrNoData", err)
	}
}

func TestIsOscillating(t *testing.T) {
	engine := NewEngine(nil, testConfig())

	tests := []struct {
		name   string
		series []float64
		want   bool
	}{
		{
			name:   "alternating with amplitude",
			series: []float64{1, -1, 1, -1, 1, -1},
			want:   true,
		},
		{
			name:   "trending series",
			series: []float64{0.1, 0.5, 1.0, 1.5, 2.0},
			want:   false,
		},
		{
			name:   "alternating but flat",
			series: []float64{0.01, -0.01, 0.01, -0.01, 0.01, -0.01},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.isOscillating(tt.series); got != tt.want {
				t.Errorf("isOscillating(%v) = %v, want %v", tt.series, got, tt.want)
			}
		})
	}
}

func TestCoherenceSingleTimeframe(t *testing.T) {
	engine := NewEngine([]string{"EUR", "USD", "JPY", "GBP"}, testConfig())
	snap := &Snapshot{
		Series: map[Timeframe]map[string][]float64{
			TimeframeH1: {
				"EUR": {1.0}, "USD": {0.5}, "JPY": {-0.5}, "GBP": {-1.0},
			},
		},
	}
	report := engine.analyzeCoherence(snap)
	if !report.Coherent || report.Score != 1.0 {
		t.Errorf("single timeframe coherence = %+v, want coherent with score 1.0", report)
	}
}

func TestCoherenceAgreementAcrossTimeframes(t *testing.T) {
	engine := NewEngine([]string{"EUR", "USD", "JPY", "GBP"}, testConfig())

	agree := map[string][]float64{"EUR": {2.0}, "USD": {1.0}, "JPY": {-1.0}, "GBP": {-2.0}}
	invert := map[string][]float64{"EUR": {-2.0}, "USD": {-1.0}, "JPY": {1.0}, "GBP": {2.0}}

	coherent := engine.analyzeCoherence(&Snapshot{Series: map[Timeframe]map[string][]float64{
		TimeframeM5: agree, TimeframeH1: agree,
	}})
	if !coherent.Coherent || math.Abs(coherent.Score-1.0) > 1e-9 {
		t.Errorf("identical rankings: %+v, want score 1.0", coherent)
	}

	conflicting := engine.analyzeCoherence(&Snapshot{Series: map[Timeframe]map[string][]float64{
		TimeframeM5: agree, TimeframeH1: invert,
	}})
	if conflicting.Coherent || math.Abs(conflicting.Score-(-1.0)) > 1e-9 {
		t.Errorf("inverted rankings: %+v, want score -1.0", conflicting)
	}
}

func TestDetectReversalsStrictThreshold(t *testing.T) {
	previous := &Snapshot{Series: map[Timeframe]map[string][]float64{
		TimeframeH1: {
			"EUR": {0, 0, 0, 0, 0},
			"USD": {0, 0, 0, 0, 0},
		},
	}}

	tests := []struct {
		name    string
		current float64
		flagged bool
	}{
		{"exactly at threshold not flagged", 2.0, false},
		{"just above threshold flagged", 2.0001, true},
		{"just below negative threshold flagged", -2.0001, true},
		{"within threshold not flagged", 1.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := &Snapshot{Series: map[Timeframe]map[string][]float64{
				TimeframeH1: {"EUR": {tt.current}, "USD": {0}},
			}}
			signals := DetectReversals(current, previous, 2.0, 5)
			if got := len(signals) == 1; got != tt.flagged {
				t.Fatalf("flagged = %v, want %v (signals: %+v)", got, tt.flagged, signals)
			}
			if tt.flagged {
				s := signals[0]
				if s.Currency != "EUR" {
					t.Errorf("flagged currency = %s, want EUR", s.Currency)
				}
				wantDir := "strengthening"
				if tt.current < 0 {
					wantDir = "weakening"
				}
				if s.Direction != wantDir {
					t.Errorf("direction = %s, want %s", s.Direction, wantDir)
				}
			}
		})
	}
}

func TestDetectReversalsUsesPreviousTailMean(t *testing.T) {
	// Previous tail mean over last 5 samples: (1+2+3+4+5)/5 = 3.
	previous := &Snapshot{Series: map[Timeframe]map[string][]float64{
		TimeframeH1: {"GBP": {10, 1, 2, 3, 4, 5}},
	}}
	current := &Snapshot{Series: map[Timeframe]map[string][]float64{
		TimeframeH1: {"GBP": {5.5}},
	}}

	signals := DetectReversals(current, previous, 2.0, 5)
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	if math.Abs(signals[0].Delta-2.5) > 1e-9 {
		t.Errorf("delta = %v, want 2.5", signals[0].Delta)
	}
}
