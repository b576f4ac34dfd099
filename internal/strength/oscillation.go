package strength

// isOscillating flags a strength series that keeps crossing zero within the
// trailing window with enough amplitude to matter. A flat series hugging zero
// is noise, not oscillation.
func (e *Engine) isOscillating(series []float64) bool {
	window := e.cfg.OscillationWindow
	if len(series) < 2 {
		return false
	}
	if len(series) > window {
		series = series[len(series)-window:]
	}

	reversals := 0
	lo, hi := series[0], series[0]
	prevSign := sign(series[0])
	for _, v := range series[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		s := sign(v)
		if s != 0 && prevSign != 0 && s != prevSign {
			reversals++
		}
		if s != 0 {
			prevSign = s
		}
	}

	return reversals >= e.cfg.OscillationReversals && (hi-lo) >= e.cfg.OscillationAmplitude
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
