package risk

import (
	"fmt"
	"time"

	"ufo-trading-engine/config"
	"ufo-trading-engine/internal/ledger"
	"ufo-trading-engine/internal/strength"
)

// Portfolio-level emergency reasons.
const (
	ReasonEquityStop       = "equity_stop"
	ReasonSessionEnd       = "session_end"
	ReasonStrengthReversal = "strength_reversal"
)

// EmergencyAction orders the engine to flatten positions outside the normal
// per-position rules. Symbols empty means close everything.
type EmergencyAction struct {
	Reason  string   `json:"reason"`
	Detail  string   `json:"detail"`
	Symbols []string `json:"symbols,omitempty"`
}

// PortfolioGuard watches portfolio-wide risk: drawdown against the session
// baseline, the daily liquidation window, and mass strength reversals across
// the currency universe.
type PortfolioGuard struct {
	trading  config.TradingConfig
	strength config.StrengthConfig
	session  *SessionCalendar

	baselineEquity float64
}

// NewPortfolioGuard creates a guard. baselineEquity is the account equity
// observed at startup; the drawdown stop is measured against it.
func NewPortfolioGuard(trading config.TradingConfig, strengthCfg config.StrengthConfig, session *SessionCalendar, baselineEquity float64) *PortfolioGuard {
	return &PortfolioGuard{
		trading:        trading,
		strength:       strengthCfg,
		session:        session,
		baselineEquity: baselineEquity,
	}
}

// Check runs all portfolio-level checks in severity order and returns the
// first action that fires, if any. current and previous are consecutive
// strength snapshots; previous may be nil on the first cycle.
func (g *PortfolioGuard) Check(snap ledger.PortfolioSnapshot, lgr *ledger.Ledger, current, previous *strength.Snapshot, now time.Time) (EmergencyAction, bool) {
	if action, ok := g.checkEquityStop(snap); ok {
		return action, true
	}
	if g.session.ShouldLiquidate(now) && snap.OpenPositions > 0 {
		return EmergencyAction{
			Reason: ReasonSessionEnd,
			Detail: fmt.Sprintf("%.0f minutes to session close", g.session.TimeToClose(now).Minutes()),
		}, true
	}
	if action, ok := g.checkStrengthReversal(lgr, current, previous); ok {
		return action, true
	}
	return EmergencyAction{}, false
}

// checkEquityStop fires when equity has fallen past the configured loss
// limit. The absolute limit takes precedence when both are set.
func (g *PortfolioGuard) checkEquityStop(snap ledger.PortfolioSnapshot) (EmergencyAction, bool) {
	drawdown := g.baselineEquity - snap.Equity

	if g.trading.EquityStopAbsolute > 0 && drawdown >= g.trading.EquityStopAbsolute {
		return EmergencyAction{
			Reason: ReasonEquityStop,
			Detail: fmt.Sprintf("drawdown %.2f breached absolute limit %.2f", drawdown, g.trading.EquityStopAbsolute),
		}, true
	}
	if g.trading.EquityStopPercent > 0 && g.baselineEquity > 0 {
		limit := g.baselineEquity * g.trading.EquityStopPercent / 100
		if drawdown >= limit {
			return EmergencyAction{
				Reason: ReasonEquityStop,
				Detail: fmt.Sprintf("drawdown %.2f breached %.1f%% limit %.2f", drawdown, g.trading.EquityStopPercent, limit),
			}, true
		}
	}
	return EmergencyAction{}, false
}

// checkStrengthReversal fires when enough currencies reversed sharply between
// snapshots. Only positions whose pair contains a flagged currency close.
func (g *PortfolioGuard) checkStrengthReversal(lgr *ledger.Ledger, current, previous *strength.Snapshot) (EmergencyAction, bool) {
	if current == nil || previous == nil {
		return EmergencyAction{}, false
	}

	signals := strength.DetectReversals(current, previous, g.strength.ReversalThreshold, g.strength.ReversalLookback)
	flagged := strength.FlaggedCurrencies(signals)
	if len(flagged) < g.strength.MinExitSignals {
		return EmergencyAction{}, false
	}

	symbols := lgr.SymbolsContaining(flagged, strength.SplitPair)
	if len(symbols) == 0 {
		return EmergencyAction{}, false
	}

	names := make([]string, 0, len(flagged))
	for c := range flagged {
		names = append(names, c)
	}
	return EmergencyAction{
		Reason:  ReasonStrengthReversal,
		Detail:  fmt.Sprintf("%d currencies reversed: %v", len(flagged), names),
		Symbols: symbols,
	}, true
}
