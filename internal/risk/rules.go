package risk

import (
	"time"

	"ufo-trading-engine/config"
	"ufo-trading-engine/internal/ledger"
)

// Closure reasons, in evaluation priority order. Each position gets at most
// one reason per pass.
const (
	ReasonProfitTarget  = "profit_target"
	ReasonStopLoss      = "stop_loss"
	ReasonTimeBasedExit = "time_based_exit"
	ReasonTrailingStop  = "trailing_stop"
)

// ClosureDecision pairs a position with the rule that fired for it.
type ClosureDecision struct {
	Position ledger.Position `json:"position"`
	Reason   string          `json:"reason"`
	Detail   string          `json:"detail,omitempty"`
}

// RuleEvaluator applies per-position closure rules in a fixed priority:
// profit target, stop loss, time-based exit, then trailing stop. The trailing
// stop only arms once peak P&L has reached the trigger level.
type RuleEvaluator struct {
	cfg config.TradingConfig
}

// NewRuleEvaluator creates an evaluator from the trading limits.
func NewRuleEvaluator(cfg config.TradingConfig) *RuleEvaluator {
	return &RuleEvaluator{cfg: cfg}
}

// Evaluate checks every open position and returns the ones that must close.
func (r *RuleEvaluator) Evaluate(positions []ledger.Position, now time.Time) []ClosureDecision {
	var decisions []ClosureDecision
	for _, pos := range positions {
		if reason, ok := r.evaluateOne(pos, now); ok {
			decisions = append(decisions, ClosureDecision{Position: pos, Reason: reason})
		}
	}
	return decisions
}

func (r *RuleEvaluator) evaluateOne(pos ledger.Position, now time.Time) (string, bool) {
	if pos.PnL >= r.cfg.ProfitTarget {
		return ReasonProfitTarget, true
	}
	if pos.PnL <= r.cfg.StopLoss {
		return ReasonStopLoss, true
	}
	if pos.Age(now) >= r.cfg.MaxPositionDuration() {
		return ReasonTimeBasedExit, true
	}
	if r.cfg.EnableTrailingStop && pos.PeakPnL >= r.cfg.TrailingStopTrigger {
		if pos.PnL <= pos.PeakPnL-r.cfg.TrailingStopDistance {
			return ReasonTrailingStop, true
		}
	}
	return "", false
}
