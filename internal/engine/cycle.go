package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ufo-trading-engine/internal/agents"
	"ufo-trading-engine/internal/database"
	"ufo-trading-engine/internal/events"
	"ufo-trading-engine/internal/ledger"
	"ufo-trading-engine/internal/logging"
	"ufo-trading-engine/internal/risk"
	"ufo-trading-engine/internal/strength"
)

// runDecisionCycle is the full pipeline: sync, analytics, portfolio guard,
// closure rules, reinforcement, then agent-proposed new trades. The guard
// can short-circuit everything after it.
func (e *Engine) runDecisionCycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	started := time.Now().UTC()
	log := e.log.WithCycleID(cycleID)

	if !e.session.IsActive(started) {
		log.Info("Session inactive, cycle skipped")
		e.saveSummary(ctx, database.CycleSummary{
			CycleID: cycleID, StartedAt: started, FinishedAt: time.Now().UTC(),
			Skipped: true, SkipReason: "session_inactive",
		})
		e.bus.Publish(events.Event{Type: events.EventCycleSkipped, Data: map[string]interface{}{
			"cycle_id": cycleID, "reason": "session_inactive",
		}})
		return nil
	}

	log.Info("Decision cycle started")
	e.bus.Publish(events.Event{Type: events.EventCycleStarted, Data: map[string]interface{}{"cycle_id": cycleID}})

	if err := e.syncPositions(ctx); err != nil {
		return err
	}
	account, err := e.client.GetAccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("fetching account info: %w", err)
	}
	portfolio := e.ledger.Snapshot(account)

	e.refreshQuotes(ctx, e.cfg.TradingConfig.Symbols)

	snap, err := e.analyzeStrength(ctx)
	if errors.Is(err, strength.ErrNoData) {
		log.Warn("No price data, cycle skipped")
		e.saveSummary(ctx, database.CycleSummary{
			CycleID: cycleID, StartedAt: started, FinishedAt: time.Now().UTC(),
			Skipped: true, SkipReason: "no_data",
			Equity: portfolio.Equity, OpenPositions: portfolio.OpenPositions,
		})
		return nil
	}
	if err != nil {
		return err
	}
	previous := e.rotateSnapshots(snap)
	e.bus.Publish(events.Event{Type: events.EventStrengthUpdated, Data: map[string]interface{}{
		"state":     snap.Uncertainty.State,
		"coherence": snap.Coherence.Score,
	}})

	summary := database.CycleSummary{
		CycleID:     cycleID,
		StartedAt:   started,
		MarketState: snap.Uncertainty.State,
	}

	// Portfolio-level protections run before anything may add exposure.
	if action, ok := e.guard.Check(portfolio, e.ledger, snap, previous, time.Now().UTC()); ok {
		summary.TradesClosed = e.executeEmergency(ctx, cycleID, action)
		log.Warn("Emergency action executed", "reason", action.Reason, "detail", action.Detail)

		// Only the strength-reversal exit leaves the cycle running; a
		// breached equity stop or closing session must not open anything.
		if action.Reason != risk.ReasonStrengthReversal {
			e.finishCycle(ctx, log, &summary, portfolio)
			return nil
		}
		if err := e.syncPositions(ctx); err != nil {
			return err
		}
	}

	summary.TradesClosed += e.applyClosureRules(ctx, cycleID)
	summary.Reinforcements = e.applyReinforcements(ctx, cycleID, snap)
	summary.TradesOpened = e.proposeNewTrades(ctx, cycleID, snap, portfolio)

	e.finishCycle(ctx, log, &summary, e.ledger.Snapshot(account))
	return nil
}

// analyzeStrength pulls bars for every symbol/timeframe and feeds the
// strength engine. Missing bars skip the symbol, not the cycle.
func (e *Engine) analyzeStrength(ctx context.Context) (*strength.Snapshot, error) {
	prices := make(map[strength.Timeframe]strength.PriceTable, len(strength.AllTimeframes))
	for _, tf := range strength.AllTimeframes {
		table := make(strength.PriceTable)
		for _, symbol := range e.cfg.TradingConfig.Symbols {
			bars, err := e.client.GetBars(ctx, symbol, string(tf), strength.BarCounts[tf])
			if err != nil || len(bars) < 2 {
				continue
			}
			closes := make([]float64, len(bars))
			for i, bar := range bars {
				closes[i] = bar.Close
			}
			table[symbol] = closes
		}
		if len(table) > 0 {
			prices[tf] = table
		}
	}
	return e.strengths.Analyze(prices)
}

// executeEmergency closes the targeted positions (all of them when the
// action names no symbols).
func (e *Engine) executeEmergency(ctx context.Context, cycleID string, action risk.EmergencyAction) int {
	targets := make(map[string]bool, len(action.Symbols))
	for _, s := range action.Symbols {
		targets[s] = true
	}

	closed := 0
	for _, pos := range e.ledger.Open() {
		if len(targets) > 0 && !targets[pos.Symbol] {
			continue
		}
		if err := e.dispatcher.CloseOrder(ctx, cycleID, pos.Ticket, pos.Symbol, action.Reason); err != nil {
			e.log.Warn("Emergency close failed", "ticket", pos.Ticket, "error", err.Error())
			continue
		}
		closed++
		e.bus.PublishTradeClosed(pos.Ticket, pos.Symbol, action.Reason, pos.PnL)
	}
	e.bus.PublishEmergencyExit(action.Reason, action.Detail, action.Symbols)
	return closed
}

// proposeNewTrades runs the agent pipeline when it is configured and the
// position cap leaves room. Each proposal needs both approvals before
// dispatch.
func (e *Engine) proposeNewTrades(ctx context.Context, cycleID string, snap *strength.Snapshot, portfolio ledger.PortfolioSnapshot) int {
	if e.trader == nil {
		return 0
	}
	capacity := e.cfg.TradingConfig.MaxConcurrentPositions - e.ledger.OpenCount()
	if capacity <= 0 {
		e.log.Info("Diversification limit reached, no new trades",
			"open", e.ledger.OpenCount(), "max", e.cfg.TradingConfig.MaxConcurrentPositions)
		return 0
	}

	calendar, _ := e.client.GetEvents(ctx)
	actions := e.trader.ProposeTrades(ctx, agents.MarketContext{
		Snapshot:      snap,
		Positions:     e.ledger.Open(),
		Portfolio:     portfolio,
		Calendar:      calendar,
		Symbols:       e.cfg.TradingConfig.Symbols,
		OpenCount:     e.ledger.OpenCount(),
		MaxPositions:  e.cfg.TradingConfig.MaxConcurrentPositions,
		DefaultVolume: e.cfg.TradingConfig.DefaultVolume,
	})

	opened := 0
	for _, action := range actions {
		if action.Action != agents.ActionNewTrade {
			continue
		}
		if opened >= capacity {
			break
		}
		if err := e.approve(ctx, action, portfolio); err != nil {
			e.log.Info("Trade not approved", "symbol", action.Symbol, "reason", err.Error())
			continue
		}

		volume := action.Volume
		if volume <= 0 {
			volume = e.cfg.TradingConfig.DefaultVolume
		}
		result, err := e.dispatcher.OpenOrder(ctx, cycleID, action.Symbol, action.LedgerDirection(), volume, snap, "ufo:"+cycleID)
		if err != nil {
			continue // logged by the dispatcher; reconsidered next cycle
		}
		opened++
		e.totalOpened++
		e.bus.PublishTradeOpened(result.Ticket, action.Symbol, action.Direction, volume, result.FillPrice)
	}
	return opened
}

// approve runs the risk and fund stages. A missing approver approves, so the
// engine still works with a single-agent configuration.
func (e *Engine) approve(ctx context.Context, action agents.TradeAction, portfolio ledger.PortfolioSnapshot) error {
	positions := e.ledger.Open()
	if e.riskApprover != nil {
		if err := e.riskApprover.Approve(ctx, action, positions, portfolio); err != nil {
			return err
		}
	}
	if e.fundApprover != nil {
		if err := e.fundApprover.Approve(ctx, action, positions, portfolio); err != nil {
			return err
		}
	}
	return nil
}

// finishCycle completes the summary, persists it and logs it.
func (e *Engine) finishCycle(ctx context.Context, log *logging.Logger, summary *database.CycleSummary, portfolio ledger.PortfolioSnapshot) {
	summary.FinishedAt = time.Now().UTC()
	summary.OpenPositions = portfolio.OpenPositions
	summary.Equity = portfolio.Equity
	summary.UnrealizedPnL = portfolio.UnrealizedPnL
	summary.RealizedPnL = portfolio.RealizedPnL

	log.Info("Decision cycle completed",
		"duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond).String(),
		"opened", summary.TradesOpened,
		"closed", summary.TradesClosed,
		"reinforced", summary.Reinforcements,
		"open_positions", summary.OpenPositions,
		"equity", summary.Equity,
		"unrealized", summary.UnrealizedPnL,
		"realized", summary.RealizedPnL)

	e.saveSummary(ctx, *summary)
	e.bus.Publish(events.Event{Type: events.EventCycleCompleted, Data: map[string]interface{}{
		"cycle_id": summary.CycleID,
		"opened":   summary.TradesOpened,
		"closed":   summary.TradesClosed,
	}})
}

func (e *Engine) saveSummary(ctx context.Context, summary database.CycleSummary) {
	if summary.FinishedAt.IsZero() {
		summary.FinishedAt = time.Now().UTC()
	}
	_ = e.repo.SaveCycleSummary(ctx, summary)
}
