package engine

import (
	"context"
	"time"
)

// runMonitoringTick is the high-frequency pass between decision cycles: it
// refreshes the ledger and quotes, applies the per-position closure rules
// and runs the reinforcement detector. No new exposure beyond reinforcement
// ever originates here.
func (e *Engine) runMonitoringTick(ctx context.Context) {
	if !e.cfg.TradingConfig.ContinuousMonitoring {
		return
	}
	started := time.Now()

	if err := e.syncPositions(ctx); err != nil {
		e.log.Warn("Monitoring sync failed", "error", err.Error())
		return
	}
	open := e.ledger.Open()
	if len(open) == 0 {
		return
	}

	e.refreshQuotes(ctx, e.openSymbols())

	closed := e.applyClosureRules(ctx, "monitor")
	reinforced := e.applyReinforcements(ctx, "monitor", e.LastSnapshot())

	if closed > 0 || reinforced > 0 {
		e.log.Info("Monitoring tick acted",
			"closed", closed,
			"reinforced", reinforced,
			"open_positions", e.ledger.OpenCount(),
			"duration", time.Since(started).Round(time.Millisecond).String())
	}
}
