package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ufo-trading-engine/config"
	"ufo-trading-engine/internal/agents"
	"ufo-trading-engine/internal/broker"
	"ufo-trading-engine/internal/database"
	"ufo-trading-engine/internal/events"
	"ufo-trading-engine/internal/ledger"
	"ufo-trading-engine/internal/logging"
	"ufo-trading-engine/internal/pricing"
	"ufo-trading-engine/internal/reinforce"
	"ufo-trading-engine/internal/risk"
	"ufo-trading-engine/internal/strength"
)

// Engine is the cycle scheduler: it interleaves the monitoring tick and the
// decision cycle on one goroutine, so no two pieces of trading logic ever
// overlap.
type Engine struct {
	cfg *config.Config
	log *logging.Logger

	client     broker.Client
	cache      *pricing.SnapshotCache
	strengths  *strength.Engine
	ledger     *ledger.Ledger
	rules      *risk.RuleEvaluator
	session    *risk.SessionCalendar
	guard      *risk.PortfolioGuard
	reinforcer *reinforce.Engine
	dispatcher *Dispatcher

	trader       *agents.Trader
	riskApprover *agents.Approver
	fundApprover *agents.Approver

	repo *database.Repository
	bus  *events.EventBus

	snapMu       sync.RWMutex
	prevSnapshot *strength.Snapshot
	lastSnapshot *strength.Snapshot

	totalOpened     int
	totalClosed     int
	totalReinforced int
	startedAt       time.Time
}

// Options carries the collaborators for New. Trader and the approvers may be
// nil, which disables new-trade proposals (pure position-management mode).
type Options struct {
	Config       *config.Config
	Log          *logging.Logger
	Client       broker.Client
	Cache        *pricing.SnapshotCache
	Repo         *database.Repository
	Bus          *events.EventBus
	Trader       *agents.Trader
	RiskApprover *agents.Approver
	FundApprover *agents.Approver
	Cooldowns    *reinforce.CooldownLedger
}

// New wires the engine together.
func New(opts Options) *Engine {
	cfg := opts.Config
	log := opts.Log.WithComponent("engine")

	lgr := ledger.New(opts.Repo)
	cache := opts.Cache
	optimizer := pricing.NewOptimizer(cache)

	return &Engine{
		cfg:          cfg,
		log:          log,
		client:       opts.Client,
		cache:        cache,
		strengths:    strength.NewEngine(cfg.TradingConfig.Currencies, cfg.StrengthConfig),
		ledger:       lgr,
		rules:        risk.NewRuleEvaluator(cfg.TradingConfig),
		session:      risk.NewSessionCalendar(cfg.SessionConfig),
		reinforcer:   reinforce.NewEngine(cfg.ReinforcementConfig, cache, opts.Cooldowns, opts.Log),
		dispatcher:   NewDispatcher(opts.Client, optimizer, cfg.TradingConfig.DryRun),
		trader:       opts.Trader,
		riskApprover: opts.RiskApprover,
		fundApprover: opts.FundApprover,
		repo:         opts.Repo,
		bus:          opts.Bus,
	}
}

// Ledger exposes the position ledger for the status API.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// LastSnapshot exposes the most recent strength snapshot for the status API.
// The API serves it from its own goroutines, so access is lock-guarded.
func (e *Engine) LastSnapshot() *strength.Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.lastSnapshot
}

// rotateSnapshots installs the cycle's new snapshot and returns the one it
// displaces, which the guard needs for reversal detection.
func (e *Engine) rotateSnapshots(snap *strength.Snapshot) *strength.Snapshot {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.prevSnapshot, e.lastSnapshot = e.lastSnapshot, snap
	return e.prevSnapshot
}

// Run drives the scheduler until ctx is cancelled. The decision cycle runs
// immediately on startup; monitoring starts one period later. A failed cycle
// backs off and the loop resumes; only startup failures are fatal, and those
// belong to the caller.
func (e *Engine) Run(ctx context.Context) error {
	account, err := e.client.GetAccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("reading account at startup: %w", err)
	}
	e.guard = risk.NewPortfolioGuard(e.cfg.TradingConfig, e.cfg.StrengthConfig, e.session, account.Equity)
	e.startedAt = time.Now().UTC()

	e.log.Info("Engine started",
		"equity", account.Equity,
		"symbols", len(e.cfg.TradingConfig.Symbols),
		"cycle_period", e.cfg.TradingConfig.CyclePeriod().String(),
		"monitoring_period", e.cfg.TradingConfig.MonitoringPeriod().String())
	e.bus.Publish(events.Event{Type: events.EventEngineStarted, Data: map[string]interface{}{
		"equity": account.Equity,
	}})

	cyclePolicy := backoff.NewConstantBackOff(time.Duration(e.cfg.TradingConfig.CycleBackoffSeconds) * time.Second)
	floor := time.Duration(e.cfg.TradingConfig.SchedulerFloorSeconds) * time.Second
	if floor <= 0 {
		floor = time.Second
	}

	now := time.Now()
	nextCycle := now // first cycle runs right away
	nextMonitor := now.Add(e.cfg.TradingConfig.MonitoringPeriod())

	for {
		now = time.Now()

		if !now.Before(nextCycle) {
			if err := e.runCycleProtected(ctx); err != nil {
				wait := cyclePolicy.NextBackOff()
				e.log.Warn("Decision cycle failed, backing off", "error", err.Error(), "backoff", wait.String())
				if !sleep(ctx, wait) {
					break
				}
			}
			nextCycle = time.Now().Add(e.cfg.TradingConfig.CyclePeriod())
			continue
		}

		if e.cfg.TradingConfig.ContinuousMonitoring && !now.Before(nextMonitor) {
			e.runMonitoringTick(ctx)
			nextMonitor = time.Now().Add(e.cfg.TradingConfig.MonitoringPeriod())
			continue
		}

		wait := nextCycle.Sub(now)
		if until := nextMonitor.Sub(now); e.cfg.TradingConfig.ContinuousMonitoring && until < wait {
			wait = until
		}
		if wait < floor {
			wait = floor
		}
		if !sleep(ctx, wait) {
			break
		}
	}

	e.finalSummary()
	e.bus.Publish(events.Event{Type: events.EventEngineStopped, Data: map[string]interface{}{}})
	return nil
}

// sleep waits for d or context cancellation, reporting false on cancel.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// runCycleProtected converts a cycle panic into an error so one bad cycle
// never kills the process.
func (e *Engine) runCycleProtected(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()
	return e.runDecisionCycle(ctx)
}

// syncPositions refreshes the ledger from the broker and publishes close
// events for archived trades.
func (e *Engine) syncPositions(ctx context.Context) error {
	positions, err := e.client.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetching positions: %w", err)
	}
	result := e.ledger.Sync(positions)
	for _, trade := range result.Archived {
		e.totalClosed++
		e.bus.PublishTradeClosed(trade.Ticket, trade.Symbol, "broker_sync", trade.PnL)
	}
	return nil
}

// refreshQuotes warms the cache for the given symbols. When the tick feed
// has no quote, the last M5 bar close stands in with an estimated spread of
// 1.5 pips, so monitoring can still reason about prices.
func (e *Engine) refreshQuotes(ctx context.Context, symbols []string) {
	for _, symbol := range symbols {
		if _, ok := e.cache.Get(symbol); ok {
			continue // stream already keeps it warm
		}
		tick, err := e.client.GetTick(ctx, symbol)
		if err == nil {
			e.cache.Put(symbol, tick.Bid, tick.Ask)
			continue
		}
		bars, barsErr := e.client.GetBars(ctx, symbol, string(strength.TimeframeM5), 2)
		if barsErr != nil || len(bars) == 0 {
			e.log.Debug("No quote available", "symbol", symbol)
			continue
		}
		mid := bars[len(bars)-1].Close
		estSpread := 1.5 * pricing.PipSize(symbol)
		e.cache.Put(symbol, mid-estSpread/2, mid+estSpread/2)
	}
}

// openSymbols returns the distinct symbols with open positions.
func (e *Engine) openSymbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, pos := range e.ledger.Open() {
		if !seen[pos.Symbol] {
			seen[pos.Symbol] = true
			out = append(out, pos.Symbol)
		}
	}
	return out
}

// applyClosureRules evaluates per-position rules and dispatches the closes.
func (e *Engine) applyClosureRules(ctx context.Context, cycleID string) int {
	decisions := e.rules.Evaluate(e.ledger.Open(), time.Now().UTC())
	closed := 0
	for _, d := range decisions {
		if err := e.dispatcher.CloseOrder(ctx, cycleID, d.Position.Ticket, d.Position.Symbol, d.Reason); err != nil {
			e.log.Warn("Close failed", "ticket", d.Position.Ticket, "reason", d.Reason, "error", err.Error())
			continue
		}
		closed++
		e.bus.PublishTradeClosed(d.Position.Ticket, d.Position.Symbol, d.Reason, d.Position.PnL)
	}
	return closed
}

// applyReinforcements runs detection, cooldown gating and execution.
func (e *Engine) applyReinforcements(ctx context.Context, cycleID string, snap *strength.Snapshot) int {
	plans := e.reinforcer.Detect(e.ledger.Open(), snap)
	executed := 0
	for _, plan := range e.reinforcer.SelectForExecution(ctx, plans) {
		comment := fmt.Sprintf("reinforce:%d", plan.Ticket)
		result, err := e.dispatcher.OpenOrder(ctx, cycleID, plan.Symbol, plan.Direction, plan.Volume, snap, comment)
		if err != nil {
			e.log.Warn("Reinforcement order failed", "ticket", plan.Ticket, "error", err.Error())
			continue
		}
		e.reinforcer.MarkExecuted(ctx, plan)
		if result.Ticket != 0 {
			e.ledger.LinkParent(result.Ticket, plan.Ticket)
		}
		executed++
		e.totalReinforced++
		e.bus.PublishReinforcement(plan.Ticket, result.Ticket, plan.Symbol, string(plan.Type), plan.Volume)
	}
	e.reinforcer.Sweep()
	return executed
}

// finalSummary logs lifetime totals on shutdown.
func (e *Engine) finalSummary() {
	closed := e.ledger.Closed()
	wins := 0
	realized := 0.0
	for _, trade := range closed {
		realized += trade.PnL
		if trade.PnL > 0 {
			wins++
		}
	}
	winRate := 0.0
	if len(closed) > 0 {
		winRate = float64(wins) / float64(len(closed)) * 100
	}

	e.log.Info("Engine stopped",
		"uptime", time.Since(e.startedAt).Round(time.Second).String(),
		"trades_opened", e.totalOpened,
		"trades_closed", e.totalClosed,
		"reinforcements", e.totalReinforced,
		"realized_pnl", realized,
		"win_rate_pct", winRate,
		"still_open", e.ledger.OpenCount())
}
