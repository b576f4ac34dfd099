package reinforce

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ufo-trading-engine/config"
	"ufo-trading-engine/internal/ledger"
	"ufo-trading-engine/internal/logging"
	"ufo-trading-engine/internal/pricing"
	"ufo-trading-engine/internal/strength"
)

// EventType classifies the market event behind a reinforcement plan.
type EventType string

const (
	EventRapidLoss    EventType = "rapid-loss"
	EventCompensation EventType = "compensation"
	EventMomentum     EventType = "momentum"
	EventVolatility   EventType = "volatility"
)

// Plan priorities, highest first when the per-cycle cap forces a choice.
var eventPriority = map[EventType]int{
	EventRapidLoss:    4,
	EventCompensation: 3,
	EventMomentum:     2,
	EventVolatility:   1,
}

// Plan is a proposed supplementary trade for one open position. Execute false
// means the event is noted but no order should be placed.
type Plan struct {
	Ticket    int64            `json:"ticket"`
	Symbol    string           `json:"symbol"`
	Direction ledger.Direction `json:"direction"`
	Volume    float64          `json:"volume"`
	Type      EventType        `json:"type"`
	Reason    string           `json:"reason"`
	Priority  int              `json:"priority"`
	Execute   bool             `json:"execute"`
}

// pnlObservation is the previous tick's view of one ticket, used for the
// rapid-loss rate calculation.
type pnlObservation struct {
	pnl float64
	at  time.Time
}

// Engine detects market events on open positions and turns them into
// reinforcement plans, gated by the cooldown ledger and the per-cycle cap.
type Engine struct {
	cfg       config.ReinforcementConfig
	cache     *pricing.SnapshotCache
	cooldowns *CooldownLedger
	log       *logging.Logger

	mu       sync.Mutex
	lastSeen map[int64]pnlObservation

	now func() time.Time
}

// NewEngine creates a reinforcement engine.
func NewEngine(cfg config.ReinforcementConfig, cache *pricing.SnapshotCache, cooldowns *CooldownLedger, log *logging.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		cache:     cache,
		cooldowns: cooldowns,
		log:       log.WithComponent("reinforce"),
		lastSeen:  make(map[int64]pnlObservation),
		now:       time.Now,
	}
}

// Detect inspects every open position against the current quote cache and
// strength snapshot and returns one plan per detected event, at most one per
// position (highest-priority event wins). It also refreshes the per-ticket
// P&L observations used by the rapid-loss detector.
func (e *Engine) Detect(positions []ledger.Position, snap *strength.Snapshot) []Plan {
	if !e.cfg.Enabled {
		return nil
	}
	now := e.now().UTC()

	var plans []Plan
	for _, pos := range positions {
		if plan, ok := e.detectOne(pos, snap, now); ok {
			plans = append(plans, plan)
		}
	}

	e.rememberPnL(positions, now)
	return plans
}

func (e *Engine) detectOne(pos ledger.Position, snap *strength.Snapshot, now time.Time) (Plan, bool) {
	candidates := []func(ledger.Position, *strength.Snapshot, time.Time) (Plan, bool){
		e.detectRapidLoss,
		e.detectCompensation,
		e.detectMomentum,
		e.detectVolatility,
	}
	best := Plan{Priority: -1}
	for _, detect := range candidates {
		if plan, ok := detect(pos, snap, now); ok && plan.Priority > best.Priority {
			best = plan
		}
	}
	return best, best.Priority >= 0
}

// detectRapidLoss fires when P&L fell faster than the configured rate since
// the previous observation of the same ticket.
func (e *Engine) detectRapidLoss(pos ledger.Position, _ *strength.Snapshot, now time.Time) (Plan, bool) {
	e.mu.Lock()
	prev, ok := e.lastSeen[pos.Ticket]
	e.mu.Unlock()
	if !ok {
		return Plan{}, false
	}
	minutes := now.Sub(prev.at).Minutes()
	if minutes <= 0 {
		return Plan{}, false
	}
	lossRate := (prev.pnl - pos.PnL) / minutes
	if lossRate < e.cfg.RapidLossPerMinute {
		return Plan{}, false
	}
	return e.plan(pos, EventRapidLoss,
		fmt.Sprintf("P&L falling %.1f/min over %.1f min", lossRate, minutes), true), true
}

// detectCompensation fires on an adverse price move past the pip threshold
// while the strength differential still supports the original direction.
func (e *Engine) detectCompensation(pos ledger.Position, snap *strength.Snapshot, _ time.Time) (Plan, bool) {
	pips, ok := e.pipsFromEntry(pos)
	if !ok {
		return Plan{}, false
	}
	if pips > -e.cfg.AdversePipThreshold {
		return Plan{}, false
	}
	if !strengthSupports(pos, snap) {
		return Plan{}, false
	}
	return e.plan(pos, EventCompensation,
		fmt.Sprintf("%.1f pips adverse with strength still favorable", -pips), true), true
}

// detectMomentum fires on a favorable move past the pip threshold backed by
// a supporting strength differential.
func (e *Engine) detectMomentum(pos ledger.Position, snap *strength.Snapshot, _ time.Time) (Plan, bool) {
	pips, ok := e.pipsFromEntry(pos)
	if !ok {
		return Plan{}, false
	}
	if pips < e.cfg.MomentumPipThreshold {
		return Plan{}, false
	}
	if !strengthSupports(pos, snap) {
		return Plan{}, false
	}
	return e.plan(pos, EventMomentum,
		fmt.Sprintf("%.1f pips in favor with supporting strength", pips), true), true
}

// detectVolatility fires when the live spread blows past its rolling
// baseline. Volatility plans are advisory: no order is placed.
func (e *Engine) detectVolatility(pos ledger.Position, _ *strength.Snapshot, _ time.Time) (Plan, bool) {
	quote, ok := e.cache.Get(pos.Symbol)
	if !ok {
		return Plan{}, false
	}
	baseline := e.cache.SpreadBaseline(pos.Symbol)
	if baseline <= 0 || quote.Spread < baseline*e.cfg.SpreadSpikeRatio {
		return Plan{}, false
	}
	plan := e.plan(pos, EventVolatility,
		fmt.Sprintf("spread %.5f vs baseline %.5f", quote.Spread, baseline), false)
	return plan, true
}

func (e *Engine) plan(pos ledger.Position, eventType EventType, reason string, execute bool) Plan {
	return Plan{
		Ticket:    pos.Ticket,
		Symbol:    pos.Symbol,
		Direction: pos.Direction,
		Volume:    pos.Volume * e.cfg.VolumeFraction,
		Type:      eventType,
		Reason:    reason,
		Priority:  eventPriority[eventType],
		Execute:   execute,
	}
}

// pipsFromEntry measures the current mid's distance from the entry price in
// pips, signed positive when the move favors the position.
func (e *Engine) pipsFromEntry(pos ledger.Position) (float64, bool) {
	quote, ok := e.cache.Get(pos.Symbol)
	if !ok || pos.EntryPrice == 0 {
		return 0, false
	}
	move := (quote.Mid() - pos.EntryPrice) / pricing.PipSize(pos.Symbol)
	if pos.Direction == ledger.DirectionShort {
		move = -move
	}
	return move, true
}

// strengthSupports reports whether the base-minus-quote strength
// differential points the same way as the position.
func strengthSupports(pos ledger.Position, snap *strength.Snapshot) bool {
	if snap == nil {
		return false
	}
	base, quote, ok := strength.SplitPair(pos.Symbol)
	if !ok {
		return false
	}
	baseVal, okB := snap.Current(strength.TimeframeM5, base)
	quoteVal, okQ := snap.Current(strength.TimeframeM5, quote)
	if !okB || !okQ {
		return false
	}
	diff := baseVal - quoteVal
	if pos.Direction == ledger.DirectionShort {
		diff = -diff
	}
	return diff > 0
}

func (e *Engine) rememberPnL(positions []ledger.Position, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[int64]bool, len(positions))
	for _, pos := range positions {
		seen[pos.Ticket] = true
		e.lastSeen[pos.Ticket] = pnlObservation{pnl: pos.PnL, at: now}
	}
	for ticket := range e.lastSeen {
		if !seen[ticket] {
			delete(e.lastSeen, ticket)
		}
	}
}

// SelectForExecution filters plans through the cooldown ledger and the
// per-cycle cap, returning the executable subset in descending priority
// order. Cooled-down and advisory plans are skipped, not queued.
func (e *Engine) SelectForExecution(ctx context.Context, plans []Plan) []Plan {
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].Priority > plans[j].Priority })

	var selected []Plan
	for _, plan := range plans {
		if !plan.Execute {
			continue
		}
		if len(selected) >= e.cfg.MaxPerCycle {
			break
		}
		if err := e.cooldowns.Check(ctx, plan.Ticket); err != nil {
			e.log.Debug("Reinforcement skipped", "ticket", plan.Ticket, "reason", err.Error())
			continue
		}
		selected = append(selected, plan)
	}
	return selected
}

// Sweep drops expired cooldown records.
func (e *Engine) Sweep() {
	e.cooldowns.Sweep()
}

// MarkExecuted records the cooldown for a dispatched plan.
func (e *Engine) MarkExecuted(ctx context.Context, plan Plan) {
	e.cooldowns.Start(ctx, plan.Ticket, plan.Type, e.cfg.Cooldown())
	e.log.Info("Reinforcement executed",
		"ticket", plan.Ticket, "symbol", plan.Symbol, "type", string(plan.Type), "volume", plan.Volume)
}
