package reinforce

import (
	"context"
	"testing"
	"time"

	"ufo-trading-engine/config"
	"ufo-trading-engine/internal/ledger"
	"ufo-trading-engine/internal/logging"
	"ufo-trading-engine/internal/pricing"
	"ufo-trading-engine/internal/strength"
)

func reinforcementConfig() config.ReinforcementConfig {
	return config.ReinforcementConfig{
		Enabled:              true,
		CooldownMinutes:      15,
		MaxPerCycle:          3,
		VolumeFraction:       0.5,
		RapidLossPerMinute:   10,
		AdversePipThreshold:  15,
		MomentumPipThreshold: 10,
		SpreadSpikeRatio:     2.5,
	}
}

func newTestEngine(cfg config.ReinforcementConfig) (*Engine, *pricing.SnapshotCache, *CooldownLedger) {
	cache := pricing.NewSnapshotCache()
	cooldowns := NewCooldownLedger(nil)
	engine := NewEngine(cfg, cache, cooldowns, logging.Default())
	return engine, cache, cooldowns
}

func supportiveSnapshot(base, quote string, diff float64) *strength.Snapshot {
	return &strength.Snapshot{Series: map[strength.Timeframe]map[string][]float64{
		strength.TimeframeM5: {base: {diff}, quote: {0}},
	}}
}

func longPosition(ticket int64, entry, pnl float64) ledger.Position {
	return ledger.Position{
		Ticket:     ticket,
		Symbol:     "EURUSD",
		Direction:  ledger.DirectionLong,
		Volume:     0.2,
		EntryPrice: entry,
		OpenTime:   time.Now().UTC().Add(-time.Hour),
		PnL:        pnl,
	}
}

func TestDetectRapidLoss(t *testing.T) {
	engine, cache, _ := newTestEngine(reinforcementConfig())
	cache.Put("EURUSD", 1.1000, 1.1001)

	current := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return current }

	// First observation only seeds the P&L baseline.
	if plans := engine.Detect([]ledger.Position{longPosition(1, 1.1000, 20)}, nil); len(plans) != 0 {
		t.Fatalf("plans on first observation: %+v", plans)
	}

	// 25 P&L lost in 2 minutes = 12.5/min, past the 10/min rate.
	current = current.Add(2 * time.Minute)
	plans := engine.Detect([]ledger.Position{longPosition(1, 1.1000, -5)}, nil)
	if len(plans) != 1 {
		t.Fatalf("got %d plans, want 1", len(plans))
	}
	if plans[0].Type != EventRapidLoss || !plans[0].Execute {
		t.Errorf("plan = %+v, want executable rapid-loss", plans[0])
	}
	if plans[0].Volume != 0.1 {
		t.Errorf("volume = %v, want half of 0.2", plans[0].Volume)
	}
}

func TestDetectCompensationNeedsSupportingStrength(t *testing.T) {
	engine, cache, _ := newTestEngine(reinforcementConfig())
	// Long from 1.1020, mid now 1.10005: ~20 pips adverse.
	cache.Put("EURUSD", 1.1000, 1.1001)
	pos := longPosition(1, 1.1020, -20)

	if plans := engine.Detect([]ledger.Position{pos}, supportiveSnapshot("USD", "EUR", 2)); len(plans) != 0 {
		t.Fatalf("compensation fired against the strength differential: %+v", plans)
	}

	plans := engine.Detect([]ledger.Position{pos}, supportiveSnapshot("EUR", "USD", 2))
	if len(plans) != 1 || plans[0].Type != EventCompensation {
		t.Fatalf("got %+v, want one compensation plan", plans)
	}
}

func TestDetectMomentum(t *testing.T) {
	engine, cache, _ := newTestEngine(reinforcementConfig())
	// Long from 1.0985, mid now 1.10005: ~15 pips in favor.
	cache.Put("EURUSD", 1.1000, 1.1001)

	plans := engine.Detect([]ledger.Position{longPosition(1, 1.0985, 15)}, supportiveSnapshot("EUR", "USD", 2))
	if len(plans) != 1 || plans[0].Type != EventMomentum {
		t.Fatalf("got %+v, want one momentum plan", plans)
	}
}

func TestDetectVolatilityIsAdvisory(t *testing.T) {
	engine, cache, _ := newTestEngine(reinforcementConfig())
	// Build a tight-spread baseline, then spike it.
	for i := 0; i < 5; i++ {
		cache.Put("EURUSD", 1.1000, 1.1001)
	}
	cache.Put("EURUSD", 1.1000, 1.1010)

	plans := engine.Detect([]ledger.Position{longPosition(1, 1.1000, 0)}, nil)
	if len(plans) != 1 || plans[0].Type != EventVolatility {
		t.Fatalf("got %+v, want one volatility plan", plans)
	}
	if plans[0].Execute {
		t.Error("volatility plan marked executable")
	}
}

func TestSelectForExecutionHonorsCapAndPriority(t *testing.T) {
	engine, _, _ := newTestEngine(reinforcementConfig())
	ctx := context.Background()

	plans := []Plan{
		{Ticket: 1, Type: EventMomentum, Priority: 2, Execute: true},
		{Ticket: 2, Type: EventRapidLoss, Priority: 4, Execute: true},
		{Ticket: 3, Type: EventVolatility, Priority: 1, Execute: false},
		{Ticket: 4, Type: EventCompensation, Priority: 3, Execute: true},
		{Ticket: 5, Type: EventMomentum, Priority: 2, Execute: true},
	}

	selected := engine.SelectForExecution(ctx, plans)
	if len(selected) != 3 {
		t.Fatalf("selected %d plans, want cap of 3", len(selected))
	}
	wantOrder := []int64{2, 4, 1}
	for i, plan := range selected {
		if plan.Ticket != wantOrder[i] {
			t.Errorf("selected[%d] = ticket %d, want %d", i, plan.Ticket, wantOrder[i])
		}
	}
}

func TestCooldownGatesExecution(t *testing.T) {
	engine, _, cooldowns := newTestEngine(reinforcementConfig())
	ctx := context.Background()

	current := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	cooldowns.now = func() time.Time { return current }

	plan := Plan{Ticket: 7, Symbol: "EURUSD", Type: EventCompensation, Priority: 3, Execute: true}
	if selected := engine.SelectForExecution(ctx, []Plan{plan}); len(selected) != 1 {
		t.Fatal("plan rejected before any cooldown exists")
	}

	engine.MarkExecuted(ctx, plan)
	if selected := engine.SelectForExecution(ctx, []Plan{plan}); len(selected) != 0 {
		t.Fatal("plan selected during active cooldown")
	}

	// Past expiry the ticket is eligible again.
	current = current.Add(16 * time.Minute)
	if selected := engine.SelectForExecution(ctx, []Plan{plan}); len(selected) != 1 {
		t.Fatal("plan still rejected after cooldown expired")
	}
}

func TestCooldownSweep(t *testing.T) {
	cooldowns := NewCooldownLedger(nil)
	current := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	cooldowns.now = func() time.Time { return current }

	cooldowns.Start(context.Background(), 1, EventMomentum, 10*time.Minute)
	cooldowns.Start(context.Background(), 2, EventMomentum, 30*time.Minute)

	current = current.Add(15 * time.Minute)
	cooldowns.Sweep()

	if err := cooldowns.Check(context.Background(), 1); err != nil {
		t.Errorf("expired cooldown still gating: %v", err)
	}
	if err := cooldowns.Check(context.Background(), 2); err != ErrCoolingDown {
		t.Errorf("active cooldown not gating: %v", err)
	}
}

func TestDetectDisabled(t *testing.T) {
	cfg := reinforcementConfig()
	cfg.Enabled = false
	engine, cache, _ := newTestEngine(cfg)
	cache.Put("EURUSD", 1.1000, 1.1010)

	if plans := engine.Detect([]ledger.Position{longPosition(1, 1.1020, -50)}, nil); plans != nil {
		t.Fatalf("disabled engine produced plans: %+v", plans)
	}
}
