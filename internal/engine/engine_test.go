package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"ufo-trading-engine/config"
	"ufo-trading-engine/internal/broker"
	"ufo-trading-engine/internal/events"
	"ufo-trading-engine/internal/ledger"
	"ufo-trading-engine/internal/logging"
	"ufo-trading-engine/internal/pricing"
	"ufo-trading-engine/internal/reinforce"
	"ufo-trading-engine/internal/risk"
	"ufo-trading-engine/internal/strength"
)

func testEngineConfig() *config.Config {
	return &config.Config{
		TradingConfig: config.TradingConfig{
			Symbols:                []string{"EURUSD", "GBPUSD", "USDJPY"},
			Currencies:             []string{"EUR", "USD", "GBP", "JPY"},
			CyclePeriodMinutes:     30,
			MonitoringMinutes:      5,
			MaxConcurrentPositions: 18,
			DefaultVolume:          0.1,
			ProfitTarget:           75,
			StopLoss:               -50,
			MaxPositionHours:       4,
			EnableTrailingStop:     true,
			TrailingStopTrigger:    30,
			TrailingStopDistance:   15,
			CycleBackoffSeconds:    60,
			SchedulerFloorSeconds:  1,
		},
		SessionConfig: config.SessionConfig{OpenHourUTC: 8, CloseHourUTC: 20, LiquidateMinsLeft: 30},
		ReinforcementConfig: config.ReinforcementConfig{
			Enabled:              true,
			CooldownMinutes:      15,
			MaxPerCycle:          3,
			VolumeFraction:       0.5,
			RapidLossPerMinute:   10,
			AdversePipThreshold:  15,
			MomentumPipThreshold: 10,
			SpreadSpikeRatio:     2.5,
		},
		StrengthConfig: config.StrengthConfig{
			OscillationWindow:    20,
			OscillationReversals: 4,
			OscillationAmplitude: 0.5,
			ReversalThreshold:    2.0,
			ReversalLookback:     5,
			MinExitSignals:       3,
		},
	}
}

func newTestEngine(t *testing.T, client broker.Client) *Engine {
	t.Helper()
	cfg := testEngineConfig()
	e := New(Options{
		Config:    cfg,
		Log:       logging.Default(),
		Client:    client,
		Cache:     pricing.NewSnapshotCache(),
		Bus:       events.NewEventBus(),
		Cooldowns: reinforce.NewCooldownLedger(nil),
	})
	e.guard = risk.NewPortfolioGuard(cfg.TradingConfig, cfg.StrengthConfig,
		risk.NewSessionCalendar(cfg.SessionConfig), 10000)
	return e
}

func TestAnalyzeStrengthFromMockBars(t *testing.T) {
	e := newTestEngine(t, broker.NewMockClient(10000))

	snap, err := e.analyzeStrength(context.Background())
	if err != nil {
		t.Fatalf("analyzeStrength: %v", err)
	}
	for _, currency := range []string{"EUR", "USD", "GBP", "JPY"} {
		found := false
		for tf := range snap.Series {
			if _, ok := snap.Current(tf, currency); ok {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no strength reading for %s on any timeframe", currency)
		}
	}
}

// tickless fails every tick request so the bar-close fallback kicks in.
type tickless struct {
	*broker.MockClient
}

func (c tickless) GetTick(ctx context.Context, symbol string) (broker.Tick, error) {
	return broker.Tick{}, errors.New("tick feed down")
}

func TestRefreshQuotesFallsBackToBarClose(t *testing.T) {
	e := newTestEngine(t, tickless{broker.NewMockClient(10000)})

	e.refreshQuotes(context.Background(), []string{"EURUSD"})

	quote, ok := e.cache.Get("EURUSD")
	if !ok {
		t.Fatal("no quote cached after fallback")
	}
	if quote.Spread <= 0 {
		t.Errorf("fallback spread = %v, want positive estimate", quote.Spread)
	}
	wantSpread := 1.5 * pricing.PipSize("EURUSD")
	if diff := quote.Spread - wantSpread; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("fallback spread = %v, want %v", quote.Spread, wantSpread)
	}
}

func TestExecuteEmergencyTargetsOnlyNamedSymbols(t *testing.T) {
	ctx := context.Background()
	mock := broker.NewMockClient(10000)
	e := newTestEngine(t, mock)

	for _, symbol := range []string{"EURUSD", "GBPUSD", "USDJPY"} {
		if _, err := mock.Open(ctx, broker.OrderRequest{Symbol: symbol, Direction: ledger.DirectionLong, Volume: 0.1}); err != nil {
			t.Fatalf("seeding %s: %v", symbol, err)
		}
	}
	if err := e.syncPositions(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	closed := e.executeEmergency(ctx, "test-cycle", risk.EmergencyAction{
		Reason:  risk.ReasonStrengthReversal,
		Symbols: []string{"EURUSD", "USDJPY"},
	})
	if closed != 2 {
		t.Fatalf("closed %d positions, want 2", closed)
	}

	remaining, _ := mock.GetPositions(ctx)
	if len(remaining) != 1 || remaining[0].Symbol != "GBPUSD" {
		t.Errorf("remaining = %+v, want only GBPUSD", remaining)
	}
}

func TestExecuteEmergencyClosesEverythingWithoutTargets(t *testing.T) {
	ctx := context.Background()
	mock := broker.NewMockClient(10000)
	e := newTestEngine(t, mock)

	for _, symbol := range []string{"EURUSD", "GBPUSD"} {
		mock.Open(ctx, broker.OrderRequest{Symbol: symbol, Direction: ledger.DirectionLong, Volume: 0.1})
	}
	e.syncPositions(ctx)

	closed := e.executeEmergency(ctx, "test-cycle", risk.EmergencyAction{Reason: risk.ReasonEquityStop})
	if closed != 2 {
		t.Fatalf("closed %d positions, want all 2", closed)
	}
	remaining, _ := mock.GetPositions(ctx)
	if len(remaining) != 0 {
		t.Errorf("%d positions survived an equity stop", len(remaining))
	}
}

func TestSyncPositionsCountsArchivedTrades(t *testing.T) {
	ctx := context.Background()
	mock := broker.NewMockClient(10000)
	e := newTestEngine(t, mock)

	result, _ := mock.Open(ctx, broker.OrderRequest{Symbol: "EURUSD", Direction: ledger.DirectionLong, Volume: 0.1})
	e.syncPositions(ctx)
	if e.ledger.OpenCount() != 1 {
		t.Fatalf("open count = %d, want 1", e.ledger.OpenCount())
	}

	mock.Close(ctx, result.Ticket)
	e.syncPositions(ctx)
	if e.ledger.OpenCount() != 0 {
		t.Errorf("open count = %d after broker close, want 0", e.ledger.OpenCount())
	}
	if e.totalClosed != 1 {
		t.Errorf("totalClosed = %d, want 1", e.totalClosed)
	}

	// The archive holds the round trip exactly once.
	if closed := e.ledger.Closed(); len(closed) != 1 || closed[0].Ticket != result.Ticket {
		t.Errorf("closed archive = %+v, want one entry for ticket %d", closed, result.Ticket)
	}
}

func TestMonitoringTickGatedByConfig(t *testing.T) {
	ctx := context.Background()
	mock := broker.NewMockClient(10000)
	e := newTestEngine(t, mock)

	if _, err := mock.Open(ctx, broker.OrderRequest{Symbol: "EURUSD", Direction: ledger.DirectionLong, Volume: 0.1}); err != nil {
		t.Fatalf("seeding position: %v", err)
	}

	e.cfg.TradingConfig.ContinuousMonitoring = false
	e.runMonitoringTick(ctx)
	if got := len(e.ledger.Open()); got != 0 {
		t.Fatalf("disabled tick synced %d positions, want 0", got)
	}

	e.cfg.TradingConfig.ContinuousMonitoring = true
	e.runMonitoringTick(ctx)
	if got := len(e.ledger.Open()); got != 1 {
		t.Fatalf("enabled tick synced %d positions, want 1", got)
	}
}

func TestSnapshotRotationSafeUnderConcurrentReads(t *testing.T) {
	e := newTestEngine(t, broker.NewMockClient(10000))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			_ = e.LastSnapshot()
		}
	}()
	for i := 0; i < 1000; i++ {
		e.rotateSnapshots(&strength.Snapshot{GeneratedAt: time.Now()})
	}
	<-done

	if e.LastSnapshot() == nil {
		t.Fatal("expected a snapshot after rotation")
	}
}

func TestRotateSnapshotsReturnsDisplaced(t *testing.T) {
	e := newTestEngine(t, broker.NewMockClient(10000))

	first := &strength.Snapshot{GeneratedAt: time.Now()}
	if prev := e.rotateSnapshots(first); prev != nil {
		t.Fatalf("expected nil previous on first rotation, got %v", prev)
	}
	second := &strength.Snapshot{GeneratedAt: time.Now()}
	if prev := e.rotateSnapshots(second); prev != first {
		t.Fatal("expected first snapshot back on second rotation")
	}
	if e.LastSnapshot() != second {
		t.Fatal("expected latest snapshot to be the second")
	}
}

func TestSleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleep(ctx, time.Minute) {
		t.Fatal("sleep returned true on a cancelled context")
	}
}
