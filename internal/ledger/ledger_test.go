package ledger

import (
	"testing"
	"time"
)

func livePosition(ticket int64, symbol string, pnl float64) Position {
	return Position{
		Ticket:     ticket,
		Symbol:     symbol,
		Direction:  DirectionLong,
		Volume:     0.1,
		EntryPrice: 1.1000,
		OpenTime:   time.Now().UTC().Add(-time.Hour),
		PnL:        pnl,
	}
}

func TestSyncInsertsNewTickets(t *testing.T) {
	l := New(nil)

	result := l.Sync([]Position{
		livePosition(1, "EURUSD", 12.5),
		livePosition(2, "GBPJPY", -4.0),
	})

	if len(result.Inserted) != 2 || result.Updated != 0 || len(result.Archived) != 0 {
		t.Fatalf("unexpected sync result: %+v", result)
	}
	pos, ok := l.Get(1)
	if !ok {
		t.Fatal("ticket 1 not tracked after sync")
	}
	if pos.PeakPnL != 12.5 {
		t.Errorf("peak seeded to %v, want current P&L 12.5", pos.PeakPnL)
	}
	neg, _ := l.Get(2)
	if neg.PeakPnL != -4.0 {
		t.Errorf("peak for losing ticket = %v, want -4.0", neg.PeakPnL)
	}
}

func TestSyncPeakIsMonotonic(t *testing.T) {
	l := New(nil)
	l.Sync([]Position{livePosition(7, "EURUSD", 10)})

	steps := []struct {
		pnl  float64
		peak float64
	}{
		{25, 25},
		{18, 25}, // retreat must not lower the peak
		{40, 40},
		{-5, 40},
	}
	for _, step := range steps {
		l.Sync([]Position{livePosition(7, "EURUSD", step.pnl)})
		pos, _ := l.Get(7)
		if pos.PnL != step.pnl {
			t.Errorf("after sync pnl = %v, want %v", pos.PnL, step.pnl)
		}
		if pos.PeakPnL != step.peak {
			t.Errorf("after pnl %v peak = %v, want %v", step.pnl, pos.PeakPnL, step.peak)
		}
	}
}

func TestSyncArchivesMissingTickets(t *testing.T) {
	l := New(nil)
	l.Sync([]Position{
		livePosition(1, "EURUSD", 10),
		livePosition(2, "USDJPY", -3),
	})
	l.Sync([]Position{livePosition(1, "EURUSD", 55)})

	result := l.Sync([]Position{livePosition(1, "EURUSD", 60)})
	if len(result.Archived) != 0 {
		t.Fatalf("ticket archived while still live: %+v", result.Archived)
	}

	closed := l.Closed()
	if len(closed) != 1 {
		t.Fatalf("got %d closed trades, want 1", len(closed))
	}
	if closed[0].Ticket != 2 {
		t.Errorf("archived ticket = %d, want 2", closed[0].Ticket)
	}
	if closed[0].PnL != -3 {
		t.Errorf("realized P&L = %v, want last observed -3", closed[0].PnL)
	}
	if l.OpenCount() != 1 {
		t.Errorf("open count = %d, want 1", l.OpenCount())
	}
}

type recordingArchiver struct {
	trades []ClosedTrade
}

func (r *recordingArchiver) ArchiveClosedTrade(trade ClosedTrade) error {
	r.trades = append(r.trades, trade)
	return nil
}

func TestSyncNotifiesArchiverOnce(t *testing.T) {
	archiver := &recordingArchiver{}
	l := New(archiver)

	l.Sync([]Position{livePosition(9, "AUDUSD", 5)})
	l.Sync(nil)
	l.Sync(nil)

	if len(archiver.trades) != 1 {
		t.Fatalf("archiver called %d times, want 1", len(archiver.trades))
	}
	if archiver.trades[0].Ticket != 9 {
		t.Errorf("archived ticket = %d, want 9", archiver.trades[0].Ticket)
	}
}

func TestSnapshotRealizedIsClosedTradeSum(t *testing.T) {
	l := New(nil)
	l.Sync([]Position{
		livePosition(1, "EURUSD", 20),
		livePosition(2, "USDJPY", -8),
		livePosition(3, "GBPUSD", 3),
	})
	// tickets 1 and 2 close; 3 stays open
	l.Sync([]Position{livePosition(3, "GBPUSD", 7)})

	snap := l.Snapshot(AccountInfo{Balance: 10000, Equity: 10007})
	if snap.RealizedPnL != 12 {
		t.Errorf("realized = %v, want 20 + (-8) = 12", snap.RealizedPnL)
	}
	if snap.UnrealizedPnL != 7 {
		t.Errorf("unrealized = %v, want 7", snap.UnrealizedPnL)
	}
	if snap.OpenPositions != 1 || snap.ClosedTrades != 2 {
		t.Errorf("counts = %d open / %d closed, want 1 / 2", snap.OpenPositions, snap.ClosedTrades)
	}
	if snap.Balance != 10000 || snap.Equity != 10007 {
		t.Errorf("account figures not carried: %+v", snap)
	}
}

func TestSymbolsContaining(t *testing.T) {
	split := func(symbol string) (string, string, bool) {
		if len(symbol) < 6 {
			return "", "", false
		}
		return symbol[:3], symbol[3:6], true
	}

	l := New(nil)
	l.Sync([]Position{
		livePosition(1, "EURUSD", 0),
		livePosition(2, "USDJPY", 0),
		livePosition(3, "GBPCHF", 0),
	})

	got := l.SymbolsContaining(map[string]bool{"JPY": true, "EUR": true}, split)
	want := map[string]bool{"EURUSD": true, "USDJPY": true}
	if len(got) != len(want) {
		t.Fatalf("got symbols %v, want %v", got, want)
	}
	for _, s := range got {
		if !want[s] {
			t.Errorf("unexpected symbol %s", s)
		}
	}
}

func TestLinkParentAppliedOnInsert(t *testing.T) {
	l := New(nil)
	l.LinkParent(42, 7)

	l.Sync([]Position{livePosition(42, "EURUSD", 0)})
	pos, _ := l.Get(42)
	if pos.ParentTicket != 7 {
		t.Errorf("parent = %d, want 7", pos.ParentTicket)
	}

	// Linking an already-tracked ticket applies immediately.
	l.Sync([]Position{livePosition(42, "EURUSD", 0), livePosition(43, "EURUSD", 0)})
	l.LinkParent(43, 42)
	pos, _ = l.Get(43)
	if pos.ParentTicket != 42 {
		t.Errorf("parent = %d, want 42", pos.ParentTicket)
	}
}

func TestDirectionOpposite(t *testing.T) {
	if DirectionLong.Opposite() != DirectionShort || DirectionShort.Opposite() != DirectionLong {
		t.Error("Opposite does not invert direction")
	}
}
