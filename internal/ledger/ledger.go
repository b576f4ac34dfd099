package ledger

import (
	"log"
	"sync"
	"time"
)

// Direction of an open position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Opposite returns the reversed direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Position is one open trade as tracked by the ledger. PeakPnL only ever
// increases for a given ticket.
type Position struct {
	Ticket       int64     `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	Volume       float64   `json:"volume"`
	EntryPrice   float64   `json:"entry_price"`
	OpenTime     time.Time `json:"open_time"`
	PnL          float64   `json:"pnl"`
	PeakPnL      float64   `json:"peak_pnl"`
	ParentTicket int64     `json:"parent_ticket,omitempty"`
}

// Age returns how long the position has been open.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.OpenTime)
}

// ClosedTrade is the archival record of a position that left the broker.
// PnL is the last value observed before the ticket disappeared.
type ClosedTrade struct {
	Ticket       int64     `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	Volume       float64   `json:"volume"`
	EntryPrice   float64   `json:"entry_price"`
	OpenTime     time.Time `json:"open_time"`
	CloseTime    time.Time `json:"close_time"`
	PnL          float64   `json:"pnl"`
	PeakPnL      float64   `json:"peak_pnl"`
	ParentTicket int64     `json:"parent_ticket,omitempty"`
}

// SyncResult summarizes one reconciliation pass against the broker.
type SyncResult struct {
	Inserted []Position
	Updated  int
	Archived []ClosedTrade
}

// Archiver receives closed trades for durable storage. Implementations must
// tolerate being called with the same trade at most once per ticket.
type Archiver interface {
	ArchiveClosedTrade(trade ClosedTrade) error
}

// Ledger is the in-memory source of truth for open positions. It is rebuilt
// from the broker on every sync; state does not survive a restart, so peak
// P&L history starts over from the live values after one.
type Ledger struct {
	mu        sync.RWMutex
	positions map[int64]*Position
	closed    []ClosedTrade
	parents   map[int64]int64 // ticket -> originating ticket, set before the sync that inserts it
	archiver  Archiver
}

// New creates an empty ledger. archiver may be nil.
func New(archiver Archiver) *Ledger {
	return &Ledger{
		positions: make(map[int64]*Position),
		parents:   make(map[int64]int64),
		archiver:  archiver,
	}
}

// LinkParent records that a ticket was opened as reinforcement of another.
// The link is applied immediately when the ticket is already tracked, or on
// the sync that first reports it.
func (l *Ledger) LinkParent(ticket, parent int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos, ok := l.positions[ticket]; ok {
		pos.ParentTicket = parent
		return
	}
	l.parents[ticket] = parent
}

// Sync reconciles the ledger against the broker's current open positions.
// New tickets are inserted with peak P&L seeded from the current P&L,
// existing tickets get their P&L refreshed and peak ratcheted up, and tickets
// no longer reported are archived exactly once with their last known P&L as
// the realized result.
func (l *Ledger) Sync(live []Position) SyncResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	seen := make(map[int64]bool, len(live))
	var result SyncResult

	for _, p := range live {
		seen[p.Ticket] = true
		existing, ok := l.positions[p.Ticket]
		if !ok {
			inserted := p
			inserted.PeakPnL = p.PnL
			if parent, linked := l.parents[p.Ticket]; linked {
				inserted.ParentTicket = parent
				delete(l.parents, p.Ticket)
			}
			l.positions[p.Ticket] = &inserted
			result.Inserted = append(result.Inserted, inserted)
			continue
		}

		existing.PnL = p.PnL
		existing.Volume = p.Volume
		if p.PnL > existing.PeakPnL {
			existing.PeakPnL = p.PnL
		}
		result.Updated++
	}

	for ticket, pos := range l.positions {
		if seen[ticket] {
			continue
		}
		trade := ClosedTrade{
			Ticket:       pos.Ticket,
			Symbol:       pos.Symbol,
			Direction:    pos.Direction,
			Volume:       pos.Volume,
			EntryPrice:   pos.EntryPrice,
			OpenTime:     pos.OpenTime,
			CloseTime:    now,
			PnL:          pos.PnL,
			PeakPnL:      pos.PeakPnL,
			ParentTicket: pos.ParentTicket,
		}
		delete(l.positions, ticket)
		l.closed = append(l.closed, trade)
		result.Archived = append(result.Archived, trade)

		if l.archiver != nil {
			if err := l.archiver.ArchiveClosedTrade(trade); err != nil {
				log.Printf("[LEDGER] Failed to archive closed trade %d: %v", ticket, err)
			}
		}
	}

	return result
}

// Get returns a copy of the tracked position for a ticket.
func (l *Ledger) Get(ticket int64) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[ticket]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Open returns copies of all tracked open positions.
func (l *Ledger) Open() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	return out
}

// OpenBySymbol returns open positions for one symbol.
func (l *Ledger) OpenBySymbol(symbol string) []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Position
	for _, pos := range l.positions {
		if pos.Symbol == symbol {
			out = append(out, *pos)
		}
	}
	return out
}

// OpenCount returns the number of tracked open positions.
func (l *Ledger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// Closed returns copies of all trades archived since startup.
func (l *Ledger) Closed() []ClosedTrade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ClosedTrade, len(l.closed))
	copy(out, l.closed)
	return out
}

// SymbolsContaining returns the distinct symbols of open positions whose pair
// includes any of the given currency codes.
func (l *Ledger) SymbolsContaining(currencies map[string]bool, split func(string) (string, string, bool)) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, pos := range l.positions {
		base, quote, ok := split(pos.Symbol)
		if !ok {
			continue
		}
		if (currencies[base] || currencies[quote]) && !seen[pos.Symbol] {
			seen[pos.Symbol] = true
			out = append(out, pos.Symbol)
		}
	}
	return out
}
