package database

import (
	"context"
	"log"
	"time"

	"ufo-trading-engine/internal/ledger"
)

// Repository persists closed trades and cycle summaries. A nil repository is
// valid and drops everything, so callers never branch on database presence.
type Repository struct {
	db *DB
}

// NewRepository creates a repository over the pool. db may be nil.
func NewRepository(db *DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// ArchiveClosedTrade satisfies ledger.Archiver. Persistence failures are
// logged, never propagated into the sync path.
func (r *Repository) ArchiveClosedTrade(trade ledger.ClosedTrade) error {
	if r == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO closed_trades
			(ticket, symbol, direction, volume, entry_price, open_time, close_time, pnl, peak_pnl, parent_ticket)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, 0))`,
		trade.Ticket, trade.Symbol, string(trade.Direction), trade.Volume,
		trade.EntryPrice, trade.OpenTime, trade.CloseTime, trade.PnL, trade.PeakPnL, trade.ParentTicket)
	if err != nil {
		log.Printf("[DATABASE] Failed to archive trade %d: %v", trade.Ticket, err)
	}
	return err
}

// CycleSummary is the persisted record of one decision cycle.
type CycleSummary struct {
	CycleID        string    `json:"cycle_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	TradesOpened   int       `json:"trades_opened"`
	TradesClosed   int       `json:"trades_closed"`
	Reinforcements int       `json:"reinforcements"`
	OpenPositions  int       `json:"open_positions"`
	Equity         float64   `json:"equity"`
	UnrealizedPnL  float64   `json:"unrealized_pnl"`
	RealizedPnL    float64   `json:"realized_pnl"`
	MarketState    string    `json:"market_state"`
	Skipped        bool      `json:"skipped"`
	SkipReason     string    `json:"skip_reason,omitempty"`
}

// SaveCycleSummary persists one cycle summary.
func (r *Repository) SaveCycleSummary(ctx context.Context, s CycleSummary) error {
	if r == nil {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO cycle_summaries
			(cycle_id, started_at, finished_at, trades_opened, trades_closed, reinforcements,
			 open_positions, equity, unrealized_pnl, realized_pnl, market_state, skipped, skip_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''))`,
		s.CycleID, s.StartedAt, s.FinishedAt, s.TradesOpened, s.TradesClosed, s.Reinforcements,
		s.OpenPositions, s.Equity, s.UnrealizedPnL, s.RealizedPnL, s.MarketState, s.Skipped, s.SkipReason)
	if err != nil {
		log.Printf("[DATABASE] Failed to save cycle summary %s: %v", s.CycleID, err)
	}
	return err
}

// RecentClosedTrades returns the most recent archived trades for the API.
func (r *Repository) RecentClosedTrades(ctx context.Context, limit int) ([]ledger.ClosedTrade, error) {
	if r == nil {
		return nil, nil
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT ticket, symbol, direction, volume, entry_price, open_time, close_time,
		       pnl, peak_pnl, COALESCE(parent_ticket, 0)
		FROM closed_trades ORDER BY close_time DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.ClosedTrade
	for rows.Next() {
		var t ledger.ClosedTrade
		var direction string
		if err := rows.Scan(&t.Ticket, &t.Symbol, &direction, &t.Volume, &t.EntryPrice,
			&t.OpenTime, &t.CloseTime, &t.PnL, &t.PeakPnL, &t.ParentTicket); err != nil {
			return nil, err
		}
		t.Direction = ledger.Direction(direction)
		out = append(out, t)
	}
	return out, rows.Err()
}
