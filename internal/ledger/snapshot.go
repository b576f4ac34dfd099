package ledger

import "time"

// PortfolioSnapshot is a point-in-time view of the portfolio for risk checks
// and reporting. RealizedPnL is the sum of archived trade results since
// startup, not a balance delta, so deposits and swaps never pollute it.
type PortfolioSnapshot struct {
	Balance       float64   `json:"balance"`
	Equity        float64   `json:"equity"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
	OpenPositions int       `json:"open_positions"`
	ClosedTrades  int       `json:"closed_trades"`
	Timestamp     time.Time `json:"timestamp"`
}

// AccountInfo is the broker-reported account state used to build snapshots.
type AccountInfo struct {
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
	Margin   float64 `json:"margin"`
	Currency string  `json:"currency"`
}

// Snapshot builds a portfolio snapshot from the current ledger state and the
// broker's account figures.
func (l *Ledger) Snapshot(account AccountInfo) PortfolioSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := PortfolioSnapshot{
		Balance:       account.Balance,
		Equity:        account.Equity,
		OpenPositions: len(l.positions),
		ClosedTrades:  len(l.closed),
		Timestamp:     time.Now().UTC(),
	}
	for _, pos := range l.positions {
		snap.UnrealizedPnL += pos.PnL
	}
	for _, trade := range l.closed {
		snap.RealizedPnL += trade.PnL
	}
	return snap
}
