package engine

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"ufo-trading-engine/internal/broker"
	"ufo-trading-engine/internal/ledger"
	"ufo-trading-engine/internal/pricing"
	"ufo-trading-engine/internal/strength"
)

// Dispatcher places and closes orders through the broker and keeps the
// order audit log. Every dispatched order is tagged with the cycle it came
// from.
type Dispatcher struct {
	executor broker.OrderExecutor
	opt      *pricing.Optimizer
	dryRun   bool
	audit    zerolog.Logger
}

// NewDispatcher creates a dispatcher. dryRun logs orders without sending
// them.
func NewDispatcher(executor broker.OrderExecutor, opt *pricing.Optimizer, dryRun bool) *Dispatcher {
	return &Dispatcher{
		executor: executor,
		opt:      opt,
		dryRun:   dryRun,
		audit: zerolog.New(os.Stdout).With().
			Timestamp().
			Str("component", "dispatch").
			Logger(),
	}
}

// OpenOrder opens a position, using a limit price from the optimizer when a
// fresh quote exists and falling back to market execution otherwise.
func (d *Dispatcher) OpenOrder(ctx context.Context, cycleID, symbol string, direction ledger.Direction, volume float64, snap *strength.Snapshot, comment string) (broker.OrderResult, error) {
	req := broker.OrderRequest{
		Symbol:    symbol,
		Direction: direction,
		Volume:    volume,
		Comment:   comment,
	}

	optimized, err := d.opt.Optimize(symbol, direction, snap)
	if err == nil {
		req.Price = optimized.Price
	}

	event := d.audit.Info().
		Str("cycle_id", cycleID).
		Str("symbol", symbol).
		Str("direction", string(direction)).
		Float64("volume", volume).
		Float64("limit_price", req.Price)

	if d.dryRun {
		event.Bool("dry_run", true).Msg("order suppressed")
		return broker.OrderResult{Success: true}, nil
	}

	result, err := d.executor.Open(ctx, req)
	if err != nil {
		event.Err(err).Msg("order rejected")
		return result, err
	}
	event.Int64("ticket", result.Ticket).Float64("fill_price", result.FillPrice).Msg("order filled")
	return result, nil
}

// CloseOrder closes a position by ticket, recording the reason.
func (d *Dispatcher) CloseOrder(ctx context.Context, cycleID string, ticket int64, symbol, reason string) error {
	event := d.audit.Info().
		Str("cycle_id", cycleID).
		Int64("ticket", ticket).
		Str("symbol", symbol).
		Str("reason", reason)

	if d.dryRun {
		event.Bool("dry_run", true).Msg("close suppressed")
		return nil
	}

	if err := d.executor.Close(ctx, ticket); err != nil {
		event.Err(err).Msg("close rejected")
		return err
	}
	event.Msg("position closed")
	return nil
}
