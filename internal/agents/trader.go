package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ufo-trading-engine/internal/broker"
	"ufo-trading-engine/internal/ledger"
	"ufo-trading-engine/internal/logging"
	"ufo-trading-engine/internal/strength"
)

// MarketContext is everything the trader agent sees for one decision cycle.
type MarketContext struct {
	Snapshot      *strength.Snapshot
	Positions     []ledger.Position
	Portfolio     ledger.PortfolioSnapshot
	Calendar      []broker.CalendarEvent
	Symbols       []string
	OpenCount     int
	MaxPositions  int
	DefaultVolume float64
}

const traderSystemPrompt = `You are a currency portfolio decision agent. You receive per-currency
strength readings, market state metrics, and the current open positions.
Propose trades only when the strength differential clearly supports them.
Respond with a JSON array only, no prose. Each element is either
{"action":"no_action","reason":"..."} or
{"action":"new_trade","symbol":"EURUSD","direction":"long","volume":0.1,"reason":"..."}.`

// Trader asks the LLM for trade proposals and validates them strictly.
type Trader struct {
	llm Completer
	log *logging.Logger
}

// NewTrader creates the trader agent.
func NewTrader(llm Completer, log *logging.Logger) *Trader {
	return &Trader{llm: llm, log: log.WithComponent("trader-agent")}
}

// ProposeTrades returns validated trade actions for the cycle. A malformed
// payload yields zero trades and the raw text is logged for diagnosis; the
// cycle proceeds either way.
func (t *Trader) ProposeTrades(ctx context.Context, mc MarketContext) []TradeAction {
	raw, err := t.llm.Complete(ctx, traderSystemPrompt, buildTraderPrompt(mc))
	if err != nil {
		t.log.Warn("Trader agent call failed", "error", err.Error())
		return nil
	}

	actions, err := ParseTradeActions(raw, mc.Symbols)
	if err != nil {
		t.log.Warn("Discarding trader payload", "error", err.Error(), "payload", raw)
		return nil
	}
	return actions
}

func buildTraderPrompt(mc MarketContext) string {
	var b strings.Builder

	b.WriteString("Currency strength (cumulative %, strongest first):\n")
	for _, tf := range []strength.Timeframe{strength.TimeframeM5, strength.TimeframeH1, strength.TimeframeH4} {
		line := strengthLine(mc.Snapshot, tf)
		if line != "" {
			fmt.Fprintf(&b, "  %s: %s\n", tf, line)
		}
	}

	if mc.Snapshot != nil {
		fmt.Fprintf(&b, "Market state: %s (confidence %.2f), cross-timeframe coherence %.2f\n",
			mc.Snapshot.Uncertainty.State, mc.Snapshot.Uncertainty.Confidence, mc.Snapshot.Coherence.Score)
	}

	fmt.Fprintf(&b, "Open positions: %d of %d allowed\n", mc.OpenCount, mc.MaxPositions)
	for _, pos := range mc.Positions {
		fmt.Fprintf(&b, "  #%d %s %s %.2f lots, P&L %.2f\n",
			pos.Ticket, pos.Symbol, pos.Direction, pos.Volume, pos.PnL)
	}

	fmt.Fprintf(&b, "Portfolio: equity %.2f, unrealized %.2f, realized %.2f\n",
		mc.Portfolio.Equity, mc.Portfolio.UnrealizedPnL, mc.Portfolio.RealizedPnL)

	if highImpact := highImpactEvents(mc.Calendar); len(highImpact) > 0 {
		b.WriteString("Upcoming high-impact events:\n")
		for _, e := range highImpact {
			fmt.Fprintf(&b, "  %s %s at %s\n", e.Currency, e.Title, e.Time.Format("15:04 UTC"))
		}
	}

	fmt.Fprintf(&b, "Tradable symbols: %s\n", strings.Join(mc.Symbols, ", "))
	fmt.Fprintf(&b, "Default volume: %.2f lots\n", mc.DefaultVolume)
	return b.String()
}

// strengthLine formats the latest readings on one timeframe, strongest
// currency first.
func strengthLine(snap *strength.Snapshot, tf strength.Timeframe) string {
	if snap == nil {
		return ""
	}
	currencies, ok := snap.Series[tf]
	if !ok {
		return ""
	}

	type reading struct {
		currency string
		value    float64
	}
	readings := make([]reading, 0, len(currencies))
	for currency := range currencies {
		if v, ok := snap.Current(tf, currency); ok {
			readings = append(readings, reading{currency, v})
		}
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].value > readings[j].value })

	parts := make([]string, 0, len(readings))
	for _, r := range readings {
		mark := ""
		if snap.IsOscillating(tf, r.currency) {
			mark = "~"
		}
		parts = append(parts, fmt.Sprintf("%s%s %.2f", r.currency, mark, r.value))
	}
	return strings.Join(parts, ", ")
}

func highImpactEvents(events []broker.CalendarEvent) []broker.CalendarEvent {
	var out []broker.CalendarEvent
	for _, e := range events {
		if strings.EqualFold(e.Impact, "high") {
			out = append(out, e)
		}
	}
	return out
}
