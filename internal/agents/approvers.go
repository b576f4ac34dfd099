package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ufo-trading-engine/internal/ledger"
	"ufo-trading-engine/internal/logging"
)

// ErrNotApproved is returned when an approver rejects a trade or its answer
// could not be parsed.
var ErrNotApproved = errors.New("trade not approved")

const riskSystemPrompt = `You are a risk manager for a currency portfolio. Approve a proposed trade
only when it does not concentrate exposure dangerously given the open
positions. Respond with JSON only: {"approved":true|false,"reason":"..."}.`

const fundSystemPrompt = `You are a fund manager authorizing capital deployment. Approve a proposed
trade only when the portfolio state justifies new exposure. Respond with
JSON only: {"approved":true|false,"reason":"..."}.`

// Approver runs one approval stage over a proposed trade. Both the risk and
// the fund stage share this shape with different prompts.
type Approver struct {
	llm    Completer
	system string
	log    *logging.Logger
}

// NewRiskApprover creates the exposure-concentration approver.
func NewRiskApprover(llm Completer, log *logging.Logger) *Approver {
	return &Approver{llm: llm, system: riskSystemPrompt, log: log.WithComponent("risk-agent")}
}

// NewFundApprover creates the capital-deployment approver.
func NewFundApprover(llm Completer, log *logging.Logger) *Approver {
	return &Approver{llm: llm, system: fundSystemPrompt, log: log.WithComponent("fund-agent")}
}

// Approve returns nil when the agent approves the trade. Call failures and
// unparseable verdicts reject; new exposure needs an explicit yes.
func (a *Approver) Approve(ctx context.Context, action TradeAction, positions []ledger.Position, portfolio ledger.PortfolioSnapshot) error {
	raw, err := a.llm.Complete(ctx, a.system, buildApprovalPrompt(action, positions, portfolio))
	if err != nil {
		a.log.Warn("Approver call failed", "error", err.Error())
		return fmt.Errorf("%w: %v", ErrNotApproved, err)
	}

	verdict := ParseVerdict(raw)
	if !verdict.Approved {
		return fmt.Errorf("%w: %s", ErrNotApproved, verdict.Reason)
	}
	return nil
}

func buildApprovalPrompt(action TradeAction, positions []ledger.Position, portfolio ledger.PortfolioSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Proposed trade: %s %s %.2f lots (%s)\n",
		action.Direction, action.Symbol, action.Volume, action.Reason)
	fmt.Fprintf(&b, "Portfolio: balance %.2f, equity %.2f, unrealized %.2f, %d open positions\n",
		portfolio.Balance, portfolio.Equity, portfolio.UnrealizedPnL, portfolio.OpenPositions)
	for _, pos := range positions {
		fmt.Fprintf(&b, "  #%d %s %s %.2f lots, P&L %.2f\n",
			pos.Ticket, pos.Symbol, pos.Direction, pos.Volume, pos.PnL)
	}
	return b.String()
}
