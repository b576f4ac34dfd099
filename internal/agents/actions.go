package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"ufo-trading-engine/internal/ledger"
	"ufo-trading-engine/internal/strength"
)

// Action kinds a decision agent may propose.
const (
	ActionNewTrade = "new_trade"
	ActionNoAction = "no_action"
)

// TradeAction is one proposed action from the trader agent. Anything that
// fails validation is treated as no action, never guessed at.
type TradeAction struct {
	Action    string  `json:"action" validate:"required,oneof=new_trade no_action"`
	Symbol    string  `json:"symbol" validate:"required_if=Action new_trade"`
	Direction string  `json:"direction" validate:"required_if=Action new_trade,omitempty,oneof=long short"`
	Volume    float64 `json:"volume" validate:"required_if=Action new_trade,omitempty,gt=0,lte=10"`
	Reason    string  `json:"reason"`
}

// LedgerDirection maps the payload direction to the ledger type.
func (a TradeAction) LedgerDirection() ledger.Direction {
	if a.Direction == "short" {
		return ledger.DirectionShort
	}
	return ledger.DirectionLong
}

var validate = validator.New()

// ParseTradeActions extracts and validates the trader agent's action list.
// The raw text may wrap the JSON array in markdown fences or prose; only the
// first well-formed array is considered. Malformed or unvalidatable entries
// are dropped. A payload with no parseable array is an error so the caller
// can log the raw text.
func ParseTradeActions(raw string, knownSymbols []string) ([]TradeAction, error) {
	payload := extractJSONArray(raw)
	if payload == "" {
		return nil, fmt.Errorf("no JSON action array in payload")
	}

	var actions []TradeAction
	if err := json.Unmarshal([]byte(payload), &actions); err != nil {
		return nil, fmt.Errorf("malformed action array: %w", err)
	}

	out := make([]TradeAction, 0, len(actions))
	for _, action := range actions {
		if err := validate.Struct(action); err != nil {
			continue
		}
		if action.Action == ActionNoAction {
			out = append(out, action)
			continue
		}
		corrected, ok := CorrectSymbol(action.Symbol, knownSymbols)
		if !ok {
			continue
		}
		if corrected.inverted {
			action.Direction = string(action.LedgerDirection().Opposite())
		}
		action.Symbol = corrected.symbol
		out = append(out, action)
	}
	return out, nil
}

// extractJSONArray returns the first top-level JSON array in the text,
// tolerating markdown code fences around it.
func extractJSONArray(raw string) string {
	raw = strings.ReplaceAll(raw, "```json", "")
	raw = strings.ReplaceAll(raw, "```", "")

	start := strings.Index(raw, "[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '[':
			if !inString {
				depth++
			}
		case ']':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1]
				}
			}
		}
	}
	return ""
}

type correctedSymbol struct {
	symbol   string
	inverted bool
}

// CorrectSymbol maps an agent-proposed pair onto the tradable universe. An
// inverted pair (USDEUR for EURUSD) maps to the canonical symbol with the
// inverted flag set so the caller flips direction. Unknown pairs are
// rejected.
func CorrectSymbol(proposed string, knownSymbols []string) (correctedSymbol, bool) {
	base, quote, ok := strength.SplitPair(proposed)
	if !ok {
		return correctedSymbol{}, false
	}
	direct := base + quote
	inverse := quote + base
	for _, known := range knownSymbols {
		kb, kq, ok := strength.SplitPair(known)
		if !ok {
			continue
		}
		canonical := kb + kq
		if canonical == direct {
			return correctedSymbol{symbol: known}, true
		}
		if canonical == inverse {
			return correctedSymbol{symbol: known, inverted: true}, true
		}
	}
	return correctedSymbol{}, false
}

// Verdict is a risk or fund approval decision.
type Verdict struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// ParseVerdict extracts an approval verdict from agent output. Any parse
// failure yields a rejection, not an approval.
func ParseVerdict(raw string) Verdict {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Verdict{Reason: "unparseable verdict"}
	}
	var v Verdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return Verdict{Reason: "unparseable verdict"}
	}
	return v
}
