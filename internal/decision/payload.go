// Package decision parses the JSON payload attached to an analysis decision.
// The payload is a tagged union over primary_action; only the nested new_trade
// schema is supported. Upstream keeps adding optional fields, so extraction is
// tolerant: unknown keys are ignored and stop_loss/take_profit may arrive as
// objects or bare numbers.
package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"tradeflow/internal/domain"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Action is the primary_action discriminator.
type Action string

const (
	ActionNewTrade Action = "NEW_TRADE"
	ActionCancel   Action = "CANCEL"
	ActionAmend    Action = "AMEND"
)

// ExecutableActions are the actions the executor picks up. Decisions with any
// other action stay untouched in the store.
var ExecutableActions = []string{string(ActionNewTrade), string(ActionCancel), string(ActionAmend)}

// NewTrade carries the parameters of a NEW_TRADE or AMEND decision. Zero
// decimals mean the field was absent; the executor treats missing qty, limit
// or stop as a validation failure, not an error.
type NewTrade struct {
	Side            domain.Side
	Qty             decimal.Decimal
	LimitPrice      decimal.Decimal
	StopPrice       decimal.Decimal
	TakeProfitPrice decimal.Decimal
	Strategy        string
	Pattern         string
	TimeInForce     string
}

// PlansTakeProfit reports whether the decision asked for a take-profit order.
func (n *NewTrade) PlansTakeProfit() bool {
	return n != nil && n.TakeProfitPrice.IsPositive()
}

// Payload is the parsed decision body.
type Payload struct {
	PrimaryAction Action
	NewTrade      *NewTrade
}

const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["primary_action"],
  "properties": {
    "primary_action": {"type": "string"},
    "new_trade": {
      "type": "object",
      "properties": {
        "side": {"type": "string"},
        "qty": {"type": ["number", "string"]},
        "limit_price": {"type": ["number", "string"]},
        "stop_loss": {"type": ["object", "number", "string"]},
        "take_profit": {"type": ["object", "number", "string", "null"]},
        "strategy": {"type": "string"},
        "pattern": {"type": "string"},
        "time_in_force": {"type": "string"}
      }
    }
  }
}`

var payloadSchema = jsonschema.MustCompileString("decision.schema.json", schemaJSON)

// Parse validates raw structurally and extracts the payload. A schema error
// means the decision is malformed and should be skipped, not retried blindly.
func Parse(raw []byte) (*Payload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("decision payload is empty")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decision payload is not valid json: %w", err)
	}
	if err := payloadSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("decision payload failed schema validation: %w", err)
	}

	body := gjson.ParseBytes(raw)
	p := &Payload{
		PrimaryAction: Action(strings.ToUpper(strings.TrimSpace(body.Get("primary_action").String()))),
	}
	if nt := body.Get("new_trade"); nt.Exists() && nt.IsObject() {
		p.NewTrade = parseNewTrade(nt)
	}
	return p, nil
}

func parseNewTrade(nt gjson.Result) *NewTrade {
	out := &NewTrade{
		Side:        domain.Side(strings.ToLower(nt.Get("side").String())),
		Qty:         decimalField(nt.Get("qty")),
		LimitPrice:  decimalField(nt.Get("limit_price")),
		Strategy:    strings.ToUpper(strings.TrimSpace(nt.Get("strategy").String())),
		Pattern:     nt.Get("pattern").String(),
		TimeInForce: strings.ToLower(strings.TrimSpace(nt.Get("time_in_force").String())),
	}
	if out.Side == "" {
		out.Side = domain.SideBuy
	}
	if out.Strategy == "" {
		out.Strategy = domain.StrategySwing
	}
	if out.TimeInForce == "" {
		out.TimeInForce = "gtc"
	}

	// stop_loss: {"stop_price": 145.0} or bare 145.0
	if sl := nt.Get("stop_loss"); sl.Exists() {
		if sl.IsObject() {
			out.StopPrice = decimalField(sl.Get("stop_price"))
		} else {
			out.StopPrice = decimalField(sl)
		}
	}
	// take_profit: {"limit_price": 160.1}, bare 160.1, or absent
	if tp := nt.Get("take_profit"); tp.Exists() {
		if tp.IsObject() {
			out.TakeProfitPrice = decimalField(tp.Get("limit_price"))
		} else {
			out.TakeProfitPrice = decimalField(tp)
		}
	}
	return out
}

// decimalField converts a gjson number or numeric string into a decimal,
// preserving the literal digits instead of round-tripping through float64.
func decimalField(res gjson.Result) decimal.Decimal {
	switch res.Type {
	case gjson.Number:
		if d, err := decimal.NewFromString(res.Raw); err == nil {
			return d
		}
		return decimal.NewFromFloat(res.Num)
	case gjson.String:
		if d, err := decimal.NewFromString(strings.TrimSpace(res.Str)); err == nil {
			return d
		}
	}
	return decimal.Zero
}
