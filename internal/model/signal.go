package model

import "encoding/json"

// Action is a trading decision.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is the result of one signal query. It is produced fresh on every
// request and never persisted beyond the per-symbol diagnostic fields.
type Signal struct {
	Symbol         string   `json:"symbol"`
	Action         Action   `json:"signal"`
	Confidence     float64  `json:"confidence"`
	PredictedPrice *float64 `json:"predicted_price,omitempty"`
	CurrentPrice   float64  `json:"current_price,omitempty"`
	Reason         string   `json:"message"`
}

// Hold builds a HOLD signal with zero confidence and the given reason.
func Hold(symbol, reason string) Signal {
	return Signal{Symbol: symbol, Action: ActionHold, Confidence: 0, Reason: reason}
}

// JSON returns the JSON-encoded signal (ignoring errors for hot-path usage).
func (s *Signal) JSON() []byte {
	out, _ := json.Marshal(s)
	return out
}
