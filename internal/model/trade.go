package model

import "time"

// ClosedTrade is one completed round-trip trade as recorded in the journal.
type ClosedTrade struct {
	ID       int64     `json:"id"`
	Symbol   string    `json:"symbol"`
	Action   Action    `json:"action"` // direction of the entry (BUY or SELL)
	Profit   float64   `json:"profit"`
	ClosedAt time.Time `json:"closed_at"`
}

// Won reports whether the trade closed in profit.
func (t ClosedTrade) Won() bool {
	return t.Profit > 0
}
