package types

import (
	"time"
)

// ExitReason tells which rule closed a position
type ExitReason string

const (
	ExitSignal     ExitReason = "signal"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitOpen       ExitReason = "open" // still held after the last bar
)

// Trade records one entry and, unless still open, its exit
type Trade struct {
	EntryIndex int        `json:"entry_index"`
	ExitIndex  int        `json:"exit_index"` // -1 while open
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time,omitzero"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price,omitempty"`
	Quantity   float64    `json:"quantity"`
	Capital    float64    `json:"capital"` // cash committed at entry, before fee
	EntryFee   float64    `json:"entry_fee"`
	ExitFee    float64    `json:"exit_fee"`
	Proceeds   float64    `json:"proceeds"` // cash returned at exit, after fee
	PnL        float64    `json:"pnl"`
	Reason     ExitReason `json:"reason"`
}

// IsOpen returns true if the trade has no exit yet
func (t Trade) IsOpen() bool {
	return t.ExitIndex < 0
}

// ReturnPct returns the net return of a closed trade relative to committed capital
func (t Trade) ReturnPct() float64 {
	if t.Capital == 0 {
		return 0
	}
	return t.PnL / t.Capital
}

// IsWin returns true if a closed trade made money after fees
func (t Trade) IsWin() bool {
	return !t.IsOpen() && t.PnL > 0
}
