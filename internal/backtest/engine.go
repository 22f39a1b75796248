// Package backtest simulates a single-position, long-only strategy over a
// bar series and produces its mark-to-market portfolio value per bar.
package backtest

import (
	"fmt"
	"math"

	"strategylab/internal/types"
)

// RiskParameters is the immutable cost and exit configuration of one run.
// StopLossPct and TakeProfitPct are disabled when nil.
type RiskParameters struct {
	FeeRate       float64  `json:"fee_rate" yaml:"fee_rate"`
	StopLossPct   *float64 `json:"stop_loss_pct,omitempty" yaml:"stop_loss_pct,omitempty"`
	TakeProfitPct *float64 `json:"take_profit_pct,omitempty" yaml:"take_profit_pct,omitempty"`
}

// Pct returns a pointer to v, for filling the optional risk fields
func Pct(v float64) *float64 {
	return &v
}

// Validate checks the risk parameters against their allowed ranges
func (r RiskParameters) Validate() error {
	if math.IsNaN(r.FeeRate) || r.FeeRate < 0 || r.FeeRate >= 1 {
		return &ValidationError{Field: "fee_rate", Value: r.FeeRate, Reason: "must be in [0, 1)"}
	}
	if r.StopLossPct != nil && !(*r.StopLossPct > 0) {
		return &ValidationError{Field: "stop_loss_pct", Value: *r.StopLossPct, Reason: "must be > 0"}
	}
	if r.TakeProfitPct != nil && !(*r.TakeProfitPct > 0) {
		return &ValidationError{Field: "take_profit_pct", Value: *r.TakeProfitPct, Reason: "must be > 0"}
	}
	return nil
}

// Result is the full output of a simulation. Values is the portfolio value
// series; Trades and Portfolio are kept for reporting.
type Result struct {
	Values    []float64     `json:"values"`
	Trades    []types.Trade `json:"trades"`
	Portfolio Portfolio     `json:"-"`
}

// FinalValue returns the last portfolio value, or the initial balance if the series is empty
func (r *Result) FinalValue(initialBalance float64) float64 {
	if len(r.Values) == 0 {
		return initialBalance
	}
	return r.Values[len(r.Values)-1]
}

// ClosedTrades returns the trades that have an exit
func (r *Result) ClosedTrades() []types.Trade {
	closed := make([]types.Trade, 0, len(r.Trades))
	for _, t := range r.Trades {
		if !t.IsOpen() {
			closed = append(closed, t)
		}
	}
	return closed
}

// Run simulates the strategy and returns the portfolio value per bar
func Run(bars []types.Bar, signals []types.Signal, initialBalance float64, risk RiskParameters) ([]float64, error) {
	result, err := Simulate(bars, signals, initialBalance, risk)
	if err != nil {
		return nil, err
	}
	return result.Values, nil
}

// FinalValue simulates the strategy and returns only the value after the last bar
func FinalValue(bars []types.Bar, signals []types.Signal, initialBalance float64, risk RiskParameters) (float64, error) {
	result, err := Simulate(bars, signals, initialBalance, risk)
	if err != nil {
		return 0, err
	}
	return result.FinalValue(initialBalance), nil
}

// Simulate walks the bars in order, applying at most one transition per bar:
// buy when flat, then sell signal, stop-loss and take-profit when long.
// The bar's mark-to-market value is appended after the transition step.
func Simulate(bars []types.Bar, signals []types.Signal, initialBalance float64, risk RiskParameters) (*Result, error) {
	if err := validateInputs(bars, signals, initialBalance, risk); err != nil {
		return nil, err
	}

	fee := risk.FeeRate
	portfolio := newPortfolio(initialBalance)
	values := make([]float64, 0, len(bars))
	var trades []types.Trade

	for i, bar := range bars {
		price := bar.Close
		if !(price > 0) || math.IsInf(price, 0) {
			return nil, &DataError{Index: i, Timestamp: bar.Timestamp, Price: price}
		}
		signal := signals[i]

		switch pos := portfolio.Position.(type) {
		case Flat:
			if signal.Buy {
				capital := portfolio.Cash
				entryFee := portfolio.enter(i, price, fee)
				trades = append(trades, types.Trade{
					EntryIndex: i,
					ExitIndex:  -1,
					EntryTime:  bar.Timestamp,
					EntryPrice: price,
					Quantity:   portfolio.Quantity(),
					Capital:    capital,
					EntryFee:   entryFee,
					Reason:     types.ExitOpen,
				})
			}
		case Long:
			reason, ok := exitReason(pos, signal, price, risk)
			if !ok {
				break
			}
			exitFee := portfolio.exit(price, fee)
			t := &trades[len(trades)-1]
			t.ExitIndex = i
			t.ExitTime = bar.Timestamp
			t.ExitPrice = price
			t.ExitFee = exitFee
			t.Proceeds = portfolio.Cash
			t.PnL = t.Proceeds - t.Capital
			t.Reason = reason
		default:
			return nil, fmt.Errorf("unknown position state %T", pos)
		}

		values = append(values, portfolio.MarkToMarket(price))
	}

	return &Result{
		Values:    values,
		Trades:    trades,
		Portfolio: *portfolio,
	}, nil
}

// exitReason applies the exit rules of a long position in priority order.
// Only the first matching rule fires.
func exitReason(pos Long, signal types.Signal, price float64, risk RiskParameters) (types.ExitReason, bool) {
	if signal.Sell {
		return types.ExitSignal, true
	}
	if risk.StopLossPct != nil && price <= pos.EntryPrice*(1-*risk.StopLossPct) {
		return types.ExitStopLoss, true
	}
	if risk.TakeProfitPct != nil && price >= pos.EntryPrice*(1+*risk.TakeProfitPct) {
		return types.ExitTakeProfit, true
	}
	return "", false
}

// validateInputs checks the run preconditions
func validateInputs(bars []types.Bar, signals []types.Signal, initialBalance float64, risk RiskParameters) error {
	if len(bars) != len(signals) {
		return &ValidationError{
			Field:  "signals",
			Value:  fmt.Sprintf("bars=%d signals=%d", len(bars), len(signals)),
			Reason: "signal series must be aligned 1:1 with bars",
		}
	}
	if !(initialBalance > 0) || math.IsInf(initialBalance, 0) {
		return &ValidationError{Field: "initial_balance", Value: initialBalance, Reason: "must be a positive finite amount"}
	}
	return risk.Validate()
}
