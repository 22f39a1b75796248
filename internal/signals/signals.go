// Package signals turns RSI and EMA columns into per-bar buy/sell flags.
package signals

import (
	"fmt"

	"strategylab/internal/indicators"
	"strategylab/internal/types"
)

// MissingColumnError is returned when a required indicator column is absent
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("indicator set must contain a %q column", e.Column)
}

// Params holds the signal thresholds and the EMA column to compare against
type Params struct {
	EMAColumn string  `json:"ema_column" yaml:"ema_column"`
	RSIBuy    float64 `json:"rsi_buy" yaml:"rsi_buy"`
	RSISell   float64 `json:"rsi_sell" yaml:"rsi_sell"`
}

// DefaultParams returns EMA_20 with the classic 30/70 RSI bands
func DefaultParams() Params {
	return Params{
		EMAColumn: indicators.EMAColumn(20),
		RSIBuy:    30,
		RSISell:   70,
	}
}

// Generate flags a buy when RSI is below RSIBuy while the close is above the
// EMA, and a sell when RSI is above RSISell while the close is below the EMA.
// NaN indicator values never produce a flag.
func Generate(bars []types.Bar, set indicators.Set, params Params) ([]types.Signal, error) {
	if params.EMAColumn == "" {
		params.EMAColumn = DefaultParams().EMAColumn
	}

	rsi, ok := set.Get(indicators.RSIColumn)
	if !ok {
		return nil, &MissingColumnError{Column: indicators.RSIColumn}
	}
	ema, ok := set.Get(params.EMAColumn)
	if !ok {
		return nil, &MissingColumnError{Column: params.EMAColumn}
	}
	if len(rsi) != len(bars) || len(ema) != len(bars) {
		return nil, fmt.Errorf("indicator columns not aligned with bars: bars=%d %s=%d %s=%d",
			len(bars), indicators.RSIColumn, len(rsi), params.EMAColumn, len(ema))
	}

	signals := make([]types.Signal, len(bars))
	for i, bar := range bars {
		signals[i] = types.Signal{
			Buy:  rsi[i] < params.RSIBuy && bar.Close > ema[i],
			Sell: rsi[i] > params.RSISell && bar.Close < ema[i],
		}
	}
	return signals, nil
}

// FromIndicators computes the indicators for params and generates signals in one step.
// The EMA column is derived from the indicator span.
func FromIndicators(bars []types.Bar, ind indicators.Params, params Params) ([]types.Signal, indicators.Set, error) {
	set, err := indicators.Compute(bars, ind)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute indicators: %w", err)
	}
	params.EMAColumn = indicators.EMAColumn(ind.EMASpan)

	signals, err := Generate(bars, set, params)
	if err != nil {
		return nil, nil, err
	}
	return signals, set, nil
}
