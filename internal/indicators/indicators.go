// Package indicators computes the RSI and EMA series consumed by the signal
// generator. Warm-up positions that have no defined value hold NaN.
package indicators

import (
	"fmt"
	"math"
	"sort"

	"github.com/cinar/indicator"

	"strategylab/internal/types"
)

// RSIColumn is the column name of the RSI series
const RSIColumn = "RSI"

// EMAColumn returns the conventional column name of an EMA series, e.g. EMA_20
func EMAColumn(span int) string {
	return fmt.Sprintf("EMA_%d", span)
}

// Params holds the indicator periods
type Params struct {
	RSIPeriod int `json:"rsi_period" yaml:"rsi_period"`
	EMASpan   int `json:"ema_span" yaml:"ema_span"`
}

// DefaultParams returns RSI(14) and EMA(20)
func DefaultParams() Params {
	return Params{RSIPeriod: 14, EMASpan: 20}
}

// Set is a collection of named indicator columns aligned with a bar series
type Set map[string][]float64

// Get returns the named column
func (s Set) Get(name string) ([]float64, bool) {
	col, ok := s[name]
	return col, ok
}

// Names returns the column names in sorted order
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge copies the columns of other into s, overwriting on name clashes
func (s Set) Merge(other Set) Set {
	for name, col := range other {
		s[name] = col
	}
	return s
}

// Compute calculates RSI and EMA over the bar closes
func Compute(bars []types.Bar, params Params) (Set, error) {
	if params.RSIPeriod < 1 {
		return nil, fmt.Errorf("rsi period must be positive, got %d", params.RSIPeriod)
	}
	if params.EMASpan < 1 {
		return nil, fmt.Errorf("ema span must be positive, got %d", params.EMASpan)
	}

	closes := types.Closes(bars)
	return Set{
		RSIColumn:                 RSI(closes, params.RSIPeriod),
		EMAColumn(params.EMASpan): EMA(closes, params.EMASpan),
	}, nil
}

// RSI computes the relative strength index using simple rolling means of
// gains and losses over period bars. The first period-1 values are NaN.
// A window with losses but no gains gives 0, gains but no losses gives 100,
// and a window without movement is NaN.
func RSI(closes []float64, period int) []float64 {
	result := make([]float64, len(closes))
	if period < 1 {
		for i := range result {
			result[i] = math.NaN()
		}
		return result
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else if delta < 0 {
			losses[i] = -delta
		}
	}

	avgGain := indicator.Sma(period, gains)
	avgLoss := indicator.Sma(period, losses)

	for i := range result {
		if i < period-1 {
			result[i] = math.NaN()
			continue
		}
		result[i] = rsiValue(avgGain[i], avgLoss[i])
	}
	return result
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0 && avgLoss == 0:
		return math.NaN()
	case avgLoss == 0:
		return 100
	default:
		return 100 - 100/(1+avgGain/avgLoss)
	}
}

// EMA computes the exponential moving average with alpha = 2/(span+1),
// seeded with the first close.
func EMA(closes []float64, span int) []float64 {
	if span < 1 {
		span = 1
	}
	return indicator.Ema(span, closes)
}
