package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/types"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func barsOf(closes ...float64) []types.Bar {
	return types.BarsFromCloses(start, time.Hour, closes)
}

func TestRunSingleRoundTrip(t *testing.T) {
	bars := barsOf(100, 110, 90)
	signals := []types.Signal{{Buy: true}, {}, {Sell: true}}
	fee := 0.00125

	values, err := Run(bars, signals, 10000, RiskParameters{FeeRate: fee})
	require.NoError(t, err)
	require.Len(t, values, 3)

	qty := 10000 * (1 - fee) / 100
	assert.InDelta(t, 99.875, qty, 1e-9)
	assert.InDelta(t, 9987.5, values[0], 1e-9)
	assert.InDelta(t, 10986.25, values[1], 1e-9)
	assert.InDelta(t, qty*90*(1-fee), values[2], 1e-9)
	assert.InDelta(t, 8977.5140625, values[2], 1e-6)
}

func TestRunStopLoss(t *testing.T) {
	bars := barsOf(100, 94, 120)
	signals := []types.Signal{{Buy: true}, {}, {}}

	result, err := Simulate(bars, signals, 10000, RiskParameters{StopLossPct: Pct(0.05)})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, types.ExitStopLoss, trade.Reason)
	assert.Equal(t, 1, trade.ExitIndex)
	assert.False(t, result.Portfolio.IsLong())

	// flat after the stop: value frozen at the exit proceeds
	assert.InDelta(t, 9400, result.Values[1], 1e-9)
	assert.InDelta(t, 9400, result.Values[2], 1e-9)
}

func TestRunStopLossBoundaryIsInclusive(t *testing.T) {
	bars := barsOf(100, 50)
	signals := []types.Signal{{Buy: true}, {}}

	result, err := Simulate(bars, signals, 1000, RiskParameters{StopLossPct: Pct(0.5)})
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, types.ExitStopLoss, result.Trades[0].Reason)
}

func TestRunTakeProfit(t *testing.T) {
	bars := barsOf(100, 105, 111, 90)
	signals := []types.Signal{{Buy: true}, {}, {}, {}}

	result, err := Simulate(bars, signals, 1000, RiskParameters{TakeProfitPct: Pct(0.1)})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, types.ExitTakeProfit, result.Trades[0].Reason)
	assert.Equal(t, 2, result.Trades[0].ExitIndex)
	assert.InDelta(t, 1110, result.Values[3], 1e-9)
}

func TestRunSellSignalTakesPrecedenceOverRiskExits(t *testing.T) {
	bars := barsOf(100, 50)
	signals := []types.Signal{{Buy: true}, {Sell: true}}

	result, err := Simulate(bars, signals, 1000, RiskParameters{StopLossPct: Pct(0.05)})
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, types.ExitSignal, result.Trades[0].Reason)
}

func TestRunIgnoresBuyWhileLongAndSellWhileFlat(t *testing.T) {
	bars := barsOf(100, 200, 400, 400)
	signals := []types.Signal{{Sell: true}, {Buy: true}, {Buy: true}, {Sell: true, Buy: true}}

	result, err := Simulate(bars, signals, 1000, RiskParameters{})
	require.NoError(t, err)

	assert.Equal(t, []float64{1000, 1000, 2000, 2000}, result.Values)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, 1, result.Trades[0].EntryIndex)
	assert.Equal(t, 3, result.Trades[0].ExitIndex)
}

func TestRunBuyAndSellOnSameBarWhenFlatEnters(t *testing.T) {
	bars := barsOf(100, 100)
	signals := []types.Signal{{Buy: true, Sell: true}, {}}

	result, err := Simulate(bars, signals, 1000, RiskParameters{})
	require.NoError(t, err)
	assert.True(t, result.Portfolio.IsLong())
	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].IsOpen())
}

func TestRunNoSignalsIsConstant(t *testing.T) {
	bars := barsOf(100, 80, 130, 5, 1000)
	signals := make([]types.Signal, len(bars))

	values, err := Run(bars, signals, 2500, RiskParameters{FeeRate: 0.01})
	require.NoError(t, err)
	for _, v := range values {
		assert.Equal(t, 2500.0, v)
	}
}

func TestRunNoForcedLiquidation(t *testing.T) {
	bars := barsOf(10, 20)
	signals := []types.Signal{{Buy: true}, {}}

	result, err := Simulate(bars, signals, 100, RiskParameters{})
	require.NoError(t, err)
	assert.True(t, result.Portfolio.IsLong())
	assert.Equal(t, 0.0, result.Portfolio.Cash)
	assert.InDelta(t, 200, result.FinalValue(100), 1e-9)
}

func TestRunRoundTripCost(t *testing.T) {
	fee := 0.01
	bars := barsOf(50, 50)
	signals := []types.Signal{{Buy: true}, {Sell: true}}

	values, err := Run(bars, signals, 1000, RiskParameters{FeeRate: fee})
	require.NoError(t, err)
	assert.InDelta(t, 1000*(1-fee)*(1-fee), values[1], 1e-9)
}

func TestRunIsIdempotent(t *testing.T) {
	bars := barsOf(100, 101, 99, 120, 80, 130, 131)
	signals := []types.Signal{{Buy: true}, {}, {Sell: true}, {Buy: true}, {}, {}, {Sell: true}}
	risk := RiskParameters{FeeRate: 0.002, StopLossPct: Pct(0.1), TakeProfitPct: Pct(0.2)}

	first, err := Run(bars, signals, 10000, risk)
	require.NoError(t, err)
	second, err := Run(bars, signals, 10000, risk)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, math.Float64bits(first[i]), math.Float64bits(second[i]))
	}
}

func TestRunValuesNonNegativeAndAligned(t *testing.T) {
	closes := make([]float64, 200)
	signals := make([]types.Signal, 200)
	for i := range closes {
		closes[i] = 50 + 40*math.Sin(float64(i)/7)
		signals[i] = types.Signal{Buy: i%5 == 0, Sell: i%7 == 0}
	}

	values, err := Run(barsOf(closes...), signals, 1, RiskParameters{FeeRate: 0.999, StopLossPct: Pct(0.02)})
	require.NoError(t, err)
	assert.Len(t, values, len(closes))
	for _, v := range values {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestRunEmptySeries(t *testing.T) {
	values, err := Run(nil, nil, 100, RiskParameters{})
	require.NoError(t, err)
	assert.Empty(t, values)

	final, err := FinalValue(nil, nil, 100, RiskParameters{})
	require.NoError(t, err)
	assert.Equal(t, 100.0, final)
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name    string
		bars    []types.Bar
		signals []types.Signal
		balance float64
		risk    RiskParameters
		field   string
	}{
		{name: "length mismatch", bars: barsOf(1, 2), signals: []types.Signal{{}}, balance: 10, field: "signals"},
		{name: "zero balance", bars: barsOf(1), signals: []types.Signal{{}}, balance: 0, field: "initial_balance"},
		{name: "nan balance", bars: barsOf(1), signals: []types.Signal{{}}, balance: math.NaN(), field: "initial_balance"},
		{name: "fee of one", bars: barsOf(1), signals: []types.Signal{{}}, balance: 10, risk: RiskParameters{FeeRate: 1}, field: "fee_rate"},
		{name: "negative fee", bars: barsOf(1), signals: []types.Signal{{}}, balance: 10, risk: RiskParameters{FeeRate: -0.1}, field: "fee_rate"},
		{name: "zero stop", bars: barsOf(1), signals: []types.Signal{{}}, balance: 10, risk: RiskParameters{StopLossPct: Pct(0)}, field: "stop_loss_pct"},
		{name: "negative take", bars: barsOf(1), signals: []types.Signal{{}}, balance: 10, risk: RiskParameters{TakeProfitPct: Pct(-1)}, field: "take_profit_pct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := Run(tt.bars, tt.signals, tt.balance, tt.risk)
			require.Error(t, err)
			assert.Nil(t, values)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRunMismatchNamesLengths(t *testing.T) {
	_, err := Run(barsOf(1, 2, 3), []types.Signal{{}}, 10, RiskParameters{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bars=3 signals=1")
}

func TestRunNonPositivePrice(t *testing.T) {
	for _, price := range []float64{0, -5, math.NaN()} {
		bars := barsOf(100, price, 100)
		signals := []types.Signal{{Buy: true}, {}, {}}

		values, err := Run(bars, signals, 1000, RiskParameters{})
		require.Error(t, err)
		assert.Nil(t, values)

		var derr *DataError
		require.True(t, errors.As(err, &derr))
		assert.Equal(t, 1, derr.Index)
	}
}

func TestTradeAccounting(t *testing.T) {
	fee := 0.001
	bars := barsOf(100, 120)
	signals := []types.Signal{{Buy: true}, {Sell: true}}

	result, err := Simulate(bars, signals, 1000, RiskParameters{FeeRate: fee})
	require.NoError(t, err)
	require.Len(t, result.ClosedTrades(), 1)

	trade := result.Trades[0]
	assert.InDelta(t, 1.0, trade.EntryFee, 1e-9)
	assert.InDelta(t, trade.Quantity*120*fee, trade.ExitFee, 1e-9)
	assert.InDelta(t, result.Values[1], trade.Proceeds, 1e-9)
	assert.InDelta(t, trade.Proceeds-1000, trade.PnL, 1e-9)
	assert.True(t, trade.IsWin())
}
