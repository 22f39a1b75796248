package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/types"
)

func TestEMAColumn(t *testing.T) {
	assert.Equal(t, "EMA_20", EMAColumn(20))
	assert.Equal(t, "EMA_5", EMAColumn(5))
}

func TestEMASeededWithFirstValue(t *testing.T) {
	// span 3 gives alpha 0.5
	ema := EMA([]float64{1, 2, 3}, 3)
	require.Len(t, ema, 3)
	assert.InDelta(t, 1.0, ema[0], 1e-12)
	assert.InDelta(t, 1.5, ema[1], 1e-12)
	assert.InDelta(t, 2.25, ema[2], 1e-12)
}

func TestEMAConstantSeries(t *testing.T) {
	for _, v := range EMA([]float64{7, 7, 7, 7, 7}, 10) {
		assert.InDelta(t, 7.0, v, 1e-12)
	}
}

func TestRSIWarmup(t *testing.T) {
	closes := []float64{10, 11, 12, 11, 13, 14}
	rsi := RSI(closes, 3)
	require.Len(t, rsi, len(closes))
	assert.True(t, math.IsNaN(rsi[0]))
	assert.True(t, math.IsNaN(rsi[1]))
	assert.False(t, math.IsNaN(rsi[2]))
}

func TestRSIKnownValues(t *testing.T) {
	rsi := RSI([]float64{1, 2, 1}, 2)
	assert.True(t, math.IsNaN(rsi[0]))
	assert.InDelta(t, 100.0, rsi[1], 1e-12)
	assert.InDelta(t, 50.0, rsi[2], 1e-12)
}

func TestRSIEdgeCases(t *testing.T) {
	up := RSI([]float64{1, 2, 3, 4, 5}, 3)
	assert.InDelta(t, 100.0, up[4], 1e-12)

	down := RSI([]float64{5, 4, 3, 2, 1}, 3)
	assert.InDelta(t, 0.0, down[4], 1e-12)

	flat := RSI([]float64{3, 3, 3, 3}, 2)
	for _, v := range flat {
		assert.True(t, math.IsNaN(v))
	}
}

func TestRSIRollingWindow(t *testing.T) {
	// gains: 0 2 0 0 1, losses: 0 0 1 3 0
	closes := []float64{10, 12, 11, 8, 9}
	rsi := RSI(closes, 3)

	// window [1..3]: gain 2/3, loss 4/3
	assert.InDelta(t, 100-100/(1+0.5), rsi[3], 1e-9)
	// window [2..4]: gain 1/3, loss 4/3
	assert.InDelta(t, 100-100/(1+0.25), rsi[4], 1e-9)
}

func TestCompute(t *testing.T) {
	bars := types.BarsFromCloses(time.Unix(0, 0).UTC(), time.Hour, []float64{1, 2, 3, 4, 5, 6})

	set, err := Compute(bars, Params{RSIPeriod: 2, EMASpan: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"EMA_4", "RSI"}, set.Names())

	rsi, ok := set.Get(RSIColumn)
	require.True(t, ok)
	assert.Len(t, rsi, len(bars))

	_, err = Compute(bars, Params{RSIPeriod: 0, EMASpan: 4})
	assert.Error(t, err)
	_, err = Compute(bars, Params{RSIPeriod: 14, EMASpan: 0})
	assert.Error(t, err)
}
