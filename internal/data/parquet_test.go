package data

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/types"
)

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ETHUSDT_1h.parquet")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []types.Bar{
		{Timestamp: start, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
		{Timestamp: start.Add(time.Hour), Open: 1.5, High: 3, Low: 1, Close: 2.5, Volume: 50},
	}
	signals := []types.Signal{{Buy: true}, {Sell: true}}

	require.NoError(t, WriteParquet(path, bars, signals))

	ds, err := LoadParquet(path)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", ds.Symbol)
	require.Len(t, ds.Bars, 2)
	for i := range bars {
		assert.True(t, bars[i].Timestamp.Equal(ds.Bars[i].Timestamp))
		assert.Equal(t, bars[i].Close, ds.Bars[i].Close)
		assert.Equal(t, bars[i].Volume, ds.Bars[i].Volume)
	}
	assert.Equal(t, signals, ds.Signals)
}

func TestParquetWithoutSignals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.parquet")
	bars := types.BarsFromCloses(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute, []float64{3, 4})

	require.NoError(t, WriteParquet(path, bars, nil))

	ds, err := LoadParquet(path)
	require.NoError(t, err)
	assert.False(t, ds.HasSignals())
}

func TestParquetSignalColumnsWithoutFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiet.parquet")
	bars := types.BarsFromCloses(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute, []float64{3, 4, 5})

	require.NoError(t, WriteParquet(path, bars, make([]types.Signal, len(bars))))

	ds, err := LoadParquet(path)
	require.NoError(t, err)
	assert.True(t, ds.HasSignals())
	assert.Equal(t, make([]types.Signal, 3), ds.Signals)
	assert.Equal(t, 5.0, ds.Bars[2].Close)
}

func TestWriteParquetLengthMismatch(t *testing.T) {
	bars := types.BarsFromCloses(time.Now(), time.Minute, []float64{1, 2})
	err := WriteParquet(filepath.Join(t.TempDir(), "x.parquet"), bars, []types.Signal{{}})
	assert.Error(t, err)
}

func TestLoadParquetMissing(t *testing.T) {
	_, err := LoadParquet(filepath.Join(t.TempDir(), "none.parquet"))
	assert.ErrorIs(t, err, ErrFileNotFound)
}
