package data

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSVFileNotFound(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLoadCSVCloseOnly(t *testing.T) {
	path := writeFile(t, "prices.csv", "close\n100\n110\n90\n")

	ds, err := LoadCSV(path)
	require.NoError(t, err)

	assert.Equal(t, []float64{100, 110, 90}, types.Closes(ds.Bars))
	assert.False(t, ds.HasSignals())
	assert.Empty(t, ds.Columns)
	assert.True(t, ds.Bars[0].Timestamp.IsZero())
	assert.Equal(t, 100.0, ds.Bars[0].Open)
}

func TestLoadCSVFullRow(t *testing.T) {
	content := "Date,Open,High,Low,Close,Volume,RSI,EMA_20,Buy_Signal,Sell_Signal,Symbol\n" +
		"2024-01-01 00:00:00,1,2,0.5,1.5,10,,1.4,False,False,BTC\n" +
		"2024-01-01 01:00:00,1.5,2.5,1,2,20,25.5,1.6,True,False,BTC\n"
	path := writeFile(t, "BTCUSDT_1h.csv", content)

	ds, err := LoadCSV(path)
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())

	assert.Equal(t, "BTCUSDT", ds.Symbol)
	assert.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), ds.Bars[1].Timestamp)
	assert.Equal(t, types.Bar{
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Open:      1, High: 2, Low: 0.5, Close: 1.5, Volume: 10,
	}, ds.Bars[0])

	require.True(t, ds.HasSignals())
	assert.Equal(t, []types.Signal{{}, {Buy: true}}, ds.Signals)

	rsi, ok := ds.Columns.Get("RSI")
	require.True(t, ok)
	assert.True(t, math.IsNaN(rsi[0]))
	assert.Equal(t, 25.5, rsi[1])

	ema, ok := ds.Columns.Get("EMA_20")
	require.True(t, ok)
	assert.Equal(t, []float64{1.4, 1.6}, ema)

	_, ok = ds.Columns.Get("Symbol")
	assert.False(t, ok, "non-numeric columns are dropped")
}

func TestLoadCSVHeaderCaseInsensitive(t *testing.T) {
	path := writeFile(t, "p.csv", " CLOSE ,timestamp\n5,1700000000\n")

	ds, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, ds.Bars[0].Close)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ds.Bars[0].Timestamp)
}

func TestLoadCSVErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing close", "open,high\n1,2\n", "required column"},
		{"empty file", "", "empty data file"},
		{"bad close", "close\n100\nabc\n", "line 3"},
		{"bad timestamp", "date,close\nyesterday,1\n", "invalid timestamp"},
		{"bad signal", "close,buy_signal,sell_signal\n1,maybe,false\n", "Buy_Signal"},
		{"short row", "close,open\n1,2\n3\n", "expected 2 fields"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "bad.csv", tt.content)
			_, err := LoadCSV(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		input string
		want  time.Time
	}{
		{"2024-03-05T12:30:00Z", want},
		{"2024-03-05 12:30:00", want},
		{"2024/03/05 12:30:00", want},
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"1709641800", want},
		{"1709641800000", want},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}

	_, err := ParseTimestamp("")
	assert.Error(t, err)
}

func TestLoadDispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()
	bars := types.BarsFromCloses(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour, []float64{1, 2, 3})

	pq := filepath.Join(dir, "bars.parquet")
	require.NoError(t, WriteParquet(pq, bars, nil))
	ds, err := Load(pq)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, types.Closes(ds.Bars))

	csvPath := writeFile(t, "bars.csv", "close\n4\n")
	ds, err = Load(csvPath)
	require.NoError(t, err)
	assert.Equal(t, []float64{4}, types.Closes(ds.Bars))
}
