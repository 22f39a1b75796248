package main

import (
	"bytes"
	"io"
	"strings"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/config"
	"strategylab/internal/data"
	"strategylab/internal/indicators"
	"strategylab/internal/logging"
	"strategylab/internal/signals"
	"strategylab/internal/types"
)

func setupGlobals(t *testing.T) {
	t.Helper()
	cfg = config.DefaultConfig()
	logger = logging.NewWithWriter(io.Discard, logging.ErrorLevel)
}

func writeBars(t *testing.T, n int, sigs []types.Signal) string {
	t.Helper()
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i%7)
	}
	bars := types.BarsFromCloses(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour, closes)
	path := filepath.Join(t.TempDir(), "btc_1h.parquet")
	require.NoError(t, data.WriteParquet(path, bars, sigs))
	return path
}

func TestLoadBarsResamples(t *testing.T) {
	setupGlobals(t)
	cfg.Data.File = writeBars(t, 8, nil)
	cfg.Data.Resample = "4h"

	bars, ds, err := loadBars()
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Len(t, ds.Bars, 8)
	assert.Empty(t, ds.Columns)
}

func TestLoadBarsRejectsResampledFileSignals(t *testing.T) {
	setupGlobals(t)
	cfg.Data.File = writeBars(t, 8, nil)
	cfg.Data.Resample = "4h"
	cfg.Data.UseFileSignals = true

	_, _, err := loadBars()
	assert.Error(t, err)
}

func TestSymbolOf(t *testing.T) {
	setupGlobals(t)
	ds := &data.Dataset{Symbol: "BTC"}

	// no configured symbol falls back to the one taken from the file name
	require.Empty(t, cfg.Data.Symbol)
	assert.Equal(t, "BTC", symbolOf(ds))
	cfg.Data.Symbol = "ETHUSDT"
	assert.Equal(t, "ETHUSDT", symbolOf(ds))
}

func TestBuildSignalsFromFile(t *testing.T) {
	setupGlobals(t)
	sigs := make([]types.Signal, 10)
	sigs[2].Buy = true
	sigs[6].Sell = true
	cfg.Data.File = writeBars(t, 10, sigs)
	cfg.Data.UseFileSignals = true

	bars, ds, err := loadBars()
	require.NoError(t, err)

	got, err := buildSignals(bars, ds, indicators.DefaultParams(), signals.Params{})
	require.NoError(t, err)
	assert.Equal(t, sigs, got)
}

func TestBuildSignalsAcceptsQuietFileColumns(t *testing.T) {
	setupGlobals(t)
	cfg.Data.File = writeBars(t, 10, make([]types.Signal, 10))
	cfg.Data.UseFileSignals = true

	bars, ds, err := loadBars()
	require.NoError(t, err)

	got, err := buildSignals(bars, ds, indicators.DefaultParams(), signals.Params{})
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestBuildSignalsNeedsFileColumns(t *testing.T) {
	setupGlobals(t)
	cfg.Data.File = writeBars(t, 10, nil)
	cfg.Data.UseFileSignals = true

	bars, ds, err := loadBars()
	require.NoError(t, err)

	_, err = buildSignals(bars, ds, indicators.DefaultParams(), signals.Params{})
	assert.Error(t, err)
}

func TestBuildSignalsComputed(t *testing.T) {
	setupGlobals(t)
	cfg.Data.File = writeBars(t, 60, nil)

	bars, ds, err := loadBars()
	require.NoError(t, err)

	got, err := buildSignals(bars, ds, indicators.Params{RSIPeriod: 5, EMASpan: 10}, signals.Params{RSIBuy: 30, RSISell: 70})
	require.NoError(t, err)
	assert.Len(t, got, len(bars))
}

func TestLogBarValuesOnlyAtDebug(t *testing.T) {
	bars := types.BarsFromCloses(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour, []float64{100, 101, 102})
	values := []float64{10000, 10100, 10200}

	var buf bytes.Buffer
	logBarValues(logging.NewWithWriter(&buf, logging.InfoLevel), bars, values)
	assert.Empty(t, buf.String())

	logBarValues(logging.NewWithWriter(&buf, logging.DebugLevel), bars, values)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "bar 1 close=101.0000 value=10100.0000")
}
