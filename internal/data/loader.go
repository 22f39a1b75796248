// Package data loads bar series from CSV and Parquet files.
package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"strategylab/internal/indicators"
	"strategylab/internal/logging"
	"strategylab/internal/types"
)

// ErrFileNotFound is returned when the input file does not exist
var ErrFileNotFound = errors.New("data file not found")

// Column names recognized in input files, compared case-insensitively
const (
	ColumnClose      = "close"
	ColumnOpen       = "open"
	ColumnHigh       = "high"
	ColumnLow        = "low"
	ColumnVolume     = "volume"
	ColumnBuySignal  = "buy_signal"
	ColumnSellSignal = "sell_signal"
)

var timestampColumns = []string{"timestamp", "date", "time", "datetime", "unix"}

var timestampFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

// Dataset is a loaded bar series plus whatever else the file carried
type Dataset struct {
	Path    string
	Symbol  string
	Bars    []types.Bar
	Signals []types.Signal // nil unless the file had both signal columns
	Columns indicators.Set // other numeric columns, keyed by their header name
}

// Len returns the number of bars
func (d *Dataset) Len() int {
	return len(d.Bars)
}

// HasSignals reports whether the file carried precomputed buy/sell columns
func (d *Dataset) HasSignals() bool {
	return d.Signals != nil
}

// Load reads a dataset, choosing the format from the file extension
func Load(path string) (*Dataset, error) {
	var (
		ds  *Dataset
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		ds, err = LoadParquet(path)
	default:
		ds, err = LoadCSV(path)
	}
	if err != nil {
		return nil, err
	}

	logging.CreateDataLogger().WithFields(map[string]interface{}{
		"path":    path,
		"rows":    ds.Len(),
		"columns": len(ds.Columns),
		"signals": ds.HasSignals(),
	}).Info("Data loaded successfully")

	return ds, nil
}

// columnLayout records where each known column sits in a CSV header
type columnLayout struct {
	timestamp int
	close     int
	open      int
	high      int
	low       int
	volume    int
	buy       int
	sell      int
	extra     map[int]string
}

func newColumnLayout(header []string) (*columnLayout, error) {
	layout := &columnLayout{
		timestamp: -1, close: -1, open: -1, high: -1, low: -1, volume: -1, buy: -1, sell: -1,
		extra: make(map[int]string),
	}

	for i, raw := range header {
		name := strings.TrimSpace(raw)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		switch lower := strings.ToLower(name); lower {
		case ColumnClose:
			layout.close = i
		case ColumnOpen:
			layout.open = i
		case ColumnHigh:
			layout.high = i
		case ColumnLow:
			layout.low = i
		case ColumnVolume:
			layout.volume = i
		case ColumnBuySignal:
			layout.buy = i
		case ColumnSellSignal:
			layout.sell = i
		default:
			if layout.timestamp < 0 && isTimestampColumn(lower) {
				layout.timestamp = i
				continue
			}
			if name != "" {
				layout.extra[i] = name
			}
		}
	}

	if layout.close < 0 {
		return nil, fmt.Errorf("invalid CSV header format: required column %q not found in %v", "Close", header)
	}
	return layout, nil
}

func isTimestampColumn(name string) bool {
	for _, c := range timestampColumns {
		if name == c {
			return true
		}
	}
	return false
}

// LoadCSV reads a bar series from a CSV file with a header row. Only a Close
// column is required. Buy_Signal/Sell_Signal columns are read as booleans and
// any other numeric column is kept in Dataset.Columns.
func LoadCSV(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	// Read and validate header
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty data file: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	layout, err := newColumnLayout(header)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Path:    path,
		Symbol:  symbolFromPath(path),
		Columns: make(indicators.Set),
	}
	withSignals := layout.buy >= 0 && layout.sell >= 0
	if withSignals {
		ds.Signals = make([]types.Signal, 0)
	}
	nonNumeric := make(map[int]bool)

	lineNumber := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNumber++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record at line %d: %w", lineNumber, err)
		}

		// Skip blank lines
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", lineNumber, len(header), len(record))
		}

		bar, err := parseBar(record, layout)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		ds.Bars = append(ds.Bars, bar)

		if withSignals {
			buy, err := parseBool(record[layout.buy])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid Buy_Signal: %w", lineNumber, err)
			}
			sell, err := parseBool(record[layout.sell])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid Sell_Signal: %w", lineNumber, err)
			}
			ds.Signals = append(ds.Signals, types.Signal{Buy: buy, Sell: sell})
		}

		for idx, name := range layout.extra {
			if nonNumeric[idx] {
				continue
			}
			v, err := parseOptionalFloat(record[idx])
			if err != nil {
				nonNumeric[idx] = true
				delete(ds.Columns, name)
				continue
			}
			ds.Columns[name] = append(ds.Columns[name], v)
		}
	}

	return ds, nil
}

// parseBar parses a single CSV record into a bar
func parseBar(record []string, layout *columnLayout) (types.Bar, error) {
	closeStr := strings.TrimSpace(record[layout.close])
	closePrice, err := strconv.ParseFloat(closeStr, 64)
	if err != nil {
		return types.Bar{}, fmt.Errorf("invalid close price: %q", closeStr)
	}

	var timestamp time.Time
	if layout.timestamp >= 0 {
		timestamp, err = ParseTimestamp(record[layout.timestamp])
		if err != nil {
			return types.Bar{}, err
		}
	}

	bar := types.NewBar(timestamp, closePrice)
	optional := []struct {
		index int
		name  string
		dst   *float64
	}{
		{layout.open, "open", &bar.Open},
		{layout.high, "high", &bar.High},
		{layout.low, "low", &bar.Low},
		{layout.volume, "volume", &bar.Volume},
	}
	for _, col := range optional {
		if col.index < 0 {
			continue
		}
		s := strings.TrimSpace(record[col.index])
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.Bar{}, fmt.Errorf("invalid %s: %q", col.name, s)
		}
		*col.dst = v
	}

	return bar, nil
}

// ParseTimestamp accepts the common date layouts plus unix seconds or milliseconds
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// 13 digits or more is milliseconds
		if len(strings.TrimPrefix(s, "-")) >= 13 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}

	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp format: %s", s)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "t", "yes":
		return true, nil
	case "false", "0", "f", "no", "":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

// parseOptionalFloat parses a numeric cell; empty and "nan" cells are NaN
func parseOptionalFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// symbolFromPath derives a symbol from a file name such as BTCUSDT_1h.csv
func symbolFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.Index(base, "_"); i > 0 {
		base = base[:i]
	}
	return strings.ToUpper(base)
}
