package data

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"strategylab/internal/types"
)

// BarRecord is the Parquet row layout of a bar
type BarRecord struct {
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     float64 `parquet:"volume"`
	BuySignal  bool    `parquet:"buy_signal"`
	SellSignal bool    `parquet:"sell_signal"`
}

// priceRecord is the row layout of a file without signal columns
type priceRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// LoadParquet reads a bar series written by WriteParquet. Signals are set
// whenever the file carries both signal columns, even if no flag fires.
func LoadParquet(path string) (*Dataset, error) {
	withSignals, err := hasSignalColumns(path)
	if err != nil {
		return nil, err
	}

	var records []BarRecord
	if withSignals {
		records, err = parquet.ReadFile[BarRecord](path)
	} else {
		records, err = readPriceRecords(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet file: %w", err)
	}

	ds := &Dataset{
		Path:   path,
		Symbol: symbolFromPath(path),
		Bars:   make([]types.Bar, len(records)),
	}
	if withSignals {
		ds.Signals = make([]types.Signal, len(records))
	}
	for i, r := range records {
		ds.Bars[i] = types.Bar{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
		if withSignals {
			ds.Signals[i] = types.Signal{Buy: r.BuySignal, Sell: r.SellSignal}
		}
	}
	return ds, nil
}

// hasSignalColumns reports whether the file schema has buy_signal and sell_signal
func hasSignalColumns(path string) (bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return false, fmt.Errorf("failed to open parquet file: %w", err)
	}
	_, buy := pf.Schema().Lookup("buy_signal")
	_, sell := pf.Schema().Lookup("sell_signal")
	return buy && sell, nil
}

func readPriceRecords(path string) ([]BarRecord, error) {
	rows, err := parquet.ReadFile[priceRecord](path)
	if err != nil {
		return nil, err
	}
	records := make([]BarRecord, len(rows))
	for i, r := range rows {
		records[i] = BarRecord{
			Timestamp: r.Timestamp,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return records, nil
}

// WriteParquet writes bars to a Parquet file. The signal columns are
// written only when signals is non-nil.
func WriteParquet(path string, bars []types.Bar, signals []types.Signal) error {
	if signals != nil && len(signals) != len(bars) {
		return fmt.Errorf("signals length %d does not match bars length %d", len(signals), len(bars))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	if signals == nil {
		rows := make([]priceRecord, len(bars))
		for i, b := range bars {
			rows[i] = priceRecord{
				Timestamp: b.Timestamp.UnixMilli(),
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			}
		}
		return parquet.WriteFile(path, rows)
	}

	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = BarRecord{
			Timestamp:  b.Timestamp.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			BuySignal:  signals[i].Buy,
			SellSignal: signals[i].Sell,
		}
	}
	return parquet.WriteFile(path, records)
}
