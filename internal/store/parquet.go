package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
)

// ValueRecord is one point of a portfolio value series
type ValueRecord struct {
	Index     int64   `parquet:"index"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, 0 when the bar had none
	Value     float64 `parquet:"value"`
}

// ParquetStore writes portfolio value series as Parquet files under DataDir.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at dataDir
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// Path resolves name against the store's data directory
func (s *ParquetStore) Path(name string) string {
	if filepath.IsAbs(name) || s.DataDir == "" {
		return name
	}
	return filepath.Join(s.DataDir, name)
}

// WriteValues writes a value series. times may be nil; otherwise it must be
// aligned with values.
func (s *ParquetStore) WriteValues(name string, times []time.Time, values []float64) error {
	if times != nil && len(times) != len(values) {
		return fmt.Errorf("times length %d does not match values length %d", len(times), len(values))
	}

	records := make([]ValueRecord, len(values))
	for i, v := range values {
		records[i] = ValueRecord{Index: int64(i), Value: v}
		if times != nil && !times[i].IsZero() {
			records[i].Timestamp = times[i].UnixMilli()
		}
	}
	return writeParquetFile(s.Path(name), records)
}

// ReadValues reads a series written by WriteValues
func (s *ParquetStore) ReadValues(name string) ([]time.Time, []float64, error) {
	records, err := readParquetFile[ValueRecord](s.Path(name))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read values: %w", err)
	}

	times := make([]time.Time, len(records))
	values := make([]float64, len(records))
	for i, r := range records {
		if r.Timestamp != 0 {
			times[i] = time.UnixMilli(r.Timestamp).UTC()
		}
		values[i] = r.Value
	}
	return times, values, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
