package backtest

import (
	"fmt"
	"time"
)

// ValidationError reports a malformed input or an out-of-range parameter.
// It is returned before any simulation state exists.
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s (%v): %s", e.Field, e.Value, e.Reason)
}

// DataError reports a bar that cannot be simulated, such as a non-positive close.
type DataError struct {
	Index     int
	Timestamp time.Time
	Price     float64
}

func (e *DataError) Error() string {
	if e.Timestamp.IsZero() {
		return fmt.Sprintf("invalid close price %v at bar %d", e.Price, e.Index)
	}
	return fmt.Sprintf("invalid close price %v at bar %d (%s)",
		e.Price, e.Index, e.Timestamp.Format(time.RFC3339))
}
