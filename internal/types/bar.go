package types

import (
	"time"
)

// Bar is one timestamped price observation. Only Close is required by the
// engine; the remaining OHLCV fields are carried when the source provides them.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open,omitempty"`
	High      float64   `json:"high,omitempty"`
	Low       float64   `json:"low,omitempty"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume,omitempty"`
}

// NewBar creates a close-only bar
func NewBar(timestamp time.Time, close float64) Bar {
	return Bar{
		Timestamp: timestamp,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
	}
}

// Closes extracts the closing prices of bars in order
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}
	return closes
}

// Timestamps extracts the timestamps of bars in order
func Timestamps(bars []Bar) []time.Time {
	times := make([]time.Time, len(bars))
	for i, bar := range bars {
		times[i] = bar.Timestamp
	}
	return times
}

// BarsFromCloses builds bars from a close series spaced by step, starting at start.
func BarsFromCloses(start time.Time, step time.Duration, closes []float64) []Bar {
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = NewBar(start.Add(time.Duration(i)*step), c)
	}
	return bars
}
