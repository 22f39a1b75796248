package data

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"strategylab/internal/types"
)

// Timeframe is a bar interval such as "1h" or "1d"
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
)

// Interval returns the duration of the timeframe. Besides the named
// constants any time.ParseDuration string is accepted.
func (tf Timeframe) Interval() (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(string(tf)))
	switch Timeframe(s) {
	case Timeframe1d:
		return 24 * time.Hour, nil
	case Timeframe1w:
		return 7 * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeframe %q: %w", tf, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q: must be positive", tf)
	}
	return d, nil
}

// Resample aggregates bars into buckets of the given timeframe. Each bucket
// opens with the first bar's Open, closes with the last bar's Close, takes the
// extreme High/Low and sums Volume. Bars must carry timestamps.
func Resample(bars []types.Bar, tf Timeframe) ([]types.Bar, error) {
	interval, err := tf.Interval()
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}

	sorted := sort.SliceIsSorted(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
	if !sorted {
		return nil, fmt.Errorf("bars must be in ascending timestamp order")
	}

	var (
		out     []types.Bar
		current *types.Bar
	)
	for i, bar := range bars {
		if bar.Timestamp.IsZero() {
			return nil, fmt.Errorf("bar %d has no timestamp", i)
		}
		bucket := alignTimeToTimeframe(bar.Timestamp, interval)

		// Close the current bucket and start a new one
		if current == nil || !bucket.Equal(current.Timestamp) {
			if current != nil {
				out = append(out, *current)
			}
			current = &types.Bar{
				Timestamp: bucket,
				Open:      bar.Open,
				High:      bar.High,
				Low:       bar.Low,
				Close:     bar.Close,
				Volume:    bar.Volume,
			}
			continue
		}

		current.High = max(current.High, bar.High)
		current.Low = min(current.Low, bar.Low)
		current.Close = bar.Close
		current.Volume += bar.Volume
	}
	out = append(out, *current)

	return out, nil
}

// alignTimeToTimeframe aligns a timestamp to the start of a timeframe interval
func alignTimeToTimeframe(t time.Time, interval time.Duration) time.Time {
	return t.Truncate(interval)
}
