package report

import (
	"fmt"
	"io"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Histogram counts return observations in equal-width bins
type Histogram struct {
	Edges  []float64 `json:"edges"` // len(Counts)+1 boundaries
	Counts []int     `json:"counts"`
}

// NewHistogram bins the finite values into bins equal-width buckets over
// [min, max]; the last bucket includes max. A constant series is spread over
// [v-0.5, v+0.5]. No bins or no finite values give an empty histogram.
func NewHistogram(values []float64, bins int) Histogram {
	var finite []float64
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if bins <= 0 || len(finite) == 0 {
		return Histogram{}
	}

	lo, hi := floats.Min(finite), floats.Max(finite)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}

	width := (hi - lo) / float64(bins)
	h := Histogram{
		Edges:  make([]float64, bins+1),
		Counts: make([]int, bins),
	}
	for i := range h.Edges {
		h.Edges[i] = lo + float64(i)*width
	}
	h.Edges[bins] = hi

	for _, v := range finite {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		h.Counts[idx]++
	}
	return h
}

// Total returns the number of binned observations
func (h Histogram) Total() int {
	total := 0
	for _, c := range h.Counts {
		total += c
	}
	return total
}

// WriteText renders the histogram as a text table with proportional bars
func (h Histogram) WriteText(w io.Writer, barWidth int) error {
	peak := 0
	for _, c := range h.Counts {
		if c > peak {
			peak = c
		}
	}

	for i, c := range h.Counts {
		bar := ""
		if peak > 0 && barWidth > 0 {
			bar = strings.Repeat("#", c*barWidth/peak)
		}
		closing := ")"
		if i == len(h.Counts)-1 {
			closing = "]"
		}
		if _, err := fmt.Fprintf(w, "[%9.4f, %9.4f%s %6d %s\n", h.Edges[i], h.Edges[i+1], closing, c, bar); err != nil {
			return err
		}
	}
	return nil
}
