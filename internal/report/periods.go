package report

import (
	"fmt"
	"math"
	"time"
)

// Period is a calendar bucket for compounding returns
type Period string

const (
	Monthly   Period = "monthly"
	Quarterly Period = "quarterly"
	Annual    Period = "annual"
)

// Periods lists the buckets in report order
var Periods = []Period{Monthly, Quarterly, Annual}

// Title returns the table heading for the period
func (p Period) Title() string {
	switch p {
	case Monthly:
		return "Monthly Returns"
	case Quarterly:
		return "Quarterly Returns"
	case Annual:
		return "Annual Returns"
	}
	return string(p) + " Returns"
}

// PeriodReturn is the compounded return of one calendar bucket
type PeriodReturn struct {
	Label  string    `json:"label"`
	Start  time.Time `json:"start"`
	Return float64   `json:"return"`
}

// bucketStart returns the first instant of the bucket containing t
func (p Period) bucketStart(t time.Time) (time.Time, error) {
	t = t.UTC()
	switch p {
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	case Quarterly:
		month := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), month, 1, 0, 0, 0, 0, time.UTC), nil
	case Annual:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("unknown period %q", p)
}

func (p Period) label(start time.Time) string {
	switch p {
	case Monthly:
		return start.Format("2006-01")
	case Quarterly:
		return fmt.Sprintf("%d-Q%d", start.Year(), (int(start.Month())-1)/3+1)
	}
	return start.Format("2006")
}

// PeriodReturns compounds the per-step returns of values into calendar
// buckets, prod(1+r)-1. A step's return is assigned to the bucket of its
// ending timestamp; undefined steps (0/0) are skipped. Buckets with no
// return are omitted.
func PeriodReturns(times []time.Time, values []float64, period Period) ([]PeriodReturn, error) {
	if len(times) != len(values) {
		return nil, fmt.Errorf("times length %d does not match values length %d", len(times), len(values))
	}
	if _, err := period.bucketStart(time.Time{}); err != nil {
		return nil, err
	}

	var out []PeriodReturn
	for i := 1; i < len(values); i++ {
		if times[i].IsZero() {
			return nil, fmt.Errorf("value %d has no timestamp", i)
		}
		r := values[i]/values[i-1] - 1
		if math.IsNaN(r) {
			continue
		}

		start, _ := period.bucketStart(times[i])
		if len(out) == 0 || !out[len(out)-1].Start.Equal(start) {
			out = append(out, PeriodReturn{Label: period.label(start), Start: start, Return: 1})
		}
		out[len(out)-1].Return *= 1 + r
	}

	for i := range out {
		out[i].Return--
	}
	return out, nil
}
