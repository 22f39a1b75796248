// Package metrics computes performance statistics over a portfolio value
// series. Undefined statistics are reported as NaN instead of failing, so a
// degenerate window never aborts a batch of evaluations.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// PeriodsPerYear is the fixed annualization factor. It is applied whatever
// the actual bar frequency is.
const PeriodsPerYear = 252

// Metric names used by Report.Map
const (
	KeyCalmar      = "Calmar"
	KeySharpe      = "Sharpe"
	KeySortino     = "Sortino"
	KeyMaxDrawdown = "Max_Drawdown"
	KeyWinRate     = "Win_Rate"
)

// Keys lists the metric names in reporting order
var Keys = []string{KeyCalmar, KeySharpe, KeySortino, KeyMaxDrawdown, KeyWinRate}

// Report holds the summary statistics of one value series
type Report struct {
	Calmar      float64 `json:"calmar"`
	Sharpe      float64 `json:"sharpe"`
	Sortino     float64 `json:"sortino"`
	MaxDrawdown float64 `json:"max_drawdown"`
	WinRate     float64 `json:"win_rate"`
}

// Map returns the report as a fixed-key mapping
func (r Report) Map() map[string]float64 {
	return map[string]float64{
		KeyCalmar:      r.Calmar,
		KeySharpe:      r.Sharpe,
		KeySortino:     r.Sortino,
		KeyMaxDrawdown: r.MaxDrawdown,
		KeyWinRate:     r.WinRate,
	}
}

// Compute derives the report from a value series. riskFreeRate is a
// per-year rate, spread evenly over PeriodsPerYear.
func Compute(values []float64, riskFreeRate float64) Report {
	returns := Returns(values)

	report := Report{
		MaxDrawdown: MaxDrawdown(values),
		Sharpe:      math.NaN(),
		Sortino:     math.NaN(),
		Calmar:      math.NaN(),
		WinRate:     WinRate(returns),
	}
	if len(returns) == 0 {
		return report
	}

	excess := stat.Mean(returns, nil) - riskFreeRate/PeriodsPerYear
	annualizer := math.Sqrt(PeriodsPerYear)

	report.Sharpe = ratio(excess, stdev(returns)) * annualizer

	downside := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) > 0 {
		report.Sortino = ratio(excess, stdev(downside)) * annualizer
	}

	if report.MaxDrawdown != 0 {
		report.Calmar = ratio(AnnualizedReturn(values), math.Abs(report.MaxDrawdown))
	}

	return report
}

// Returns computes per-step simple returns. Undefined steps (0/0) are dropped.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		r := values[i]/values[i-1] - 1
		if math.IsNaN(r) {
			continue
		}
		returns = append(returns, r)
	}
	return returns
}

// TotalReturn returns last/first - 1, or NaN for fewer than two values
func TotalReturn(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return values[len(values)-1]/values[0] - 1
}

// AnnualizedReturn compounds the total return to PeriodsPerYear steps
func AnnualizedReturn(values []float64) float64 {
	n := len(Returns(values))
	if n == 0 {
		return math.NaN()
	}
	return math.Pow(1+TotalReturn(values), float64(PeriodsPerYear)/float64(n)) - 1
}

// Drawdowns returns the fractional decline from the running peak at each step
func Drawdowns(values []float64) []float64 {
	drawdowns := make([]float64, len(values))
	peak := math.Inf(-1)
	for i, v := range values {
		if v > peak {
			peak = v
		}
		drawdowns[i] = (v - peak) / peak
	}
	return drawdowns
}

// MaxDrawdown returns the deepest drawdown (<= 0). It is 0 when the series
// never dips below its running peak and NaN for an empty series.
func MaxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	worst := math.NaN()
	for _, d := range Drawdowns(values) {
		if math.IsNaN(d) {
			continue
		}
		if math.IsNaN(worst) || d < worst {
			worst = d
		}
	}
	return worst
}

// WinRate returns the share of positive returns among the non-zero ones
func WinRate(returns []float64) float64 {
	var changed, wins int
	for _, r := range returns {
		if r == 0 {
			continue
		}
		changed++
		if r > 0 {
			wins++
		}
	}
	if changed == 0 {
		return math.NaN()
	}
	return float64(wins) / float64(changed)
}

// stdev is the sample standard deviation (n-1 denominator)
func stdev(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return stat.StdDev(values, nil)
}

// ratio divides, returning NaN when the denominator is zero or undefined
func ratio(num, den float64) float64 {
	if den == 0 || math.IsNaN(den) || math.IsNaN(num) {
		return math.NaN()
	}
	return num / den
}
