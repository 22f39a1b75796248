// Package report renders backtest results as text and exports them as
// JSON, CSV and Parquet files.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"strategylab/internal/backtest"
	"strategylab/internal/logging"
	"strategylab/internal/metrics"
	"strategylab/internal/store"
	"strategylab/internal/types"
)

// FormatMetric renders a metric with four decimals, or N/A when undefined
func FormatMetric(v float64) string {
	if math.IsNaN(v) {
		return "N/A"
	}
	return fmt.Sprintf("%.4f", v)
}

// WriteMetrics writes one "Name: value" line per metric in canonical order
func WriteMetrics(w io.Writer, report metrics.Report) error {
	values := report.Map()
	for _, key := range metrics.Keys {
		if _, err := fmt.Fprintf(w, "%s: %s\n", key, FormatMetric(values[key])); err != nil {
			return err
		}
	}
	return nil
}

// Summary collects everything reported about one backtest run
type Summary struct {
	Symbol         string
	GeneratedAt    time.Time
	InitialBalance float64
	FinalValue     float64
	TotalReturn    float64
	Metrics        metrics.Report
	Trades         []types.Trade
	Times          []time.Time
	Values         []float64
	PeriodReturns  map[Period][]PeriodReturn // empty when bars have no timestamps
	Histogram      Histogram
}

// NewSummary builds the summary of a simulation over bars
func NewSummary(symbol string, bars []types.Bar, result *backtest.Result, initialBalance, riskFreeRate float64, histogramBins int) *Summary {
	s := &Summary{
		Symbol:         symbol,
		GeneratedAt:    time.Now(),
		InitialBalance: initialBalance,
		FinalValue:     result.FinalValue(initialBalance),
		Metrics:        metrics.Compute(result.Values, riskFreeRate),
		Trades:         result.Trades,
		Times:          types.Timestamps(bars),
		Values:         result.Values,
		PeriodReturns:  make(map[Period][]PeriodReturn),
		Histogram:      NewHistogram(metrics.Returns(result.Values), histogramBins),
	}
	s.TotalReturn = s.FinalValue/initialBalance - 1

	if hasTimestamps(s.Times) {
		for _, p := range Periods {
			table, err := PeriodReturns(s.Times, s.Values, p)
			if err != nil {
				break
			}
			s.PeriodReturns[p] = table
		}
	}
	return s
}

func hasTimestamps(times []time.Time) bool {
	if len(times) == 0 {
		return false
	}
	for _, t := range times {
		if t.IsZero() {
			return false
		}
	}
	return true
}

// ClosedTrades returns the number of trades with an exit
func (s *Summary) ClosedTrades() int {
	n := 0
	for _, t := range s.Trades {
		if !t.IsOpen() {
			n++
		}
	}
	return n
}

// WriteText writes the human-readable report
func (s *Summary) WriteText(w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("Strategy Performance: %s\n", s.Symbol)
	ew.printf("Initial Balance: %.2f\n", s.InitialBalance)
	ew.printf("Final Value: %.2f\n", s.FinalValue)
	ew.printf("Total Return: %s%%\n", FormatMetric(s.TotalReturn*100))
	ew.printf("Trades: %d (%d closed)\n\n", len(s.Trades), s.ClosedTrades())

	ew.printf("Performance Metrics:\n")
	if ew.err == nil {
		ew.err = WriteMetrics(w, s.Metrics)
	}
	ew.printf("\n")

	for _, p := range Periods {
		table, ok := s.PeriodReturns[p]
		if !ok {
			continue
		}
		ew.printf("%s:\n", p.Title())
		for _, row := range table {
			ew.printf("%-8s %10.4f\n", row.Label, row.Return)
		}
		ew.printf("\n")
	}

	if len(s.Histogram.Counts) > 0 {
		ew.printf("Distribution of Returns (%d observations):\n", s.Histogram.Total())
		if ew.err == nil {
			ew.err = s.Histogram.WriteText(w, 40)
		}
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// summaryJSON mirrors Summary with undefined numbers encoded as null
type summaryJSON struct {
	Symbol         string                    `json:"symbol"`
	GeneratedAt    time.Time                 `json:"generated_at"`
	InitialBalance float64                   `json:"initial_balance"`
	FinalValue     float64                   `json:"final_value"`
	TotalReturn    *float64                  `json:"total_return"`
	Metrics        map[string]*float64       `json:"metrics"`
	TradeCount     int                       `json:"trade_count"`
	Trades         []types.Trade             `json:"trades"`
	PeriodReturns  map[Period][]PeriodReturn `json:"period_returns,omitempty"`
	Histogram      Histogram                 `json:"histogram"`
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// MarshalJSON encodes NaN metrics as null
func (s *Summary) MarshalJSON() ([]byte, error) {
	out := summaryJSON{
		Symbol:         s.Symbol,
		GeneratedAt:    s.GeneratedAt,
		InitialBalance: s.InitialBalance,
		FinalValue:     s.FinalValue,
		TotalReturn:    nullable(s.TotalReturn),
		Metrics:        make(map[string]*float64, len(metrics.Keys)),
		TradeCount:     len(s.Trades),
		Trades:         s.Trades,
		PeriodReturns:  s.PeriodReturns,
		Histogram:      s.Histogram,
	}
	for k, v := range s.Metrics.Map() {
		out.Metrics[k] = nullable(v)
	}
	if out.Trades == nil {
		out.Trades = []types.Trade{}
	}
	return json.Marshal(out)
}

// SaveJSON saves the summary as indented JSON
func (s *Summary) SaveJSON(filename string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}

// ExportTradesCSV exports trades to CSV
func (s *Summary) ExportTradesCSV(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create trades file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	// Write header
	header := []string{"EntryIndex", "EntryTime", "EntryPrice", "ExitIndex", "ExitTime", "ExitPrice",
		"Quantity", "EntryFee", "ExitFee", "PnL", "ReturnPct", "Reason"}
	if err := writer.Write(header); err != nil {
		return err
	}

	// Write trades
	for _, trade := range s.Trades {
		record := []string{
			strconv.Itoa(trade.EntryIndex),
			formatTime(trade.EntryTime),
			fmt.Sprintf("%.6f", trade.EntryPrice),
			"", "", "",
			fmt.Sprintf("%.8f", trade.Quantity),
			fmt.Sprintf("%.4f", trade.EntryFee),
			"", "", "",
			string(trade.Reason),
		}
		if !trade.IsOpen() {
			record[3] = strconv.Itoa(trade.ExitIndex)
			record[4] = formatTime(trade.ExitTime)
			record[5] = fmt.Sprintf("%.6f", trade.ExitPrice)
			record[8] = fmt.Sprintf("%.4f", trade.ExitFee)
			record[9] = fmt.Sprintf("%.4f", trade.PnL)
			record[10] = fmt.Sprintf("%.4f", trade.ReturnPct()*100)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportValuesCSV exports the portfolio value series with its drawdown
func (s *Summary) ExportValuesCSV(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create values file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"Index", "Timestamp", "Value", "Drawdown"}); err != nil {
		return err
	}

	drawdowns := metrics.Drawdowns(s.Values)
	for i, v := range s.Values {
		ts := ""
		if i < len(s.Times) {
			ts = formatTime(s.Times[i])
		}
		record := []string{
			strconv.Itoa(i),
			ts,
			strconv.FormatFloat(v, 'f', -1, 64),
			fmt.Sprintf("%.6f", drawdowns[i]),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// ExportOptions selects the optional files written by SaveResults
type ExportOptions struct {
	Trades bool
	Values bool // CSV and Parquet value series
}

// SaveResults writes a time-stamped bundle of result files to dir and
// returns the paths written
func (s *Summary) SaveResults(dir string, opts ExportOptions) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	timestamp := s.GeneratedAt.Format("20060102_150405")
	baseName := fmt.Sprintf("backtest_%s", timestamp)
	var written []string

	// Save JSON results
	jsonPath := filepath.Join(dir, baseName+".json")
	if err := s.SaveJSON(jsonPath); err != nil {
		return written, err
	}
	written = append(written, jsonPath)

	// Export trades if enabled
	if opts.Trades {
		path := filepath.Join(dir, baseName+"_trades.csv")
		if err := s.ExportTradesCSV(path); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	// Export value series if enabled
	if opts.Values {
		path := filepath.Join(dir, baseName+"_values.csv")
		if err := s.ExportValuesCSV(path); err != nil {
			return written, err
		}
		written = append(written, path)

		pq := store.NewParquetStore(dir)
		if err := pq.WriteValues(baseName+"_values.parquet", s.Times, s.Values); err != nil {
			return written, fmt.Errorf("failed to write parquet values: %w", err)
		}
		written = append(written, pq.Path(baseName+"_values.parquet"))
	}

	logging.NewComponentLogger("report").Infof("Results saved to %s", dir)
	return written, nil
}
