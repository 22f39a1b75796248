package logging

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"strategylab/internal/config"
	"strategylab/internal/types"
)

// Logger wraps logrus logger with a component field
type Logger struct {
	*logrus.Logger
	component string
}

// Log levels
const (
	DebugLevel = logrus.DebugLevel
	InfoLevel  = logrus.InfoLevel
	ErrorLevel = logrus.ErrorLevel
)

// Global logger instance
var globalLogger *Logger

// NewLogger creates a new logger with the given configuration
func NewLogger(cfg config.LoggingConfig) *Logger {
	logger := logrus.New()

	// Set log level
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Set formatter
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	// Set output
	var output io.Writer
	switch cfg.Output {
	case "file":
		output = createFileWriter(cfg)
	case "both":
		output = io.MultiWriter(os.Stdout, createFileWriter(cfg))
	default:
		output = os.Stdout
	}
	logger.SetOutput(output)

	return &Logger{
		Logger: logger,
	}
}

// NewWithWriter creates a logger writing to w, mostly for tests
func NewWithWriter(w io.Writer, level logrus.Level) *Logger {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	return &Logger{Logger: logger}
}

// createFileWriter creates a rotating file writer
func createFileWriter(cfg config.LoggingConfig) io.Writer {
	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		fmt.Printf("Warning: Failed to create log directory: %v\n", err)
		return os.Stdout
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, "strategylab.log"),
		MaxSize:    cfg.MaxSize, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // days
		Compress:   cfg.Compress,
	}
}

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg config.LoggingConfig) {
	globalLogger = NewLogger(cfg)
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		globalLogger = NewLogger(config.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		})
	}
	return globalLogger
}

// NewComponentLogger creates a logger for a specific component
func NewComponentLogger(component string) *Logger {
	return GetGlobalLogger().Component(component)
}

// Component returns a logger sharing l's output that tags entries with component
func (l *Logger) Component(component string) *Logger {
	return &Logger{
		Logger:    l.Logger,
		component: component,
	}
}

// entry returns a logrus entry carrying the component field, if any
func (l *Logger) entry() *logrus.Entry {
	if l.component != "" {
		return l.Logger.WithField("component", l.component)
	}
	return logrus.NewEntry(l.Logger)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.entry().Debugf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(args ...interface{}) {
	l.entry().Info(args...)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.entry().Infof(format, args...)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.entry().Warnf(format, args...)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.entry().Errorf(format, args...)
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.entry().WithFields(fields)
}

// WithField adds a single field to the logger
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.entry().WithField(key, value)
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry().WithError(err)
}

// Backtest-specific logging methods

// LogTrade logs one simulated round-trip, or an entry still open after the last bar
func (l *Logger) LogTrade(symbol string, trade types.Trade) {
	fields := logrus.Fields{
		"event":       "trade",
		"symbol":      symbol,
		"entry_index": trade.EntryIndex,
		"entry_price": trade.EntryPrice,
		"quantity":    trade.Quantity,
		"entry_fee":   trade.EntryFee,
		"reason":      string(trade.Reason),
	}
	if !trade.IsOpen() {
		fields["exit_index"] = trade.ExitIndex
		fields["exit_price"] = trade.ExitPrice
		fields["exit_fee"] = trade.ExitFee
		fields["pnl"] = trade.PnL
		fields["return_pct"] = trade.ReturnPct() * 100
	}
	l.WithFields(fields).Debug("Trade simulated")
}

// LogPerformance logs the metrics of a finished run. NaN metrics are logged as "N/A".
func (l *Logger) LogPerformance(finalValue float64, tradeCount int, metrics map[string]float64) {
	fields := logrus.Fields{
		"event":       "performance",
		"final_value": finalValue,
		"trade_count": tradeCount,
	}
	for k, v := range metrics {
		if math.IsNaN(v) {
			fields[k] = "N/A"
		} else {
			fields[k] = v
		}
	}
	l.WithFields(fields).Info("Performance metrics computed")
}

// LogTrial logs one hyperparameter trial
func (l *Logger) LogTrial(studyID string, number int, params map[string]interface{}, objective float64, err error) {
	fields := logrus.Fields{
		"event":  "trial",
		"study":  studyID,
		"number": number,
	}
	for k, v := range params {
		fields[k] = v
	}
	if err != nil {
		l.WithFields(fields).WithError(err).Warn("Trial failed")
		return
	}
	if math.IsNaN(objective) {
		fields["objective"] = "N/A"
	} else {
		fields["objective"] = objective
	}
	l.WithFields(fields).Debug("Trial finished")
}

// LogError logs an error with context
func (l *Logger) LogError(operation string, err error, context map[string]interface{}) {
	fields := logrus.Fields{
		"event":     "error",
		"operation": operation,
		"error":     err.Error(),
	}
	for k, v := range context {
		fields[k] = v
	}
	l.WithFields(fields).Error("Operation failed")
}

// CreateDataLogger creates a logger for data loading
func CreateDataLogger() *Logger {
	return NewComponentLogger("data")
}

// CreateBacktestLogger creates a logger for simulation runs
func CreateBacktestLogger() *Logger {
	return NewComponentLogger("backtest")
}

// CreateOptimizeLogger creates a logger for hyperparameter search
func CreateOptimizeLogger() *Logger {
	return NewComponentLogger("optimize")
}
