package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"strategylab/internal/backtest"
	"strategylab/internal/indicators"
	"strategylab/internal/signals"
)

// Config represents the complete application configuration
type Config struct {
	App        AppConfig         `json:"app" yaml:"app"`
	Data       DataConfig        `json:"data" yaml:"data"`
	Indicators indicators.Params `json:"indicators" yaml:"indicators"`
	Signals    signals.Params    `json:"signals" yaml:"signals"`
	Risk       RiskConfig        `json:"risk" yaml:"risk"`
	Backtest   BacktestConfig    `json:"backtest" yaml:"backtest"`
	Optimize   OptimizeConfig    `json:"optimize" yaml:"optimize"`
	Storage    StorageConfig     `json:"storage" yaml:"storage"`
	Logging    LoggingConfig     `json:"logging" yaml:"logging"`
}

// AppConfig contains basic application configuration
type AppConfig struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Environment string `json:"environment" yaml:"environment" validate:"oneof=development production test"`
	Debug       bool   `json:"debug" yaml:"debug"`
}

// DataConfig describes the input bar file
type DataConfig struct {
	File           string `json:"file" yaml:"file"`
	Symbol         string `json:"symbol" yaml:"symbol"`
	UseFileSignals bool   `json:"use_file_signals" yaml:"use_file_signals"` // use Buy_Signal/Sell_Signal columns from the file
	Resample       string `json:"resample" yaml:"resample"`                 // e.g. "4h"; empty keeps the file's interval
}

// RiskConfig contains transaction cost and exit rules
type RiskConfig struct {
	TransactionFee float64 `json:"transaction_fee" yaml:"transaction_fee" validate:"gte=0,lt=1"`
	StopLoss       float64 `json:"stop_loss" yaml:"stop_loss" validate:"gte=0"`     // 0 disables
	TakeProfit     float64 `json:"take_profit" yaml:"take_profit" validate:"gte=0"` // 0 disables
}

// Parameters converts the risk config to engine parameters
func (r RiskConfig) Parameters() backtest.RiskParameters {
	params := backtest.RiskParameters{FeeRate: r.TransactionFee}
	if r.StopLoss > 0 {
		params.StopLossPct = backtest.Pct(r.StopLoss)
	}
	if r.TakeProfit > 0 {
		params.TakeProfitPct = backtest.Pct(r.TakeProfit)
	}
	return params
}

// BacktestConfig contains backtesting configuration
type BacktestConfig struct {
	InitialBalance   float64 `json:"initial_balance" yaml:"initial_balance" validate:"gt=0"`
	RiskFreeRate     float64 `json:"risk_free_rate" yaml:"risk_free_rate"`
	ResultsDirectory string  `json:"results_directory" yaml:"results_directory"`
	ExportTrades     bool    `json:"export_trades" yaml:"export_trades"`
	ExportValues     bool    `json:"export_values" yaml:"export_values"`
	HistogramBins    int     `json:"histogram_bins" yaml:"histogram_bins" validate:"gte=0"`
}

// IntRange is an inclusive integer search range
type IntRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// FloatRange is an inclusive float search range
type FloatRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// OptimizeConfig contains hyperparameter search configuration
type OptimizeConfig struct {
	Trials     int        `json:"trials" yaml:"trials" validate:"gte=1"`
	Workers    int        `json:"workers" yaml:"workers" validate:"gte=0"` // 0 uses GOMAXPROCS
	Seed       int64      `json:"seed" yaml:"seed"`
	RSIPeriod  IntRange   `json:"rsi_period" yaml:"rsi_period"`
	EMASpan    IntRange   `json:"ema_span" yaml:"ema_span"`
	RSIBuy     IntRange   `json:"rsi_buy" yaml:"rsi_buy"`
	RSISell    IntRange   `json:"rsi_sell" yaml:"rsi_sell"`
	StopLoss   FloatRange `json:"stop_loss" yaml:"stop_loss"`
	TakeProfit FloatRange `json:"take_profit" yaml:"take_profit"`
}

// StorageConfig contains persistence configuration
type StorageConfig struct {
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"` // empty disables trial persistence
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Output
	Level     string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format    string `json:"format" yaml:"format" validate:"oneof=json text"`
	Output    string `json:"output" yaml:"output" validate:"oneof=stdout file both"`
	Directory string `json:"directory" yaml:"directory"`

	// File rotation
	MaxSize    int  `json:"max_size" yaml:"max_size"`       // Max MB per file
	MaxBackups int  `json:"max_backups" yaml:"max_backups"` // Max number of old files
	MaxAge     int  `json:"max_age" yaml:"max_age"`         // Max days to retain
	Compress   bool `json:"compress" yaml:"compress"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "strategylab",
			Environment: "development",
		},
		Data: DataConfig{
			File: "data/BTCUSDT_1h.csv",
		},
		Indicators: indicators.DefaultParams(),
		Signals:    signals.DefaultParams(),
		Risk: RiskConfig{
			TransactionFee: 0.00125, // 0.125% per trade
		},
		Backtest: BacktestConfig{
			InitialBalance:   10000.0,
			ResultsDirectory: "./backtest_results",
			ExportTrades:     true,
			ExportValues:     true,
			HistogramBins:    50,
		},
		Optimize: OptimizeConfig{
			Trials:     50,
			Seed:       1,
			RSIPeriod:  IntRange{Min: 7, Max: 21},
			EMASpan:    IntRange{Min: 10, Max: 50},
			RSIBuy:     IntRange{Min: 20, Max: 40},
			RSISell:    IntRange{Min: 60, Max: 80},
			StopLoss:   FloatRange{Min: 0.01, Max: 0.05},
			TakeProfit: FloatRange{Min: 0.01, Max: 0.1},
		},
		Storage: StorageConfig{
			SQLitePath: "./backtest_results/trials.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			Directory:  "./logs",
			MaxSize:    100, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file. A missing file is created with
// the defaults. YAML is used for .yaml/.yml paths, JSON otherwise.
// Environment overrides (and a .env file, if present) are applied last.
func LoadConfig(configPath string) (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := unmarshal(configPath, data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := marshal(configPath, config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func unmarshal(path string, data []byte, config *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, config)
	}
	return json.Unmarshal(data, config)
}

func marshal(path string, config *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(config)
	}
	return json.MarshalIndent(config, "", "  ")
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("STRATEGYLAB_DATA_FILE"); v != "" {
		cfg.Data.File = v
	}
	if v := os.Getenv("STRATEGYLAB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STRATEGYLAB_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("STRATEGYLAB_FEE"); v != "" {
		fee, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid STRATEGYLAB_FEE: %w", err)
		}
		cfg.Risk.TransactionFee = fee
	}
	if v := os.Getenv("STRATEGYLAB_INITIAL_BALANCE"); v != "" {
		balance, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid STRATEGYLAB_INITIAL_BALANCE: %w", err)
		}
		cfg.Backtest.InitialBalance = balance
	}
	return nil
}

var validate = validator.New()

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Indicators.RSIPeriod < 1 {
		return fmt.Errorf("rsi period must be positive")
	}
	if c.Indicators.EMASpan < 1 {
		return fmt.Errorf("ema span must be positive")
	}
	if c.Signals.RSIBuy >= c.Signals.RSISell {
		return fmt.Errorf("rsi buy threshold (%v) must be below rsi sell threshold (%v)",
			c.Signals.RSIBuy, c.Signals.RSISell)
	}

	// Validate search ranges
	for name, r := range map[string]IntRange{
		"rsi_period": c.Optimize.RSIPeriod,
		"ema_span":   c.Optimize.EMASpan,
		"rsi_buy":    c.Optimize.RSIBuy,
		"rsi_sell":   c.Optimize.RSISell,
	} {
		if r.Min > r.Max {
			return fmt.Errorf("optimize.%s: min %d exceeds max %d", name, r.Min, r.Max)
		}
	}
	if c.Optimize.RSIPeriod.Min < 1 || c.Optimize.EMASpan.Min < 1 {
		return fmt.Errorf("optimize periods must be positive")
	}
	for name, r := range map[string]FloatRange{
		"stop_loss":   c.Optimize.StopLoss,
		"take_profit": c.Optimize.TakeProfit,
	} {
		if r.Min > r.Max {
			return fmt.Errorf("optimize.%s: min %v exceeds max %v", name, r.Min, r.Max)
		}
		if r.Min <= 0 {
			return fmt.Errorf("optimize.%s: min must be positive", name)
		}
	}

	if c.Logging.Output != "stdout" && c.Logging.Directory == "" {
		return fmt.Errorf("logging directory is required for %s output", c.Logging.Output)
	}

	return nil
}

// GetEnv returns environment variable with default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
