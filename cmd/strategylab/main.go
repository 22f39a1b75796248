package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"

	"strategylab/internal/backtest"
	"strategylab/internal/config"
	"strategylab/internal/data"
	"strategylab/internal/indicators"
	"strategylab/internal/logging"
	"strategylab/internal/optimize"
	"strategylab/internal/report"
	"strategylab/internal/signals"
	"strategylab/internal/store"
	"strategylab/internal/types"
)

const (
	// Application constants
	AppName           = "strategylab"
	AppVersion        = "1.0.0"
	DefaultConfigPath = "./config.yaml"
)

const (
	ModeBacktest = "backtest"
	ModeOptimize = "optimize"
)

var (
	// Command line flags
	configPath     = flag.String("config", config.GetEnv("STRATEGYLAB_CONFIG_PATH", DefaultConfigPath), "Path to configuration file (.yaml, .yml or .json)")
	dataPath       = flag.String("data", "", "Path to the bar file (.csv or .parquet), overrides data.file")
	mode           = flag.String("mode", ModeBacktest, "Run mode: backtest or optimize")
	trials         = flag.Int("trials", 0, "Number of optimization trials, overrides optimize.trials")
	useFileSignals = flag.Bool("use-file-signals", false, "Use the Buy_Signal/Sell_Signal columns of the data file")
	debugMode      = flag.Bool("debug", false, "Enable debug mode")
	version        = flag.Bool("version", false, "Show version information")
	help           = flag.Bool("help", false, "Show help information")

	// Global variables
	cfg    *config.Config
	logger *logging.Logger
)

// Application represents the main application
type Application struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func init() {
	// Set up command line parsing
	flag.Usage = printUsage
}

func main() {
	// Parse command line flags
	flag.Parse()

	// Handle version flag
	if *version {
		printVersion()
		os.Exit(0)
	}

	// Handle help flag
	if *help {
		printUsage()
		os.Exit(0)
	}

	// Initialize application
	app, err := initializeApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer app.cancel()

	// Run application
	if err := app.run(); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warnf("Run interrupted: %v", err)
			os.Exit(130)
		}
		logger.LogError(*mode, err, map[string]interface{}{"data_file": cfg.Data.File})
		os.Exit(1)
	}

	logger.Info("Run completed")
}

// initializeApplication loads configuration, sets up logging and signal handling
func initializeApplication() (*Application, error) {
	// Create application context
	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{
		ctx:    ctx,
		cancel: cancel,
	}

	// Load configuration
	var err error
	cfg, err = config.LoadConfig(*configPath)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Command line overrides
	if *debugMode {
		cfg.App.Debug = true
		cfg.Logging.Level = "debug"
	}
	if *dataPath != "" {
		cfg.Data.File = *dataPath
	}
	if *trials > 0 {
		cfg.Optimize.Trials = *trials
	}
	if *useFileSignals {
		cfg.Data.UseFileSignals = true
	}
	if *mode != ModeBacktest && *mode != ModeOptimize {
		cancel()
		return nil, fmt.Errorf("unknown mode %q", *mode)
	}

	// Initialize logging
	logging.InitGlobalLogger(cfg.Logging)
	logger = logging.GetGlobalLogger().Component("main")

	// Log application startup
	logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": cfg.App.Environment,
		"config_path": *configPath,
		"mode":        *mode,
		"data_file":   cfg.Data.File,
		"debug_mode":  cfg.App.Debug,
	}).Info("Starting strategylab")

	// Set up signal handling
	app.setupSignalHandling()

	return app, nil
}

// run dispatches on the selected mode
func (app *Application) run() error {
	bars, ds, err := loadBars()
	if err != nil {
		return err
	}

	switch *mode {
	case ModeOptimize:
		return app.runOptimize(bars, ds)
	default:
		sigs, err := buildSignals(bars, ds, cfg.Indicators, cfg.Signals)
		if err != nil {
			return err
		}
		return runBacktest(bars, sigs, symbolOf(ds), cfg.Risk.Parameters())
	}
}

// loadBars loads the data file and resamples it when configured
func loadBars() ([]types.Bar, *data.Dataset, error) {
	ds, err := data.Load(cfg.Data.File)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load data: %w", err)
	}

	bars := ds.Bars
	if cfg.Data.Resample != "" {
		if cfg.Data.UseFileSignals {
			return nil, nil, fmt.Errorf("file signals cannot be used with resample %q", cfg.Data.Resample)
		}
		bars, err = data.Resample(ds.Bars, data.Timeframe(cfg.Data.Resample))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resample data: %w", err)
		}
		// Precomputed columns no longer line up with the bars
		ds.Columns = make(indicators.Set)
		logger.Infof("Resampled %d bars to %d %s bars", len(ds.Bars), len(bars), cfg.Data.Resample)
	}
	return bars, ds, nil
}

func symbolOf(ds *data.Dataset) string {
	if cfg.Data.Symbol != "" {
		return cfg.Data.Symbol
	}
	return ds.Symbol
}

// buildSignals returns the file's own signals or derives them from indicators.
// Columns carried by the file are available to the signal rules; computed
// indicators take precedence on name clashes.
func buildSignals(bars []types.Bar, ds *data.Dataset, ind indicators.Params, params signals.Params) ([]types.Signal, error) {
	if cfg.Data.UseFileSignals {
		if !ds.HasSignals() {
			return nil, fmt.Errorf("data file %s has no Buy_Signal/Sell_Signal columns", ds.Path)
		}
		return ds.Signals, nil
	}

	computed, err := indicators.Compute(bars, ind)
	if err != nil {
		return nil, fmt.Errorf("failed to compute indicators: %w", err)
	}
	set := make(indicators.Set).Merge(ds.Columns).Merge(computed)

	if params.EMAColumn == "" {
		params.EMAColumn = indicators.EMAColumn(ind.EMASpan)
	}
	sigs, err := signals.Generate(bars, set, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signals: %w", err)
	}

	buys, sells := types.CountSignals(sigs)
	logger.WithFields(logrus.Fields{
		"buy_signals":  buys,
		"sell_signals": sells,
		"ema_column":   params.EMAColumn,
	}).Info("Signals generated")
	return sigs, nil
}

// runBacktest simulates, logs and reports one parameter set
func runBacktest(bars []types.Bar, sigs []types.Signal, symbol string, risk backtest.RiskParameters) error {
	result, err := backtest.Simulate(bars, sigs, cfg.Backtest.InitialBalance, risk)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	btLogger := logging.CreateBacktestLogger()
	logBarValues(btLogger, bars, result.Values)
	for _, trade := range result.Trades {
		btLogger.LogTrade(symbol, trade)
	}

	summary := report.NewSummary(symbol, bars, result, cfg.Backtest.InitialBalance,
		cfg.Backtest.RiskFreeRate, cfg.Backtest.HistogramBins)
	btLogger.LogPerformance(summary.FinalValue, len(result.Trades), summary.Metrics.Map())

	if err := summary.WriteText(os.Stdout); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if cfg.Backtest.ResultsDirectory != "" {
		_, err := summary.SaveResults(cfg.Backtest.ResultsDirectory, report.ExportOptions{
			Trades: cfg.Backtest.ExportTrades,
			Values: cfg.Backtest.ExportValues,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// logBarValues writes one debug line per bar with the portfolio value
func logBarValues(log *logging.Logger, bars []types.Bar, values []float64) {
	if !log.IsLevelEnabled(logging.DebugLevel) {
		return
	}
	for i, v := range values {
		log.Debugf("bar %d close=%.4f value=%.4f", i, bars[i].Close, v)
	}
}

// runOptimize runs a study, then reports a backtest of the best parameters
func (app *Application) runOptimize(bars []types.Bar, ds *data.Dataset) error {
	trialStore, closeStore, err := openTrialStore()
	if err != nil {
		return err
	}
	defer closeStore()

	opt := optimize.New(optimize.SpaceFromConfig(cfg.Optimize), optimize.Options{
		Workers:        cfg.Optimize.Workers,
		Seed:           cfg.Optimize.Seed,
		InitialBalance: cfg.Backtest.InitialBalance,
		FeeRate:        cfg.Risk.TransactionFee,
		RiskFreeRate:   cfg.Backtest.RiskFreeRate,
	}, trialStore, logging.CreateOptimizeLogger())

	study, err := opt.Optimize(app.ctx, bars, cfg.Optimize.Trials)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}
	if study.Best == nil {
		return fmt.Errorf("no successful trial in study %s", study.ID)
	}

	best := study.Best
	fmt.Printf("Study %s: %d trials\n", study.ID, len(study.Trials))
	fmt.Printf("Best trial #%d, Calmar: %s\n", best.Number, report.FormatMetric(best.Objective))
	fmt.Printf("Best params: rsi_period=%d ema_span=%d rsi_buy=%d rsi_sell=%d stop_loss=%.4f take_profit=%.4f\n\n",
		best.Params.RSIPeriod, best.Params.EMASpan, best.Params.RSIBuy, best.Params.RSISell,
		best.Params.StopLoss, best.Params.TakeProfit)

	// Optimized parameters always derive signals from indicators
	cfg.Data.UseFileSignals = false
	sigs, err := buildSignals(bars, ds, best.Params.Indicators(), best.Params.Signals())
	if err != nil {
		return err
	}
	return runBacktest(bars, sigs, symbolOf(ds), best.Params.Risk(cfg.Risk.TransactionFee))
}

// openTrialStore opens the SQLite trial database, or an in-memory store when
// no path is configured
func openTrialStore() (store.TrialStore, func(), error) {
	if cfg.Storage.SQLitePath == "" {
		return store.NewMemoryStore(), func() {}, nil
	}

	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open trial store: %w", err)
	}
	logger.Infof("Persisting trials to %s", cfg.Storage.SQLitePath)
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Errorf("Failed to close trial store: %v", err)
		}
	}, nil
}

// setupSignalHandling cancels the application context on SIGINT/SIGTERM
func (app *Application) setupSignalHandling() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Info("Signal received, stopping")
			app.cancel()
		case <-app.ctx.Done():
		}
	}()
}

// printUsage prints command line usage information
func printUsage() {
	fmt.Printf(`%s - %s

Usage: %s [options]

Options:
`, AppName, AppVersion, os.Args[0])
	flag.PrintDefaults()
	fmt.Printf(`
Examples:
  %s -data ./data/BTCUSDT_1h.csv              # Backtest with default parameters
  %s -mode optimize -trials 100               # Search parameters, then backtest the best
  %s -config ./myconfig.json -debug           # Custom config, debug logging
  %s -data ./signals.csv -use-file-signals    # Backtest precomputed signals

Environment Variables:
  STRATEGYLAB_CONFIG_PATH      Path to configuration file (default for -config)
  STRATEGYLAB_DATA_FILE        Override data.file
  STRATEGYLAB_LOG_LEVEL        Override log level (debug, info, warn, error)
  STRATEGYLAB_FEE              Override risk.transaction_fee
  STRATEGYLAB_INITIAL_BALANCE  Override backtest.initial_balance
  STRATEGYLAB_SQLITE_PATH      Override storage.sqlite_path

Configuration:
  A configuration file will be created with default values if it doesn't exist.
  The default configuration file location is: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], DefaultConfigPath)
}

// printVersion prints version information
func printVersion() {
	fmt.Printf(`%s %s

Go Version: %s
GOOS: %s
GOARCH: %s
`, AppName, AppVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
