// Package optimize searches the strategy's hyperparameters by random
// sampling, ranking trials by the Calmar ratio of their value series.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"strategylab/internal/backtest"
	"strategylab/internal/indicators"
	"strategylab/internal/logging"
	"strategylab/internal/metrics"
	"strategylab/internal/signals"
	"strategylab/internal/store"
	"strategylab/internal/types"
)

// Options holds the settings shared by every trial of a study
type Options struct {
	Workers        int   // 0 uses GOMAXPROCS
	Seed           int64 // same seed, same sampled parameters
	InitialBalance float64
	FeeRate        float64
	RiskFreeRate   float64
}

// Trial is one evaluated parameter set
type Trial struct {
	Number     int            `json:"number"`
	Params     Params         `json:"params"`
	Metrics    metrics.Report `json:"-"`
	Objective  float64        `json:"-"` // Calmar; NaN when undefined
	FinalValue float64        `json:"final_value"`
	TradeCount int            `json:"trade_count"`
	Err        error          `json:"-"`
}

// Record converts the trial to its stored form
func (t *Trial) Record(studyID string) *store.TrialRecord {
	rec := &store.TrialRecord{
		StudyID:     studyID,
		Number:      t.Number,
		RSIPeriod:   t.Params.RSIPeriod,
		EMASpan:     t.Params.EMASpan,
		RSIBuy:      t.Params.RSIBuy,
		RSISell:     t.Params.RSISell,
		StopLoss:    t.Params.StopLoss,
		TakeProfit:  t.Params.TakeProfit,
		Objective:   t.Objective,
		Calmar:      t.Metrics.Calmar,
		Sharpe:      t.Metrics.Sharpe,
		Sortino:     t.Metrics.Sortino,
		MaxDrawdown: t.Metrics.MaxDrawdown,
		WinRate:     t.Metrics.WinRate,
		FinalValue:  t.FinalValue,
		TradeCount:  t.TradeCount,
		CreatedAt:   time.Now(),
	}
	if t.Err != nil {
		rec.Error = t.Err.Error()
	}
	return rec
}

// Better reports whether t ranks above other
func (t *Trial) Better(other *Trial) bool {
	return t.Record("").Better(other.Record(""))
}

// Study is the outcome of one search
type Study struct {
	ID         string
	Trials     []Trial // completed trials, ordered by number
	Best       *Trial  // nil when every trial failed
	StartedAt  time.Time
	FinishedAt time.Time
}

// Optimizer runs studies over a search space
type Optimizer struct {
	space  Space
	opts   Options
	store  store.TrialStore
	logger *logging.Logger
}

// New creates an optimizer. st may be nil to skip persistence.
func New(space Space, opts Options, st store.TrialStore, logger *logging.Logger) *Optimizer {
	if logger == nil {
		logger = logging.CreateOptimizeLogger()
	}
	return &Optimizer{
		space:  space,
		opts:   opts,
		store:  st,
		logger: logger,
	}
}

// Evaluate runs one parameter set end to end: indicators, signals,
// simulation and metrics. Each call has its own engine state.
func Evaluate(bars []types.Bar, params Params, opts Options) Trial {
	trial := Trial{Params: params, Objective: math.NaN(), FinalValue: math.NaN()}

	set, err := indicators.Compute(bars, params.Indicators())
	if err != nil {
		trial.Err = err
		return trial
	}
	sigs, err := signals.Generate(bars, set, params.Signals())
	if err != nil {
		trial.Err = err
		return trial
	}
	result, err := backtest.Simulate(bars, sigs, opts.InitialBalance, params.Risk(opts.FeeRate))
	if err != nil {
		trial.Err = err
		return trial
	}

	trial.Metrics = metrics.Compute(result.Values, opts.RiskFreeRate)
	trial.Objective = trial.Metrics.Calmar
	trial.FinalValue = result.FinalValue(opts.InitialBalance)
	trial.TradeCount = len(result.Trades)
	return trial
}

// Optimize samples trials parameter sets and evaluates them on a bounded
// worker pool. Parameters are drawn up front from the seeded source, so a
// study is reproducible regardless of scheduling. On cancellation the
// trials finished so far are returned together with the context error.
func (o *Optimizer) Optimize(ctx context.Context, bars []types.Bar, trials int) (*Study, error) {
	if trials < 1 {
		return nil, fmt.Errorf("trials must be positive, got %d", trials)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars to optimize on")
	}

	study := &Study{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}

	rng := rand.New(rand.NewSource(o.opts.Seed))
	params := make([]Params, trials)
	for i := range params {
		params[i] = o.space.Sample(rng)
	}

	workers := o.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	o.logger.WithFields(map[string]interface{}{
		"study":   study.ID,
		"trials":  trials,
		"workers": workers,
		"bars":    len(bars),
	}).Info("Starting optimization")

	results := make([]*Trial, trials)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range params {
		i := i
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Skip trials queued before a cancellation
			if err := gctx.Err(); err != nil {
				return err
			}

			trial := Evaluate(bars, params[i], o.opts)
			trial.Number = i
			results[i] = &trial

			o.logger.LogTrial(study.ID, i, trial.Params.Map(), trial.Objective, trial.Err)

			if o.store != nil {
				if err := o.store.SaveTrial(gctx, trial.Record(study.ID)); err != nil {
					return fmt.Errorf("failed to persist trial %d: %w", i, err)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	for _, t := range results {
		if t == nil {
			continue
		}
		study.Trials = append(study.Trials, *t)
	}
	for i := range study.Trials {
		t := &study.Trials[i]
		if t.Err != nil {
			continue
		}
		if study.Best == nil || t.Better(study.Best) {
			study.Best = t
		}
	}
	study.FinishedAt = time.Now()

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			o.logger.Warnf("Optimization interrupted after %d of %d trials", len(study.Trials), trials)
		}
		return study, err
	}

	if study.Best != nil {
		o.logger.WithFields(map[string]interface{}{
			"study":     study.ID,
			"number":    study.Best.Number,
			"objective": metricValue(study.Best.Objective),
		}).Info("Optimization finished")
	} else {
		o.logger.Warnf("Optimization finished without a successful trial")
	}
	return study, nil
}

func metricValue(v float64) interface{} {
	if math.IsNaN(v) {
		return "N/A"
	}
	return v
}
