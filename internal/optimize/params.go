package optimize

import (
	"math/rand"

	"strategylab/internal/backtest"
	"strategylab/internal/config"
	"strategylab/internal/indicators"
	"strategylab/internal/signals"
)

// Params is one point of the search space
type Params struct {
	RSIPeriod  int     `json:"rsi_period"`
	EMASpan    int     `json:"ema_span"`
	RSIBuy     int     `json:"rsi_buy"`
	RSISell    int     `json:"rsi_sell"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// Indicators returns the indicator periods of p
func (p Params) Indicators() indicators.Params {
	return indicators.Params{RSIPeriod: p.RSIPeriod, EMASpan: p.EMASpan}
}

// Signals returns the signal thresholds of p, comparing against EMA_<span>
func (p Params) Signals() signals.Params {
	return signals.Params{
		EMAColumn: indicators.EMAColumn(p.EMASpan),
		RSIBuy:    float64(p.RSIBuy),
		RSISell:   float64(p.RSISell),
	}
}

// Risk returns engine parameters with both exits enabled
func (p Params) Risk(feeRate float64) backtest.RiskParameters {
	return backtest.RiskParameters{
		FeeRate:       feeRate,
		StopLossPct:   backtest.Pct(p.StopLoss),
		TakeProfitPct: backtest.Pct(p.TakeProfit),
	}
}

// Map returns the parameters keyed by name, for logging
func (p Params) Map() map[string]interface{} {
	return map[string]interface{}{
		"rsi_period":  p.RSIPeriod,
		"ema_span":    p.EMASpan,
		"rsi_buy":     p.RSIBuy,
		"rsi_sell":    p.RSISell,
		"stop_loss":   p.StopLoss,
		"take_profit": p.TakeProfit,
	}
}

// Space bounds each parameter; all ranges are inclusive
type Space struct {
	RSIPeriod  config.IntRange
	EMASpan    config.IntRange
	RSIBuy     config.IntRange
	RSISell    config.IntRange
	StopLoss   config.FloatRange
	TakeProfit config.FloatRange
}

// DefaultSpace returns rsi_period 7-21, ema_span 10-50, rsi_buy 20-40,
// rsi_sell 60-80, stop_loss 0.01-0.05 and take_profit 0.01-0.1
func DefaultSpace() Space {
	return SpaceFromConfig(config.DefaultConfig().Optimize)
}

// SpaceFromConfig reads the search ranges from the optimize config
func SpaceFromConfig(cfg config.OptimizeConfig) Space {
	return Space{
		RSIPeriod:  cfg.RSIPeriod,
		EMASpan:    cfg.EMASpan,
		RSIBuy:     cfg.RSIBuy,
		RSISell:    cfg.RSISell,
		StopLoss:   cfg.StopLoss,
		TakeProfit: cfg.TakeProfit,
	}
}

// Sample draws a uniform point of the space from rng
func (s Space) Sample(rng *rand.Rand) Params {
	return Params{
		RSIPeriod:  sampleInt(rng, s.RSIPeriod),
		EMASpan:    sampleInt(rng, s.EMASpan),
		RSIBuy:     sampleInt(rng, s.RSIBuy),
		RSISell:    sampleInt(rng, s.RSISell),
		StopLoss:   sampleFloat(rng, s.StopLoss),
		TakeProfit: sampleFloat(rng, s.TakeProfit),
	}
}

// Contains reports whether p lies inside the space
func (s Space) Contains(p Params) bool {
	inInt := func(r config.IntRange, v int) bool { return v >= r.Min && v <= r.Max }
	inFloat := func(r config.FloatRange, v float64) bool { return v >= r.Min && v <= r.Max }
	return inInt(s.RSIPeriod, p.RSIPeriod) &&
		inInt(s.EMASpan, p.EMASpan) &&
		inInt(s.RSIBuy, p.RSIBuy) &&
		inInt(s.RSISell, p.RSISell) &&
		inFloat(s.StopLoss, p.StopLoss) &&
		inFloat(s.TakeProfit, p.TakeProfit)
}

func sampleInt(rng *rand.Rand, r config.IntRange) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

func sampleFloat(rng *rand.Rand, r config.FloatRange) float64 {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Float64()*(r.Max-r.Min)
}
