// Package backtest replays the lifecycle engine over historical candles
// to evaluate parameter choices offline.
package backtest

import (
	"fmt"
	"math"
	"time"

	"trailbot/internal/domain"
	"trailbot/internal/engine"
	"trailbot/internal/indicator"
)

// Config parametrises one simulation run.
type Config struct {
	Side           domain.Side
	Volume         float64
	ATRPeriod      int
	DeviationLimit float64
	// FeePct is the fee per operation as a percent of the traded value.
	// A round trip pays it twice.
	FeePct      float64
	Rule        domain.ActivationRule
	Calibration *domain.Calibration
}

// Trade is one simulated round trip.
type Trade struct {
	EntryPrice   float64
	ClosingPrice float64
	PnL          float64
	OpenedAt     time.Time
	ClosedAt     time.Time
}

// Result aggregates a simulation run.
type Result struct {
	Trades   []Trade
	Wins     int
	Losses   int
	TotalPnL float64
	AvgPnL   float64
}

// Run replays the candle series bar by bar: a position opens on the first
// usable bar and reopens one bar after each closure, always on the
// configured side. Closures execute at the stop price, mirroring the live
// driver.
func Run(pair string, candles []domain.Candle, cfg Config) (*Result, error) {
	if !cfg.Side.Valid() {
		return nil, fmt.Errorf("backtest: invalid side %q", cfg.Side)
	}
	if cfg.Calibration == nil {
		return nil, fmt.Errorf("backtest: calibration is required")
	}
	if err := cfg.Calibration.Validate(); err != nil {
		return nil, err
	}
	series, err := indicator.ATRSeries(candles, cfg.ATRPeriod)
	if err != nil {
		return nil, err
	}
	if len(candles) <= cfg.ATRPeriod {
		return nil, fmt.Errorf("backtest: %d candles for period %d: %w",
			len(candles), cfg.ATRPeriod, domain.ErrInsufficientData)
	}

	params := engine.Params{
		Rule:           cfg.Rule,
		Multipliers:    cfg.Calibration.Multipliers,
		DeviationLimit: cfg.DeviationLimit,
	}
	result := &Result{}
	var pos *domain.Position

	for i := cfg.ATRPeriod; i < len(candles); i++ {
		atr := series[i]
		if math.IsNaN(atr) || atr <= 0 {
			continue
		}
		bar := candles[i]
		in := engine.Input{
			Price:  bar.Close,
			ATR:    atr,
			Regime: indicator.Classify(atr, cfg.Calibration.Thresholds),
			Now:    bar.OpenTime,
		}
		if pos == nil {
			pos, err = engine.Create(pair, cfg.Side, cfg.Volume, in, params)
			if err != nil {
				return nil, err
			}
			continue
		}
		ev, err := engine.Step(pos, in, params)
		if err != nil {
			return nil, err
		}
		if ev != engine.EventClose {
			continue
		}
		cp, err := engine.Close(pos, "backtest", bar.OpenTime)
		if err != nil {
			return nil, err
		}
		pnl := cp.PnL - 2*cfg.FeePct
		result.Trades = append(result.Trades, Trade{
			EntryPrice:   cp.EntryPrice,
			ClosingPrice: cp.ClosingPrice,
			PnL:          pnl,
			OpenedAt:     cp.CreationTime,
			ClosedAt:     cp.ClosingTime,
		})
		result.TotalPnL += pnl
		if pnl >= 0 {
			result.Wins++
		} else {
			result.Losses++
		}
		pos = nil
	}

	if n := len(result.Trades); n > 0 {
		result.AvgPnL = result.TotalPnL / float64(n)
	}
	return result, nil
}
