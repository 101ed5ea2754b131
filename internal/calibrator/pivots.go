package calibrator

import (
	"fmt"
	"math"

	"trailbot/internal/domain"
	"trailbot/internal/indicator"
)

// PivotKind distinguishes local highs from local lows.
type PivotKind int

const (
	PivotHigh PivotKind = iota
	PivotLow
)

// Pivot is a confirmed local extremum in a close-price series.
type Pivot struct {
	Index int
	Price float64
	Kind  PivotKind
}

// Config holds the knobs of a calibration run.
type Config struct {
	Period     int     // ATR lookback
	PivotOrder int     // extremum confirmation window, bars on each side
	MinChange  float64 // minimum relative move between consecutive pivots
	Quantile   float64 // per-regime sample quantile, 0..1
	MinSamples int     // minimum ATR history for threshold computation
}

// DefaultConfig returns the calibration defaults.
func DefaultConfig() Config {
	return Config{
		Period:     indicator.DefaultPeriod,
		PivotOrder: 5,
		MinChange:  0.01,
		Quantile:   0.75,
		MinSamples: 100,
	}
}

// DetectPivots finds alternating local extrema in closes. A bar is a raw
// extremum when it is the strict maximum or minimum within order bars on
// each side. Consecutive same-kind pivots are pruned to the more extreme
// one, then pivot pairs whose relative move is below minChange are removed
// until the sequence is stable.
func DetectPivots(closes []float64, order int, minChange float64) []Pivot {
	if order <= 0 || len(closes) < 2*order+1 {
		return nil
	}
	var raw []Pivot
	for i := order; i < len(closes)-order; i++ {
		isHigh, isLow := true, true
		for j := i - order; j <= i+order; j++ {
			if j == i {
				continue
			}
			if closes[j] >= closes[i] {
				isHigh = false
			}
			if closes[j] <= closes[i] {
				isLow = false
			}
		}
		if isHigh {
			raw = append(raw, Pivot{Index: i, Price: closes[i], Kind: PivotHigh})
		} else if isLow {
			raw = append(raw, Pivot{Index: i, Price: closes[i], Kind: PivotLow})
		}
	}
	pivots := pruneSameKind(raw)
	for {
		filtered, changed := dropSmallMoves(pivots, minChange)
		if !changed {
			return filtered
		}
		pivots = pruneSameKind(filtered)
	}
}

// pruneSameKind collapses runs of same-kind pivots to the most extreme one.
func pruneSameKind(pivots []Pivot) []Pivot {
	var out []Pivot
	for _, p := range pivots {
		if len(out) == 0 || out[len(out)-1].Kind != p.Kind {
			out = append(out, p)
			continue
		}
		last := &out[len(out)-1]
		if (p.Kind == PivotHigh && p.Price > last.Price) ||
			(p.Kind == PivotLow && p.Price < last.Price) {
			*last = p
		}
	}
	return out
}

// dropSmallMoves removes the first adjacent pivot pair whose relative price
// move is below minChange. It reports whether anything was removed.
func dropSmallMoves(pivots []Pivot, minChange float64) ([]Pivot, bool) {
	for i := 1; i < len(pivots); i++ {
		prev := pivots[i-1]
		if prev.Price == 0 {
			continue
		}
		move := math.Abs(pivots[i].Price-prev.Price) / prev.Price
		if move < minChange {
			out := make([]Pivot, 0, len(pivots)-2)
			out = append(out, pivots[:i-1]...)
			out = append(out, pivots[i+1:]...)
			return out, true
		}
	}
	return pivots, false
}

// Calibrate runs a full calibration over a candle history: ATR series,
// regime thresholds, pivot detection, per-regime multiplier derivation
// with gap filling. The returned snapshot is complete and validated.
func Calibrate(pair string, candles []domain.Candle, cfg Config) (*domain.Calibration, error) {
	series, err := indicator.ATRSeries(candles, cfg.Period)
	if err != nil {
		return nil, err
	}
	var history []float64
	for _, v := range series {
		if !math.IsNaN(v) {
			history = append(history, v)
		}
	}
	thresholds, err := Thresholds(history, cfg.MinSamples)
	if err != nil {
		return nil, fmt.Errorf("calibrate %s: %w", pair, err)
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	pivots := DetectPivots(closes, cfg.PivotOrder, cfg.MinChange)
	sparse := deriveMultipliers(candles, pivots, series, thresholds, cfg.Quantile)
	table, err := FillGaps(sparse)
	if err != nil {
		return nil, fmt.Errorf("calibrate %s: %w", pair, err)
	}
	cal := &domain.Calibration{
		Pair:        pair,
		Thresholds:  thresholds,
		Multipliers: table,
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return cal, nil
}

// deriveMultipliers samples the structural noise inside every pivot-to-pivot
// segment: the adverse excursion a trailing stop riding that trend must
// tolerate. Within an uptrend (low to high) that is the drawdown from the
// running high; within a downtrend, the bounce from the running low. Each
// bar's excursion is normalised by its own ATR and bucketed by that ATR's
// regime; a segment contributes its worst sample per regime. Uptrend
// drawdowns feed the sell side, downtrend bounces the buy side, and each
// (side, regime) bucket reduces to its quantile rounded up to the next 0.1.
func deriveMultipliers(candles []domain.Candle, pivots []Pivot, atrSeries []float64, t domain.RegimeThresholds, quantile float64) domain.StopMultiplierTable {
	samples := map[domain.Side]map[domain.Regime][]float64{
		domain.SideSell: {},
		domain.SideBuy:  {},
	}
	for i := 1; i < len(pivots); i++ {
		from, to := pivots[i-1], pivots[i]
		if from.Kind == to.Kind {
			continue
		}
		side := domain.SideSell
		if from.Kind == PivotHigh {
			side = domain.SideBuy
		}
		worst := map[domain.Regime]float64{}
		runningHigh := math.Inf(-1)
		runningLow := math.Inf(1)
		for j := from.Index + 1; j < to.Index && j < len(candles); j++ {
			bar := candles[j]
			if bar.High > runningHigh {
				runningHigh = bar.High
			}
			if bar.Low < runningLow {
				runningLow = bar.Low
			}
			atr := atrSeries[j]
			if math.IsNaN(atr) || atr <= 0 {
				continue
			}
			excursion := runningHigh - bar.Low
			if side == domain.SideBuy {
				excursion = bar.High - runningLow
			}
			regime := indicator.Classify(atr, t)
			if k := excursion / atr; k > worst[regime] {
				worst[regime] = k
			}
		}
		for regime, k := range worst {
			samples[side][regime] = append(samples[side][regime], k)
		}
	}
	table := domain.StopMultiplierTable{
		domain.SideSell: {},
		domain.SideBuy:  {},
	}
	for side, byRegime := range samples {
		for regime, vals := range byRegime {
			q, err := Percentile(vals, quantile*100)
			if err != nil {
				continue
			}
			table[side][regime] = math.Ceil(q*10) / 10
		}
	}
	return table
}
