// Package calibrator derives and applies the volatility-adaptive stop
// parameters: percentile regime thresholds, per-regime stop multipliers,
// activation and stop distances, and reference staleness checks.
package calibrator

import (
	"fmt"
	"math"
	"sort"

	"trailbot/internal/domain"
)

// DefaultDeviationLimit is the relative ATR drift beyond which a stored
// reference ATR is considered stale.
const DefaultDeviationLimit = 0.2

// StopDistance returns the stop offset for the regime: multiplier * atr.
func StopDistance(atr float64, side domain.Side, regime domain.Regime, table domain.StopMultiplierTable) (float64, error) {
	k, err := table.Lookup(side, regime)
	if err != nil {
		return 0, err
	}
	return k * atr, nil
}

// ActivationDistance resolves the activation offset for the rule. The
// coefficient variant is coefficient*atr, zero meaning immediate
// activation. The margin variant is stopMultiplier(regime)*atr plus a
// minimum margin expressed as a fraction of the entry price.
func ActivationDistance(rule domain.ActivationRule, atr, entryPrice float64, side domain.Side, regime domain.Regime, table domain.StopMultiplierTable) (float64, error) {
	switch rule.Kind {
	case domain.ActivationByCoefficient:
		return rule.Coefficient * atr, nil
	case domain.ActivationByMargin:
		k, err := table.Lookup(side, regime)
		if err != nil {
			return 0, err
		}
		return k*atr + rule.MinMargin*entryPrice, nil
	default:
		return 0, fmt.Errorf("unknown activation rule kind %d", rule.Kind)
	}
}

// Stale reports whether currentATR has drifted from referenceATR by more
// than limit, relative to the reference.
func Stale(currentATR, referenceATR, limit float64) bool {
	if referenceATR == 0 {
		return true
	}
	return math.Abs(currentATR-referenceATR)/referenceATR > limit
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks. Values are not modified.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("percentile: %w", domain.ErrInsufficientData)
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0], nil
	}
	if p >= 100 {
		return sorted[len(sorted)-1], nil
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo], nil
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac, nil
}

// Thresholds computes the four regime breakpoints from an ATR history
// window. At least minSamples values are required.
func Thresholds(atrHistory []float64, minSamples int) (domain.RegimeThresholds, error) {
	if len(atrHistory) < minSamples {
		return domain.RegimeThresholds{}, fmt.Errorf("thresholds: need %d atr samples, have %d: %w",
			minSamples, len(atrHistory), domain.ErrInsufficientData)
	}
	var t domain.RegimeThresholds
	var err error
	if t.P20, err = Percentile(atrHistory, 20); err != nil {
		return t, err
	}
	if t.P50, err = Percentile(atrHistory, 50); err != nil {
		return t, err
	}
	if t.P80, err = Percentile(atrHistory, 80); err != nil {
		return t, err
	}
	if t.P95, err = Percentile(atrHistory, 95); err != nil {
		return t, err
	}
	return t, t.Validate()
}

// regimeIndex returns the position of r within the ascending regime order.
func regimeIndex(r domain.Regime) int {
	for i, v := range domain.Regimes {
		if v == r {
			return i
		}
	}
	return -1
}

// FillGaps completes a sparse multiplier table so that every (side, regime)
// entry is populated. For a missing entry, the same regime on the opposite
// side is tried first, then the nearest populated regime on the same side,
// preferring the lower neighbour on ties. Filling happens at calibration
// time so runtime lookups never need a fallback path.
func FillGaps(table domain.StopMultiplierTable) (domain.StopMultiplierTable, error) {
	out := domain.StopMultiplierTable{}
	for _, side := range []domain.Side{domain.SideSell, domain.SideBuy} {
		out[side] = map[domain.Regime]float64{}
		for r, k := range table[side] {
			out[side][r] = k
		}
	}
	// Fallback sources are read from the sparse input only, so the result
	// does not depend on fill order.
	for _, side := range []domain.Side{domain.SideSell, domain.SideBuy} {
		for _, regime := range domain.Regimes {
			if _, ok := out[side][regime]; ok {
				continue
			}
			if k, ok := table[side.Opposite()][regime]; ok {
				out[side][regime] = k
				continue
			}
			if k, ok := nearest(table[side], regime); ok {
				out[side][regime] = k
				continue
			}
			if k, ok := nearest(table[side.Opposite()], regime); ok {
				out[side][regime] = k
				continue
			}
			return nil, fmt.Errorf("fill gaps: no source for %s/%s: %w",
				side, regime, domain.ErrInsufficientData)
		}
	}
	return out, nil
}

func nearest(m map[domain.Regime]float64, regime domain.Regime) (float64, bool) {
	idx := regimeIndex(regime)
	best := -1
	var bestK float64
	for r, k := range m {
		d := regimeIndex(r) - idx
		if d < 0 {
			d = -d
		}
		if best == -1 || d < best || (d == best && regimeIndex(r) < idx) {
			best = d
			bestK = k
		}
	}
	return bestK, best != -1
}
