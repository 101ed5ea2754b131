// Package indicator computes the Average True Range series and classifies
// its latest value into a volatility regime.
package indicator

import (
	"fmt"
	"math"

	"trailbot/internal/domain"
)

// DefaultPeriod is the ATR lookback used when configuration does not
// override it.
const DefaultPeriod = 14

// TrueRange returns max(H-L, |H-PC|, |L-PC|) for a candle given the
// previous close.
func TrueRange(c domain.Candle, prevClose float64) float64 {
	hl := c.High - c.Low
	hc := math.Abs(c.High - prevClose)
	lc := math.Abs(c.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// ATRSeries computes the simple-moving-average ATR over period for each
// candle. The result is index-aligned with candles; positions with fewer
// than period true-range samples hold NaN. The first candle has no previous
// close, so its true range is High-Low.
func ATRSeries(candles []domain.Candle, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("atr: period must be positive, got %d", period)
	}
	out := make([]float64, len(candles))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(candles) < period {
		return out, nil
	}
	tr := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		tr[i] = TrueRange(c, candles[i-1].Close)
	}
	var sum float64
	for i, v := range tr {
		sum += v
		if i >= period {
			sum -= tr[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// ATR returns the latest ATR value over period, or
// domain.ErrInsufficientData when fewer than period candles are available.
func ATR(candles []domain.Candle, period int) (float64, error) {
	if len(candles) < period {
		return 0, fmt.Errorf("atr: need %d candles, have %d: %w",
			period, len(candles), domain.ErrInsufficientData)
	}
	series, err := ATRSeries(candles, period)
	if err != nil {
		return 0, err
	}
	v := series[len(series)-1]
	if math.IsNaN(v) {
		return 0, fmt.Errorf("atr: %w", domain.ErrInsufficientData)
	}
	return v, nil
}

// Classify maps an ATR value onto a regime using half-open percentile
// intervals: [0,P20) very low, [P20,P50) low, [P50,P80) medium,
// [P80,P95) high, [P95,inf) very high. A value exactly on a breakpoint
// belongs to the bucket above it.
func Classify(atr float64, t domain.RegimeThresholds) domain.Regime {
	switch {
	case atr < t.P20:
		return domain.RegimeVeryLow
	case atr < t.P50:
		return domain.RegimeLow
	case atr < t.P80:
		return domain.RegimeMedium
	case atr < t.P95:
		return domain.RegimeHigh
	default:
		return domain.RegimeVeryHigh
	}
}
