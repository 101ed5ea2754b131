package domain

import "fmt"

// Regime is one of five ordinal volatility buckets derived from the ATR's
// position within the historical percentile thresholds.
type Regime string

const (
	RegimeVeryLow  Regime = "LL"
	RegimeLow      Regime = "LV"
	RegimeMedium   Regime = "MV"
	RegimeHigh     Regime = "HV"
	RegimeVeryHigh Regime = "HH"
)

// Regimes lists all regimes in ascending volatility order.
var Regimes = []Regime{RegimeVeryLow, RegimeLow, RegimeMedium, RegimeHigh, RegimeVeryHigh}

// RegimeThresholds holds the four ascending ATR percentile breakpoints a
// regime lookup is performed against. Thresholds are recomputed periodically
// from a trailing window of ATR history, never on every cycle; within a
// session the snapshot is read immutably.
type RegimeThresholds struct {
	P20 float64 `json:"p20"`
	P50 float64 `json:"p50"`
	P80 float64 `json:"p80"`
	P95 float64 `json:"p95"`
}

// Validate checks that the breakpoints are non-decreasing.
func (t RegimeThresholds) Validate() error {
	if t.P20 > t.P50 || t.P50 > t.P80 || t.P80 > t.P95 {
		return fmt.Errorf("regime thresholds not ascending: P20=%.4f P50=%.4f P80=%.4f P95=%.4f",
			t.P20, t.P50, t.P80, t.P95)
	}
	return nil
}
