package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingMultiplier is returned when a (regime, side) entry is absent
// from a stop multiplier table. A complete table has exactly one multiplier
// per entry; absence is a configuration error, not a zero.
var ErrMissingMultiplier = errors.New("missing stop multiplier")

// StopMultiplierTable maps side and regime to the stop-distance multiplier
// (K) applied to the ATR. Tables are produced by the calibration batch job
// and read immutably by the engine.
type StopMultiplierTable map[Side]map[Regime]float64

// Lookup returns the multiplier for (side, regime), or ErrMissingMultiplier.
func (t StopMultiplierTable) Lookup(side Side, regime Regime) (float64, error) {
	if m, ok := t[side]; ok {
		if k, ok := m[regime]; ok {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w for %s/%s", ErrMissingMultiplier, side, regime)
}

// Complete reports whether every (side, regime) entry is present and positive.
func (t StopMultiplierTable) Complete() bool {
	for _, side := range []Side{SideSell, SideBuy} {
		m, ok := t[side]
		if !ok {
			return false
		}
		for _, regime := range Regimes {
			if k, ok := m[regime]; !ok || k <= 0 {
				return false
			}
		}
	}
	return true
}

// ActivationRuleKind selects how the activation distance is derived for a
// pair/side. Exactly one rule is valid per pair/side; configuration lacking
// both variants fails at startup.
type ActivationRuleKind int

const (
	// ActivationByCoefficient derives the distance as coefficient*ATR.
	// A zero coefficient means immediate activation.
	ActivationByCoefficient ActivationRuleKind = iota
	// ActivationByMargin derives the distance as
	// stopMultiplier(regime)*ATR + minMargin*entryPrice.
	ActivationByMargin
)

// ActivationRule is the per-pair/side activation variant resolved once at
// startup from configuration.
type ActivationRule struct {
	Kind        ActivationRuleKind
	Coefficient float64 // used by ActivationByCoefficient
	MinMargin   float64 // used by ActivationByMargin, fraction of entry price
}

// Calibration is a versioned, immutable parameter snapshot for one pair:
// the regime thresholds plus the stop multiplier table. New snapshots are
// produced by batch recomputation and swapped atomically.
type Calibration struct {
	Pair        string              `json:"pair"`
	Version     int                 `json:"version"`
	Thresholds  RegimeThresholds    `json:"thresholds"`
	Multipliers StopMultiplierTable `json:"multipliers"`
	ComputedAt  time.Time           `json:"computed_at"`
}

// Validate checks the snapshot is usable for trading.
func (c *Calibration) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if !c.Multipliers.Complete() {
		return fmt.Errorf("calibration for %s: %w", c.Pair, ErrMissingMultiplier)
	}
	return nil
}
