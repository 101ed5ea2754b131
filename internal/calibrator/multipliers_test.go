package calibrator

import (
	"errors"
	"math"
	"testing"

	"trailbot/internal/domain"
)

func fullTable(k float64) domain.StopMultiplierTable {
	t := domain.StopMultiplierTable{
		domain.SideSell: {},
		domain.SideBuy:  {},
	}
	for _, r := range domain.Regimes {
		t[domain.SideSell][r] = k
		t[domain.SideBuy][r] = k
	}
	return t
}

func TestStopDistance(t *testing.T) {
	table := fullTable(2.0)
	got, err := StopDistance(10, domain.SideSell, domain.RegimeMedium, table)
	if err != nil {
		t.Fatal(err)
	}
	if got != 20 {
		t.Errorf("StopDistance() = %v, want 20", got)
	}
}

func TestStopDistanceMissingMultiplier(t *testing.T) {
	table := domain.StopMultiplierTable{domain.SideSell: {}}
	_, err := StopDistance(10, domain.SideSell, domain.RegimeMedium, table)
	if !errors.Is(err, domain.ErrMissingMultiplier) {
		t.Fatalf("error = %v, want ErrMissingMultiplier", err)
	}
}

func TestActivationDistance(t *testing.T) {
	table := fullTable(2.0)
	tests := []struct {
		name string
		rule domain.ActivationRule
		want float64
	}{
		{
			"coefficient",
			domain.ActivationRule{Kind: domain.ActivationByCoefficient, Coefficient: 1.5},
			15.0,
		},
		{
			"coefficient zero means immediate",
			domain.ActivationRule{Kind: domain.ActivationByCoefficient, Coefficient: 0},
			0,
		},
		{
			"margin based",
			domain.ActivationRule{Kind: domain.ActivationByMargin, MinMargin: 0.01},
			21.0, // 2*10 + 0.01*100
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ActivationDistance(tt.rule, 10, 100, domain.SideSell, domain.RegimeMedium, table)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ActivationDistance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStale(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		ref      float64
		limit    float64
		want     bool
	}{
		{"within limit", 110, 100, 0.2, false},
		{"exactly at limit", 120, 100, 0.2, false},
		{"above limit", 121, 100, 0.2, true},
		{"drift downwards", 75, 100, 0.2, true},
		{"zero reference", 10, 0, 0.2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Stale(tt.current, tt.ref, tt.limit); got != tt.want {
				t.Errorf("Stale(%v, %v, %v) = %v, want %v",
					tt.current, tt.ref, tt.limit, got, tt.want)
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{50, 3},
		{100, 5},
		{25, 2},
		{75, 4},
	}
	for _, tt := range tests {
		got, err := Percentile(vals, tt.p)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if _, err := Percentile(nil, 50); !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("Percentile(nil) error = %v, want ErrInsufficientData", err)
	}
}

func TestThresholdsInsufficientData(t *testing.T) {
	_, err := Thresholds([]float64{1, 2, 3}, 100)
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("error = %v, want ErrInsufficientData", err)
	}
}

func TestFillGapsOppositeSideFirst(t *testing.T) {
	sparse := domain.StopMultiplierTable{
		domain.SideSell: {
			domain.RegimeMedium: 2.0,
		},
		domain.SideBuy: {
			domain.RegimeMedium: 3.0,
			domain.RegimeHigh:   4.0,
		},
	}
	table, err := FillGaps(sparse)
	if err != nil {
		t.Fatal(err)
	}
	if !table.Complete() {
		t.Fatal("filled table is not complete")
	}
	// sell/HV missing, buy/HV present: opposite side wins over nearest regime.
	if got := table[domain.SideSell][domain.RegimeHigh]; got != 4.0 {
		t.Errorf("sell/HV = %v, want 4.0 (opposite side)", got)
	}
	// buy/LV missing on both sides: nearest populated regime on same side.
	if got := table[domain.SideBuy][domain.RegimeLow]; got != 3.0 {
		t.Errorf("buy/LV = %v, want 3.0 (nearest regime)", got)
	}
	// original entries are untouched.
	if got := table[domain.SideSell][domain.RegimeMedium]; got != 2.0 {
		t.Errorf("sell/MV = %v, want 2.0", got)
	}
}

func TestFillGapsEmpty(t *testing.T) {
	_, err := FillGaps(domain.StopMultiplierTable{})
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("error = %v, want ErrInsufficientData", err)
	}
}
