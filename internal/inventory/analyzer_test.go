package inventory

import (
	"errors"
	"math"
	"testing"

	"trailbot/internal/domain"
)

func TestAnalyze(t *testing.T) {
	alloc := Allocation{TargetPct: 0.5, HodlPct: 0.2, MinValue: 10}
	tests := []struct {
		name     string
		asset    float64 // base units
		cash     float64
		price    float64
		wantSide domain.Side
		wantVal  float64
		wantErr  error
	}{
		{
			// total 10000, target 5000, hodl 2000: sell down to the
			// hodl floor, not merely to target.
			name: "asset overweight sells excess above hodl",
			asset: 8, cash: 2000, price: 1000,
			wantSide: domain.SideSell, wantVal: 6000,
		},
		{
			// total 10000, target 5000, asset 2000: buy 3000, cash covers it.
			name: "asset underweight buys toward target",
			asset: 2, cash: 8000, price: 1000,
			wantSide: domain.SideBuy, wantVal: 3000,
		},
		{
			// total 1500, target 750, asset 500: buy the 250 deficit.
			// With target <= 1 the demand can never exceed free cash,
			// so the cash clamp stays a safety net only.
			name: "small portfolio buys the deficit",
			asset: 0.5, cash: 1000, price: 1000,
			wantSide: domain.SideBuy, wantVal: 250,
		},
		{
			name: "balanced portfolio yields nothing",
			asset: 5, cash: 5000, price: 1000,
			wantErr: domain.ErrNoOpportunity,
		},
		{
			// imbalance of 5 quote units is below MinValue.
			name: "dust imbalance below minimum",
			asset: 4.995, cash: 5005, price: 1000,
			wantErr: domain.ErrNoOpportunity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := Analyze(tt.asset, tt.cash, tt.price, alloc)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Analyze() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if op.Side != tt.wantSide {
				t.Errorf("side = %v, want %v", op.Side, tt.wantSide)
			}
			if math.Abs(op.Value-tt.wantVal) > 1e-6 {
				t.Errorf("value = %v, want %v", op.Value, tt.wantVal)
			}
			if math.Abs(op.Volume-tt.wantVal/tt.price) > 1e-9 {
				t.Errorf("volume = %v, want %v", op.Volume, tt.wantVal/tt.price)
			}
		})
	}
}

func TestAnalyzeBadPrice(t *testing.T) {
	if _, err := Analyze(1, 1, 0, Allocation{TargetPct: 0.5}); err == nil {
		t.Fatal("expected error for zero price")
	}
}

func TestAllocationValidate(t *testing.T) {
	if err := (Allocation{TargetPct: 0.5, HodlPct: 0.2, MinValue: 10}).Validate(); err != nil {
		t.Errorf("valid allocation rejected: %v", err)
	}
	if err := (Allocation{TargetPct: 1.5}).Validate(); err == nil {
		t.Error("target pct above 1 accepted")
	}
	if err := (Allocation{HodlPct: -0.1}).Validate(); err == nil {
		t.Error("negative hodl pct accepted")
	}
}
