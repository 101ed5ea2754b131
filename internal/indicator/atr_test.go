package indicator

import (
	"errors"
	"math"
	"testing"

	"trailbot/internal/domain"
)

func candle(h, l, c float64) domain.Candle {
	return domain.Candle{High: h, Low: l, Close: c}
}

func TestTrueRange(t *testing.T) {
	tests := []struct {
		name      string
		c         domain.Candle
		prevClose float64
		want      float64
	}{
		{"range dominates", candle(110, 100, 105), 104, 10},
		{"gap up dominates", candle(130, 125, 128), 110, 20},
		{"gap down dominates", candle(95, 90, 92), 110, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrueRange(tt.c, tt.prevClose)
			if got != tt.want {
				t.Errorf("TrueRange() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestATRInsufficientData(t *testing.T) {
	candles := []domain.Candle{candle(110, 100, 105), candle(112, 104, 108)}
	_, err := ATR(candles, 14)
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("ATR() error = %v, want ErrInsufficientData", err)
	}
}

func TestATRSeriesAlignment(t *testing.T) {
	candles := []domain.Candle{
		candle(110, 100, 105),
		candle(112, 104, 108),
		candle(115, 107, 110),
		candle(113, 108, 109),
	}
	series, err := ATRSeries(candles, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != len(candles) {
		t.Fatalf("series length = %d, want %d", len(series), len(candles))
	}
	for i := 0; i < 2; i++ {
		if !math.IsNaN(series[i]) {
			t.Errorf("series[%d] = %v, want NaN", i, series[i])
		}
	}
	// TR: 10, 8 (112-104), 8 (115-107), 5 (113-108)
	if got, want := series[2], (10.0+8+8)/3; math.Abs(got-want) > 1e-9 {
		t.Errorf("series[2] = %v, want %v", got, want)
	}
	if got, want := series[3], (8.0+8+5)/3; math.Abs(got-want) > 1e-9 {
		t.Errorf("series[3] = %v, want %v", got, want)
	}
}

func TestATRLatest(t *testing.T) {
	candles := []domain.Candle{
		candle(110, 100, 105),
		candle(112, 104, 108),
		candle(115, 107, 110),
	}
	got, err := ATR(candles, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := (10.0 + 8 + 8) / 3
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("ATR() = %v, want %v", got, want)
	}
}

func TestClassify(t *testing.T) {
	th := domain.RegimeThresholds{P20: 10, P50: 20, P80: 30, P95: 40}
	tests := []struct {
		name string
		atr  float64
		want domain.Regime
	}{
		{"below p20", 5, domain.RegimeVeryLow},
		{"exactly p20", 10, domain.RegimeLow},
		{"between p20 and p50", 15, domain.RegimeLow},
		{"exactly p50", 20, domain.RegimeMedium},
		{"exactly p80", 30, domain.RegimeHigh},
		{"exactly p95", 40, domain.RegimeVeryHigh},
		{"above p95", 100, domain.RegimeVeryHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.atr, th); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.atr, got, tt.want)
			}
		})
	}
}
