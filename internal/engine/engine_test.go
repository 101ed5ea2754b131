package engine

import (
	"math"
	"testing"
	"time"

	"trailbot/internal/domain"
)

func testParams(k, coefficient float64) Params {
	table := domain.StopMultiplierTable{
		domain.SideSell: {},
		domain.SideBuy:  {},
	}
	for _, r := range domain.Regimes {
		table[domain.SideSell][r] = k
		table[domain.SideBuy][r] = k
	}
	return Params{
		Rule:           domain.ActivationRule{Kind: domain.ActivationByCoefficient, Coefficient: coefficient},
		Multipliers:    table,
		DeviationLimit: 0.2,
	}
}

func input(price, atr float64) Input {
	return Input{Price: price, ATR: atr, Regime: domain.RegimeMedium, Now: time.Now()}
}

func mustStep(t *testing.T, p *domain.Position, in Input, params Params) Event {
	t.Helper()
	ev, err := Step(p, in, params)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestSellLifecycle(t *testing.T) {
	params := testParams(2.0, 1.5)
	p, err := Create("XBTUSD", domain.SideSell, 0.1, input(100, 10), params)
	if err != nil {
		t.Fatal(err)
	}
	if p.State() != domain.StatePending {
		t.Fatalf("state = %s, want PENDING", p.State())
	}
	if p.ActivationPrice != 115 {
		t.Fatalf("activation price = %v, want 115 (entry + 1.5*atr)", p.ActivationPrice)
	}

	if ev := mustStep(t, p, input(110, 10), params); ev != EventNone {
		t.Fatalf("below activation: event = %v, want none", ev)
	}
	if ev := mustStep(t, p, input(116, 10), params); ev != EventActivated {
		t.Fatalf("cross: event = %v, want activated", ev)
	}
	if *p.TrailingPrice != 116 || *p.StopPrice != 96 {
		t.Fatalf("trailing/stop = %v/%v, want 116/96", *p.TrailingPrice, *p.StopPrice)
	}

	if ev := mustStep(t, p, input(120, 10), params); ev != EventImproved {
		t.Fatalf("new peak: event = %v, want improved", ev)
	}
	if *p.TrailingPrice != 120 || *p.StopPrice != 100 {
		t.Fatalf("trailing/stop = %v/%v, want 120/100", *p.TrailingPrice, *p.StopPrice)
	}

	// Price between stop and trailing changes nothing.
	if ev := mustStep(t, p, input(105, 10), params); ev != EventNone {
		t.Fatalf("in band: event = %v, want none", ev)
	}

	if ev := mustStep(t, p, input(100, 10), params); ev != EventClose {
		t.Fatalf("stop cross: event = %v, want close", ev)
	}
	// EventClose must not mutate, so a failed order retries next cycle.
	if *p.TrailingPrice != 120 || *p.StopPrice != 100 {
		t.Fatal("close event mutated the position")
	}

	cp, err := Close(p, "ORDER-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if cp.ClosingPrice != 100 {
		t.Errorf("closing price = %v, want stop price 100", cp.ClosingPrice)
	}
	if cp.PnL != 0 {
		t.Errorf("pnl = %v, want 0 (closed at entry)", cp.PnL)
	}
}

func TestBuyLifecycle(t *testing.T) {
	params := testParams(2.0, 1.5)
	p, err := Create("ETHUSD", domain.SideBuy, 1, input(100, 10), params)
	if err != nil {
		t.Fatal(err)
	}
	if p.ActivationPrice != 85 {
		t.Fatalf("activation price = %v, want 85 (entry - 1.5*atr)", p.ActivationPrice)
	}

	if ev := mustStep(t, p, input(90, 10), params); ev != EventNone {
		t.Fatalf("above activation: event = %v, want none", ev)
	}
	if ev := mustStep(t, p, input(84, 10), params); ev != EventActivated {
		t.Fatalf("cross: event = %v, want activated", ev)
	}
	if *p.TrailingPrice != 84 || *p.StopPrice != 104 {
		t.Fatalf("trailing/stop = %v/%v, want 84/104", *p.TrailingPrice, *p.StopPrice)
	}

	if ev := mustStep(t, p, input(80, 10), params); ev != EventImproved {
		t.Fatalf("new trough: event = %v, want improved", ev)
	}
	if *p.TrailingPrice != 80 || *p.StopPrice != 100 {
		t.Fatalf("trailing/stop = %v/%v, want 80/100", *p.TrailingPrice, *p.StopPrice)
	}

	if ev := mustStep(t, p, input(101, 10), params); ev != EventClose {
		t.Fatalf("stop cross: event = %v, want close", ev)
	}
	cp, err := Close(p, "ORDER-2", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	// Buy at 100, close at 100: flat.
	if cp.PnL != 0 {
		t.Errorf("pnl = %v, want 0", cp.PnL)
	}
}

func TestSellPnLNegativeOnAdverseClose(t *testing.T) {
	p := &domain.Position{Side: domain.SideSell, EntryPrice: 45000}
	got := p.PnLPercent(46950)
	want := -4.333333
	if math.Abs(got-want) > 1e-4 {
		t.Errorf("PnLPercent = %v, want %v", got, want)
	}
}

func TestImmediateActivation(t *testing.T) {
	params := testParams(2.0, 0)
	p, err := Create("XBTUSD", domain.SideSell, 0.1, input(100, 10), params)
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsTrailing() {
		t.Fatal("zero coefficient should activate immediately")
	}
	if *p.TrailingPrice != 100 || *p.StopPrice != 80 {
		t.Errorf("trailing/stop = %v/%v, want 100/80", *p.TrailingPrice, *p.StopPrice)
	}
}

func TestPendingRecalibration(t *testing.T) {
	params := testParams(2.0, 1.5)
	p, err := Create("XBTUSD", domain.SideSell, 0.1, input(100, 10), params)
	if err != nil {
		t.Fatal(err)
	}

	// Drift within the 20% limit leaves the reference alone.
	if ev := mustStep(t, p, input(100, 11), params); ev != EventNone {
		t.Fatalf("small drift: event = %v, want none", ev)
	}

	// 50% drift recalibrates the activation price from the entry.
	if ev := mustStep(t, p, input(100, 15), params); ev != EventRecalibrated {
		t.Fatalf("large drift: event = %v, want recalibrated", ev)
	}
	if p.ActivationPrice != 122.5 {
		t.Errorf("activation price = %v, want 122.5 (100 + 1.5*15)", p.ActivationPrice)
	}
	if p.ActivationATR != 15 {
		t.Errorf("activation atr = %v, want 15", p.ActivationATR)
	}

	// Same observation again: the reference is fresh now.
	if ev := mustStep(t, p, input(100, 15), params); ev != EventNone {
		t.Fatalf("repeat: event = %v, want none", ev)
	}
}

func TestImprovementUsesCurrentMultiplier(t *testing.T) {
	params := testParams(2.0, 0)
	params.Multipliers[domain.SideSell][domain.RegimeLow] = 1.0
	p, err := Create("XBTUSD", domain.SideSell, 0.1, input(100, 10), params)
	if err != nil {
		t.Fatal(err)
	}
	// Trailing at 100, stop at 80 (Medium, k=2), stop atr 10.

	// The regime drops to Low without tripping the staleness limit: the
	// next favorable move must re-derive the stop from the Low multiplier,
	// not carry the Medium-sized offset forward.
	in := Input{Price: 101, ATR: 10, Regime: domain.RegimeLow, Now: time.Now()}
	if ev := mustStep(t, p, in, params); ev != EventImproved {
		t.Fatalf("event = %v, want improved", ev)
	}
	if *p.StopPrice != 91 {
		t.Errorf("stop = %v, want 91 (101 - 1.0*10)", *p.StopPrice)
	}
}

func TestImprovementNeverLoosensStop(t *testing.T) {
	params := testParams(2.0, 0)
	params.Multipliers[domain.SideSell][domain.RegimeHigh] = 3.0
	p, err := Create("XBTUSD", domain.SideSell, 0.1, input(100, 10), params)
	if err != nil {
		t.Fatal(err)
	}
	// Trailing at 100, stop at 80.

	// A shift to a wider regime would put the stop at 101-30=71: the
	// trailing price still advances but the stop holds at 80.
	in := Input{Price: 101, ATR: 10, Regime: domain.RegimeHigh, Now: time.Now()}
	if ev := mustStep(t, p, in, params); ev != EventImproved {
		t.Fatalf("event = %v, want improved", ev)
	}
	if *p.TrailingPrice != 101 {
		t.Errorf("trailing = %v, want 101", *p.TrailingPrice)
	}
	if *p.StopPrice != 80 {
		t.Errorf("stop = %v, want 80 (ratchet holds)", *p.StopPrice)
	}
}

func TestTrailingRecalibrationRatchet(t *testing.T) {
	params := testParams(2.0, 0)
	p, err := Create("XBTUSD", domain.SideSell, 0.1, input(100, 10), params)
	if err != nil {
		t.Fatal(err)
	}
	// Trailing at 100, stop at 80.

	// ATR doubles: candidate stop 100-2*20=60 is worse than 80, so the
	// stop holds while the reference updates.
	if ev := mustStep(t, p, input(100, 20), params); ev != EventRecalibrated {
		t.Fatalf("event = %v, want recalibrated", ev)
	}
	if *p.StopPrice != 80 {
		t.Errorf("stop = %v, want 80 (ratchet holds)", *p.StopPrice)
	}
	if p.StopATR != 20 {
		t.Errorf("stop atr = %v, want 20", p.StopATR)
	}

	// ATR collapses: candidate 100-2*5=90 tightens the stop.
	if ev := mustStep(t, p, input(100, 5), params); ev != EventRecalibrated {
		t.Fatalf("event = %v, want recalibrated", ev)
	}
	if *p.StopPrice != 90 {
		t.Errorf("stop = %v, want 90 (tightened)", *p.StopPrice)
	}
}

func TestClosurePriorityOverRecalibration(t *testing.T) {
	params := testParams(2.0, 0)
	p, err := Create("XBTUSD", domain.SideSell, 0.1, input(100, 10), params)
	if err != nil {
		t.Fatal(err)
	}
	// Price at the stop with a stale ATR: closure wins.
	if ev := mustStep(t, p, input(80, 30), params); ev != EventClose {
		t.Fatalf("event = %v, want close", ev)
	}
}

func TestCloseRequiresTrailing(t *testing.T) {
	params := testParams(2.0, 1.5)
	p, err := Create("XBTUSD", domain.SideSell, 0.1, input(100, 10), params)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Close(p, "ORDER-3", time.Now()); err == nil {
		t.Fatal("closing a pending position must fail")
	}
}
