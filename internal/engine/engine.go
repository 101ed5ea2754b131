// Package engine implements the pure position lifecycle state machine:
// creation, trailing activation, stop improvement, reference
// recalibration and closure detection. It performs no I/O; the session
// driver owns order placement and persistence around each step.
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"trailbot/internal/calibrator"
	"trailbot/internal/domain"
)

// Event names the single transition applied during one evaluation cycle.
type Event int

const (
	EventNone Event = iota
	// EventActivated moved the position from pending to trailing.
	EventActivated
	// EventImproved moved the trailing price and stop in the favorable
	// direction.
	EventImproved
	// EventRecalibrated refreshed a stale ATR reference.
	EventRecalibrated
	// EventClose detected a stop cross. The caller must place the closing
	// order at the position's stop price.
	EventClose
)

func (e Event) String() string {
	switch e {
	case EventActivated:
		return "activated"
	case EventImproved:
		return "improved"
	case EventRecalibrated:
		return "recalibrated"
	case EventClose:
		return "close"
	default:
		return "none"
	}
}

// Input is one cycle's market observation for a pair.
type Input struct {
	Price  float64
	ATR    float64
	Regime domain.Regime
	Now    time.Time
}

// Params bundles the per-pair evaluation parameters resolved at startup
// or from the latest calibration snapshot.
type Params struct {
	Rule           domain.ActivationRule
	Multipliers    domain.StopMultiplierTable
	DeviationLimit float64
}

// Create builds a new pending position at the live price. A zero
// activation distance activates trailing immediately.
func Create(pair string, side domain.Side, volume float64, in Input, params Params) (*domain.Position, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("create %s: invalid side %q", pair, side)
	}
	dist, err := calibrator.ActivationDistance(params.Rule, in.ATR, in.Price, side, in.Regime, params.Multipliers)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", pair, err)
	}
	p := &domain.Position{
		ID:            uuid.New(),
		Pair:          pair,
		Side:          side,
		Volume:        volume,
		EntryPrice:    in.Price,
		ActivationATR: in.ATR,
		CreationTime:  in.Now,
	}
	if side == domain.SideSell {
		p.ActivationPrice = in.Price + dist
	} else {
		p.ActivationPrice = in.Price - dist
	}
	if dist == 0 {
		if err := activate(p, in, params); err != nil {
			return nil, fmt.Errorf("create %s: %w", pair, err)
		}
	}
	return p, nil
}

// Step evaluates one cycle for the position and applies at most one
// transition, in priority order: closure, then trailing activation or
// improvement, then reference recalibration. The position is mutated in
// place except for EventClose, which leaves it untouched so a failed
// closing order can be retried next cycle.
func Step(p *domain.Position, in Input, params Params) (Event, error) {
	if p.IsTrailing() {
		return stepTrailing(p, in, params)
	}
	return stepPending(p, in, params)
}

func stepPending(p *domain.Position, in Input, params Params) (Event, error) {
	crossed := (p.Side == domain.SideSell && in.Price >= p.ActivationPrice) ||
		(p.Side == domain.SideBuy && in.Price <= p.ActivationPrice)
	if crossed {
		if err := activate(p, in, params); err != nil {
			return EventNone, err
		}
		return EventActivated, nil
	}
	if calibrator.Stale(in.ATR, p.ActivationATR, params.DeviationLimit) {
		dist, err := calibrator.ActivationDistance(params.Rule, in.ATR, p.EntryPrice, p.Side, in.Regime, params.Multipliers)
		if err != nil {
			return EventNone, err
		}
		if p.Side == domain.SideSell {
			p.ActivationPrice = p.EntryPrice + dist
		} else {
			p.ActivationPrice = p.EntryPrice - dist
		}
		p.ActivationATR = in.ATR
		return EventRecalibrated, nil
	}
	return EventNone, nil
}

func stepTrailing(p *domain.Position, in Input, params Params) (Event, error) {
	stop := *p.StopPrice
	if (p.Side == domain.SideSell && in.Price <= stop) ||
		(p.Side == domain.SideBuy && in.Price >= stop) {
		return EventClose, nil
	}
	trailing := *p.TrailingPrice
	improved := (p.Side == domain.SideSell && in.Price > trailing) ||
		(p.Side == domain.SideBuy && in.Price < trailing)
	if improved {
		// The stop is recomputed from the current multiplier and the
		// stored reference ATR, so a regime shift takes effect on the
		// next favorable move. The ratchet still applies.
		dist, err := calibrator.StopDistance(p.StopATR, p.Side, in.Regime, params.Multipliers)
		if err != nil {
			return EventNone, err
		}
		candidate := in.Price - dist
		if p.Side == domain.SideBuy {
			candidate = in.Price + dist
		}
		p.TrailingPrice = &in.Price
		if (p.Side == domain.SideSell && candidate > stop) ||
			(p.Side == domain.SideBuy && candidate < stop) {
			p.StopPrice = &candidate
		}
		return EventImproved, nil
	}
	if calibrator.Stale(in.ATR, p.StopATR, params.DeviationLimit) {
		dist, err := calibrator.StopDistance(in.ATR, p.Side, in.Regime, params.Multipliers)
		if err != nil {
			return EventNone, err
		}
		candidate := trailing - dist
		if p.Side == domain.SideBuy {
			candidate = trailing + dist
		}
		// Ratchet: the stop never moves in the adverse direction.
		if (p.Side == domain.SideSell && candidate > stop) ||
			(p.Side == domain.SideBuy && candidate < stop) {
			p.StopPrice = &candidate
		}
		p.StopATR = in.ATR
		return EventRecalibrated, nil
	}
	return EventNone, nil
}

// activate switches the position into trailing at the current price.
func activate(p *domain.Position, in Input, params Params) error {
	dist, err := calibrator.StopDistance(in.ATR, p.Side, in.Regime, params.Multipliers)
	if err != nil {
		return err
	}
	stop := in.Price - dist
	if p.Side == domain.SideBuy {
		stop = in.Price + dist
	}
	now := in.Now
	price := in.Price
	p.ActivationTime = &now
	p.TrailingPrice = &price
	p.StopPrice = &stop
	p.StopATR = in.ATR
	return nil
}

// Close builds the audit snapshot for a position whose closing order was
// accepted by the exchange. The closing price is the stop price the limit
// order was placed at.
func Close(p *domain.Position, orderID string, now time.Time) (*domain.ClosedPosition, error) {
	if !p.IsTrailing() || p.StopPrice == nil {
		return nil, fmt.Errorf("close %s: %w", p.Pair, domain.ErrNoActivePosition)
	}
	closingPrice := *p.StopPrice
	return &domain.ClosedPosition{
		Position:     *p,
		ClosingPrice: closingPrice,
		ClosingOrder: orderID,
		ClosingTime:  now,
		PnL:          p.PnLPercent(closingPrice),
	}, nil
}
