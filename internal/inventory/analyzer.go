// Package inventory turns the account balance into at most one trade
// opportunity per pair, steering the asset allocation toward a target
// fraction of the portfolio while never touching the hodl reserve.
package inventory

import (
	"fmt"

	"trailbot/internal/domain"
)

// Allocation is the per-pair portfolio policy.
type Allocation struct {
	TargetPct float64 // desired asset fraction of total portfolio value
	HodlPct   float64 // untouchable asset fraction of total portfolio value
	MinValue  float64 // minimum order value in quote currency
}

// Validate checks the policy fractions are sane.
func (a Allocation) Validate() error {
	if a.TargetPct < 0 || a.TargetPct > 1 {
		return fmt.Errorf("target pct %.4f out of [0,1]", a.TargetPct)
	}
	if a.HodlPct < 0 || a.HodlPct > 1 {
		return fmt.Errorf("hodl pct %.4f out of [0,1]", a.HodlPct)
	}
	if a.MinValue < 0 {
		return fmt.Errorf("min value %.4f negative", a.MinValue)
	}
	return nil
}

// Opportunity is a proposed position: sell excess asset or buy toward the
// target, sized in quote value and base volume.
type Opportunity struct {
	Side   domain.Side
	Value  float64 // quote currency
	Volume float64 // base currency, Value/price
}

// Analyze sizes the rebalancing trade for a pair. asset is the base
// balance, cash the free quote balance, price the live quote. When the
// sized value falls below the allocation minimum it returns
// domain.ErrNoOpportunity. An exactly balanced portfolio takes the buy
// branch, which then sizes to zero and yields no opportunity.
func Analyze(asset, cash, price float64, alloc Allocation) (*Opportunity, error) {
	if price <= 0 {
		return nil, fmt.Errorf("analyze: price %.8f not positive", price)
	}
	assetValue := asset * price
	total := assetValue + cash
	hodlValue := total * alloc.HodlPct
	targetValue := total * alloc.TargetPct

	var side domain.Side
	var value float64
	if assetValue > targetValue {
		side = domain.SideSell
		value = assetValue - hodlValue
	} else {
		side = domain.SideBuy
		value = targetValue - assetValue
		if value > cash {
			value = cash
		}
	}
	if value < 0 {
		value = 0
	}
	if value < alloc.MinValue || value == 0 {
		return nil, fmt.Errorf("analyze: %s value %.2f below minimum %.2f: %w",
			side, value, alloc.MinValue, domain.ErrNoOpportunity)
	}
	return &Opportunity{Side: side, Value: value, Volume: value / price}, nil
}
