package domain

import (
	"time"

	"github.com/google/uuid"
)

// Side of a tracked position. A Sell position sells the asset high and
// trails a rising peak; a Buy position buys low and trails a falling trough.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Position state names, derived from the nullable activation fields.
const (
	StatePending  = "PENDING"
	StateTrailing = "TRAILING"
)

// Position is the single tracked position for a pair. At most one active
// position exists per pair at any time; the lifecycle engine exclusively
// owns its mutation.
type Position struct {
	ID              uuid.UUID  `json:"id"`
	Pair            string     `json:"pair"`
	Side            Side       `json:"side"`
	Volume          float64    `json:"volume"`
	EntryPrice      float64    `json:"entry_price"`
	ActivationPrice float64    `json:"activation_price"`
	ActivationATR   float64    `json:"activation_atr"`
	ActivationTime  *time.Time `json:"activation_time,omitempty"`
	TrailingPrice   *float64   `json:"trailing_price,omitempty"`
	StopPrice       *float64   `json:"stop_price,omitempty"`
	StopATR         float64    `json:"stop_atr,omitempty"`
	CreationTime    time.Time  `json:"creation_time"`
}

// State returns PENDING until trailing has activated, TRAILING afterwards.
func (p *Position) State() string {
	if p.ActivationTime == nil {
		return StatePending
	}
	return StateTrailing
}

// IsTrailing reports whether the trailing stop has activated.
func (p *Position) IsTrailing() bool {
	return p.ActivationTime != nil
}

// PnLPercent returns the signed result of closing at closingPrice, as a
// percentage of the entry price. Sell: (entry-close)/entry; Buy mirrors.
func (p *Position) PnLPercent(closingPrice float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == SideSell {
		return (p.EntryPrice - closingPrice) / p.EntryPrice * 100
	}
	return (closingPrice - p.EntryPrice) / p.EntryPrice * 100
}

// ClosedPosition is the audit-log snapshot of a position after closure.
type ClosedPosition struct {
	Position
	ClosingPrice float64   `json:"closing_price"`
	ClosingOrder string    `json:"closing_order"`
	ClosingTime  time.Time `json:"closing_time"`
	PnL          float64   `json:"pnl"`
}
