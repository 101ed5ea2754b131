package domain

import "errors"

var (
	// ErrInsufficientData is returned when a computation needs more candles
	// or samples than are available. Callers must treat it as "no answer",
	// never as a zero value.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNoActivePosition is returned when an operation requires an active
	// position for a pair and none exists.
	ErrNoActivePosition = errors.New("no active position")

	// ErrNoOpportunity is returned by the inventory analyzer when the
	// portfolio imbalance is below the minimum order value.
	ErrNoOpportunity = errors.New("no trade opportunity")
)
