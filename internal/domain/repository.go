package domain

import (
	"context"
	"time"
)

// CandleRepository stores the OHLC candle warehouse per pair.
type CandleRepository interface {
	// SaveBatch upserts candles keyed by (pair, open_time).
	SaveBatch(ctx context.Context, pair string, candles []Candle) error
	// Latest returns up to limit most recent candles in ascending time order.
	Latest(ctx context.Context, pair string, limit int) ([]Candle, error)
	// Range returns candles with OpenTime in [from, to), ascending.
	Range(ctx context.Context, pair string, from, to time.Time) ([]Candle, error)
	// LastOpenTime returns the newest stored open time for the pair, or
	// ErrInsufficientData when the warehouse is empty.
	LastOpenTime(ctx context.Context, pair string) (time.Time, error)
}

// PositionRepository stores the single active position per pair and the
// closed-position audit log.
type PositionRepository interface {
	// Active returns the active position for the pair, or ErrNoActivePosition.
	Active(ctx context.Context, pair string) (*Position, error)
	// ActiveAll returns every active position across pairs.
	ActiveAll(ctx context.Context) ([]*Position, error)
	// Save inserts or fully replaces the active position.
	Save(ctx context.Context, p *Position) error
	// Close atomically deletes the active position and appends the closed
	// snapshot to the audit log.
	Close(ctx context.Context, cp *ClosedPosition) error
	// ClosedSince returns closed positions with ClosingTime >= since,
	// newest first.
	ClosedSince(ctx context.Context, since time.Time) ([]*ClosedPosition, error)
}

// CalibrationRepository stores versioned calibration snapshots per pair.
type CalibrationRepository interface {
	// Save appends a new snapshot; Version is assigned by the store.
	Save(ctx context.Context, c *Calibration) error
	// Latest returns the newest snapshot for the pair, or
	// ErrInsufficientData when none exists.
	Latest(ctx context.Context, pair string) (*Calibration, error)
}
