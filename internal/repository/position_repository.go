package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trailbot/internal/domain"
)

// PositionRepositoryImpl implements domain.PositionRepository.
type PositionRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewPositionRepository creates a new PositionRepository.
func NewPositionRepository(db *pgxpool.Pool) domain.PositionRepository {
	return &PositionRepositoryImpl{db: db}
}

const positionColumns = `
	id, pair, side, volume, entry_price, activation_price, activation_atr,
	activation_time, trailing_price, stop_price, stop_atr, creation_time
`

// Active retrieves the active position for a pair.
func (r *PositionRepositoryImpl) Active(ctx context.Context, pair string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE pair = $1`
	p, err := scanPosition(r.db.QueryRow(ctx, query, pair))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", pair, domain.ErrNoActivePosition)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query position for %s: %w", pair, err)
	}
	return p, nil
}

// ActiveAll retrieves every active position.
func (r *PositionRepositoryImpl) ActiveAll(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions ORDER BY pair`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}
	return out, nil
}

// Save inserts or fully replaces the active position for its pair.
func (r *PositionRepositoryImpl) Save(ctx context.Context, p *domain.Position) error {
	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (pair) DO UPDATE SET
			id = EXCLUDED.id,
			side = EXCLUDED.side,
			volume = EXCLUDED.volume,
			entry_price = EXCLUDED.entry_price,
			activation_price = EXCLUDED.activation_price,
			activation_atr = EXCLUDED.activation_atr,
			activation_time = EXCLUDED.activation_time,
			trailing_price = EXCLUDED.trailing_price,
			stop_price = EXCLUDED.stop_price,
			stop_atr = EXCLUDED.stop_atr,
			creation_time = EXCLUDED.creation_time
	`
	_, err := r.db.Exec(ctx, query,
		p.ID, p.Pair, p.Side, p.Volume, p.EntryPrice, p.ActivationPrice,
		p.ActivationATR, p.ActivationTime, p.TrailingPrice, p.StopPrice,
		p.StopATR, p.CreationTime,
	)
	if err != nil {
		return fmt.Errorf("failed to save position for %s: %w", p.Pair, err)
	}
	return nil
}

// Close removes the active position and appends the audit record in one
// transaction.
func (r *PositionRepositoryImpl) Close(ctx context.Context, cp *domain.ClosedPosition) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin close transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE id = $1`, cp.ID); err != nil {
		return fmt.Errorf("failed to delete position %s: %w", cp.ID, err)
	}

	query := `
		INSERT INTO closed_positions (` + positionColumns + `,
			closing_price, closing_order, closing_time, pnl)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16)
	`
	_, err = tx.Exec(ctx, query,
		cp.ID, cp.Pair, cp.Side, cp.Volume, cp.EntryPrice, cp.ActivationPrice,
		cp.ActivationATR, cp.ActivationTime, cp.TrailingPrice, cp.StopPrice,
		cp.StopATR, cp.CreationTime,
		cp.ClosingPrice, cp.ClosingOrder, cp.ClosingTime, cp.PnL,
	)
	if err != nil {
		return fmt.Errorf("failed to save closed position for %s: %w", cp.Pair, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit close transaction: %w", err)
	}
	return nil
}

// ClosedSince returns the audit log entries newest first.
func (r *PositionRepositoryImpl) ClosedSince(ctx context.Context, since time.Time) ([]*domain.ClosedPosition, error) {
	query := `
		SELECT ` + positionColumns + `,
			closing_price, closing_order, closing_time, pnl
		FROM closed_positions
		WHERE closing_time >= $1
		ORDER BY closing_time DESC
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed positions: %w", err)
	}
	defer rows.Close()

	var out []*domain.ClosedPosition
	for rows.Next() {
		var cp domain.ClosedPosition
		err := rows.Scan(
			&cp.ID, &cp.Pair, &cp.Side, &cp.Volume, &cp.EntryPrice,
			&cp.ActivationPrice, &cp.ActivationATR, &cp.ActivationTime,
			&cp.TrailingPrice, &cp.StopPrice, &cp.StopATR, &cp.CreationTime,
			&cp.ClosingPrice, &cp.ClosingOrder, &cp.ClosingTime, &cp.PnL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan closed position: %w", err)
		}
		out = append(out, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read closed positions: %w", err)
	}
	return out, nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	err := row.Scan(
		&p.ID, &p.Pair, &p.Side, &p.Volume, &p.EntryPrice, &p.ActivationPrice,
		&p.ActivationATR, &p.ActivationTime, &p.TrailingPrice, &p.StopPrice,
		&p.StopATR, &p.CreationTime,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
