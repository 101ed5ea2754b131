// Package repository implements the persistence gateways over PostgreSQL.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trailbot/internal/domain"
)

// CandleRepositoryImpl implements domain.CandleRepository.
type CandleRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewCandleRepository creates a new CandleRepository.
func NewCandleRepository(db *pgxpool.Pool) domain.CandleRepository {
	return &CandleRepositoryImpl{db: db}
}

// SaveBatch upserts candles keyed by (pair, open_time).
func (r *CandleRepositoryImpl) SaveBatch(ctx context.Context, pair string, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	query := `
		INSERT INTO candles (pair, open_time, open, high, low, close)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pair, open_time) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close
	`
	for _, c := range candles {
		batch.Queue(query, pair, c.OpenTime, c.Open, c.High, c.Low, c.Close)
	}
	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for range candles {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save candles for %s: %w", pair, err)
		}
	}
	return nil
}

// Latest returns up to limit most recent candles in ascending order.
func (r *CandleRepositoryImpl) Latest(ctx context.Context, pair string, limit int) ([]domain.Candle, error) {
	query := `
		SELECT open_time, open, high, low, close
		FROM (
			SELECT open_time, open, high, low, close
			FROM candles
			WHERE pair = $1
			ORDER BY open_time DESC
			LIMIT $2
		) recent
		ORDER BY open_time ASC
	`
	rows, err := r.db.Query(ctx, query, pair, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for %s: %w", pair, err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// Range returns candles with open_time in [from, to), ascending.
func (r *CandleRepositoryImpl) Range(ctx context.Context, pair string, from, to time.Time) ([]domain.Candle, error) {
	query := `
		SELECT open_time, open, high, low, close
		FROM candles
		WHERE pair = $1 AND open_time >= $2 AND open_time < $3
		ORDER BY open_time ASC
	`
	rows, err := r.db.Query(ctx, query, pair, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query candle range for %s: %w", pair, err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// LastOpenTime returns the newest stored open time for the pair.
func (r *CandleRepositoryImpl) LastOpenTime(ctx context.Context, pair string) (time.Time, error) {
	query := `SELECT MAX(open_time) FROM candles WHERE pair = $1`
	var last *time.Time
	if err := r.db.QueryRow(ctx, query, pair).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("failed to query candle cursor for %s: %w", pair, err)
	}
	if last == nil {
		return time.Time{}, fmt.Errorf("no candles for %s: %w", pair, domain.ErrInsufficientData)
	}
	return *last, nil
}

func scanCandles(rows pgx.Rows) ([]domain.Candle, error) {
	var out []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read candles: %w", err)
	}
	return out, nil
}
