package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"

	"trailbot/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CalibrationRepositoryImpl implements domain.CalibrationRepository.
// Thresholds and multiplier tables are stored as JSONB documents; each
// save appends a new version so a snapshot is never mutated in place.
type CalibrationRepositoryImpl struct {
	db *pgxpool.Pool
}

// NewCalibrationRepository creates a new CalibrationRepository.
func NewCalibrationRepository(db *pgxpool.Pool) domain.CalibrationRepository {
	return &CalibrationRepositoryImpl{db: db}
}

// Save appends a new snapshot with the next version number for its pair.
func (r *CalibrationRepositoryImpl) Save(ctx context.Context, c *domain.Calibration) error {
	thresholds, err := json.Marshal(c.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}
	multipliers, err := json.Marshal(c.Multipliers)
	if err != nil {
		return fmt.Errorf("failed to marshal multipliers: %w", err)
	}
	query := `
		INSERT INTO calibrations (pair, version, thresholds, multipliers, computed_at)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3, $4
		FROM calibrations WHERE pair = $1
		RETURNING version
	`
	if err := r.db.QueryRow(ctx, query, c.Pair, thresholds, multipliers, c.ComputedAt).Scan(&c.Version); err != nil {
		return fmt.Errorf("failed to save calibration for %s: %w", c.Pair, err)
	}
	return nil
}

// Latest retrieves the newest snapshot for a pair.
func (r *CalibrationRepositoryImpl) Latest(ctx context.Context, pair string) (*domain.Calibration, error) {
	query := `
		SELECT pair, version, thresholds, multipliers, computed_at
		FROM calibrations
		WHERE pair = $1
		ORDER BY version DESC
		LIMIT 1
	`
	var c domain.Calibration
	var thresholds, multipliers []byte
	err := r.db.QueryRow(ctx, query, pair).Scan(&c.Pair, &c.Version, &thresholds, &multipliers, &c.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no calibration for %s: %w", pair, domain.ErrInsufficientData)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query calibration for %s: %w", pair, err)
	}
	if err := json.Unmarshal(thresholds, &c.Thresholds); err != nil {
		return nil, fmt.Errorf("failed to decode thresholds for %s: %w", pair, err)
	}
	if err := json.Unmarshal(multipliers, &c.Multipliers); err != nil {
		return nil, fmt.Errorf("failed to decode multipliers for %s: %w", pair, err)
	}
	return &c, nil
}
