package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cycle_reminder_bot/internal/domain/cycle"
)

// CycleRepository implements cycle.Repository.
type CycleRepository struct {
	db *sql.DB
}

func NewCycleRepository(db *sql.DB) *CycleRepository {
	return &CycleRepository{db: db}
}

// --- Profile Methods ---

func (r *CycleRepository) GetProfile(ctx context.Context, userID int64) (*cycle.Profile, error) {
	query := `SELECT user_id, last_period_date, cycle_length, period_length, updated_at
               FROM cycle_profiles WHERE user_id = $1`
	p := &cycle.Profile{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&p.UserID, &p.LastPeriodDate, &p.CycleLength, &p.PeriodLength, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("error getting cycle profile: %w", err)
	}
	p.LastPeriodDate = cycle.Day(p.LastPeriodDate)
	return p, nil
}

func (r *CycleRepository) SaveProfile(ctx context.Context, p *cycle.Profile) error {
	query := `INSERT INTO cycle_profiles (user_id, last_period_date, cycle_length, period_length, updated_at)
               VALUES ($1, $2, $3, $4, $5)
               ON CONFLICT (user_id) DO UPDATE
               SET last_period_date = excluded.last_period_date,
                   cycle_length = excluded.cycle_length,
                   period_length = excluded.period_length,
                   updated_at = excluded.updated_at`

	now := nowUTC()
	_, err := r.db.ExecContext(ctx, query, p.UserID, cycle.Day(p.LastPeriodDate), p.CycleLength, p.PeriodLength, now)
	if err != nil {
		return fmt.Errorf("error saving cycle profile: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

func (r *CycleRepository) ListProfiles(ctx context.Context) ([]*cycle.Profile, error) {
	query := `SELECT user_id, last_period_date, cycle_length, period_length, updated_at
               FROM cycle_profiles ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing cycle profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]*cycle.Profile, 0)
	for rows.Next() {
		p := &cycle.Profile{}
		if err := rows.Scan(&p.UserID, &p.LastPeriodDate, &p.CycleLength, &p.PeriodLength, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning cycle profile: %w", err)
		}
		p.LastPeriodDate = cycle.Day(p.LastPeriodDate)
		profiles = append(profiles, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycle profiles: %w", err)
	}
	return profiles, nil
}

// --- History Methods ---

func (r *CycleRepository) AppendHistory(ctx context.Context, userID int64, start time.Time) error {
	query := `INSERT INTO period_history (user_id, start_date, confirmed_at, source)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT (user_id, start_date) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, userID, cycle.Day(start), nowUTC(), cycle.StartConfirmed); err != nil {
		return fmt.Errorf("error appending period history: %w", err)
	}
	return nil
}

// RecordSetupStart stores the start entered during setup in one transaction.
// Starts on or after it are dropped, and so is the newest remaining start when
// it also came from setup and was never followed by a confirmation.
func (r *CycleRepository) RecordSetupStart(ctx context.Context, userID int64, start time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting setup start replacement: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	start = cycle.Day(start)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM period_history WHERE user_id = $1 AND start_date >= $2`, userID, start); err != nil {
		return fmt.Errorf("error deleting superseded period starts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM period_history
               WHERE source = $2 AND id IN (
                   SELECT id FROM period_history WHERE user_id = $1 ORDER BY start_date DESC LIMIT 1
               )`, userID, cycle.StartFromSetup); err != nil {
		return fmt.Errorf("error deleting previous setup start: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO period_history (user_id, start_date, confirmed_at, source)
               VALUES ($1, $2, $3, $4)`, userID, start, nowUTC(), cycle.StartFromSetup); err != nil {
		return fmt.Errorf("error inserting setup start: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing setup start: %w", err)
	}
	return nil
}

func (r *CycleRepository) GetConfirmedHistory(ctx context.Context, userID int64, limit int) ([]time.Time, error) {
	query := `SELECT start_date FROM period_history
               WHERE user_id = $1
               ORDER BY start_date DESC
               LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying period history: %w", err)
	}
	defer rows.Close()

	var newestFirst []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("error scanning period history row: %w", err)
		}
		newestFirst = append(newestFirst, cycle.Day(d))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating period history: %w", err)
	}

	history := make([]time.Time, len(newestFirst))
	for i, d := range newestFirst {
		history[len(newestFirst)-1-i] = d
	}
	return history, nil
}
