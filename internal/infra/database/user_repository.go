package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cycle_reminder_bot/internal/domain/user"
)

// UserRepository implements user.Repository on top of PostgreSQL or SQLite.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, telegram_id, username, timezone, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*user.User, error) {
	u := &user.User{}
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.Timezone, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	query := `INSERT INTO users (telegram_id, username, timezone, is_active, created_at, updated_at)
               VALUES ($1, $2, $3, $4, $5, $5)
               RETURNING id`

	if u.Timezone == "" {
		u.Timezone = user.DefaultTimezone
	}
	now := nowUTC()

	err := r.db.QueryRowContext(ctx, query, u.TelegramID, u.Username, u.Timezone, u.IsActive, now).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTelegramID
		}
		return fmt.Errorf("error creating user: %w", err)
	}
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error getting user by ID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error getting user by Telegram ID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	query := `UPDATE users
               SET username = $1, timezone = $2, is_active = $3, updated_at = $4
               WHERE id = $5`

	now := nowUTC()
	res, err := r.db.ExecContext(ctx, query, u.Username, u.Timezone, u.IsActive, now, u.ID)
	if err != nil {
		return fmt.Errorf("error updating user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking updated user: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	u.UpdatedAt = now
	return nil
}

// Delete removes the user together with every row that references them.
// Child tables are cleared explicitly so the result does not depend on
// foreign key enforcement being enabled.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting user deletion: %w", err)
	}
	defer tx.Rollback() // No-op after commit

	for _, table := range []string{"scheduled_jobs", "notification_settings", "notification_log", "period_history", "cycle_profiles"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("error deleting user data from %s: %w", table, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing user deletion: %w", err)
	}
	return nil
}

func (r *UserRepository) Stats(ctx context.Context) (user.Stats, error) {
	query := `SELECT COUNT(*),
                      COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0),
                      (SELECT COUNT(*) FROM cycle_profiles)
               FROM users`

	var s user.Stats
	if err := r.db.QueryRowContext(ctx, query).Scan(&s.Total, &s.Active, &s.WithProfile); err != nil {
		return user.Stats{}, fmt.Errorf("error collecting user stats: %w", err)
	}
	return s, nil
}
