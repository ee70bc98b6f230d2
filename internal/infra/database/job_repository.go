package database

import (
	"context"
	"database/sql"
	"fmt"

	"cycle_reminder_bot/internal/domain/cycle"
	"cycle_reminder_bot/internal/domain/notification"
)

// JobRepository is the durable notification.JobStore.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `job_id, user_id, notification_type, scheduled_date, fire_at, timezone, created_at`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listJobs(ctx context.Context, q queryer, query string, args ...any) ([]notification.ScheduledJob, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying scheduled jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]notification.ScheduledJob, 0)
	for rows.Next() {
		var j notification.ScheduledJob
		if err := rows.Scan(&j.ID, &j.UserID, &j.Type, &j.ScheduledDate, &j.FireAt, &j.Timezone, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning scheduled job: %w", err)
		}
		j.ScheduledDate = cycle.Day(j.ScheduledDate)
		j.FireAt = j.FireAt.UTC()
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled jobs: %w", err)
	}
	return jobs, nil
}

// ReplaceForUser deletes every job of the user and inserts jobs in one transaction.
func (r *JobRepository) ReplaceForUser(ctx context.Context, userID int64, jobs []notification.ScheduledJob) ([]notification.ScheduledJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting job replacement: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	previous, err := listJobs(ctx, tx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("error deleting replaced jobs: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO scheduled_jobs
                   (user_id, notification_type, job_id, scheduled_date, fire_at, timezone, created_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return nil, fmt.Errorf("error preparing job insert: %w", err)
	}
	defer stmt.Close()

	now := nowUTC()
	for _, j := range jobs {
		if j.UserID != userID {
			return nil, fmt.Errorf("job %s belongs to user %d, not %d", j.ID, j.UserID, userID)
		}
		_, err := stmt.ExecContext(ctx, j.UserID, j.Type, j.ID, cycle.Day(j.ScheduledDate), j.FireAt.UTC(), j.Timezone, now)
		if err != nil {
			return nil, fmt.Errorf("error inserting job for %s: %w", j.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing job replacement: %w", err)
	}
	return previous, nil
}

func (r *JobRepository) DeleteForUser(ctx context.Context, userID int64) ([]notification.ScheduledJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting job deletion: %w", err)
	}
	defer tx.Rollback()

	removed, err := listJobs(ctx, tx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("error deleting user jobs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing job deletion: %w", err)
	}
	return removed, nil
}

func (r *JobRepository) DeleteJob(ctx context.Context, key notification.JobKey, jobID string) error {
	query := `DELETE FROM scheduled_jobs WHERE user_id = $1 AND notification_type = $2 AND job_id = $3`
	if _, err := r.db.ExecContext(ctx, query, key.UserID, key.Type, jobID); err != nil {
		return fmt.Errorf("error deleting job %s: %w", jobID, err)
	}
	return nil
}

func (r *JobRepository) ListPending(ctx context.Context) ([]notification.ScheduledJob, error) {
	return listJobs(ctx, r.db, `SELECT `+jobColumns+` FROM scheduled_jobs ORDER BY fire_at, user_id`)
}

func (r *JobRepository) ListJobsForUser(ctx context.Context, userID int64) ([]notification.ScheduledJob, error) {
	return listJobs(ctx, r.db, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE user_id = $1 ORDER BY fire_at`, userID)
}

func (r *JobRepository) CountJobs(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scheduled_jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting scheduled jobs: %w", err)
	}
	return n, nil
}
