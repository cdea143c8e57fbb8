package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/applyflow/jobcrawl/internal/domain"
)

const scheduleColumns = `id, name, source, search_params, status, interval_minutes,
	       schedule, last_run_time, next_run_time, crawl_history,
	       created_at, updated_at`

// ScheduleRepository handles database operations for recurring crawl
// definitions.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create inserts a new schedule.
func (r *ScheduleRepository) Create(ctx context.Context, sched *domain.ScheduledCrawl) error {
	query := `
		INSERT INTO scheduled_crawls (id, name, source, search_params, status,
		                              interval_minutes, schedule, next_run_time, crawl_history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		sched.ID,
		sched.Name,
		sched.Source,
		sched.SearchParams,
		sched.Status,
		sched.IntervalMinutes,
		sched.Schedule,
		sched.NextRunTime,
		sched.CrawlHistory,
	).Scan(&sched.CreatedAt, &sched.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	return nil
}

// GetByID retrieves a schedule by its identifier.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledCrawl, error) {
	var sched domain.ScheduledCrawl
	query := `SELECT ` + scheduleColumns + ` FROM scheduled_crawls WHERE id = $1`

	err := r.db.GetContext(ctx, &sched, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	return &sched, nil
}

// UpdateRunTimes persists the scheduler-owned fields after a run: last run,
// next run and the trimmed history.
func (r *ScheduleRepository) UpdateRunTimes(ctx context.Context, sched *domain.ScheduledCrawl) error {
	query := `
		UPDATE scheduled_crawls
		SET last_run_time = $1, next_run_time = $2, crawl_history = $3, updated_at = NOW()
		WHERE id = $4
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		sched.LastRunTime,
		sched.NextRunTime,
		sched.CrawlHistory,
		sched.ID,
	)
	if execErr := execRequireRows(result, err, ErrScheduleNotFound); execErr != nil {
		return fmt.Errorf("failed to update schedule %s run times: %w", sched.ID, execErr)
	}

	return nil
}

// Cancel marks a schedule cancelled. Returns false when the schedule is
// unknown or already cancelled; cancellation is permanent.
func (r *ScheduleRepository) Cancel(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE scheduled_crawls
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status <> $1
	`

	result, err := r.db.ExecContext(ctx, query, domain.ScheduleStatusCancelled, id)
	if err != nil {
		return false, fmt.Errorf("failed to cancel schedule %s: %w", id, err)
	}

	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return false, fmt.Errorf("failed to cancel schedule %s: %w", id, affectedErr)
	}

	return n > 0, nil
}

// List retrieves active and paused schedules ordered by next run time.
// Cancelled schedules are dead and never listed.
func (r *ScheduleRepository) List(ctx context.Context) ([]*domain.ScheduledCrawl, error) {
	var scheds []*domain.ScheduledCrawl
	query := `
		SELECT ` + scheduleColumns + `
		FROM scheduled_crawls
		WHERE status IN ('active', 'paused')
		ORDER BY next_run_time ASC
	`

	if err := r.db.SelectContext(ctx, &scheds, query); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	if scheds == nil {
		scheds = []*domain.ScheduledCrawl{}
	}

	return scheds, nil
}

// ListDue retrieves active schedules whose next run time is at or before now.
func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time) ([]*domain.ScheduledCrawl, error) {
	var scheds []*domain.ScheduledCrawl
	query := `
		SELECT ` + scheduleColumns + `
		FROM scheduled_crawls
		WHERE status = 'active' AND next_run_time <= $1
		ORDER BY next_run_time ASC
	`

	if err := r.db.SelectContext(ctx, &scheds, query, now); err != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}

	return scheds, nil
}
