package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/applyflow/jobcrawl/internal/domain"
)

const crawlColumns = `id, source, status, search_params, start_time, end_time,
	       duration_ms, result, error_message, is_scheduled, schedule_id,
	       created_at, updated_at`

// CrawlRepository handles database operations for crawl runs.
type CrawlRepository struct {
	db *sqlx.DB
}

// NewCrawlRepository creates a new crawl run repository.
func NewCrawlRepository(db *sqlx.DB) *CrawlRepository {
	return &CrawlRepository{db: db}
}

// Create inserts a new crawl run row.
func (r *CrawlRepository) Create(ctx context.Context, run *domain.CrawlJob) error {
	query := `
		INSERT INTO crawl_jobs (id, source, status, search_params, start_time,
		                        is_scheduled, schedule_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		run.ID,
		run.Source,
		run.Status,
		run.SearchParams,
		run.StartTime,
		run.IsScheduled,
		run.ScheduleID,
	).Scan(&run.CreatedAt, &run.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create crawl job: %w", err)
	}

	return nil
}

// GetByID retrieves a crawl run by its run identifier.
func (r *CrawlRepository) GetByID(ctx context.Context, id string) (*domain.CrawlJob, error) {
	var run domain.CrawlJob
	query := `SELECT ` + crawlColumns + ` FROM crawl_jobs WHERE id = $1`

	err := r.db.GetContext(ctx, &run, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCrawlJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get crawl job: %w", err)
	}

	return &run, nil
}

// Update persists the terminal fields of a run: status, end time, duration,
// result tally and error message.
func (r *CrawlRepository) Update(ctx context.Context, run *domain.CrawlJob) error {
	query := `
		UPDATE crawl_jobs
		SET status = $1, end_time = $2, duration_ms = $3, result = $4,
		    error_message = $5, updated_at = NOW()
		WHERE id = $6
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		run.Status,
		run.EndTime,
		run.DurationMS,
		run.Result,
		run.ErrorMessage,
		run.ID,
	)
	if execErr := execRequireRows(result, err, ErrCrawlJobNotFound); execErr != nil {
		return fmt.Errorf("failed to update crawl job %s: %w", run.ID, execErr)
	}

	return nil
}

// ListByStatus retrieves runs in the given status, most recent first.
func (r *CrawlRepository) ListByStatus(
	ctx context.Context, status domain.CrawlStatus, limit, offset int,
) ([]*domain.CrawlJob, error) {
	var runs []*domain.CrawlJob
	query := `
		SELECT ` + crawlColumns + `
		FROM crawl_jobs
		WHERE status = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`

	if err := r.db.SelectContext(ctx, &runs, query, status, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list crawl jobs: %w", err)
	}

	if runs == nil {
		runs = []*domain.CrawlJob{}
	}

	return runs, nil
}

// ListTerminal retrieves completed, failed and cancelled runs, most recent
// first.
func (r *CrawlRepository) ListTerminal(ctx context.Context, limit, offset int) ([]*domain.CrawlJob, error) {
	var runs []*domain.CrawlJob
	query := `
		SELECT ` + crawlColumns + `
		FROM crawl_jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		ORDER BY start_time DESC
		LIMIT $1 OFFSET $2
	`

	if err := r.db.SelectContext(ctx, &runs, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list crawl history: %w", err)
	}

	if runs == nil {
		runs = []*domain.CrawlJob{}
	}

	return runs, nil
}

// Stats aggregates completed runs grouped by source. The JSONB result column
// holds the per-run tally; sums and averages are computed in SQL so the
// aggregation stays consistent regardless of process restarts.
func (r *CrawlRepository) Stats(ctx context.Context) (*domain.CrawlStats, error) {
	var bySource []domain.SourceStats
	query := `
		SELECT source,
		       COUNT(*) AS runs,
		       COALESCE(SUM((result->>'total')::int), 0) AS total_fetched,
		       COALESCE(SUM((result->>'saved')::int), 0) AS total_saved,
		       COALESCE(SUM((result->>'duplicates')::int), 0) AS total_duplicates,
		       COALESCE(SUM((result->>'errors')::int), 0) AS total_errors,
		       COALESCE(AVG(duration_ms), 0) AS avg_duration_ms
		FROM crawl_jobs
		WHERE status = 'completed'
		GROUP BY source
		ORDER BY source
	`

	if err := r.db.SelectContext(ctx, &bySource, query); err != nil {
		return nil, fmt.Errorf("failed to aggregate crawl stats: %w", err)
	}

	stats := &domain.CrawlStats{BySource: bySource}
	for _, s := range bySource {
		stats.Total.Runs += s.Runs
		stats.Total.TotalFetched += s.TotalFetched
		stats.Total.TotalSaved += s.TotalSaved
		stats.Total.TotalDupes += s.TotalDupes
		stats.Total.TotalErrors += s.TotalErrors
	}
	if stats.Total.Runs > 0 {
		var weighted float64
		for _, s := range bySource {
			weighted += s.AvgDurationMS * float64(s.Runs)
		}
		stats.Total.AvgDurationMS = weighted / float64(stats.Total.Runs)
	}

	return stats, nil
}
