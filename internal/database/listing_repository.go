package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/applyflow/jobcrawl/internal/domain"
)

// listingColumns is the column list shared by every listing SELECT.
const listingColumns = `id, title, company, location, description, salary, skills,
	       source, source_id, url, normalized_url, fingerprint,
	       posted_date, crawled_date, is_active, created_at, updated_at`

// ListingRepository handles database operations for job listings. The jobs
// table carries unique constraints on (source, source_id), normalized_url and
// fingerprint; those constraints are the backstop for concurrent reconciles
// racing to insert the same listing.
type ListingRepository struct {
	db *sqlx.DB
}

// NewListingRepository creates a new listing repository.
func NewListingRepository(db *sqlx.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// Insert stores a new job listing.
func (r *ListingRepository) Insert(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, title, company, location, description, salary, skills,
		                  source, source_id, url, normalized_url, fingerprint,
		                  posted_date, crawled_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		job.ID,
		job.Title,
		job.Company,
		job.Location,
		job.Description,
		job.Salary,
		job.Skills,
		job.Source,
		job.SourceID,
		job.URL,
		job.NormalizedURL,
		job.Fingerprint,
		job.PostedDate,
		job.CrawledDate,
		job.IsActive,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert job listing: %w", err)
	}

	return nil
}

// FindBySourceID looks up a listing by its (source, source_id) pair. Returns
// nil without error when no listing matches.
func (r *ListingRepository) FindBySourceID(
	ctx context.Context, source domain.Source, sourceID string,
) (*domain.Job, error) {
	query := `SELECT ` + listingColumns + ` FROM jobs WHERE source = $1 AND source_id = $2`
	return r.findOne(ctx, query, source, sourceID)
}

// FindByNormalizedURL looks up a listing by its normalized URL. Returns nil
// without error when no listing matches.
func (r *ListingRepository) FindByNormalizedURL(ctx context.Context, normalizedURL string) (*domain.Job, error) {
	query := `SELECT ` + listingColumns + ` FROM jobs WHERE normalized_url = $1`
	return r.findOne(ctx, query, normalizedURL)
}

// FindByFingerprint looks up a listing by its fingerprint. Returns nil
// without error when no listing matches.
func (r *ListingRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*domain.Job, error) {
	query := `SELECT ` + listingColumns + ` FROM jobs WHERE fingerprint = $1`
	return r.findOne(ctx, query, fingerprint)
}

// Refresh updates the mutable fields of an existing listing after a
// re-sighting: description, salary, skills, activity flag and crawl
// timestamp. Identity fields are immutable and never touched.
func (r *ListingRepository) Refresh(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET description = $1, salary = $2, skills = $3, is_active = $4,
		    crawled_date = $5, updated_at = NOW()
		WHERE id = $6
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		job.Description,
		job.Salary,
		job.Skills,
		job.IsActive,
		job.CrawledDate,
		job.ID,
	)
	if execErr := execRequireRows(result, err, ErrListingNotFound); execErr != nil {
		return fmt.Errorf("failed to refresh job listing %s: %w", job.ID, execErr)
	}

	return nil
}

// CountActive returns the number of active listings.
func (r *ListingRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM jobs WHERE is_active = TRUE`); err != nil {
		return 0, fmt.Errorf("failed to count active listings: %w", err)
	}
	return count, nil
}

func (r *ListingRepository) findOne(ctx context.Context, query string, args ...any) (*domain.Job, error) {
	var job domain.Job
	err := r.db.GetContext(ctx, &job, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up job listing: %w", err)
	}
	return &job, nil
}
