package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/applyflow/jobcrawl/internal/database"
	"github.com/applyflow/jobcrawl/internal/domain"
	"github.com/applyflow/jobcrawl/internal/logger"
)

// Deduplicator reconciles raw job records against the listing store. It is
// the sole owner of identity computation and of mutations to existing
// listings.
//
// When a lookup fails (storage unavailable), the record is treated as new:
// the policy prefers risking a duplicate insert over silently dropping a
// listing. The unique constraints on the jobs table are the backstop.
type Deduplicator struct {
	store  database.ListingStore
	logger logger.Interface

	// now is swappable for tests.
	now func() time.Time
}

// Outcome reports what Reconcile did with one raw record.
type Outcome struct {
	Job     *domain.Job
	Created bool
}

// New creates a new deduplicator.
func New(store database.ListingStore, log logger.Interface) *Deduplicator {
	return &Deduplicator{
		store:  store,
		logger: log.WithComponent("dedup"),
		now:    time.Now,
	}
}

// IsDuplicate reports whether the raw record matches an existing listing.
func (d *Deduplicator) IsDuplicate(ctx context.Context, raw *domain.RawJob) bool {
	return d.findExisting(ctx, raw) != nil
}

// Reconcile creates a listing on first sighting or refreshes the existing one
// on a re-sighting. Reconciling the same record twice never creates two rows.
func (d *Deduplicator) Reconcile(ctx context.Context, raw *domain.RawJob) (*Outcome, error) {
	if existing := d.findExisting(ctx, raw); existing != nil {
		if err := d.refresh(ctx, existing, raw); err != nil {
			return nil, err
		}
		return &Outcome{Job: existing, Created: false}, nil
	}

	job := d.newListing(raw)
	err := d.store.Insert(ctx, job)
	if err == nil {
		return &Outcome{Job: job, Created: true}, nil
	}

	// A unique violation means a concurrent reconcile created this listing
	// between our lookup and insert: lose the race gracefully and refresh
	// the winner's row instead.
	if database.IsUniqueViolation(err) {
		d.logger.Debug("lost insert race, refreshing existing listing",
			"fingerprint", job.Fingerprint)
		if existing := d.findExisting(ctx, raw); existing != nil {
			if refreshErr := d.refresh(ctx, existing, raw); refreshErr != nil {
				return nil, refreshErr
			}
			return &Outcome{Job: existing, Created: false}, nil
		}
	}

	return nil, fmt.Errorf("failed to reconcile job %q: %w", raw.Title, err)
}

// findExisting applies the identity checks in priority order, first match
// wins: (source, sourceId), then normalized URL, then fingerprint. Lookup
// failures are logged and treated as no match.
func (d *Deduplicator) findExisting(ctx context.Context, raw *domain.RawJob) *domain.Job {
	if raw.Source.IsValid() && raw.SourceID != "" {
		job, err := d.store.FindBySourceID(ctx, raw.Source, raw.SourceID)
		if err != nil {
			d.logger.Warn("source id lookup failed, assuming new listing",
				"source", raw.Source, "source_id", raw.SourceID, "error", err)
		} else if job != nil {
			return job
		}
	}

	if raw.URL != "" {
		if normalized, err := NormalizeJobURL(raw.URL); err == nil {
			job, lookupErr := d.store.FindByNormalizedURL(ctx, normalized)
			if lookupErr != nil {
				d.logger.Warn("url lookup failed, assuming new listing",
					"url", normalized, "error", lookupErr)
			} else if job != nil {
				return job
			}
		}
	}

	fingerprint := Fingerprint(raw.Company, raw.Title, raw.Location)
	job, err := d.store.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		d.logger.Warn("fingerprint lookup failed, assuming new listing",
			"fingerprint", fingerprint, "error", err)
		return nil
	}

	return job
}

// refresh overwrites the mutable fields of an existing listing with the new
// sighting's values. Non-empty values only: a previously known description or
// salary is never blanked out by a sparser re-sighting.
func (d *Deduplicator) refresh(ctx context.Context, existing *domain.Job, raw *domain.RawJob) error {
	if raw.Description != "" {
		existing.Description = raw.Description
	}
	if raw.Salary != "" {
		existing.Salary = raw.Salary
	}
	if len(raw.Skills) > 0 {
		existing.Skills = domain.StringSlice(raw.Skills)
	}
	existing.IsActive = true
	existing.CrawledDate = d.now()

	if err := d.store.Refresh(ctx, existing); err != nil {
		return fmt.Errorf("failed to refresh listing %s: %w", existing.ID, err)
	}

	existing.UpdatedAt = existing.CrawledDate
	return nil
}

// newListing builds a Job from a raw record with all three identity fields
// populated so every future lookup path can find it.
func (d *Deduplicator) newListing(raw *domain.RawJob) *domain.Job {
	now := d.now()

	job := &domain.Job{
		ID:          uuid.NewString(),
		Title:       raw.Title,
		Company:     raw.Company,
		Location:    raw.Location,
		Description: raw.Description,
		Salary:      raw.Salary,
		Skills:      domain.StringSlice(raw.Skills),
		Source:      raw.Source,
		Fingerprint: Fingerprint(raw.Company, raw.Title, raw.Location),
		PostedDate:  raw.PostedDate,
		CrawledDate: now,
		IsActive:    true,
	}
	if !job.Source.IsValid() {
		job.Source = domain.SourceOther
	}

	if raw.SourceID != "" {
		sourceID := raw.SourceID
		job.SourceID = &sourceID
	}
	if raw.URL != "" {
		rawURL := raw.URL
		job.URL = &rawURL
		if normalized, err := NormalizeJobURL(raw.URL); err == nil {
			job.NormalizedURL = &normalized
		}
	}

	return job
}
