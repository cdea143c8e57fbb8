package database

import (
	"context"
	"time"

	"github.com/applyflow/jobcrawl/internal/domain"
)

// ListingStore defines the contract for job listing data access. The
// deduplicator is its only writer.
type ListingStore interface {
	Insert(ctx context.Context, job *domain.Job) error
	FindBySourceID(ctx context.Context, source domain.Source, sourceID string) (*domain.Job, error)
	FindByNormalizedURL(ctx context.Context, normalizedURL string) (*domain.Job, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*domain.Job, error)
	Refresh(ctx context.Context, job *domain.Job) error
}

// CrawlStore defines the contract for crawl run data access. The executor
// owns all writes during a run; the registry reads.
type CrawlStore interface {
	Create(ctx context.Context, run *domain.CrawlJob) error
	GetByID(ctx context.Context, id string) (*domain.CrawlJob, error)
	Update(ctx context.Context, run *domain.CrawlJob) error
	ListByStatus(ctx context.Context, status domain.CrawlStatus, limit, offset int) ([]*domain.CrawlJob, error)
	ListTerminal(ctx context.Context, limit, offset int) ([]*domain.CrawlJob, error)
	Stats(ctx context.Context) (*domain.CrawlStats, error)
}

// ScheduleStore defines the contract for recurring schedule data access. The
// scheduler owns the run-time fields.
type ScheduleStore interface {
	Create(ctx context.Context, sched *domain.ScheduledCrawl) error
	GetByID(ctx context.Context, id string) (*domain.ScheduledCrawl, error)
	UpdateRunTimes(ctx context.Context, sched *domain.ScheduledCrawl) error
	Cancel(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]*domain.ScheduledCrawl, error)
	ListDue(ctx context.Context, now time.Time) ([]*domain.ScheduledCrawl, error)
}

// Compile-time interface checks.
var (
	_ ListingStore  = (*ListingRepository)(nil)
	_ CrawlStore    = (*CrawlRepository)(nil)
	_ ScheduleStore = (*ScheduleRepository)(nil)
)
