// Package registry tracks in-flight and historical crawl runs. Persisted
// storage is the source of truth; an in-memory set of runs active in this
// process is layered on top as a low-latency optimization. After a restart
// the registry answers from storage alone.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/applyflow/jobcrawl/internal/database"
	"github.com/applyflow/jobcrawl/internal/domain"
	"github.com/applyflow/jobcrawl/internal/logger"
)

// ErrRunNotFound indicates the run id is unknown to both the in-memory
// active set and persisted history.
var ErrRunNotFound = errors.New("crawl run not found")

// Default paging bounds for history queries.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// Registry is the read/aggregation layer over crawl runs.
type Registry struct {
	store  database.CrawlStore
	logger logger.Interface

	mu     sync.RWMutex
	active map[string]*domain.CrawlJob
}

// New creates a new crawl registry.
func New(store database.CrawlStore, log logger.Interface) *Registry {
	return &Registry{
		store:  store,
		logger: log.WithComponent("registry"),
		active: make(map[string]*domain.CrawlJob),
	}
}

// TrackActive records a run as active in this process. The executor keeps
// writing to its own row for the rest of the run, so the registry stores a
// snapshot rather than the live pointer.
func (r *Registry) TrackActive(run *domain.CrawlJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[run.ID] = run.Clone()
}

// UntrackActive removes a run from the in-memory active set once it reaches
// a terminal state.
func (r *Registry) UntrackActive(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, runID)
}

// GetStatus returns the run with the given id, preferring the in-memory
// entry as the more current view.
func (r *Registry) GetStatus(ctx context.Context, runID string) (*domain.CrawlJob, error) {
	r.mu.RLock()
	run, ok := r.active[runID]
	r.mu.RUnlock()
	if ok {
		return run, nil
	}

	stored, err := r.store.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, database.ErrCrawlJobNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	return stored, nil
}

// ListActive returns all running crawls: a merged view of the in-memory set
// and persisted running rows, de-duplicated by run id with in-memory entries
// taking precedence.
func (r *Registry) ListActive(ctx context.Context) ([]*domain.CrawlJob, error) {
	stored, err := r.store.ListByStatus(ctx, domain.CrawlStatusRunning, MaxHistoryLimit, 0)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	merged := make([]*domain.CrawlJob, 0, len(stored)+len(r.active))
	seen := make(map[string]struct{}, len(r.active))

	for _, run := range r.active {
		if run.Status == domain.CrawlStatusRunning {
			merged = append(merged, run)
			seen[run.ID] = struct{}{}
		}
	}
	for _, run := range stored {
		if _, dup := seen[run.ID]; !dup {
			merged = append(merged, run)
		}
	}

	return merged, nil
}

// ListHistory returns terminal-status runs, most recent first.
func (r *Registry) ListHistory(ctx context.Context, limit, offset int) ([]*domain.CrawlJob, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	return r.store.ListTerminal(ctx, limit, offset)
}

// Stats aggregates completed runs by source and overall.
func (r *Registry) Stats(ctx context.Context) (*domain.CrawlStats, error) {
	return r.store.Stats(ctx)
}
