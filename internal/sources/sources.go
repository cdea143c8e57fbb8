// Package sources defines the JobSource capability implemented by each
// external job board integration, and the static registry resolving source
// ids to implementations.
package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/applyflow/jobcrawl/internal/domain"
)

var (
	// ErrUnknownSource indicates no integration is registered for the id.
	ErrUnknownSource = errors.New("unknown job source")
	// ErrNotConfigured indicates the integration exists but lacks credentials
	// or configuration and cannot fetch.
	ErrNotConfigured = errors.New("job source not configured")
)

// FetchOptions are the query parameters passed to a source fetch.
type FetchOptions struct {
	Keywords string
	Location string
	Limit    int
	Remote   bool
}

// OptionsFromParams converts persisted search parameters to fetch options.
func OptionsFromParams(params domain.SearchParams) FetchOptions {
	return FetchOptions{
		Keywords: params.Keywords,
		Location: params.Location,
		Limit:    params.Limit,
		Remote:   params.Remote,
	}
}

// JobSource is the capability each integration implements. Implementations
// handle their own HTTP clients, retries and timeouts; callers isolate
// failures per source.
type JobSource interface {
	// IsConfigured reports whether the integration has what it needs to fetch.
	IsConfigured() bool
	// FetchJobs returns raw job records for the given options. Errors are
	// source-specific (network, auth, upstream rate limits).
	FetchJobs(ctx context.Context, opts FetchOptions) ([]domain.RawJob, error)
}

// Registry maps source ids to integrations. It is built once at startup and
// read-only afterwards; no dynamic resolution happens at crawl time.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.Source]JobSource
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[domain.Source]JobSource)}
}

// Register adds an integration under the given id. Registering a duplicate id
// is a wiring bug and returns an error rather than silently replacing.
func (r *Registry) Register(id domain.Source, source JobSource) error {
	if !id.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[id]; exists {
		return fmt.Errorf("source %s already registered", id)
	}
	r.sources[id] = source
	return nil
}

// Get resolves a source id, requiring the integration to be configured.
func (r *Registry) Get(id domain.Source) (JobSource, error) {
	r.mu.RLock()
	source, exists := r.sources[id]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	if !source.IsConfigured() {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, id)
	}
	return source, nil
}

// Configured returns the ids of all configured integrations in stable order.
func (r *Registry) Configured() []domain.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.Source, 0, len(r.sources))
	for id, source := range r.sources {
		if source.IsConfigured() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
