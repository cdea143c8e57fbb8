// Package executor orchestrates single crawl runs: fan-out over job sources,
// deduplication, persistence and outcome recording.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/applyflow/jobcrawl/internal/database"
	"github.com/applyflow/jobcrawl/internal/dedup"
	"github.com/applyflow/jobcrawl/internal/domain"
	"github.com/applyflow/jobcrawl/internal/logger"
	"github.com/applyflow/jobcrawl/internal/metrics"
	"github.com/applyflow/jobcrawl/internal/notify"
	"github.com/applyflow/jobcrawl/internal/ratelimit"
	"github.com/applyflow/jobcrawl/internal/registry"
	"github.com/applyflow/jobcrawl/internal/sources"
)

var (
	// ErrAllSourcesFailed indicates every source in a fan-out run failed,
	// which fails the run as a whole.
	ErrAllSourcesFailed = errors.New("all sources failed")
	// ErrNoSourcesConfigured indicates a fan-out run found no configured
	// sources to call.
	ErrNoSourcesConfigured = errors.New("no sources configured")
)

// DefaultMaxConcurrentFetches bounds the per-run source fan-out. Source
// counts are small today; the bound exists so growth does not turn a run
// into an unbounded goroutine burst.
const DefaultMaxConcurrentFetches = 5

// ScheduleCallback is notified when a schedule-triggered run finishes, so
// the scheduler can update run times and history. The executor never imports
// the scheduler; the callback is injected after construction.
type ScheduleCallback interface {
	OnRunCompleted(ctx context.Context, scheduleID string, run *domain.CrawlJob)
}

// RunRequest describes one crawl run.
type RunRequest struct {
	// Source is a specific source id or domain.SourceAll for a fan-out.
	Source domain.Source
	// Params are the search parameters passed to each source.
	Params domain.SearchParams
	// Persist controls whether fetched jobs are reconciled and stored.
	// When false the run only reports what it would have fetched.
	Persist bool
	// ScheduleID links the run to the recurring schedule that triggered it.
	ScheduleID string
}

// Config holds executor configuration.
type Config struct {
	// MaxConcurrentFetches bounds the fan-out for "all" runs.
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches" mapstructure:"max_concurrent_fetches"`
}

// Executor runs crawls. It exclusively owns writes to the crawl run row for
// the duration of a run.
type Executor struct {
	registry   *sources.Registry
	limiter    *ratelimit.Limiter
	dedup      *dedup.Deduplicator
	crawlStore database.CrawlStore
	runs       *registry.Registry
	sink       notify.Sink
	metrics    *metrics.Metrics
	logger     logger.Interface

	maxConcurrent int

	mu       sync.RWMutex
	callback ScheduleCallback

	// now is swappable for tests.
	now func() time.Time
}

// New creates a new crawl executor.
func New(
	cfg Config,
	sourceRegistry *sources.Registry,
	limiter *ratelimit.Limiter,
	deduplicator *dedup.Deduplicator,
	crawlStore database.CrawlStore,
	runs *registry.Registry,
	sink notify.Sink,
	m *metrics.Metrics,
	log logger.Interface,
) *Executor {
	maxConcurrent := cfg.MaxConcurrentFetches
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentFetches
	}

	return &Executor{
		registry:      sourceRegistry,
		limiter:       limiter,
		dedup:         deduplicator,
		crawlStore:    crawlStore,
		runs:          runs,
		sink:          sink,
		metrics:       m,
		logger:        log.WithComponent("executor"),
		maxConcurrent: maxConcurrent,
		now:           time.Now,
	}
}

// SetScheduleCallback injects the scheduler callback. Must be called before
// any schedule-triggered run.
func (e *Executor) SetScheduleCallback(cb ScheduleCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callback = cb
}

// fetchResult is one source's settled outcome within a run.
type fetchResult struct {
	source domain.Source
	jobs   []domain.RawJob
	err    error
}

// Run executes one crawl synchronously. The returned run always carries a
// terminal status; the error is non-nil only when the run as a whole failed.
func (e *Executor) Run(ctx context.Context, req RunRequest) (*domain.CrawlJob, error) {
	run, err := e.begin(ctx, req)
	if err != nil {
		return run, err
	}
	return e.execute(ctx, req, run)
}

// Start begins a crawl and returns immediately with the running CrawlJob;
// the fetch and persistence continue in the background, detached from the
// caller's cancellation.
func (e *Executor) Start(ctx context.Context, req RunRequest) (*domain.CrawlJob, error) {
	run, err := e.begin(ctx, req)
	if err != nil {
		return run, err
	}

	go func() {
		// The outcome is recorded on the run row; callers poll by run id.
		_, _ = e.execute(context.WithoutCancel(ctx), req, run)
	}()

	// The background goroutine keeps writing to run; the caller gets a
	// snapshot taken at run start.
	return run.Clone(), nil
}

// begin allocates the run, persists its row and registers it as active.
func (e *Executor) begin(ctx context.Context, req RunRequest) (*domain.CrawlJob, error) {
	run := e.newRun(req)

	e.logger.Info("crawl run starting",
		"run_id", run.ID, "source", run.Source, "scheduled", run.IsScheduled)

	e.metrics.RunStarted()

	if err := e.crawlStore.Create(ctx, run); err != nil {
		e.logger.Error("failed to create crawl job row", "run_id", run.ID, "error", err)
		// The row was never inserted, so there is nothing to update in
		// storage; the failure is stamped on the returned run only.
		e.stamp(run, nil, err)
		e.metrics.RunFinished(true, 0, 0, 0)
		e.afterRun(ctx, run, req)
		return run, err
	}

	e.runs.TrackActive(run)
	return run, nil
}

// execute performs the fetch, reconciliation and outcome recording for an
// already-begun run.
func (e *Executor) execute(ctx context.Context, req RunRequest, run *domain.CrawlJob) (*domain.CrawlJob, error) {
	defer e.runs.UntrackActive(run.ID)

	results := e.fetch(ctx, req)

	raws, sourceErrors := settle(results)
	if len(results) > 0 && len(sourceErrors) == len(results) {
		runErr := e.allFailedError(req.Source, sourceErrors)
		e.finalize(ctx, run, nil, runErr)
		e.afterRun(ctx, run, req)
		return run, runErr
	}
	if runErr := e.checkEmptyFanOut(req, results); runErr != nil {
		e.finalize(ctx, run, nil, runErr)
		e.afterRun(ctx, run, req)
		return run, runErr
	}

	tally := &domain.CrawlResult{Total: len(raws), SourceErrors: sourceErrors}
	if req.Persist {
		e.reconcileAll(ctx, raws, tally)
	}

	e.finalize(ctx, run, tally, nil)
	e.afterRun(ctx, run, req)

	return run, nil
}

// newRun allocates the run identifier and row snapshot.
func (e *Executor) newRun(req RunRequest) *domain.CrawlJob {
	run := &domain.CrawlJob{
		ID:           uuid.NewString(),
		Source:       req.Source,
		Status:       domain.CrawlStatusRunning,
		SearchParams: req.Params,
		StartTime:    e.now(),
		IsScheduled:  req.ScheduleID != "",
	}
	if req.ScheduleID != "" {
		scheduleID := req.ScheduleID
		run.ScheduleID = &scheduleID
	}
	return run
}

// fetch performs the per-source calls. For a fan-out run every configured
// source is called concurrently under the semaphore bound; for a single
// source one call is made. Each call is wrapped by the source's rate-limit
// window and settled independently.
func (e *Executor) fetch(ctx context.Context, req RunRequest) []fetchResult {
	if req.Source != domain.SourceAll {
		return []fetchResult{e.fetchOne(ctx, req.Source, req.Params)}
	}

	ids := e.registry.Configured()
	results := make([]fetchResult, len(ids))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxConcurrent)

	for i, id := range ids {
		wg.Add(1)
		go func(slot int, source domain.Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[slot] = e.fetchOne(ctx, source, req.Params)
		}(i, id)
	}
	wg.Wait()

	return results
}

// fetchOne calls a single source through its rate-limit gate.
func (e *Executor) fetchOne(
	ctx context.Context, id domain.Source, params domain.SearchParams,
) fetchResult {
	source, err := e.registry.Get(id)
	if err != nil {
		e.metrics.FetchResult(id.String(), false)
		return fetchResult{source: id, err: err}
	}

	var jobs []domain.RawJob
	execErr := e.limiter.Execute(ctx, id.String(), func(callCtx context.Context) error {
		var fetchErr error
		jobs, fetchErr = source.FetchJobs(callCtx, sources.OptionsFromParams(params))
		return fetchErr
	})
	if execErr != nil {
		e.logger.Warn("source fetch failed", "source", id, "error", execErr)
		e.metrics.FetchResult(id.String(), false)
		return fetchResult{source: id, err: execErr}
	}

	e.metrics.FetchResult(id.String(), true)
	return fetchResult{source: id, jobs: jobs}
}

// settle splits per-source outcomes into the concatenated raw jobs and the
// per-source error metadata. Nothing is discarded: a failed source becomes
// metadata, not a run failure, as long as any source succeeded.
func settle(results []fetchResult) ([]domain.RawJob, map[string]string) {
	var raws []domain.RawJob
	sourceErrors := make(map[string]string)

	for _, res := range results {
		if res.err != nil {
			sourceErrors[res.source.String()] = res.err.Error()
			continue
		}
		raws = append(raws, res.jobs...)
	}

	if len(sourceErrors) == 0 {
		sourceErrors = nil
	}
	return raws, sourceErrors
}

// checkEmptyFanOut fails a fan-out run that had no configured sources at all.
func (e *Executor) checkEmptyFanOut(req RunRequest, results []fetchResult) error {
	if req.Source == domain.SourceAll && len(results) == 0 {
		return ErrNoSourcesConfigured
	}
	return nil
}

// allFailedError builds the run-level failure for the every-source-failed
// case.
func (e *Executor) allFailedError(source domain.Source, sourceErrors map[string]string) error {
	parts := make([]string, 0, len(sourceErrors))
	for id, msg := range sourceErrors {
		parts = append(parts, fmt.Sprintf("%s: %s", id, msg))
	}

	if source != domain.SourceAll && len(parts) == 1 {
		return fmt.Errorf("source fetch failed: %s", parts[0])
	}
	return fmt.Errorf("%w: %s", ErrAllSourcesFailed, strings.Join(parts, "; "))
}

// reconcileAll persists raw jobs one at a time. A failure on one item never
// aborts the rest; it is counted and processing continues.
func (e *Executor) reconcileAll(ctx context.Context, raws []domain.RawJob, tally *domain.CrawlResult) {
	for i := range raws {
		outcome, err := e.dedup.Reconcile(ctx, &raws[i])
		if err != nil {
			e.logger.Warn("failed to persist job item",
				"title", raws[i].Title, "source", raws[i].Source, "error", err)
			tally.Errors++
			continue
		}

		if outcome.Created {
			tally.Saved++
		} else {
			tally.Duplicates++
		}
	}
}

// stamp writes the terminal state onto the run without touching storage.
func (e *Executor) stamp(run *domain.CrawlJob, tally *domain.CrawlResult, runErr error) {
	end := e.now()
	durationMS := end.Sub(run.StartTime).Milliseconds()
	run.EndTime = &end
	run.DurationMS = &durationMS

	target := domain.CrawlStatusCompleted
	if runErr != nil {
		target = domain.CrawlStatusFailed
		msg := runErr.Error()
		run.ErrorMessage = &msg
	} else {
		run.Result = tally
	}

	if transitionErr := domain.ValidateCrawlTransition(run.Status, target); transitionErr != nil {
		e.logger.Error("illegal run transition", "run_id", run.ID, "error", transitionErr)
	}
	run.Status = target
}

// finalize stamps the terminal state onto the run and persists it. The tally
// write happens only after every per-item persistence attempt has completed.
func (e *Executor) finalize(ctx context.Context, run *domain.CrawlJob, tally *domain.CrawlResult, runErr error) {
	e.stamp(run, tally, runErr)

	if updateErr := e.crawlStore.Update(ctx, run); updateErr != nil {
		e.logger.Error("failed to persist crawl outcome", "run_id", run.ID, "error", updateErr)
	}

	failed := run.Status == domain.CrawlStatusFailed
	var saved, duplicates, errored int
	if tally != nil {
		saved, duplicates, errored = tally.Saved, tally.Duplicates, tally.Errors
	}
	e.metrics.RunFinished(failed, saved, duplicates, errored)

	e.logger.Info("crawl run finished",
		"run_id", run.ID, "status", run.Status, "duration_ms", *run.DurationMS)
}

// afterRun fires the schedule callback and the notification sink. Both are
// best-effort: neither can fail the run, and nothing here retries.
func (e *Executor) afterRun(ctx context.Context, run *domain.CrawlJob, req RunRequest) {
	if req.ScheduleID != "" {
		e.mu.RLock()
		cb := e.callback
		e.mu.RUnlock()

		if cb != nil {
			cb.OnRunCompleted(ctx, req.ScheduleID, run)
		}
	}

	kind := notify.EventCompleted
	if run.Status == domain.CrawlStatusFailed {
		kind = notify.EventFailed
	}
	if err := e.sink.Notify(ctx, notify.Event{Kind: kind, CrawlJob: run}); err != nil {
		e.logger.Warn("notification sink failed", "run_id", run.ID, "error", err)
	}
}
