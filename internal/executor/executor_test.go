package executor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/jobcrawl/internal/database"
	"github.com/applyflow/jobcrawl/internal/dedup"
	"github.com/applyflow/jobcrawl/internal/domain"
	"github.com/applyflow/jobcrawl/internal/executor"
	"github.com/applyflow/jobcrawl/internal/logger"
	"github.com/applyflow/jobcrawl/internal/metrics"
	"github.com/applyflow/jobcrawl/internal/notify"
	"github.com/applyflow/jobcrawl/internal/ratelimit"
	"github.com/applyflow/jobcrawl/internal/registry"
	"github.com/applyflow/jobcrawl/internal/sources"
)

// fakeSource returns canned jobs or a canned error.
type fakeSource struct {
	jobs         []domain.RawJob
	err          error
	unconfigured bool
}

func (f *fakeSource) IsConfigured() bool { return !f.unconfigured }

func (f *fakeSource) FetchJobs(context.Context, sources.FetchOptions) ([]domain.RawJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.jobs, nil
}

// memCrawlStore keeps crawl rows in memory.
type memCrawlStore struct {
	mu   sync.Mutex
	runs map[string]*domain.CrawlJob

	createErr error
	updates   int
}

func newMemCrawlStore() *memCrawlStore {
	return &memCrawlStore{runs: make(map[string]*domain.CrawlJob)}
}

func (m *memCrawlStore) Create(_ context.Context, run *domain.CrawlJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	copied := *run
	m.runs[run.ID] = &copied
	return nil
}

func (m *memCrawlStore) GetByID(_ context.Context, id string) (*domain.CrawlJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, database.ErrCrawlJobNotFound
	}
	copied := *run
	return &copied, nil
}

func (m *memCrawlStore) Update(_ context.Context, run *domain.CrawlJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	copied := *run
	m.runs[run.ID] = &copied
	return nil
}

func (m *memCrawlStore) ListByStatus(_ context.Context, status domain.CrawlStatus, _, _ int) ([]*domain.CrawlJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CrawlJob
	for _, run := range m.runs {
		if run.Status == status {
			out = append(out, run)
		}
	}
	return out, nil
}

func (m *memCrawlStore) ListTerminal(context.Context, int, int) ([]*domain.CrawlJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CrawlJob
	for _, run := range m.runs {
		if run.Status.IsTerminal() {
			out = append(out, run)
		}
	}
	return out, nil
}

func (m *memCrawlStore) Stats(context.Context) (*domain.CrawlStats, error) {
	return &domain.CrawlStats{}, nil
}

// memListingStore is a minimal listing store with a poison-title failure hook.
type memListingStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job

	poisonTitle string
	inserts     int
}

func newMemListingStore() *memListingStore {
	return &memListingStore{jobs: make(map[string]*domain.Job)}
}

func (m *memListingStore) Insert(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.poisonTitle != "" && job.Title == m.poisonTitle {
		return errors.New("insert rejected")
	}
	m.inserts++
	m.jobs[job.ID] = job
	return nil
}

func (m *memListingStore) FindBySourceID(_ context.Context, source domain.Source, sourceID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.Source == source && job.SourceID != nil && *job.SourceID == sourceID {
			return job, nil
		}
	}
	return nil, nil
}

func (m *memListingStore) FindByNormalizedURL(_ context.Context, normalizedURL string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.NormalizedURL != nil && *job.NormalizedURL == normalizedURL {
			return job, nil
		}
	}
	return nil, nil
}

func (m *memListingStore) FindByFingerprint(_ context.Context, fingerprint string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.Fingerprint == fingerprint {
			return job, nil
		}
	}
	return nil, nil
}

func (m *memListingStore) Refresh(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

// captureSink records notified events.
type captureSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureSink) Notify(_ context.Context, event notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) last(t *testing.T) notify.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.events)
	return c.events[len(c.events)-1]
}

// captureCallback records schedule completion callbacks.
type captureCallback struct {
	mu          sync.Mutex
	scheduleIDs []string
}

func (c *captureCallback) OnRunCompleted(_ context.Context, scheduleID string, _ *domain.CrawlJob) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduleIDs = append(c.scheduleIDs, scheduleID)
}

type harness struct {
	executor *executor.Executor
	crawls   *memCrawlStore
	listings *memListingStore
	registry *sources.Registry
	runs     *registry.Registry
	sink     *captureSink
}

func newHarness(t *testing.T, register map[domain.Source]sources.JobSource) *harness {
	t.Helper()

	reg := sources.NewRegistry()
	for id, src := range register {
		require.NoError(t, reg.Register(id, src))
	}

	crawls := newMemCrawlStore()
	listings := newMemListingStore()
	sink := &captureSink{}
	log := logger.NewNoOp()
	runs := registry.New(crawls, log)

	exec := executor.New(
		executor.Config{},
		reg,
		ratelimit.New(ratelimit.Config{MaxCalls: 100, Window: time.Hour}),
		dedup.New(listings, log),
		crawls,
		runs,
		sink,
		metrics.New(),
		log,
	)

	return &harness{
		executor: exec,
		crawls:   crawls,
		listings: listings,
		registry: reg,
		runs:     runs,
		sink:     sink,
	}
}

func rawJob(source domain.Source, sourceID, title string) domain.RawJob {
	return domain.RawJob{
		Source:   source,
		SourceID: sourceID,
		Title:    title,
		Company:  "Acme Corp",
		Location: "Remote",
		URL:      "https://example.com/jobs/" + sourceID,
	}
}

func TestRunSingleSourcePersists(t *testing.T) {
	h := newHarness(t, map[domain.Source]sources.JobSource{
		domain.SourceIndeed: &fakeSource{jobs: []domain.RawJob{
			rawJob(domain.SourceIndeed, "1", "Go Engineer"),
			rawJob(domain.SourceIndeed, "2", "SRE"),
		}},
	})

	run, err := h.executor.Run(context.Background(), executor.RunRequest{
		Source:  domain.SourceIndeed,
		Persist: true,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.CrawlStatusCompleted, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, 2, run.Result.Total)
	assert.Equal(t, 2, run.Result.Saved)
	assert.Equal(t, 0, run.Result.Duplicates)
	assert.Equal(t, 2, h.listings.inserts)
	require.NotNil(t, run.EndTime)
	require.NotNil(t, run.DurationMS)

	stored, err := h.crawls.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CrawlStatusCompleted, stored.Status)

	assert.Equal(t, notify.EventCompleted, h.sink.last(t).Kind)
}

func TestRunCountsDuplicatesOnSecondPass(t *testing.T) {
	h := newHarness(t, map[domain.Source]sources.JobSource{
		domain.SourceIndeed: &fakeSource{jobs: []domain.RawJob{
			rawJob(domain.SourceIndeed, "1", "Go Engineer"),
		}},
	})
	ctx := context.Background()
	req := executor.RunRequest{Source: domain.SourceIndeed, Persist: true}

	_, err := h.executor.Run(ctx, req)
	require.NoError(t, err)

	run, err := h.executor.Run(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 0, run.Result.Saved)
	assert.Equal(t, 1, run.Result.Duplicates)
	assert.Equal(t, 1, h.listings.inserts)
}

func TestRunFanOutToleratesPartialFailure(t *testing.T) {
	h := newHarness(t, map[domain.Source]sources.JobSource{
		domain.SourceIndeed: &fakeSource{jobs: []domain.RawJob{
			rawJob(domain.SourceIndeed, "1", "Go Engineer"),
		}},
		domain.SourceLinkedIn: &fakeSource{err: errors.New("upstream 503")},
	})

	run, err := h.executor.Run(context.Background(), executor.RunRequest{
		Source:  domain.SourceAll,
		Persist: true,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.CrawlStatusCompleted, run.Status)
	assert.Equal(t, 1, run.Result.Total)
	assert.Equal(t, 1, run.Result.Saved)
	require.Contains(t, run.Result.SourceErrors, "linkedin")
	assert.Contains(t, run.Result.SourceErrors["linkedin"], "upstream 503")
}

func TestRunFanOutCompletesWhenOnlySuccessIsEmpty(t *testing.T) {
	h := newHarness(t, map[domain.Source]sources.JobSource{
		domain.SourceIndeed:   &fakeSource{jobs: nil},
		domain.SourceLinkedIn: &fakeSource{err: errors.New("upstream 503")},
	})

	run, err := h.executor.Run(context.Background(), executor.RunRequest{
		Source:  domain.SourceAll,
		Persist: true,
	})
	require.NoError(t, err)

	// A source that succeeds with zero jobs still counts as a success; the
	// run only fails when every source fails.
	assert.Equal(t, domain.CrawlStatusCompleted, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, 0, run.Result.Total)
	require.Contains(t, run.Result.SourceErrors, "linkedin")
	assert.Equal(t, notify.EventCompleted, h.sink.last(t).Kind)
}

func TestRunFailsWhenAllSourcesFail(t *testing.T) {
	h := newHarness(t, map[domain.Source]sources.JobSource{
		domain.SourceIndeed:   &fakeSource{err: errors.New("boom")},
		domain.SourceLinkedIn: &fakeSource{err: errors.New("bang")},
	})

	run, err := h.executor.Run(context.Background(), executor.RunRequest{
		Source:  domain.SourceAll,
		Persist: true,
	})
	require.ErrorIs(t, err, executor.ErrAllSourcesFailed)

	assert.Equal(t, domain.CrawlStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Nil(t, run.Result)
	assert.Equal(t, notify.EventFailed, h.sink.last(t).Kind)
}

func TestRunFailsWhenNoSourcesConfigured(t *testing.T) {
	h := newHarness(t, map[domain.Source]sources.JobSource{
		domain.SourceIndeed: &fakeSource{unconfigured: true},
	})

	run, err := h.executor.Run(context.Background(), executor.RunRequest{
		Source:  domain.SourceAll,
		Persist: true,
	})
	require.ErrorIs(t, err, executor.ErrNoSourcesConfigured)
	assert.Equal(t, domain.CrawlStatusFailed, run.Status)
}

func TestRunCreateFailureSkipsUpdateAndNotifies(t *testing.T) {
	h := newHarness(t, map[domain.Source]sources.JobSource{
		domain.SourceIndeed: &fakeSource{jobs: []domain.RawJob{
			rawJob(domain.SourceIndeed, "1", "Go Engineer"),
		}},
	})
	h.crawls.createErr = errors.New("db down")

	run, err := h.executor.Run(context.Background(), executor.RunRequest{
		Source:  domain.SourceIndeed,
		Persist: true,
	})
	require.Error(t, err)

	assert.Equal(t, domain.CrawlStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	require.NotNil(t, run.EndTime)

	// The row never existed, so no update may be issued against it.
	assert.Equal(t, 0, h.crawls.updates)
	assert.Equal(t, 0, h.listings.inserts)

	assert.Equal(t, notify.EventFailed, h.sink.last(t).Kind)
}

func TestRunIsolatesPerItemFailures(t *testing.T) {
	h := newHarness(t, map[domain.Source]sources.JobSource{
		domain.SourceIndeed: &fakeSource{jobs: []domain.RawJob{
			rawJob(domain.SourceIndeed, "1", "Go Engineer"),
			rawJob(domain.SourceIndeed, "2", "Poison"),
			rawJob(domain.SourceIndeed, "3", "SRE"),
		}},
	})
	h.listings.poisonTitle = "Poison"

	run, err := h.executor.Run(context.Background(), executor.RunRequest{
		Source:  domain.SourceIndeed,
		Persist: true,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.CrawlStatusCompleted, run.Status)
	assert.Equal(t, 3, run.Result.Total)
	assert.Equal(t, 2, run.Result.Saved)
	assert.Equal(t, 1, run.Result.Errors)
}

func TestRunWithoutPersistCountsOnly(t *testing.T) {
	h := newHarness(t, map[domain.Source]sources.JobSource{
		domain.SourceIndeed: &fakeSource{jobs: []domain.RawJob{
			rawJob(domain.SourceIndeed, "1", "Go Engineer"),
		}},
	})

	run, err := h.executor.Run(context.Background(), executor.RunRequest{
		Source:  domain.SourceIndeed,
		Persist: false,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, run.Result.Total)
	assert.Equal(t, 0, run.Result.Saved)
	assert.Equal(t, 0, h.listings.inserts)
}

func TestRunFiresScheduleCallback(t *testing.T) {
	h := newHarness(t, map[domain.Source]sources.JobSource{
		domain.SourceIndeed: &fakeSource{jobs: []domain.RawJob{
			rawJob(domain.SourceIndeed, "1", "Go Engineer"),
		}},
	})
	callback := &captureCallback{}
	h.executor.SetScheduleCallback(callback)

	run, err := h.executor.Run(context.Background(), executor.RunRequest{
		Source:     domain.SourceIndeed,
		Persist:    true,
		ScheduleID: "sched-1",
	})
	require.NoError(t, err)

	assert.True(t, run.IsScheduled)
	require.NotNil(t, run.ScheduleID)
	assert.Equal(t, "sched-1", *run.ScheduleID)
	assert.Equal(t, []string{"sched-1"}, callback.scheduleIDs)
}

func TestStartReturnsImmediatelyAndFinishes(t *testing.T) {
	h := newHarness(t, map[domain.Source]sources.JobSource{
		domain.SourceIndeed: &fakeSource{jobs: []domain.RawJob{
			rawJob(domain.SourceIndeed, "1", "Go Engineer"),
		}},
	})
	ctx := context.Background()

	run, err := h.executor.Start(ctx, executor.RunRequest{
		Source:  domain.SourceIndeed,
		Persist: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CrawlStatusRunning, run.Status)

	require.Eventually(t, func() bool {
		stored, getErr := h.crawls.GetByID(ctx, run.ID)
		return getErr == nil && stored.Status == domain.CrawlStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartRunIsolatedFromConcurrentReaders(t *testing.T) {
	h := newHarness(t, map[domain.Source]sources.JobSource{
		domain.SourceIndeed: &fakeSource{jobs: []domain.RawJob{
			rawJob(domain.SourceIndeed, "1", "Go Engineer"),
		}},
	})
	ctx := context.Background()

	run, err := h.executor.Start(ctx, executor.RunRequest{
		Source:  domain.SourceIndeed,
		Persist: true,
	})
	require.NoError(t, err)

	// Poll the registry while the run finishes in the background; readers
	// must only ever see snapshots, never the row being finalized.
	require.Eventually(t, func() bool {
		if got, getErr := h.runs.GetStatus(ctx, run.ID); getErr == nil {
			_ = got.Status
		}
		if active, listErr := h.runs.ListActive(ctx); listErr == nil {
			for _, entry := range active {
				_ = entry.Status
			}
		}
		stored, getErr := h.crawls.GetByID(ctx, run.ID)
		return getErr == nil && stored.Status == domain.CrawlStatusCompleted
	}, 2*time.Second, time.Millisecond)

	// The handle returned by Start is a snapshot taken at run start.
	assert.Equal(t, domain.CrawlStatusRunning, run.Status)
	assert.Nil(t, run.EndTime)
	assert.Nil(t, run.Result)
}
