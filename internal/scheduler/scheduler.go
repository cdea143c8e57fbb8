// Package scheduler manages recurring crawl definitions and triggers the
// executor when they come due. One periodic tick scans all active schedules;
// there is no per-schedule timer to leak.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/applyflow/jobcrawl/internal/database"
	"github.com/applyflow/jobcrawl/internal/domain"
	"github.com/applyflow/jobcrawl/internal/executor"
	"github.com/applyflow/jobcrawl/internal/logger"
)

// ErrInvalidDefinition indicates a schedule definition was rejected at
// creation time.
var ErrInvalidDefinition = errors.New("invalid schedule definition")

// DefaultTickInterval is how often due schedules are evaluated.
const DefaultTickInterval = time.Minute

// Config holds scheduler configuration.
type Config struct {
	// TickInterval is the period of the due-schedule scan.
	TickInterval time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`
}

// RunTrigger abstracts the executor so tests can observe triggered runs.
type RunTrigger interface {
	Run(ctx context.Context, req executor.RunRequest) (*domain.CrawlJob, error)
}

// CreateRequest is a new schedule definition.
type CreateRequest struct {
	Name            string               `json:"name"`
	Source          domain.Source        `json:"source"`
	SearchParams    domain.SearchParams  `json:"search_params"`
	IntervalMinutes int                  `json:"interval_minutes"`
	Schedule        *domain.ScheduleSpec `json:"schedule,omitempty"`
}

// Scheduler owns ScheduledCrawl run-time state: it is the only writer of
// nextRunTime, lastRunTime and crawlHistory.
type Scheduler struct {
	store   database.ScheduleStore
	trigger RunTrigger
	logger  logger.Interface

	tickInterval time.Duration

	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex

	// runTimesMu serializes every read-modify-write of the run-time columns:
	// the tick's advance and OnRunCompleted's history append. Without it a
	// tick landing between the other's read and write would overwrite the
	// fresher values with stale ones.
	runTimesMu sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// New creates a new scheduler.
func New(cfg Config, store database.ScheduleStore, trigger RunTrigger, log logger.Interface) *Scheduler {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:        store,
		trigger:      trigger,
		logger:       log.WithComponent("scheduler"),
		tickInterval: tick,
		cron:         cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		ctx:          ctx,
		cancel:       cancel,
		now:          time.Now,
	}
}

// Start begins periodic evaluation. A single cron entry drives Tick.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("scheduler already started")
	}

	spec := fmt.Sprintf("@every %s", s.tickInterval)
	if _, err := s.cron.AddFunc(spec, func() { s.Tick(s.ctx) }); err != nil {
		return fmt.Errorf("failed to register tick: %w", err)
	}

	s.cron.Start()
	s.started = true
	s.logger.Info("scheduler started", "tick_interval", s.tickInterval)
	return nil
}

// Stop halts the tick loop and waits for in-flight triggered runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()

	s.started = false
	s.logger.Info("scheduler stopped")
}

// Create validates and persists a new schedule with its first nextRunTime
// computed. Interval-based definitions below the minimum interval and
// malformed advanced specs are rejected.
func (s *Scheduler) Create(ctx context.Context, req CreateRequest) (*domain.ScheduledCrawl, error) {
	if err := validateDefinition(req); err != nil {
		return nil, err
	}

	sched := &domain.ScheduledCrawl{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Source:          req.Source,
		SearchParams:    req.SearchParams,
		Status:          domain.ScheduleStatusActive,
		IntervalMinutes: req.IntervalMinutes,
		Schedule:        req.Schedule,
		CrawlHistory:    domain.CrawlHistory{},
	}
	sched.NextRunTime = ComputeNextRun(sched, s.now())

	if err := s.store.Create(ctx, sched); err != nil {
		return nil, err
	}

	s.logger.Info("schedule created",
		"schedule_id", sched.ID, "name", sched.Name, "next_run", sched.NextRunTime)
	return sched, nil
}

// Cancel marks a schedule cancelled, permanently. Returns false for unknown
// or already-cancelled schedules; the error is non-nil only on storage
// failure.
func (s *Scheduler) Cancel(ctx context.Context, scheduleID string) (bool, error) {
	cancelled, err := s.store.Cancel(ctx, scheduleID)
	if err != nil {
		return false, err
	}

	if cancelled {
		s.logger.Info("schedule cancelled", "schedule_id", scheduleID)
	}
	return cancelled, nil
}

// List returns active and paused schedules ordered by next run time.
func (s *Scheduler) List(ctx context.Context) ([]*domain.ScheduledCrawl, error) {
	return s.store.List(ctx)
}

// Tick evaluates due schedules once. Each due schedule is advanced first,
// so the next tick cannot re-trigger it while its run is still going, and
// then fired on its own goroutine. Two schedules due at the same tick run in
// parallel; the scheduler never waits for a run.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		s.logger.Error("failed to list due schedules", "error", err)
		return
	}

	for _, sched := range due {
		s.advanceAndFire(ctx, sched.ID, now)
	}
}

// advanceAndFire re-reads one due schedule under the run-times lock, advances
// its next run time and fires it. The re-read picks up any history appended
// between the due scan and this schedule's turn.
func (s *Scheduler) advanceAndFire(ctx context.Context, scheduleID string, now time.Time) {
	s.runTimesMu.Lock()
	defer s.runTimesMu.Unlock()

	sched, err := s.store.GetByID(ctx, scheduleID)
	if err != nil {
		s.logger.Error("failed to load due schedule", "schedule_id", scheduleID, "error", err)
		return
	}
	if !sched.IsDue(now) {
		return
	}

	lastRun := now
	sched.LastRunTime = &lastRun
	sched.NextRunTime = ComputeNextRun(sched, now)

	if updateErr := s.store.UpdateRunTimes(ctx, sched); updateErr != nil {
		// Skip rather than fire: re-triggering next tick is safer than
		// firing a schedule whose advance failed to persist.
		s.logger.Error("failed to advance schedule",
			"schedule_id", sched.ID, "error", updateErr)
		return
	}

	s.fire(sched)
}

// fire launches a schedule-triggered run without blocking the tick.
func (s *Scheduler) fire(sched *domain.ScheduledCrawl) {
	s.logger.Info("triggering scheduled crawl",
		"schedule_id", sched.ID, "source", sched.Source, "next_run", sched.NextRunTime)

	s.wg.Add(1)
	go func(scheduleID string, source domain.Source, params domain.SearchParams) {
		defer s.wg.Done()

		req := executor.RunRequest{
			Source:     source,
			Params:     params,
			Persist:    true,
			ScheduleID: scheduleID,
		}
		if _, err := s.trigger.Run(s.ctx, req); err != nil {
			s.logger.Warn("scheduled crawl failed", "schedule_id", scheduleID, "error", err)
		}
	}(sched.ID, sched.Source, sched.SearchParams)
}

// OnRunCompleted records a finished run on its schedule's bounded history.
// Called by the executor; implements executor.ScheduleCallback.
func (s *Scheduler) OnRunCompleted(ctx context.Context, scheduleID string, run *domain.CrawlJob) {
	s.runTimesMu.Lock()
	defer s.runTimesMu.Unlock()

	sched, err := s.store.GetByID(ctx, scheduleID)
	if err != nil {
		s.logger.Warn("failed to load schedule for run record",
			"schedule_id", scheduleID, "error", err)
		return
	}

	entry := domain.CrawlHistoryEntry{
		RunID:     run.ID,
		Status:    run.Status,
		StartTime: run.StartTime,
	}
	if run.Result != nil {
		entry.Total = run.Result.Total
		entry.Saved = run.Result.Saved
		entry.Duplicates = run.Result.Duplicates
		entry.Errors = run.Result.Errors
	}
	sched.CrawlHistory = sched.CrawlHistory.Prepend(entry)

	if updateErr := s.store.UpdateRunTimes(ctx, sched); updateErr != nil {
		s.logger.Warn("failed to record run on schedule",
			"schedule_id", scheduleID, "error", updateErr)
	}
}

// validateDefinition rejects malformed schedule definitions at create time.
func validateDefinition(req CreateRequest) error {
	if req.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if req.Source != domain.SourceAll && !req.Source.IsValid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidDefinition, req.Source)
	}

	if req.Schedule != nil && req.Schedule.Type == domain.ScheduleTypeAdvanced {
		return validateAdvanced(req.Schedule)
	}

	if req.IntervalMinutes < domain.MinIntervalMinutes {
		return fmt.Errorf("%w: interval must be at least %d minutes",
			ErrInvalidDefinition, domain.MinIntervalMinutes)
	}
	return nil
}

// validateAdvanced checks day, time and timezone values on an advanced spec.
func validateAdvanced(spec *domain.ScheduleSpec) error {
	for _, d := range spec.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: day %d out of range 0-6", ErrInvalidDefinition, d)
		}
	}
	for _, t := range spec.Times {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("%w: malformed time %q", ErrInvalidDefinition, t)
		}
	}
	if spec.Timezone != "" {
		if _, err := time.LoadLocation(spec.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidDefinition, spec.Timezone)
		}
	}
	return nil
}

// Compile-time callback check.
var _ executor.ScheduleCallback = (*Scheduler)(nil)
