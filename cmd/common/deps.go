// Package common assembles the dependency graph shared by the CLI commands.
package common

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/applyflow/jobcrawl/internal/config"
	"github.com/applyflow/jobcrawl/internal/database"
	"github.com/applyflow/jobcrawl/internal/dedup"
	"github.com/applyflow/jobcrawl/internal/domain"
	"github.com/applyflow/jobcrawl/internal/events"
	"github.com/applyflow/jobcrawl/internal/executor"
	"github.com/applyflow/jobcrawl/internal/logger"
	"github.com/applyflow/jobcrawl/internal/metrics"
	"github.com/applyflow/jobcrawl/internal/notify"
	"github.com/applyflow/jobcrawl/internal/ratelimit"
	"github.com/applyflow/jobcrawl/internal/registry"
	"github.com/applyflow/jobcrawl/internal/scheduler"
	"github.com/applyflow/jobcrawl/internal/sources"
	"github.com/applyflow/jobcrawl/internal/sources/remotive"
)

// Deps holds the wired application components.
type Deps struct {
	Config    *config.Config
	Logger    logger.Interface
	DB        *sqlx.DB
	Sources   *sources.Registry
	Metrics   *metrics.Metrics
	Runs      *registry.Registry
	Executor  *executor.Executor
	Scheduler *scheduler.Scheduler

	publisher *events.Publisher
}

// Build loads configuration and wires every component.
func Build() (*Deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(cfg.Log)

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		return nil, err
	}

	listingRepo := database.NewListingRepository(db)
	crawlRepo := database.NewCrawlRepository(db)
	scheduleRepo := database.NewScheduleRepository(db)

	sourceRegistry := sources.NewRegistry()
	if registerErr := registerSources(sourceRegistry); registerErr != nil {
		return nil, registerErr
	}

	sink, publisher, err := buildSink(cfg, log)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	runs := registry.New(crawlRepo, log)
	deduplicator := dedup.New(listingRepo, log)
	limiter := ratelimit.New(cfg.Crawl.RateLimit)

	exec := executor.New(
		executor.Config{MaxConcurrentFetches: cfg.Crawl.MaxConcurrentFetches},
		sourceRegistry,
		limiter,
		deduplicator,
		crawlRepo,
		runs,
		sink,
		m,
		log,
	)

	sched := scheduler.New(
		scheduler.Config{TickInterval: cfg.Crawl.TickInterval},
		scheduleRepo,
		exec,
		log,
	)
	exec.SetScheduleCallback(sched)

	return &Deps{
		Config:    cfg,
		Logger:    log,
		DB:        db,
		Sources:   sourceRegistry,
		Metrics:   m,
		Runs:      runs,
		Executor:  exec,
		Scheduler: sched,
		publisher: publisher,
	}, nil
}

// registerSources builds the static source registry. Additional board
// integrations register here as they are brought in-process.
func registerSources(reg *sources.Registry) error {
	if err := reg.Register(domain.SourceRemotive, remotive.New()); err != nil {
		return fmt.Errorf("failed to register sources: %w", err)
	}
	return nil
}

// buildSink wires the notification fan-out: always the log sink, plus the
// Redis Streams publisher when events are enabled.
func buildSink(cfg *config.Config, log logger.Interface) (notify.Sink, *events.Publisher, error) {
	logSink := notify.NewLogSink(log)
	if !cfg.Crawl.EventsEnabled {
		return logSink, nil, nil
	}

	publisher, err := events.NewPublisher(cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start event publisher: %w", err)
	}

	return notify.NewMulti(logSink, publisher), publisher, nil
}

// Close releases held resources.
func (d *Deps) Close() {
	if d.publisher != nil {
		_ = d.publisher.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
