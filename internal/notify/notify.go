// Package notify defines the best-effort notification capability invoked on
// crawl completion and failure. Sinks must never block or fail the caller;
// the executor ignores sink errors and never retries.
package notify

import (
	"context"

	"github.com/applyflow/jobcrawl/internal/domain"
	"github.com/applyflow/jobcrawl/internal/logger"
)

// Event kinds.
const (
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// Event describes a finished crawl run.
type Event struct {
	Kind     string           `json:"kind"`
	CrawlJob *domain.CrawlJob `json:"crawl_job"`
}

// Sink receives crawl lifecycle events.
type Sink interface {
	Notify(ctx context.Context, event Event) error
}

// NoOpSink discards all events.
type NoOpSink struct{}

// NewNoOp creates a sink that discards events.
func NewNoOp() *NoOpSink { return &NoOpSink{} }

// Notify discards the event.
func (s *NoOpSink) Notify(ctx context.Context, event Event) error { return nil }

// LogSink writes events to the application log. Used when no downstream
// notifier (email, UI feed) is wired.
type LogSink struct {
	logger logger.Interface
}

// NewLogSink creates a log-backed sink.
func NewLogSink(log logger.Interface) *LogSink {
	return &LogSink{logger: log.WithComponent("notify")}
}

// Notify logs the event.
func (s *LogSink) Notify(ctx context.Context, event Event) error {
	s.logger.Info("crawl event",
		"kind", event.Kind,
		"run_id", event.CrawlJob.ID,
		"source", event.CrawlJob.Source,
		"status", event.CrawlJob.Status,
	)
	return nil
}

// MultiSink fans an event out to several sinks. Each sink is attempted; the
// first error is returned but later sinks still run.
type MultiSink struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink.
func NewMulti(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Notify delivers the event to every sink.
func (s *MultiSink) Notify(ctx context.Context, event Event) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Notify(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
