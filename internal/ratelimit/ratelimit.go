// Package ratelimit provides a per-source sliding-window rate limiter gating
// calls to external job sources.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultMaxCalls is the default number of calls allowed per window.
	DefaultMaxCalls = 30
	// DefaultWindow is the default sliding window size.
	DefaultWindow = time.Hour
)

// Config holds limiter configuration.
type Config struct {
	// MaxCalls is the number of calls allowed per source per window.
	MaxCalls int `yaml:"max_calls" mapstructure:"max_calls"`
	// Window is the sliding window size.
	Window time.Duration `yaml:"window" mapstructure:"window"`
}

// Limiter tracks call timestamps per source and rejects calls that would
// exceed the window. State is process-local: a restart resets limits, which
// is an accepted risk rather than a correctness requirement.
type Limiter struct {
	maxCalls int
	window   time.Duration

	mu    sync.Mutex
	calls map[string][]time.Time

	// now is swappable for tests.
	now func() time.Time
}

// New creates a new limiter.
func New(cfg Config) *Limiter {
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = DefaultMaxCalls
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}

	return &Limiter{
		maxCalls: cfg.MaxCalls,
		window:   cfg.Window,
		calls:    make(map[string][]time.Time),
		now:      time.Now,
	}
}

// CanProceed reports whether a call to the source would currently be allowed.
// It does not reserve a slot; use Execute or Record for that.
func (l *Limiter) CanProceed(source string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.prune(source)) < l.maxCalls
}

// Record registers a call against the source's window.
func (l *Limiter) Record(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls[source] = append(l.prune(source), l.now())
}

// WaitForSlot blocks until the source has window capacity or the context is
// done. The returned slot is reserved: check and record happen in one
// critical section, so concurrent waiters cannot overshoot the limit.
func (l *Limiter) WaitForSlot(ctx context.Context, source string) error {
	for {
		ok, retryIn := l.tryAcquire(source)
		if ok {
			return nil
		}

		timer := time.NewTimer(retryIn)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Execute waits for a slot on the source, then runs fn and returns its
// result. The slot is consumed whether or not fn succeeds.
func (l *Limiter) Execute(ctx context.Context, source string, fn func(context.Context) error) error {
	if err := l.WaitForSlot(ctx, source); err != nil {
		return err
	}
	return fn(ctx)
}

// tryAcquire atomically checks capacity and records the call when there is
// room. On failure it returns how long until the oldest call leaves the
// window.
func (l *Limiter) tryAcquire(source string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(source)
	if len(recent) < l.maxCalls {
		l.calls[source] = append(recent, l.now())
		return true, 0
	}

	l.calls[source] = recent
	retryIn := recent[0].Add(l.window).Sub(l.now())
	if retryIn <= 0 {
		retryIn = time.Millisecond
	}
	return false, retryIn
}

// prune drops timestamps older than the window. Caller must hold mu.
func (l *Limiter) prune(source string) []time.Time {
	cutoff := l.now().Add(-l.window)
	recent := l.calls[source]

	i := 0
	for i < len(recent) && !recent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		recent = recent[i:]
	}
	l.calls[source] = recent
	return recent
}
