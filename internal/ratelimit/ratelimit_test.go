package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestLimiter(maxCalls int, window time.Duration) (*Limiter, *time.Time) {
	l := New(Config{MaxCalls: maxCalls, Window: window})
	current := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }
	return l, &current
}

func TestCanProceedWithinLimit(t *testing.T) {
	l, _ := newTestLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !l.CanProceed("indeed") {
			t.Fatalf("call %d: CanProceed() = false, want true", i)
		}
		l.Record("indeed")
	}

	if l.CanProceed("indeed") {
		t.Error("CanProceed() = true after limit reached, want false")
	}
}

func TestLimitsAreSeparatePerSource(t *testing.T) {
	l, _ := newTestLimiter(1, time.Hour)

	l.Record("indeed")

	if l.CanProceed("indeed") {
		t.Error("CanProceed(indeed) = true, want false")
	}
	if !l.CanProceed("linkedin") {
		t.Error("CanProceed(linkedin) = false, want true")
	}
}

func TestWindowSlides(t *testing.T) {
	l, current := newTestLimiter(2, time.Hour)

	l.Record("indeed")
	*current = current.Add(30 * time.Minute)
	l.Record("indeed")

	if l.CanProceed("indeed") {
		t.Fatal("CanProceed() = true at limit, want false")
	}

	// The first call leaves the window; capacity frees up.
	*current = current.Add(31 * time.Minute)
	if !l.CanProceed("indeed") {
		t.Error("CanProceed() = false after oldest call aged out, want true")
	}
}

func TestExecuteConsumesSlotOnFailure(t *testing.T) {
	l, _ := newTestLimiter(1, time.Hour)

	wantErr := errors.New("upstream down")
	err := l.Execute(context.Background(), "indeed", func(context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Execute() error = %v, want %v", err, wantErr)
	}

	if l.CanProceed("indeed") {
		t.Error("slot not consumed by failed call")
	}
}

func TestWaitForSlotRespectsContext(t *testing.T) {
	l, _ := newTestLimiter(1, time.Hour)
	l.Record("indeed")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.WaitForSlot(ctx, "indeed")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForSlot() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestConcurrentWaitersNeverOvershoot(t *testing.T) {
	const maxCalls = 5
	l := New(Config{MaxCalls: maxCalls, Window: time.Hour})

	var wg sync.WaitGroup
	acquired := make(chan struct{}, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			if err := l.WaitForSlot(ctx, "indeed"); err == nil {
				acquired <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(acquired)

	got := 0
	for range acquired {
		got++
	}
	if got != maxCalls {
		t.Errorf("acquired %d slots, want %d", got, maxCalls)
	}
}

func TestDefaultsApplied(t *testing.T) {
	l := New(Config{})

	if l.maxCalls != DefaultMaxCalls {
		t.Errorf("maxCalls = %d, want %d", l.maxCalls, DefaultMaxCalls)
	}
	if l.window != DefaultWindow {
		t.Errorf("window = %v, want %v", l.window, DefaultWindow)
	}
}
