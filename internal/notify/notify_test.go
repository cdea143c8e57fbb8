package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/applyflow/jobcrawl/internal/domain"
	"github.com/applyflow/jobcrawl/internal/notify"
)

type recordingSink struct {
	events []notify.Event
	err    error
}

func (r *recordingSink) Notify(_ context.Context, event notify.Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestMultiSinkDeliversToAll(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	sink := notify.NewMulti(first, second)

	event := notify.Event{Kind: notify.EventCompleted, CrawlJob: &domain.CrawlJob{ID: "run-1"}}
	if err := sink.Notify(context.Background(), event); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if len(first.events) != 1 || len(second.events) != 1 {
		t.Errorf("deliveries = (%d, %d), want (1, 1)", len(first.events), len(second.events))
	}
}

func TestMultiSinkContinuesPastFailures(t *testing.T) {
	wantErr := errors.New("stream unavailable")
	failing := &recordingSink{err: wantErr}
	healthy := &recordingSink{}
	sink := notify.NewMulti(failing, healthy)

	event := notify.Event{Kind: notify.EventFailed, CrawlJob: &domain.CrawlJob{ID: "run-1"}}
	err := sink.Notify(context.Background(), event)

	if !errors.Is(err, wantErr) {
		t.Errorf("Notify() error = %v, want %v", err, wantErr)
	}
	if len(healthy.events) != 1 {
		t.Error("later sink skipped after earlier failure")
	}
}
