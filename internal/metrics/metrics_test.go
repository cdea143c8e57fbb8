package metrics

import (
	"sync"
	"testing"
)

func TestCountersAccumulate(t *testing.T) {
	m := New()

	m.RunStarted()
	m.RunStarted()
	m.RunFinished(false, 3, 2, 1)
	m.RunFinished(true, 0, 0, 0)
	m.FetchResult("remotive", true)
	m.FetchResult("remotive", false)
	m.FetchResult("indeed", true)

	snap := m.Snapshot()

	if snap.RunsStarted != 2 || snap.RunsCompleted != 1 || snap.RunsFailed != 1 {
		t.Errorf("run counters = %+v", snap)
	}
	if snap.JobsSaved != 3 || snap.JobsDuplicated != 2 || snap.JobsErrored != 1 {
		t.Errorf("job counters = %+v", snap)
	}
	if snap.FetchSuccesses["remotive"] != 1 || snap.FetchFailures["remotive"] != 1 {
		t.Errorf("fetch counters = %+v", snap)
	}
	if snap.FetchSuccesses["indeed"] != 1 {
		t.Errorf("fetch counters = %+v", snap)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	m := New()
	m.FetchResult("remotive", true)

	snap := m.Snapshot()
	snap.FetchSuccesses["remotive"] = 99

	if got := m.Snapshot().FetchSuccesses["remotive"]; got != 1 {
		t.Errorf("snapshot mutation leaked into metrics: %d", got)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RunStarted()
			m.RunFinished(false, 1, 0, 0)
			m.FetchResult("remotive", true)
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.RunsStarted != 50 || snap.JobsSaved != 50 || snap.FetchSuccesses["remotive"] != 50 {
		t.Errorf("concurrent counters = %+v", snap)
	}
}
