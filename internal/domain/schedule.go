package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ScheduleStatus represents the lifecycle state of a recurring crawl
// definition. Cancellation is permanent; there is no reactivation path.
type ScheduleStatus string

// Schedule states.
const (
	ScheduleStatusActive    ScheduleStatus = "active"
	ScheduleStatusPaused    ScheduleStatus = "paused"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// Schedule spec types.
const (
	ScheduleTypeSimple   = "simple"
	ScheduleTypeAdvanced = "advanced"
)

// MinIntervalMinutes is the smallest accepted interval for simple schedules.
const MinIntervalMinutes = 15

// CrawlHistoryCap bounds the per-schedule run history.
const CrawlHistoryCap = 10

// ScheduleSpec describes when an advanced schedule fires: specific weekdays
// (0=Sunday..6=Saturday) at specific local times in the given timezone.
type ScheduleSpec struct {
	Type     string   `json:"type"`
	Days     []int    `json:"days,omitempty"`
	Times    []string `json:"times,omitempty"`
	Timezone string   `json:"timezone,omitempty"`
}

// Scan implements the sql.Scanner interface.
func (s *ScheduleSpec) Scan(value any) error {
	if value == nil {
		*s = ScheduleSpec{}
		return nil
	}

	data, err := jsonbBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*s = ScheduleSpec{}
		return nil
	}

	return json.Unmarshal(data, s)
}

// Value implements the driver.Valuer interface.
func (s ScheduleSpec) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// CrawlHistoryEntry is the trimmed summary of one run retained on its
// schedule, newest first, capped at CrawlHistoryCap.
type CrawlHistoryEntry struct {
	RunID      string      `json:"run_id"`
	Status     CrawlStatus `json:"status"`
	StartTime  time.Time   `json:"start_time"`
	Total      int         `json:"total"`
	Saved      int         `json:"saved"`
	Duplicates int         `json:"duplicates"`
	Errors     int         `json:"errors"`
}

// CrawlHistory is the JSONB-persisted list of history entries.
type CrawlHistory []CrawlHistoryEntry

// Scan implements the sql.Scanner interface.
func (h *CrawlHistory) Scan(value any) error {
	if value == nil {
		*h = nil
		return nil
	}

	data, err := jsonbBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*h = CrawlHistory{}
		return nil
	}

	return json.Unmarshal(data, h)
}

// Value implements the driver.Valuer interface.
func (h CrawlHistory) Value() (driver.Value, error) {
	if len(h) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

// Prepend adds an entry at the front and trims the history to the cap.
func (h CrawlHistory) Prepend(entry CrawlHistoryEntry) CrawlHistory {
	next := make(CrawlHistory, 0, min(len(h)+1, CrawlHistoryCap))
	next = append(next, entry)
	for _, e := range h {
		if len(next) == CrawlHistoryCap {
			break
		}
		next = append(next, e)
	}
	return next
}

// ScheduledCrawl represents a recurring crawl definition. NextRunTime is
// always set; the scheduler recomputes it after every run.
type ScheduledCrawl struct {
	ID              string         `db:"id" json:"schedule_id"`
	Name            string         `db:"name" json:"name"`
	Source          Source         `db:"source" json:"source"`
	SearchParams    SearchParams   `db:"search_params" json:"search_params"`
	Status          ScheduleStatus `db:"status" json:"status"`
	IntervalMinutes int            `db:"interval_minutes" json:"interval_minutes"`
	Schedule        *ScheduleSpec  `db:"schedule" json:"schedule,omitempty"`
	LastRunTime     *time.Time     `db:"last_run_time" json:"last_run_time,omitempty"`
	NextRunTime     time.Time      `db:"next_run_time" json:"next_run_time"`
	CrawlHistory    CrawlHistory   `db:"crawl_history" json:"crawl_history"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// IsDue reports whether the schedule should fire at the given instant. Only
// active schedules are ever due.
func (s *ScheduledCrawl) IsDue(now time.Time) bool {
	return s.Status == ScheduleStatusActive && !s.NextRunTime.After(now)
}
