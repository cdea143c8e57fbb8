package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CrawlStatus represents the lifecycle state of a crawl run.
type CrawlStatus string

// Crawl run states.
const (
	CrawlStatusPending   CrawlStatus = "pending"
	CrawlStatusRunning   CrawlStatus = "running"
	CrawlStatusCompleted CrawlStatus = "completed"
	CrawlStatusFailed    CrawlStatus = "failed"
	CrawlStatusCancelled CrawlStatus = "cancelled"
)

// IsTerminal reports whether the status is final. Terminal runs are never
// resurrected.
func (s CrawlStatus) IsTerminal() bool {
	switch s {
	case CrawlStatusCompleted, CrawlStatusFailed, CrawlStatusCancelled:
		return true
	default:
		return false
	}
}

// crawlTransitions enumerates the allowed run state transitions. Cancellation
// is only reachable from running via direct external mutation; the executor
// itself never cancels.
var crawlTransitions = map[CrawlStatus][]CrawlStatus{
	CrawlStatusPending:   {CrawlStatusRunning},
	CrawlStatusRunning:   {CrawlStatusCompleted, CrawlStatusFailed, CrawlStatusCancelled},
	CrawlStatusCompleted: {},
	CrawlStatusFailed:    {},
	CrawlStatusCancelled: {},
}

// ValidateCrawlTransition checks whether a run state transition is allowed.
func ValidateCrawlTransition(from, to CrawlStatus) error {
	allowed, exists := crawlTransitions[from]
	if !exists {
		return fmt.Errorf("unknown crawl status: %s", from)
	}

	for _, next := range allowed {
		if next == to {
			return nil
		}
	}

	return fmt.Errorf("invalid crawl transition from %s to %s", from, to)
}

// SearchParams are the source query parameters attached to a crawl run or a
// recurring schedule.
type SearchParams struct {
	Keywords string `json:"keywords,omitempty" mapstructure:"keywords"`
	Location string `json:"location,omitempty" mapstructure:"location"`
	Limit    int    `json:"limit,omitempty" mapstructure:"limit"`
	Remote   bool   `json:"remote,omitempty" mapstructure:"remote"`
}

// Scan implements the sql.Scanner interface.
func (p *SearchParams) Scan(value any) error {
	if value == nil {
		*p = SearchParams{}
		return nil
	}

	data, err := jsonbBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*p = SearchParams{}
		return nil
	}

	return json.Unmarshal(data, p)
}

// Value implements the driver.Valuer interface.
func (p SearchParams) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// CrawlResult is the per-run tally persisted on completed runs. SourceErrors
// carries per-source fetch failures that did not fail the run as a whole.
type CrawlResult struct {
	Total        int               `json:"total"`
	Saved        int               `json:"saved"`
	Duplicates   int               `json:"duplicates"`
	Errors       int               `json:"errors"`
	SourceErrors map[string]string `json:"source_errors,omitempty"`
}

// Scan implements the sql.Scanner interface.
func (r *CrawlResult) Scan(value any) error {
	if value == nil {
		*r = CrawlResult{}
		return nil
	}

	data, err := jsonbBytes(value)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*r = CrawlResult{}
		return nil
	}

	return json.Unmarshal(data, r)
}

// Value implements the driver.Valuer interface.
func (r CrawlResult) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// CrawlJob represents one crawl run: pending -> running -> completed|failed,
// with cancelled reachable only by external mutation while running.
type CrawlJob struct {
	ID           string       `db:"id" json:"job_id"`
	Source       Source       `db:"source" json:"source"`
	Status       CrawlStatus  `db:"status" json:"status"`
	SearchParams SearchParams `db:"search_params" json:"search_params"`
	StartTime    time.Time    `db:"start_time" json:"start_time"`
	EndTime      *time.Time   `db:"end_time" json:"end_time,omitempty"`
	DurationMS   *int64       `db:"duration_ms" json:"duration_ms,omitempty"`
	Result       *CrawlResult `db:"result" json:"result,omitempty"`
	ErrorMessage *string      `db:"error_message" json:"error,omitempty"`
	IsScheduled  bool         `db:"is_scheduled" json:"is_scheduled"`
	ScheduleID   *string      `db:"schedule_id" json:"schedule_id,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// Duration returns the run duration when both endpoints are known.
func (c *CrawlJob) Duration() (time.Duration, bool) {
	if c.EndTime == nil {
		return 0, false
	}
	return c.EndTime.Sub(c.StartTime), true
}

// Clone returns a deep copy of the run. The copy shares no mutable state
// with the receiver, so it can be handed to another goroutine while the
// original is still being written to.
func (c *CrawlJob) Clone() *CrawlJob {
	if c == nil {
		return nil
	}

	dup := *c
	if c.EndTime != nil {
		end := *c.EndTime
		dup.EndTime = &end
	}
	if c.DurationMS != nil {
		duration := *c.DurationMS
		dup.DurationMS = &duration
	}
	if c.ErrorMessage != nil {
		msg := *c.ErrorMessage
		dup.ErrorMessage = &msg
	}
	if c.ScheduleID != nil {
		id := *c.ScheduleID
		dup.ScheduleID = &id
	}
	if c.Result != nil {
		result := *c.Result
		if c.Result.SourceErrors != nil {
			result.SourceErrors = make(map[string]string, len(c.Result.SourceErrors))
			for source, msg := range c.Result.SourceErrors {
				result.SourceErrors[source] = msg
			}
		}
		dup.Result = &result
	}
	return &dup
}
