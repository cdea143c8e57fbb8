// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// Source identifies an external job board or integration.
type Source string

// Known job sources.
const (
	SourceLinkedIn   Source = "linkedin"
	SourceIndeed     Source = "indeed"
	SourceGlassdoor  Source = "glassdoor"
	SourceGoogleJobs Source = "googleJobs"
	SourceRemotive   Source = "remotive"
	SourceManual     Source = "manual"
	SourceOther      Source = "other"

	// SourceAll is a pseudo-source meaning a fan-out over every configured source.
	SourceAll Source = "all"
)

// knownSources lists every concrete source a Job row may carry.
var knownSources = map[Source]struct{}{
	SourceLinkedIn:   {},
	SourceIndeed:     {},
	SourceGlassdoor:  {},
	SourceGoogleJobs: {},
	SourceRemotive:   {},
	SourceManual:     {},
	SourceOther:      {},
}

// IsValid reports whether s is a concrete source (not "all").
func (s Source) IsValid() bool {
	_, ok := knownSources[s]
	return ok
}

// String returns the string form of the source.
func (s Source) String() string {
	return string(s)
}

// Job represents a persisted job listing. Rows are append-mostly: created on
// first sighting and refreshed in place when the same listing is re-sighted.
// Identity is enforced three ways, in priority order: (source, source_id),
// normalized_url, fingerprint.
type Job struct {
	ID            string      `db:"id" json:"id"`
	Title         string      `db:"title" json:"title"`
	Company       string      `db:"company" json:"company"`
	Location      string      `db:"location" json:"location"`
	Description   string      `db:"description" json:"description"`
	Salary        string      `db:"salary" json:"salary,omitempty"`
	Skills        StringSlice `db:"skills" json:"skills"`
	Source        Source      `db:"source" json:"source"`
	SourceID      *string     `db:"source_id" json:"source_id,omitempty"`
	URL           *string     `db:"url" json:"url,omitempty"`
	NormalizedURL *string     `db:"normalized_url" json:"normalized_url,omitempty"`
	Fingerprint   string      `db:"fingerprint" json:"fingerprint"`
	PostedDate    *time.Time  `db:"posted_date" json:"posted_date,omitempty"`
	CrawledDate   time.Time   `db:"crawled_date" json:"crawled_date"`
	IsActive      bool        `db:"is_active" json:"is_active"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// RawJob is an unpersisted job record as returned by a JobSource, before
// deduplication and identity computation.
type RawJob struct {
	Source      Source     `json:"source"`
	SourceID    string     `json:"source_id,omitempty"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	Salary      string     `json:"salary,omitempty"`
	URL         string     `json:"url,omitempty"`
	Skills      []string   `json:"skills,omitempty"`
	PostedDate  *time.Time `json:"posted_date,omitempty"`
}
