// Package remotive implements the JobSource capability against the Remotive
// public remote-jobs API. It is the reference integration; the other board
// clients live outside this service and register themselves the same way.
package remotive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/applyflow/jobcrawl/internal/domain"
	"github.com/applyflow/jobcrawl/internal/sources"
)

const (
	defaultBaseURL = "https://remotive.com/api/remote-jobs"
	defaultTimeout = 30 * time.Second
)

// Source fetches remote job listings from Remotive. The API is public, so
// the source is always configured unless explicitly disabled.
type Source struct {
	baseURL  string
	client   *http.Client
	disabled bool
}

// Option customizes the source.
type Option func(*Source)

// WithBaseURL overrides the API endpoint, for tests.
func WithBaseURL(baseURL string) Option {
	return func(s *Source) { s.baseURL = baseURL }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Source) { s.client = client }
}

// Disabled marks the source unconfigured.
func Disabled() Option {
	return func(s *Source) { s.disabled = true }
}

// New creates a Remotive source.
func New(opts ...Option) *Source {
	s := &Source{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compile-time capability check.
var _ sources.JobSource = (*Source)(nil)

// IsConfigured reports whether the source can fetch.
func (s *Source) IsConfigured() bool {
	return !s.disabled
}

// apiResponse mirrors the Remotive payload shape.
type apiResponse struct {
	Jobs []apiJob `json:"jobs"`
}

type apiJob struct {
	ID          int    `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	CompanyName string `json:"company_name"`
	Location    string `json:"candidate_required_location"`
	Salary      string `json:"salary"`
	Description string `json:"description"`
	Tags        []string `json:"tags"`
	PublishedAt string `json:"publication_date"`
}

// FetchJobs queries the API and converts listings to raw job records.
func (s *Source) FetchJobs(ctx context.Context, opts sources.FetchOptions) ([]domain.RawJob, error) {
	endpoint, err := s.buildURL(opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("remotive: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remotive: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remotive: unexpected status %d", resp.StatusCode)
	}

	var payload apiResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr != nil {
		return nil, fmt.Errorf("remotive: failed to decode response: %w", decodeErr)
	}

	raws := make([]domain.RawJob, 0, len(payload.Jobs))
	for _, job := range payload.Jobs {
		raws = append(raws, s.convert(job))
	}
	return raws, nil
}

// buildURL assembles the query, mapping fetch options to API parameters.
func (s *Source) buildURL(opts sources.FetchOptions) (string, error) {
	parsed, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("remotive: invalid base url: %w", err)
	}

	query := parsed.Query()
	if opts.Keywords != "" {
		query.Set("search", opts.Keywords)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

// convert maps an API listing to the raw record shape.
func (s *Source) convert(job apiJob) domain.RawJob {
	raw := domain.RawJob{
		Source:      domain.SourceRemotive,
		SourceID:    strconv.Itoa(job.ID),
		Title:       job.Title,
		Company:     job.CompanyName,
		Location:    job.Location,
		Description: job.Description,
		Salary:      job.Salary,
		URL:         job.URL,
		Skills:      job.Tags,
	}

	if job.PublishedAt != "" {
		if posted, parseErr := time.Parse("2006-01-02T15:04:05", job.PublishedAt); parseErr == nil {
			raw.PostedDate = &posted
		}
	}

	return raw
}
