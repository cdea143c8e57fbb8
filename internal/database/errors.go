package database

import "errors"

var (
	// ErrCrawlJobNotFound indicates the requested crawl run does not exist.
	ErrCrawlJobNotFound = errors.New("crawl job not found")
	// ErrScheduleNotFound indicates the requested schedule does not exist.
	ErrScheduleNotFound = errors.New("schedule not found")
	// ErrListingNotFound indicates the requested job listing does not exist.
	ErrListingNotFound = errors.New("job listing not found")
)
