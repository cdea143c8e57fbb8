package domain

// SourceStats aggregates completed runs for one source.
type SourceStats struct {
	Source        Source  `db:"source" json:"source"`
	Runs          int     `db:"runs" json:"runs"`
	TotalFetched  int     `db:"total_fetched" json:"total_fetched"`
	TotalSaved    int     `db:"total_saved" json:"total_saved"`
	TotalDupes    int     `db:"total_duplicates" json:"total_duplicates"`
	TotalErrors   int     `db:"total_errors" json:"total_errors"`
	AvgDurationMS float64 `db:"avg_duration_ms" json:"avg_duration_ms"`
}

// CrawlStats aggregates completed runs grouped by source plus an overall
// rollup.
type CrawlStats struct {
	BySource []SourceStats `json:"by_source"`
	Total    SourceStats   `json:"total"`
}
