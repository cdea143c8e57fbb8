// Package crawl implements the crawl command, a one-shot crawl of one or
// all configured job sources.
package crawl

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/applyflow/jobcrawl/cmd/common"
	"github.com/applyflow/jobcrawl/internal/domain"
	"github.com/applyflow/jobcrawl/internal/executor"
)

// Command returns the crawl command for use in the root command.
func Command() *cobra.Command {
	var (
		keywords  string
		location  string
		limit     int
		remote    bool
		noPersist bool
	)

	cmd := &cobra.Command{
		Use:   "crawl [source]",
		Short: "Run a one-shot crawl of a job source",
		Long: `Run a single crawl of the named job source and print the outcome.
Use "all" to fan out over every configured source.

With --no-persist the fetched jobs are counted but not stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := domain.Source(args[0])
			if source != domain.SourceAll && !source.IsValid() {
				return fmt.Errorf("unknown source %q", args[0])
			}

			deps, err := common.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			run, err := deps.Executor.Run(cmd.Context(), executor.RunRequest{
				Source: source,
				Params: domain.SearchParams{
					Keywords: keywords,
					Location: location,
					Limit:    limit,
					Remote:   remote,
				},
				Persist: !noPersist,
			})
			if run != nil {
				printRun(run)
			}
			if err != nil {
				return fmt.Errorf("crawl failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&keywords, "keywords", "", "search keywords")
	cmd.Flags().StringVar(&location, "location", "", "search location")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum jobs to fetch per source (0 = source default)")
	cmd.Flags().BoolVar(&remote, "remote", false, "restrict to remote jobs")
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "fetch and count without storing")

	return cmd
}

// printRun renders the crawl outcome as a table on stdout.
func printRun(run *domain.CrawlJob) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Source", "Status", "Total", "Saved", "Duplicates", "Errors", "Duration (ms)"})

	var total, saved, duplicates, errored int
	if run.Result != nil {
		total = run.Result.Total
		saved = run.Result.Saved
		duplicates = run.Result.Duplicates
		errored = run.Result.Errors
	}
	var durationMS int64
	if run.DurationMS != nil {
		durationMS = *run.DurationMS
	}
	t.AppendRow(table.Row{run.ID, run.Source, run.Status, total, saved, duplicates, errored, durationMS})
	t.Render()

	if run.Result == nil || len(run.Result.SourceErrors) == 0 {
		return
	}

	e := table.NewWriter()
	e.SetOutputMirror(os.Stdout)
	e.SetStyle(table.StyleLight)
	e.AppendHeader(table.Row{"Source", "Error"})

	ids := make([]string, 0, len(run.Result.SourceErrors))
	for id := range run.Result.SourceErrors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e.AppendRow(table.Row{id, run.Result.SourceErrors[id]})
	}
	e.Render()
}
