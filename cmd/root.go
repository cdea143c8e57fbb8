// Package cmd implements the command-line interface for the job crawl
// service. It provides the root command and subcommands for running crawls
// and serving the HTTP API.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/applyflow/jobcrawl/cmd/crawl"
	"github.com/applyflow/jobcrawl/cmd/serve"
)

// rootCmd represents the root command for the jobcrawl CLI.
var rootCmd = &cobra.Command{
	Use:   "jobcrawl",
	Short: "A job posting crawler and scheduler",
	Long:  `A job posting crawler that fetches listings from job boards, deduplicates them, and runs recurring crawl schedules.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.AddCommand(crawl.Command())
	rootCmd.AddCommand(serve.Command())
}
