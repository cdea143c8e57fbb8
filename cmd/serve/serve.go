// Package serve implements the serve command, which runs the HTTP API and
// the crawl scheduler until interrupted.
package serve

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/applyflow/jobcrawl/cmd/common"
	"github.com/applyflow/jobcrawl/internal/api"
)

const (
	errorChannelBufferSize = 1
	shutdownTimeout        = 30 * time.Second
)

// Command returns the serve command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the crawl API server and scheduler",
		Long: `Run the HTTP API together with the recurring crawl scheduler.
The process shuts down gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

func run() error {
	deps, err := common.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	if err = deps.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	server := api.New(
		api.Config{
			Address:      deps.Config.Server.Address,
			ReadTimeout:  deps.Config.Server.ReadTimeout,
			WriteTimeout: deps.Config.Server.WriteTimeout,
			IdleTimeout:  deps.Config.Server.IdleTimeout,
		},
		deps.Executor,
		deps.Runs,
		deps.Scheduler,
		deps.Metrics,
		deps.DB,
		deps.Logger,
	)

	errChan := make(chan error, errorChannelBufferSize)
	go func() {
		errChan <- server.Start()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err = <-errChan:
		deps.Scheduler.Stop()
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	deps.Logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err = server.Stop(shutdownCtx); err != nil {
		deps.Logger.Error("http server shutdown failed", "error", err)
	}
	deps.Scheduler.Stop()

	return nil
}
