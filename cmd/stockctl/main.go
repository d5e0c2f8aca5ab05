// Command stockctl runs maintenance tasks against the stock database and job
// queue: schema migrations, catalog seeding and manual job triggers.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-stock/internal/app"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultEnv()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env carries the collaborators commands need. Tests replace the loaders.
type env struct {
	loadConfig func() (*app.Config, error)
	newLogger  func(*app.Config) *slog.Logger
	openQueue  func() (jobQueue, error)
	out        io.Writer
}

func defaultEnv() *env {
	return &env{
		loadConfig: app.LoadConfig,
		newLogger:  app.NewLogger,
		out:        os.Stdout,
	}
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "stockctl",
		Short:         "Maintenance commands for the stock service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(e.out)
	root.AddCommand(newMigrateCmd(e))
	root.AddCommand(newSeedCmd(e))
	root.AddCommand(newJobsCmd(e))
	return root
}
