// Command quarryctl operates a quarry deployment from the shell: submit
// jobs, await their outcomes, run workers, and inspect queue state.
//
// Every command talks only to the shared store, so quarryctl can run on
// any machine that reaches it.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	redisAddr  string
	sqlitePath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:           "quarryctl",
		Short:         "Operate a quarry job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address (e.g. localhost:6379)")
	root.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "SQLite database path")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newSubmitCmd(),
		newAwaitCmd(),
		newRequeueCmd(),
		newWorkCmd(),
		newStatsCmd(),
		newSweepCmd(),
		newPurgeCmd(),
		newWorkersCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "quarryctl:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
