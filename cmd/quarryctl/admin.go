package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/job"
	"github.com/quarrylabs/quarry/producer"
)

func newStatsCmd() *cobra.Command {
	var jobType string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print job counts per state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck // exiting anyway

			states := []job.State{
				job.StateQueued, job.StateActive,
				job.StateCompleted, job.StateFailed, job.StateTimedOut,
			}
			for _, st := range states {
				n, err := s.CountJobs(ctx, job.CountOpts{State: st, Type: jobType})
				if err != nil {
					return err
				}
				fmt.Printf("%-10s %d\n", st, n)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&jobType, "type", "t", "", "filter by job type")

	return cmd
}

func newSweepCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim active jobs whose deadline passed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck // exiting anyway

			reclaimed, err := s.SweepExpired(ctx, olderThan)
			if err != nil {
				return err
			}
			for _, j := range reclaimed {
				fmt.Printf("timed_out %s (%s, owner was %s)\n", j.ID, j.Type, j.Owner)
			}
			fmt.Printf("%d job(s) reclaimed\n", len(reclaimed))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 5*time.Minute, "reclaim jobs active longer than this")

	return cmd
}

func newPurgeCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete old auto-cleanup terminal jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck // exiting anyway

			n, err := s.PurgeTerminalJobs(ctx, olderThan)
			if err != nil {
				return err
			}
			fmt.Printf("%d job(s) purged\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", time.Hour, "purge jobs that finished longer ago than this")

	return cmd
}

func newRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Submit a fresh job cloned from a terminal one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}

			s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck // exiting anyway

			p := producer.New(s, producer.WithLogger(newLogger()))
			h, err := p.Resubmit(ctx, jobID)
			if err != nil {
				return err
			}
			fmt.Println(h.JobID)
			return nil
		},
	}
}

func newWorkersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List registered workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck // exiting anyway

			workers, err := s.ListWorkers(ctx)
			if err != nil {
				return err
			}
			for _, w := range workers {
				leader := ""
				if w.IsLeader {
					leader = " leader"
				}
				fmt.Printf("%s %s slots=%d policy=%s last_seen=%s%s\n",
					w.ID, w.Hostname, w.Concurrency, w.Policy,
					w.LastSeen.Format(time.RFC3339), leader)
			}
			fmt.Printf("%d worker(s)\n", len(workers))
			return nil
		},
	}
}
