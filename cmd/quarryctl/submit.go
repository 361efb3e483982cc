package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/id"
	"github.com/quarrylabs/quarry/job"
	"github.com/quarrylabs/quarry/producer"
)

func parseJobID(s string) (id.JobID, error) {
	jobID, err := id.ParseJobID(s)
	if err != nil {
		return id.Nil, fmt.Errorf("invalid job id %q: %w", s, err)
	}
	return jobID, nil
}

func newSubmitCmd() *cobra.Command {
	var (
		jobType     string
		priority    int
		autoCleanup bool
		wait        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit <payload-json>",
		Short: "Submit a job and print its ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck // exiting anyway

			p := producer.New(s, producer.WithLogger(newLogger()))

			opts := []job.Option{job.WithPriority(priority)}
			if autoCleanup {
				opts = append(opts, job.WithAutoCleanup())
			}

			h, err := p.SubmitRaw(ctx, jobType, []byte(args[0]), opts...)
			if err != nil {
				return err
			}
			fmt.Println(h.JobID)

			if wait > 0 {
				return printOutcome(ctx, p, h, wait)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&jobType, "type", "t", "default", "job type")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "job priority (higher runs first)")
	cmd.Flags().BoolVar(&autoCleanup, "auto-cleanup", false, "delete the job once its outcome is observed")
	cmd.Flags().DurationVarP(&wait, "wait", "w", 0, "also await the outcome for this long (0 = fire and forget)")

	return cmd
}

func newAwaitCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "await <job-id>",
		Short: "Await a previously submitted job's outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck // exiting anyway

			p := producer.New(s, producer.WithLogger(newLogger()))

			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			h, err := p.Lookup(ctx, jobID)
			if err != nil {
				return err
			}
			return printOutcome(ctx, p, h, timeout)
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "w", 30*time.Second, "how long to wait")

	return cmd
}

func printOutcome(ctx context.Context, p *producer.Producer, h *producer.Handle, timeout time.Duration) error {
	out, err := p.Await(ctx, h, timeout)
	if err != nil {
		return err
	}

	switch {
	case out.Status == producer.StatusCompleted:
		fmt.Printf("completed: %s\n", out.Result)
	case out.Status == producer.StatusFailed:
		fmt.Printf("failed: %s\n", out.Failure.Message)
	case out.Terminal:
		fmt.Println("timed_out: worker never finalized the job")
	default:
		fmt.Println("unknown: wait expired, job still in flight")
	}
	return nil
}
