package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry"
	"github.com/quarrylabs/quarry/audit"
	"github.com/quarrylabs/quarry/engine"
	"github.com/quarrylabs/quarry/job"
	"github.com/quarrylabs/quarry/scale"
)

// newWorkCmd runs a worker pool with a demo echo handler. Real
// deployments embed the engine in their own binary and register their
// own handlers; this command exists to exercise a deployment end to end.
func newWorkCmd() *cobra.Command {
	var (
		types       []string
		concurrency int
		deadline    time.Duration
		auditTrail  bool
	)

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run a worker pool with an echo handler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := newLogger()

			s, err := openStore(ctx)
			if err != nil {
				return err
			}

			var policy scale.Policy = scale.Fixed{}
			if concurrency > 0 {
				policy = scale.Elastic{PerProcess: concurrency}
			}

			cfg := quarry.DefaultConfig()
			cfg.Types = types
			cfg.ActiveDeadline = deadline

			c, err := quarry.New(
				quarry.WithStore(s),
				quarry.WithLogger(logger),
				quarry.WithPolicy(policy),
				quarry.WithConfig(cfg),
			)
			if err != nil {
				return err
			}

			var engOpts []engine.Option
			if auditTrail {
				engOpts = append(engOpts, engine.WithHook(
					audit.New(audit.SlogRecorder(logger), audit.WithLogger(logger)),
				))
			}

			eng, err := engine.Build(c, engOpts...)
			if err != nil {
				return err
			}

			for _, t := range types {
				engine.Register(eng, job.NewDefinition(t,
					func(_ context.Context, payload map[string]any) (map[string]any, error) {
						return payload, nil
					},
				))
			}

			if err := eng.Start(ctx); err != nil {
				return err
			}
			fmt.Printf("workers running for types [%s], ctrl-c to stop\n", strings.Join(types, ", "))

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return eng.Stop(shutdownCtx)
		},
	}

	cmd.Flags().StringSliceVarP(&types, "type", "t", []string{"default"}, "job types to claim")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "claim slots (0 = one per CPU)")
	cmd.Flags().DurationVar(&deadline, "deadline", 5*time.Minute, "active deadline before the sweep reclaims a job")
	cmd.Flags().BoolVar(&auditTrail, "audit", false, "emit an audit event per job lifecycle transition")

	return cmd
}
