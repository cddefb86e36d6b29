package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/scheduler"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker that executes report generation workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		progress := initProgress(env)

		c, err := scheduler.Dial(cfg.Scheduler.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		w := scheduler.NewWorker(c, cfg.Scheduler.Temporal.TaskQueue, cfg.Scheduler.Concurrency,
			scheduler.NewActivities(env.Orchestrator, progress))
		if err := w.Start(); err != nil {
			return eris.Wrap(err, "worker: start")
		}
		zap.L().Info("worker started", zap.String("task_queue", cfg.Scheduler.Temporal.TaskQueue))

		<-ctx.Done()
		zap.L().Info("stopping worker")
		w.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
