package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/partnerhealth/report-core/internal/report"
	"github.com/partnerhealth/report-core/internal/resilience"
	"github.com/partnerhealth/report-core/internal/scheduler"
)

// launcherHandle is a launcher plus how to drain it.
type launcherHandle struct {
	report.Launcher
	// drain waits for locally running generations. Nil for remote launchers.
	drain func(ctx context.Context) error
}

// initLauncher picks the generation launcher for scheduler.driver.
func initLauncher(env *appEnv, progress report.ProgressTracker) (*launcherHandle, error) {
	switch cfg.Scheduler.Driver {
	case "", "inprocess":
		l := report.NewInProcessLauncher(env.Orchestrator, progress,
			resilience.FromRetryConfig(cfg.Retry), cfg.Scheduler.Concurrency)
		return &launcherHandle{Launcher: l, drain: l.Drain}, nil
	case "temporal":
		c, err := scheduler.Dial(cfg.Scheduler.Temporal)
		if err != nil {
			return nil, err
		}
		env.onClose(func() error {
			c.Close()
			return nil
		})
		return &launcherHandle{Launcher: scheduler.NewTemporalLauncher(c, cfg.Scheduler.Temporal.TaskQueue)}, nil
	default:
		return nil, eris.Errorf("unsupported scheduler driver: %s", cfg.Scheduler.Driver)
	}
}
