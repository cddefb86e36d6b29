package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the fields required by a command mode are set.
// Modes: serve, worker, sweep, generate, status, migrate.
func (c *Config) Validate(mode string) error {
	var problems []string
	need := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	storeChecks := func() {
		switch c.Store.Driver {
		case "postgres":
			need(c.Store.DatabaseURL != "", "store.database_url is required")
		case "sqlite":
			need(c.Store.DatabaseURL != "", "store.database_url is required (sqlite file path)")
		default:
			problems = append(problems, "store.driver must be postgres or sqlite")
		}
	}
	scoringChecks := func() {
		need(c.Scoring.BaseURL != "", "scoring.base_url is required")
		need(c.Scoring.TimeoutSecs > 0, "scoring.timeout_secs must be > 0")
		need(c.Retry.MaxAttempts >= 1 && c.Retry.MaxAttempts <= 10, "retry.max_attempts must be between 1 and 10")
		need(c.Retry.JitterFraction >= 0 && c.Retry.JitterFraction <= 1, "retry.jitter_fraction must be between 0 and 1")
	}
	schedulerChecks := func() {
		switch c.Scheduler.Driver {
		case "inprocess":
			need(c.Scheduler.Concurrency >= 1 && c.Scheduler.Concurrency <= 64, "scheduler.concurrency must be between 1 and 64")
		case "temporal":
			need(c.Scheduler.Temporal.HostPort != "", "scheduler.temporal.host_port is required")
			need(c.Scheduler.Temporal.TaskQueue != "", "scheduler.temporal.task_queue is required")
		default:
			problems = append(problems, "scheduler.driver must be inprocess or temporal")
		}
	}

	switch mode {
	case "serve":
		storeChecks()
		scoringChecks()
		schedulerChecks()
		need(c.Server.Port > 0, "server.port must be > 0")
		need(c.Report.ValidityDays >= 0, "report.validity_days must be >= 0")
		if c.Notify.Email {
			need(c.Notify.SMTPHost != "", "notify.smtp_host is required when notify.email is enabled")
			need(c.Notify.FromAddress != "", "notify.from_address is required when notify.email is enabled")
		}
		if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
			problems = append(problems, "monitoring.failure_rate_threshold must be between 0 and 1")
		}
	case "worker":
		storeChecks()
		scoringChecks()
		need(c.Scheduler.Temporal.HostPort != "", "scheduler.temporal.host_port is required")
		need(c.Scheduler.Temporal.TaskQueue != "", "scheduler.temporal.task_queue is required")
	case "sweep":
		storeChecks()
		scoringChecks()
		need(c.Sweep.StaleMinutes > 0, "sweep.stale_minutes must be > 0")
		need(c.Sweep.Limit > 0, "sweep.limit must be > 0")
		need(c.Sweep.RatePerSec > 0, "sweep.rate_per_sec must be > 0")
	case "generate":
		storeChecks()
		scoringChecks()
	case "status", "migrate":
		storeChecks()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
