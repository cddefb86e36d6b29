package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker runs collection and alerting on a fixed interval inside serve.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
	}
}

// Run checks once immediately so the gauges are populated at startup, then
// on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() == nil {
			c.check(ctx, log)
		}
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// check collects one snapshot and sends whatever it breaches. It returns the
// number of alerts delivered.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Error("failed to collect pipeline health", zap.Error(err))
		return 0
	}

	alerts := c.alerter.Evaluate(snap)
	log.Debug("pipeline health",
		zap.Int("stuck_pipelines", snap.StuckPipelines),
		zap.Duration("oldest_stuck", snap.OldestStuck),
		zap.Int("generation_total", snap.GenerationTotal),
		zap.Float64("failure_rate", snap.FailureRate),
		zap.Int("alerts", len(alerts)),
	)
	if len(alerts) == 0 {
		return 0
	}
	return c.alerter.SendAlerts(ctx, alerts)
}
