package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "report_core"

var (
	// resolutionsTotal counts resolved statuses.
	// Labels: status (final unified status), reclassified (true, false)
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "status",
		Name:      "resolutions_total",
		Help:      "Total status resolutions by final status",
	}, []string{"status", "reclassified"})

	trackingRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "status",
		Name:      "tracking_records_total",
		Help:      "Ephemeral tracking record creations by outcome",
	}, []string{"outcome"})

	// generationsTotal counts orchestrator runs.
	// Labels: outcome (success, no_data, scoring_error, persist_error), trigger
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "report",
		Name:      "generations_total",
		Help:      "Total report generation attempts by outcome",
	}, []string{"outcome", "trigger"})

	scoringLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scoring",
		Name:      "latency_seconds",
		Help:      "Scoring API call latency in seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"status"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "notifications_total",
		Help:      "Notification deliveries by channel and outcome",
	}, []string{"channel", "outcome"})

	sweepLaunchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "launches_total",
		Help:      "Stuck pipelines handled by the sweeper, by result",
	}, []string{"result"})

	stuckPipelines = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "stuck",
		Help:      "Completed payments with no report older than the staleness cutoff",
	})

	generationFailureRate = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "report",
		Name:      "failure_rate",
		Help:      "Generation failure rate over the lookback window",
	})

	// circuitState is 0 closed, 1 open, 2 half-open.
	circuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "circuit",
		Name:      "state",
		Help:      "Circuit breaker state per upstream (0 closed, 1 open, 2 half-open)",
	}, []string{"upstream"})
)

// RecordResolution counts one status resolution.
func RecordResolution(status string, reclassified bool) {
	r := "false"
	if reclassified {
		r = "true"
	}
	resolutionsTotal.WithLabelValues(status, r).Inc()
}

// RecordTrackingRecord counts a tracking record creation attempt.
func RecordTrackingRecord(err error) {
	trackingRecordsTotal.WithLabelValues(outcomeLabel(err)).Inc()
}

// RecordGeneration counts one orchestrator run.
func RecordGeneration(outcome, trigger string) {
	if trigger == "" {
		trigger = "unknown"
	}
	generationsTotal.WithLabelValues(outcome, trigger).Inc()
}

// ObserveScoring records the latency of one scoring API call.
func ObserveScoring(d time.Duration, err error) {
	scoringLatency.WithLabelValues(outcomeLabel(err)).Observe(d.Seconds())
}

// RecordNotification counts one channel delivery.
func RecordNotification(channel string, err error) {
	notificationsTotal.WithLabelValues(channel, outcomeLabel(err)).Inc()
}

// RecordSweepLaunch counts one sweep decision (launched, skipped, failed).
func RecordSweepLaunch(result string) {
	sweepLaunchesTotal.WithLabelValues(result).Inc()
}

// SetCircuitState publishes a breaker transition.
func SetCircuitState(upstream string, state int) {
	circuitState.WithLabelValues(upstream).Set(float64(state))
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
