package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/config"
	"github.com/partnerhealth/report-core/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertStuckPipelines        AlertType = "stuck_pipelines"
	AlertGenerationFailureRate AlertType = "generation_failure_rate"
)

// Severity levels. An alert escalates to critical at twice its threshold.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// minAttemptsForRate is the sample size below which a failure rate is noise.
const minAttemptsForRate = 5

// Alert is one breached threshold, posted as JSON to the webhook.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// alertRule inspects a snapshot and returns an alert when its threshold is
// breached.
type alertRule func(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool)

var alertRules = []alertRule{stuckPipelinesRule, failureRateRule}

func stuckPipelinesRule(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool) {
	if cfg.StuckThreshold <= 0 || snap.StuckPipelines < cfg.StuckThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertStuckPipelines,
		Severity: severity(float64(snap.StuckPipelines), float64(cfg.StuckThreshold)),
		Message: fmt.Sprintf("%d paid pipeline(s) have no report (threshold %d, oldest waiting %s)",
			snap.StuckPipelines, cfg.StuckThreshold, snap.OldestStuck.Round(time.Minute)),
		Details: map[string]any{
			"stuck":        snap.StuckPipelines,
			"threshold":    cfg.StuckThreshold,
			"top_partners": topPartners(snap.StuckByPartner, 5),
		},
	}, true
}

func failureRateRule(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool) {
	if snap.GenerationTotal < minAttemptsForRate || snap.FailureRate <= cfg.FailureRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertGenerationFailureRate,
		Severity: severity(snap.FailureRate, cfg.FailureRateThreshold),
		Message: fmt.Sprintf(
			"Report generation failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d attempts in last %dh)",
			snap.FailureRate*100, cfg.FailureRateThreshold*100,
			snap.GenerationFailed, snap.GenerationTotal, snap.LookbackHours,
		),
		Details: map[string]any{
			"failure_rate": snap.FailureRate,
			"threshold":    cfg.FailureRateThreshold,
			"failed":       snap.GenerationFailed,
			"attempts":     snap.GenerationTotal,
		},
	}, true
}

func severity(value, threshold float64) string {
	if threshold > 0 && value >= 2*threshold {
		return SeverityCritical
	}
	return SeverityWarning
}

// topPartners returns up to n partner ids ordered by stuck count.
func topPartners(counts map[string]int, n int) []string {
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// Alerter evaluates snapshots against the configured thresholds and posts
// breaches to a webhook. An alert type that was sent is muted for the
// cooldown unless its severity rises.
type Alerter struct {
	cfg      config.MonitoringConfig
	client   *http.Client
	retry    resilience.RetryConfig
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	sent map[AlertType]Alert
}

// NewAlerter creates an Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	retry := resilience.DefaultRetryConfig()
	retry.InitialBackoff = 500 * time.Millisecond
	retry.MaxBackoff = 5 * time.Second

	return &Alerter{
		cfg:      cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		retry:    retry,
		cooldown: time.Duration(cfg.AlertCooldownMins) * time.Minute,
		now:      func() time.Time { return time.Now().UTC() },
		sent:     make(map[AlertType]Alert),
	}
}

// Evaluate returns the alerts the snapshot breaches, in rule order.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	now := a.now()
	var alerts []Alert
	for _, rule := range alertRules {
		if alert, ok := rule(a.cfg, snap); ok {
			alert.Timestamp = now
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// muted reports whether an equal-or-lower severity alert of the same type
// went out within the cooldown.
func (a *Alerter) muted(alert Alert) bool {
	if a.cooldown <= 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	prev, ok := a.sent[alert.Type]
	if !ok || alert.Timestamp.Sub(prev.Timestamp) >= a.cooldown {
		return false
	}
	return prev.Severity == SeverityCritical || alert.Severity == prev.Severity
}

func (a *Alerter) markSent(alert Alert) {
	a.mu.Lock()
	a.sent[alert.Type] = alert
	a.mu.Unlock()
}

// SendAlerts delivers alerts to the webhook and returns how many went out.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	log := zap.L().With(zap.String("component", "monitoring.alerter"))
	sent := 0
	for _, alert := range alerts {
		if a.muted(alert) {
			log.Debug("alert muted", zap.String("type", string(alert.Type)))
			continue
		}
		err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.post(ctx, alert)
		})
		if err != nil {
			log.Error("failed to send alert", zap.String("type", string(alert.Type)), zap.Error(err))
			continue
		}
		a.markSent(alert)
		log.Info("alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// post sends one alert. 5xx and 429 responses are retried.
func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "monitoring: webhook request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
