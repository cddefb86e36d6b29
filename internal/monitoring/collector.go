package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/partnerhealth/report-core/internal/store"
)

// stuckScanLimit caps how many stuck payments one collection counts.
const stuckScanLimit = 10000

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Paid pipelines with no report that have not moved for staleAfter.
	StuckPipelines int `json:"stuck_pipelines"`
	// StuckByPartner breaks StuckPipelines down by partner integration.
	StuckByPartner map[string]int `json:"stuck_by_partner,omitempty"`
	// OldestStuck is how long the longest-waiting paid user has waited.
	OldestStuck time.Duration `json:"oldest_stuck"`

	// Generation attempts within the lookback window.
	GenerationTotal  int     `json:"generation_total"`
	GenerationFailed int     `json:"generation_failed"`
	FailureRate      float64 `json:"failure_rate"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers health metrics from the record store.
type Collector struct {
	store      store.Store
	staleAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a collector. A payment counts as stuck once it has
// been idle for staleAfter.
func NewCollector(st store.Store, staleAfter time.Duration) *Collector {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &Collector{
		store:      st,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Collect gathers a snapshot over the lookback window and publishes the
// gauges.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	now := c.now()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	stuck, err := c.store.ListStuckPayments(ctx, now.Add(-c.staleAfter), stuckScanLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list stuck payments")
	}
	snap.StuckPipelines = len(stuck)
	if len(stuck) > 0 {
		snap.StuckByPartner = make(map[string]int)
	}
	for _, p := range stuck {
		partner := p.PartnerID
		if partner == "" {
			partner = "unknown"
		}
		snap.StuckByPartner[partner]++
		if age := now.Sub(p.UpdatedAt); age > snap.OldestStuck {
			snap.OldestStuck = age
		}
	}

	stats, err := c.store.GenerationStats(ctx, now.Add(-time.Duration(lookbackHours)*time.Hour))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: generation stats")
	}
	snap.GenerationTotal = stats.Total
	snap.GenerationFailed = stats.Failed
	snap.FailureRate = stats.FailureRate()

	stuckPipelines.Set(float64(snap.StuckPipelines))
	generationFailureRate.Set(snap.FailureRate)

	return snap, nil
}
