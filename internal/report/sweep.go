package report

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/partnerhealth/report-core/internal/config"
	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/internal/monitoring"
	"github.com/partnerhealth/report-core/internal/status"
	"github.com/partnerhealth/report-core/internal/store"
)

// StatusResolver resolves a user's unified status.
type StatusResolver interface {
	Status(ctx context.Context, q status.Query) (*status.Result, error)
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Scanned  int `json:"scanned"`
	Launched int `json:"launched"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Sweeper finds paid pipelines that never produced a report and relaunches
// generation for the ones whose status says it can proceed.
type Sweeper struct {
	store      store.Store
	resolver   StatusResolver
	launcher   Launcher
	limiter    *rate.Limiter
	staleAfter time.Duration
	limit      int
	now        func() time.Time
}

// NewSweeper creates a sweeper from config.
func NewSweeper(st store.Store, resolver StatusResolver, launcher Launcher, cfg config.SweepConfig) *Sweeper {
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 2
	}
	stale := time.Duration(cfg.StaleMinutes) * time.Minute
	if stale <= 0 {
		stale = 15 * time.Minute
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 200
	}
	return &Sweeper{
		store:      st,
		resolver:   resolver,
		launcher:   launcher,
		limiter:    rate.NewLimiter(rate.Limit(perSec), 1),
		staleAfter: stale,
		limit:      limit,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// sweepable reports whether a sweep may act on r. An expired report only
// qualifies once a newer payment is waiting for its replacement. Anything
// else needs the user.
func sweepable(r status.Resolution) bool {
	switch r.Status {
	case model.StatusReadyToGenerate, model.StatusReportPending:
		return true
	case model.StatusReportExpired:
		return r.RenewalPaid
	default:
		return false
	}
}

// RunOnce performs one pass. A partner integration is a hospital, so the
// payment's partner id keys the report.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	log := zap.L().With(zap.String("component", "report.sweeper"))

	cutoff := s.now().Add(-s.staleAfter)
	stuck, err := s.store.ListStuckPayments(ctx, cutoff, s.limit)
	if err != nil {
		return nil, eris.Wrap(err, "report: list stuck payments")
	}

	res := &SweepResult{Scanned: len(stuck)}
	for _, p := range stuck {
		if p.PartnerID == "" {
			res.Skipped++
			monitoring.RecordSweepLaunch("skipped")
			continue
		}
		q := status.Query{UserID: p.UserID, PartnerID: p.PartnerID, HospitalID: p.PartnerID}

		st, err := s.resolver.Status(ctx, q)
		if err != nil {
			log.Warn("sweep: status failed", zap.String("user_id", p.UserID), zap.Error(err))
			res.Failed++
			monitoring.RecordSweepLaunch("failed")
			continue
		}
		if !sweepable(st.Resolution) {
			log.Debug("sweep: not actionable",
				zap.String("user_id", p.UserID),
				zap.String("status", string(st.Status)),
			)
			res.Skipped++
			monitoring.RecordSweepLaunch("skipped")
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return res, eris.Wrap(err, "report: sweep throttle")
		}
		started, err := s.launcher.Launch(ctx, Request{
			UserID:     p.UserID,
			HospitalID: q.HospitalID,
			PartnerID:  p.PartnerID,
			Trigger:    TriggerSweep,
		})
		switch {
		case err != nil:
			log.Warn("sweep: launch failed", zap.String("user_id", p.UserID), zap.Error(err))
			res.Failed++
			monitoring.RecordSweepLaunch("failed")
		case !started:
			res.Skipped++
			monitoring.RecordSweepLaunch("skipped")
		default:
			res.Launched++
			monitoring.RecordSweepLaunch("launched")
		}
	}

	log.Info("sweep: pass complete",
		zap.Int("scanned", res.Scanned),
		zap.Int("launched", res.Launched),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	log := zap.L().With(zap.String("component", "report.sweeper"))
	log.Info("starting sweeper", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				log.Error("sweep: pass failed", zap.Error(err))
			}
		}
	}
}
