// Package report generates disease-risk reports: it scores a user's checkup
// data, persists the result and hands the news to the notifier.
package report

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/internal/monitoring"
	"github.com/partnerhealth/report-core/internal/resilience"
	"github.com/partnerhealth/report-core/internal/store"
	"github.com/partnerhealth/report-core/pkg/scoring"
)

// Triggers recorded on generation attempts.
const (
	TriggerAPI      = "api"
	TriggerSweep    = "sweep"
	TriggerWorkflow = "workflow"
	TriggerCLI      = "cli"
)

// Request asks for one report.
type Request struct {
	UserID        string         `json:"user_id" validate:"required,max=128"`
	HospitalID    string         `json:"hospital_id" validate:"required,max=128"`
	PartnerID     string         `json:"partner_id,omitempty" validate:"max=128"`
	Questionnaire *Questionnaire `json:"questionnaire,omitempty"`
	Trigger       string         `json:"-"`
}

// Announcer is told about every freshly generated report.
type Announcer interface {
	AnnounceReport(ref model.ReportRef) <-chan struct{}
}

// Orchestrator runs a single generation: score, persist, advance the ledger,
// notify. It does not retry; launchers do.
type Orchestrator struct {
	store     store.Store
	scorer    scoring.Client
	breaker   *resilience.CircuitBreaker
	announcer Announcer
	timeout   time.Duration
	now       func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithBreaker sets the circuit breaker guarding the scoring API.
func WithBreaker(cb *resilience.CircuitBreaker) OrchestratorOption {
	return func(o *Orchestrator) { o.breaker = cb }
}

// WithAnnouncer sets the notifier for finished reports.
func WithAnnouncer(a Announcer) OrchestratorOption {
	return func(o *Orchestrator) { o.announcer = a }
}

// WithScoringTimeout bounds one scoring call.
func WithScoringTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(st store.Store, scorer scoring.Client, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:   st,
		scorer:  scorer,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		timeout: 30 * time.Second,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generate produces the report for (UserID, HospitalID).
//
// Missing or insufficient checkup data is a NoDataError. A scoring failure
// returns an ExternalAPIError with nothing written. A failed report upsert is
// a PersistenceError. Advancing the payment ledger and notifying are
// best-effort and never fail the call. Concurrent calls for the same key
// converge on one report row.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (ref *model.ReportRef, err error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.HospitalID = strings.TrimSpace(req.HospitalID)
	if req.UserID == "" {
		return nil, &model.ValidationError{Field: "user_id", Reason: "required"}
	}
	if req.HospitalID == "" {
		return nil, &model.ValidationError{Field: "hospital_id", Reason: "required"}
	}

	log := zap.L().With(
		zap.String("component", "report.orchestrator"),
		zap.String("user_id", req.UserID),
		zap.String("hospital_id", req.HospitalID),
		zap.String("trigger", req.Trigger),
	)
	start := time.Now()
	defer func() { o.recordAttempt(ctx, log, req, start, err) }()

	ds, err := o.store.GetCheckupSummary(ctx, req.UserID)
	if err != nil {
		return nil, eris.Wrap(err, "report: load checkup")
	}
	if !ds.IsSufficient() {
		return nil, &model.NoDataError{UserID: req.UserID, MetricCount: ds.MetricCount()}
	}

	consent, cerr := o.store.GetConsent(ctx, req.UserID, req.PartnerID)
	if cerr != nil {
		log.Warn("report: consent lookup failed, scoring without identity", zap.Error(cerr))
	}

	resp, err := o.score(ctx, BuildScoringRequest(ds, consent, req.Questionnaire))
	if err != nil {
		return nil, err
	}

	analyzedAt := resp.AnalyzedAt.UTC()
	if resp.AnalyzedAt.IsZero() {
		analyzedAt = o.now()
	}
	report := &model.GeneratedReport{
		UserID:      req.UserID,
		HospitalID:  req.HospitalID,
		ReportURL:   resp.ReportURL,
		RiskScore:   resp.RiskScore,
		Rank:        resp.Rank,
		DiseaseData: resp.DiseaseData,
		CancerData:  resp.CancerData,
		AnalyzedAt:  analyzedAt,
	}
	if err := o.store.UpsertReport(ctx, report); err != nil {
		return nil, &model.PersistenceError{Op: "upsert report", Err: err}
	}

	o.advancePayment(ctx, log, req, report.ReportURL)

	ref = &model.ReportRef{
		UserID:     req.UserID,
		HospitalID: req.HospitalID,
		ReportURL:  report.ReportURL,
		AnalyzedAt: analyzedAt,
	}
	if o.announcer != nil {
		o.announcer.AnnounceReport(*ref)
	}

	log.Info("report: generated", zap.String("report_url", ref.ReportURL))
	return ref, nil
}

// score calls the scoring API once through the breaker with a bounded
// timeout.
func (o *Orchestrator) score(ctx context.Context, req scoring.Request) (*scoring.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := resilience.ExecuteVal(callCtx, o.breaker, func(ctx context.Context) (*scoring.Response, error) {
		return o.scorer.Generate(ctx, req)
	})
	monitoring.ObserveScoring(time.Since(start), err)
	if err != nil {
		var apiErr *model.ExternalAPIError
		if !errors.As(err, &apiErr) {
			err = &model.ExternalAPIError{Retryable: resilience.IsTransient(err), Err: err}
		}
		return nil, eris.Wrap(err, "report: score")
	}
	return resp, nil
}

// advancePayment marks a completed, real payment as done. The report is
// already durable, so a failure here only lags bookkeeping.
func (o *Orchestrator) advancePayment(ctx context.Context, log *zap.Logger, req Request, reportURL string) {
	p, err := o.store.GetPayment(ctx, req.UserID, req.PartnerID)
	if err != nil {
		log.Warn("report: payment lookup failed, ledger not advanced", zap.Error(err))
		return
	}
	if !p.IsCompleted() || p.Ephemeral {
		return
	}
	if p.PipelineStep == model.StepCompleted && p.ReportURL == reportURL {
		return
	}
	if err := o.store.AdvancePipeline(ctx, p.ID, model.StepCompleted, reportURL); err != nil {
		log.Warn("report: ledger not advanced", zap.String("payment_id", p.ID), zap.Error(err))
	}
}

// Outcome classifies a Generate error for the attempt log.
func Outcome(err error) model.GenerationOutcome {
	var apiErr *model.ExternalAPIError
	switch {
	case err == nil:
		return model.OutcomeSuccess
	case model.IsNoData(err):
		return model.OutcomeNoData
	case errors.As(err, &apiErr):
		return model.OutcomeScoringError
	default:
		return model.OutcomePersistError
	}
}

func (o *Orchestrator) recordAttempt(ctx context.Context, log *zap.Logger, req Request, start time.Time, err error) {
	if model.IsValidation(err) {
		return
	}
	outcome := Outcome(err)
	monitoring.RecordGeneration(string(outcome), req.Trigger)

	a := &model.GenerationAttempt{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		HospitalID: req.HospitalID,
		Trigger:    req.Trigger,
		Outcome:    outcome,
		DurationMs: time.Since(start).Milliseconds(),
		CreatedAt:  o.now(),
	}
	if err != nil {
		a.Error = err.Error()
		log.Warn("report: generation failed", zap.String("outcome", string(outcome)), zap.Error(err))
	}

	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if rerr := o.store.RecordGeneration(recCtx, a); rerr != nil {
		log.Warn("report: attempt not recorded", zap.Error(rerr))
	}
}
