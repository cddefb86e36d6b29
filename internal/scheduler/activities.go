package scheduler

import (
	"context"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/internal/report"
	"github.com/partnerhealth/report-core/internal/resilience"
)

// Activities holds the dependencies of the generation activity.
type Activities struct {
	gen      report.Generator
	progress report.ProgressTracker
}

// NewActivities creates the activity set. progress may be nil.
func NewActivities(gen report.Generator, progress report.ProgressTracker) *Activities {
	return &Activities{gen: gen, progress: progress}
}

// GenerateReport runs one generation attempt. Errors that retrying cannot fix
// come back as non-retryable application errors.
func (a *Activities) GenerateReport(ctx context.Context, req report.Request) (*model.ReportRef, error) {
	info := activity.GetInfo(ctx)
	attempt := int(info.Attempt)
	req.Trigger = report.TriggerWorkflow

	state := report.StateRunning
	if attempt > 1 {
		state = report.StateRetrying
	}
	a.track(ctx, report.Progress{UserID: req.UserID, HospitalID: req.HospitalID, State: state, Attempt: attempt})

	ref, err := a.gen.Generate(ctx, req)
	if err != nil && ctx.Err() != nil {
		// Worker shutdown or timeout; the server schedules the next attempt.
		return nil, err
	}
	if err != nil {
		if finalAttempt(err, attempt) {
			a.track(ctx, report.Progress{
				UserID: req.UserID, HospitalID: req.HospitalID,
				State: report.StateFailed, Attempt: attempt, Error: err.Error(),
			})
		}
		return nil, classify(err)
	}

	a.track(ctx, report.Progress{
		UserID: req.UserID, HospitalID: req.HospitalID,
		State: report.StateSucceeded, Attempt: attempt, ReportURL: ref.ReportURL,
	})
	return ref, nil
}

func (a *Activities) track(ctx context.Context, p report.Progress) {
	if a.progress == nil {
		return
	}
	if err := a.progress.Set(context.WithoutCancel(ctx), p); err != nil {
		zap.L().Debug("scheduler: progress not recorded",
			zap.String("user_id", p.UserID),
			zap.String("state", string(p.State)),
			zap.Error(err),
		)
	}
}

// classify maps domain errors onto Temporal application errors.
func classify(err error) error {
	switch {
	case model.IsNoData(err):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNoData, err)
	case model.IsValidation(err):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeValidation, err)
	case !resilience.IsTransient(err):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeRejected, err)
	default:
		return temporal.NewApplicationError(err.Error(), ErrTypeTransient, err)
	}
}

// finalAttempt reports whether the retry policy will give up after err.
func finalAttempt(err error, attempt int) bool {
	return !resilience.IsTransient(err) || attempt >= retryMaxAttempts
}
