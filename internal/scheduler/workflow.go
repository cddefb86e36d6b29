// Package scheduler runs report generation as a durable Temporal workflow so
// retries survive process restarts.
package scheduler

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/internal/report"
)

// Names registered with the worker.
const (
	WorkflowName     = "GenerateReportWorkflow"
	ActivityName     = "GenerateReport"
	DefaultTaskQueue = "report-generation"
)

// Application error types returned by the activity.
const (
	ErrTypeNoData     = "NoData"
	ErrTypeValidation = "Validation"
	ErrTypeRejected   = "ScoringRejected"
	ErrTypeTransient  = "Transient"
)

// Activity retry policy.
const (
	retryInitialInterval = 2 * time.Second
	retryCoefficient     = 2.0
	retryMaxInterval     = time.Minute
	retryMaxAttempts     = 4
)

// activityTimeout bounds one attempt: the scoring call plus the store writes.
const activityTimeout = 2 * time.Minute

// RetryPolicy is the retry policy applied to the generation activity.
func RetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        retryInitialInterval,
		BackoffCoefficient:     retryCoefficient,
		MaximumInterval:        retryMaxInterval,
		MaximumAttempts:        retryMaxAttempts,
		NonRetryableErrorTypes: []string{ErrTypeNoData, ErrTypeValidation, ErrTypeRejected},
	}
}

// GenerateReportWorkflow runs the generation activity under RetryPolicy.
func GenerateReportWorkflow(ctx workflow.Context, req report.Request) (*model.ReportRef, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout,
		RetryPolicy:         RetryPolicy(),
	})

	log := workflow.GetLogger(ctx)
	log.Info("report workflow started", "user_id", req.UserID, "hospital_id", req.HospitalID)

	var ref model.ReportRef
	if err := workflow.ExecuteActivity(ctx, ActivityName, req).Get(ctx, &ref); err != nil {
		log.Warn("report workflow failed", "user_id", req.UserID, "error", err)
		return nil, err
	}

	log.Info("report workflow completed", "user_id", req.UserID, "report_url", ref.ReportURL)
	return &ref, nil
}
