package scheduler

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/internal/report"
)

// WorkflowID is the id of the generation workflow for one (user, hospital).
// While a run with this id is open, further launches are no-ops.
func WorkflowID(userID, hospitalID string) string {
	return "report-" + report.Key(userID, hospitalID)
}

// TemporalLauncher starts generation workflows on a Temporal cluster.
type TemporalLauncher struct {
	client    client.Client
	taskQueue string
}

// NewTemporalLauncher creates a launcher on taskQueue.
func NewTemporalLauncher(c client.Client, taskQueue string) *TemporalLauncher {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &TemporalLauncher{client: c, taskQueue: taskQueue}
}

// Launch starts the workflow. started is false when a run for the same key
// is already open; that run keeps going.
func (l *TemporalLauncher) Launch(ctx context.Context, req report.Request) (bool, error) {
	if req.UserID == "" || req.HospitalID == "" {
		return false, &model.ValidationError{Reason: "user_id and hospital_id are required"}
	}

	opts := client.StartWorkflowOptions{
		ID:                                       WorkflowID(req.UserID, req.HospitalID),
		TaskQueue:                                l.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	run, err := l.client.ExecuteWorkflow(ctx, opts, WorkflowName, req)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return false, nil
		}
		return false, eris.Wrapf(err, "scheduler: start workflow %s", opts.ID)
	}

	zap.L().Info("scheduler: workflow started",
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
		zap.String("user_id", req.UserID),
		zap.String("hospital_id", req.HospitalID),
	)
	return true, nil
}
