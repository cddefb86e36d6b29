package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/internal/report"
)

func optionsFor(id, queue string) any {
	return mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.ID == id &&
			o.TaskQueue == queue &&
			o.WorkflowIDReusePolicy == enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE &&
			o.WorkflowExecutionErrorWhenAlreadyStarted
	})
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "report-2:u1/clinic-a", WorkflowID("u1", "clinic-a"))
	assert.NotEqual(t, WorkflowID("a-b", "c"), WorkflowID("a", "b-c"))
	assert.NotEqual(t, WorkflowID("a/b", "c"), WorkflowID("a", "b/c"))
}

func TestTemporalLauncher_Starts(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	req := report.Request{UserID: "u1", HospitalID: "h1"}

	run.On("GetID").Return("report-2:u1/h1")
	run.On("GetRunID").Return("run-1")
	c.On("ExecuteWorkflow", mock.Anything, optionsFor("report-2:u1/h1", "reports"), WorkflowName, req).Return(run, nil).Once()

	started, err := NewTemporalLauncher(c, "reports").Launch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, started)
	c.AssertExpectations(t)
}

func TestTemporalLauncher_AlreadyRunning(t *testing.T) {
	c := &mocks.Client{}
	req := report.Request{UserID: "u1", HospitalID: "h1"}
	c.On("ExecuteWorkflow", mock.Anything, optionsFor("report-2:u1/h1", DefaultTaskQueue), WorkflowName, req).
		Return(nil, &serviceerror.WorkflowExecutionAlreadyStarted{Message: "already started"})

	started, err := NewTemporalLauncher(c, "").Launch(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, started)
}

func TestTemporalLauncher_Error(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("frontend unavailable"))

	_, err := NewTemporalLauncher(c, "").Launch(context.Background(), report.Request{UserID: "u1", HospitalID: "h1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frontend unavailable")
}

func TestTemporalLauncher_Validation(t *testing.T) {
	c := &mocks.Client{}
	_, err := NewTemporalLauncher(c, "").Launch(context.Background(), report.Request{UserID: "u1"})
	assert.True(t, model.IsValidation(err))
	c.AssertNotCalled(t, "ExecuteWorkflow")
}
