package scheduler

import (
	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/config"
)

// Dial connects to the Temporal frontend described by cfg.
func Dial(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    NewLogger(zap.L().Named("temporal")),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scheduler: dial temporal %s", cfg.HostPort)
	}
	return c, nil
}

// NewWorker registers the generation workflow and activity on taskQueue.
// concurrency caps simultaneous activity executions.
func NewWorker(c client.Client, taskQueue string, concurrency int, acts *Activities) worker.Worker {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: concurrency,
	})
	w.RegisterWorkflowWithOptions(GenerateReportWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivityWithOptions(acts.GenerateReport, activity.RegisterOptions{Name: ActivityName})
	return w
}

// zapLogger adapts zap to the Temporal SDK logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewLogger wraps l for the Temporal SDK.
func NewLogger(l *zap.Logger) log.Logger {
	return &zapLogger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *zapLogger) Debug(msg string, keyvals ...interface{}) { l.s.Debugw(msg, keyvals...) }
func (l *zapLogger) Info(msg string, keyvals ...interface{})  { l.s.Infow(msg, keyvals...) }
func (l *zapLogger) Warn(msg string, keyvals ...interface{})  { l.s.Warnw(msg, keyvals...) }
func (l *zapLogger) Error(msg string, keyvals ...interface{}) { l.s.Errorw(msg, keyvals...) }
