package report

import (
	"context"
	"strconv"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/internal/resilience"
)

// Generator runs one generation attempt.
type Generator interface {
	Generate(ctx context.Context, req Request) (*model.ReportRef, error)
}

// Launcher starts a generation in the background. started is false when a
// generation for the same (user, hospital) is already in flight.
type Launcher interface {
	Launch(ctx context.Context, req Request) (started bool, err error)
}

// GenerateWithRetry runs gen with exponential backoff on transient errors and
// reports each attempt to progress, which may be nil.
func GenerateWithRetry(ctx context.Context, gen Generator, cfg resilience.RetryConfig, progress ProgressTracker, req Request) (*model.ReportRef, error) {
	attempt := 1
	track(ctx, progress, Progress{UserID: req.UserID, HospitalID: req.HospitalID, State: StateRunning, Attempt: attempt})

	userOnRetry := cfg.OnRetry
	cfg.OnRetry = func(n int, err error) {
		if userOnRetry != nil {
			userOnRetry(n, err)
		}
		attempt = n + 1
		track(ctx, progress, Progress{
			UserID: req.UserID, HospitalID: req.HospitalID,
			State: StateRetrying, Attempt: attempt, Error: err.Error(),
		})
	}

	ref, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*model.ReportRef, error) {
		return gen.Generate(ctx, req)
	})
	if err != nil {
		track(ctx, progress, Progress{
			UserID: req.UserID, HospitalID: req.HospitalID,
			State: StateFailed, Attempt: attempt, Error: err.Error(),
		})
		return nil, err
	}
	track(ctx, progress, Progress{
		UserID: req.UserID, HospitalID: req.HospitalID,
		State: StateSucceeded, Attempt: attempt, ReportURL: ref.ReportURL,
	})
	return ref, nil
}

// track writes progress best-effort.
func track(ctx context.Context, progress ProgressTracker, p Progress) {
	if progress == nil {
		return
	}
	if err := progress.Set(context.WithoutCancel(ctx), p); err != nil {
		zap.L().Debug("report: progress not recorded",
			zap.String("user_id", p.UserID),
			zap.String("state", string(p.State)),
			zap.Error(err),
		)
	}
}

// InProcessLauncher runs generations on goroutines, bounded by a semaphore.
type InProcessLauncher struct {
	gen      Generator
	progress ProgressTracker
	retry    resilience.RetryConfig
	sem      *semaphore.Weighted

	mu       sync.Mutex
	inflight map[string]bool
	closed   bool
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewInProcessLauncher creates a launcher that runs at most concurrency
// generations at once.
func NewInProcessLauncher(gen Generator, progress ProgressTracker, retry resilience.RetryConfig, concurrency int) *InProcessLauncher {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &InProcessLauncher{
		gen:      gen,
		progress: progress,
		retry:    retry,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		inflight: make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Key identifies one (user, hospital) generation. The user id is length
// prefixed so ids containing the separator cannot collide.
func Key(userID, hospitalID string) string {
	return strconv.Itoa(len(userID)) + ":" + userID + "/" + hospitalID
}

// Launch queues req. The work outlives the caller's ctx.
func (l *InProcessLauncher) Launch(ctx context.Context, req Request) (bool, error) {
	if req.UserID == "" || req.HospitalID == "" {
		return false, &model.ValidationError{Reason: "user_id and hospital_id are required"}
	}
	key := Key(req.UserID, req.HospitalID)
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false, eris.New("report: launcher stopped")
	}
	if l.inflight[key] {
		l.mu.Unlock()
		return false, nil
	}
	l.inflight[key] = true
	l.wg.Add(1)
	l.mu.Unlock()

	track(ctx, l.progress, Progress{UserID: req.UserID, HospitalID: req.HospitalID, State: StateQueued})

	go l.run(req, key)
	return true, nil
}

func (l *InProcessLauncher) run(req Request, key string) {
	defer func() {
		l.mu.Lock()
		delete(l.inflight, key)
		l.mu.Unlock()
		l.wg.Done()
	}()

	log := zap.L().With(
		zap.String("component", "report.launcher"),
		zap.String("user_id", req.UserID),
		zap.String("hospital_id", req.HospitalID),
	)

	if err := l.sem.Acquire(l.ctx, 1); err != nil {
		log.Warn("report: launcher stopped before generation started")
		return
	}
	defer l.sem.Release(1)

	cfg := l.retry
	cfg.OnRetry = resilience.RetryLogger("report.generate",
		zap.String("user_id", req.UserID),
		zap.String("hospital_id", req.HospitalID),
	)
	if _, err := GenerateWithRetry(l.ctx, l.gen, cfg, l.progress, req); err != nil {
		// The status machine keeps showing a pending state; a sweep or a
		// human retries.
		log.Warn("report: background generation gave up", zap.Error(err))
	}
}

// Shutdown stops accepting work and cancels in-flight generations, then
// waits for their goroutines until ctx is done.
func (l *InProcessLauncher) Shutdown(ctx context.Context) error {
	l.stop()
	l.cancel()
	return l.waitCtx(ctx, "report: launcher shutdown")
}

// Drain stops accepting work and lets in-flight generations finish. Whatever
// is still running when ctx is done is cancelled.
func (l *InProcessLauncher) Drain(ctx context.Context) error {
	l.stop()
	defer l.cancel()
	return l.waitCtx(ctx, "report: launcher drain")
}

// stop closes the launcher under mu so no Launch can add to wg once Wait may
// have started.
func (l *InProcessLauncher) stop() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

func (l *InProcessLauncher) waitCtx(ctx context.Context, msg string) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), msg)
	}
}

// Wait blocks until every launched generation has finished.
func (l *InProcessLauncher) Wait() {
	l.wg.Wait()
}
