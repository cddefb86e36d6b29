package report

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/internal/resilience"
)

type generatorFunc func(ctx context.Context, req Request) (*model.ReportRef, error)

func (f generatorFunc) Generate(ctx context.Context, req Request) (*model.ReportRef, error) {
	return f(ctx, req)
}

// memProgress keeps every state written so tests can inspect the sequence.
type memProgress struct {
	mu      sync.Mutex
	history []Progress
}

func (m *memProgress) Set(_ context.Context, p Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, p)
	return nil
}

func (m *memProgress) Get(_ context.Context, userID, hospitalID string) (*Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.history) - 1; i >= 0; i-- {
		if p := m.history[i]; p.UserID == userID && p.HospitalID == hospitalID {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *memProgress) Close() error { return nil }

func (m *memProgress) states() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.history))
	for i, p := range m.history {
		out[i] = p.State
	}
	return out
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestGenerateWithRetry_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	gen := generatorFunc(func(ctx context.Context, req Request) (*model.ReportRef, error) {
		if calls.Add(1) < 3 {
			return nil, &model.ExternalAPIError{StatusCode: 503, Retryable: true, Err: errors.New("busy")}
		}
		return &model.ReportRef{UserID: req.UserID, HospitalID: req.HospitalID, ReportURL: "https://reports.example/u1.pdf"}, nil
	})
	progress := &memProgress{}

	ref, err := GenerateWithRetry(context.Background(), gen, fastRetry(), progress, Request{UserID: "u1", HospitalID: "h1"})
	require.NoError(t, err)
	assert.Equal(t, "https://reports.example/u1.pdf", ref.ReportURL)
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, []State{StateRunning, StateRetrying, StateRetrying, StateSucceeded}, progress.states())

	last, _ := progress.Get(context.Background(), "u1", "h1")
	assert.Equal(t, 3, last.Attempt)
}

func TestGenerateWithRetry_NoDataIsFinal(t *testing.T) {
	var calls atomic.Int32
	gen := generatorFunc(func(context.Context, Request) (*model.ReportRef, error) {
		calls.Add(1)
		return nil, &model.NoDataError{UserID: "u1"}
	})
	progress := &memProgress{}

	_, err := GenerateWithRetry(context.Background(), gen, fastRetry(), progress, Request{UserID: "u1", HospitalID: "h1"})
	require.Error(t, err)
	assert.True(t, model.IsNoData(err))
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, []State{StateRunning, StateFailed}, progress.states())
}

func TestGenerateWithRetry_NilProgress(t *testing.T) {
	gen := generatorFunc(func(context.Context, Request) (*model.ReportRef, error) {
		return &model.ReportRef{ReportURL: "x"}, nil
	})
	_, err := GenerateWithRetry(context.Background(), gen, fastRetry(), nil, Request{UserID: "u1", HospitalID: "h1"})
	assert.NoError(t, err)
}

func TestInProcessLauncher_Dedupes(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	gen := generatorFunc(func(ctx context.Context, req Request) (*model.ReportRef, error) {
		calls.Add(1)
		<-release
		return &model.ReportRef{ReportURL: "https://reports.example/u1.pdf"}, nil
	})
	progress := &memProgress{}
	l := NewInProcessLauncher(gen, progress, fastRetry(), 2)
	ctx := context.Background()
	req := Request{UserID: "u1", HospitalID: "h1"}

	started, err := l.Launch(ctx, req)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = l.Launch(ctx, req)
	require.NoError(t, err)
	assert.False(t, started, "same key already in flight")

	started, err = l.Launch(ctx, Request{UserID: "u1", HospitalID: "h2"})
	require.NoError(t, err)
	assert.True(t, started, "other hospital is a different key")

	close(release)
	l.Wait()
	assert.EqualValues(t, 2, calls.Load())

	started, err = l.Launch(ctx, req)
	require.NoError(t, err)
	assert.True(t, started, "key is free again after completion")
	l.Wait()

	last, _ := progress.Get(ctx, "u1", "h1")
	assert.Equal(t, StateSucceeded, last.State)
}

func TestInProcessLauncher_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	gen := generatorFunc(func(ctx context.Context, req Request) (*model.ReportRef, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return &model.ReportRef{}, nil
	})
	l := NewInProcessLauncher(gen, nil, fastRetry(), 2)

	for _, h := range []string{"h1", "h2", "h3", "h4", "h5"} {
		_, err := l.Launch(context.Background(), Request{UserID: "u1", HospitalID: h})
		require.NoError(t, err)
	}
	l.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestInProcessLauncher_Validation(t *testing.T) {
	l := NewInProcessLauncher(generatorFunc(nil), nil, fastRetry(), 1)
	_, err := l.Launch(context.Background(), Request{UserID: "u1"})
	assert.True(t, model.IsValidation(err))
}

func TestInProcessLauncher_Shutdown(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, req Request) (*model.ReportRef, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	l := NewInProcessLauncher(gen, nil, fastRetry(), 1)
	_, err := l.Launch(context.Background(), Request{UserID: "u1", HospitalID: "h1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx))

	_, err = l.Launch(context.Background(), Request{UserID: "u2", HospitalID: "h1"})
	assert.Error(t, err)
}

func TestKey_SeparatorInIDs(t *testing.T) {
	assert.NotEqual(t, Key("a/b", "c"), Key("a", "b/c"))
	assert.NotEqual(t, Key("a-b", "c"), Key("a", "b-c"))
	assert.Equal(t, Key("u1", "h1"), Key("u1", "h1"))
}

func TestInProcessLauncher_SeparatorInIDsNotDeduped(t *testing.T) {
	release := make(chan struct{})
	gen := generatorFunc(func(context.Context, Request) (*model.ReportRef, error) {
		<-release
		return &model.ReportRef{}, nil
	})
	l := NewInProcessLauncher(gen, nil, fastRetry(), 2)

	started, err := l.Launch(context.Background(), Request{UserID: "a/b", HospitalID: "c"})
	require.NoError(t, err)
	assert.True(t, started)
	started, err = l.Launch(context.Background(), Request{UserID: "a", HospitalID: "b/c"})
	require.NoError(t, err)
	assert.True(t, started)

	close(release)
	l.Wait()
}

func TestInProcessLauncher_LaunchRacingShutdown(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, req Request) (*model.ReportRef, error) {
		return &model.ReportRef{}, nil
	})
	l := NewInProcessLauncher(gen, nil, fastRetry(), 4)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Launch(context.Background(), Request{UserID: "u" + strconv.Itoa(i), HospitalID: "h1"})
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx))
	wg.Wait()

	_, err := l.Launch(context.Background(), Request{UserID: "late", HospitalID: "h1"})
	assert.Error(t, err)
}

func TestInProcessLauncher_DrainLetsWorkFinish(t *testing.T) {
	release := make(chan struct{})
	gen := generatorFunc(func(ctx context.Context, req Request) (*model.ReportRef, error) {
		select {
		case <-release:
			return &model.ReportRef{ReportURL: "https://reports.example/u1.pdf"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	progress := &memProgress{}
	l := NewInProcessLauncher(gen, progress, fastRetry(), 1)
	_, err := l.Launch(context.Background(), Request{UserID: "u1", HospitalID: "h1"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- l.Drain(ctx)
	}()

	// Drain refuses new work while it waits.
	require.Eventually(t, func() bool {
		_, err := l.Launch(context.Background(), Request{UserID: "u2", HospitalID: "h1"})
		return err != nil
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-done)

	last, _ := progress.Get(context.Background(), "u1", "h1")
	require.NotNil(t, last)
	assert.Equal(t, StateSucceeded, last.State)
}
