package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/config"
	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/internal/store/mocks"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	st := mocks.NewMockStore(t)
	st.On("ListStuckPayments", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	st.On("GenerationStats", mock.Anything, mock.Anything).Return(&model.GenerationStats{}, nil).Maybe()

	cfg := config.MonitoringConfig{
		CheckIntervalSecs:    1,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	checker := NewChecker(NewCollector(st, time.Minute), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	st := mocks.NewMockStore(t)
	checker := NewChecker(NewCollector(st, time.Minute), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Equal(t, defaultCheckInterval, checker.interval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	st := mocks.NewMockStore(t)
	st.On("ListStuckPayments", mock.Anything, mock.Anything, mock.Anything).
		Return(make([]model.PaymentRecord, 4), nil)
	st.On("GenerationStats", mock.Anything, mock.Anything).
		Return(&model.GenerationStats{Total: 10, Failed: 6}, nil)

	cfg := config.MonitoringConfig{
		WebhookURL:           ts.URL,
		StuckThreshold:       3,
		FailureRateThreshold: 0.2,
		LookbackWindowHours:  1,
	}
	checker := NewChecker(NewCollector(st, time.Minute), NewAlerter(cfg), cfg)
	assert.Equal(t, 2, checker.check(context.Background(), zap.NewNop()))
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_CooldownMutesRepeats(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	st := mocks.NewMockStore(t)
	st.On("ListStuckPayments", mock.Anything, mock.Anything, mock.Anything).
		Return(make([]model.PaymentRecord, 4), nil)
	st.On("GenerationStats", mock.Anything, mock.Anything).
		Return(&model.GenerationStats{}, nil)

	cfg := config.MonitoringConfig{
		WebhookURL:        ts.URL,
		StuckThreshold:    3,
		AlertCooldownMins: 30,
	}
	checker := NewChecker(NewCollector(st, time.Minute), NewAlerter(cfg), cfg)

	assert.Equal(t, 1, checker.check(context.Background(), zap.NewNop()))
	assert.Equal(t, 0, checker.check(context.Background(), zap.NewNop()))
	assert.Equal(t, int32(1), received.Load())
}
