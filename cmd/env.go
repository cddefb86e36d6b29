package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/monitoring"
	"github.com/partnerhealth/report-core/internal/notify"
	"github.com/partnerhealth/report-core/internal/partner"
	"github.com/partnerhealth/report-core/internal/report"
	"github.com/partnerhealth/report-core/internal/resilience"
	"github.com/partnerhealth/report-core/internal/status"
	"github.com/partnerhealth/report-core/internal/store"
	"github.com/partnerhealth/report-core/pkg/scoring"
)

// appEnv is the wired object graph shared by the commands.
type appEnv struct {
	Store        store.Store
	Status       *status.Service
	Orchestrator *report.Orchestrator
	Dispatcher   *notify.Dispatcher
	Hub          *notify.Hub

	closers []func() error
}

// Close releases everything opened by initEnv, newest first.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

func (e *appEnv) onClose(fn func() error) {
	e.closers = append(e.closers, fn)
}

// initEnv wires the store, status service, notifier and orchestrator.
func initEnv(ctx context.Context) (*appEnv, error) {
	env := &appEnv{}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env.Store = st
	env.onClose(st.Close)

	svc, err := initStatus(st)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Status = svc

	env.Dispatcher, env.Hub = initNotify(st)

	env.Orchestrator = report.NewOrchestrator(st, initScoring(),
		report.WithBreaker(initBreaker()),
		report.WithAnnouncer(env.Dispatcher),
		report.WithScoringTimeout(time.Duration(cfg.Scoring.TimeoutSecs)*time.Second),
	)
	return env, nil
}

// initBreaker guards the scoring API and publishes its transitions.
func initBreaker() *resilience.CircuitBreaker {
	cbCfg := resilience.FromCircuitConfig(cfg.Circuit)
	cbCfg.OnStateChange = func(from, to resilience.CircuitState) {
		monitoring.SetCircuitState(cbCfg.Name, int(to))
		zap.L().Warn("circuit breaker transition",
			zap.String("upstream", cbCfg.Name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return resilience.NewCircuitBreaker(cbCfg)
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "report-core.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: int32(cfg.Store.MaxConns)})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initStatus(st store.Store) (*status.Service, error) {
	policy, err := partner.Load(cfg.Partners.File, cfg.Partners.DefaultRequiresPayment)
	if err != nil {
		return nil, err
	}
	validity := time.Duration(cfg.Report.ValidityDays) * 24 * time.Hour
	return status.NewService(st, policy, validity), nil
}

func initScoring() scoring.Client {
	return scoring.NewClient(cfg.Scoring.APIKey,
		scoring.WithBaseURL(cfg.Scoring.BaseURL),
		scoring.WithTimeout(time.Duration(cfg.Scoring.TimeoutSecs)*time.Second),
	)
}

// initNotify registers the enabled channels. The hub is nil when realtime
// delivery is off.
func initNotify(st store.Store) (*notify.Dispatcher, *notify.Hub) {
	d := notify.NewDispatcher(time.Duration(cfg.Notify.TimeoutSecs) * time.Second)
	var hub *notify.Hub
	if cfg.Notify.Realtime {
		hub = notify.NewHub(cfg.Server.AllowedOrigins)
		d.Register(notify.ChannelRealtime, hub)
	}
	if cfg.Notify.Email {
		d.Register(notify.ChannelEmail, notify.NewEmailSender(cfg.Notify, st))
	}
	return d, hub
}

// initProgress opens the progress tracker. Failure is not fatal: progress is
// advisory.
func initProgress(env *appEnv) report.ProgressTracker {
	p, err := report.OpenProgress(cfg.Progress)
	if err != nil {
		zap.L().Warn("progress tracker unavailable", zap.Error(err))
		return nil
	}
	env.onClose(p.Close)
	return p
}
