package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/partnerhealth/report-core/internal/api"
	"github.com/partnerhealth/report-core/internal/monitoring"
	"github.com/partnerhealth/report-core/internal/report"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status and report generation API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		progress := initProgress(env)
		launcher, err := initLauncher(env, progress)
		if err != nil {
			return err
		}

		deps := api.Deps{
			Status:         env.Status,
			Launcher:       launcher,
			Checkups:       env.Store,
			Progress:       progress,
			Health:         env.Store,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}
		if env.Hub != nil {
			deps.Realtime = env.Hub
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.NewServer(deps).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
			if launcher.drain != nil {
				if err := launcher.drain(shutdownCtx); err != nil {
					zap.L().Warn("generations still running at shutdown", zap.Error(err))
				}
			}
			return nil
		})

		if cfg.Sweep.IntervalMins > 0 {
			sweeper := report.NewSweeper(env.Store, env.Status, launcher, cfg.Sweep)
			g.Go(func() error {
				sweeper.Run(gctx, time.Duration(cfg.Sweep.IntervalMins)*time.Minute)
				return nil
			})
		}

		if cfg.Monitoring.CheckIntervalSecs > 0 {
			collector := monitoring.NewCollector(env.Store, time.Duration(cfg.Sweep.StaleMinutes)*time.Minute)
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			g.Go(func() error {
				checker.Run(gctx)
				return nil
			})
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
