package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/report"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Relaunch report generation for paid users whose pipeline stalled",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("sweep"); err != nil {
			return err
		}
		ctx := cmd.Context()

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

		res, err := report.NewSweeper(env.Store, env.Status, launcher, cfg.Sweep).RunOnce(ctx)
		if err != nil {
			return err
		}

		// In-process runs die with the command, so wait for them.
		if launcher.drain != nil {
			zap.L().Info("waiting for launched generations", zap.Int("launched", res.Launched))
			if err := launcher.drain(ctx); err != nil {
				return err
			}
		}

		return printJSON(cmd, res)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
