package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/report"
	"github.com/partnerhealth/report-core/internal/resilience"
)

var (
	genUserID     string
	genHospitalID string
	genPartnerID  string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a report synchronously for one user and hospital",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("generate"); err != nil {
			return err
		}
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req := report.Request{
			UserID:     genUserID,
			HospitalID: genHospitalID,
			PartnerID:  genPartnerID,
			Trigger:    report.TriggerCLI,
		}
		ref, err := report.GenerateWithRetry(ctx, env.Orchestrator, resilience.FromRetryConfig(cfg.Retry), initProgress(env), req)
		if err != nil {
			zap.L().Error("generation failed",
				zap.String("user_id", genUserID),
				zap.String("outcome", string(report.Outcome(err))),
				zap.Error(err),
			)
			return err
		}

		return printJSON(cmd, ref)
	},
}

func init() {
	generateCmd.Flags().StringVar(&genUserID, "user-id", "", "user to generate for (required)")
	generateCmd.Flags().StringVar(&genHospitalID, "hospital-id", "", "hospital the report belongs to (required)")
	generateCmd.Flags().StringVar(&genPartnerID, "partner-id", "", "partner whose payment ledger to advance")
	_ = generateCmd.MarkFlagRequired("user-id")
	_ = generateCmd.MarkFlagRequired("hospital-id")
	rootCmd.AddCommand(generateCmd)
}
