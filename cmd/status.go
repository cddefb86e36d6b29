package main

import (
	"github.com/spf13/cobra"

	"github.com/partnerhealth/report-core/internal/status"
)

var (
	statusUserID     string
	statusPartnerID  string
	statusHospitalID string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Resolve the unified status for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Status.Status(ctx, status.Query{
			UserID:     statusUserID,
			PartnerID:  statusPartnerID,
			HospitalID: statusHospitalID,
		})
		if err != nil {
			return err
		}

		return printJSON(cmd, res)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusUserID, "user-id", "", "user to resolve (required)")
	statusCmd.Flags().StringVar(&statusPartnerID, "partner-id", "", "partner the request arrives through")
	statusCmd.Flags().StringVar(&statusHospitalID, "hospital-id", "", "hospital the report belongs to")
	_ = statusCmd.MarkFlagRequired("user-id")
	rootCmd.AddCommand(statusCmd)
}
