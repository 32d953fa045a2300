package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dongkoony/aws-cost-slack-reporter/internal/app"
)

var (
	reportDryRun bool
	reportDate   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run a single report invocation now",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ReportOptions{DryRun: reportDryRun}

		if reportDate != "" {
			date, err := time.ParseInLocation("2006-01-02", reportDate, getApp().Config.Location())
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
			opts.Date = date
		}

		return getApp().Report(cmd.Context(), opts)
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportDryRun, "dry-run", false, "Compose the report but print it instead of posting to Slack")
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Report date (YYYY-MM-DD, defaults to today)")
}
