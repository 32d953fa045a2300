package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dongkoony/aws-cost-slack-reporter/internal/app"
)

var (
	exportPNGPath string
	exportCSVPath string
	exportDate    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export month-to-date cost data as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath: exportPNGPath,
			CSVPath: exportCSVPath,
		}

		if exportDate != "" {
			day, err := time.ParseInLocation("2006-01-02", exportDate, getApp().Config.Location())
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
			opts.Date = day
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportDate, "date", "", "Reporting date (YYYY-MM-DD, defaults to today)")
}
