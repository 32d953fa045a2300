package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/dongkoony/aws-cost-slack-reporter/internal/billing"
)

// ExportOptions hold parameters for exporting the current month's cost data.
type ExportOptions struct {
	PNGPath string
	CSVPath string
	// Date overrides the reporting date; zero means today in the
	// configured timezone.
	Date time.Time
}

// Export fetches the month-to-date snapshot and writes it to local files,
// bypassing the workday gate and the notifier.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	day := opts.Date
	if day.IsZero() {
		day = time.Now().In(a.Config.Location())
	}

	costs, err := a.newCostFetcher(ctx)
	if err != nil {
		return err
	}

	snapshot, err := costs.Fetch(ctx, day)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("series_points", len(snapshot.DailySeries)).
		Str("mtd_usd", snapshot.MonthToDate.StringFixed(2)).
		Msg("exporting cost snapshot")

	if opts.CSVPath != "" {
		if err := writeSeriesCSV(opts.CSVPath, snapshot); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		artifact, err := a.newRenderer().Render(snapshot.DailySeries)
		if err != nil {
			return err
		}
		if err := writeChartPNG(opts.PNGPath, artifact.PNG); err != nil {
			return err
		}
	}

	return nil
}

func writeSeriesCSV(path string, snapshot billing.CostSnapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"date", "amount_usd"}); err != nil {
		return err
	}

	for _, point := range snapshot.DailySeries {
		record := []string{
			point.Date.Format("2006-01-02"),
			point.Amount.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeChartPNG(path string, png []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, png, 0o644)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
