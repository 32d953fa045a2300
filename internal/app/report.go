package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dongkoony/aws-cost-slack-reporter/internal/notify"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/pipeline"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/report"
)

// ReportOptions configure a single report invocation.
type ReportOptions struct {
	// DryRun composes the full report but prints it instead of delivering.
	DryRun bool
	// Date overrides the reporting date; zero means now in the configured
	// timezone.
	Date time.Time
}

// Report runs the pipeline once and surfaces the outcome as the process
// status: nil for delivered and skipped, an error only for failed.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var notifier notify.Notifier = a.newNotifier()
	if opts.DryRun {
		notifier = &consoleNotifier{}
	}

	pipe, err := a.buildPipeline(ctx, notifier, store)
	if err != nil {
		return err
	}

	now := opts.Date
	if now.IsZero() {
		now = time.Now().In(a.Config.Location())
	}

	outcome := pipe.Run(ctx, now)
	if !opts.DryRun {
		a.recordOutcome(ctx, store, outcome)
	}

	switch outcome.Status {
	case pipeline.StatusSkipped:
		fmt.Fprintf(os.Stdout, "skipped (non-workday %s)\n", outcome.Day.Date.Format("2006-01-02"))
		return nil
	case pipeline.StatusDelivered:
		ack := ""
		if outcome.Delivery != nil {
			ack = outcome.Delivery.AckID
		}
		fmt.Fprintf(os.Stdout, "delivered (ack %s)\n", ack)
		for _, w := range outcome.Warnings {
			fmt.Fprintf(os.Stdout, "warning: %s\n", w)
		}
		return nil
	default:
		fmt.Fprintf(os.Stdout, "failed (%s)\n", outcome.Stage)
		return outcome.Err
	}
}

// consoleNotifier prints the composed report to stdout instead of posting
// it, for dry runs against production data.
type consoleNotifier struct{}

func (c *consoleNotifier) Deliver(_ context.Context, msg report.Message) (notify.Result, error) {
	fmt.Fprintln(os.Stdout, msg.Text())
	if msg.Chart != nil {
		fmt.Fprintf(os.Stdout, "[chart: %d bytes, %dx%d]\n", len(msg.Chart.PNG), msg.Chart.Width, msg.Chart.Height)
	}
	return notify.Result{Delivered: true, AckID: "dry-run"}, nil
}

var _ notify.Notifier = (*consoleNotifier)(nil)
