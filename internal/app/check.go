package app

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Check probes the external collaborators without sending a report: Slack
// auth, the holiday registry, and the rate service. The billing API is left
// alone since Cost Explorer queries are billed per request.
func (a *App) Check(ctx context.Context) error {
	now := time.Now().In(a.Config.Location())
	failures := 0

	if who, err := a.newNotifier().AuthTest(ctx); err != nil {
		failures++
		fmt.Fprintf(os.Stdout, "slack: FAIL (%v)\n", err)
	} else {
		fmt.Fprintf(os.Stdout, "slack: ok, authed as %s\n", who)
	}

	oracle := a.newOracle()
	if day, err := oracle.Determine(ctx, now); err != nil {
		failures++
		fmt.Fprintf(os.Stdout, "holiday registry: FAIL (%v)\n", err)
	} else {
		fmt.Fprintf(os.Stdout, "holiday registry: ok, %s reportable=%v\n", day.Date.Format("2006-01-02"), day.Reportable())
	}

	base, quote := a.Config.Exchange.BaseCurrency, a.Config.Exchange.QuoteCurrency
	if rate, err := a.newRateClient().FetchRate(ctx, base, quote); err != nil {
		failures++
		fmt.Fprintf(os.Stdout, "rate service: FAIL (%v)\n", err)
	} else {
		fmt.Fprintf(os.Stdout, "rate service: ok, 1 %s = %s %s\n", base, rate.Value.StringFixed(2), quote)
	}

	if failures > 0 {
		return fmt.Errorf("%d connectivity check(s) failed", failures)
	}
	return nil
}
