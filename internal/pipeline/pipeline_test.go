package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dongkoony/aws-cost-slack-reporter/internal/billing"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/chartgen"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/exchange"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/notify"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/report"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/workday"
)

type fakeOracle struct {
	day workday.ReportingDay
	err error
}

func (f *fakeOracle) Determine(ctx context.Context, date time.Time) (workday.ReportingDay, error) {
	if f.err != nil {
		return workday.ReportingDay{}, f.err
	}
	return f.day, nil
}

type fakeCosts struct {
	snapshot billing.CostSnapshot
	err      error
	calls    int
}

func (f *fakeCosts) Fetch(ctx context.Context, day time.Time) (billing.CostSnapshot, error) {
	f.calls++
	if f.err != nil {
		return billing.CostSnapshot{}, f.err
	}
	return f.snapshot, nil
}

type fakeRates struct {
	rate  exchange.Rate
	calls int
}

func (f *fakeRates) Rate(ctx context.Context, base, quote string) exchange.Rate {
	f.calls++
	return f.rate
}

type fakeRenderer struct {
	err   error
	calls int
}

func (f *fakeRenderer) Render(series []billing.DailyCost) (*chartgen.Artifact, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &chartgen.Artifact{PNG: []byte{0x89, 'P', 'N', 'G'}, Series: series}, nil
}

type fakeNotifier struct {
	result notify.Result
	err    error
	calls  int
	last   report.Message
}

func (f *fakeNotifier) Deliver(ctx context.Context, msg report.Message) (notify.Result, error) {
	f.calls++
	f.last = msg
	if f.err != nil {
		return f.result, f.err
	}
	return f.result, nil
}

func monday() time.Time {
	return time.Date(2025, 6, 16, 18, 0, 0, 0, time.UTC)
}

func workdayFor(ts time.Time) workday.ReportingDay {
	return workday.ReportingDay{Date: ts, Weekday: true}
}

func snapshotFixture() billing.CostSnapshot {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	series := make([]billing.DailyCost, 0, 16)
	for i := 0; i < 16; i++ {
		series = append(series, billing.DailyCost{Date: start.AddDate(0, 0, i), Amount: decimal.NewFromInt(1)})
	}
	return billing.CostSnapshot{
		Currency:    "USD",
		Today:       decimal.RequireFromString("12.34"),
		MonthToDate: decimal.RequireFromString("245.67"),
		DailySeries: series,
	}
}

func liveRate() exchange.Rate {
	return exchange.Rate{Base: "USD", Quote: "KRW", Value: decimal.RequireFromString("1350"), AsOf: monday(), Source: exchange.SourceLive}
}

func pipelineWith(oracle *fakeOracle, costs *fakeCosts, rates *fakeRates, renderer *fakeRenderer, notifier *fakeNotifier) *Pipeline {
	return New(
		Options{BaseCurrency: "USD", QuoteCurrency: "KRW", TotalBudget: time.Minute, DeliveryReserve: 5 * time.Second},
		oracle, costs, rates, renderer, report.NewComposer(10), notifier, zerolog.Nop(),
	)
}

func TestRunDelivers(t *testing.T) {
	oracle := &fakeOracle{day: workdayFor(monday())}
	costs := &fakeCosts{snapshot: snapshotFixture()}
	rates := &fakeRates{rate: liveRate()}
	renderer := &fakeRenderer{}
	notifier := &fakeNotifier{result: notify.Result{Delivered: true, AckID: "1.2"}}

	out := pipelineWith(oracle, costs, rates, renderer, notifier).Run(context.Background(), monday())
	if out.Status != StatusDelivered {
		t.Fatalf("expected delivered, got %s (err %v)", out.Status, out.Err)
	}
	if out.Stage != StateDone {
		t.Fatalf("expected done stage, got %s", out.Stage)
	}
	if len(out.Warnings) != 0 {
		t.Fatalf("clean run must have no warnings: %v", out.Warnings)
	}
	if notifier.last.Chart == nil {
		t.Fatal("delivered message should carry the chart")
	}
	if !strings.Contains(notifier.last.Text(), "12.34 USD (16,659 KRW)") {
		t.Fatalf("delivered message missing converted amounts:\n%s", notifier.last.Text())
	}
}

func TestRunSkipsWeekendWithoutSideEffects(t *testing.T) {
	// Saturday: oracle reports non-reportable without consulting anything.
	saturday := time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC)
	oracle := &fakeOracle{day: workday.ReportingDay{Date: saturday, Weekday: false}}
	costs := &fakeCosts{}
	rates := &fakeRates{}
	renderer := &fakeRenderer{}
	notifier := &fakeNotifier{}

	out := pipelineWith(oracle, costs, rates, renderer, notifier).Run(context.Background(), saturday)
	if out.Status != StatusSkipped {
		t.Fatalf("expected skipped, got %s", out.Status)
	}
	if out.Err != nil {
		t.Fatalf("skip is success, not failure: %v", out.Err)
	}
	if costs.calls+rates.calls+renderer.calls+notifier.calls != 0 {
		t.Fatal("skip must not touch cost, rate, chart, or delivery stages")
	}
}

func TestRunGateFailureIsFatal(t *testing.T) {
	oracle := &fakeOracle{err: errors.New("holiday registry unreachable")}
	costs := &fakeCosts{}
	rates := &fakeRates{}
	renderer := &fakeRenderer{}
	notifier := &fakeNotifier{}

	out := pipelineWith(oracle, costs, rates, renderer, notifier).Run(context.Background(), monday())
	if out.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", out.Status)
	}
	if out.Stage != StateGateCheck {
		t.Fatalf("failure must carry the gate stage, got %s", out.Stage)
	}
	var stageErr *StageError
	if !errors.As(out.Err, &stageErr) || stageErr.Stage != StateGateCheck {
		t.Fatalf("expected a gate-check stage error, got %v", out.Err)
	}
	if costs.calls+rates.calls+renderer.calls+notifier.calls != 0 {
		t.Fatal("gate failure must not run downstream stages")
	}
}

func TestRunCostFailureIsFatal(t *testing.T) {
	oracle := &fakeOracle{day: workdayFor(monday())}
	costs := &fakeCosts{err: errors.New("access denied")}
	rates := &fakeRates{rate: liveRate()}
	renderer := &fakeRenderer{}
	notifier := &fakeNotifier{}

	out := pipelineWith(oracle, costs, rates, renderer, notifier).Run(context.Background(), monday())
	if out.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", out.Status)
	}
	if out.Stage != StateFetching {
		t.Fatalf("failure must carry the fetching stage, got %s", out.Stage)
	}
	if notifier.calls != 0 {
		t.Fatal("cost failure must not reach delivery")
	}
}

func TestRunDegradedRateStillDelivers(t *testing.T) {
	oracle := &fakeOracle{day: workdayFor(monday())}
	costs := &fakeCosts{snapshot: snapshotFixture()}
	rates := &fakeRates{rate: exchange.Rate{Base: "USD", Quote: "KRW", Value: decimal.RequireFromString("1300.0"), Source: exchange.SourceStatic}}
	renderer := &fakeRenderer{}
	notifier := &fakeNotifier{result: notify.Result{Delivered: true}}

	out := pipelineWith(oracle, costs, rates, renderer, notifier).Run(context.Background(), monday())
	if out.Status != StatusDelivered {
		t.Fatalf("rate degradation must not fail the run, got %s (err %v)", out.Status, out.Err)
	}
	if !strings.Contains(notifier.last.Text(), report.StalenessNote) {
		t.Fatalf("degraded rate must be marked in the message:\n%s", notifier.last.Text())
	}
	if !strings.Contains(notifier.last.Text(), "12.34 USD (16,042 KRW)") {
		t.Fatalf("amounts must be computed at the fallback rate:\n%s", notifier.last.Text())
	}
	found := false
	for _, w := range out.Warnings {
		if strings.Contains(w, string(exchange.SourceStatic)) {
			found = true
		}
	}
	if !found {
		t.Fatalf("outcome should warn about the degraded rate: %v", out.Warnings)
	}
}

func TestRunChartFailureDegrades(t *testing.T) {
	oracle := &fakeOracle{day: workdayFor(monday())}
	costs := &fakeCosts{snapshot: snapshotFixture()}
	rates := &fakeRates{rate: liveRate()}
	renderer := &fakeRenderer{err: errors.New("render blew up")}
	notifier := &fakeNotifier{result: notify.Result{Delivered: true}}

	out := pipelineWith(oracle, costs, rates, renderer, notifier).Run(context.Background(), monday())
	if out.Status != StatusDelivered {
		t.Fatalf("chart failure must degrade, not fail: %s (err %v)", out.Status, out.Err)
	}
	if notifier.last.Chart != nil {
		t.Fatal("degraded delivery must be chart-less")
	}
	if len(out.Warnings) == 0 || !strings.Contains(out.Warnings[0], "chart rendering failed") {
		t.Fatalf("outcome should warn about the chart: %v", out.Warnings)
	}
}

func TestRunDeliveryFailureIsFatal(t *testing.T) {
	oracle := &fakeOracle{day: workdayFor(monday())}
	costs := &fakeCosts{snapshot: snapshotFixture()}
	rates := &fakeRates{rate: liveRate()}
	renderer := &fakeRenderer{}
	notifier := &fakeNotifier{result: notify.Result{FailureReason: "channel_not_found"}, err: errors.New("slack chat.postMessage error: channel_not_found")}

	out := pipelineWith(oracle, costs, rates, renderer, notifier).Run(context.Background(), monday())
	if out.Status != StatusFailed {
		t.Fatalf("delivery failure must fail the run, got %s", out.Status)
	}
	if out.Stage != StateDelivering {
		t.Fatalf("failure must carry the delivering stage, got %s", out.Stage)
	}
	if out.Delivery == nil || out.Delivery.Delivered {
		t.Fatalf("outcome should carry the failed delivery result: %+v", out.Delivery)
	}
}

func TestStatusesDistinguishable(t *testing.T) {
	if StatusDelivered == StatusSkipped || StatusSkipped == StatusFailed || StatusDelivered == StatusFailed {
		t.Fatal("outcome statuses must stay distinct")
	}
}
