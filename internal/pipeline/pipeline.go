package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dongkoony/aws-cost-slack-reporter/internal/billing"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/chartgen"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/exchange"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/notify"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/report"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/workday"
)

// State names one step of the invocation state machine.
type State string

const (
	StateStart      State = "start"
	StateGateCheck  State = "gate-check"
	StateSkipped    State = "skipped"
	StateFetching   State = "fetching"
	StateRendering  State = "rendering"
	StateComposing  State = "composing"
	StateDelivering State = "delivering"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Status is the externally visible outcome of one invocation. Skipping on a
// non-workday is success, not failure, and the three values stay
// distinguishable all the way to the exit signal.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// StageError is a fatal fault carrying its originating stage.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Outcome summarises one finished invocation.
type Outcome struct {
	Status   Status
	Stage    State
	Day      workday.ReportingDay
	Snapshot *billing.CostSnapshot
	Rate     exchange.Rate
	Delivery *notify.Result
	Warnings []string
	Err      error
}

// WorkdayOracle is the gate dependency.
type WorkdayOracle interface {
	Determine(ctx context.Context, date time.Time) (workday.ReportingDay, error)
}

// ChartRenderer turns the daily series into an image artifact.
type ChartRenderer interface {
	Render(series []billing.DailyCost) (*chartgen.Artifact, error)
}

// Composer formats the acquired data into a deliverable message.
type Composer interface {
	Compose(day workday.ReportingDay, snapshot billing.CostSnapshot, rate exchange.Rate, chart *chartgen.Artifact) report.Message
}

// Options bound and route one pipeline run.
type Options struct {
	BaseCurrency  string
	QuoteCurrency string
	// TotalBudget caps the whole invocation; zero means unbounded.
	TotalBudget time.Duration
	// DeliveryReserve is held back from the acquisition stages so their
	// retries cannot starve the notifier.
	DeliveryReserve time.Duration
}

// Pipeline sequences the report stages and applies the failure policy:
// gate and cost faults are fatal, rate and chart faults degrade, delivery
// faults are fatal after retries.
type Pipeline struct {
	opts     Options
	oracle   WorkdayOracle
	costs    billing.CostFetcher
	rates    exchange.RateProvider
	renderer ChartRenderer
	composer Composer
	notifier notify.Notifier
	logger   zerolog.Logger
}

// New wires a pipeline from its stage implementations.
func New(opts Options, oracle WorkdayOracle, costs billing.CostFetcher, rates exchange.RateProvider, renderer ChartRenderer, composer Composer, notifier notify.Notifier, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		opts:     opts,
		oracle:   oracle,
		costs:    costs,
		rates:    rates,
		renderer: renderer,
		composer: composer,
		notifier: notifier,
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes one invocation for the given local timestamp.
func (p *Pipeline) Run(ctx context.Context, now time.Time) Outcome {
	p.transition(StateStart, StateGateCheck)

	if p.opts.TotalBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.TotalBudget)
		defer cancel()
	}

	day, err := p.oracle.Determine(ctx, now)
	if err != nil {
		return p.fail(StateGateCheck, err, Outcome{})
	}

	if !day.Reportable() {
		p.transition(StateGateCheck, StateSkipped)
		p.logger.Info().Str("date", day.Date.Format("2006-01-02")).Msg("non-reporting day; pipeline short-circuited")
		return Outcome{Status: StatusSkipped, Stage: StateSkipped, Day: day}
	}

	p.transition(StateGateCheck, StateFetching)

	snapshot, rate, err := p.acquire(ctx, day)
	if err != nil {
		return p.fail(StateFetching, err, Outcome{Day: day})
	}

	p.transition(StateFetching, StateRendering)

	var warnings []string
	chart, err := p.renderer.Render(snapshot.DailySeries)
	if err != nil {
		warning := fmt.Sprintf("chart rendering failed: %v", err)
		p.logger.Warn().Err(err).Msg("proceeding with chart-less report")
		warnings = append(warnings, warning)
		chart = nil
	}

	p.transition(StateRendering, StateComposing)
	msg := p.composer.Compose(day, snapshot, rate, chart)

	p.transition(StateComposing, StateDelivering)
	result, err := p.notifier.Deliver(ctx, msg)
	if err != nil {
		out := Outcome{Day: day, Snapshot: &snapshot, Rate: rate, Delivery: &result, Warnings: warnings}
		return p.fail(StateDelivering, err, out)
	}

	p.transition(StateDelivering, StateDone)

	if !rate.Live() {
		warnings = append(warnings, fmt.Sprintf("exchange rate degraded to %s", rate.Source))
	}

	return Outcome{
		Status:   StatusDelivered,
		Stage:    StateDone,
		Day:      day,
		Snapshot: &snapshot,
		Rate:     rate,
		Delivery: &result,
		Warnings: warnings,
	}
}

// acquire runs the cost fetch and the rate fetch concurrently; both are
// independent of each other but gated behind the oracle. Only the cost fetch
// can fail the run.
func (p *Pipeline) acquire(ctx context.Context, day workday.ReportingDay) (billing.CostSnapshot, exchange.Rate, error) {
	acquireCtx := ctx
	if deadline, ok := ctx.Deadline(); ok && p.opts.DeliveryReserve > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithDeadline(ctx, deadline.Add(-p.opts.DeliveryReserve))
		defer cancel()
	}

	var (
		snapshot billing.CostSnapshot
		rate     exchange.Rate
	)

	group, groupCtx := errgroup.WithContext(acquireCtx)
	group.Go(func() error {
		var err error
		snapshot, err = p.costs.Fetch(groupCtx, day.Date)
		if err != nil {
			return fmt.Errorf("cost aggregation: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		// The converter degrades internally and never returns an error.
		rate = p.rates.Rate(groupCtx, p.opts.BaseCurrency, p.opts.QuoteCurrency)
		return nil
	})

	if err := group.Wait(); err != nil {
		return billing.CostSnapshot{}, exchange.Rate{}, err
	}
	return snapshot, rate, nil
}

func (p *Pipeline) fail(stage State, err error, partial Outcome) Outcome {
	stageErr := &StageError{Stage: stage, Err: err}
	p.logger.Error().Err(err).Str("stage", string(stage)).Msg("pipeline failed")

	partial.Status = StatusFailed
	partial.Stage = stage
	partial.Err = stageErr
	return partial
}

func (p *Pipeline) transition(from, to State) {
	p.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("state transition")
}
