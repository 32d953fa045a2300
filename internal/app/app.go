package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dongkoony/aws-cost-slack-reporter/internal/billing"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/chartgen"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/config"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/exchange"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/notify"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/pipeline"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/report"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/scheduler"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/storage"
	"github.com/dongkoony/aws-cost-slack-reporter/internal/workday"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	// warmRates is the process-local last-known-rate cache. It outlives
	// individual invocations in daemon mode and nothing more.
	warmRates *exchange.MemoryCache
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:    cfg,
		Logger:    logger.With().Str("component", "app").Logger(),
		warmRates: exchange.NewMemoryCache(),
	}
}

func (a *App) newOracle() *workday.Oracle {
	registry := workday.NewRegistry(workday.RegistryOptions{
		BaseURL:    a.Config.Holiday.BaseURL,
		ServiceKey: a.Config.Holiday.ServiceKey,
		Timeout:    a.Config.Holiday.RequestTimeout,
		MaxRetries: a.Config.Holiday.MaxRetries,
	}, a.Logger)

	return workday.NewOracle(registry, a.Logger)
}

func (a *App) newCostFetcher(ctx context.Context) (billing.CostFetcher, error) {
	return billing.NewExplorer(ctx, billing.ExplorerOptions{
		Profile:    a.Config.Billing.Profile,
		Region:     a.Config.Billing.Region,
		Timeout:    a.Config.Billing.RequestTimeout,
		MaxRetries: a.Config.Billing.MaxRetries,
	}, a.Logger)
}

func (a *App) newRateClient() *exchange.Client {
	return exchange.NewClient(exchange.ClientOptions{
		BaseURL:    a.Config.Exchange.BaseURL,
		APIKey:     a.Config.Exchange.APIKey,
		Timeout:    a.Config.Exchange.RequestTimeout,
		MaxRetries: a.Config.Exchange.MaxRetries,
	}, a.Logger)
}

func (a *App) newConverter(cache exchange.RateCache) *exchange.Converter {
	if cache == nil {
		cache = a.warmRates
	}
	staticRate := decimal.NewFromFloat(a.Config.Exchange.StaticRate)
	return exchange.NewConverter(a.newRateClient(), cache, staticRate, a.Logger)
}

func (a *App) newRenderer() *chartgen.Renderer {
	return chartgen.NewRenderer(a.Config.Report.ChartWidth, a.Config.Report.ChartHeight)
}

func (a *App) newNotifier() *notify.Slack {
	return notify.NewSlack(notify.SlackOptions{
		BotToken:   a.Config.Slack.BotToken,
		Channel:    a.Config.Slack.Channel,
		APIBase:    a.Config.Slack.APIBase,
		Timeout:    a.Config.Slack.RequestTimeout,
		MaxRetries: a.Config.Slack.MaxRetries,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// buildPipeline assembles the report pipeline with storage-backed rate
// caching when a database is configured.
func (a *App) buildPipeline(ctx context.Context, notifier notify.Notifier, store *storage.Store) (*pipeline.Pipeline, error) {
	costs, err := a.newCostFetcher(ctx)
	if err != nil {
		return nil, err
	}

	var cache exchange.RateCache
	if store != nil {
		cache = store
	}

	return pipeline.New(
		pipeline.Options{
			BaseCurrency:    a.Config.Exchange.BaseCurrency,
			QuoteCurrency:   a.Config.Exchange.QuoteCurrency,
			TotalBudget:     a.Config.Pipeline.TotalBudget,
			DeliveryReserve: a.Config.Pipeline.DeliveryReserve,
		},
		a.newOracle(),
		costs,
		a.newConverter(cache),
		a.newRenderer(),
		report.NewComposer(a.Config.Report.TopServices),
		notifier,
		a.Logger,
	), nil
}

// Run executes the long-running daily report daemon.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; run history disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	pipe, err := a.buildPipeline(ctx, a.newNotifier(), store)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Location:     a.Config.Location(),
		Hour:         a.Config.Schedule.Hour,
		Minute:       a.Config.Schedule.Minute,
		StartupDelay: a.Config.Schedule.StartupDelay,
	}, a.Logger)

	a.Logger.Info().
		Str("timezone", a.Config.Schedule.Timezone).
		Int("hour", a.Config.Schedule.Hour).
		Int("minute", a.Config.Schedule.Minute).
		Msg("starting daily report daemon")

	err = sched.Run(ctx, func(tickCtx context.Context, slot time.Time) error {
		outcome := pipe.Run(tickCtx, slot)
		a.recordOutcome(tickCtx, store, outcome)
		return outcome.Err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("report daemon terminated with error")
		return err
	}

	a.Logger.Info().Msg("report daemon stopped")
	return nil
}

func (a *App) recordOutcome(ctx context.Context, store *storage.Store, outcome pipeline.Outcome) {
	if store == nil {
		return
	}

	record := storage.RunRecord{
		RunDate:    outcome.Day.Date,
		Status:     string(outcome.Status),
		Stage:      string(outcome.Stage),
		RateSource: string(outcome.Rate.Source),
		Rate:       outcome.Rate.Value,
	}
	if record.RunDate.IsZero() {
		record.RunDate = time.Now().In(a.Config.Location())
	}
	if outcome.Snapshot != nil {
		record.DailyUSD = outcome.Snapshot.Today
		record.MonthUSD = outcome.Snapshot.MonthToDate
	}
	if outcome.Err != nil {
		msg := outcome.Err.Error()
		record.Error = &msg
	}

	if _, err := store.InsertRun(ctx, record); err != nil {
		a.Logger.Error().Err(err).Msg("failed to persist run record")
	}
}
