package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const costMetric = "UnblendedCost"

// ExplorerOptions parameterise the Cost Explorer fetcher.
type ExplorerOptions struct {
	Profile    string
	Region     string
	Timeout    time.Duration
	MaxRetries int
}

// costAPI is the slice of the Cost Explorer client the fetcher uses.
type costAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// Explorer fetches spend snapshots from AWS Cost Explorer.
type Explorer struct {
	opts   ExplorerOptions
	api    costAPI
	logger zerolog.Logger
}

// NewExplorer loads the AWS SDK config and builds a Cost Explorer fetcher.
func NewExplorer(ctx context.Context, opts ExplorerOptions, logger zerolog.Logger) (*Explorer, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithDefaultRegion("us-east-1"),
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws sdk config: %w", err)
	}

	return newExplorer(opts, costexplorer.NewFromConfig(awsCfg), logger), nil
}

func newExplorer(opts ExplorerOptions, api costAPI, logger zerolog.Logger) *Explorer {
	return &Explorer{
		opts:   opts,
		api:    api,
		logger: logger.With().Str("component", "cost_explorer").Logger(),
	}
}

// Fetch issues the two billing queries for day: current-day spend and the
// month-to-date range grouped by service. Transient upstream failures are
// retried with bounded exponential backoff; authorization and quota errors
// abort immediately.
func (e *Explorer) Fetch(ctx context.Context, day time.Time) (CostSnapshot, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	// Cost Explorer treats End as exclusive.
	end := dayStart.AddDate(0, 0, 1)

	today, err := e.fetchDayTotal(ctx, dayStart, end)
	if err != nil {
		return CostSnapshot{}, fmt.Errorf("fetch current-day spend: %w", err)
	}

	series, services, monthTotal, err := e.fetchMonthToDate(ctx, monthStart, end)
	if err != nil {
		return CostSnapshot{}, fmt.Errorf("fetch month-to-date spend: %w", err)
	}

	filled := zeroFillSeries(series, monthStart, dayStart)
	if len(filled) > 0 {
		// The dedicated current-day query is authoritative for today.
		monthTotal = monthTotal.Sub(filled[len(filled)-1].Amount).Add(today)
		filled[len(filled)-1].Amount = today
	}

	snapshot := CostSnapshot{
		Currency:     "USD",
		Today:        today,
		MonthToDate:  monthTotal,
		DailySeries:  filled,
		ServiceCosts: services,
	}

	e.logger.Info().
		Str("today_usd", today.StringFixed(2)).
		Str("mtd_usd", monthTotal.StringFixed(2)).
		Int("series_points", len(filled)).
		Int("services", len(services)).
		Msg("cost snapshot fetched")

	return snapshot, nil
}

func (e *Explorer) fetchDayTotal(ctx context.Context, start, end time.Time) (decimal.Decimal, error) {
	out, err := e.getCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &types.DateInterval{
			Start: aws.String(start.Format("2006-01-02")),
			End:   aws.String(end.Format("2006-01-02")),
		},
		Granularity: types.GranularityDaily,
		Metrics:     []string{costMetric},
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	total := decimal.Zero
	for _, bucket := range out.ResultsByTime {
		amount, err := bucketTotal(bucket)
		if err != nil {
			return decimal.Decimal{}, err
		}
		total = total.Add(amount)
	}
	return total, nil
}

func (e *Explorer) fetchMonthToDate(ctx context.Context, start, end time.Time) ([]DailyCost, []ServiceCost, decimal.Decimal, error) {
	out, err := e.getCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &types.DateInterval{
			Start: aws.String(start.Format("2006-01-02")),
			End:   aws.String(end.Format("2006-01-02")),
		},
		Granularity: types.GranularityDaily,
		Metrics:     []string{costMetric},
		GroupBy: []types.GroupDefinition{
			{
				Type: types.GroupDefinitionTypeDimension,
				Key:  aws.String("SERVICE"),
			},
		},
	})
	if err != nil {
		return nil, nil, decimal.Decimal{}, err
	}

	var series []DailyCost
	serviceTotals := map[string]decimal.Decimal{}
	monthTotal := decimal.Zero

	for _, bucket := range out.ResultsByTime {
		if bucket.TimePeriod == nil || bucket.TimePeriod.Start == nil {
			return nil, nil, decimal.Decimal{}, errors.New("cost explorer bucket missing time period")
		}
		date, err := time.Parse("2006-01-02", *bucket.TimePeriod.Start)
		if err != nil {
			return nil, nil, decimal.Decimal{}, fmt.Errorf("parse bucket start: %w", err)
		}

		dayTotal := decimal.Zero
		for _, group := range bucket.Groups {
			amount, err := groupAmount(group)
			if err != nil {
				return nil, nil, decimal.Decimal{}, err
			}
			dayTotal = dayTotal.Add(amount)
			if len(group.Keys) > 0 {
				service := group.Keys[0]
				serviceTotals[service] = serviceTotals[service].Add(amount)
			}
		}

		series = append(series, DailyCost{Date: date, Amount: dayTotal})
		monthTotal = monthTotal.Add(dayTotal)
	}

	services := make([]ServiceCost, 0, len(serviceTotals))
	for name, amount := range serviceTotals {
		services = append(services, ServiceCost{Service: name, Amount: amount})
	}
	sortServiceCosts(services)

	return series, services, monthTotal, nil
}

func (e *Explorer) getCostAndUsage(ctx context.Context, input *costexplorer.GetCostAndUsageInput) (*costexplorer.GetCostAndUsageOutput, error) {
	timeout := e.opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	var out *costexplorer.GetCostAndUsageOutput
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var err error
		out, err = e.api.GetCostAndUsage(callCtx, input)
		if err == nil {
			return nil
		}
		if isFatalAPIError(err) {
			return backoff.Permanent(err)
		}
		e.logger.Warn().Err(err).Msg("cost explorer call failed; will retry")
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retryCount(e.opts.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return out, nil
}

// isFatalAPIError classifies definitive authorization and quota failures
// that must not be retried: a report built on fabricated numbers is worse
// than no report.
func isFatalAPIError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "AccessDeniedException",
		"UnauthorizedException",
		"UnrecognizedClientException",
		"ExpiredTokenException",
		"InvalidClientTokenId",
		"LimitExceededException",
		"DataUnavailableException":
		return true
	}
	return false
}

func bucketTotal(bucket types.ResultByTime) (decimal.Decimal, error) {
	metric, ok := bucket.Total[costMetric]
	if !ok || metric.Amount == nil {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(*metric.Amount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse cost amount: %w", err)
	}
	return amount, nil
}

func groupAmount(group types.Group) (decimal.Decimal, error) {
	metric, ok := group.Metrics[costMetric]
	if !ok || metric.Amount == nil {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(*metric.Amount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse group amount: %w", err)
	}
	return amount, nil
}

// zeroFillSeries expands sparse billing buckets into one point per calendar
// day between monthStart and day inclusive.
func zeroFillSeries(series []DailyCost, monthStart, day time.Time) []DailyCost {
	byDate := make(map[string]decimal.Decimal, len(series))
	for _, point := range series {
		byDate[point.Date.Format("2006-01-02")] = point.Amount
	}

	var filled []DailyCost
	for d := monthStart; !d.After(day); d = d.AddDate(0, 0, 1) {
		amount, ok := byDate[d.Format("2006-01-02")]
		if !ok {
			amount = decimal.Zero
		}
		filled = append(filled, DailyCost{Date: d, Amount: amount})
	}
	return filled
}

func retryCount(configured int) uint64 {
	if configured <= 0 {
		return 3
	}
	return uint64(configured)
}

var _ CostFetcher = (*Explorer)(nil)
