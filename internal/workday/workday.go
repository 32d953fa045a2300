package workday

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ReportingDay captures the workday-gate decision for a single calendar date.
// Computed once per invocation and never mutated afterwards.
type ReportingDay struct {
	Date        time.Time
	Weekday     bool
	Holiday     bool
	HolidayName string
}

// Reportable reports whether the day qualifies for a cost report.
func (d ReportingDay) Reportable() bool {
	return d.Weekday && !d.Holiday
}

// HolidayChecker answers whether an exact calendar date is a public holiday.
type HolidayChecker interface {
	IsHoliday(ctx context.Context, date time.Time) (bool, string, error)
}

// Oracle decides whether a given date is a reporting day.
type Oracle struct {
	holidays HolidayChecker
	logger   zerolog.Logger
}

// NewOracle constructs the workday oracle.
func NewOracle(holidays HolidayChecker, logger zerolog.Logger) *Oracle {
	return &Oracle{
		holidays: holidays,
		logger:   logger.With().Str("component", "workday_oracle").Logger(),
	}
}

// Determine evaluates the workday gate for date. Weekend detection is pure
// calendar math and never touches the registry; the holiday lookup only runs
// for weekdays. A registry failure propagates as an error rather than being
// guessed around: an indeterminate holiday status aborts the invocation.
func (o *Oracle) Determine(ctx context.Context, date time.Time) (ReportingDay, error) {
	day := ReportingDay{
		Date:    date,
		Weekday: isWeekday(date),
	}

	if !day.Weekday {
		o.logger.Info().Str("date", date.Format("2006-01-02")).Msg("weekend; report suppressed")
		return day, nil
	}

	holiday, name, err := o.holidays.IsHoliday(ctx, date)
	if err != nil {
		return ReportingDay{}, fmt.Errorf("holiday lookup for %s: %w", date.Format("2006-01-02"), err)
	}

	day.Holiday = holiday
	day.HolidayName = name

	if holiday {
		o.logger.Info().
			Str("date", date.Format("2006-01-02")).
			Str("holiday", name).
			Msg("public holiday; report suppressed")
	}

	return day, nil
}

func isWeekday(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}
