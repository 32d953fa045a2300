package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunRecord captures the outcome of one report invocation for auditing.
type RunRecord struct {
	ID         int64
	RunDate    time.Time
	Status     string
	Stage      string
	DailyUSD   decimal.Decimal
	MonthUSD   decimal.Decimal
	Rate       decimal.Decimal
	RateSource string
	Error      *string
	CreatedAt  time.Time
}
