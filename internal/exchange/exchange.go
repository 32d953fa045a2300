package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies where a rate observation came from. Anything other than
// SourceLive must surface as a staleness note in the composed report.
type Source string

const (
	SourceLive   Source = "live"
	SourceCached Source = "cached"
	SourceStatic Source = "static-fallback"
)

// Rate is one observed exchange rate for a currency pair.
type Rate struct {
	Base   string
	Quote  string
	Value  decimal.Decimal
	AsOf   time.Time
	Source Source
}

// Live reports whether the rate came straight from the rate service.
func (r Rate) Live() bool {
	return r.Source == SourceLive
}

// Convert applies the rate to an amount denominated in the base currency.
func (r Rate) Convert(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(r.Value)
}

// Invert returns the reciprocal rate for the reversed pair.
func (r Rate) Invert() Rate {
	return Rate{
		Base:   r.Quote,
		Quote:  r.Base,
		Value:  decimal.NewFromInt(1).Div(r.Value),
		AsOf:   r.AsOf,
		Source: r.Source,
	}
}

// RateCache stores the most recently observed rate per currency pair.
// Implementations may be process-local or durable; both are best-effort.
type RateCache interface {
	GetRate(ctx context.Context, base, quote string) (Rate, bool, error)
	PutRate(ctx context.Context, rate Rate) error
}

// RateProvider obtains a usable rate for a pair. It never fails: the
// degradation ladder (live, cached, static) always bottoms out.
type RateProvider interface {
	Rate(ctx context.Context, base, quote string) Rate
}
