package billing

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DailyCost is a single point of the month's spend series.
type DailyCost struct {
	Date   time.Time
	Amount decimal.Decimal
}

// ServiceCost attributes month-to-date spend to one AWS service.
type ServiceCost struct {
	Service string
	Amount  decimal.Decimal
}

// CostSnapshot aggregates the billing picture for one reporting day.
// DailySeries holds one point per calendar day from the 1st of the month
// through the reporting day, zero-filled for days without recorded usage.
type CostSnapshot struct {
	Currency     string
	Today        decimal.Decimal
	MonthToDate  decimal.Decimal
	DailySeries  []DailyCost
	ServiceCosts []ServiceCost
}

// CostFetcher retrieves the spend snapshot for a confirmed reporting day.
type CostFetcher interface {
	Fetch(ctx context.Context, day time.Time) (CostSnapshot, error)
}

// TopServices returns the n largest service costs with the remainder folded
// into an "Other Services" bucket.
func (s CostSnapshot) TopServices(n int) []ServiceCost {
	if n <= 0 || len(s.ServiceCosts) <= n {
		return s.ServiceCosts
	}

	top := make([]ServiceCost, 0, n+1)
	top = append(top, s.ServiceCosts[:n]...)

	other := decimal.Zero
	for _, sc := range s.ServiceCosts[n:] {
		other = other.Add(sc.Amount)
	}
	if other.IsPositive() {
		top = append(top, ServiceCost{Service: "Other Services", Amount: other})
	}
	return top
}

func sortServiceCosts(costs []ServiceCost) {
	sort.SliceStable(costs, func(i, j int) bool {
		return costs[i].Amount.GreaterThan(costs[j].Amount)
	})
}
