package scenario

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/mrrlab/internal/billing"
)

type Summary struct {
	Total    int
	ByStatus map[billing.Status]int
	ByPlan   map[string]int
	// ByMonth counts acquisitions per month index.
	ByMonth map[int]int
}

func Summarize(scenarios []Scenario) Summary {
	s := Summary{
		Total:    len(scenarios),
		ByStatus: map[billing.Status]int{},
		ByPlan:   map[string]int{},
		ByMonth:  map[int]int{},
	}
	for _, sc := range scenarios {
		s.ByStatus[sc.Status]++
		s.ByPlan[sc.Plan.Name]++
		s.ByMonth[sc.AcquisitionMonth]++
	}
	return s
}

// ExpectedTrend is the MRR the scenarios should produce per month index, counting a customer from
// its acquisition month until the month it cancels in. Past-due accounts still count.
func ExpectedTrend(scenarios []Scenario, horizon int) []decimal.Decimal {
	trend := make([]decimal.Decimal, horizon)
	for i := range trend {
		trend[i] = decimal.Zero
	}
	for _, sc := range scenarios {
		amount := billing.MonthlyEquivalent(sc.Plan.UnitAmount, 1, sc.Plan.Interval, 1)
		end := horizon
		if sc.Cancels() {
			end = min(horizon, sc.AcquisitionMonth+sc.CancelAfterMonths)
		}
		for m := sc.AcquisitionMonth; m < end; m++ {
			trend[m] = trend[m].Add(amount)
		}
	}
	return trend
}
