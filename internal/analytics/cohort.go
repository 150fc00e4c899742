package analytics

import (
	"maps"
	"slices"
	"time"

	"github.com/smallbiznis/mrrlab/internal/billing"
)

// MaxCohortPeriod is the last period number computed for any cohort.
const MaxCohortPeriod = 12

// CohortRetention is one row of customer_cohorts.
type CohortRetention struct {
	CohortMonth       string
	CohortStartDate   time.Time
	PeriodNumber      int
	CustomersInCohort int
	ActiveCustomers   int
	RetentionRate     float64
	// CohortRevenue and RevenuePerCustomer are reserved and always zero.
	CohortRevenue      float64
	RevenuePerCustomer float64
	CalculatedAt       time.Time
}

type Cohorts struct {
	Rows    []CohortRetention
	Skipped int
}

// ComputeCohorts groups customers by the month of their first subscription and measures, for up
// to MaxCohortPeriod months after it and never past now's month, how many still have an active one.
func ComputeCohorts(subs []billing.Subscription, now time.Time) Cohorts {
	valid, skipped := wellFormed(subs)
	out := Cohorts{Skipped: skipped}

	byCustomer := map[string][]billing.Subscription{}
	for _, sub := range valid {
		byCustomer[sub.CustomerID] = append(byCustomer[sub.CustomerID], sub)
	}

	members := map[time.Time][]string{}
	for customerID, owned := range byCustomer {
		cohort := truncateToMonth(earliestStart(owned))
		members[cohort] = append(members[cohort], customerID)
	}

	current := truncateToMonth(now)
	for _, cohort := range slices.SortedFunc(maps.Keys(members), func(a, b time.Time) int { return a.Compare(b) }) {
		customers := members[cohort]
		for p := 0; p <= MaxCohortPeriod; p++ {
			month := cohort.AddDate(0, p, 0)
			if month.After(current) {
				break
			}

			active := 0
			for _, customerID := range customers {
				if slices.ContainsFunc(byCustomer[customerID], func(sub billing.Subscription) bool {
					return ActiveInMonth(sub, month)
				}) {
					active++
				}
			}

			var retention float64
			if len(customers) > 0 {
				retention = float64(active) / float64(len(customers))
			}
			out.Rows = append(out.Rows, CohortRetention{
				CohortMonth:       cohort.Format(monthYearLayout),
				CohortStartDate:   cohort,
				PeriodNumber:      p,
				CustomersInCohort: len(customers),
				ActiveCustomers:   active,
				RetentionRate:     retention,
				CalculatedAt:      now,
			})
		}
	}
	return out
}
