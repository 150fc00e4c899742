package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func sub(id, customer string, start time.Time, canceled *time.Time, mrr int64) billing.Subscription {
	return billing.Subscription{
		ID:         id,
		CustomerID: customer,
		StartDate:  start,
		CanceledAt: canceled,
		MRRAmount:  decimal.NewFromInt(mrr),
	}
}

func TestActiveInMonthBoundaries(t *testing.T) {
	jan := date(2024, time.January, 1)
	feb := date(2024, time.February, 1)

	tests := []struct {
		name string
		sub  billing.Subscription
		want bool
	}{
		{"started mid month", sub("s", "c", date(2024, time.January, 15), nil, 10), true},
		{"started exactly at month end", sub("s", "c", feb, nil, 10), true},
		{"started after month end", sub("s", "c", feb.Add(time.Second), nil, 10), false},
		{"canceled exactly at month end", sub("s", "c", date(2023, time.December, 1), ptr(feb), 10), true},
		{"canceled one second before month end", sub("s", "c", date(2023, time.December, 1), ptr(feb.Add(-time.Second)), 10), false},
		{"canceled inside month", sub("s", "c", date(2023, time.December, 1), ptr(date(2024, time.January, 20)), 10), false},
		{"started and canceled same month", sub("s", "c", date(2024, time.January, 3), ptr(date(2024, time.January, 9)), 10), false},
		{"canceled in a later month", sub("s", "c", date(2023, time.December, 1), ptr(date(2024, time.March, 2)), 10), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ActiveInMonth(tt.sub, jan))
		})
	}
}

func TestMonthSequenceIsContiguous(t *testing.T) {
	got := MonthSequence(time.Date(2023, time.November, 15, 10, 30, 0, 0, time.UTC), date(2024, time.February, 1))
	want := []time.Time{
		date(2023, time.November, 1),
		date(2023, time.December, 1),
		date(2024, time.January, 1),
		date(2024, time.February, 1),
	}
	assert.Equal(t, want, got)
	assert.Empty(t, MonthSequence(date(2024, time.March, 1), date(2024, time.February, 1)))
}

func TestComputeMonthlySummaryStartAndCancelScenario(t *testing.T) {
	now := date(2024, time.March, 20)
	subs := []billing.Subscription{
		sub("sub_1", "cus_1", date(2024, time.January, 15), ptr(date(2024, time.March, 10)), 79),
	}

	summary := ComputeMonthlySummary(subs, now)
	require.Len(t, summary.Rows, 3)
	assert.Zero(t, summary.Skipped)

	jan, feb, mar := summary.Rows[0], summary.Rows[1], summary.Rows[2]

	assert.Equal(t, "2024-01", jan.MonthYear)
	assert.Equal(t, 79.0, jan.TotalMRR)
	assert.Equal(t, 1, jan.ActiveCustomers)
	assert.Equal(t, 1, jan.NewCustomers)
	assert.Equal(t, 79.0, jan.NewMRR)
	assert.Equal(t, 79.0, jan.NetNewMRR)
	assert.Equal(t, 79.0, jan.AverageRevenuePerUser)
	assert.Zero(t, jan.GrowthRate)

	assert.Equal(t, "2024-02", feb.MonthYear)
	assert.Equal(t, 79.0, feb.TotalMRR)
	assert.Equal(t, 1, feb.ActiveCustomers)
	assert.Zero(t, feb.NewCustomers)
	assert.Zero(t, feb.GrowthRate)

	assert.Equal(t, "2024-03", mar.MonthYear)
	assert.Zero(t, mar.TotalMRR)
	assert.Zero(t, mar.ActiveCustomers)
	assert.Equal(t, 1, mar.ChurnedCustomers)
	assert.Equal(t, 79.0, mar.ChurnedMRR)
	assert.Equal(t, -79.0, mar.NetNewMRR)
	assert.Equal(t, -100.0, mar.GrowthRate)
	assert.Zero(t, mar.AverageRevenuePerUser)
	assert.Zero(t, mar.ChurnRate)
	assert.Equal(t, now, mar.CalculatedAt)

	for _, row := range summary.Rows {
		assert.Zero(t, row.ExpansionMRR)
		assert.Zero(t, row.ContractionMRR)
	}
}

func TestComputeMonthlySummaryConservesMRR(t *testing.T) {
	// Timestamps avoid month boundaries so each change shows up in exactly one month.
	var subs []billing.Subscription
	amounts := []int64{29, 79, 149, 299}
	for i := 0; i < 40; i++ {
		start := date(2023, time.Month(1+i%10), 3+i%20).Add(time.Duration(i) * time.Hour)
		var canceled *time.Time
		if i%3 == 0 {
			canceled = ptr(start.AddDate(0, i%5, 2))
		}
		subs = append(subs, sub(fmt.Sprintf("sub_%d", i), fmt.Sprintf("cus_%d", i), start, canceled, amounts[i%len(amounts)]))
	}

	now := date(2024, time.June, 15)
	summary := ComputeMonthlySummary(subs, now)
	byMonth := map[string]MonthlySummary{}
	for _, row := range summary.Rows {
		byMonth[row.MonthYear] = row
	}

	var previous float64
	for _, month := range MonthSequence(date(2023, time.January, 1), now) {
		row := byMonth[month.Format("2006-01")]
		assert.InDelta(t, previous+row.NetNewMRR, row.TotalMRR, 1e-9, "month %s", month.Format("2006-01"))
		assert.InDelta(t, row.NewMRR-row.ChurnedMRR, row.NetNewMRR, 1e-9)
		previous = row.TotalMRR
	}
}

func TestComputeMonthlySummaryGrowthRate(t *testing.T) {
	subs := []billing.Subscription{
		sub("sub_1", "cus_1", date(2024, time.January, 5), nil, 100),
		sub("sub_2", "cus_2", date(2024, time.February, 5), nil, 50),
	}
	summary := ComputeMonthlySummary(subs, date(2024, time.February, 20))
	require.Len(t, summary.Rows, 2)
	assert.Zero(t, summary.Rows[0].GrowthRate)
	assert.InDelta(t, 50.0, summary.Rows[1].GrowthRate, 1e-9)
	assert.InDelta(t, 75.0, summary.Rows[1].AverageRevenuePerUser, 1e-9)
}

func TestComputeMonthlySummaryCountsDistinctCustomers(t *testing.T) {
	subs := []billing.Subscription{
		sub("sub_1", "cus_1", date(2024, time.January, 5), nil, 29),
		sub("sub_2", "cus_1", date(2024, time.January, 9), nil, 79),
		sub("sub_3", "cus_2", date(2024, time.January, 12), ptr(date(2024, time.January, 25)), 149),
	}
	summary := ComputeMonthlySummary(subs, date(2024, time.January, 31))
	require.Len(t, summary.Rows, 1)

	jan := summary.Rows[0]
	assert.Equal(t, 108.0, jan.TotalMRR)
	assert.Equal(t, 1, jan.ActiveCustomers)
	assert.Equal(t, 2, jan.NewCustomers)
	assert.Equal(t, 1, jan.ChurnedCustomers)
	assert.Equal(t, 1.0, jan.ChurnRate)
	assert.Equal(t, 108.0, jan.AverageRevenuePerUser)
}

func TestComputeMonthlySummarySuppressesEmptyMonths(t *testing.T) {
	subs := []billing.Subscription{
		sub("sub_1", "cus_1", date(2024, time.January, 3), ptr(date(2024, time.January, 20)), 29),
		sub("sub_2", "cus_2", date(2024, time.April, 2), nil, 79),
	}
	summary := ComputeMonthlySummary(subs, date(2024, time.April, 15))

	months := make([]string, 0, len(summary.Rows))
	for _, row := range summary.Rows {
		months = append(months, row.MonthYear)
	}
	assert.Equal(t, []string{"2024-01", "2024-04"}, months)
	assert.Zero(t, summary.Rows[1].GrowthRate)
}

func TestComputeMonthlySummarySkipsMalformed(t *testing.T) {
	subs := []billing.Subscription{
		sub("sub_ok", "cus_1", date(2024, time.January, 3), nil, 29),
		sub("sub_nostart", "cus_2", time.Time{}, nil, 79),
		sub("sub_backwards", "cus_3", date(2024, time.February, 3), ptr(date(2024, time.January, 3)), 149),
	}
	summary := ComputeMonthlySummary(subs, date(2024, time.January, 20))
	assert.Equal(t, 2, summary.Skipped)
	require.Len(t, summary.Rows, 1)
	assert.Equal(t, 29.0, summary.Rows[0].TotalMRR)

	cohorts := ComputeCohorts(subs, date(2024, time.January, 20))
	assert.Equal(t, 2, cohorts.Skipped)
	require.Len(t, cohorts.Rows, 1)
	assert.Equal(t, 1, cohorts.Rows[0].CustomersInCohort)
}

func TestComputeMonthlySummaryEmptyInput(t *testing.T) {
	summary := ComputeMonthlySummary(nil, date(2024, time.January, 20))
	assert.Empty(t, summary.Rows)
	assert.Zero(t, summary.Skipped)
}

func TestComputeCohortsJanuaryRetention(t *testing.T) {
	subs := []billing.Subscription{
		sub("sub_1", "cus_1", date(2024, time.January, 4), nil, 29),
		sub("sub_2", "cus_2", date(2024, time.January, 11), nil, 79),
		sub("sub_3", "cus_3", date(2024, time.January, 18), ptr(date(2024, time.February, 10)), 149),
	}

	cohorts := ComputeCohorts(subs, date(2024, time.March, 5))
	require.Len(t, cohorts.Rows, 3)

	for i, row := range cohorts.Rows {
		assert.Equal(t, "2024-01", row.CohortMonth)
		assert.Equal(t, i, row.PeriodNumber)
		assert.Equal(t, 3, row.CustomersInCohort)
		assert.Zero(t, row.CohortRevenue)
		assert.Zero(t, row.RevenuePerCustomer)
	}
	assert.Equal(t, 3, cohorts.Rows[0].ActiveCustomers)
	assert.Equal(t, 1.0, cohorts.Rows[0].RetentionRate)
	assert.Equal(t, 2, cohorts.Rows[1].ActiveCustomers)
	assert.InDelta(t, 2.0/3.0, cohorts.Rows[1].RetentionRate, 1e-9)
	assert.Equal(t, 2, cohorts.Rows[2].ActiveCustomers)
}

func TestComputeCohortsUsesEarliestSubscription(t *testing.T) {
	subs := []billing.Subscription{
		sub("sub_1", "cus_1", date(2024, time.March, 4), nil, 29),
		sub("sub_2", "cus_1", date(2024, time.January, 9), ptr(date(2024, time.February, 15)), 79),
	}
	cohorts := ComputeCohorts(subs, date(2024, time.March, 20))
	require.Len(t, cohorts.Rows, 3)
	assert.Equal(t, "2024-01", cohorts.Rows[0].CohortMonth)
	// Feb: the first subscription churned inside the month and the second has not started.
	assert.Equal(t, []int{1, 0, 1}, []int{
		cohorts.Rows[0].ActiveCustomers,
		cohorts.Rows[1].ActiveCustomers,
		cohorts.Rows[2].ActiveCustomers,
	})
}

func TestComputeCohortsCapsPeriods(t *testing.T) {
	subs := []billing.Subscription{
		sub("sub_1", "cus_1", date(2023, time.January, 4), nil, 29),
		sub("sub_2", "cus_2", date(2024, time.March, 4), nil, 29),
	}
	cohorts := ComputeCohorts(subs, date(2024, time.April, 10))

	periods := map[string][]int{}
	for _, row := range cohorts.Rows {
		periods[row.CohortMonth] = append(periods[row.CohortMonth], row.PeriodNumber)
	}
	require.Len(t, periods["2023-01"], MaxCohortPeriod+1)
	assert.Equal(t, MaxCohortPeriod, periods["2023-01"][MaxCohortPeriod])
	assert.Equal(t, []int{0, 1}, periods["2024-03"])
	assert.Equal(t, "2023-01", cohorts.Rows[0].CohortMonth)
}

func TestComputeCohortsRetentionIsNonIncreasing(t *testing.T) {
	var subs []billing.Subscription
	for i := 0; i < 60; i++ {
		start := date(2023, time.Month(1+i%6), 2+i%25)
		var canceled *time.Time
		if i%4 != 0 {
			canceled = ptr(start.AddDate(0, 1+i%7, i%11))
		}
		subs = append(subs, sub(fmt.Sprintf("sub_%d", i), fmt.Sprintf("cus_%d", i), start, canceled, 29))
	}

	cohorts := ComputeCohorts(subs, date(2024, time.June, 1))
	last := map[string]int{}
	for _, row := range cohorts.Rows {
		if prev, ok := last[row.CohortMonth]; ok {
			assert.LessOrEqual(t, row.ActiveCustomers, prev, "cohort %s period %d", row.CohortMonth, row.PeriodNumber)
		}
		last[row.CohortMonth] = row.ActiveCustomers
		assert.LessOrEqual(t, row.RetentionRate, 1.0)
		assert.GreaterOrEqual(t, row.RetentionRate, 0.0)
	}
}
