package analytics

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/mrrlab/internal/billing"
)

// MonthlySummary is one row of mrr_monthly_summary.
type MonthlySummary struct {
	MonthYear             string
	MonthStartDate        time.Time
	TotalMRR              float64
	NewMRR                float64
	ExpansionMRR          float64
	ContractionMRR        float64
	ChurnedMRR            float64
	NetNewMRR             float64
	ActiveCustomers       int
	NewCustomers          int
	ChurnedCustomers      int
	AverageRevenuePerUser float64
	ChurnRate             float64
	GrowthRate            float64
	CalculatedAt          time.Time
}

type Summary struct {
	Rows []MonthlySummary
	// Skipped counts malformed subscriptions left out of every bucket.
	Skipped int
}

type bucket struct {
	month      time.Time
	total      decimal.Decimal
	newMRR     decimal.Decimal
	churnedMRR decimal.Decimal
	active     map[string]struct{}
	added      map[string]struct{}
	churned    map[string]struct{}
}

func newBucket(month time.Time) *bucket {
	return &bucket{
		month:      month,
		total:      decimal.Zero,
		newMRR:     decimal.Zero,
		churnedMRR: decimal.Zero,
		active:     map[string]struct{}{},
		added:      map[string]struct{}{},
		churned:    map[string]struct{}{},
	}
}

func (b *bucket) empty() bool {
	return len(b.active) == 0 && len(b.added) == 0 && len(b.churned) == 0
}

// ComputeMonthlySummary aggregates subs into one row per month from the earliest start to now's
// month. Growth is measured against the preceding month even when that month is not emitted.
func ComputeMonthlySummary(subs []billing.Subscription, now time.Time) Summary {
	valid, skipped := wellFormed(subs)
	out := Summary{Skipped: skipped}
	if len(valid) == 0 {
		return out
	}

	previous := decimal.Zero
	for i, month := range MonthSequence(earliestStart(valid), now) {
		b := newBucket(month)
		for _, sub := range valid {
			if ActiveInMonth(sub, month) {
				b.total = b.total.Add(sub.MRRAmount)
				b.active[sub.CustomerID] = struct{}{}
			}
			if inMonth(sub.StartDate, month) {
				b.newMRR = b.newMRR.Add(sub.MRRAmount)
				b.added[sub.CustomerID] = struct{}{}
			}
			if sub.CanceledAt != nil && inMonth(*sub.CanceledAt, month) {
				b.churnedMRR = b.churnedMRR.Add(sub.MRRAmount)
				b.churned[sub.CustomerID] = struct{}{}
			}
		}

		growth := decimal.Zero
		if i > 0 && !previous.IsZero() {
			growth = b.total.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100))
		}
		previous = b.total

		if b.empty() {
			continue
		}
		out.Rows = append(out.Rows, b.row(growth, now))
	}
	return out
}

func (b *bucket) row(growth decimal.Decimal, now time.Time) MonthlySummary {
	active := len(b.active)
	churned := len(b.churned)

	var arpu, churnRate float64
	if active > 0 {
		arpu = b.total.Div(decimal.NewFromInt(int64(active))).InexactFloat64()
		churnRate = float64(churned) / float64(active)
	}

	return MonthlySummary{
		MonthYear:             b.month.Format(monthYearLayout),
		MonthStartDate:        b.month,
		TotalMRR:              b.total.InexactFloat64(),
		NewMRR:                b.newMRR.InexactFloat64(),
		ChurnedMRR:            b.churnedMRR.InexactFloat64(),
		NetNewMRR:             b.newMRR.Sub(b.churnedMRR).InexactFloat64(),
		ActiveCustomers:       active,
		NewCustomers:          len(b.added),
		ChurnedCustomers:      churned,
		AverageRevenuePerUser: arpu,
		ChurnRate:             churnRate,
		GrowthRate:            growth.InexactFloat64(),
		CalculatedAt:          now,
	}
}
