// Package analytics derives monthly MRR summaries and cohort retention curves from extracted
// subscriptions. Everything is recomputed from scratch on each call; nothing is incremental.
package analytics

import (
	"time"

	"github.com/smallbiznis/mrrlab/internal/billing"
)

const monthYearLayout = "2006-01"

// ActiveInMonth reports whether sub contributes to the MRR of the month starting at monthStart.
//
// A subscription counts when it starts on or before the month's end and is not canceled before
// that end. A cancellation inside the month removes the whole month; a start exactly at the end
// still counts. Both the summary and cohorts go through this function so their numbers agree.
func ActiveInMonth(sub billing.Subscription, monthStart time.Time) bool {
	monthEnd := monthStart.AddDate(0, 1, 0)
	if sub.StartDate.After(monthEnd) {
		return false
	}
	return sub.CanceledAt == nil || !sub.CanceledAt.Before(monthEnd)
}

// MonthSequence returns the first day of every month from from's month to to's month, inclusive.
func MonthSequence(from, to time.Time) []time.Time {
	start := truncateToMonth(from)
	end := truncateToMonth(to)

	var months []time.Time
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

// inMonth is the half-open [monthStart, monthStart+1 month) test used for new and churned counts.
func inMonth(t time.Time, monthStart time.Time) bool {
	return !t.Before(monthStart) && t.Before(monthStart.AddDate(0, 1, 0))
}

func truncateToMonth(value time.Time) time.Time {
	value = value.UTC()
	return time.Date(value.Year(), value.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// wellFormed drops subscriptions without a start or cancelled before they started.
func wellFormed(subs []billing.Subscription) (valid []billing.Subscription, skipped int) {
	valid = make([]billing.Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.Validate() != nil {
			skipped++
			continue
		}
		valid = append(valid, sub)
	}
	return valid, skipped
}

func earliestStart(subs []billing.Subscription) time.Time {
	var earliest time.Time
	for i, sub := range subs {
		if i == 0 || sub.StartDate.Before(earliest) {
			earliest = sub.StartDate
		}
	}
	return earliest
}
