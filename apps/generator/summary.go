package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/smallbiznis/mrrlab/internal/clock"
	"github.com/smallbiznis/mrrlab/internal/scenario"
	"github.com/smallbiznis/mrrlab/internal/simulator"
)

func historyStart(c clock.Clock, horizon int) time.Time {
	now := c.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -horizon, 0)
}

func printPlan(w io.Writer, sc scenario.Config, scenarios []scenario.Scenario, start time.Time) {
	summary := scenario.Summarize(scenarios)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "customers\t%d\n", summary.Total)
	fmt.Fprintf(tw, "seed\t%d\n\n", sc.Seed)

	fmt.Fprintln(tw, "status\tcustomers")
	for _, status := range []billing.Status{billing.StatusActive, billing.StatusCanceled, billing.StatusPastDue} {
		fmt.Fprintf(tw, "%s\t%d\n", status, summary.ByStatus[status])
	}

	fmt.Fprintln(tw, "\nplan\tcustomers")
	for _, plan := range sc.Plans {
		fmt.Fprintf(tw, "%s\t%d\n", plan.Name, summary.ByPlan[plan.Name])
	}

	fmt.Fprintln(tw, "\nmonth\tacquired\texpected mrr")
	trend := scenario.ExpectedTrend(scenarios, sc.HorizonMonths)
	for i, mrr := range trend {
		label := start.AddDate(0, i, 0).Format("2006-01")
		fmt.Fprintf(tw, "%s\t%d\t%s\n", label, summary.ByMonth[i], mrr.StringFixed(2))
	}
}

func printResult(w io.Writer, result simulator.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "\nclock groups\t%d\n", len(result.Groups))
	fmt.Fprintf(tw, "customers\t%d\n", result.Customers)
	fmt.Fprintf(tw, "subscriptions\t%d\n", result.Subscriptions)
	fmt.Fprintf(tw, "cancellations\t%d\n", result.Cancellations)
	fmt.Fprintf(tw, "invoices\t%d\n", result.Invoices())
	fmt.Fprintf(tw, "active mrr\t%s\n", result.ActiveMRR().StringFixed(2))

	if len(result.Failures) == 0 {
		return
	}
	fmt.Fprintf(tw, "failures\t%d\n", len(result.Failures))
	byOp := lo.CountValuesBy(result.Failures, func(f simulator.Failure) string { return f.Entity + " " + f.Op })
	for _, op := range slices.Sorted(maps.Keys(byOp)) {
		fmt.Fprintf(tw, "  %s\t%d\n", op, byOp[op])
	}
}
