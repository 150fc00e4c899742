package simulator

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/smallbiznis/mrrlab/internal/observability/metrics"
	"github.com/smallbiznis/mrrlab/internal/scenario"
)

// Failure is one entity operation that did not complete.
type Failure struct {
	Group  int
	Entity string
	ID     string
	Op     string
	Err    error
}

// Member is a scenario and what was created for it on the platform.
type Member struct {
	Scenario     scenario.Scenario
	Customer     billing.Customer
	Subscription billing.Subscription
	Canceled     bool
}

// GroupResult is owned by the worker handling the group until the pool returns.
type GroupResult struct {
	Index    int
	Clock    billing.TestClock
	Members  []Member
	Invoices int
	Failures []Failure
}

func (g *GroupResult) fail(entity, id, op string, err error) {
	g.Failures = append(g.Failures, Failure{Group: g.Index, Entity: entity, ID: id, Op: op, Err: err})
}

func (g GroupResult) outcome() string {
	switch {
	case len(g.Failures) == 0:
		return metrics.OutcomeOK
	case g.Clock.ID == "" || len(g.Failures) >= len(g.Members):
		return metrics.OutcomeError
	default:
		return metrics.OutcomePartial
	}
}

type Result struct {
	Groups          []GroupResult
	Customers       int
	Subscriptions   int
	Cancellations   int
	InvoicesByClock map[string]int
	Failures        []Failure
}

func (r *Result) merge(g GroupResult) {
	r.Groups = append(r.Groups, g)
	if g.Clock.ID != "" {
		r.InvoicesByClock[g.Clock.ID] = g.Invoices
	}
	for _, m := range g.Members {
		if m.Customer.ID != "" {
			r.Customers++
		}
		if m.Subscription.ID != "" {
			r.Subscriptions++
		}
		if m.Canceled {
			r.Cancellations++
		}
	}
	r.Failures = append(r.Failures, g.Failures...)
}

// Invoices is the total invoice count across all clocks.
func (r Result) Invoices() int {
	total := 0
	for _, n := range r.InvoicesByClock {
		total += n
	}
	return total
}

// CreatedSubscriptions lists every subscription created, in group order.
func (r Result) CreatedSubscriptions() []billing.Subscription {
	var out []billing.Subscription
	for _, g := range r.Groups {
		for _, m := range g.Members {
			if m.Subscription.ID != "" {
				out = append(out, m.Subscription)
			}
		}
	}
	return out
}

// ActiveMRR is the monthly recurring revenue of the subscriptions left uncanceled.
func (r Result) ActiveMRR() decimal.Decimal {
	total := decimal.Zero
	for _, g := range r.Groups {
		for _, m := range g.Members {
			if m.Subscription.ID != "" && !m.Canceled {
				total = total.Add(m.Subscription.MRRAmount)
			}
		}
	}
	return total
}
