package stripe

import (
	"time"

	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/stripe/stripe-go/v82"
)

func toProduct(p *stripe.Product) billing.Product {
	return billing.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Active:      p.Active,
		Created:     unixTime(p.Created),
		Updated:     unixTime(p.Updated),
		Metadata:    p.Metadata,
	}
}

func toPrice(p *stripe.Price) billing.Price {
	price := billing.Price{
		ID:         p.ID,
		Active:     p.Active,
		Currency:   string(p.Currency),
		UnitAmount: p.UnitAmount,
		Nickname:   p.Nickname,
		Created:    unixTime(p.Created),
		Metadata:   p.Metadata,
	}
	if p.Product != nil {
		price.ProductID = p.Product.ID
	}
	if p.Recurring != nil {
		price.Interval = billing.Interval(p.Recurring.Interval)
		price.IntervalCount = p.Recurring.IntervalCount
	}
	return price
}

func toTestClock(c *stripe.TestHelpersTestClock) billing.TestClock {
	return billing.TestClock{
		ID:         c.ID,
		Name:       c.Name,
		FrozenTime: unixTime(c.FrozenTime),
		Status:     billing.ClockStatus(c.Status),
	}
}

func toCustomer(c *stripe.Customer) billing.Customer {
	customer := billing.Customer{
		ID:          c.ID,
		Email:       c.Email,
		Name:        c.Name,
		Description: c.Description,
		Created:     unixTime(c.Created),
		Currency:    string(c.Currency),
		Delinquent:  c.Delinquent,
		Metadata:    c.Metadata,
	}
	if c.TestClock != nil {
		customer.TestClockID = c.TestClock.ID
	}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		customer.DefaultPaymentMethod = c.InvoiceSettings.DefaultPaymentMethod.ID
	}
	return customer
}

// toSubscription normalizes a subscription. The first item carries price, quantity and the
// current period; a missing period start falls back to the billing anchor, start date, created.
func toSubscription(s *stripe.Subscription) billing.Subscription {
	sub := billing.Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		EndedAt:           billing.Unix(s.EndedAt),
		CanceledAt:        billing.Unix(s.CanceledAt),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CollectionMethod:  string(s.CollectionMethod),
		Created:           unixTime(s.Created),
		Currency:          string(s.Currency),
		Quantity:          1,
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		sub.CustomerID = s.Customer.ID
	}

	var periodStart, periodEnd *time.Time
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		periodStart = billing.Unix(item.CurrentPeriodStart)
		periodEnd = billing.Unix(item.CurrentPeriodEnd)
		if item.Quantity > 0 {
			sub.Quantity = item.Quantity
		}
		if item.Price != nil {
			sub.PriceID = item.Price.ID
			sub.UnitAmount = item.Price.UnitAmount
			if item.Price.Product != nil {
				sub.ProductID = item.Price.Product.ID
			}
			if item.Price.Recurring != nil {
				sub.Interval = billing.Interval(item.Price.Recurring.Interval)
				sub.IntervalCount = item.Price.Recurring.IntervalCount
			}
		}
	}

	sub.CurrentPeriodStart = billing.FirstTime(periodStart, billing.Unix(s.BillingCycleAnchor), billing.Unix(s.StartDate), billing.Unix(s.Created))
	sub.CurrentPeriodEnd = periodEnd
	if start := billing.FirstTime(billing.Unix(s.StartDate), billing.Unix(s.Created)); start != nil {
		sub.StartDate = *start
	}
	sub.MRRAmount = billing.MonthlyEquivalent(sub.UnitAmount, sub.Quantity, sub.Interval, sub.IntervalCount)
	return sub
}

func toInvoice(in *stripe.Invoice) billing.Invoice {
	inv := billing.Invoice{
		ID:               in.ID,
		Number:           in.Number,
		Status:           string(in.Status),
		AmountDue:        in.AmountDue,
		AmountPaid:       in.AmountPaid,
		AmountRemaining:  in.AmountRemaining,
		Subtotal:         in.Subtotal,
		Total:            in.Total,
		Currency:         string(in.Currency),
		Created:          unixTime(in.Created),
		DueDate:          billing.Unix(in.DueDate),
		PeriodStart:      billing.Unix(in.PeriodStart),
		PeriodEnd:        billing.Unix(in.PeriodEnd),
		CollectionMethod: string(in.CollectionMethod),
		HostedInvoiceURL: in.HostedInvoiceURL,
		InvoicePDF:       in.InvoicePDF,
	}
	if in.Customer != nil {
		inv.CustomerID = in.Customer.ID
	}
	if in.Parent != nil && in.Parent.SubscriptionDetails != nil && in.Parent.SubscriptionDetails.Subscription != nil {
		inv.SubscriptionID = in.Parent.SubscriptionDetails.Subscription.ID
	}
	if in.StatusTransitions != nil {
		inv.PaidAt = billing.Unix(in.StatusTransitions.PaidAt)
	}
	return inv
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
