package stripe

import (
	"context"

	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/smallbiznis/mrrlab/internal/payments"
	"github.com/stripe/stripe-go/v82"
)

func (g *Gateway) CreateSubscription(ctx context.Context, in payments.SubscriptionInput) (billing.Subscription, error) {
	key := idempotencyKey()
	return call(ctx, g, "subscriptions.create", func(ctx context.Context) (billing.Subscription, error) {
		params := &stripe.SubscriptionCreateParams{
			Customer: stripe.String(in.CustomerID),
			Items: []*stripe.SubscriptionCreateItemParams{
				{Price: stripe.String(in.PriceID)},
			},
			Metadata: in.Metadata,
		}
		if in.SendInvoice {
			params.CollectionMethod = stripe.String(billing.CollectionSendInvoice)
			params.DaysUntilDue = stripe.Int64(in.DaysUntilDue)
		}
		params.SetIdempotencyKey(*key)
		sub, err := g.client.V1Subscriptions.Create(ctx, params)
		if err != nil {
			return billing.Subscription{}, err
		}
		return toSubscription(sub), nil
	})
}

func (g *Gateway) CancelSubscription(ctx context.Context, id string) (billing.Subscription, error) {
	return call(ctx, g, "subscriptions.cancel", func(ctx context.Context) (billing.Subscription, error) {
		sub, err := g.client.V1Subscriptions.Cancel(ctx, id, &stripe.SubscriptionCancelParams{})
		if err != nil {
			return billing.Subscription{}, err
		}
		return toSubscription(sub), nil
	})
}

// ListSubscriptions lists every status, not only the active default.
func (g *Gateway) ListSubscriptions(ctx context.Context, filter payments.SubscriptionFilter) ([]billing.Subscription, error) {
	return call(ctx, g, "subscriptions.list", func(ctx context.Context) ([]billing.Subscription, error) {
		params := &stripe.SubscriptionListParams{
			Status: stripe.String("all"),
		}
		params.Limit = stripe.Int64(100)
		if filter.CustomerID != "" {
			params.Customer = stripe.String(filter.CustomerID)
		}
		if filter.TestClockID != "" {
			params.TestClock = stripe.String(filter.TestClockID)
		}

		var out []billing.Subscription
		for sub, err := range g.client.V1Subscriptions.List(ctx, params) {
			if err != nil {
				return nil, err
			}
			out = append(out, toSubscription(sub))
		}
		return out, nil
	})
}

func (g *Gateway) ListInvoices(ctx context.Context, filter payments.InvoiceFilter) ([]billing.Invoice, error) {
	return call(ctx, g, "invoices.list", func(ctx context.Context) ([]billing.Invoice, error) {
		params := &stripe.InvoiceListParams{}
		params.Limit = stripe.Int64(100)
		if filter.CustomerID != "" {
			params.Customer = stripe.String(filter.CustomerID)
		}

		var out []billing.Invoice
		for inv, err := range g.client.V1Invoices.List(ctx, params) {
			if err != nil {
				return nil, err
			}
			out = append(out, toInvoice(inv))
		}
		return out, nil
	})
}
