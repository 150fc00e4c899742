package stripe

import (
	"context"
	"time"

	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/smallbiznis/mrrlab/internal/payments"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

// testCardPaymentMethod is Stripe's reusable Visa test payment method.
const testCardPaymentMethod = "pm_card_visa"

func (g *Gateway) CreateCustomer(ctx context.Context, in payments.CustomerInput) (billing.Customer, error) {
	key := idempotencyKey()
	return call(ctx, g, "customers.create", func(ctx context.Context) (billing.Customer, error) {
		params := &stripe.CustomerCreateParams{
			Name:     stripe.String(in.Name),
			Email:    stripe.String(in.Email),
			Metadata: in.Metadata,
		}
		if in.Description != "" {
			params.Description = stripe.String(in.Description)
		}
		if in.TestClockID != "" {
			params.TestClock = stripe.String(in.TestClockID)
		}
		params.SetIdempotencyKey(*key)
		customer, err := g.client.V1Customers.Create(ctx, params)
		if err != nil {
			return billing.Customer{}, err
		}
		return toCustomer(customer), nil
	})
}

// AttachTestCard attaches a Visa test card and makes it the invoice default.
func (g *Gateway) AttachTestCard(ctx context.Context, customerID string) (string, error) {
	pmID, err := call(ctx, g, "payment_methods.attach", func(ctx context.Context) (string, error) {
		pm, err := g.client.V1PaymentMethods.Attach(ctx, testCardPaymentMethod, &stripe.PaymentMethodAttachParams{
			Customer: stripe.String(customerID),
		})
		if err != nil {
			return "", err
		}
		return pm.ID, nil
	})
	if err != nil {
		return "", err
	}

	_, err = call(ctx, g, "customers.update", func(ctx context.Context) (struct{}, error) {
		_, err := g.client.V1Customers.Update(ctx, customerID, &stripe.CustomerUpdateParams{
			InvoiceSettings: &stripe.CustomerUpdateInvoiceSettingsParams{
				DefaultPaymentMethod: stripe.String(pmID),
			},
		})
		return struct{}{}, err
	})
	if err != nil {
		return "", err
	}
	return pmID, nil
}

func (g *Gateway) GetCustomer(ctx context.Context, id string) (billing.Customer, error) {
	return call(ctx, g, "customers.retrieve", func(ctx context.Context) (billing.Customer, error) {
		customer, err := g.client.V1Customers.Retrieve(ctx, id, &stripe.CustomerRetrieveParams{})
		if err != nil {
			return billing.Customer{}, err
		}
		return toCustomer(customer), nil
	})
}

func (g *Gateway) ListCustomers(ctx context.Context, filter payments.CustomerFilter) ([]billing.Customer, error) {
	return call(ctx, g, "customers.list", func(ctx context.Context) ([]billing.Customer, error) {
		params := &stripe.CustomerListParams{}
		params.Limit = stripe.Int64(100)
		if filter.TestClockID != "" {
			params.TestClock = stripe.String(filter.TestClockID)
		}

		var out []billing.Customer
		for customer, err := range g.client.V1Customers.List(ctx, params) {
			if err != nil {
				return nil, err
			}
			out = append(out, toCustomer(customer))
		}
		return out, nil
	})
}

func (g *Gateway) DeleteCustomer(ctx context.Context, id string) error {
	start := time.Now()
	_, err := call(ctx, g, "customers.delete", func(ctx context.Context) (struct{}, error) {
		_, err := g.client.V1Customers.Delete(ctx, id, &stripe.CustomerDeleteParams{})
		return struct{}{}, err
	})
	if err == nil {
		g.log.Debug("stripe.customer.deleted", zap.String("customer_id", id), zap.Duration("took", time.Since(start)))
	}
	return err
}
