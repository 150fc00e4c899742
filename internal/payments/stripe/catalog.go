package stripe

import (
	"context"

	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/smallbiznis/mrrlab/internal/payments"
	"github.com/stripe/stripe-go/v82"
)

func (g *Gateway) CreateProduct(ctx context.Context, in payments.ProductInput) (billing.Product, error) {
	key := idempotencyKey()
	return call(ctx, g, "products.create", func(ctx context.Context) (billing.Product, error) {
		params := &stripe.ProductCreateParams{
			Name:     stripe.String(in.Name),
			Metadata: in.Metadata,
		}
		if in.Description != "" {
			params.Description = stripe.String(in.Description)
		}
		params.SetIdempotencyKey(*key)
		product, err := g.client.V1Products.Create(ctx, params)
		if err != nil {
			return billing.Product{}, err
		}
		return toProduct(product), nil
	})
}

func (g *Gateway) CreatePrice(ctx context.Context, in payments.PriceInput) (billing.Price, error) {
	key := idempotencyKey()
	return call(ctx, g, "prices.create", func(ctx context.Context) (billing.Price, error) {
		params := &stripe.PriceCreateParams{
			Product:    stripe.String(in.ProductID),
			UnitAmount: stripe.Int64(in.UnitAmount),
			Currency:   stripe.String(in.Currency),
			Recurring: &stripe.PriceCreateRecurringParams{
				Interval: stripe.String(string(in.Interval)),
			},
			Metadata: in.Metadata,
		}
		if in.Nickname != "" {
			params.Nickname = stripe.String(in.Nickname)
		}
		params.SetIdempotencyKey(*key)
		price, err := g.client.V1Prices.Create(ctx, params)
		if err != nil {
			return billing.Price{}, err
		}
		return toPrice(price), nil
	})
}

func (g *Gateway) ListProducts(ctx context.Context) ([]billing.Product, error) {
	return call(ctx, g, "products.list", func(ctx context.Context) ([]billing.Product, error) {
		params := &stripe.ProductListParams{}
		params.Limit = stripe.Int64(100)

		var out []billing.Product
		for product, err := range g.client.V1Products.List(ctx, params) {
			if err != nil {
				return nil, err
			}
			out = append(out, toProduct(product))
		}
		return out, nil
	})
}

func (g *Gateway) ListPrices(ctx context.Context) ([]billing.Price, error) {
	return call(ctx, g, "prices.list", func(ctx context.Context) ([]billing.Price, error) {
		params := &stripe.PriceListParams{}
		params.Limit = stripe.Int64(100)

		var out []billing.Price
		for price, err := range g.client.V1Prices.List(ctx, params) {
			if err != nil {
				return nil, err
			}
			out = append(out, toPrice(price))
		}
		return out, nil
	})
}

// ArchiveProduct deactivates the product; products with prices cannot be deleted.
func (g *Gateway) ArchiveProduct(ctx context.Context, id string) error {
	_, err := call(ctx, g, "products.archive", func(ctx context.Context) (struct{}, error) {
		_, err := g.client.V1Products.Update(ctx, id, &stripe.ProductUpdateParams{
			Active: stripe.Bool(false),
		})
		return struct{}{}, err
	})
	return err
}
