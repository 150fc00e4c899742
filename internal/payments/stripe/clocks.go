package stripe

import (
	"context"
	"time"

	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/stripe/stripe-go/v82"
)

func (g *Gateway) CreateTestClock(ctx context.Context, name string, frozen time.Time) (billing.TestClock, error) {
	key := idempotencyKey()
	return call(ctx, g, "test_clocks.create", func(ctx context.Context) (billing.TestClock, error) {
		params := &stripe.TestHelpersTestClockCreateParams{
			FrozenTime: stripe.Int64(frozen.Unix()),
			Name:       stripe.String(name),
		}
		params.SetIdempotencyKey(*key)
		tc, err := g.client.V1TestHelpersTestClocks.Create(ctx, params)
		if err != nil {
			return billing.TestClock{}, err
		}
		return toTestClock(tc), nil
	})
}

// AdvanceTestClock only starts the advancement; poll GetTestClock until it reports ready.
func (g *Gateway) AdvanceTestClock(ctx context.Context, id string, to time.Time) (billing.TestClock, error) {
	return call(ctx, g, "test_clocks.advance", func(ctx context.Context) (billing.TestClock, error) {
		tc, err := g.client.V1TestHelpersTestClocks.Advance(ctx, id, &stripe.TestHelpersTestClockAdvanceParams{
			FrozenTime: stripe.Int64(to.Unix()),
		})
		if err != nil {
			return billing.TestClock{}, err
		}
		return toTestClock(tc), nil
	})
}

func (g *Gateway) GetTestClock(ctx context.Context, id string) (billing.TestClock, error) {
	return call(ctx, g, "test_clocks.retrieve", func(ctx context.Context) (billing.TestClock, error) {
		tc, err := g.client.V1TestHelpersTestClocks.Retrieve(ctx, id, &stripe.TestHelpersTestClockRetrieveParams{})
		if err != nil {
			return billing.TestClock{}, err
		}
		return toTestClock(tc), nil
	})
}

func (g *Gateway) ListTestClocks(ctx context.Context) ([]billing.TestClock, error) {
	return call(ctx, g, "test_clocks.list", func(ctx context.Context) ([]billing.TestClock, error) {
		params := &stripe.TestHelpersTestClockListParams{}
		params.Limit = stripe.Int64(100)

		var out []billing.TestClock
		for tc, err := range g.client.V1TestHelpersTestClocks.List(ctx, params) {
			if err != nil {
				return nil, err
			}
			out = append(out, toTestClock(tc))
		}
		return out, nil
	})
}

func (g *Gateway) DeleteTestClock(ctx context.Context, id string) error {
	_, err := call(ctx, g, "test_clocks.delete", func(ctx context.Context) (struct{}, error) {
		_, err := g.client.V1TestHelpersTestClocks.Delete(ctx, id, &stripe.TestHelpersTestClockDeleteParams{})
		return struct{}{}, err
	})
	return err
}
