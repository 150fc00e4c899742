package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/smallbiznis/mrrlab/internal/clock"
	ierr "github.com/smallbiznis/mrrlab/internal/errors"
	"github.com/smallbiznis/mrrlab/internal/payments"
	"github.com/smallbiznis/mrrlab/internal/payments/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var now = time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)

func TestChainReturnsFirstNonEmptySuccess(t *testing.T) {
	calls := []string{}
	chain := Chain[int]{
		Entity: "numbers",
		Strategies: []Strategy[int]{
			NewStrategy("broken", func(ctx context.Context) ([]int, error) {
				calls = append(calls, "broken")
				return nil, errors.New("unreachable")
			}),
			NewStrategy("empty", func(ctx context.Context) ([]int, error) {
				calls = append(calls, "empty")
				return nil, nil
			}),
			NewStrategy("full", func(ctx context.Context) ([]int, error) {
				calls = append(calls, "full")
				return []int{1, 2}, nil
			}),
			NewStrategy("never", func(ctx context.Context) ([]int, error) {
				calls = append(calls, "never")
				return []int{3}, nil
			}),
		},
	}

	got, strategy, err := chain.Fetch(context.Background(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, "full", strategy)
	assert.Equal(t, []string{"broken", "empty", "full"}, calls)
}

func TestChainFailsOnlyWhenEveryStrategyFails(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	chain := Chain[int]{
		Entity: "numbers",
		Strategies: []Strategy[int]{
			NewStrategy("a", func(ctx context.Context) ([]int, error) { return nil, errA }),
			NewStrategy("b", func(ctx context.Context) ([]int, error) { return nil, errB }),
		},
	}
	_, _, err := chain.Fetch(context.Background(), zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)

	chain.Strategies = append(chain.Strategies, NewStrategy("empty", func(ctx context.Context) ([]int, error) { return nil, nil }))
	got, _, err := chain.Fetch(context.Background(), zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, got)

	_, _, err = Chain[int]{Entity: "numbers"}.Fetch(context.Background(), zap.NewNop())
	assert.ErrorIs(t, err, ErrNoStrategy)
}

func TestChainSkipsInapplicableStrategies(t *testing.T) {
	skipped := NewStrategy("by_key", func(ctx context.Context) ([]int, error) { return nil, ErrNotApplicable })

	got, strategy, err := Chain[int]{Entity: "numbers", Strategies: []Strategy[int]{skipped}}.Fetch(context.Background(), zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, strategy)

	down := NewStrategy("list", func(ctx context.Context) ([]int, error) { return nil, errors.New("down") })
	_, _, err = Chain[int]{Entity: "numbers", Strategies: []Strategy[int]{skipped, down}}.Fetch(context.Background(), zap.NewNop())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotApplicable)
}

type fixture struct {
	gw        *memory.Gateway
	customers []billing.Customer
	subs      []billing.Subscription
}

// seed creates a product with one price and n customers, each with a subscription. When clocked
// is set the customers are bound to a test clock, as generated data is.
func seed(t *testing.T, n int, clocked bool) fixture {
	t.Helper()
	ctx := context.Background()
	gw := memory.New(clock.NewFakeClock(now), memory.Options{})

	product, err := gw.CreateProduct(ctx, payments.ProductInput{Name: "CloudSync Platform"})
	require.NoError(t, err)
	price, err := gw.CreatePrice(ctx, payments.PriceInput{ProductID: product.ID, UnitAmount: 2900, Currency: "usd", Interval: billing.IntervalMonth, Nickname: "Starter Plan"})
	require.NoError(t, err)

	var clockID string
	if clocked {
		tc, err := gw.CreateTestClock(ctx, "fixture", now.AddDate(0, -3, 0))
		require.NoError(t, err)
		clockID = tc.ID
	}

	f := fixture{gw: gw}
	for i := 0; i < n; i++ {
		c, err := gw.CreateCustomer(ctx, payments.CustomerInput{Name: "Acme", Email: "billing@acme.com", TestClockID: clockID})
		require.NoError(t, err)
		_, err = gw.AttachTestCard(ctx, c.ID)
		require.NoError(t, err)
		s, err := gw.CreateSubscription(ctx, payments.SubscriptionInput{CustomerID: c.ID, PriceID: price.ID})
		require.NoError(t, err)
		f.customers = append(f.customers, c)
		f.subs = append(f.subs, s)
	}
	return f
}

func newExtractor(t *testing.T, gw payments.Gateway) *Extractor {
	t.Helper()
	e, err := New(Params{Gateway: gw, Log: zaptest.NewLogger(t), Clock: clock.NewFakeClock(now)})
	require.NoError(t, err)
	return e
}

func TestExtractClockBoundRecords(t *testing.T) {
	f := seed(t, 3, true)

	snapshot, report, err := newExtractor(t, f.gw).Extract(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Failed)
	assert.Equal(t, "by_test_clock", report.Strategies[EntityCustomers])
	assert.Equal(t, "by_test_clock", report.Strategies[EntitySubscriptions])
	assert.Equal(t, "per_customer", report.Strategies[EntityInvoices])

	assert.Len(t, snapshot.Customers, 3)
	assert.Len(t, snapshot.Subscriptions, 3)
	assert.Len(t, snapshot.Invoices, 3)
	assert.Len(t, snapshot.Prices, 1)
	assert.Len(t, snapshot.Products, 1)
	assert.Equal(t, now, snapshot.ExtractedAt)
}

func TestExtractFallsBackToPlainLists(t *testing.T) {
	f := seed(t, 2, false)

	snapshot, report, err := newExtractor(t, f.gw).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "list", report.Strategies[EntityCustomers])
	assert.Equal(t, "list", report.Strategies[EntitySubscriptions])
	assert.Len(t, snapshot.Customers, 2)
	assert.Len(t, snapshot.Subscriptions, 2)
}

func TestExtractCustomersViaInvoices(t *testing.T) {
	f := seed(t, 2, false)
	f.gw.Inject(memory.OpListCustomers, memory.Fault{Err: errors.New("listing disabled")})

	snapshot, report, err := newExtractor(t, f.gw).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "via_invoices", report.Strategies[EntityCustomers])
	assert.ElementsMatch(t, []string{f.customers[0].ID, f.customers[1].ID}, []string{snapshot.Customers[0].ID, snapshot.Customers[1].ID})
}

func TestExtractSubscriptionsPerCustomer(t *testing.T) {
	f := seed(t, 2, false)
	f.gw.Inject(memory.OpListSubscriptions, memory.Fault{
		Match: func(key string) bool { return key == "" },
		Err:   errors.New("plain listing disabled"),
	})

	snapshot, report, err := newExtractor(t, f.gw).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "per_customer", report.Strategies[EntitySubscriptions])
	assert.Len(t, snapshot.Subscriptions, 2)
}

func TestExtractRecordsPartialFailures(t *testing.T) {
	f := seed(t, 3, true)
	broken := f.customers[1].ID
	f.gw.Inject(memory.OpListInvoices, memory.Fault{
		Match: func(key string) bool { return key == broken },
		Err:   errors.New("timeout"),
	})

	snapshot, report, err := newExtractor(t, f.gw).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "per_customer", report.Strategies[EntityInvoices])
	assert.Len(t, snapshot.Invoices, 2)
	assert.Len(t, report.Partial, 1)
}

func TestExtractReportsFailedKinds(t *testing.T) {
	f := seed(t, 1, false)
	f.gw.Inject(memory.OpListPrices, memory.Fault{Err: errors.New("prices down")})

	snapshot, report, err := newExtractor(t, f.gw).Extract(context.Background())
	require.NoError(t, err)
	assert.False(t, report.OK(EntityPrices))
	assert.True(t, report.OK(EntityCustomers))
	assert.Empty(t, snapshot.Prices)
	assert.Len(t, snapshot.Customers, 1)
}

func TestExtractFailsWhenNothingIsReachable(t *testing.T) {
	f := seed(t, 1, false)
	down := memory.Fault{Err: errors.New("platform down")}
	for _, op := range []string{
		memory.OpListTestClocks, memory.OpListCustomers, memory.OpListSubscriptions,
		memory.OpListInvoices, memory.OpListPrices, memory.OpListProducts,
	} {
		f.gw.Inject(op, down)
	}

	_, report, err := newExtractor(t, f.gw).Extract(context.Background())
	require.Error(t, err)
	assert.True(t, ierr.IsSetup(err))
	assert.Len(t, report.Failed, 5)
}
