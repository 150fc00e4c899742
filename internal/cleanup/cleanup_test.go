package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/smallbiznis/mrrlab/internal/clock"
	ierr "github.com/smallbiznis/mrrlab/internal/errors"
	"github.com/smallbiznis/mrrlab/internal/extract"
	"github.com/smallbiznis/mrrlab/internal/payments"
	"github.com/smallbiznis/mrrlab/internal/payments/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var now = time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)

// populate creates one product, two clock-bound customers (one already canceled) and one plain
// customer, each with a subscription.
func populate(t *testing.T) *memory.Gateway {
	t.Helper()
	ctx := context.Background()
	gw := memory.New(clock.NewFakeClock(now), memory.Options{})

	product, err := gw.CreateProduct(ctx, payments.ProductInput{Name: "CloudSync Platform"})
	require.NoError(t, err)
	price, err := gw.CreatePrice(ctx, payments.PriceInput{ProductID: product.ID, UnitAmount: 2900, Currency: "usd", Interval: billing.IntervalMonth})
	require.NoError(t, err)
	tc, err := gw.CreateTestClock(ctx, "cleanup", now.AddDate(0, -2, 0))
	require.NoError(t, err)

	for i, clockID := range []string{tc.ID, tc.ID, ""} {
		c, err := gw.CreateCustomer(ctx, payments.CustomerInput{Name: "Acme", Email: "billing@acme.com", TestClockID: clockID})
		require.NoError(t, err)
		_, err = gw.AttachTestCard(ctx, c.ID)
		require.NoError(t, err)
		sub, err := gw.CreateSubscription(ctx, payments.SubscriptionInput{CustomerID: c.ID, PriceID: price.ID})
		require.NoError(t, err)
		if i == 1 {
			_, err = gw.CancelSubscription(ctx, sub.ID)
			require.NoError(t, err)
		}
	}
	return gw
}

func newCleaner(t *testing.T, gw payments.Gateway) *Cleaner {
	t.Helper()
	extractor, err := extract.New(extract.Params{Gateway: gw, Log: zaptest.NewLogger(t), Clock: clock.NewFakeClock(now)})
	require.NoError(t, err)
	c, err := New(Params{Gateway: gw, Source: extractor, Log: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return c
}

func TestRunRemovesEverything(t *testing.T) {
	ctx := context.Background()
	gw := populate(t)

	report, err := newCleaner(t, gw).Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 2, report.CanceledSubscriptions)
	assert.Equal(t, 3, report.DeletedCustomers)
	assert.Equal(t, 1, report.DeletedClocks)
	assert.Equal(t, 1, report.ArchivedProducts)

	clocks, err := gw.ListTestClocks(ctx)
	require.NoError(t, err)
	assert.Empty(t, clocks)
	customers, err := gw.ListCustomers(ctx, payments.CustomerFilter{})
	require.NoError(t, err)
	assert.Empty(t, customers)
	products, err := gw.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.False(t, products[0].Active)
}

func TestRunCountsFailuresWithoutStopping(t *testing.T) {
	gw := populate(t)
	gw.Inject(memory.OpCancelSubscription, memory.Fault{Err: errors.New("rate limited")})
	gw.Inject(memory.OpArchiveProduct, memory.Fault{Err: errors.New("rate limited")})

	report, err := newCleaner(t, gw).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.CanceledSubscriptions)
	assert.Equal(t, 3, report.DeletedCustomers)
	assert.Equal(t, 1, report.DeletedClocks)
	assert.Zero(t, report.ArchivedProducts)
	assert.Len(t, report.Failures, 3)
}

func TestRunIsRepeatable(t *testing.T) {
	ctx := context.Background()
	gw := populate(t)
	c := newCleaner(t, gw)

	_, err := c.Run(ctx)
	require.NoError(t, err)
	report, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.CanceledSubscriptions)
	assert.Zero(t, report.DeletedCustomers)
	assert.Zero(t, report.ArchivedProducts)
	assert.Empty(t, report.Failures)
}

type failingSource struct{}

func (failingSource) Extract(context.Context) (billing.Snapshot, extract.Report, error) {
	return billing.Snapshot{}, extract.Report{}, errors.New("unauthorized")
}

func TestRunAbortsWhenNothingCanBeListed(t *testing.T) {
	gw := memory.New(clock.NewFakeClock(now), memory.Options{})
	_, err := NewWithSource(gw, failingSource{}, zaptest.NewLogger(t), nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, ierr.IsSetup(err))
}
