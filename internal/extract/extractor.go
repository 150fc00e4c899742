// Package extract pulls the raw billing records a run needs from the payments platform. Records
// bound to test clocks are not returned by plain list calls, so every record kind is fetched
// through a chain of progressively broader strategies.
package extract

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/smallbiznis/mrrlab/internal/clock"
	ierr "github.com/smallbiznis/mrrlab/internal/errors"
	"github.com/smallbiznis/mrrlab/internal/observability/logger"
	"github.com/smallbiznis/mrrlab/internal/payments"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid extractor config")

var Module = fx.Module("extract",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Gateway payments.Gateway
	Log     *zap.Logger
	Clock   clock.Clock
}

type Extractor struct {
	gateway payments.Gateway
	log     *zap.Logger
	clock   clock.Clock
}

func New(p Params) (*Extractor, error) {
	if p.Gateway == nil || p.Log == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Extractor{
		gateway: p.Gateway,
		log:     p.Log.Named("extract"),
		clock:   p.Clock,
	}, nil
}

const (
	EntityCustomers     = "customers"
	EntitySubscriptions = "subscriptions"
	EntityInvoices      = "invoices"
	EntityPrices        = "prices"
	EntityProducts      = "products"
)

var entities = []string{EntityCustomers, EntitySubscriptions, EntityInvoices, EntityPrices, EntityProducts}

// Report records which strategy produced each record kind.
type Report struct {
	Strategies map[string]string
	// Failed holds the kinds for which every strategy failed. Their snapshot slices are empty
	// and must not replace previously loaded data.
	Failed map[string]error
	// Partial collects non-fatal failures, such as one customer's invoices not listing.
	Partial []error
}

// OK reports whether entity was extracted.
func (r Report) OK(entity string) bool {
	_, failed := r.Failed[entity]
	return !failed
}

// Extract builds a snapshot of every record kind. A kind whose strategies all failed is reported
// in Report.Failed; the returned error is set only when no kind could be extracted at all.
func (e *Extractor) Extract(ctx context.Context) (billing.Snapshot, Report, error) {
	log := logger.WithContext(ctx, e.log)
	report := Report{Strategies: map[string]string{}, Failed: map[string]error{}}
	snapshot := billing.Snapshot{ExtractedAt: e.clock.Now().UTC()}

	clocks, err := e.gateway.ListTestClocks(ctx)
	if err != nil {
		log.Warn("extract.test_clocks.failed", zap.Error(err))
		report.Partial = append(report.Partial, err)
	}

	collect := func(entity, strategy string, err error) {
		if err != nil {
			report.Failed[entity] = err
			return
		}
		report.Strategies[entity] = strategy
	}

	customers, strategy, err := e.customerChain(clocks, &report).Fetch(ctx, e.log)
	collect(EntityCustomers, strategy, err)
	snapshot.Customers = lo.UniqBy(customers, func(c billing.Customer) string { return c.ID })

	subs, strategy, err := e.subscriptionChain(clocks, snapshot.Customers, &report).Fetch(ctx, e.log)
	collect(EntitySubscriptions, strategy, err)
	snapshot.Subscriptions = lo.UniqBy(subs, func(s billing.Subscription) string { return s.ID })

	invoices, strategy, err := e.invoiceChain(snapshot.Customers, &report).Fetch(ctx, e.log)
	collect(EntityInvoices, strategy, err)
	snapshot.Invoices = lo.UniqBy(invoices, func(i billing.Invoice) string { return i.ID })

	prices, strategy, err := Chain[billing.Price]{
		Entity:     EntityPrices,
		Strategies: []Strategy[billing.Price]{NewStrategy("list", e.gateway.ListPrices)},
	}.Fetch(ctx, e.log)
	collect(EntityPrices, strategy, err)
	snapshot.Prices = prices

	products, strategy, err := Chain[billing.Product]{
		Entity:     EntityProducts,
		Strategies: []Strategy[billing.Product]{NewStrategy("list", e.gateway.ListProducts)},
	}.Fetch(ctx, e.log)
	collect(EntityProducts, strategy, err)
	snapshot.Products = products

	if len(report.Failed) == len(entities) {
		errs := make([]error, 0, len(entities))
		for _, entity := range entities {
			errs = append(errs, report.Failed[entity])
		}
		return snapshot, report, ierr.Mark(errors.Join(errs...), ierr.ErrSetup)
	}

	log.Info("extract.finish",
		zap.Int("customers", len(snapshot.Customers)),
		zap.Int("subscriptions", len(snapshot.Subscriptions)),
		zap.Int("invoices", len(snapshot.Invoices)),
		zap.Int("prices", len(snapshot.Prices)),
		zap.Int("products", len(snapshot.Products)),
		zap.Int("partial_failures", len(report.Partial)),
		zap.Strings("failed", lo.Keys(report.Failed)),
	)
	return snapshot, report, nil
}

func (e *Extractor) customerChain(clocks []billing.TestClock, report *Report) Chain[billing.Customer] {
	return Chain[billing.Customer]{
		Entity: EntityCustomers,
		Strategies: []Strategy[billing.Customer]{
			NewStrategy("by_test_clock", func(ctx context.Context) ([]billing.Customer, error) {
				return each(ctx, clocks, report, func(ctx context.Context, tc billing.TestClock) ([]billing.Customer, error) {
					return e.gateway.ListCustomers(ctx, payments.CustomerFilter{TestClockID: tc.ID})
				})
			}),
			NewStrategy("list", func(ctx context.Context) ([]billing.Customer, error) {
				return e.gateway.ListCustomers(ctx, payments.CustomerFilter{})
			}),
			NewStrategy("via_invoices", func(ctx context.Context) ([]billing.Customer, error) {
				invoices, err := e.gateway.ListInvoices(ctx, payments.InvoiceFilter{})
				if err != nil {
					return nil, err
				}
				ids := lo.Uniq(lo.FilterMap(invoices, func(inv billing.Invoice, _ int) (string, bool) {
					return inv.CustomerID, inv.CustomerID != ""
				}))
				return each(ctx, ids, report, func(ctx context.Context, id string) ([]billing.Customer, error) {
					customer, err := e.gateway.GetCustomer(ctx, id)
					if err != nil {
						return nil, err
					}
					return []billing.Customer{customer}, nil
				})
			}),
		},
	}
}

func (e *Extractor) subscriptionChain(clocks []billing.TestClock, customers []billing.Customer, report *Report) Chain[billing.Subscription] {
	return Chain[billing.Subscription]{
		Entity: EntitySubscriptions,
		Strategies: []Strategy[billing.Subscription]{
			NewStrategy("by_test_clock", func(ctx context.Context) ([]billing.Subscription, error) {
				return each(ctx, clocks, report, func(ctx context.Context, tc billing.TestClock) ([]billing.Subscription, error) {
					return e.gateway.ListSubscriptions(ctx, payments.SubscriptionFilter{TestClockID: tc.ID})
				})
			}),
			NewStrategy("list", func(ctx context.Context) ([]billing.Subscription, error) {
				return e.gateway.ListSubscriptions(ctx, payments.SubscriptionFilter{})
			}),
			NewStrategy("per_customer", func(ctx context.Context) ([]billing.Subscription, error) {
				return each(ctx, customers, report, func(ctx context.Context, c billing.Customer) ([]billing.Subscription, error) {
					return e.gateway.ListSubscriptions(ctx, payments.SubscriptionFilter{CustomerID: c.ID})
				})
			}),
		},
	}
}

func (e *Extractor) invoiceChain(customers []billing.Customer, report *Report) Chain[billing.Invoice] {
	return Chain[billing.Invoice]{
		Entity: EntityInvoices,
		Strategies: []Strategy[billing.Invoice]{
			NewStrategy("per_customer", func(ctx context.Context) ([]billing.Invoice, error) {
				return each(ctx, customers, report, func(ctx context.Context, c billing.Customer) ([]billing.Invoice, error) {
					return e.gateway.ListInvoices(ctx, payments.InvoiceFilter{CustomerID: c.ID})
				})
			}),
			NewStrategy("list", func(ctx context.Context) ([]billing.Invoice, error) {
				return e.gateway.ListInvoices(ctx, payments.InvoiceFilter{})
			}),
		},
	}
}

// each fans fetch out over keys sequentially. Single-key failures are recorded as partial; the
// strategy fails only when every key failed. Without keys the strategy is not applicable.
func each[K, T any](ctx context.Context, keys []K, report *Report, fetch func(ctx context.Context, key K) ([]T, error)) ([]T, error) {
	if len(keys) == 0 {
		return nil, ErrNotApplicable
	}
	var (
		out  []T
		errs []error
	)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		records, err := fetch(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, records...)
	}
	if len(errs) > 0 && len(errs) == len(keys) {
		return nil, errors.Join(errs...)
	}
	report.Partial = append(report.Partial, errs...)
	return out, nil
}
