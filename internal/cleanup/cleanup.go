// Package cleanup tears down the test-mode data a generator run created. Products cannot be
// deleted once they have prices, so they are archived instead.
package cleanup

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/smallbiznis/mrrlab/internal/billing"
	ierr "github.com/smallbiznis/mrrlab/internal/errors"
	"github.com/smallbiznis/mrrlab/internal/extract"
	"github.com/smallbiznis/mrrlab/internal/observability/logger"
	"github.com/smallbiznis/mrrlab/internal/observability/metrics"
	"github.com/smallbiznis/mrrlab/internal/payments"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid cleanup config")

var Module = fx.Module("cleanup",
	fx.Provide(New),
)

// Source lists what is currently on the platform, test-clock bound records included.
type Source interface {
	Extract(ctx context.Context) (billing.Snapshot, extract.Report, error)
}

type Params struct {
	fx.In

	Gateway payments.Gateway
	Source  *extract.Extractor
	Log     *zap.Logger
	Metrics *metrics.PipelineMetrics `optional:"true"`
}

type Cleaner struct {
	gateway payments.Gateway
	source  Source
	log     *zap.Logger
	metrics *metrics.PipelineMetrics
}

func New(p Params) (*Cleaner, error) {
	if p.Gateway == nil || p.Source == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	return NewWithSource(p.Gateway, p.Source, p.Log, p.Metrics), nil
}

func NewWithSource(gw payments.Gateway, src Source, log *zap.Logger, m *metrics.PipelineMetrics) *Cleaner {
	return &Cleaner{gateway: gw, source: src, log: log.Named("cleanup"), metrics: m}
}

type Report struct {
	CanceledSubscriptions int
	DeletedCustomers      int
	DeletedClocks         int
	ArchivedProducts      int
	Failures              []error
}

func (r *Report) fail(err error) {
	r.Failures = append(r.Failures, err)
}

// Run cancels live subscriptions, deletes customers and test clocks and archives active products.
// Entity failures are counted and never stop the run; only an unreadable platform aborts it.
func (c *Cleaner) Run(ctx context.Context) (Report, error) {
	log := logger.WithContext(ctx, c.log)
	var report Report

	snapshot, extracted, err := c.source.Extract(ctx)
	if err != nil {
		return report, ierr.Mark(fmt.Errorf("list platform data: %w", err), ierr.ErrSetup)
	}
	for entity, cause := range extracted.Failed {
		log.Warn("cleanup.list.failed", zap.String("entity", entity), zap.Error(cause))
		report.fail(cause)
	}

	for _, sub := range c.withPlainSubscriptions(ctx, &report, snapshot.Subscriptions) {
		if sub.Status == billing.SubscriptionStatusCanceled || sub.Status == "incomplete_expired" {
			continue
		}
		if _, err := c.gateway.CancelSubscription(ctx, sub.ID); err != nil && !ierr.IsNotFound(err) {
			c.record(ctx, &report, "subscription", sub.ID, "cancel", err)
			continue
		}
		report.CanceledSubscriptions++
	}

	for _, customer := range c.withPlainCustomers(ctx, &report, snapshot.Customers) {
		if err := c.gateway.DeleteCustomer(ctx, customer.ID); err != nil && !ierr.IsNotFound(err) {
			c.record(ctx, &report, "customer", customer.ID, "delete", err)
			continue
		}
		report.DeletedCustomers++
	}

	clocks, err := c.gateway.ListTestClocks(ctx)
	if err != nil {
		c.record(ctx, &report, "test_clock", "", "list", err)
	}
	for _, tc := range clocks {
		if err := c.gateway.DeleteTestClock(ctx, tc.ID); err != nil && !ierr.IsNotFound(err) {
			c.record(ctx, &report, "test_clock", tc.ID, "delete", err)
			continue
		}
		report.DeletedClocks++
	}

	for _, product := range snapshot.Products {
		if !product.Active {
			continue
		}
		if err := c.gateway.ArchiveProduct(ctx, product.ID); err != nil {
			c.record(ctx, &report, "product", product.ID, "archive", err)
			continue
		}
		report.ArchivedProducts++
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	log.Info("cleanup.finish",
		zap.Int("canceled_subscriptions", report.CanceledSubscriptions),
		zap.Int("deleted_customers", report.DeletedCustomers),
		zap.Int("deleted_clocks", report.DeletedClocks),
		zap.Int("archived_products", report.ArchivedProducts),
		zap.Int("failures", len(report.Failures)),
	)
	return report, nil
}

// withPlainSubscriptions adds the subscriptions a plain list returns. The extractor stops at the
// first strategy that finds records, so clock-bound results hide the unbound ones.
func (c *Cleaner) withPlainSubscriptions(ctx context.Context, report *Report, subs []billing.Subscription) []billing.Subscription {
	plain, err := c.gateway.ListSubscriptions(ctx, payments.SubscriptionFilter{})
	if err != nil {
		c.record(ctx, report, "subscription", "", "list", err)
		return subs
	}
	return lo.UniqBy(append(subs, plain...), func(s billing.Subscription) string { return s.ID })
}

func (c *Cleaner) withPlainCustomers(ctx context.Context, report *Report, customers []billing.Customer) []billing.Customer {
	plain, err := c.gateway.ListCustomers(ctx, payments.CustomerFilter{})
	if err != nil {
		c.record(ctx, report, "customer", "", "list", err)
		return customers
	}
	return lo.UniqBy(append(customers, plain...), func(cu billing.Customer) string { return cu.ID })
}

func (c *Cleaner) record(ctx context.Context, report *Report, entity, id, op string, err error) {
	c.metrics.IncEntityFailure(entity, op)
	logger.WithContext(ctx, c.log).Warn("cleanup.step.failed",
		zap.String("entity", entity),
		zap.String("id", id),
		zap.String("op", op),
		zap.Error(err),
	)
	report.fail(fmt.Errorf("%s %s %s: %w", op, entity, id, err))
}
