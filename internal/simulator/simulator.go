// Package simulator replays scenarios against the payments platform. Customers sharing an
// acquisition month are bound to one test clock that is advanced a month at a time; scheduled
// cancellations are issued only once the clock has settled at the target month.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/smallbiznis/mrrlab/internal/clock"
	"github.com/smallbiznis/mrrlab/internal/observability/logger"
	"github.com/smallbiznis/mrrlab/internal/observability/metrics"
	"github.com/smallbiznis/mrrlab/internal/observability/tracing"
	"github.com/smallbiznis/mrrlab/internal/payments"
	"github.com/smallbiznis/mrrlab/internal/scenario"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig = errors.New("invalid simulator config")
	ErrClockNotReady = errors.New("test clock did not become ready")
	ErrClockFailed   = errors.New("test clock advancement failed")
)

// AcquisitionOffset is where a clock sits inside each simulated month: the 15th at 00:00 UTC.
// Subscriptions therefore never start on a month boundary; boundary cancellations stop the clock
// at the first of the month before moving on to the anchor.
const AcquisitionOffset = 14 * 24 * time.Hour

type Params struct {
	fx.In

	Gateway  payments.Gateway
	Log      *zap.Logger
	Clock    clock.Clock
	Scenario scenario.Config
	Config   Config                   `optional:"true"`
	Metrics  *metrics.PipelineMetrics `optional:"true"`
}

type Simulator struct {
	gateway  payments.Gateway
	log      *zap.Logger
	clock    clock.Clock
	scenario scenario.Config
	cfg      Config
	metrics  *metrics.PipelineMetrics

	onGroupDone func(GroupResult)
}

func New(p Params) (*Simulator, error) {
	if p.Gateway == nil || p.Log == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Simulator{
		gateway:  p.Gateway,
		log:      p.Log.Named("simulator"),
		clock:    p.Clock,
		scenario: p.Scenario,
		cfg:      p.Config.withDefaults(),
		metrics:  p.Metrics,
	}, nil
}

// OnGroupDone registers fn to be called from worker goroutines as each group finishes.
func (s *Simulator) OnGroupDone(fn func(GroupResult)) {
	s.onGroupDone = fn
}

// Catalog is the product and the per-plan prices scenarios subscribe to.
type Catalog struct {
	Product billing.Product
	Prices  map[string]billing.Price
}

// ProvisionCatalog creates the product and one recurring price per plan.
func (s *Simulator) ProvisionCatalog(ctx context.Context) (Catalog, error) {
	product, err := s.gateway.CreateProduct(ctx, payments.ProductInput{
		Name:        s.scenario.ProductName,
		Description: s.scenario.ProductDescription,
	})
	if err != nil {
		return Catalog{}, fmt.Errorf("create product: %w", err)
	}

	catalog := Catalog{Product: product, Prices: make(map[string]billing.Price, len(s.scenario.Plans))}
	for _, plan := range s.scenario.Plans {
		price, err := s.gateway.CreatePrice(ctx, payments.PriceInput{
			ProductID:  product.ID,
			UnitAmount: plan.UnitAmount,
			Currency:   s.scenario.Currency,
			Interval:   plan.Interval,
			Nickname:   plan.Nickname,
			Metadata:   map[string]string{"plan": plan.Name},
		})
		if err != nil {
			return Catalog{}, fmt.Errorf("create price for plan %s: %w", plan.Name, err)
		}
		catalog.Prices[plan.Name] = price
	}

	s.log.Info("simulator.catalog.provisioned",
		zap.String("product_id", product.ID),
		zap.Int("prices", len(catalog.Prices)),
	)
	return catalog, nil
}

// HistoryStart is the first day of the oldest simulated month.
func (s *Simulator) HistoryStart() time.Time {
	now := s.clock.Now().UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return current.AddDate(0, -s.scenario.HorizonMonths, 0)
}

// Run drives every clock group on a bounded worker pool. Group failures are isolated; the
// returned error is only set when ctx ended before all groups finished.
func (s *Simulator) Run(ctx context.Context, catalog Catalog, scenarios []scenario.Scenario) (Result, error) {
	groups := Groups(scenarios, s.scenario.CustomersPerClock)
	start := s.HistoryStart()

	log := logger.WithContext(ctx, s.log)
	log.Info("simulator.run.start",
		zap.Int("scenarios", len(scenarios)),
		zap.Int("groups", len(groups)),
		zap.Int("workers", s.cfg.Workers),
		zap.Time("history_start", start),
	)

	p := pool.NewWithResults[GroupResult]().WithContext(ctx).WithMaxGoroutines(s.cfg.Workers)
	for _, group := range groups {
		p.Go(func(ctx context.Context) (GroupResult, error) {
			res := s.runGroup(ctx, catalog, group, start)
			s.metrics.IncGroup(res.outcome())
			if s.onGroupDone != nil {
				s.onGroupDone(res)
			}
			return res, nil
		})
	}
	results, _ := p.Wait()

	slices.SortFunc(results, func(a, b GroupResult) int { return a.Index - b.Index })
	out := Result{InvoicesByClock: map[string]int{}}
	for _, res := range results {
		out.merge(res)
	}

	log.Info("simulator.run.finish",
		zap.Int("customers", out.Customers),
		zap.Int("subscriptions", out.Subscriptions),
		zap.Int("cancellations", out.Cancellations),
		zap.Int("invoices", out.Invoices()),
		zap.Int("failures", len(out.Failures)),
	)
	return out, ctx.Err()
}

func (s *Simulator) runGroup(ctx context.Context, catalog Catalog, group Group, start time.Time) (res GroupResult) {
	ctx, span := tracing.Start(ctx, "simulator.group",
		attribute.Int("group", group.Index),
		attribute.Int("acquisition_month", group.AcquisitionMonth),
		attribute.Int("members", len(group.Scenarios)),
	)
	res = GroupResult{Index: group.Index}
	defer func() {
		var err error
		if len(res.Failures) > 0 {
			err = res.Failures[0].Err
		}
		tracing.End(span, err)
	}()

	log := logger.WithContext(ctx, s.log).With(zap.Int("group", group.Index))
	monthStart := start.AddDate(0, group.AcquisitionMonth, 0)
	frozen := monthStart.Add(AcquisitionOffset)

	tc, err := s.gateway.CreateTestClock(ctx, fmt.Sprintf("mrrlab-group-%03d-month-%d", group.Index, group.AcquisitionMonth), frozen)
	if err != nil {
		s.recordFailure(log, &res, "test_clock", "", "test_clocks.create", err)
		return res
	}
	res.Clock = tc
	log = log.With(zap.String("clock_id", tc.ID))

	for _, sc := range group.Scenarios {
		res.Members = append(res.Members, s.enroll(ctx, log, &res, catalog, tc, sc))
	}

	// Same-month churn: cancel at the acquisition instant, before any advancement.
	s.cancelDue(ctx, log, &res, 0, false)

	steps := s.scenario.HorizonMonths - group.AcquisitionMonth
	for step := 1; step <= steps; step++ {
		boundary := monthStart.AddDate(0, step, 0)
		if dueAtMonthStart(res.Members, step) {
			if !s.moveClock(ctx, log, &res, tc.ID, boundary) {
				return res
			}
			s.cancelDue(ctx, log, &res, step, true)
		}

		target := boundary.Add(AcquisitionOffset)
		if now := s.clock.Now().UTC(); target.After(now) && now.After(boundary) {
			target = now
		}
		if !s.moveClock(ctx, log, &res, tc.ID, target) {
			return res
		}
		s.cancelDue(ctx, log, &res, step, false)
	}

	res.Invoices = s.countInvoices(ctx, log, &res)
	log.Debug("simulator.group.finish",
		zap.Int("members", len(res.Members)),
		zap.Int("invoices", res.Invoices),
		zap.Int("failures", len(res.Failures)),
	)
	return res
}

// enroll creates the customer and subscription for sc. Past-due scenarios bill by invoice without
// a card so their invoices go unpaid; all others pay with an attached test card.
func (s *Simulator) enroll(ctx context.Context, log *zap.Logger, res *GroupResult, catalog Catalog, tc billing.TestClock, sc scenario.Scenario) Member {
	member := Member{Scenario: sc}

	price, ok := catalog.Prices[sc.Plan.Name]
	if !ok {
		s.recordFailure(log, res, "price", sc.Plan.Name, "prices.lookup", fmt.Errorf("no price for plan %q", sc.Plan.Name))
		return member
	}

	customer, err := s.gateway.CreateCustomer(ctx, payments.CustomerInput{
		Name:        sc.CompanyName,
		Email:       sc.Email,
		Description: fmt.Sprintf("%s customer acquired in month %d", sc.Plan.Nickname, sc.AcquisitionMonth),
		TestClockID: tc.ID,
		Metadata:    sc.Metadata(),
	})
	if err != nil {
		s.recordFailure(log, res, "customer", sc.Email, "customers.create", err)
		return member
	}
	member.Customer = customer

	in := payments.SubscriptionInput{
		CustomerID: customer.ID,
		PriceID:    price.ID,
		Metadata:   sc.Metadata(),
	}
	if sc.PastDue() {
		in.SendInvoice = true
		in.DaysUntilDue = s.cfg.DaysUntilDue
	} else if _, err := s.gateway.AttachTestCard(ctx, customer.ID); err != nil {
		s.recordFailure(log, res, "customer", customer.ID, "payment_methods.attach", err)
		return member
	}

	sub, err := s.gateway.CreateSubscription(ctx, in)
	if err != nil {
		s.recordFailure(log, res, "subscription", customer.ID, "subscriptions.create", err)
		return member
	}
	member.Subscription = sub
	return member
}

// moveClock advances the clock and waits out the settle delay. A false return ends the group.
func (s *Simulator) moveClock(ctx context.Context, log *zap.Logger, res *GroupResult, clockID string, target time.Time) bool {
	if err := s.advance(ctx, clockID, target); err != nil {
		s.recordFailure(log, res, "test_clock", clockID, "test_clocks.advance", err)
		return false
	}
	if err := wait(ctx, s.cfg.SettleDelay); err != nil {
		s.recordFailure(log, res, "test_clock", clockID, "test_clocks.settle", err)
		return false
	}
	return true
}

func cancelsAt(m Member, step int, atMonthStart bool) bool {
	return m.Scenario.Cancels() &&
		m.Scenario.CancelAfterMonths == step &&
		m.Scenario.CancelAtMonthStart == atMonthStart &&
		m.Subscription.ID != ""
}

func dueAtMonthStart(members []Member, step int) bool {
	for _, m := range members {
		if cancelsAt(m, step, true) {
			return true
		}
	}
	return false
}

func (s *Simulator) cancelDue(ctx context.Context, log *zap.Logger, res *GroupResult, step int, atMonthStart bool) {
	for i := range res.Members {
		m := &res.Members[i]
		if !cancelsAt(*m, step, atMonthStart) {
			continue
		}
		sub, err := s.gateway.CancelSubscription(ctx, m.Subscription.ID)
		if err != nil {
			s.recordFailure(log, res, "subscription", m.Subscription.ID, "subscriptions.cancel", err)
			continue
		}
		m.Subscription = sub
		m.Canceled = true
		log.Debug("simulator.subscription.canceled",
			zap.String("subscription_id", sub.ID),
			zap.String("customer_id", m.Customer.ID),
			zap.Int("step", step),
			zap.Bool("month_start", atMonthStart),
		)
	}
}

// advance moves the clock to target and blocks until the platform reports it ready.
func (s *Simulator) advance(ctx context.Context, clockID string, target time.Time) error {
	if _, err := s.gateway.AdvanceTestClock(ctx, clockID, target); err != nil {
		return err
	}
	return s.awaitReady(ctx, clockID)
}

func (s *Simulator) awaitReady(ctx context.Context, clockID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ClockReadyTimeout)
	defer cancel()

	for {
		tc, err := s.gateway.GetTestClock(ctx, clockID)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s after %s", ErrClockNotReady, clockID, s.cfg.ClockReadyTimeout)
			}
			return err
		}
		switch tc.Status {
		case billing.ClockStatusReady:
			return nil
		case billing.ClockStatusInternalFailure:
			return fmt.Errorf("%w: %s", ErrClockFailed, clockID)
		}
		if err := wait(ctx, s.cfg.ClockPollInterval); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s after %s", ErrClockNotReady, clockID, s.cfg.ClockReadyTimeout)
			}
			return err
		}
	}
}

func (s *Simulator) countInvoices(ctx context.Context, log *zap.Logger, res *GroupResult) int {
	total := 0
	for _, m := range res.Members {
		if m.Customer.ID == "" {
			continue
		}
		invoices, err := s.gateway.ListInvoices(ctx, payments.InvoiceFilter{CustomerID: m.Customer.ID})
		if err != nil {
			s.recordFailure(log, res, "invoice", m.Customer.ID, "invoices.list", err)
			continue
		}
		total += len(invoices)
	}
	return total
}

func (s *Simulator) recordFailure(log *zap.Logger, res *GroupResult, entity, id, op string, err error) {
	res.fail(entity, id, op, err)
	s.metrics.IncEntityFailure(entity, op)
	log.Warn("simulator.step.failed",
		zap.String("entity", entity),
		zap.String("id", id),
		zap.String("op", op),
		zap.Error(err),
	)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
