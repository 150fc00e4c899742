// Package memory is an in-process payments platform with simulated test clocks. Advancing a clock
// bills the subscriptions of its customers, marks unpaid send-invoice subscriptions past due and
// stamps cancellations with the clock's frozen time, which is what the simulator and extractor
// rely on from the real platform.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/smallbiznis/mrrlab/internal/clock"
	ierr "github.com/smallbiznis/mrrlab/internal/errors"
	"github.com/smallbiznis/mrrlab/internal/payments"
)

var (
	ErrClockAdvancing = errors.New("test clock is advancing")
	ErrClockBackwards = errors.New("test clock cannot move backwards")
)

type Options struct {
	// AdvancingPolls is how many GetTestClock calls report "advancing" after each advance.
	AdvancingPolls int
}

type customerState struct {
	record billing.Customer
	hasPM  bool
}

type subscriptionState struct {
	record       billing.Subscription
	nextInvoice  time.Time
	daysUntilDue int64
}

type clockState struct {
	record       billing.TestClock
	pendingPolls int
}

type Gateway struct {
	mu    sync.Mutex
	clock clock.Clock
	opts  Options
	seq   int

	products      map[string]billing.Product
	prices        map[string]billing.Price
	clocks        map[string]*clockState
	customers     map[string]*customerState
	subscriptions map[string]*subscriptionState
	invoices      map[string]billing.Invoice
	order         []string

	faults faults
}

var _ payments.Gateway = (*Gateway)(nil)

func New(c clock.Clock, opts Options) *Gateway {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Gateway{
		clock:         c,
		opts:          opts,
		products:      map[string]billing.Product{},
		prices:        map[string]billing.Price{},
		clocks:        map[string]*clockState{},
		customers:     map[string]*customerState{},
		subscriptions: map[string]*subscriptionState{},
		invoices:      map[string]billing.Invoice{},
	}
}

// Inject registers a fault for op.
func (g *Gateway) Inject(op string, fault Fault) {
	g.faults.add(op, fault)
}

// Calls reports how many times op was invoked, faults included.
func (g *Gateway) Calls(op string) int {
	return g.faults.calls(op)
}

func (g *Gateway) nextID(prefix string) string {
	g.seq++
	id := fmt.Sprintf("%s_%06d", prefix, g.seq)
	g.order = append(g.order, id)
	return id
}

func (g *Gateway) check(ctx context.Context, op, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.faults.check(op, key)
}

// nowFor returns the simulated time for a customer bound to clockID, or wall time.
func (g *Gateway) nowFor(clockID string) time.Time {
	if state, ok := g.clocks[clockID]; ok && clockID != "" {
		return state.record.FrozenTime
	}
	return g.clock.Now().UTC()
}

func (g *Gateway) CreateProduct(ctx context.Context, in payments.ProductInput) (billing.Product, error) {
	if err := g.check(ctx, OpCreateProduct, in.Name); err != nil {
		return billing.Product{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now().UTC()
	product := billing.Product{
		ID:          g.nextID("prod"),
		Name:        in.Name,
		Description: in.Description,
		Active:      true,
		Created:     now,
		Updated:     now,
		Metadata:    copyMap(in.Metadata),
	}
	g.products[product.ID] = product
	return product, nil
}

func (g *Gateway) CreatePrice(ctx context.Context, in payments.PriceInput) (billing.Price, error) {
	if err := g.check(ctx, OpCreatePrice, in.Nickname); err != nil {
		return billing.Price{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.products[in.ProductID]; !ok {
		return billing.Price{}, notFound("product", in.ProductID)
	}
	price := billing.Price{
		ID:            g.nextID("price"),
		ProductID:     in.ProductID,
		Active:        true,
		Currency:      in.Currency,
		UnitAmount:    in.UnitAmount,
		Interval:      in.Interval,
		IntervalCount: 1,
		Nickname:      in.Nickname,
		Created:       g.clock.Now().UTC(),
		Metadata:      copyMap(in.Metadata),
	}
	g.prices[price.ID] = price
	return price, nil
}

func (g *Gateway) ListProducts(ctx context.Context) ([]billing.Product, error) {
	if err := g.check(ctx, OpListProducts, ""); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]billing.Product, 0, len(g.products))
	for _, id := range g.order {
		if product, ok := g.products[id]; ok {
			out = append(out, product)
		}
	}
	return out, nil
}

func (g *Gateway) ListPrices(ctx context.Context) ([]billing.Price, error) {
	if err := g.check(ctx, OpListPrices, ""); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]billing.Price, 0, len(g.prices))
	for _, id := range g.order {
		if price, ok := g.prices[id]; ok {
			out = append(out, price)
		}
	}
	return out, nil
}

func (g *Gateway) ArchiveProduct(ctx context.Context, id string) error {
	if err := g.check(ctx, OpArchiveProduct, id); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	product, ok := g.products[id]
	if !ok {
		return notFound("product", id)
	}
	product.Active = false
	product.Updated = g.clock.Now().UTC()
	g.products[id] = product
	return nil
}

func (g *Gateway) CreateTestClock(ctx context.Context, name string, frozen time.Time) (billing.TestClock, error) {
	if err := g.check(ctx, OpCreateTestClock, name); err != nil {
		return billing.TestClock{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	tc := billing.TestClock{
		ID:         g.nextID("clock"),
		Name:       name,
		FrozenTime: frozen.UTC(),
		Status:     billing.ClockStatusReady,
	}
	g.clocks[tc.ID] = &clockState{record: tc}
	return tc, nil
}

func (g *Gateway) AdvanceTestClock(ctx context.Context, id string, to time.Time) (billing.TestClock, error) {
	if err := g.check(ctx, OpAdvanceTestClock, id); err != nil {
		return billing.TestClock{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.clocks[id]
	if !ok {
		return billing.TestClock{}, notFound("test_clock", id)
	}
	if state.record.Status == billing.ClockStatusAdvancing {
		return billing.TestClock{}, ErrClockAdvancing
	}
	to = to.UTC()
	if !to.After(state.record.FrozenTime) {
		return billing.TestClock{}, ErrClockBackwards
	}

	state.record.FrozenTime = to
	g.billClock(id, to)

	if g.opts.AdvancingPolls > 0 {
		state.record.Status = billing.ClockStatusAdvancing
		state.pendingPolls = g.opts.AdvancingPolls
	} else {
		state.record.Status = billing.ClockStatusReady
	}
	return state.record, nil
}

func (g *Gateway) GetTestClock(ctx context.Context, id string) (billing.TestClock, error) {
	if err := g.check(ctx, OpGetTestClock, id); err != nil {
		return billing.TestClock{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.clocks[id]
	if !ok {
		return billing.TestClock{}, notFound("test_clock", id)
	}
	if state.record.Status == billing.ClockStatusAdvancing {
		state.pendingPolls--
		if state.pendingPolls <= 0 {
			state.record.Status = billing.ClockStatusReady
		}
	}
	return state.record, nil
}

func (g *Gateway) ListTestClocks(ctx context.Context) ([]billing.TestClock, error) {
	if err := g.check(ctx, OpListTestClocks, ""); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]billing.TestClock, 0, len(g.clocks))
	for _, id := range g.order {
		if state, ok := g.clocks[id]; ok {
			out = append(out, state.record)
		}
	}
	return out, nil
}

// DeleteTestClock removes the clock together with every customer bound to it.
func (g *Gateway) DeleteTestClock(ctx context.Context, id string) error {
	if err := g.check(ctx, OpDeleteTestClock, id); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.clocks[id]; !ok {
		return notFound("test_clock", id)
	}
	for customerID, state := range g.customers {
		if state.record.TestClockID == id {
			g.deleteCustomerLocked(customerID)
		}
	}
	delete(g.clocks, id)
	return nil
}

func (g *Gateway) CreateCustomer(ctx context.Context, in payments.CustomerInput) (billing.Customer, error) {
	if err := g.check(ctx, OpCreateCustomer, in.Email); err != nil {
		return billing.Customer{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if in.TestClockID != "" {
		state, ok := g.clocks[in.TestClockID]
		if !ok {
			return billing.Customer{}, notFound("test_clock", in.TestClockID)
		}
		if state.record.Status == billing.ClockStatusAdvancing {
			return billing.Customer{}, ErrClockAdvancing
		}
	}

	customer := billing.Customer{
		ID:          g.nextID("cus"),
		Email:       in.Email,
		Name:        in.Name,
		Description: in.Description,
		Created:     g.nowFor(in.TestClockID),
		TestClockID: in.TestClockID,
		Metadata:    copyMap(in.Metadata),
	}
	g.customers[customer.ID] = &customerState{record: customer}
	return customer, nil
}

func (g *Gateway) AttachTestCard(ctx context.Context, customerID string) (string, error) {
	if err := g.check(ctx, OpAttachCard, customerID); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.customers[customerID]
	if !ok {
		return "", notFound("customer", customerID)
	}
	pm := g.nextID("pm")
	state.hasPM = true
	state.record.DefaultPaymentMethod = pm
	return pm, nil
}

func (g *Gateway) GetCustomer(ctx context.Context, id string) (billing.Customer, error) {
	if err := g.check(ctx, OpGetCustomer, id); err != nil {
		return billing.Customer{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.customers[id]
	if !ok {
		return billing.Customer{}, notFound("customer", id)
	}
	return g.customerView(state), nil
}

// ListCustomers without a clock filter omits clock-bound customers, as the platform does.
func (g *Gateway) ListCustomers(ctx context.Context, filter payments.CustomerFilter) ([]billing.Customer, error) {
	if err := g.check(ctx, OpListCustomers, filter.TestClockID); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	out := []billing.Customer{}
	for _, id := range g.order {
		state, ok := g.customers[id]
		if !ok || state.record.TestClockID != filter.TestClockID {
			continue
		}
		out = append(out, g.customerView(state))
	}
	return out, nil
}

func (g *Gateway) DeleteCustomer(ctx context.Context, id string) error {
	if err := g.check(ctx, OpDeleteCustomer, id); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.customers[id]; !ok {
		return notFound("customer", id)
	}
	g.deleteCustomerLocked(id)
	return nil
}

func (g *Gateway) deleteCustomerLocked(id string) {
	for subID, sub := range g.subscriptions {
		if sub.record.CustomerID == id {
			delete(g.subscriptions, subID)
		}
	}
	for invID, inv := range g.invoices {
		if inv.CustomerID == id {
			delete(g.invoices, invID)
		}
	}
	delete(g.customers, id)
}

func (g *Gateway) CreateSubscription(ctx context.Context, in payments.SubscriptionInput) (billing.Subscription, error) {
	if err := g.check(ctx, OpCreateSubscription, in.CustomerID); err != nil {
		return billing.Subscription{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	customer, ok := g.customers[in.CustomerID]
	if !ok {
		return billing.Subscription{}, notFound("customer", in.CustomerID)
	}
	if err := g.ensureClockIdle(customer.record.TestClockID); err != nil {
		return billing.Subscription{}, err
	}
	price, ok := g.prices[in.PriceID]
	if !ok {
		return billing.Subscription{}, notFound("price", in.PriceID)
	}

	now := g.nowFor(customer.record.TestClockID)
	collection := billing.CollectionChargeAutomatically
	if in.SendInvoice {
		collection = billing.CollectionSendInvoice
	}
	status := billing.SubscriptionStatusActive
	if !in.SendInvoice && !customer.hasPM {
		status = billing.SubscriptionStatusIncomplete
	}

	sub := &subscriptionState{
		record: billing.Subscription{
			ID:               g.nextID("sub"),
			CustomerID:       customer.record.ID,
			Status:           status,
			StartDate:        now,
			CollectionMethod: collection,
			Created:          now,
			Currency:         price.Currency,
			PriceID:          price.ID,
			ProductID:        price.ProductID,
			UnitAmount:       price.UnitAmount,
			Quantity:         1,
			Interval:         price.Interval,
			IntervalCount:    price.IntervalCount,
			MRRAmount:        billing.MonthlyEquivalent(price.UnitAmount, 1, price.Interval, price.IntervalCount),
			Metadata:         copyMap(in.Metadata),
		},
		nextInvoice:  now,
		daysUntilDue: in.DaysUntilDue,
	}
	if sub.daysUntilDue <= 0 {
		sub.daysUntilDue = 30
	}
	g.subscriptions[sub.record.ID] = sub
	g.invoiceDue(sub, customer, now)
	return sub.record, nil
}

func (g *Gateway) CancelSubscription(ctx context.Context, id string) (billing.Subscription, error) {
	if err := g.check(ctx, OpCancelSubscription, id); err != nil {
		return billing.Subscription{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	sub, ok := g.subscriptions[id]
	if !ok {
		return billing.Subscription{}, notFound("subscription", id)
	}
	customer := g.customers[sub.record.CustomerID]
	if err := g.ensureClockIdle(customer.record.TestClockID); err != nil {
		return billing.Subscription{}, err
	}
	if sub.record.Status == billing.SubscriptionStatusCanceled {
		return sub.record, nil
	}

	now := g.nowFor(customer.record.TestClockID)
	sub.record.Status = billing.SubscriptionStatusCanceled
	sub.record.CanceledAt = &now
	sub.record.EndedAt = &now
	return sub.record, nil
}

// ListSubscriptions returns every status. Without a customer or clock filter clock-bound
// subscriptions are omitted.
func (g *Gateway) ListSubscriptions(ctx context.Context, filter payments.SubscriptionFilter) ([]billing.Subscription, error) {
	key := filter.CustomerID
	if key == "" {
		key = filter.TestClockID
	}
	if err := g.check(ctx, OpListSubscriptions, key); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	out := []billing.Subscription{}
	for _, id := range g.order {
		sub, ok := g.subscriptions[id]
		if !ok {
			continue
		}
		customer := g.customers[sub.record.CustomerID]
		switch {
		case filter.CustomerID != "":
			if sub.record.CustomerID != filter.CustomerID {
				continue
			}
		case customer.record.TestClockID != filter.TestClockID:
			continue
		}
		out = append(out, sub.record)
	}
	return out, nil
}

func (g *Gateway) ListInvoices(ctx context.Context, filter payments.InvoiceFilter) ([]billing.Invoice, error) {
	if err := g.check(ctx, OpListInvoices, filter.CustomerID); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	out := []billing.Invoice{}
	for _, inv := range g.invoices {
		if filter.CustomerID != "" && inv.CustomerID != filter.CustomerID {
			continue
		}
		if filter.CustomerID == "" {
			if customer, ok := g.customers[inv.CustomerID]; ok && customer.record.TestClockID != "" {
				continue
			}
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

func (g *Gateway) ensureClockIdle(clockID string) error {
	if clockID == "" {
		return nil
	}
	if state, ok := g.clocks[clockID]; ok && state.record.Status == billing.ClockStatusAdvancing {
		return ErrClockAdvancing
	}
	return nil
}

func (g *Gateway) customerView(state *customerState) billing.Customer {
	customer := state.record
	customer.Delinquent = false
	for _, sub := range g.subscriptions {
		if sub.record.CustomerID == customer.ID && sub.record.Status == billing.SubscriptionStatusPastDue {
			customer.Delinquent = true
		}
	}
	return customer
}

// billClock issues every invoice due up to to for the clock's live subscriptions and flags
// send-invoice subscriptions whose invoices went unpaid past their due date.
func (g *Gateway) billClock(clockID string, to time.Time) {
	for _, id := range g.order {
		sub, ok := g.subscriptions[id]
		if !ok {
			continue
		}
		customer := g.customers[sub.record.CustomerID]
		if customer == nil || customer.record.TestClockID != clockID {
			continue
		}
		if sub.record.Status == billing.SubscriptionStatusCanceled {
			continue
		}
		for !sub.nextInvoice.After(to) {
			g.invoiceDue(sub, customer, sub.nextInvoice)
		}
		for _, inv := range g.invoices {
			if inv.SubscriptionID != sub.record.ID || inv.Status != "open" || inv.DueDate == nil {
				continue
			}
			if inv.DueDate.Before(to) {
				sub.record.Status = billing.SubscriptionStatusPastDue
			}
		}
	}
}

func (g *Gateway) invoiceDue(sub *subscriptionState, customer *customerState, at time.Time) {
	periodEnd := advancePeriod(at, sub.record.Interval, sub.record.IntervalCount)
	start, end := at, periodEnd
	sub.record.CurrentPeriodStart = &start
	sub.record.CurrentPeriodEnd = &end
	sub.nextInvoice = periodEnd

	amount := sub.record.UnitAmount * sub.record.Quantity
	inv := billing.Invoice{
		ID:               g.nextID("in"),
		Number:           fmt.Sprintf("MEM-%06d", g.seq),
		CustomerID:       customer.record.ID,
		SubscriptionID:   sub.record.ID,
		AmountDue:        amount,
		Subtotal:         amount,
		Total:            amount,
		Currency:         sub.record.Currency,
		Created:          at,
		PeriodStart:      &start,
		PeriodEnd:        &end,
		CollectionMethod: sub.record.CollectionMethod,
	}
	switch {
	case sub.record.CollectionMethod == billing.CollectionSendInvoice:
		due := at.AddDate(0, 0, int(sub.daysUntilDue))
		inv.Status = "open"
		inv.DueDate = &due
		inv.AmountRemaining = amount
	case customer.hasPM:
		paid := at
		inv.Status = "paid"
		inv.AmountPaid = amount
		inv.PaidAt = &paid
	default:
		inv.Status = "open"
		inv.AmountRemaining = amount
	}
	g.invoices[inv.ID] = inv
}

func advancePeriod(from time.Time, interval billing.Interval, count int64) time.Time {
	n := int(count)
	if n < 1 {
		n = 1
	}
	switch interval {
	case billing.IntervalDay:
		return from.AddDate(0, 0, n)
	case billing.IntervalWeek:
		return from.AddDate(0, 0, 7*n)
	case billing.IntervalYear:
		return from.AddDate(n, 0, 0)
	default:
		return from.AddDate(0, n, 0)
	}
}

func notFound(entity, id string) error {
	return ierr.NewError(fmt.Sprintf("%s %s not found", entity, id)).
		WithDetails(map[string]any{"entity": entity, "id": id}).
		Mark(ierr.ErrNotFound)
}

func copyMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
