// Package payments describes the payments-platform operations the pipeline consumes.
// Implementations live in subpackages: stripe talks to the live test-mode API, memory simulates it.
package payments

import (
	"context"
	"time"

	"github.com/smallbiznis/mrrlab/internal/billing"
)

type ProductInput struct {
	Name        string
	Description string
	Metadata    map[string]string
}

type PriceInput struct {
	ProductID  string
	UnitAmount int64
	Currency   string
	Interval   billing.Interval
	Nickname   string
	Metadata   map[string]string
}

type CustomerInput struct {
	Name        string
	Email       string
	Description string
	TestClockID string
	Metadata    map[string]string
}

type SubscriptionInput struct {
	CustomerID string
	PriceID    string
	// SendInvoice bills by emailed invoice instead of charging the default payment method.
	SendInvoice  bool
	DaysUntilDue int64
	Metadata     map[string]string
}

type CustomerFilter struct {
	TestClockID string
}

type SubscriptionFilter struct {
	CustomerID  string
	TestClockID string
}

type InvoiceFilter struct {
	CustomerID string
}

type Catalog interface {
	CreateProduct(ctx context.Context, in ProductInput) (billing.Product, error)
	CreatePrice(ctx context.Context, in PriceInput) (billing.Price, error)
	ListProducts(ctx context.Context) ([]billing.Product, error)
	ListPrices(ctx context.Context) ([]billing.Price, error)
	ArchiveProduct(ctx context.Context, id string) error
}

type Clocks interface {
	CreateTestClock(ctx context.Context, name string, frozen time.Time) (billing.TestClock, error)
	AdvanceTestClock(ctx context.Context, id string, to time.Time) (billing.TestClock, error)
	GetTestClock(ctx context.Context, id string) (billing.TestClock, error)
	ListTestClocks(ctx context.Context) ([]billing.TestClock, error)
	DeleteTestClock(ctx context.Context, id string) error
}

type Customers interface {
	CreateCustomer(ctx context.Context, in CustomerInput) (billing.Customer, error)
	AttachTestCard(ctx context.Context, customerID string) (string, error)
	GetCustomer(ctx context.Context, id string) (billing.Customer, error)
	ListCustomers(ctx context.Context, filter CustomerFilter) ([]billing.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
}

type Subscriptions interface {
	CreateSubscription(ctx context.Context, in SubscriptionInput) (billing.Subscription, error)
	CancelSubscription(ctx context.Context, id string) (billing.Subscription, error)
	ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]billing.Subscription, error)
}

type Invoices interface {
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]billing.Invoice, error)
}

// Gateway is the full collaborator surface. Consumers should depend on the narrowest interface.
type Gateway interface {
	Catalog
	Clocks
	Customers
	Subscriptions
	Invoices
}
