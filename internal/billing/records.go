// Package billing holds the normalized records the pipeline extracts from the payments platform.
package billing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Status is the terminal state a synthetic customer is scheduled to reach.
type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusPastDue  Status = "past_due"
)

type ClockStatus string

const (
	ClockStatusReady           ClockStatus = "ready"
	ClockStatusAdvancing       ClockStatus = "advancing"
	ClockStatusInternalFailure ClockStatus = "internal_failure"
)

// Subscription statuses as reported by the platform.
const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusUnpaid     = "unpaid"
	SubscriptionStatusTrialing   = "trialing"
)

const (
	CollectionChargeAutomatically = "charge_automatically"
	CollectionSendInvoice         = "send_invoice"
)

var (
	ErrMissingStart        = errors.New("subscription has no start date")
	ErrCanceledBeforeStart = errors.New("subscription canceled before it started")
)

type Product struct {
	ID          string
	Name        string
	Description string
	Active      bool
	Created     time.Time
	Updated     time.Time
	Metadata    map[string]string
}

type Price struct {
	ID            string
	ProductID     string
	Active        bool
	Currency      string
	UnitAmount    int64
	Interval      Interval
	IntervalCount int64
	Nickname      string
	Created       time.Time
	Metadata      map[string]string
}

type TestClock struct {
	ID         string
	Name       string
	FrozenTime time.Time
	Status     ClockStatus
}

func (c TestClock) Ready() bool {
	return c.Status == ClockStatusReady
}

type Customer struct {
	ID                   string
	Email                string
	Name                 string
	Description          string
	Created              time.Time
	Currency             string
	Delinquent           bool
	TestClockID          string
	DefaultPaymentMethod string
	Metadata             map[string]string
}

type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	StartDate          time.Time
	EndedAt            *time.Time
	CanceledAt         *time.Time
	CancelAtPeriodEnd  bool
	CollectionMethod   string
	Created            time.Time
	Currency           string
	PriceID            string
	ProductID          string
	UnitAmount         int64
	Quantity           int64
	Interval           Interval
	IntervalCount      int64
	MRRAmount          decimal.Decimal
	Metadata           map[string]string
}

// Validate reports whether the subscription can take part in attribution.
func (s Subscription) Validate() error {
	if s.StartDate.IsZero() {
		return ErrMissingStart
	}
	if s.CanceledAt != nil && s.CanceledAt.Before(s.StartDate) {
		return ErrCanceledBeforeStart
	}
	return nil
}

type Invoice struct {
	ID               string
	Number           string
	CustomerID       string
	SubscriptionID   string
	Status           string
	AmountDue        int64
	AmountPaid       int64
	AmountRemaining  int64
	Subtotal         int64
	Total            int64
	Currency         string
	Created          time.Time
	DueDate          *time.Time
	PeriodStart      *time.Time
	PeriodEnd        *time.Time
	PaidAt           *time.Time
	CollectionMethod string
	HostedInvoiceURL string
	InvoicePDF       string
}

// Snapshot is the fully materialized record set a compute pass reads.
type Snapshot struct {
	Customers     []Customer
	Subscriptions []Subscription
	Invoices      []Invoice
	Prices        []Price
	Products      []Product
	ExtractedAt   time.Time
}

// Unix converts a platform timestamp, treating 0 as absent.
func Unix(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// FirstTime returns the first non-nil, non-zero candidate.
func FirstTime(candidates ...*time.Time) *time.Time {
	for _, candidate := range candidates {
		if candidate != nil && !candidate.IsZero() {
			return candidate
		}
	}
	return nil
}
