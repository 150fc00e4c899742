package sink

import (
	"encoding/json"
	"time"

	"github.com/smallbiznis/mrrlab/internal/analytics"
	"github.com/smallbiznis/mrrlab/internal/billing"
	"gorm.io/datatypes"
)

type CustomerRow struct {
	CustomerID           string         `ch:"customer_id" gorm:"column:customer_id;primaryKey;size:255"`
	Email                string         `ch:"email" gorm:"column:email"`
	Name                 string         `ch:"name" gorm:"column:name"`
	Description          string         `ch:"description" gorm:"column:description"`
	Created              time.Time      `ch:"created" gorm:"column:created;not null"`
	Currency             string         `ch:"currency" gorm:"column:currency;size:8"`
	Delinquent           bool           `ch:"delinquent" gorm:"column:delinquent"`
	TestClockID          string         `ch:"test_clock_id" gorm:"column:test_clock_id;size:255"`
	DefaultPaymentMethod string         `ch:"default_payment_method" gorm:"column:default_payment_method"`
	Metadata             datatypes.JSON `ch:"metadata" gorm:"column:metadata"`
	ExtractedAt          time.Time      `ch:"extracted_at" gorm:"column:extracted_at;not null"`
}

type SubscriptionRow struct {
	SubscriptionID     string         `ch:"subscription_id" gorm:"column:subscription_id;primaryKey;size:255"`
	CustomerID         string         `ch:"customer_id" gorm:"column:customer_id;size:255;not null;index"`
	Status             string         `ch:"status" gorm:"column:status;size:32;not null;index"`
	CurrentPeriodStart *time.Time     `ch:"current_period_start" gorm:"column:current_period_start"`
	CurrentPeriodEnd   *time.Time     `ch:"current_period_end" gorm:"column:current_period_end"`
	StartDate          *time.Time     `ch:"start_date" gorm:"column:start_date"`
	EndedAt            *time.Time     `ch:"ended_at" gorm:"column:ended_at"`
	CanceledAt         *time.Time     `ch:"canceled_at" gorm:"column:canceled_at"`
	CancelAtPeriodEnd  bool           `ch:"cancel_at_period_end" gorm:"column:cancel_at_period_end"`
	CollectionMethod   string         `ch:"collection_method" gorm:"column:collection_method;size:32"`
	Created            time.Time      `ch:"created" gorm:"column:created;not null"`
	Currency           string         `ch:"currency" gorm:"column:currency;size:8"`
	PriceID            string         `ch:"price_id" gorm:"column:price_id;size:255"`
	ProductID          string         `ch:"product_id" gorm:"column:product_id;size:255"`
	UnitAmount         int64          `ch:"unit_amount" gorm:"column:unit_amount"`
	Quantity           int64          `ch:"quantity" gorm:"column:quantity"`
	MRRAmount          float64        `ch:"mrr_amount" gorm:"column:mrr_amount;not null"`
	Metadata           datatypes.JSON `ch:"metadata" gorm:"column:metadata"`
	ExtractedAt        time.Time      `ch:"extracted_at" gorm:"column:extracted_at;not null"`
}

type InvoiceRow struct {
	InvoiceID        string     `ch:"invoice_id" gorm:"column:invoice_id;primaryKey;size:255"`
	InvoiceNumber    string     `ch:"invoice_number" gorm:"column:invoice_number"`
	CustomerID       string     `ch:"customer_id" gorm:"column:customer_id;size:255;not null;index"`
	SubscriptionID   string     `ch:"subscription_id" gorm:"column:subscription_id;size:255"`
	Status           string     `ch:"status" gorm:"column:status;size:32;not null;index"`
	AmountDue        int64      `ch:"amount_due" gorm:"column:amount_due"`
	AmountPaid       int64      `ch:"amount_paid" gorm:"column:amount_paid"`
	AmountRemaining  int64      `ch:"amount_remaining" gorm:"column:amount_remaining"`
	Subtotal         int64      `ch:"subtotal" gorm:"column:subtotal"`
	Total            int64      `ch:"total" gorm:"column:total"`
	Currency         string     `ch:"currency" gorm:"column:currency;size:8"`
	Created          time.Time  `ch:"created" gorm:"column:created;not null"`
	DueDate          *time.Time `ch:"due_date" gorm:"column:due_date"`
	PeriodStart      *time.Time `ch:"period_start" gorm:"column:period_start"`
	PeriodEnd        *time.Time `ch:"period_end" gorm:"column:period_end"`
	PaidAt           *time.Time `ch:"paid_at" gorm:"column:paid_at"`
	CollectionMethod string     `ch:"collection_method" gorm:"column:collection_method;size:32"`
	HostedInvoiceURL string     `ch:"hosted_invoice_url" gorm:"column:hosted_invoice_url"`
	InvoicePDF       string     `ch:"invoice_pdf" gorm:"column:invoice_pdf"`
	ExtractedAt      time.Time  `ch:"extracted_at" gorm:"column:extracted_at;not null"`
}

type PriceRow struct {
	PriceID                string    `ch:"price_id" gorm:"column:price_id;primaryKey;size:255"`
	ProductID              string    `ch:"product_id" gorm:"column:product_id;size:255;not null"`
	Active                 bool      `ch:"active" gorm:"column:active"`
	Currency               string    `ch:"currency" gorm:"column:currency;size:8"`
	UnitAmount             int64     `ch:"unit_amount" gorm:"column:unit_amount"`
	RecurringInterval      string    `ch:"recurring_interval" gorm:"column:recurring_interval;size:16"`
	RecurringIntervalCount int64     `ch:"recurring_interval_count" gorm:"column:recurring_interval_count"`
	Nickname               string    `ch:"nickname" gorm:"column:nickname"`
	Created                time.Time `ch:"created" gorm:"column:created;not null"`
	ExtractedAt            time.Time `ch:"extracted_at" gorm:"column:extracted_at;not null"`
}

type ProductRow struct {
	ProductID   string     `ch:"product_id" gorm:"column:product_id;primaryKey;size:255"`
	Name        string     `ch:"name" gorm:"column:name;not null"`
	Description string     `ch:"description" gorm:"column:description"`
	Active      bool       `ch:"active" gorm:"column:active"`
	Created     time.Time  `ch:"created" gorm:"column:created;not null"`
	Updated     *time.Time `ch:"updated" gorm:"column:updated"`
	ExtractedAt time.Time  `ch:"extracted_at" gorm:"column:extracted_at;not null"`
}

type MonthlySummaryRow struct {
	MonthYear             string    `ch:"month_year" gorm:"column:month_year;primaryKey;size:7"`
	MonthStartDate        time.Time `ch:"month_start_date" gorm:"column:month_start_date;type:date;not null"`
	TotalMRR              float64   `ch:"total_mrr" gorm:"column:total_mrr;not null"`
	NewMRR                float64   `ch:"new_mrr" gorm:"column:new_mrr"`
	ExpansionMRR          float64   `ch:"expansion_mrr" gorm:"column:expansion_mrr"`
	ContractionMRR        float64   `ch:"contraction_mrr" gorm:"column:contraction_mrr"`
	ChurnedMRR            float64   `ch:"churned_mrr" gorm:"column:churned_mrr"`
	NetNewMRR             float64   `ch:"net_new_mrr" gorm:"column:net_new_mrr"`
	ActiveCustomers       int64     `ch:"active_customers" gorm:"column:active_customers"`
	NewCustomers          int64     `ch:"new_customers" gorm:"column:new_customers"`
	ChurnedCustomers      int64     `ch:"churned_customers" gorm:"column:churned_customers"`
	AverageRevenuePerUser float64   `ch:"average_revenue_per_user" gorm:"column:average_revenue_per_user"`
	ChurnRate             float64   `ch:"churn_rate" gorm:"column:churn_rate"`
	GrowthRate            float64   `ch:"growth_rate" gorm:"column:growth_rate"`
	CalculatedAt          time.Time `ch:"calculated_at" gorm:"column:calculated_at;not null"`
}

type CohortRow struct {
	CohortMonth        string    `ch:"cohort_month" gorm:"column:cohort_month;primaryKey;size:7"`
	CohortStartDate    time.Time `ch:"cohort_start_date" gorm:"column:cohort_start_date;type:date;not null"`
	PeriodNumber       int64     `ch:"period_number" gorm:"column:period_number;primaryKey;autoIncrement:false"`
	CustomersInCohort  int64     `ch:"customers_in_cohort" gorm:"column:customers_in_cohort;not null"`
	ActiveCustomers    int64     `ch:"active_customers" gorm:"column:active_customers;not null"`
	RetentionRate      float64   `ch:"retention_rate" gorm:"column:retention_rate;not null"`
	CohortRevenue      float64   `ch:"cohort_revenue" gorm:"column:cohort_revenue"`
	RevenuePerCustomer float64   `ch:"revenue_per_customer" gorm:"column:revenue_per_customer"`
	CalculatedAt       time.Time `ch:"calculated_at" gorm:"column:calculated_at;not null"`
}

func CustomerRows(customers []billing.Customer, extractedAt time.Time) []CustomerRow {
	rows := make([]CustomerRow, 0, len(customers))
	for _, c := range customers {
		rows = append(rows, CustomerRow{
			CustomerID:           c.ID,
			Email:                c.Email,
			Name:                 c.Name,
			Description:          c.Description,
			Created:              c.Created,
			Currency:             c.Currency,
			Delinquent:           c.Delinquent,
			TestClockID:          c.TestClockID,
			DefaultPaymentMethod: c.DefaultPaymentMethod,
			Metadata:             metadataJSON(c.Metadata),
			ExtractedAt:          extractedAt,
		})
	}
	return rows
}

func SubscriptionRows(subs []billing.Subscription, extractedAt time.Time) []SubscriptionRow {
	rows := make([]SubscriptionRow, 0, len(subs))
	for _, s := range subs {
		mrr, _ := s.MRRAmount.Float64()
		rows = append(rows, SubscriptionRow{
			SubscriptionID:     s.ID,
			CustomerID:         s.CustomerID,
			Status:             s.Status,
			CurrentPeriodStart: s.CurrentPeriodStart,
			CurrentPeriodEnd:   s.CurrentPeriodEnd,
			StartDate:          optionalTime(s.StartDate),
			EndedAt:            s.EndedAt,
			CanceledAt:         s.CanceledAt,
			CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
			CollectionMethod:   s.CollectionMethod,
			Created:            s.Created,
			Currency:           s.Currency,
			PriceID:            s.PriceID,
			ProductID:          s.ProductID,
			UnitAmount:         s.UnitAmount,
			Quantity:           s.Quantity,
			MRRAmount:          mrr,
			Metadata:           metadataJSON(s.Metadata),
			ExtractedAt:        extractedAt,
		})
	}
	return rows
}

func InvoiceRows(invoices []billing.Invoice, extractedAt time.Time) []InvoiceRow {
	rows := make([]InvoiceRow, 0, len(invoices))
	for _, in := range invoices {
		rows = append(rows, InvoiceRow{
			InvoiceID:        in.ID,
			InvoiceNumber:    in.Number,
			CustomerID:       in.CustomerID,
			SubscriptionID:   in.SubscriptionID,
			Status:           in.Status,
			AmountDue:        in.AmountDue,
			AmountPaid:       in.AmountPaid,
			AmountRemaining:  in.AmountRemaining,
			Subtotal:         in.Subtotal,
			Total:            in.Total,
			Currency:         in.Currency,
			Created:          in.Created,
			DueDate:          in.DueDate,
			PeriodStart:      in.PeriodStart,
			PeriodEnd:        in.PeriodEnd,
			PaidAt:           in.PaidAt,
			CollectionMethod: in.CollectionMethod,
			HostedInvoiceURL: in.HostedInvoiceURL,
			InvoicePDF:       in.InvoicePDF,
			ExtractedAt:      extractedAt,
		})
	}
	return rows
}

func PriceRows(prices []billing.Price, extractedAt time.Time) []PriceRow {
	rows := make([]PriceRow, 0, len(prices))
	for _, p := range prices {
		rows = append(rows, PriceRow{
			PriceID:                p.ID,
			ProductID:              p.ProductID,
			Active:                 p.Active,
			Currency:               p.Currency,
			UnitAmount:             p.UnitAmount,
			RecurringInterval:      string(p.Interval),
			RecurringIntervalCount: p.IntervalCount,
			Nickname:               p.Nickname,
			Created:                p.Created,
			ExtractedAt:            extractedAt,
		})
	}
	return rows
}

func ProductRows(products []billing.Product, extractedAt time.Time) []ProductRow {
	rows := make([]ProductRow, 0, len(products))
	for _, p := range products {
		rows = append(rows, ProductRow{
			ProductID:   p.ID,
			Name:        p.Name,
			Description: p.Description,
			Active:      p.Active,
			Created:     p.Created,
			Updated:     optionalTime(p.Updated),
			ExtractedAt: extractedAt,
		})
	}
	return rows
}

func MonthlySummaryRows(summary []analytics.MonthlySummary) []MonthlySummaryRow {
	rows := make([]MonthlySummaryRow, 0, len(summary))
	for _, m := range summary {
		rows = append(rows, MonthlySummaryRow{
			MonthYear:             m.MonthYear,
			MonthStartDate:        m.MonthStartDate,
			TotalMRR:              m.TotalMRR,
			NewMRR:                m.NewMRR,
			ExpansionMRR:          m.ExpansionMRR,
			ContractionMRR:        m.ContractionMRR,
			ChurnedMRR:            m.ChurnedMRR,
			NetNewMRR:             m.NetNewMRR,
			ActiveCustomers:       int64(m.ActiveCustomers),
			NewCustomers:          int64(m.NewCustomers),
			ChurnedCustomers:      int64(m.ChurnedCustomers),
			AverageRevenuePerUser: m.AverageRevenuePerUser,
			ChurnRate:             m.ChurnRate,
			GrowthRate:            m.GrowthRate,
			CalculatedAt:          m.CalculatedAt,
		})
	}
	return rows
}

func CohortRows(cohorts []analytics.CohortRetention) []CohortRow {
	rows := make([]CohortRow, 0, len(cohorts))
	for _, c := range cohorts {
		rows = append(rows, CohortRow{
			CohortMonth:        c.CohortMonth,
			CohortStartDate:    c.CohortStartDate,
			PeriodNumber:       int64(c.PeriodNumber),
			CustomersInCohort:  int64(c.CustomersInCohort),
			ActiveCustomers:    int64(c.ActiveCustomers),
			RetentionRate:      c.RetentionRate,
			CohortRevenue:      c.CohortRevenue,
			RevenuePerCustomer: c.RevenuePerCustomer,
			CalculatedAt:       c.CalculatedAt,
		})
	}
	return rows
}

func metadataJSON(m map[string]string) datatypes.JSON {
	if len(m) == 0 {
		return datatypes.JSON("{}")
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
