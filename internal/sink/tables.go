package sink

const (
	TableCustomers      = "customers"
	TableSubscriptions  = "subscriptions"
	TableInvoices       = "invoices"
	TablePrices         = "prices"
	TableProducts       = "products"
	TableMonthlySummary = "mrr_monthly_summary"
	TableCohorts        = "customer_cohorts"
)

func col(name string, t ColumnType) Column { return Column{Name: name, Type: t} }

func nullable(name string, t ColumnType) Column { return Column{Name: name, Type: t, Nullable: true} }

// Tables returns every table the pipeline loads, raw tables first.
func Tables() []Table {
	return []Table{
		{
			Name: TableCustomers,
			Columns: []Column{
				col("customer_id", TypeString),
				col("email", TypeString),
				col("name", TypeString),
				col("description", TypeString),
				col("created", TypeTimestamp),
				col("currency", TypeString),
				col("delinquent", TypeBool),
				col("test_clock_id", TypeString),
				col("default_payment_method", TypeString),
				col("metadata", TypeJSON),
				col("extracted_at", TypeTimestamp),
			},
			Key:       []string{"customer_id"},
			Partition: "extracted_at",
			Model:     &CustomerRow{},
		},
		{
			Name: TableSubscriptions,
			Columns: []Column{
				col("subscription_id", TypeString),
				col("customer_id", TypeString),
				col("status", TypeString),
				nullable("current_period_start", TypeTimestamp),
				nullable("current_period_end", TypeTimestamp),
				nullable("start_date", TypeTimestamp),
				nullable("ended_at", TypeTimestamp),
				nullable("canceled_at", TypeTimestamp),
				col("cancel_at_period_end", TypeBool),
				col("collection_method", TypeString),
				col("created", TypeTimestamp),
				col("currency", TypeString),
				col("price_id", TypeString),
				col("product_id", TypeString),
				col("unit_amount", TypeInt64),
				col("quantity", TypeInt64),
				col("mrr_amount", TypeFloat64),
				col("metadata", TypeJSON),
				col("extracted_at", TypeTimestamp),
			},
			Key:       []string{"subscription_id"},
			Partition: "extracted_at",
			Cluster:   []string{"status", "customer_id"},
			Model:     &SubscriptionRow{},
		},
		{
			Name: TableInvoices,
			Columns: []Column{
				col("invoice_id", TypeString),
				col("invoice_number", TypeString),
				col("customer_id", TypeString),
				col("subscription_id", TypeString),
				col("status", TypeString),
				col("amount_due", TypeInt64),
				col("amount_paid", TypeInt64),
				col("amount_remaining", TypeInt64),
				col("subtotal", TypeInt64),
				col("total", TypeInt64),
				col("currency", TypeString),
				col("created", TypeTimestamp),
				nullable("due_date", TypeTimestamp),
				nullable("period_start", TypeTimestamp),
				nullable("period_end", TypeTimestamp),
				nullable("paid_at", TypeTimestamp),
				col("collection_method", TypeString),
				col("hosted_invoice_url", TypeString),
				col("invoice_pdf", TypeString),
				col("extracted_at", TypeTimestamp),
			},
			Key:       []string{"invoice_id"},
			Partition: "extracted_at",
			Cluster:   []string{"status", "customer_id"},
			Model:     &InvoiceRow{},
		},
		{
			Name: TablePrices,
			Columns: []Column{
				col("price_id", TypeString),
				col("product_id", TypeString),
				col("active", TypeBool),
				col("currency", TypeString),
				col("unit_amount", TypeInt64),
				col("recurring_interval", TypeString),
				col("recurring_interval_count", TypeInt64),
				col("nickname", TypeString),
				col("created", TypeTimestamp),
				col("extracted_at", TypeTimestamp),
			},
			Key:       []string{"price_id"},
			Partition: "extracted_at",
			Model:     &PriceRow{},
		},
		{
			Name: TableProducts,
			Columns: []Column{
				col("product_id", TypeString),
				col("name", TypeString),
				col("description", TypeString),
				col("active", TypeBool),
				col("created", TypeTimestamp),
				nullable("updated", TypeTimestamp),
				col("extracted_at", TypeTimestamp),
			},
			Key:       []string{"product_id"},
			Partition: "extracted_at",
			Model:     &ProductRow{},
		},
		{
			Name: TableMonthlySummary,
			Columns: []Column{
				col("month_year", TypeString),
				col("month_start_date", TypeDate),
				col("total_mrr", TypeFloat64),
				col("new_mrr", TypeFloat64),
				col("expansion_mrr", TypeFloat64),
				col("contraction_mrr", TypeFloat64),
				col("churned_mrr", TypeFloat64),
				col("net_new_mrr", TypeFloat64),
				col("active_customers", TypeInt64),
				col("new_customers", TypeInt64),
				col("churned_customers", TypeInt64),
				col("average_revenue_per_user", TypeFloat64),
				col("churn_rate", TypeFloat64),
				col("growth_rate", TypeFloat64),
				col("calculated_at", TypeTimestamp),
			},
			Key:       []string{"month_year"},
			Partition: "calculated_at",
			Cluster:   []string{"month_start_date"},
			Model:     &MonthlySummaryRow{},
		},
		{
			Name: TableCohorts,
			Columns: []Column{
				col("cohort_month", TypeString),
				col("cohort_start_date", TypeDate),
				col("period_number", TypeInt64),
				col("customers_in_cohort", TypeInt64),
				col("active_customers", TypeInt64),
				col("retention_rate", TypeFloat64),
				col("cohort_revenue", TypeFloat64),
				col("revenue_per_customer", TypeFloat64),
				col("calculated_at", TypeTimestamp),
			},
			Key:       []string{"cohort_month", "period_number"},
			Partition: "calculated_at",
			Cluster:   []string{"cohort_start_date"},
			Model:     &CohortRow{},
		},
	}
}
