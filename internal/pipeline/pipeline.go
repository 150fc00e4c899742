// Package pipeline runs one extract, load and compute pass: raw records are pulled from the
// payments platform, loaded table by table, and the monthly summary and cohort tables are derived
// from the same snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrrlab/internal/analytics"
	"github.com/smallbiznis/mrrlab/internal/billing"
	"github.com/smallbiznis/mrrlab/internal/clock"
	ierr "github.com/smallbiznis/mrrlab/internal/errors"
	"github.com/smallbiznis/mrrlab/internal/extract"
	"github.com/smallbiznis/mrrlab/internal/observability/logger"
	"github.com/smallbiznis/mrrlab/internal/observability/metrics"
	"github.com/smallbiznis/mrrlab/internal/observability/tracing"
	"github.com/smallbiznis/mrrlab/internal/sink"
	"github.com/smallbiznis/mrrlab/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid pipeline config")

const skippedMalformed = "malformed_subscription"

var Module = fx.Module("pipeline",
	fx.Provide(
		provideSource,
		New,
	),
)

// Source produces the snapshot a run loads. *extract.Extractor satisfies it.
type Source interface {
	Extract(ctx context.Context) (billing.Snapshot, extract.Report, error)
}

func provideSource(e *extract.Extractor) Source { return e }

type Params struct {
	fx.In

	Source  Source
	Sink    sink.Sink
	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node          `optional:"true"`
	Metrics *metrics.PipelineMetrics `optional:"true"`
}

type Pipeline struct {
	source  Source
	sink    sink.Sink
	log     *zap.Logger
	clock   clock.Clock
	genID   *snowflake.Node
	metrics *metrics.PipelineMetrics
}

func New(p Params) (*Pipeline, error) {
	if p.Source == nil || p.Sink == nil || p.Log == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Pipeline{
		source:  p.Source,
		sink:    p.Sink,
		log:     p.Log.Named("pipeline"),
		clock:   p.Clock,
		genID:   p.GenID,
		metrics: p.Metrics,
	}, nil
}

type TableResult struct {
	Table    string
	Rows     int
	Duration time.Duration
	// Skipped is set when the table was not loaded because its source records are missing.
	Skipped bool
	Err     error
}

type Report struct {
	RunID      string
	StartedAt  time.Time
	Duration   time.Duration
	Strategies map[string]string
	Tables     []TableResult
	// SkippedSubscriptions counts malformed subscriptions left out of the derived tables.
	SkippedSubscriptions int
	PartialFailures      int
}

// Rows returns the rows written to table, or zero when it was not loaded.
func (r Report) Rows(table string) int {
	for _, t := range r.Tables {
		if t.Table == table {
			return t.Rows
		}
	}
	return 0
}

// Err joins the failures of every table.
func (r Report) Err() error {
	var errs []error
	for _, t := range r.Tables {
		if t.Err != nil {
			errs = append(errs, t.Err)
		}
	}
	return errors.Join(errs...)
}

type load struct {
	table string
	batch sink.Batch
	// cause is set when the table's source records could not be extracted.
	cause error
}

// Run executes a full pass. Setup failures abort and are marked ierr.ErrSetup; table failures
// are isolated, recorded in the report and joined into the returned error.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	ctx, runID := correlation.EnsureRunID(ctx, p.genID)
	ctx, span := tracing.Start(ctx, "pipeline.run")
	started := p.clock.Now().UTC()
	report := Report{RunID: runID, StartedAt: started}
	log := logger.WithContext(ctx, p.log)
	log.Info("pipeline.run.start")

	err := p.run(ctx, log, &report)
	report.Duration = p.clock.Now().Sub(started)
	tracing.End(span, err)
	if err != nil {
		log.Error("pipeline.run.failed", zap.Error(err), zap.Duration("duration", report.Duration))
		return report, err
	}

	if err := report.Err(); err != nil {
		log.Warn("pipeline.run.finish", zap.Error(err), zap.Duration("duration", report.Duration))
		return report, err
	}
	log.Info("pipeline.run.finish",
		zap.Int("tables", len(report.Tables)),
		zap.Int("skipped_subscriptions", report.SkippedSubscriptions),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, log *zap.Logger, report *Report) error {
	if err := p.sink.Ensure(ctx, sink.Tables()); err != nil {
		return ierr.Mark(fmt.Errorf("prepare tables: %w", err), ierr.ErrSetup)
	}

	snapshot, extracted, err := p.source.Extract(ctx)
	if err != nil {
		return ierr.Mark(fmt.Errorf("extract: %w", err), ierr.ErrSetup)
	}
	report.Strategies = extracted.Strategies
	report.PartialFailures = len(extracted.Partial)

	loads := rawLoads(snapshot, extracted)
	loads = append(loads, p.derivedLoads(snapshot, extracted, report)...)

	for _, l := range loads {
		if err := ctx.Err(); err != nil {
			return err
		}
		result := p.load(ctx, log, l)
		report.Tables = append(report.Tables, result)
	}
	return nil
}

func rawLoads(snapshot billing.Snapshot, extracted extract.Report) []load {
	at := snapshot.ExtractedAt
	raw := []struct {
		entity string
		table  string
		batch  func() sink.Batch
	}{
		{extract.EntityCustomers, sink.TableCustomers, func() sink.Batch { return sink.NewBatch(sink.CustomerRows(snapshot.Customers, at)) }},
		{extract.EntitySubscriptions, sink.TableSubscriptions, func() sink.Batch { return sink.NewBatch(sink.SubscriptionRows(snapshot.Subscriptions, at)) }},
		{extract.EntityInvoices, sink.TableInvoices, func() sink.Batch { return sink.NewBatch(sink.InvoiceRows(snapshot.Invoices, at)) }},
		{extract.EntityPrices, sink.TablePrices, func() sink.Batch { return sink.NewBatch(sink.PriceRows(snapshot.Prices, at)) }},
		{extract.EntityProducts, sink.TableProducts, func() sink.Batch { return sink.NewBatch(sink.ProductRows(snapshot.Products, at)) }},
	}

	loads := make([]load, 0, len(raw))
	for _, r := range raw {
		if !extracted.OK(r.entity) {
			loads = append(loads, load{table: r.table, cause: extracted.Failed[r.entity]})
			continue
		}
		loads = append(loads, load{table: r.table, batch: r.batch()})
	}
	return loads
}

// derivedLoads computes the summary and cohort tables. Without subscriptions the previous
// derived tables are kept.
func (p *Pipeline) derivedLoads(snapshot billing.Snapshot, extracted extract.Report, report *Report) []load {
	if !extracted.OK(extract.EntitySubscriptions) {
		cause := fmt.Errorf("subscriptions not extracted: %w", extracted.Failed[extract.EntitySubscriptions])
		return []load{
			{table: sink.TableMonthlySummary, cause: cause},
			{table: sink.TableCohorts, cause: cause},
		}
	}

	now := p.clock.Now().UTC()
	summary := analytics.ComputeMonthlySummary(snapshot.Subscriptions, now)
	cohorts := analytics.ComputeCohorts(snapshot.Subscriptions, now)
	report.SkippedSubscriptions = summary.Skipped
	p.metrics.AddSkipped(skippedMalformed, summary.Skipped)

	return []load{
		{table: sink.TableMonthlySummary, batch: sink.NewBatch(sink.MonthlySummaryRows(summary.Rows))},
		{table: sink.TableCohorts, batch: sink.NewBatch(sink.CohortRows(cohorts.Rows))},
	}
}

func (p *Pipeline) load(ctx context.Context, log *zap.Logger, l load) TableResult {
	log = log.With(zap.String("table", l.table))
	if l.cause != nil {
		log.Warn("pipeline.table.skipped", zap.Error(l.cause))
		return TableResult{Table: l.table, Skipped: true, Err: fmt.Errorf("load %s: %w", l.table, l.cause)}
	}

	table, err := sink.Lookup(l.table)
	if err != nil {
		return TableResult{Table: l.table, Err: err}
	}

	ctx, span := tracing.Start(ctx, "sink.replace",
		attribute.String("sink.table", l.table),
		attribute.Int("sink.rows", l.batch.Len()),
	)
	start := p.clock.Now()
	rows, err := p.sink.Replace(ctx, table, l.batch)
	elapsed := p.clock.Now().Sub(start)
	tracing.End(span, err)
	p.metrics.ObserveSinkLoad(l.table, rows, elapsed, err)

	if err != nil {
		log.Error("pipeline.table.failed", zap.Error(err))
		return TableResult{Table: l.table, Rows: rows, Duration: elapsed, Err: fmt.Errorf("load %s: %w", l.table, err)}
	}
	log.Info("pipeline.table.loaded", zap.Int("rows", rows), zap.Duration("took", elapsed))
	return TableResult{Table: l.table, Rows: rows, Duration: elapsed}
}
