package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrrlab/internal/cli"
	"github.com/smallbiznis/mrrlab/internal/clock"
	"github.com/smallbiznis/mrrlab/internal/config"
	ierr "github.com/smallbiznis/mrrlab/internal/errors"
	"github.com/smallbiznis/mrrlab/internal/extract"
	"github.com/smallbiznis/mrrlab/internal/observability"
	"github.com/smallbiznis/mrrlab/internal/payments/stripe"
	"github.com/smallbiznis/mrrlab/internal/pipeline"
	"github.com/smallbiznis/mrrlab/internal/sink/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	cli.Run(
		config.Module,
		observability.Module,
		fx.Provide(cli.RegisterSnowflake),
		clock.Module,
		stripe.Module,
		extract.Module,
		store.Module,
		pipeline.Module,
		fx.Invoke(registerPipeline),
	)
}

func registerPipeline(lc fx.Lifecycle, sd fx.Shutdowner, log *zap.Logger, node *snowflake.Node, p *pipeline.Pipeline) {
	cli.Job(lc, sd, log, node, "pipeline", func(ctx context.Context) error {
		report, err := p.Run(ctx)
		printReport(os.Stdout, report)
		if err != nil && !ierr.IsSetup(err) {
			return fmt.Errorf("%w: %w", cli.ErrPartial, err)
		}
		return err
	})
}

func printReport(w io.Writer, report pipeline.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "run\t%s\n", report.RunID)
	fmt.Fprintf(tw, "duration\t%s\n", report.Duration.Round(time.Millisecond))
	for _, entity := range []string{extract.EntityCustomers, extract.EntitySubscriptions, extract.EntityInvoices} {
		if strategy, ok := report.Strategies[entity]; ok {
			fmt.Fprintf(tw, "%s strategy\t%s\n", entity, strategy)
		}
	}
	if report.PartialFailures > 0 {
		fmt.Fprintf(tw, "partial fetch failures\t%d\n", report.PartialFailures)
	}
	if report.SkippedSubscriptions > 0 {
		fmt.Fprintf(tw, "malformed subscriptions\t%d\n", report.SkippedSubscriptions)
	}

	fmt.Fprintln(tw, "\ntable\trows\ttook\tstatus")
	for _, t := range report.Tables {
		status := "ok"
		switch {
		case t.Skipped:
			status = "skipped"
		case t.Err != nil:
			status = "failed: " + t.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", t.Table, t.Rows, t.Duration.Round(time.Millisecond), status)
	}
}
