package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrrlab/internal/cleanup"
	"github.com/smallbiznis/mrrlab/internal/cli"
	"github.com/smallbiznis/mrrlab/internal/clock"
	"github.com/smallbiznis/mrrlab/internal/config"
	"github.com/smallbiznis/mrrlab/internal/extract"
	"github.com/smallbiznis/mrrlab/internal/observability"
	"github.com/smallbiznis/mrrlab/internal/payments/stripe"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	confirm := flag.Bool("confirm", false, "delete every customer, subscription and test clock in the test account")
	flag.Parse()
	if !*confirm {
		fmt.Fprintln(os.Stderr, "cleanup removes all test data from the account; rerun with --confirm")
		os.Exit(cli.ExitSetup)
	}

	cli.Run(
		config.Module,
		observability.Module,
		fx.Provide(cli.RegisterSnowflake),
		clock.Module,
		stripe.Module,
		extract.Module,
		cleanup.Module,
		fx.Invoke(registerCleanup),
	)
}

func registerCleanup(lc fx.Lifecycle, sd fx.Shutdowner, log *zap.Logger, node *snowflake.Node, c *cleanup.Cleaner) {
	cli.Job(lc, sd, log, node, "cleanup", func(ctx context.Context) error {
		report, err := c.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("canceled subscriptions: %d\n", report.CanceledSubscriptions)
		fmt.Printf("deleted customers:      %d\n", report.DeletedCustomers)
		fmt.Printf("deleted test clocks:    %d\n", report.DeletedClocks)
		fmt.Printf("archived products:      %d\n", report.ArchivedProducts)
		if n := len(report.Failures); n > 0 {
			fmt.Printf("failures:               %d\n", n)
			return fmt.Errorf("%d cleanup operations failed: %w", n, cli.ErrPartial)
		}
		return nil
	})
}
