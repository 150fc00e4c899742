// Command demo runs the generator and the pipeline end to end against the in-memory payments
// gateway and a local SQLite sink. No API key or warehouse is needed.
package main

import (
	"context"
	"flag"
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
	"github.com/smallbiznis/mrrlab/internal/payments"
	"github.com/smallbiznis/mrrlab/internal/payments/memory"
	"github.com/smallbiznis/mrrlab/internal/pipeline"
	"github.com/smallbiznis/mrrlab/internal/scenario"
	"github.com/smallbiznis/mrrlab/internal/simulator"
	"github.com/smallbiznis/mrrlab/internal/sink"
	"github.com/smallbiznis/mrrlab/internal/sink/sqlstore"
	"github.com/smallbiznis/mrrlab/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	dbPath := flag.String("db", "mrrlab.db", "SQLite file the tables are written to; empty keeps them in memory")
	scenarioFile := flag.String("scenario", "", "path to scenario.yml")
	flag.Parse()

	cli.Run(
		config.Module,
		observability.Module,
		fx.Provide(cli.RegisterSnowflake),
		clock.Module,
		scenario.Module,
		simulator.Module,
		extract.Module,
		pipeline.Module,
		fx.Decorate(func(cfg config.Config) config.Config {
			if *scenarioFile != "" {
				cfg.ScenarioFile = *scenarioFile
			}
			return cfg
		}),
		fx.Decorate(func(cfg simulator.Config) simulator.Config {
			cfg.SettleDelay = 0
			cfg.ClockPollInterval = 10 * time.Millisecond
			return cfg
		}),
		fx.Provide(
			func(c clock.Clock) payments.Gateway { return memory.New(c, memory.Options{}) },
			func(lc fx.Lifecycle, log *zap.Logger) (*gorm.DB, error) {
				conn, err := db.OpenLocal(*dbPath, log)
				if err != nil {
					return nil, err
				}
				lc.Append(fx.StopHook(func() error {
					sqlDB, err := conn.DB()
					if err != nil {
						return err
					}
					return sqlDB.Close()
				}))
				return conn, nil
			},
			func(conn *gorm.DB, cfg config.Config, log *zap.Logger) sink.Sink {
				return sqlstore.New(conn, cfg.Sink.BatchSize, log)
			},
		),
		fx.Invoke(registerDemo),
	)
}

type demoParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Log        *zap.Logger
	Node       *snowflake.Node
	Scenario   scenario.Config
	Simulator  *simulator.Simulator
	Pipeline   *pipeline.Pipeline
	DB         *gorm.DB
}

func registerDemo(p demoParams) {
	cli.Job(p.Lifecycle, p.Shutdowner, p.Log, p.Node, "demo", func(ctx context.Context) error {
		scenarios, err := scenario.Generate(p.Scenario)
		if err != nil {
			return ierr.Mark(err, ierr.ErrSetup)
		}
		catalog, err := p.Simulator.ProvisionCatalog(ctx)
		if err != nil {
			return ierr.Mark(err, ierr.ErrSetup)
		}
		result, err := p.Simulator.Run(ctx, catalog, scenarios)
		if err != nil {
			return err
		}
		fmt.Printf("simulated %d customers on %d clocks, active mrr %s\n\n",
			result.Customers, len(result.Groups), result.ActiveMRR().StringFixed(2))

		report, err := p.Pipeline.Run(ctx)
		if err != nil {
			if ierr.IsSetup(err) {
				return err
			}
			return fmt.Errorf("%w: %w", cli.ErrPartial, err)
		}

		var rows []sink.MonthlySummaryRow
		if err := p.DB.WithContext(ctx).Table(sink.TableMonthlySummary).Order("month_start_date").Find(&rows).Error; err != nil {
			return fmt.Errorf("read %s: %w", sink.TableMonthlySummary, err)
		}
		printSummary(os.Stdout, rows)
		fmt.Printf("\n%d cohort rows written to %s\n", report.Rows(sink.TableCohorts), sink.TableCohorts)
		return nil
	})
}

func printSummary(w io.Writer, rows []sink.MonthlySummaryRow) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	defer tw.Flush()

	fmt.Fprintln(tw, "month\ttotal mrr\tnew\tchurned\tnet new\tactive\tarpu\tchurn %\tgrowth %\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t%.2f\t%.2f\t%.2f\t\n",
			r.MonthYear, r.TotalMRR, r.NewMRR, r.ChurnedMRR, r.NetNewMRR,
			r.ActiveCustomers, r.AverageRevenuePerUser, r.ChurnRate, r.GrowthRate)
	}
}
