package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/schollz/progressbar/v3"
	"github.com/smallbiznis/mrrlab/internal/cli"
	"github.com/smallbiznis/mrrlab/internal/clock"
	"github.com/smallbiznis/mrrlab/internal/config"
	ierr "github.com/smallbiznis/mrrlab/internal/errors"
	"github.com/smallbiznis/mrrlab/internal/observability"
	"github.com/smallbiznis/mrrlab/internal/payments/stripe"
	"github.com/smallbiznis/mrrlab/internal/scenario"
	"github.com/smallbiznis/mrrlab/internal/simulator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type options struct {
	workers      int
	seed         uint64
	seedSet      bool
	dryRun       bool
	scenarioFile string
}

func parseFlags() options {
	var opts options
	flag.IntVar(&opts.workers, "workers", 0, "clock groups simulated concurrently (defaults to SIM_WORKERS)")
	flag.Uint64Var(&opts.seed, "seed", 0, "scenario seed (defaults to the scenario file)")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "print the generated plan without calling the payments platform")
	flag.StringVar(&opts.scenarioFile, "scenario", "", "path to scenario.yml")
	flag.Parse()
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			opts.seedSet = true
		}
	})
	return opts
}

func main() {
	opts := parseFlags()

	modules := []fx.Option{
		config.Module,
		observability.Module,
		fx.Provide(cli.RegisterSnowflake),
		clock.Module,
		scenario.Module,
		fx.Decorate(func(cfg config.Config) config.Config {
			if opts.scenarioFile != "" {
				cfg.ScenarioFile = opts.scenarioFile
			}
			if opts.workers > 0 {
				cfg.Simulator.Workers = opts.workers
			}
			return cfg
		}),
		fx.Decorate(func(sc scenario.Config) scenario.Config {
			if opts.seedSet {
				sc.Seed = opts.seed
			}
			return sc
		}),
	}
	if opts.dryRun {
		modules = append(modules, fx.Invoke(registerDryRun))
	} else {
		modules = append(modules,
			stripe.Module,
			simulator.Module,
			fx.Invoke(registerGenerate),
		)
	}

	cli.Run(modules...)
}

func registerDryRun(lc fx.Lifecycle, sd fx.Shutdowner, log *zap.Logger, node *snowflake.Node, c clock.Clock, sc scenario.Config) {
	cli.Job(lc, sd, log, node, "generator.dry_run", func(ctx context.Context) error {
		scenarios, err := generate(sc)
		if err != nil {
			return err
		}
		printPlan(os.Stdout, sc, scenarios, historyStart(c, sc.HorizonMonths))
		return nil
	})
}

func registerGenerate(lc fx.Lifecycle, sd fx.Shutdowner, log *zap.Logger, node *snowflake.Node, sim *simulator.Simulator, sc scenario.Config) {
	cli.Job(lc, sd, log, node, "generator", func(ctx context.Context) error {
		scenarios, err := generate(sc)
		if err != nil {
			return err
		}
		printPlan(os.Stdout, sc, scenarios, sim.HistoryStart())

		catalog, err := sim.ProvisionCatalog(ctx)
		if err != nil {
			return ierr.Mark(err, ierr.ErrSetup)
		}

		groups := simulator.Groups(scenarios, sc.CustomersPerClock)
		bar := progressbar.Default(int64(len(groups)), "clock groups")
		sim.OnGroupDone(func(simulator.GroupResult) { _ = bar.Add(1) })

		result, err := sim.Run(ctx, catalog, scenarios)
		_ = bar.Finish()
		printResult(os.Stdout, result)
		if err != nil {
			return err
		}
		if n := len(result.Failures); n > 0 {
			return fmt.Errorf("%d entity operations failed: %w", n, cli.ErrPartial)
		}
		return nil
	})
}

func generate(sc scenario.Config) ([]scenario.Scenario, error) {
	scenarios, err := scenario.Generate(sc)
	if err != nil {
		return nil, ierr.Mark(err, ierr.ErrSetup)
	}
	return scenarios, nil
}
