// Package cli holds the lifecycle glue shared by the batch binaries under apps/.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	ierr "github.com/smallbiznis/mrrlab/internal/errors"
	"github.com/smallbiznis/mrrlab/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Exit codes reported by the batch binaries.
const (
	ExitOK      = 0
	ExitFailed  = 1
	ExitSetup   = 2
	ExitPartial = 3
)

// ErrPartial marks a run that finished but left some entities or tables behind.
var ErrPartial = errors.New("run finished with failures")

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

// Job runs fn once the app has started and shuts the app down with an exit code derived from
// its error. Stopping the app cancels the context fn receives.
func Job(lc fx.Lifecycle, shutdowner fx.Shutdowner, log *zap.Logger, node *snowflake.Node, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				runCtx, runID := correlation.EnsureRunID(ctx, node)
				jobLog := log.With(zap.String("job", name), zap.String("run_id", runID))
				jobLog.Info("job.start")

				err := fn(runCtx)
				code := ExitCode(err)
				if err != nil {
					jobLog.Error("job.finish", zap.Error(err), zap.Int("exit_code", code))
				} else {
					jobLog.Info("job.finish")
				}
				_ = shutdowner.Shutdown(fx.ExitCode(code))
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

// Run builds the app and runs it until a Job shuts it down. A graph that fails to build is a
// setup failure: bad config, an unreachable sink or a rejected API key.
func Run(opts ...fx.Option) {
	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitSetup)
	}
	app.Run()
}

func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case ierr.IsSetup(err):
		return ExitSetup
	case errors.Is(err, ErrPartial):
		return ExitPartial
	default:
		return ExitFailed
	}
}
