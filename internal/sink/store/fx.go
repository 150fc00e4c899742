// Package store selects the sink implementation from configuration.
package store

import (
	"context"
	"fmt"

	"github.com/smallbiznis/mrrlab/internal/config"
	"github.com/smallbiznis/mrrlab/internal/sink"
	"github.com/smallbiznis/mrrlab/internal/sink/clickhouse"
	"github.com/smallbiznis/mrrlab/internal/sink/sqlstore"
	"github.com/smallbiznis/mrrlab/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("sink",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// New opens the configured sink and closes it when the app stops.
func New(p Params) (sink.Sink, error) {
	s, err := Open(context.Background(), p.Config, p.Log)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return s.Close()
		},
	})
	return s, nil
}

func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (sink.Sink, error) {
	switch cfg.Sink.Driver {
	case config.SinkDriverClickHouse:
		return clickhouse.Open(ctx, cfg.ClickHouse, cfg.Sink.BatchSize, log)
	case config.SinkDriverSQL:
		conn, err := db.Open(db.FromAppConfig(cfg), log)
		if err != nil {
			return nil, err
		}
		return sqlstore.New(conn, cfg.Sink.BatchSize, log), nil
	default:
		return nil, fmt.Errorf("unsupported sink driver %q", cfg.Sink.Driver)
	}
}
