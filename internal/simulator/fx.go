package simulator

import (
	"github.com/smallbiznis/mrrlab/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("simulator",
	fx.Provide(func(cfg config.Config) Config { return FromAppConfig(cfg.Simulator) }),
	fx.Provide(New),
)
