package stripe

import (
	"github.com/smallbiznis/mrrlab/internal/config"
	"github.com/smallbiznis/mrrlab/internal/observability/metrics"
	"github.com/smallbiznis/mrrlab/internal/payments"
	"github.com/smallbiznis/mrrlab/internal/retry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payments.stripe",
	fx.Provide(NewFromConfig),
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Metrics *metrics.PipelineMetrics
}

// NewFromConfig refuses to build a gateway for anything but a test-mode key.
func NewFromConfig(p Params) (payments.Gateway, error) {
	if err := p.Config.ValidateStripeKey(); err != nil {
		return nil, err
	}
	return New(Options{
		SecretKey:       p.Config.Stripe.SecretKey,
		Policy:          retry.FromConfig(p.Config.Retry),
		RequestInterval: p.Config.Stripe.RequestInterval,
	}, p.Log, p.Metrics), nil
}
