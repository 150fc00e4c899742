package stripe

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/mrrlab/internal/observability/metrics"
	"github.com/smallbiznis/mrrlab/internal/observability/tracing"
	"github.com/smallbiznis/mrrlab/internal/payments"
	"github.com/smallbiznis/mrrlab/internal/retry"
	"github.com/stripe/stripe-go/v82"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

// Gateway talks to the Stripe test-mode API. One client handle is built per run and shared by
// every caller; calls are paced, retried under one policy, traced and counted.
type Gateway struct {
	client  *stripe.Client
	policy  retry.Policy
	limiter *rate.Limiter
	log     *zap.Logger
	metrics *metrics.PipelineMetrics
}

var _ payments.Gateway = (*Gateway)(nil)

type Options struct {
	SecretKey       string
	Policy          retry.Policy
	RequestInterval time.Duration
	// APIURL overrides the Stripe API base URL. Empty uses the live endpoint.
	APIURL string
}

func New(opts Options, log *zap.Logger, m *metrics.PipelineMetrics) *Gateway {
	limit := rate.Inf
	if opts.RequestInterval > 0 {
		limit = rate.Every(opts.RequestInterval)
	}
	policy := opts.Policy
	policy.Retryable = IsRetryable

	return &Gateway{
		client:  stripe.NewClient(opts.SecretKey, stripe.WithBackends(newBackends(opts, log))),
		policy:  policy,
		limiter: rate.NewLimiter(limit, 1),
		log:     log.Named("payments.stripe"),
		metrics: m,
	}
}

// newBackends turns off stripe-go's own network retries so the retry policy alone bounds the
// number of requests per call. Library warnings and errors go through zap.
func newBackends(opts Options, log *zap.Logger) *stripe.Backends {
	cfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     log.Named("stripe-go").WithOptions(zap.IncreaseLevel(zapcore.WarnLevel)).Sugar(),
	}
	if opts.APIURL != "" {
		cfg.URL = stripe.String(opts.APIURL)
	}
	return stripe.NewBackendsWithConfig(cfg)
}

// call runs fn as one logical gateway operation.
func call[T any](ctx context.Context, g *Gateway, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracing.Start(ctx, "stripe."+op, attribute.String("stripe.op", op))
	start := time.Now()

	p := g.policy
	p.OnRetry = func(err error, wait time.Duration) {
		g.metrics.IncGatewayRetry(op)
		g.log.Warn("stripe.call.retry",
			zap.String("op", op),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	res, err := retry.Do(ctx, p, func(ctx context.Context) (T, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		res, err := fn(ctx)
		return res, classify(op, err)
	})

	g.metrics.ObserveGatewayCall(op, time.Since(start), err)
	tracing.End(span, err)
	return res, err
}

func idempotencyKey() *string {
	return stripe.String(uuid.NewString())
}
