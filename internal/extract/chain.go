package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/mrrlab/internal/observability/logger"
	"github.com/smallbiznis/mrrlab/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	// ErrNoStrategy is returned by a chain without strategies.
	ErrNoStrategy = errors.New("no extraction strategy configured")
	// ErrNotApplicable is returned by a strategy that has nothing to fan out over. The chain skips
	// it without counting it as a success or a failure.
	ErrNotApplicable = errors.New("extraction strategy not applicable")
)

// Strategy is one way of listing records of a kind.
type Strategy[T any] interface {
	Name() string
	Fetch(ctx context.Context) ([]T, error)
}

type strategyFunc[T any] struct {
	name  string
	fetch func(ctx context.Context) ([]T, error)
}

func (s strategyFunc[T]) Name() string { return s.name }

func (s strategyFunc[T]) Fetch(ctx context.Context) ([]T, error) { return s.fetch(ctx) }

// NewStrategy adapts fetch into a named Strategy.
func NewStrategy[T any](name string, fetch func(ctx context.Context) ([]T, error)) Strategy[T] {
	return strategyFunc[T]{name: name, fetch: fetch}
}

// Chain tries strategies in order and keeps the first one that succeeds with records. It fails
// only when every strategy failed; successful but empty strategies yield an empty result.
type Chain[T any] struct {
	Entity     string
	Strategies []Strategy[T]
}

// Fetch returns the records and the name of the strategy that produced them.
func (c Chain[T]) Fetch(ctx context.Context, log *zap.Logger) ([]T, string, error) {
	if len(c.Strategies) == 0 {
		return nil, "", ErrNoStrategy
	}
	log = logger.WithContext(ctx, log).With(zap.String("entity", c.Entity))

	var (
		errs      []error
		succeeded bool
	)
	for _, s := range c.Strategies {
		records, err := c.try(ctx, s)
		if errors.Is(err, ErrNotApplicable) {
			log.Debug("extract.strategy.skipped", zap.String("strategy", s.Name()))
			continue
		}
		if err != nil {
			log.Warn("extract.strategy.failed", zap.String("strategy", s.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		succeeded = true
		if len(records) > 0 {
			log.Info("extract.strategy.selected", zap.String("strategy", s.Name()), zap.Int("records", len(records)))
			return records, s.Name(), nil
		}
		log.Debug("extract.strategy.empty", zap.String("strategy", s.Name()))
	}

	if succeeded || len(errs) == 0 {
		return nil, "", nil
	}
	return nil, "", fmt.Errorf("extract %s: %w", c.Entity, errors.Join(errs...))
}

func (c Chain[T]) try(ctx context.Context, s Strategy[T]) ([]T, error) {
	ctx, span := tracing.Start(ctx, "extract."+c.Entity,
		attribute.String("extract.entity", c.Entity),
		attribute.String("extract.strategy", s.Name()),
	)
	records, err := s.Fetch(ctx)
	span.SetAttributes(attribute.Int("extract.records", len(records)))
	if errors.Is(err, ErrNotApplicable) {
		tracing.End(span, nil)
		return nil, err
	}
	tracing.End(span, err)
	return records, err
}
