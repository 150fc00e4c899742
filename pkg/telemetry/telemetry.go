package telemetry

import (
	"context"

	"github.com/smallbiznis/mrrlab/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"
)

// NewRunSpanProcessor stamps every span with the run id carried on its start context.
func NewRunSpanProcessor() trace.SpanProcessor {
	return &runSpanProcessor{}
}

type runSpanProcessor struct{}

func (p *runSpanProcessor) OnStart(ctx context.Context, s trace.ReadWriteSpan) {
	if id := correlation.RunIDFromContext(ctx); id != "" {
		s.SetAttributes(attribute.String("run_id", id))
	}
}

func (p *runSpanProcessor) OnEnd(trace.ReadOnlySpan) {}

func (p *runSpanProcessor) Shutdown(context.Context) error { return nil }

func (p *runSpanProcessor) ForceFlush(context.Context) error { return nil }
