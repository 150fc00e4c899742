package metrics

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config carries the labels stamped on every series and the optional pushgateway target.
type Config struct {
	ServiceName    string
	Environment    string
	PushgatewayURL string
}

const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomePartial = "partial"
)

// PipelineMetrics captures gateway, simulator and sink health for one batch run.
type PipelineMetrics struct {
	registry *prometheus.Registry

	gatewayCalls    *prometheus.CounterVec
	gatewayRetries  *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	groups          *prometheus.CounterVec
	entityFailures  *prometheus.CounterVec
	sinkRows        *prometheus.CounterVec
	sinkFailures    *prometheus.CounterVec
	sinkDuration    *prometheus.HistogramVec
	skippedRecords  *prometheus.CounterVec
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

// Pipeline returns the singleton pipeline metrics registry.
func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

// PipelineWithConfig returns the singleton registry, building it with cfg labels on first use.
func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.NewRegistry(), cfg)
	})
	return pipelineMetrics
}

// ResetPipelineMetricsForTest resets the singleton so each test observes fresh counters.
func ResetPipelineMetricsForTest() {
	pipelineMetricsOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registry *prometheus.Registry, cfg Config) *PipelineMetrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "mrrlab"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &PipelineMetrics{
		registry: registry,
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mrrlab_gateway_calls_total",
			Help:        "Payments gateway calls by operation and outcome.",
			ConstLabels: constLabels,
		}, []string{"op", "outcome"}),
		gatewayRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mrrlab_gateway_retries_total",
			Help:        "Retried payments gateway attempts by operation.",
			ConstLabels: constLabels,
		}, []string{"op"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "mrrlab_gateway_call_duration_seconds",
			Help:        "Payments gateway call latency including retries.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			ConstLabels: constLabels,
		}, []string{"op"}),
		groups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mrrlab_simulator_groups_total",
			Help:        "Simulated test clock groups by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		entityFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mrrlab_entity_failures_total",
			Help:        "Isolated per-entity failures by entity and operation.",
			ConstLabels: constLabels,
		}, []string{"entity", "op"}),
		sinkRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mrrlab_sink_rows_total",
			Help:        "Rows written to the store by table.",
			ConstLabels: constLabels,
		}, []string{"table"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mrrlab_sink_load_failures_total",
			Help:        "Failed full-replace loads by table.",
			ConstLabels: constLabels,
		}, []string{"table"}),
		sinkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "mrrlab_sink_load_duration_seconds",
			Help:        "Full-replace load latency by table.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		}, []string{"table"}),
		skippedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mrrlab_analytics_skipped_records_total",
			Help:        "Malformed records excluded from derived metrics.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
	}

	registry.MustRegister(
		m.gatewayCalls,
		m.gatewayRetries,
		m.gatewayDuration,
		m.groups,
		m.entityFailures,
		m.sinkRows,
		m.sinkFailures,
		m.sinkDuration,
		m.skippedRecords,
	)
	return m
}

func (m *PipelineMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *PipelineMetrics) ObserveGatewayCall(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.gatewayCalls.WithLabelValues(op, outcome).Inc()
	m.gatewayDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *PipelineMetrics) IncGatewayRetry(op string) {
	if m == nil {
		return
	}
	m.gatewayRetries.WithLabelValues(op).Inc()
}

func (m *PipelineMetrics) IncGroup(outcome string) {
	if m == nil {
		return
	}
	m.groups.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) IncEntityFailure(entity, op string) {
	if m == nil {
		return
	}
	m.entityFailures.WithLabelValues(entity, op).Inc()
}

func (m *PipelineMetrics) ObserveSinkLoad(table string, rows int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.sinkDuration.WithLabelValues(table).Observe(duration.Seconds())
	if err != nil {
		m.sinkFailures.WithLabelValues(table).Inc()
		return
	}
	m.sinkRows.WithLabelValues(table).Add(float64(rows))
}

func (m *PipelineMetrics) AddSkipped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skippedRecords.WithLabelValues(reason).Add(float64(n))
}

// Push sends the registry to the pushgateway; batch runs have no scrape window.
func (m *PipelineMetrics) Push(ctx context.Context, url, job string) error {
	if m == nil || strings.TrimSpace(url) == "" {
		return nil
	}
	return push.New(url, job).Gatherer(m.registry).PushContext(ctx)
}

// RegisterPush pushes the registry when the fx app stops.
func RegisterPush(lc fx.Lifecycle, cfg Config, m *PipelineMetrics, log *zap.Logger) {
	if lc == nil || strings.TrimSpace(cfg.PushgatewayURL) == "" {
		return
	}
	job := strings.TrimSpace(cfg.ServiceName)
	if job == "" {
		job = "mrrlab"
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := m.Push(ctx, cfg.PushgatewayURL, job); err != nil {
				log.Warn("metrics.push.failed", zap.String("url", cfg.PushgatewayURL), zap.Error(err))
			}
			return nil
		},
	})
}
