package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Generation outcomes
const (
	OutcomeSuccess    = "success"
	OutcomeEmpty      = "empty"
	OutcomeCredential = "credential_error"
	OutcomeFailure    = "failure"
)

// Metrics holds the domain instruments
type Metrics struct {
	gateArmed           metric.Int64Counter
	gateCompleted       metric.Int64Counter
	gateCancelled       metric.Int64Counter
	generations         metric.Int64Counter
	generationDuration  metric.Float64Histogram
	persistenceFailures metric.Int64Counter
	workspaces          metric.Int64UpDownCounter
}

// NewMetrics registers the domain instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.gateArmed, err = meter.Int64Counter("oficiogen.adgate.armed",
		metric.WithDescription("Ad gates armed by a send")); err != nil {
		return nil, err
	}
	if m.gateCompleted, err = meter.Int64Counter("oficiogen.adgate.completed",
		metric.WithDescription("Ad gates traversed to completion")); err != nil {
		return nil, err
	}
	if m.gateCancelled, err = meter.Int64Counter("oficiogen.adgate.cancelled",
		metric.WithDescription("Ad gates closed before completion")); err != nil {
		return nil, err
	}
	if m.generations, err = meter.Int64Counter("oficiogen.generations",
		metric.WithDescription("Generation turns by outcome")); err != nil {
		return nil, err
	}
	if m.generationDuration, err = meter.Float64Histogram("oficiogen.generation.duration",
		metric.WithDescription("Generation call latency"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.persistenceFailures, err = meter.Int64Counter("oficiogen.store.failures",
		metric.WithDescription("Swallowed persistence failures by operation")); err != nil {
		return nil, err
	}
	if m.workspaces, err = meter.Int64UpDownCounter("oficiogen.workspaces.active",
		metric.WithDescription("Live profile workspaces")); err != nil {
		return nil, err
	}

	return m, nil
}

// NopMetrics returns instruments that record nothing
func NopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("nop"))
	return m
}

func (m *Metrics) GateArmed(ctx context.Context)     { m.gateArmed.Add(ctx, 1) }
func (m *Metrics) GateCompleted(ctx context.Context) { m.gateCompleted.Add(ctx, 1) }
func (m *Metrics) GateCancelled(ctx context.Context) { m.gateCancelled.Add(ctx, 1) }

// Generation records one generation turn
func (m *Metrics) Generation(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.generations.Add(ctx, 1, attrs)
	m.generationDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// PersistenceFailure counts a swallowed store error
func (m *Metrics) PersistenceFailure(ctx context.Context, op string) {
	m.persistenceFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Metrics) WorkspaceOpened(ctx context.Context) { m.workspaces.Add(ctx, 1) }
func (m *Metrics) WorkspaceClosed(ctx context.Context) { m.workspaces.Add(ctx, -1) }
