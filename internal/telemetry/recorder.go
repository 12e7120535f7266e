package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"syncqueue/internal/logging"
)

// MeterName scopes every instrument created by this package.
const MeterName = "syncqueue"

// Recorder receives engine transition counts.
type Recorder interface {
	// ActionDispatched counts a dispatch handed to the network collaborator.
	ActionDispatched(ctx context.Context)
	// ActionSucceeded counts a success signal for the head action.
	ActionSucceeded(ctx context.Context)
	// ActionFailed counts a transient failure signal for the head action.
	ActionFailed(ctx context.Context)
	// ActionRemoved counts a head removal tagged with its reason.
	ActionRemoved(ctx context.Context, reason string)
}

type otelRecorder struct {
	dispatched metric.Int64Counter
	succeeded  metric.Int64Counter
	failed     metric.Int64Counter
	removed    metric.Int64Counter
}

func newOtelRecorder(provider metric.MeterProvider) (*otelRecorder, error) {
	meter := provider.Meter(MeterName)

	dispatched, err := meter.Int64Counter("syncqueue.actions.dispatched",
		metric.WithDescription("Number of actions handed to the dispatcher"),
	)
	if err != nil {
		return nil, err
	}
	succeeded, err := meter.Int64Counter("syncqueue.actions.succeeded",
		metric.WithDescription("Number of success signals received"),
	)
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("syncqueue.actions.failed",
		metric.WithDescription("Number of transient failure signals received"),
	)
	if err != nil {
		return nil, err
	}
	removed, err := meter.Int64Counter("syncqueue.actions.removed",
		metric.WithDescription("Number of actions removed from the head of the queue"),
	)
	if err != nil {
		return nil, err
	}

	return &otelRecorder{
		dispatched: dispatched,
		succeeded:  succeeded,
		failed:     failed,
		removed:    removed,
	}, nil
}

// NewRecorder returns an OpenTelemetry backed Recorder. A nil provider uses
// the global meter provider. Instrument creation failures fall back to
// NoopRecorder.
func NewRecorder(provider metric.MeterProvider, logger *slog.Logger) Recorder {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	r, err := newOtelRecorder(provider)
	if err != nil {
		logging.WarnWithContext(logging.NewComponentLogger(logger, "telemetry"),
			"metrics initialization failed, using no-op recorder", "telemetry_init_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "queue counters will not be exported"))
		return NoopRecorder{}
	}
	return r
}

func (r *otelRecorder) ActionDispatched(ctx context.Context) {
	r.dispatched.Add(ctx, 1)
}

func (r *otelRecorder) ActionSucceeded(ctx context.Context) {
	r.succeeded.Add(ctx, 1)
}

func (r *otelRecorder) ActionFailed(ctx context.Context) {
	r.failed.Add(ctx, 1)
}

func (r *otelRecorder) ActionRemoved(ctx context.Context, reason string) {
	r.removed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// NoopRecorder discards every count.
type NoopRecorder struct{}

var _ Recorder = NoopRecorder{}

func (NoopRecorder) ActionDispatched(context.Context) {}

func (NoopRecorder) ActionSucceeded(context.Context) {}

func (NoopRecorder) ActionFailed(context.Context) {}

func (NoopRecorder) ActionRemoved(context.Context, string) {}
