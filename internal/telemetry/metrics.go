package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics counts artifacts moved and errors hit per sync cycle.
type SyncMetrics struct {
	pushed metric.Int64Counter
	pulled metric.Int64Counter
	errors metric.Int64Counter
}

// NewSyncMetrics registers the engine's counters on the global meter. With
// telemetry disabled these are no-ops.
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := Meter("")

	pushed, err := meter.Int64Counter("bridgesync.artifacts.pushed",
		metric.WithDescription("Artifacts created on the tracker side"))
	if err != nil {
		return nil, err
	}
	pulled, err := meter.Int64Counter("bridgesync.artifacts.pulled",
		metric.WithDescription("Artifacts created or updated on the hub side"))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("bridgesync.artifacts.errors",
		metric.WithDescription("Artifacts skipped due to errors"))
	if err != nil {
		return nil, err
	}
	return &SyncMetrics{pushed: pushed, pulled: pulled, errors: errs}, nil
}

// Pushed records one artifact created on the tracker.
func (m *SyncMetrics) Pushed(ctx context.Context, projectID int) {
	if m == nil {
		return
	}
	m.pushed.Add(ctx, 1, metric.WithAttributes(attribute.Int("hub.project", projectID)))
}

// Pulled records one artifact created or updated on the hub.
func (m *SyncMetrics) Pulled(ctx context.Context, projectID int, kind string) {
	if m == nil {
		return
	}
	m.pulled.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("hub.project", projectID),
		attribute.String("artifact", kind),
	))
}

// Errored records one artifact skipped after an error.
func (m *SyncMetrics) Errored(ctx context.Context, projectID int, phase string) {
	if m == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("hub.project", projectID),
		attribute.String("phase", phase),
	))
}
