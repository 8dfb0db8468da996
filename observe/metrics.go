package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records registry activity.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordAcquire records one acquire call. hit reports whether an
	// existing entry was returned.
	RecordAcquire(ctx context.Context, meta ResourceMeta, hit bool)

	// RecordOpen records one open attempt with its duration. errKind is
	// empty on success, otherwise the classified failure kind. A successful
	// open also counts as one live entry.
	RecordOpen(ctx context.Context, meta ResourceMeta, duration time.Duration, errKind string)

	// RecordClose records one entry teardown.
	RecordClose(ctx context.Context, meta ResourceMeta)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter        metric.Meter
	acquireCount metric.Int64Counter
	openCount    metric.Int64Counter
	openErrors   metric.Int64Counter
	closeCount   metric.Int64Counter
	entries      metric.Int64UpDownCounter
	openDuration metric.Float64Histogram
}

// NewMetrics creates a Metrics instance using the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	acquireCount, err := meter.Int64Counter(
		"registry.acquire.total",
		metric.WithDescription("Total number of acquire calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	openCount, err := meter.Int64Counter(
		"registry.open.total",
		metric.WithDescription("Total number of connection open attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	openErrors, err := meter.Int64Counter(
		"registry.open.errors",
		metric.WithDescription("Total number of failed connection opens"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	closeCount, err := meter.Int64Counter(
		"registry.close.total",
		metric.WithDescription("Total number of connection closes"),
		metric.WithUnit("{close}"),
	)
	if err != nil {
		return nil, err
	}

	entries, err := meter.Int64UpDownCounter(
		"registry.entries",
		metric.WithDescription("Number of live registry entries"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	openDuration, err := meter.Float64Histogram(
		"registry.open.duration_ms",
		metric.WithDescription("Connection open duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:        meter,
		acquireCount: acquireCount,
		openCount:    openCount,
		openErrors:   openErrors,
		closeCount:   closeCount,
		entries:      entries,
		openDuration: openDuration,
	}, nil
}

func modeAttrs(meta ResourceMeta) []attribute.KeyValue {
	if meta.Mode == "" {
		return nil
	}
	return []attribute.KeyValue{attribute.String("resource.mode", meta.Mode)}
}

// RecordAcquire records one acquire call.
func (m *metricsImpl) RecordAcquire(ctx context.Context, meta ResourceMeta, hit bool) {
	attrs := append(modeAttrs(meta), attribute.Bool("registry.hit", hit))
	m.acquireCount.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOpen records one open attempt.
func (m *metricsImpl) RecordOpen(ctx context.Context, meta ResourceMeta, duration time.Duration, errKind string) {
	opt := metric.WithAttributes(modeAttrs(meta)...)

	m.openCount.Add(ctx, 1, opt)
	m.openDuration.Record(ctx, float64(duration.Milliseconds()), opt)

	if errKind != "" {
		attrs := append(modeAttrs(meta), attribute.String("error.kind", errKind))
		m.openErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
		return
	}

	m.entries.Add(ctx, 1, opt)
}

// RecordClose records one entry teardown.
func (m *metricsImpl) RecordClose(ctx context.Context, meta ResourceMeta) {
	opt := metric.WithAttributes(modeAttrs(meta)...)
	m.closeCount.Add(ctx, 1, opt)
	m.entries.Add(ctx, -1, opt)
}

// nopMetrics is a metrics implementation that does nothing.
type nopMetrics struct{}

// NewNopMetrics returns a Metrics that records nothing.
func NewNopMetrics() Metrics {
	return &nopMetrics{}
}

func (m *nopMetrics) RecordAcquire(ctx context.Context, meta ResourceMeta, hit bool) {}
func (m *nopMetrics) RecordOpen(ctx context.Context, meta ResourceMeta, duration time.Duration, errKind string) {
}
func (m *nopMetrics) RecordClose(ctx context.Context, meta ResourceMeta) {}

// Ensure implementations satisfy Metrics
var (
	_ Metrics = (*metricsImpl)(nil)
	_ Metrics = (*nopMetrics)(nil)
)
