package agentops

import (
	"time"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ttProviderOption customizes newTracerProvider beyond the required
// resource and exporter.
type ttProviderOption func(*providerBuild)

type providerBuild struct {
	queueCapacity        int
	drainInterval        time.Duration
	liveSnapshotInterval time.Duration
}

// withQueueCapacity overrides the batch processor's ring-buffer size.
func withQueueCapacity(n int) ttProviderOption {
	return func(b *providerBuild) { b.queueCapacity = n }
}

// withDrainInterval overrides how often the batch processor drains.
func withDrainInterval(d time.Duration) ttProviderOption {
	return func(b *providerBuild) { b.drainInterval = d }
}

// withLiveSnapshotInterval overrides how often in-flight spans are
// re-exported.
func withLiveSnapshotInterval(d time.Duration) ttProviderOption {
	return func(b *providerBuild) { b.liveSnapshotInterval = d }
}

// tracerProvider bundles the sdktrace.TracerProvider together with the two
// hand-rolled processors backing it, so Shutdown/Diagnose can reach the
// batch processor's dropped counter directly.
type tracerProvider struct {
	*sdktrace.TracerProvider
	live  *liveProcessor
	batch *batchProcessor
}

// newTracerProvider wires a live-snapshot processor and a bounded-ring-
// buffer batch processor in series ahead of exp, both hand-rolled against
// sdktrace.SpanProcessor rather than using sdktrace.WithBatcher, whose
// drop-newest-on-full semantics don't match the drop-oldest behavior
// required when the export queue saturates.
func newTracerProvider(res *resource.Resource, exp sdktrace.SpanExporter, opts ...ttProviderOption) *tracerProvider {
	b := providerBuild{
		queueCapacity:        defaultQueueCapacity,
		drainInterval:        defaultDrainInterval,
		liveSnapshotInterval: time.Second,
	}
	for _, opt := range opts {
		opt(&b)
	}

	live := newLiveProcessor(exp, b.liveSnapshotInterval)
	batch := newBatchProcessor(exp, b.queueCapacity, b.drainInterval)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(live),
		sdktrace.WithSpanProcessor(batch),
	)

	return &tracerProvider{TracerProvider: tp, live: live, batch: batch}
}
