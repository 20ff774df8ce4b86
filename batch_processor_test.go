package agentops

import (
	"context"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"github.com/stretchr/testify/require"
)

// recordingExporter records every exported span, used by both processor
// test files.
type recordingExporter struct {
	mu    sync.Mutex
	spans []sdktrace.ReadOnlySpan
}

func (e *recordingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = append(e.spans, spans...)
	return nil
}

func (e *recordingExporter) Shutdown(ctx context.Context) error { return nil }

func (e *recordingExporter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.spans)
}

func (e *recordingExporter) spansSnapshot() []sdktrace.ReadOnlySpan {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]sdktrace.ReadOnlySpan, len(e.spans))
	copy(out, e.spans)
	return out
}

func startTestSpans(t *testing.T, proc sdktrace.SpanProcessor, n int) {
	t.Helper()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(proc))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tracer := tp.Tracer("test")
	for i := 0; i < n; i++ {
		_, span := tracer.Start(context.Background(), "span")
		span.End()
	}
}

func TestBatchProcessor_DropsOldestWhenFull(t *testing.T) {
	exp := &recordingExporter{}
	p := newBatchProcessor(exp, 2, time.Hour) // long interval: nothing drains on its own
	defer p.Shutdown(context.Background())

	startTestSpans(t, p, 5)

	require.EqualValues(t, 3, p.Dropped(), "3 of 5 spans should have been evicted from a capacity-2 buffer")
	require.NoError(t, p.ForceFlush(context.Background()))
	require.Equal(t, 2, exp.count(), "only the 2 surviving spans should reach the exporter")
}

func TestBatchProcessor_ForceFlushDrainsEverything(t *testing.T) {
	exp := &recordingExporter{}
	p := newBatchProcessor(exp, 100, time.Hour)
	defer p.Shutdown(context.Background())

	startTestSpans(t, p, 10)
	require.NoError(t, p.ForceFlush(context.Background()))
	require.Equal(t, 10, exp.count())
}

func TestBatchProcessor_ShutdownDrainsAndStopsLoop(t *testing.T) {
	exp := &recordingExporter{}
	p := newBatchProcessor(exp, 100, time.Hour)

	startTestSpans(t, p, 4)
	require.NoError(t, p.Shutdown(context.Background()))
	require.Equal(t, 4, exp.count())

	// A second Shutdown must not hang or panic.
	require.NoError(t, p.Shutdown(context.Background()))
}
