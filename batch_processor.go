package agentops

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	defaultQueueCapacity = 2048
	defaultDrainBatch    = 512
	defaultDrainInterval = 5 * time.Second
)

// batchProcessor is a bounded ring buffer SpanProcessor: when full, OnEnd
// evicts the OLDEST buffered span rather than dropping the new one, the
// opposite of sdktrace.BatchSpanProcessor's drop-newest behavior. That
// difference is why this is hand-rolled instead of sdktrace.WithBatcher.
type batchProcessor struct {
	exporter sdktrace.SpanExporter
	capacity int
	interval time.Duration

	mu      sync.Mutex
	buf     []sdktrace.ReadOnlySpan
	dropped atomic.Int64

	stop chan struct{}
	done chan struct{}
}

func newBatchProcessor(exp sdktrace.SpanExporter, capacity int, interval time.Duration) *batchProcessor {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	p := &batchProcessor{
		exporter: exp,
		capacity: capacity,
		interval: interval,
		buf:      make([]sdktrace.ReadOnlySpan, 0, capacity),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *batchProcessor) loop() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			p.drain()
			return
		case <-ticker.C:
			p.drain()
		}
	}
}

func (p *batchProcessor) drain() {
	p.mu.Lock()
	if len(p.buf) == 0 {
		p.mu.Unlock()
		return
	}
	n := defaultDrainBatch
	if n > len(p.buf) {
		n = len(p.buf)
	}
	batch := make([]sdktrace.ReadOnlySpan, n)
	copy(batch, p.buf[:n])
	p.buf = p.buf[n:]
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = p.exporter.ExportSpans(ctx, batch)
}

// OnStart satisfies sdktrace.SpanProcessor; this processor only cares about
// ended spans.
func (p *batchProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {}

// OnEnd satisfies sdktrace.SpanProcessor: appends s to the ring buffer,
// evicting the oldest entry and counting it as dropped if the buffer is at
// capacity.
func (p *batchProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) >= p.capacity {
		p.buf = p.buf[1:]
		p.dropped.Add(1)
	}
	p.buf = append(p.buf, s)
}

// Shutdown satisfies sdktrace.SpanProcessor: stops the drain goroutine after
// one final drain pass.
func (p *batchProcessor) Shutdown(ctx context.Context) error {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.exporter.Shutdown(ctx)
}

// ForceFlush satisfies sdktrace.SpanProcessor: drains everything currently
// buffered, looping until empty or ctx expires.
func (p *batchProcessor) ForceFlush(ctx context.Context) error {
	for {
		p.mu.Lock()
		empty := len(p.buf) == 0
		p.mu.Unlock()
		if empty {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			p.drain()
		}
	}
}

// Dropped returns the count of spans evicted before export due to capacity.
func (p *batchProcessor) Dropped() int64 {
	return p.dropped.Load()
}
