package agentops

import (
	"context"
	"sync"
	"time"

	"github.com/agentops-ai/agentops-go/semconv"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// liveProcessor periodically exports a snapshot of every span still open,
// tagged span.in_flight=true, so a backend can show work in progress
// without waiting for it to finish. It never mutates the real span's
// attribute set — exports go through a wrapping ReadOnlySpan instead.
type liveProcessor struct {
	exporter sdktrace.SpanExporter
	interval time.Duration

	mu       sync.Mutex
	inFlight map[trace.SpanID]*liveEntry

	stop chan struct{}
	done chan struct{}
}

type liveEntry struct {
	span sdktrace.ReadOnlySpan
	seq  int64
}

func newLiveProcessor(exp sdktrace.SpanExporter, interval time.Duration) *liveProcessor {
	if interval <= 0 {
		interval = time.Second
	}
	p := &liveProcessor{
		exporter: exp,
		interval: interval,
		inFlight: make(map[trace.SpanID]*liveEntry),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *liveProcessor) loop() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.snapshot()
		}
	}
}

func (p *liveProcessor) snapshot() {
	p.mu.Lock()
	if len(p.inFlight) == 0 {
		p.mu.Unlock()
		return
	}
	snaps := make([]sdktrace.ReadOnlySpan, 0, len(p.inFlight))
	for _, e := range p.inFlight {
		e.seq++
		snaps = append(snaps, inFlightSpan{ReadOnlySpan: e.span, seq: e.seq})
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.exporter.ExportSpans(ctx, snaps)
}

// OnStart satisfies sdktrace.SpanProcessor.
func (p *liveProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	p.mu.Lock()
	p.inFlight[s.SpanContext().SpanID()] = &liveEntry{span: s}
	p.mu.Unlock()
}

// OnEnd satisfies sdktrace.SpanProcessor.
func (p *liveProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	p.mu.Lock()
	delete(p.inFlight, s.SpanContext().SpanID())
	p.mu.Unlock()
}

// Shutdown satisfies sdktrace.SpanProcessor.
func (p *liveProcessor) Shutdown(ctx context.Context) error {
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
	return nil
}

// ForceFlush satisfies sdktrace.SpanProcessor; in-flight snapshots are best
// effort, so a flush just runs one immediate snapshot pass.
func (p *liveProcessor) ForceFlush(ctx context.Context) error {
	p.snapshot()
	return nil
}

// inFlightSpan wraps a sdktrace.ReadOnlySpan, appending span.in_flight=true
// and a sequence number to its attribute set without touching the
// underlying span's real attributes.
type inFlightSpan struct {
	sdktrace.ReadOnlySpan
	seq int64
}

func (s inFlightSpan) Attributes() []attribute.KeyValue {
	base := s.ReadOnlySpan.Attributes()
	out := make([]attribute.KeyValue, len(base), len(base)+2)
	copy(out, base)
	out = append(out,
		semconv.InFlightKey.Bool(true),
		attribute.Int64("span.snapshot_seq", s.seq),
	)
	return out
}
