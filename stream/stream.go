// Package stream adapts a pull-based item source into one already bound to
// an open span: it times the first item, accumulates a bounded summary of
// what passed through, and guarantees the span is ended exactly once even if
// the caller stops pulling before exhaustion or error.
package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/agentops-ai/agentops-go/attrs"
	"github.com/agentops-ai/agentops-go/semconv"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Source is anything that can be pulled item by item. Next returns io.EOF
// once exhausted; Close releases any underlying resources and is safe to
// call more than once.
type Source[T any] interface {
	Next(ctx context.Context) (T, error)
	Close() error
}

// ChunkHandler extracts per-item summary data as the stream is consumed.
// Content, if non-empty, is appended to the adapter's capped content
// accumulator; Attrs are merged onto the span's running attribute set on
// every item (later items overwrite earlier keys).
type ChunkHandler[T any] struct {
	Extract func(item T) (content string, attrs map[string]any)
}

// FinalHandler is invoked at most once: when the source reaches io.EOF, when
// it returns any other error, or when Close ends the span first. It is not
// invoked when the idle timeout ends the span. err is nil at io.EOF and on
// Close, and is the source's error otherwise. chunkCount is the number of
// items successfully pulled before the end.
type FinalHandler[T any] struct {
	Finish func(content string, chunkCount int, err error) map[string]any
}

// DefaultMaxContentLen bounds the adapter's content accumulator; matches
// attrs.DefaultMaxStringLen so a streamed response's recorded text is
// capped the same way any other string attribute would be.
const DefaultMaxContentLen = 32 * 1024

// DefaultIdleTimeout is how long the adapter waits between Next calls
// before treating the stream as abandoned and force-ending its span.
const DefaultIdleTimeout = 30 * time.Second

// Options configures Wrap's behavior beyond the span/handlers.
type Options struct {
	MaxContentLen int
	IdleTimeout   time.Duration
	Encoder       *attrs.Encoder
}

type adapter[T any] struct {
	span       trace.Span
	src        Source[T]
	chunk      ChunkHandler[T]
	final      FinalHandler[T]
	maxContent int
	idleTO     time.Duration
	encoder    *attrs.Encoder

	spanStart  time.Time
	firstItem  bool
	chunkCount int
	content    strings.Builder

	mu      sync.Mutex
	ended   bool
	timer   *time.Timer
	timerMu sync.Mutex
}

// Wrap binds src to span: it records time-to-first-token on the first
// successful Next, accumulates content and attributes per item via chunk,
// and ends the span exactly once — on io.EOF via final.Finish with a nil
// error, on any other error via final.Finish with that error, on Close
// before either of those as on io.EOF, or on idle timeout by force-ending
// the span itself.
func Wrap[T any](ctx context.Context, span trace.Span, src Source[T], chunk ChunkHandler[T], final FinalHandler[T], opts ...Options) Source[T] {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	maxContent := o.MaxContentLen
	if maxContent <= 0 {
		maxContent = DefaultMaxContentLen
	}
	idleTO := o.IdleTimeout
	if idleTO <= 0 {
		idleTO = DefaultIdleTimeout
	}
	encoder := o.Encoder
	if encoder == nil {
		encoder = attrs.NewEncoder()
	}

	a := &adapter[T]{
		span:       span,
		src:        src,
		chunk:      chunk,
		final:      final,
		maxContent: maxContent,
		idleTO:     idleTO,
		encoder:    encoder,
		spanStart:  time.Now(),
		firstItem:  true,
	}
	a.timer = time.AfterFunc(idleTO, a.onIdle)
	return a
}

func (a *adapter[T]) onIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ended {
		return
	}
	a.ended = true
	a.span.SetAttributes(semconv.AbandonedKey.Bool(true))
	a.span.SetStatus(codes.Unset, "stream abandoned: idle timeout")
	a.span.End()
}

func (a *adapter[T]) resetTimer() {
	a.timerMu.Lock()
	defer a.timerMu.Unlock()
	if a.timer != nil {
		a.timer.Reset(a.idleTO)
	}
}

func (a *adapter[T]) stopTimer() {
	a.timerMu.Lock()
	defer a.timerMu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
}

// Next pulls the next item from the wrapped source, updating TTFT, content,
// and per-item attributes, and ending the span on EOF or error.
func (a *adapter[T]) Next(ctx context.Context) (T, error) {
	item, err := a.src.Next(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ended {
		var zero T
		return zero, io.EOF
	}
	a.resetTimer()

	if err != nil {
		a.finish(err)
		return item, err
	}

	if a.firstItem {
		a.firstItem = false
		a.span.SetAttributes(semconv.LLMResponseTTFTMsKey.Int64(time.Since(a.spanStart).Milliseconds()))
	}
	a.chunkCount++

	if a.chunk.Extract != nil {
		content, attrs := a.chunk.Extract(item)
		if content != "" && a.content.Len() < a.maxContent {
			remaining := a.maxContent - a.content.Len()
			if len(content) > remaining {
				content = content[:remaining]
			}
			a.content.WriteString(content)
		}
		for k, v := range attrs {
			a.span.SetAttributes(a.encoder.Encode(k, v)...)
		}
	}

	return item, nil
}

// Close stops the idle timer and, if the span has not ended yet, runs the
// final handler with a nil error and ends the span with status Ok, then
// closes the underlying source.
func (a *adapter[T]) Close() error {
	a.mu.Lock()
	if !a.ended {
		a.finishLocked(nil)
	}
	a.mu.Unlock()
	a.stopTimer()
	return a.src.Close()
}

func (a *adapter[T]) finish(err error) {
	a.finishLocked(err)
}

func (a *adapter[T]) finishLocked(err error) {
	a.ended = true
	a.stopTimer()

	var reportErr error
	if err != nil && !errors.Is(err, io.EOF) {
		reportErr = err
	}

	var extra map[string]any
	if a.final.Finish != nil {
		extra = a.final.Finish(a.content.String(), a.chunkCount, reportErr)
	}
	for k, v := range extra {
		a.span.SetAttributes(a.encoder.Encode(k, v)...)
	}

	if reportErr != nil {
		a.span.RecordError(reportErr)
		a.span.SetAttributes(
			semconv.ErrorTypeKey.String("stream_error"),
			semconv.ErrorMessageKey.String(reportErr.Error()),
		)
		a.span.SetStatus(codes.Error, reportErr.Error())
	} else {
		a.span.SetStatus(codes.Ok, "")
	}
	a.span.End()
}
