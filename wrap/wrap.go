// Package wrap is the typed decorator engine that stands in for the dynamic
// monkey-patching a non-static language would use to instrument a host
// library. Go has no mutable symbol table to patch, so instrumentation here
// means generating a replacement closure and handing it back to the caller
// to install at the call site.
package wrap

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/agentops-ai/agentops-go/attrs"
	"github.com/agentops-ai/agentops-go/semconv"
	"github.com/agentops-ai/agentops-go/stream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler supplies the three instrumentation phases for a wrapped call: Pre
// runs before the original is invoked and seeds span attributes, Post runs
// after a successful return, and Error runs after a failed one. Any of the
// three may be nil.
type Handler[TArgs, TResult any] struct {
	Pre   func(ctx context.Context, args TArgs) map[string]any
	Post  func(ctx context.Context, result TResult) map[string]any
	Error func(ctx context.Context, err error) map[string]any
}

// Record is the bookkeeping kept for one installed wrap: enough to support
// Unwrap's round-trip law (the returned original is exactly the function
// that was passed to Func/Stream, untouched by the wrapper).
type Record struct {
	Label     string
	Kind      trace.SpanKind
	Installed bool
	original  any
}

// Engine owns the tracer used to start spans and the label -> Record table
// backing idempotence and Unwrap.
type Engine struct {
	Tracer  trace.Tracer
	Logger  *slog.Logger
	Encoder *attrs.Encoder

	mu       sync.Mutex
	records  map[string]*Record
	wrappers map[string]any
}

// NewEngine constructs an Engine. A nil logger falls back to slog.Default().
func NewEngine(tracer trace.Tracer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Tracer:   tracer,
		Logger:   logger,
		Encoder:  attrs.NewEncoder(),
		records:  make(map[string]*Record),
		wrappers: make(map[string]any),
	}
}

// Func wraps a non-streaming, context-carrying call in a span and the three
// handler phases. Calling Func twice with the same label is a no-op: the
// engine logs a warning and hands back the function installed the first
// time, so repeated instrumentor activation stays idempotent.
func Func[TArgs, TResult any](
	eng *Engine,
	label string,
	kind trace.SpanKind,
	nameOf func(TArgs) string,
	h Handler[TArgs, TResult],
	original func(context.Context, TArgs) (TResult, error),
) func(context.Context, TArgs) (TResult, error) {
	eng.mu.Lock()
	if rec, ok := eng.records[label]; ok && rec.Installed {
		existing, _ := eng.wrappers[label].(func(context.Context, TArgs) (TResult, error))
		eng.mu.Unlock()
		eng.Logger.Warn("wrap: label already installed, returning existing wrapper", "label", label)
		if existing != nil {
			return existing
		}
		return original
	}
	rec := &Record{Label: label, Kind: kind, Installed: true, original: original}
	eng.records[label] = rec
	eng.mu.Unlock()

	wrapped := func(ctx context.Context, args TArgs) (result TResult, err error) {
		name := label
		if nameOf != nil {
			if n := nameOf(args); n != "" {
				name = n
			}
		}

		ctx, span := eng.Tracer.Start(ctx, name, trace.WithSpanKind(kind))
		defer span.End()

		eng.runSafely(label, "pre", func() {
			if h.Pre != nil {
				eng.setAttrs(span, h.Pre(ctx, args))
			}
		})

		result, err = original(ctx, args)

		if err != nil {
			if ctx.Err() == context.Canceled {
				span.SetStatus(codes.Error, "cancelled")
				span.SetAttributes(semconv.ErrorTypeKey.String("cancelled"), semconv.ErrorMessageKey.String("cancelled"))
			} else {
				span.SetStatus(codes.Error, err.Error())
				span.SetAttributes(errorAttrs(err)...)
			}
			span.RecordError(err)
			eng.runSafely(label, "error", func() {
				if h.Error != nil {
					eng.setAttrs(span, h.Error(ctx, err))
				}
			})
			return result, err
		}

		span.SetStatus(codes.Ok, "")
		eng.runSafely(label, "post", func() {
			if h.Post != nil {
				eng.setAttrs(span, h.Post(ctx, result))
			}
		})

		return result, nil
	}

	eng.mu.Lock()
	eng.wrappers[label] = wrapped
	eng.mu.Unlock()

	return wrapped
}

// StreamHandler is Handler's streaming sibling: Pre seeds attributes before
// the call that produces the source, Chunk/Final are handed straight
// through to stream.Wrap to drive the span for the lifetime of the stream.
type StreamHandler[TArgs, TChunk any] struct {
	Pre   func(ctx context.Context, args TArgs) map[string]any
	Chunk stream.ChunkHandler[TChunk]
	Final stream.FinalHandler[TChunk]
}

// Stream wraps a call that returns a stream.Source instead of ending its own
// span: the span is handed to stream.Wrap, which ends it when the returned
// Source is exhausted, errors, is closed, or goes idle past its timeout.
func Stream[TArgs, TChunk any](
	eng *Engine,
	label string,
	kind trace.SpanKind,
	nameOf func(TArgs) string,
	h StreamHandler[TArgs, TChunk],
	original func(context.Context, TArgs) (stream.Source[TChunk], error),
) func(context.Context, TArgs) (stream.Source[TChunk], error) {
	eng.mu.Lock()
	if rec, ok := eng.records[label]; ok && rec.Installed {
		existing, _ := eng.wrappers[label].(func(context.Context, TArgs) (stream.Source[TChunk], error))
		eng.mu.Unlock()
		eng.Logger.Warn("wrap: label already installed, returning existing wrapper", "label", label)
		if existing != nil {
			return existing
		}
		return original
	}
	rec := &Record{Label: label, Kind: kind, Installed: true, original: original}
	eng.records[label] = rec
	eng.mu.Unlock()

	wrapped := func(ctx context.Context, args TArgs) (stream.Source[TChunk], error) {
		name := label
		if nameOf != nil {
			if n := nameOf(args); n != "" {
				name = n
			}
		}

		ctx, span := eng.Tracer.Start(ctx, name, trace.WithSpanKind(kind))

		eng.runSafely(label, "pre", func() {
			if h.Pre != nil {
				eng.setAttrs(span, h.Pre(ctx, args))
			}
		})

		src, err := original(ctx, args)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(errorAttrs(err)...)
			span.End()
			return nil, err
		}

		return stream.Wrap(ctx, span, src, h.Chunk, h.Final), nil
	}

	eng.mu.Lock()
	eng.wrappers[label] = wrapped
	eng.mu.Unlock()

	return wrapped
}

// errorAttrs builds the semconv error.type/error.message pair for err,
// independent of whatever a handler's Error phase does: every span whose
// original call failed carries both, not just a RecordError exception
// event, which is a separate OTel concept.
func errorAttrs(err error) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.ErrorTypeKey.String(fmt.Sprintf("%T", err)),
		semconv.ErrorMessageKey.String(err.Error()),
	}
}

// runSafely invokes fn and converts any panic into a logged warning rather
// than letting it mask the original call's return value or crash the
// process — a handler bug must never break the instrumented call.
func (e *Engine) runSafely(label, phase string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.Logger.Warn("wrap: handler panicked",
				"label", label, "phase", phase, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Unwrap removes the record for label and returns the original function
// that was passed to Func/Stream, type-asserted to T. The caller is
// responsible for supplying the matching generic instantiation; a
// mismatched type returns the zero value and false.
func Unwrap[T any](eng *Engine, label string) (T, bool) {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	rec, ok := eng.records[label]
	if !ok {
		var zero T
		return zero, false
	}
	original, ok := rec.original.(T)
	delete(eng.records, label)
	delete(eng.wrappers, label)
	return original, ok
}

// IsInstalled reports whether label currently has an active wrap.
func (e *Engine) IsInstalled(label string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[label]
	return ok && rec.Installed
}

func (e *Engine) setAttrs(span trace.Span, values map[string]any) {
	if len(values) == 0 {
		return
	}
	enc := e.Encoder
	if enc == nil {
		enc = attrs.NewEncoder()
	}
	for k, v := range values {
		span.SetAttributes(enc.Encode(k, v)...)
	}
}
