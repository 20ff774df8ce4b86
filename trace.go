package agentops

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/agentops-ai/agentops-go/semconv"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Status is the terminal state of a trace, mirroring OTel's own
// Ok/Error/Unset trio. An unmapped status from a caller (anything besides
// StatusOk/StatusError) is treated as StatusUnset: ending a trace without
// an explicit status leaves it unset rather than defaulting to Ok.
type Status int

const (
	StatusUnset Status = iota
	StatusOk
	StatusError
)

func (s Status) otelCode() codes.Code {
	switch s {
	case StatusOk:
		return codes.Ok
	case StatusError:
		return codes.Error
	default:
		return codes.Unset
	}
}

// TraceConfig carries the attributes StartTrace seeds onto the root span.
type TraceConfig struct {
	SessionID string
	Tags      []string
	Metadata  map[string]any
	StartTime *time.Time
}

// TraceOption customizes a TraceConfig.
type TraceOption func(*TraceConfig)

// WithTraceSessionID tags the root span with a session identifier.
func WithTraceSessionID(id string) TraceOption {
	return func(c *TraceConfig) { c.SessionID = id }
}

// WithTraceTags attaches free-form tags to the root span.
func WithTraceTags(tags ...string) TraceOption {
	return func(c *TraceConfig) { c.Tags = tags }
}

// WithTraceMetadata attaches arbitrary metadata to the root span, encoded
// through the same attrs.Encoder every other attribute goes through.
func WithTraceMetadata(md map[string]any) TraceOption {
	return func(c *TraceConfig) { c.Metadata = md }
}

// TraceHandle is the live handle returned by StartTrace; EndTrace consumes
// it exactly once. ended guards against a caller calling EndTrace on the
// same handle more than once (e.g. a defer alongside an explicit early-exit
// call) double-decrementing activeTraces, since span.End() itself is a
// documented no-op on an already-ended span but our counter is not.
type TraceHandle struct {
	span  trace.Span
	name  string
	ended atomic.Bool
}

// startTrace opens a root span under kind Server and returns both the
// child context and a handle EndTrace will later close.
func (s *SDK) startTrace(ctx context.Context, name string, opts ...TraceOption) (context.Context, *TraceHandle) {
	cfg := &TraceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	startTime := time.Now()
	if cfg.StartTime != nil {
		startTime = *cfg.StartTime
	}

	// Every root span carries a session id: the backend groups traces by
	// it, so one is generated when the caller doesn't supply their own.
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	spanCtx, span := s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithTimestamp(startTime),
	)

	span.SetAttributes(semconv.SessionIDKey.String(cfg.SessionID))
	if len(cfg.Tags) > 0 {
		span.SetAttributes(semconv.TraceTagsKey.StringSlice(cfg.Tags))
	}
	for k, v := range cfg.Metadata {
		span.SetAttributes(s.encoder.Encode(semconv.TraceMetadataPrefix+k, v)...)
	}

	s.activeTraces.Add(1)

	return spanCtx, &TraceHandle{span: span, name: name}
}

// endTrace closes handle with status, decrementing the running-trace
// counter exactly once regardless of how many times it is mistakenly
// called (a second call on the same handle is a documented no-op since the
// underlying span is already ended and SetStatus/End are themselves
// idempotent on an ended span).
func (s *SDK) endTrace(handle *TraceHandle, status Status) {
	if handle == nil || handle.span == nil {
		return
	}
	if !handle.ended.CompareAndSwap(false, true) {
		return
	}
	handle.span.SetStatus(status.otelCode(), "")
	handle.span.End()
	s.activeTraces.Add(-1)
}

// runTrace is the closure-taking stand-in for a context-manager form: it
// starts a trace, runs fn, and ends the trace with StatusOk or StatusError
// (attaching error.type/error.message on failure) before re-returning fn's
// error unchanged.
func (s *SDK) runTrace(ctx context.Context, name string, fn func(context.Context) error, opts ...TraceOption) error {
	spanCtx, handle := s.startTrace(ctx, name, opts...)
	err := fn(spanCtx)
	if err != nil {
		handle.span.RecordError(err)
		handle.span.SetAttributes(
			semconv.ErrorTypeKey.String(fmt.Sprintf("%T", err)),
			semconv.ErrorMessageKey.String(err.Error()),
		)
		s.endTrace(handle, StatusError)
		return err
	}
	s.endTrace(handle, StatusOk)
	return nil
}

// WithContext binds fn to the span active in ctx: the returned function
// re-installs that span as the current one in whatever context it is later
// called with, so a user-spawned goroutine that carries its own cancellation
// context still parents its spans under the trace that spawned it. Frames
// that never pass through WithContext simply inherit whatever context was
// current when they were spawned.
func WithContext(ctx context.Context, fn func(context.Context)) func(context.Context) {
	span := trace.SpanFromContext(ctx)
	return func(inner context.Context) {
		fn(trace.ContextWithSpan(inner, span))
	}
}
