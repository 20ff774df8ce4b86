// Package hostagent is the instrumentor that binds this SDK's tracing
// pipeline to github.com/agentops-ai/agentops-go/hostagent: that package
// already exposes a published plugin interface (hostagent.Tracer) for
// exactly this purpose, so unlike instrumentors that must monkey-patch a
// closed API, this one just implements the interface and hands itself to
// the host via Agent.SetTracer.
package hostagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/agentops-ai/agentops-go/attrs"
	hostagentlib "github.com/agentops-ai/agentops-go/hostagent"
	"github.com/agentops-ai/agentops-go/registry"
	"github.com/agentops-ai/agentops-go/semconv"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func init() {
	registry.Register(registry.Descriptor{
		Name:   "hostagent",
		Detect: func(host any) bool { _, ok := host.(*hostagentlib.Agent); return ok },
		Activate: func(host any, tp trace.TracerProvider) (any, func(), error) {
			agent, ok := host.(*hostagentlib.Agent)
			if !ok {
				return nil, nil, fmt.Errorf("hostagent instrumentor: host is %T, want *hostagent.Agent", host)
			}
			t := New(tp.Tracer("github.com/agentops-ai/agentops-go/hostagent"), nil, nil)
			prev := agent.SetTracer(t)
			teardown := func() { agent.SetTracer(prev) }
			return agent, teardown, nil
		},
	})
}

// Tracer implements hostagentlib.Tracer against a real OTel tracer, feeding
// generation, span, and event data into this SDK's own span processors and
// semantic conventions instead of a third-party observability backend.
type Tracer struct {
	tracer  trace.Tracer
	encoder *attrs.Encoder
	logger  *slog.Logger
}

// New builds a Tracer. A nil encoder/logger falls back to package defaults.
func New(tracer trace.Tracer, encoder *attrs.Encoder, logger *slog.Logger) *Tracer {
	if encoder == nil {
		encoder = attrs.NewEncoder()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{tracer: tracer, encoder: encoder, logger: logger}
}

// StartTrace opens a span for an agent run. hostagentlib calls this once
// per Agent.Run, naming it "agent.run"; whether the resulting span becomes
// a trace root or a child of an already-open session span depends entirely
// on what's already in ctx - an agent run nested under an explicit
// StartTrace/EndTrace just joins that trace instead of starting a new one.
func (t *Tracer) StartTrace(ctx context.Context, name string, opts ...hostagentlib.TraceOption) (context.Context, func()) {
	cfg := &hostagentlib.TraceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	spanCtx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))

	if cfg.SessionID != "" {
		span.SetAttributes(semconv.SessionIDKey.String(cfg.SessionID))
	}
	if len(cfg.Tags) > 0 {
		span.SetAttributes(semconv.TraceTagsKey.StringSlice(cfg.Tags))
	}
	if cfg.Input != nil {
		t.setAttrs(span, map[string]any{"agent.input": cfg.Input})
	}
	t.setAttrs(span, cfg.Metadata)

	return spanCtx, func() { finalizeSpan(span) }
}

// StartSpan opens a child span for a tool call, sub-agent, or any other
// operation the host library brackets with StartSpan/end. Kind is derived
// from SpanConfig.Type so tool executions land as internal spans and
// generation spans (rare - LogGeneration is the usual path) as client.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...hostagentlib.SpanOption) (context.Context, func()) {
	cfg := &hostagentlib.SpanConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	spanCtx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(spanKindFor(cfg.Type)))

	if cfg.Input != nil {
		t.setAttrs(span, map[string]any{"agent.input": cfg.Input})
	}
	t.setAttrs(span, cfg.Metadata)

	return spanCtx, func() { finalizeSpan(span) }
}

// finalizeSpan ends span with codes.Ok, unless SetSpanAttributes already
// marked it codes.Error (a tool/agent failure reported through that seam
// rather than through a returned error StartSpan's caller could check) -
// in which case the error status set there is left standing rather than
// overwritten. sdktrace's recording span implements ReadWriteSpan (which
// embeds ReadOnlySpan's Status accessor) right up until End is called, so
// this check is safe to make here.
func finalizeSpan(span trace.Span) {
	if rw, ok := span.(sdktrace.ReadWriteSpan); ok && rw.Status().Code == codes.Error {
		span.End()
		return
	}
	span.SetStatus(codes.Ok, "")
	span.End()
}

func spanKindFor(t hostagentlib.SpanType) trace.SpanKind {
	switch t {
	case hostagentlib.SpanTypeGeneration:
		return trace.SpanKindClient
	case hostagentlib.SpanTypeTool, hostagentlib.SpanTypeRetrieval:
		return trace.SpanKindInternal
	default:
		return trace.SpanKindInternal
	}
}

// chatMessage mirrors the {role, content} shape hostagentlib's own
// unexported chatMessage type marshals to; Input/Output arrive here as
// `any` so this package can't name that type directly, but it can
// round-trip through JSON to recover the same two fields.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func decodeChatMessages(v any) []chatMessage {
	if v == nil {
		return nil
	}
	if msgs, ok := v.([]chatMessage); ok {
		return msgs
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var msgs []chatMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil
	}
	return msgs
}

// LogGeneration records one LLM call as a span spanning opts.StartTime to
// opts.EndTime: hostagentlib calls this after the fact (it already has the
// full request/response by the time it logs), so rather than bracket a
// live call like StartSpan does, this opens and immediately ends a span
// stamped with the caller-supplied timestamps.
func (t *Tracer) LogGeneration(ctx context.Context, opts hostagentlib.GenerationOptions) error {
	name := opts.Name
	if name == "" {
		name = "llm.completion"
	}

	startOpts := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindClient)}
	if !opts.StartTime.IsZero() {
		startOpts = append(startOpts, trace.WithTimestamp(opts.StartTime))
	}
	_, span := t.tracer.Start(ctx, name, startOpts...)

	attrsOut := []attribute.KeyValue{semconv.LLMRequestModelKey.String(opts.Model)}

	if temp, ok := opts.ModelParameters["temperature"]; ok {
		attrsOut = append(attrsOut, t.encoder.Encode(string(semconv.LLMRequestTemperatureKey), temp)...)
	}
	if topP, ok := opts.ModelParameters["top_p"]; ok {
		attrsOut = append(attrsOut, t.encoder.Encode(string(semconv.LLMRequestTopPKey), topP)...)
	}
	if streaming, _ := opts.ModelParameters["stream"].(bool); streaming {
		attrsOut = append(attrsOut, semconv.LLMResponseStreamingKey.Bool(true))
	}

	for i, m := range decodeChatMessages(opts.Input) {
		attrsOut = append(attrsOut,
			semconv.RequestMessageRoleKey(i).String(m.Role),
			semconv.RequestMessageContentKey(i).String(m.Content),
		)
	}
	for i, m := range decodeChatMessages(opts.Output) {
		attrsOut = append(attrsOut, semconv.ResponseCompletionContentKey(i).String(m.Content))
	}

	if opts.Usage != nil {
		attrsOut = append(attrsOut,
			semconv.LLMUsagePromptTokensKey.Int(opts.Usage.PromptTokens),
			semconv.LLMUsageCompletionTokensKey.Int(opts.Usage.CompletionTokens),
			semconv.LLMUsageTotalTokensKey.Int(opts.Usage.TotalTokens),
		)
	}

	if v, ok := opts.Metadata["response_id"].(string); ok && v != "" {
		attrsOut = append(attrsOut, semconv.LLMResponseIDKey.String(v))
	}
	if v, ok := opts.Metadata["finish_reason"].(string); ok && v != "" {
		attrsOut = append(attrsOut, semconv.LLMResponseFinishReasonKey.String(v))
	}
	if v, ok := opts.Metadata["chunk_count"]; ok {
		attrsOut = append(attrsOut, t.encoder.Encode(string(semconv.LLMResponseChunkCountKey), v)...)
	}
	if v, ok := opts.Metadata["time_to_first_token_ms"]; ok {
		attrsOut = append(attrsOut, t.encoder.Encode(string(semconv.LLMResponseTTFTMsKey), v)...)
	}

	span.SetAttributes(attrsOut...)

	if opts.Level == hostagentlib.LogLevelError {
		span.SetStatus(codes.Error, opts.StatusMessage)
		span.SetAttributes(semconv.ErrorMessageKey.String(opts.StatusMessage))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	endOpts := []trace.SpanEndOption{}
	if !opts.EndTime.IsZero() {
		endOpts = append(endOpts, trace.WithTimestamp(opts.EndTime))
	}
	span.End(endOpts...)
	return nil
}

// LogEvent adds a span event rather than its own span, matching OTel's
// event model for point-in-time occurrences within an already-open span.
func (t *Tracer) LogEvent(ctx context.Context, name string, attributes map[string]any) error {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(t.encode(attributes)...))
	return nil
}

// SetTraceAttributes and SetSpanAttributes both just add attributes to
// whatever span is current in ctx; hostagentlib doesn't distinguish them
// because, unlike a dedicated trace/span object model, there's only ever
// one OTel span live in a given context at a time.
func (t *Tracer) SetTraceAttributes(ctx context.Context, attributes map[string]any) error {
	return t.SetSpanAttributes(ctx, attributes)
}

func (t *Tracer) SetSpanAttributes(ctx context.Context, attributes map[string]any) error {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(t.encode(attributes)...)

	// A bare "error"/"error.message"/"error.type" key is how hostagentlib
	// reports a failed tool/agent call through this seam (it has no
	// separate "fail the span" call of its own); mark the span's status
	// here so StartSpan/StartTrace's end closure doesn't paper over it
	// with codes.Ok once the span is ended.
	if msg, ok := firstErrorMessage(attributes); ok {
		span.SetStatus(codes.Error, msg)
	}
	return nil
}

// firstErrorMessage reports whether attributes carries an error signal
// ("error", "error.message", or "error.type") and, if so, a message to use
// for the span status.
func firstErrorMessage(attributes map[string]any) (string, bool) {
	for _, key := range []string{"error.message", "error"} {
		if v, ok := attributes[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	if v, ok := attributes["error.type"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// SetSpanOutput records output under the agent.output semantic key.
func (t *Tracer) SetSpanOutput(ctx context.Context, output any) error {
	trace.SpanFromContext(ctx).SetAttributes(t.encoder.Encode(string(semconv.AgentOutputKey), output)...)
	return nil
}

// Flush is a no-op: flushing belongs to the tracer provider's processors,
// which this Tracer has no handle on - the SDK-level Shutdown/ForceFlush
// path is the real flush entry point.
func (t *Tracer) Flush(ctx context.Context) error {
	return nil
}

// encode remaps the host library's ad hoc attribute keys (e.g. "tool.name",
// bare "error") onto this SDK's closed vocabulary, and buckets anything it
// doesn't recognize under semconv's custom.* escape hatch so the
// "attribute keys are members of the semantic convention set, or begin
// with custom." invariant holds for every key this adapter ever emits.
func (t *Tracer) encode(attributes map[string]any) []attribute.KeyValue {
	var out []attribute.KeyValue
	for k, v := range attributes {
		out = append(out, t.encoder.Encode(string(remapKey(k)), v)...)
	}
	return out
}

func (t *Tracer) setAttrs(span trace.Span, attributes map[string]any) {
	if len(attributes) == 0 {
		return
	}
	span.SetAttributes(t.encode(attributes)...)
}

func remapKey(name string) attribute.Key {
	switch name {
	case "tool.name":
		return semconv.ToolNameKey
	case "tool.call_id":
		return semconv.ToolCallIDKey
	case "tool.arguments":
		return semconv.ToolArgumentsKey
	case "tool.result":
		return semconv.ToolResultKey
	case "agent.name":
		return semconv.AgentNameKey
	case "agent.role":
		return semconv.AgentRoleKey
	case "agent.input":
		return semconv.AgentInputKey
	case "agent.output":
		return semconv.AgentOutputKey
	case "handoff.from":
		return semconv.HandoffFromKey
	case "handoff.to":
		return semconv.HandoffToKey
	case "error", "error.message":
		return semconv.ErrorMessageKey
	case "error.type":
		return semconv.ErrorTypeKey
	default:
		if semconv.IsCustomKey(name) {
			return attribute.Key(name)
		}
		return attribute.Key(semconv.CustomPrefix + name)
	}
}
