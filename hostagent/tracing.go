package hostagent

import (
	"context"
	"time"
)

// Tracer is the plugin interface an Agent calls into as it runs. A host
// application installs one with SetTracer; the zero value of Config leaves
// NoOpTracer in place so an Agent built without any tracer still runs.
type Tracer interface {
	// StartTrace opens a span for one Agent.Run call, returning a context
	// carrying it and a function that ends it.
	StartTrace(ctx context.Context, name string, opts ...TraceOption) (context.Context, func())

	// StartSpan opens a child span for a tool call or other bracketed
	// operation within the current trace.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, func())

	// LogGeneration records one LLM call after the fact, once its request
	// and response are both known.
	LogGeneration(ctx context.Context, opts GenerationOptions) error

	// LogEvent records a point-in-time event within the current span.
	LogEvent(ctx context.Context, name string, attributes map[string]any) error

	// SetTraceAttributes attaches attributes to the current trace.
	SetTraceAttributes(ctx context.Context, attributes map[string]any) error

	// SetSpanOutput records the output of the current span.
	SetSpanOutput(ctx context.Context, output any) error

	// SetSpanAttributes attaches attributes to the current span.
	SetSpanAttributes(ctx context.Context, attributes map[string]any) error

	// Flush ensures any buffered trace data has been sent.
	Flush(ctx context.Context) error
}

// TraceOption configures a trace opened by StartTrace.
type TraceOption func(*TraceConfig)

// SpanOption configures a span opened by StartSpan.
type SpanOption func(*SpanConfig)

// TraceConfig holds configuration for a trace.
type TraceConfig struct {
	// SessionID groups related traces (e.g. a conversation thread).
	SessionID string
	// Tags categorize the trace.
	Tags []string
	// Metadata stores arbitrary key-value data.
	Metadata map[string]any
	// Input is the initial input for the trace.
	Input any
}

// SpanConfig holds configuration for a span.
type SpanConfig struct {
	// Type specifies the span's kind (span, generation, event, tool, retrieval).
	Type SpanType
	// Input is the input data for this operation.
	Input any
	// Metadata stores arbitrary key-value data.
	Metadata map[string]any
}

// SpanType represents the kind of operation a span describes.
type SpanType string

const (
	// SpanTypeSpan is a generic span for non-LLM operations.
	SpanTypeSpan SpanType = "span"
	// SpanTypeGeneration tracks LLM calls.
	SpanTypeGeneration SpanType = "generation"
	// SpanTypeEvent tracks point-in-time events.
	SpanTypeEvent SpanType = "event"
	// SpanTypeTool tracks tool/function calls.
	SpanTypeTool SpanType = "tool"
	// SpanTypeRetrieval tracks retrieval steps.
	SpanTypeRetrieval SpanType = "retrieval"
)

// LogLevel represents the severity of a logged generation.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelDefault LogLevel = "DEFAULT"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// GenerationOptions holds the data an Agent reports about one LLM call.
type GenerationOptions struct {
	// Name of the generation (defaults to "llm.completion" if empty).
	Name string
	// Model name (e.g. "gpt-4o-mini").
	Model string
	// ModelParameters like temperature, top_p, stream.
	ModelParameters map[string]any
	// Input is the request's messages.
	Input any
	// Output is the response's messages.
	Output any
	// Usage holds token counts, when the provider reported them.
	Usage *UsageInfo
	// Metadata carries provider-specific extras (response_id, finish_reason, ...).
	Metadata map[string]any
	// StartTime is when the call was issued.
	StartTime time.Time
	// EndTime is when the response (or final chunk) arrived.
	EndTime time.Time
	// Level classifies the outcome; LogLevelError marks a failed call.
	Level LogLevel
	// StatusMessage describes the error, when Level is LogLevelError.
	StatusMessage string
}

// UsageInfo tracks token consumption for one generation.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// WithSessionID sets the session a trace belongs to.
func WithSessionID(sessionID string) TraceOption {
	return func(c *TraceConfig) {
		c.SessionID = sessionID
	}
}

// WithTags appends tags to a trace.
func WithTags(tags ...string) TraceOption {
	return func(c *TraceConfig) {
		c.Tags = append(c.Tags, tags...)
	}
}

// WithMetadata merges metadata into a trace's configuration.
func WithMetadata(metadata map[string]any) TraceOption {
	return func(c *TraceConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]any)
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
}

// WithTraceInput records the input that started a trace.
func WithTraceInput(input any) TraceOption {
	return func(c *TraceConfig) {
		c.Input = input
	}
}

// WithSpanType sets a span's kind.
func WithSpanType(spanType SpanType) SpanOption {
	return func(c *SpanConfig) {
		c.Type = spanType
	}
}

// WithSpanInput records the input to a span's operation.
func WithSpanInput(input any) SpanOption {
	return func(c *SpanConfig) {
		c.Input = input
	}
}

// WithSpanMetadata merges metadata into a span's configuration.
func WithSpanMetadata(metadata map[string]any) SpanOption {
	return func(c *SpanConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]any)
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
}

// NoOpTracer discards everything. It is the default Tracer for an Agent
// built without SetTracer, so instrumentation is strictly additive.
type NoOpTracer struct{}

func (n *NoOpTracer) StartTrace(ctx context.Context, name string, opts ...TraceOption) (context.Context, func()) {
	return ctx, func() {}
}

func (n *NoOpTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, func()) {
	return ctx, func() {}
}

func (n *NoOpTracer) LogGeneration(ctx context.Context, opts GenerationOptions) error {
	return nil
}

func (n *NoOpTracer) LogEvent(ctx context.Context, name string, attributes map[string]any) error {
	return nil
}

func (n *NoOpTracer) SetTraceAttributes(ctx context.Context, attributes map[string]any) error {
	return nil
}

func (n *NoOpTracer) SetSpanOutput(ctx context.Context, output any) error {
	return nil
}

func (n *NoOpTracer) SetSpanAttributes(ctx context.Context, attributes map[string]any) error {
	return nil
}

func (n *NoOpTracer) Flush(ctx context.Context) error {
	return nil
}
