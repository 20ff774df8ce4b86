// Package semconv defines the closed vocabulary of attribute keys this SDK
// is allowed to emit on spans. Naming follows the style of
// go.opentelemetry.io/otel/semconv (dotted, lower_snake segments under a
// namespace) rather than inventing a bespoke scheme.
package semconv

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Span kind / identity.
const (
	SpanKindKey  = attribute.Key("agentops.span.kind")
	SpanNameKey  = attribute.Key("agentops.span.name")
	InFlightKey  = attribute.Key("span.in_flight")
	AbandonedKey = attribute.Key("stream.abandoned")
)

// LLM request attributes.
const (
	LLMRequestModelKey       = attribute.Key("llm.request.model")
	LLMRequestTemperatureKey = attribute.Key("llm.request.temperature")
	LLMRequestTopPKey        = attribute.Key("llm.request.top_p")
	LLMRequestMaxTokensKey   = attribute.Key("llm.request.max_tokens")
	LLMRequestStreamingKey   = attribute.Key("llm.request.streaming")
	LLMProviderNameKey       = attribute.Key("llm.provider.name")
)

// LLM response / usage attributes. Cost is deliberately absent: the backend
// derives cost from token usage and model pricing, never from the SDK.
const (
	LLMResponseModelKey        = attribute.Key("llm.response.model")
	LLMResponseFinishReasonKey = attribute.Key("llm.response.finish_reason")
	LLMResponseIDKey           = attribute.Key("llm.response.id")
	LLMResponseTTFTMsKey       = attribute.Key("llm.response.time_to_first_token_ms")
	LLMResponseStreamingKey    = attribute.Key("llm.response.streaming")
	LLMResponseChunkCountKey   = attribute.Key("llm.response.chunk_count")

	LLMUsagePromptTokensKey     = attribute.Key("llm.usage.prompt_tokens")
	LLMUsageCompletionTokensKey = attribute.Key("llm.usage.completion_tokens")
	LLMUsageTotalTokensKey      = attribute.Key("llm.usage.total_tokens")
)

// Tool call attributes.
const (
	ToolNameKey      = attribute.Key("tool.name")
	ToolCallIDKey    = attribute.Key("tool.call_id")
	ToolArgumentsKey = attribute.Key("tool.arguments")
	ToolResultKey    = attribute.Key("tool.result")
)

// Agent / host-framework attributes.
const (
	AgentNameKey    = attribute.Key("agent.name")
	AgentRoleKey    = attribute.Key("agent.role")
	AgentInputKey   = attribute.Key("agent.input")
	AgentOutputKey  = attribute.Key("agent.output")
	SessionIDKey    = attribute.Key("agentops.session.id")
	WorkflowNameKey = attribute.Key("agentops.workflow.name")
	TraceTagsKey    = attribute.Key("agentops.trace.tags")
	HandoffFromKey  = attribute.Key("handoff.from")
	HandoffToKey    = attribute.Key("handoff.to")
)

// TraceMetadataPrefix namespaces caller-supplied trace metadata; the
// metadata key is appended to form the full attribute name.
const TraceMetadataPrefix = "agentops.trace.metadata."

// Error attributes, aligned with the error.* names used across the pack's
// OTel-instrumented examples.
const (
	ErrorTypeKey    = attribute.Key("error.type")
	ErrorMessageKey = attribute.Key("error.message")
)

// CustomPrefix is the one open namespace a caller may use freely for
// attributes that aren't part of this closed vocabulary.
const CustomPrefix = "custom."

// IsCustomKey reports whether name is inside the custom.* escape hatch.
func IsCustomKey(name string) bool {
	return len(name) > len(CustomPrefix) && name[:len(CustomPrefix)] == CustomPrefix
}

// RequestMessageRoleKey returns the indexed attribute key for the role of
// the i-th input message, e.g. "llm.request.messages.0.role".
func RequestMessageRoleKey(i int) attribute.Key {
	return attribute.Key(fmt.Sprintf("llm.request.messages.%d.role", i))
}

// RequestMessageContentKey returns the indexed attribute key for the content
// of the i-th input message.
func RequestMessageContentKey(i int) attribute.Key {
	return attribute.Key(fmt.Sprintf("llm.request.messages.%d.content", i))
}

// RequestToolCallNameKey returns the attribute key for the tool-call name
// attached to the i-th request message.
func RequestToolCallNameKey(i int) attribute.Key {
	return attribute.Key(fmt.Sprintf("llm.request.messages.%d.tool_calls.name", i))
}

// ResponseToolCallIDKey returns the indexed attribute key for the i-th tool
// call requested by a model response.
func ResponseToolCallIDKey(i int) attribute.Key {
	return attribute.Key(fmt.Sprintf("llm.response.tool_calls.%d.id", i))
}

// ResponseToolCallNameKey mirrors ResponseToolCallIDKey for the tool name.
func ResponseToolCallNameKey(i int) attribute.Key {
	return attribute.Key(fmt.Sprintf("llm.response.tool_calls.%d.name", i))
}

// RequestToolNameKey returns the indexed attribute key for the name of the
// i-th tool definition offered to the model, e.g. "llm.request.tools.0.name".
func RequestToolNameKey(i int) attribute.Key {
	return attribute.Key(fmt.Sprintf("llm.request.tools.%d.name", i))
}

// ResponseCompletionContentKey returns the indexed attribute key for the
// content of the i-th completion choice, e.g.
// "llm.response.completions.0.content".
func ResponseCompletionContentKey(i int) attribute.Key {
	return attribute.Key(fmt.Sprintf("llm.response.completions.%d.content", i))
}

// ResponseCompletionToolCallNameKey returns the indexed attribute key for
// the name of the j-th tool call attached to the i-th completion choice.
func ResponseCompletionToolCallNameKey(i, j int) attribute.Key {
	return attribute.Key(fmt.Sprintf("llm.response.completions.%d.tool_calls.%d.name", i, j))
}

// ResponseCompletionToolCallArgumentsKey mirrors
// ResponseCompletionToolCallNameKey for the call's arguments.
func ResponseCompletionToolCallArgumentsKey(i, j int) attribute.Key {
	return attribute.Key(fmt.Sprintf("llm.response.completions.%d.tool_calls.%d.arguments", i, j))
}

// SDK / resource attributes, attached once at resource construction.
const (
	ProjectIDKey          = attribute.Key("project.id")
	TelemetrySDKLanguage  = attribute.Key("telemetry.sdk.language")
	TelemetrySDKNameKey   = attribute.Key("telemetry.sdk.name")
	DeploymentEnvironment = attribute.Key("deployment.environment")
)
