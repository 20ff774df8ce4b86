// Package hostagent provides a small LLM agent that drives a tool-calling
// loop against a pluggable provider and reports each step through a Tracer.
package hostagent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentops-ai/agentops-go/hostagent/providers"
	"github.com/agentops-ai/agentops-go/hostagent/providers/mock"
)

const defaultMaxIterations = 10

// Config configures an Agent.
type Config struct {
	// APIKey authenticates the agent's own operations; the LLM call itself
	// authenticates through whatever LLMProvider was built with.
	APIKey string
	// Model is the default model name passed to LLMProvider.Complete.
	Model string
	// LLMProvider performs the actual completions. Required.
	LLMProvider providers.Provider
	// SystemPrompt, if set, is sent as the first message of every run.
	SystemPrompt string
	// MaxIterations bounds the tool-call loop (default 10).
	MaxIterations int
	// Temperature is forwarded to LLMProvider on every call.
	Temperature float32
}

// Validate checks that cfg has everything New needs.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("hostagent: APIKey is required")
	}
	if c.Model == "" {
		return fmt.Errorf("hostagent: Model is required")
	}
	if c.LLMProvider == nil {
		return fmt.Errorf("hostagent: LLMProvider is required")
	}
	return nil
}

// Agent runs a tool-calling loop against an LLMProvider, reporting each
// generation and tool call to an installed Tracer.
type Agent struct {
	config        Config
	tools         map[string]Tool
	maxIterations int
	tracer        Tracer
}

// New constructs an Agent from cfg.
func New(cfg Config) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	return &Agent{
		config:        cfg,
		tools:         make(map[string]Tool),
		maxIterations: maxIter,
		tracer:        &NoOpTracer{},
	}, nil
}

// NewMockLLM returns a fresh mock provider suitable for wiring into Config
// in tests; chain WithResponse/WithStream on the result to script replies.
func NewMockLLM() *mock.Provider {
	return mock.New()
}

// Model returns the agent's default model name.
func (a *Agent) Model() string {
	return a.config.Model
}

// AddTool registers a tool the model may call during Run.
func (a *Agent) AddTool(tool Tool) {
	a.tools[tool.Name()] = tool
}

// SetTracer installs t as the agent's tracer and returns the one it
// replaces, so an instrumentor can restore it on teardown.
func (a *Agent) SetTracer(t Tracer) Tracer {
	prev := a.tracer
	if t == nil {
		t = &NoOpTracer{}
	}
	a.tracer = t
	return prev
}

// Run executes the tool-calling loop for userMessage and returns the
// model's final text response.
func (a *Agent) Run(ctx context.Context, userMessage string) (string, error) {
	ctx, endTrace := a.tracer.StartTrace(ctx, "agent.run", WithTraceInput(userMessage))
	defer endTrace()

	var messages []providers.Message
	if a.config.SystemPrompt != "" {
		messages = append(messages, providers.Message{Role: providers.RoleSystem, Content: a.config.SystemPrompt})
	}
	messages = append(messages, providers.Message{Role: providers.RoleUser, Content: userMessage})

	toolDefs := a.toolDefinitions()

	for iteration := 0; iteration < a.maxIterations; iteration++ {
		resp, err := a.complete(ctx, messages, toolDefs)
		if err != nil {
			return "", err
		}

		messages = append(messages, providers.Message{
			Role:      providers.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if resp.FinishReason != providers.FinishReasonToolCalls || len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		for _, tc := range resp.ToolCalls {
			_, resultText := a.runTool(ctx, tc)
			messages = append(messages, providers.Message{
				Role:       providers.RoleTool,
				Content:    resultText,
				ToolCallID: tc.ID,
			})
		}
	}

	return "", fmt.Errorf("hostagent: exceeded max iterations (%d)", a.maxIterations)
}

func (a *Agent) toolDefinitions() []providers.ToolDefinition {
	if len(a.tools) == 0 {
		return nil
	}
	defs := make([]providers.ToolDefinition, 0, len(a.tools))
	for _, t := range a.tools {
		defs = append(defs, t.ToToolDefinition())
	}
	return defs
}

func (a *Agent) complete(ctx context.Context, messages []providers.Message, tools []providers.ToolDefinition) (*providers.CompletionResponse, error) {
	req := providers.CompletionRequest{
		Model:       a.config.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: a.config.Temperature,
	}

	start := time.Now()
	resp, err := a.config.LLMProvider.Complete(ctx, req)
	end := time.Now()

	genOpts := GenerationOptions{
		Name:            "llm.completion",
		Model:           a.config.Model,
		Input:           toLogMessages(messages),
		ModelParameters: map[string]any{"temperature": a.config.Temperature},
		StartTime:       start,
		EndTime:         end,
	}

	if err != nil {
		genOpts.Level = LogLevelError
		genOpts.StatusMessage = err.Error()
		a.tracer.LogGeneration(ctx, genOpts)
		return nil, fmt.Errorf("hostagent: completion failed: %w", err)
	}

	genOpts.Output = []map[string]string{{"role": "assistant", "content": resp.Content}}
	genOpts.Usage = &UsageInfo{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	genOpts.Metadata = map[string]any{
		"response_id":   resp.ID,
		"finish_reason": string(resp.FinishReason),
	}
	a.tracer.LogGeneration(ctx, genOpts)

	return resp, nil
}

func (a *Agent) runTool(ctx context.Context, tc providers.ToolCall) (any, string) {
	toolCtx, endSpan := a.tracer.StartSpan(ctx, tc.Name, WithSpanType(SpanTypeTool))
	defer endSpan()

	argsJSON, _ := json.Marshal(tc.Arguments)
	a.tracer.SetSpanAttributes(toolCtx, map[string]any{
		"tool.name":      tc.Name,
		"tool.call_id":   tc.ID,
		"tool.arguments": string(argsJSON),
	})

	tool, ok := a.tools[tc.Name]
	if !ok {
		err := fmt.Errorf("hostagent: unknown tool %q", tc.Name)
		a.tracer.SetSpanAttributes(toolCtx, map[string]any{
			"error":      err.Error(),
			"error.type": fmt.Sprintf("%T", err),
		})
		return nil, err.Error()
	}

	result, err := tool.Execute(toolCtx, string(argsJSON))
	if err != nil {
		a.tracer.SetSpanAttributes(toolCtx, map[string]any{
			"error":      err.Error(),
			"error.type": fmt.Sprintf("%T", err),
		})
		return nil, err.Error()
	}

	a.tracer.SetSpanOutput(toolCtx, result)
	text, err := marshalToolResult(result)
	if err != nil {
		return result, fmt.Sprintf("%v", result)
	}
	return result, text
}

func toLogMessages(messages []providers.Message) []map[string]string {
	out := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, map[string]string{"role": string(m.Role), "content": m.Content})
	}
	return out
}

func marshalToolResult(result any) (string, error) {
	if s, ok := result.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
