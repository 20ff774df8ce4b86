package hostagent

import (
	"context"
	"testing"

	"github.com/agentops-ai/agentops-go/hostagent/providers"
)

func TestNew_ValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing model")
	}
	if _, err := New(Config{APIKey: "k", Model: "m"}); err == nil {
		t.Fatal("expected error for missing LLMProvider")
	}
}

func TestNew_Defaults(t *testing.T) {
	agent, err := New(Config{APIKey: "k", Model: "gpt-4o-mini", LLMProvider: NewMockLLM()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agent.Model() != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %q", agent.Model())
	}
	if agent.maxIterations != defaultMaxIterations {
		t.Errorf("expected default max iterations, got %d", agent.maxIterations)
	}
}

func TestRun_ReturnsFinalTextWithoutToolCalls(t *testing.T) {
	llm := NewMockLLM().WithResponse("hi there", nil)
	agent, err := New(Config{APIKey: "k", Model: "gpt-4o-mini", LLMProvider: llm})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := agent.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hi there" {
		t.Errorf("expected 'hi there', got %q", out)
	}
}

func TestRun_ExecutesToolCallThenReturnsFinalText(t *testing.T) {
	llm := NewMockLLM().
		WithResponse("", []providers.ToolCall{{ID: "call_1", Name: "get_weather", Arguments: map[string]any{"city": "SF"}}}).
		WithResponse("it's sunny", nil)

	agent, err := New(Config{APIKey: "k", Model: "gpt-4o-mini", LLMProvider: llm})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var gotArgs map[string]any
	agent.AddTool(NewTool("get_weather", "looks up the weather",
		map[string]any{"type": "object", "properties": map[string]any{"city": map[string]any{"type": "string"}}},
		func(ctx context.Context, args map[string]any) (any, error) {
			gotArgs = args
			return map[string]any{"forecast": "sunny"}, nil
		}))

	out, err := agent.Run(context.Background(), "what's the weather in SF?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "it's sunny" {
		t.Errorf("expected final text, got %q", out)
	}
	if gotArgs["city"] != "SF" {
		t.Errorf("expected tool to receive city=SF, got %+v", gotArgs)
	}
}

func TestRun_UnknownToolReportsErrorButContinues(t *testing.T) {
	llm := NewMockLLM().
		WithResponse("", []providers.ToolCall{{ID: "call_1", Name: "missing_tool", Arguments: nil}}).
		WithResponse("done anyway", nil)

	agent, err := New(Config{APIKey: "k", Model: "gpt-4o-mini", LLMProvider: llm})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := agent.Run(context.Background(), "call something")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "done anyway" {
		t.Errorf("expected final text, got %q", out)
	}
}

func TestRun_PropagatesProviderError(t *testing.T) {
	agent, err := New(Config{APIKey: "k", Model: "gpt-4o-mini", LLMProvider: NewMockLLM()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := agent.Run(context.Background(), "hello"); err == nil {
		t.Fatal("expected error from unconfigured mock provider")
	}
}

func TestSetTracer_ReturnsPrevious(t *testing.T) {
	agent, err := New(Config{APIKey: "k", Model: "gpt-4o-mini", LLMProvider: NewMockLLM()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := &NoOpTracer{}
	prev := agent.SetTracer(first)
	if _, ok := prev.(*NoOpTracer); !ok {
		t.Errorf("expected default tracer to be *NoOpTracer, got %T", prev)
	}

	second := &NoOpTracer{}
	prev2 := agent.SetTracer(second)
	if prev2 != first {
		t.Error("expected SetTracer to return the previously installed tracer")
	}
}
