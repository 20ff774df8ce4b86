package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentops-ai/agentops-go/hostagent/providers"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.defaultModel != "gpt-4o-mini" {
		t.Errorf("expected default model, got %q", p.defaultModel)
	}
	if p.Name() != "openai" {
		t.Errorf("expected name 'openai', got %q", p.Name())
	}
}

func jsonServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, body)
	}))
}

func TestComplete_ReturnsContentAndUsage(t *testing.T) {
	server := jsonServer(t, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4o-mini",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "hello there"}}],
		"usage": {"prompt_tokens": 4, "completion_tokens": 2, "total_tokens": 6}
	}`)
	defer server.Close()

	p, err := New(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := p.Complete(context.Background(), providers.CompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello there" {
		t.Errorf("expected 'hello there', got %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 6 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
	if resp.FinishReason != providers.FinishReasonStop {
		t.Errorf("expected stop finish reason, got %q", resp.FinishReason)
	}
}

func sseChatServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("expected http.Flusher")
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
}

func chunkJSON(t *testing.T, delta map[string]any, finish string) string {
	t.Helper()
	payload := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{"index": 0, "delta": delta, "finish_reason": finish}},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal chunk: %v", err)
	}
	return string(data)
}

func TestStream_AccumulatesContent(t *testing.T) {
	server := sseChatServer(t, []string{
		chunkJSON(t, map[string]any{"content": "Hello"}, ""),
		chunkJSON(t, map[string]any{"content": " world"}, ""),
		chunkJSON(t, map[string]any{}, "stop"),
	})
	defer server.Close()

	p, err := New(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reader, err := p.Stream(context.Background(), providers.CompletionRequest{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer reader.Close()

	var got string
	var sawComplete bool
	for {
		chunk, err := reader.Next()
		if err != nil {
			break
		}
		got += chunk.Content
		if chunk.IsComplete {
			sawComplete = true
			if chunk.FinishReason != providers.FinishReasonStop {
				t.Errorf("expected stop finish reason, got %q", chunk.FinishReason)
			}
		}
	}
	if got != "Hello world" {
		t.Errorf("expected 'Hello world', got %q", got)
	}
	if !sawComplete {
		t.Error("expected a terminal IsComplete chunk")
	}
}

func TestStream_AccumulatesToolCall(t *testing.T) {
	idx := 0
	server := sseChatServer(t, []string{
		chunkJSON(t, map[string]any{"tool_calls": []map[string]any{
			{"index": idx, "id": "call_1", "function": map[string]any{"name": "get_weather", "arguments": ""}},
		}}, ""),
		chunkJSON(t, map[string]any{"tool_calls": []map[string]any{
			{"index": idx, "function": map[string]any{"arguments": `{"city":`}},
		}}, ""),
		chunkJSON(t, map[string]any{"tool_calls": []map[string]any{
			{"index": idx, "function": map[string]any{"arguments": `"SF"}`}},
		}}, "tool_calls"),
	})
	defer server.Close()

	p, err := New(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reader, err := p.Stream(context.Background(), providers.CompletionRequest{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "weather?"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer reader.Close()

	var sawTool bool
	for {
		chunk, err := reader.Next()
		if err != nil {
			break
		}
		if chunk.ToolCallID == "call_1" {
			sawTool = true
			if chunk.ToolName != "get_weather" {
				t.Errorf("expected get_weather, got %q", chunk.ToolName)
			}
			if chunk.ToolArgs != `{"city":"SF"}` {
				t.Errorf("expected accumulated args, got %q", chunk.ToolArgs)
			}
		}
	}
	if !sawTool {
		t.Error("expected a tool call chunk")
	}
}
