package mock

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/agentops-ai/agentops-go/hostagent/providers"
)

func TestComplete_PlaysBackScriptedRepliesInOrder(t *testing.T) {
	p := New().
		WithResponse("first", nil).
		WithResponse("", []providers.ToolCall{{Name: "lookup", Arguments: map[string]any{"q": "x"}}})

	resp, err := p.Complete(context.Background(), providers.CompletionRequest{})
	if err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	if resp.Content != "first" {
		t.Errorf("first content = %q, want %q", resp.Content, "first")
	}
	if resp.FinishReason != providers.FinishReasonStop {
		t.Errorf("first finish reason = %s, want stop", resp.FinishReason)
	}

	resp, err = p.Complete(context.Background(), providers.CompletionRequest{})
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "lookup" {
		t.Errorf("second reply tool calls = %v, want one %q call", resp.ToolCalls, "lookup")
	}
	if resp.FinishReason != providers.FinishReasonToolCalls {
		t.Errorf("second finish reason = %s, want tool_calls", resp.FinishReason)
	}

	if _, err := p.Complete(context.Background(), providers.CompletionRequest{}); err != ErrNoResponse {
		t.Errorf("exhausted queue error = %v, want ErrNoResponse", err)
	}
}

func TestComplete_DerivesUsageFromScriptedText(t *testing.T) {
	p := New().WithResponse("three word reply", nil)

	resp, err := p.Complete(context.Background(), providers.CompletionRequest{
		SystemPrompt: "be terse",
		Messages:     []providers.Message{{Role: providers.RoleUser, Content: "hello there"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Usage.PromptTokens != 4 {
		t.Errorf("prompt tokens = %d, want 4 (system prompt + user message words)", resp.Usage.PromptTokens)
	}
	if resp.Usage.CompletionTokens != 3 {
		t.Errorf("completion tokens = %d, want 3", resp.Usage.CompletionTokens)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("total tokens = %d, want 7", resp.Usage.TotalTokens)
	}
}

func TestStream_PlaysBackChunksThenEOF(t *testing.T) {
	p := New().WithStream([]providers.StreamChunk{
		{Content: "Hello"},
		{Content: " world"},
		{Content: "!", IsComplete: true},
	})

	reader, err := p.Stream(context.Background(), providers.CompletionRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer reader.Close()

	var got string
	for {
		chunk, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got += chunk.Content
	}
	if got != "Hello world!" {
		t.Errorf("accumulated content = %q, want %q", got, "Hello world!")
	}
}

func TestStream_EmptyQueueReturnsErrNoStream(t *testing.T) {
	if _, err := New().Stream(context.Background(), providers.CompletionRequest{}); err != ErrNoStream {
		t.Errorf("Stream on empty queue = %v, want ErrNoStream", err)
	}
}

func TestComplete_NextStepIsStreamReturnsErrNoResponse(t *testing.T) {
	p := New().WithStream([]providers.StreamChunk{{Content: "x"}})
	if _, err := p.Complete(context.Background(), providers.CompletionRequest{}); err != ErrNoResponse {
		t.Errorf("Complete against a scripted stream = %v, want ErrNoResponse", err)
	}
}

func TestWithError_FailsTheNextCall(t *testing.T) {
	boom := errors.New("backend unavailable")
	p := New().WithError(boom).WithResponse("after the failure", nil)

	if _, err := p.Complete(context.Background(), providers.CompletionRequest{}); !errors.Is(err, boom) {
		t.Fatalf("first Complete = %v, want scripted error", err)
	}

	resp, err := p.Complete(context.Background(), providers.CompletionRequest{})
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if resp.Content != "after the failure" {
		t.Errorf("content after scripted error = %q, want %q", resp.Content, "after the failure")
	}
}

func TestCallCount_CountsEveryPlaybackAttempt(t *testing.T) {
	p := New().WithResponse("one", nil).WithStream([]providers.StreamChunk{{Content: "x"}})

	if p.CallCount() != 0 {
		t.Fatalf("initial call count = %d, want 0", p.CallCount())
	}
	_, _ = p.Complete(context.Background(), providers.CompletionRequest{})
	_, _ = p.Stream(context.Background(), providers.CompletionRequest{})
	_, _ = p.Complete(context.Background(), providers.CompletionRequest{}) // empty queue still counts
	if p.CallCount() != 3 {
		t.Errorf("call count = %d, want 3", p.CallCount())
	}
}

func TestPlayback_NextAfterCloseErrors(t *testing.T) {
	p := New().WithStream([]providers.StreamChunk{{Content: "x"}})
	reader, err := p.Stream(context.Background(), providers.CompletionRequest{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := reader.Next(); err != ErrNoStream {
		t.Errorf("Next after Close = %v, want ErrNoStream", err)
	}
}
