package hostagent

import (
	"context"
	"testing"
)

func TestNoOpTracer_NeverErrorsOrPanics(t *testing.T) {
	tracer := &NoOpTracer{}
	ctx := context.Background()

	spanCtx, endTrace := tracer.StartTrace(ctx, "run", WithSessionID("s1"), WithTags("a", "b"), WithTraceInput("in"))
	if spanCtx != ctx {
		t.Error("expected NoOpTracer.StartTrace to return ctx unchanged")
	}

	toolCtx, endSpan := tracer.StartSpan(spanCtx, "tool", WithSpanType(SpanTypeTool), WithSpanInput("x"))
	if toolCtx != spanCtx {
		t.Error("expected NoOpTracer.StartSpan to return ctx unchanged")
	}

	if err := tracer.LogGeneration(ctx, GenerationOptions{Name: "llm.completion"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := tracer.LogEvent(ctx, "evt", nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := tracer.SetTraceAttributes(ctx, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := tracer.SetSpanOutput(ctx, "out"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := tracer.SetSpanAttributes(ctx, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := tracer.Flush(ctx); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	endSpan()
	endTrace()
}

func TestTraceOptions_ApplyToConfig(t *testing.T) {
	cfg := &TraceConfig{}
	WithSessionID("s1")(cfg)
	WithTags("a", "b")(cfg)
	WithMetadata(map[string]any{"k": "v"})(cfg)
	WithTraceInput("in")(cfg)

	if cfg.SessionID != "s1" {
		t.Errorf("expected SessionID s1, got %q", cfg.SessionID)
	}
	if len(cfg.Tags) != 2 {
		t.Errorf("expected 2 tags, got %v", cfg.Tags)
	}
	if cfg.Metadata["k"] != "v" {
		t.Errorf("expected metadata k=v, got %+v", cfg.Metadata)
	}
	if cfg.Input != "in" {
		t.Errorf("expected input 'in', got %v", cfg.Input)
	}
}

func TestSpanOptions_ApplyToConfig(t *testing.T) {
	cfg := &SpanConfig{}
	WithSpanType(SpanTypeTool)(cfg)
	WithSpanInput("in")(cfg)
	WithSpanMetadata(map[string]any{"k": "v"})(cfg)

	if cfg.Type != SpanTypeTool {
		t.Errorf("expected SpanTypeTool, got %q", cfg.Type)
	}
	if cfg.Input != "in" {
		t.Errorf("expected input 'in', got %v", cfg.Input)
	}
	if cfg.Metadata["k"] != "v" {
		t.Errorf("expected metadata k=v, got %+v", cfg.Metadata)
	}
}
