package llm

import (
	"context"
	"io"
	"testing"

	"github.com/agentops-ai/agentops-go/hostagent/providers"
	mockprovider "github.com/agentops-ai/agentops-go/hostagent/providers/mock"
	"github.com/agentops-ai/agentops-go/registry"
	"github.com/agentops-ai/agentops-go/wrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestEngine() (*wrap.Engine, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return wrap.NewEngine(tp.Tracer("test"), nil), sr
}

func findAttr(span sdktrace.ReadOnlySpan, key string) (string, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.Emit(), true
		}
	}
	return "", false
}

func TestComplete_RecordsRequestAndResponseAttrs(t *testing.T) {
	eng, sr := newTestEngine()
	mock := mockprovider.New().WithResponse("hi there", nil)

	p := New(mock, eng)

	req := providers.CompletionRequest{
		Model:    "mock-model",
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hello"}},
	}
	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	model, ok := findAttr(spans[0], "llm.request.model")
	require.True(t, ok)
	assert.Equal(t, "mock-model", model)

	role, ok := findAttr(spans[0], "llm.request.messages.0.role")
	require.True(t, ok)
	assert.Equal(t, "user", role)

	content, ok := findAttr(spans[0], "llm.response.completions.0.content")
	require.True(t, ok)
	assert.Equal(t, "hi there", content)
}

func TestComplete_ErrorSetsSpanError(t *testing.T) {
	eng, sr := newTestEngine()
	mock := mockprovider.New() // no response configured -> ErrNoResponse

	p := New(mock, eng)
	_, err := p.Complete(context.Background(), providers.CompletionRequest{Model: "mock-model"})
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	errType, ok := findAttr(spans[0], "error.type")
	require.True(t, ok)
	assert.NotEmpty(t, errType)

	errMsg, ok := findAttr(spans[0], "error.message")
	require.True(t, ok)
	assert.NotEmpty(t, errMsg)
}

func TestStream_DrainsUnderlyingChunksAndEndsSpan(t *testing.T) {
	eng, sr := newTestEngine()
	mock := mockprovider.New().WithStream([]providers.StreamChunk{
		{Content: "a"},
		{Content: "b", IsComplete: true},
	})

	p := New(mock, eng)
	reader, err := p.Stream(context.Background(), providers.CompletionRequest{Model: "mock-model"})
	require.NoError(t, err)

	var got []string
	for {
		chunk, err := reader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk.Content)
	}
	require.NoError(t, reader.Close())

	assert.Equal(t, []string{"a", "b"}, got)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	content, ok := findAttr(spans[0], "llm.response.completions.0.content")
	require.True(t, ok)
	assert.Equal(t, "ab", content)

	chunkCount, ok := findAttr(spans[0], "llm.response.chunk_count")
	require.True(t, ok)
	assert.Equal(t, "2", chunkCount)
}

func TestActivate_RegistersLLMInstrumentor(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	r := registry.New(tp, nil)
	mock := mockprovider.New().WithResponse("ok", nil)

	wrapped, err := r.Activate(mock)
	require.NoError(t, err)
	assert.Contains(t, r.Active(), "llm")

	p, ok := wrapped.(providers.Provider)
	require.True(t, ok)
	assert.Equal(t, "mock", p.Name())
}
