package agentops

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestStatus_OtelCodeMapsUnmappedToUnset(t *testing.T) {
	require.Equal(t, StatusUnset.otelCode().String(), Status(99).otelCode().String(),
		"an unmapped Status value must map to the same otel code as StatusUnset")
}

func TestStartTrace_AppliesSessionIDTagsAndMetadata(t *testing.T) {
	srv := testBackend(t)
	sdk, err := Init(context.Background(),
		WithAPIKey("key-1"), WithAPIEndpoint(srv.URL),
		WithoutAutoShutdown(), WithoutAutoStartSession(),
	)
	require.NoError(t, err)
	defer sdk.Shutdown(context.Background())

	_, handle := sdk.StartTrace(context.Background(), "trace",
		WithTraceSessionID("sess-1"),
		WithTraceTags("a", "b"),
		WithTraceMetadata(map[string]any{"k": "v"}),
	)
	require.NotNil(t, handle.span)

	rw, ok := handle.span.(sdktrace.ReadWriteSpan)
	require.True(t, ok, "a live recording span exposes its attributes via ReadWriteSpan")
	var sessionID, metaK string
	var tags []string
	for _, kv := range rw.Attributes() {
		switch kv.Key {
		case "agentops.session.id":
			sessionID = kv.Value.AsString()
		case "agentops.trace.tags":
			tags = kv.Value.AsStringSlice()
		case "agentops.trace.metadata.k":
			metaK = kv.Value.AsString()
		}
	}
	require.Equal(t, "sess-1", sessionID)
	require.Equal(t, []string{"a", "b"}, tags)
	require.Equal(t, "v", metaK)
	sdk.EndTrace(handle, StatusOk)
}

func TestRunTrace_RecordsErrorAttributesOnFailure(t *testing.T) {
	srv := testBackend(t)
	sdk, err := Init(context.Background(),
		WithAPIKey("key-1"), WithAPIEndpoint(srv.URL),
		WithoutAutoShutdown(), WithoutAutoStartSession(),
	)
	require.NoError(t, err)
	defer sdk.Shutdown(context.Background())

	want := errors.New("boom")
	var span trace.Span
	got := sdk.runTrace(context.Background(), "trace", func(ctx context.Context) error {
		span = trace.SpanFromContext(ctx)
		return want
	})
	require.ErrorIs(t, got, want)

	ro, ok := span.(sdktrace.ReadOnlySpan)
	require.True(t, ok, "the trace's span is a recording span")
	var errType, errMsg string
	for _, kv := range ro.Attributes() {
		switch kv.Key {
		case "error.type":
			errType = kv.Value.AsString()
		case "error.message":
			errMsg = kv.Value.AsString()
		}
	}
	require.Equal(t, "*errors.errorString", errType)
	require.Equal(t, "boom", errMsg)
}

func TestEndTrace_DoubleEndDoesNotDoubleDecrement(t *testing.T) {
	srv := testBackend(t)
	sdk, err := Init(context.Background(),
		WithAPIKey("key-1"), WithAPIEndpoint(srv.URL),
		WithoutAutoShutdown(), WithoutAutoStartSession(),
	)
	require.NoError(t, err)
	defer sdk.Shutdown(context.Background())

	_, handle := sdk.StartTrace(context.Background(), "trace")
	require.EqualValues(t, 1, sdk.activeTraces.Load())

	sdk.EndTrace(handle, StatusOk)
	require.EqualValues(t, 0, sdk.activeTraces.Load())

	sdk.EndTrace(handle, StatusError)
	require.EqualValues(t, 0, sdk.activeTraces.Load(), "ending an already-ended handle must not double-decrement")
}

func TestStartTrace_GeneratesSessionIDWhenUnset(t *testing.T) {
	srv := testBackend(t)
	sdk, err := Init(context.Background(),
		WithAPIKey("key-1"), WithAPIEndpoint(srv.URL),
		WithoutAutoShutdown(), WithoutAutoStartSession(),
	)
	require.NoError(t, err)
	defer sdk.Shutdown(context.Background())

	_, handle := sdk.StartTrace(context.Background(), "trace")
	defer sdk.EndTrace(handle, StatusOk)

	rw, ok := handle.span.(sdktrace.ReadWriteSpan)
	require.True(t, ok, "a live recording span exposes its attributes via ReadWriteSpan")

	var sessionID string
	for _, kv := range rw.Attributes() {
		if kv.Key == "agentops.session.id" {
			sessionID = kv.Value.AsString()
		}
	}
	require.NotEmpty(t, sessionID)
	_, err = uuid.Parse(sessionID)
	require.NoError(t, err, "a generated session id must be a valid UUID")
}

func TestWithContext_CarriesSpanIntoNewContext(t *testing.T) {
	srv := testBackend(t)
	sdk, err := Init(context.Background(),
		WithAPIKey("key-1"), WithAPIEndpoint(srv.URL),
		WithoutAutoShutdown(), WithoutAutoStartSession(),
	)
	require.NoError(t, err)
	defer sdk.Shutdown(context.Background())

	traceCtx, handle := sdk.StartTrace(context.Background(), "trace")
	defer sdk.EndTrace(handle, StatusOk)

	wantTraceID := trace.SpanContextFromContext(traceCtx).TraceID()

	done := make(chan trace.TraceID, 1)
	bound := WithContext(traceCtx, func(inner context.Context) {
		done <- trace.SpanContextFromContext(inner).TraceID()
	})

	// The goroutine's own fresh context stands in for a caller-owned
	// cancellation context that never saw the trace.
	go bound(context.Background())
	require.Equal(t, wantTraceID, <-done,
		"spans started in the bound frame must parent under the originating trace")
}

func TestEndTrace_NilHandleIsNoOp(t *testing.T) {
	srv := testBackend(t)
	sdk, err := Init(context.Background(),
		WithAPIKey("key-1"), WithAPIEndpoint(srv.URL),
		WithoutAutoShutdown(), WithoutAutoStartSession(),
	)
	require.NoError(t, err)
	defer sdk.Shutdown(context.Background())

	require.NotPanics(t, func() { sdk.EndTrace(nil, StatusOk) })
}
