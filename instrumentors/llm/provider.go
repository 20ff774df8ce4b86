// Package llm instruments any github.com/agentops-ai/agentops-go/hostagent/providers.Provider
// (OpenAI, Anthropic, the mock fixture, or any future implementation) without
// depending on a provider-specific plugin hook: unlike hostagent.Tracer,
// providers.Provider exposes no seam for a host to install an observer, so
// this instrumentor follows the wrap package's closure-substitution pattern
// instead, handing back a decorator that implements providers.Provider
// itself and must be used in place of the original.
package llm

import (
	"context"
	"fmt"

	"github.com/agentops-ai/agentops-go/hostagent/providers"
	"github.com/agentops-ai/agentops-go/registry"
	"github.com/agentops-ai/agentops-go/semconv"
	"github.com/agentops-ai/agentops-go/stream"
	"github.com/agentops-ai/agentops-go/wrap"
	"go.opentelemetry.io/otel/trace"
)

func init() {
	registry.Register(registry.Descriptor{
		Name: "llm",
		Detect: func(host any) bool {
			_, ok := host.(providers.Provider)
			return ok
		},
		Activate: func(host any, tp trace.TracerProvider) (any, func(), error) {
			p, ok := host.(providers.Provider)
			if !ok {
				return nil, nil, fmt.Errorf("llm instrumentor: host is %T, want providers.Provider", host)
			}
			eng := wrap.NewEngine(tp.Tracer("github.com/agentops-ai/agentops-go/hostagent/providers"), nil)
			wrapped := New(p, eng)
			return wrapped, func() {}, nil
		},
	})
}

// Provider decorates a providers.Provider, recording each Complete/Stream
// call as a span carrying the same llm.request.*/llm.response.* attributes
// the hostagent instrumentor writes, so a host using providers.Provider
// directly (without the bundled Agent orchestration) gets the same shape of
// trace.
type Provider struct {
	inner providers.Provider

	complete func(context.Context, providers.CompletionRequest) (*providers.CompletionResponse, error)
	stream   func(context.Context, providers.CompletionRequest) (stream.Source[*providers.StreamChunk], error)
}

// New wraps p's Complete and Stream methods with eng, labeling both wraps
// under the provider's own Name() so two different providers activated
// against the same Engine don't collide.
func New(p providers.Provider, eng *wrap.Engine) *Provider {
	label := "llm." + p.Name()
	nameOf := func(providers.CompletionRequest) string { return "llm.completion" }

	ip := &Provider{inner: p}

	ip.complete = wrap.Func(eng, label+".complete", trace.SpanKindClient, nameOf,
		wrap.Handler[providers.CompletionRequest, *providers.CompletionResponse]{
			Pre: func(_ context.Context, req providers.CompletionRequest) map[string]any {
				return requestAttrs(p.Name(), req)
			},
			Post: func(_ context.Context, resp *providers.CompletionResponse) map[string]any {
				return responseAttrs(resp)
			},
		},
		p.Complete,
	)

	ip.stream = wrap.Stream(eng, label+".stream", trace.SpanKindClient, nameOf,
		wrap.StreamHandler[providers.CompletionRequest, *providers.StreamChunk]{
			Pre: func(_ context.Context, req providers.CompletionRequest) map[string]any {
				return requestAttrs(p.Name(), req)
			},
			Chunk: stream.ChunkHandler[*providers.StreamChunk]{
				Extract: func(c *providers.StreamChunk) (string, map[string]any) {
					if c == nil {
						return "", nil
					}
					return c.Content, nil
				},
			},
			Final: stream.FinalHandler[*providers.StreamChunk]{
				Finish: func(content string, chunkCount int, _ error) map[string]any {
					return map[string]any{
						string(semconv.LLMResponseChunkCountKey):         chunkCount,
						string(semconv.ResponseCompletionContentKey(0)): content,
					}
				},
			},
		},
		func(ctx context.Context, req providers.CompletionRequest) (stream.Source[*providers.StreamChunk], error) {
			r, err := p.Stream(ctx, req)
			if err != nil {
				return nil, err
			}
			return &readerSource{r: r}, nil
		},
	)

	return ip
}

// Complete satisfies providers.Provider.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	return p.complete(ctx, req)
}

// Stream satisfies providers.Provider, handing back a providers.StreamReader
// whose Next/Close drive the span opened for the call.
func (p *Provider) Stream(ctx context.Context, req providers.CompletionRequest) (providers.StreamReader, error) {
	src, err := p.stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return &sourceReader{ctx: ctx, src: src}, nil
}

// Name satisfies providers.Provider by delegating to the wrapped provider.
func (p *Provider) Name() string { return p.inner.Name() }

func requestAttrs(providerName string, req providers.CompletionRequest) map[string]any {
	out := map[string]any{
		string(semconv.LLMRequestModelKey):     req.Model,
		string(semconv.LLMRequestStreamingKey): req.Stream,
		string(semconv.LLMProviderNameKey):     providerName,
	}
	if req.Temperature != 0 {
		out[string(semconv.LLMRequestTemperatureKey)] = req.Temperature
	}
	if req.TopP != 0 {
		out[string(semconv.LLMRequestTopPKey)] = req.TopP
	}
	if req.MaxTokens != 0 {
		out[string(semconv.LLMRequestMaxTokensKey)] = req.MaxTokens
	}
	for i, m := range req.Messages {
		out[string(semconv.RequestMessageRoleKey(i))] = string(m.Role)
		out[string(semconv.RequestMessageContentKey(i))] = m.Content
	}
	for i, t := range req.Tools {
		out[string(semconv.RequestToolNameKey(i))] = t.Name
	}
	return out
}

func responseAttrs(resp *providers.CompletionResponse) map[string]any {
	if resp == nil {
		return nil
	}
	out := map[string]any{
		string(semconv.LLMResponseIDKey):                 resp.ID,
		string(semconv.LLMResponseModelKey):              resp.Model,
		string(semconv.LLMResponseFinishReasonKey):       string(resp.FinishReason),
		string(semconv.ResponseCompletionContentKey(0)): resp.Content,
		string(semconv.LLMUsagePromptTokensKey):          resp.Usage.PromptTokens,
		string(semconv.LLMUsageCompletionTokensKey):      resp.Usage.CompletionTokens,
		string(semconv.LLMUsageTotalTokensKey):           resp.Usage.TotalTokens,
	}
	for j, tc := range resp.ToolCalls {
		out[string(semconv.ResponseCompletionToolCallNameKey(0, j))] = tc.Name
		out[string(semconv.ResponseCompletionToolCallArgumentsKey(0, j))] = tc.Arguments
	}
	return out
}

// readerSource adapts a providers.StreamReader (no ctx on Next) to
// stream.Source[*providers.StreamChunk] (ctx-carrying Next), which is what
// wrap.Stream/stream.Wrap require.
type readerSource struct {
	r providers.StreamReader
}

func (s *readerSource) Next(ctx context.Context) (*providers.StreamChunk, error) {
	return s.r.Next()
}

func (s *readerSource) Close() error { return s.r.Close() }

// sourceReader adapts the other direction: stream.Wrap hands back a
// stream.Source[*providers.StreamChunk], but Provider.Stream's return type
// is providers.StreamReader, so this pins the ctx captured at Stream-call
// time and drops it back out through Source.Next.
type sourceReader struct {
	ctx context.Context
	src stream.Source[*providers.StreamChunk]
}

func (s *sourceReader) Next() (*providers.StreamChunk, error) { return s.src.Next(s.ctx) }
func (s *sourceReader) Close() error                           { return s.src.Close() }
