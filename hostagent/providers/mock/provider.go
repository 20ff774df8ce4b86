// Package mock provides a scriptable in-memory Provider for tests. Replies
// are queued up front with WithResponse/WithStream/WithError and played back
// in order across Complete and Stream calls, with token usage derived from
// the scripted content instead of invented constants, so assertions against
// usage attributes track the text the test actually scripted.
package mock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/agentops-ai/agentops-go/hostagent/providers"
)

var (
	ErrNoResponse = errors.New("mock: no completion scripted")
	ErrNoStream   = errors.New("mock: no stream scripted")
)

// reply is one scripted playback step: exactly one of resp, chunks, or err
// is set. A Complete call consumes a resp step, a Stream call a chunks
// step; either call consumes an err step by returning its error.
type reply struct {
	resp   *providers.CompletionResponse
	chunks []providers.StreamChunk
	err    error
}

// Provider implements providers.Provider by replaying a scripted queue.
type Provider struct {
	mu    sync.Mutex
	queue []reply
	calls int
}

// New returns an empty provider; chain With* calls to script replies.
func New() *Provider {
	return &Provider{}
}

// WithResponse queues a completion. FinishReason is tool_calls when any
// tool calls are scripted, stop otherwise; completion token usage is
// derived from content at playback time.
func (m *Provider) WithResponse(content string, toolCalls []providers.ToolCall) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()

	finish := providers.FinishReasonStop
	if len(toolCalls) > 0 {
		finish = providers.FinishReasonToolCalls
	}
	m.queue = append(m.queue, reply{resp: &providers.CompletionResponse{
		ID:           fmt.Sprintf("mock-%03d", len(m.queue)+1),
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: finish,
		Model:        "mock-model",
	}})
	return m
}

// WithStream queues a streaming reply that plays back chunks in order.
func (m *Provider) WithStream(chunks []providers.StreamChunk) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()

	scripted := make([]providers.StreamChunk, len(chunks))
	copy(scripted, chunks)
	m.queue = append(m.queue, reply{chunks: scripted})
	return m
}

// WithError queues a failure: the next Complete or Stream call returns err.
func (m *Provider) WithError(err error) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, reply{err: err})
	return m
}

// Name satisfies providers.Provider.
func (m *Provider) Name() string { return "mock" }

// Complete plays back the next scripted step. An empty queue, or a queue
// whose next step is a stream, returns ErrNoResponse.
func (m *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	r, err := m.pop()
	if err != nil {
		return nil, err
	}
	if r.resp == nil {
		return nil, ErrNoResponse
	}

	resp := *r.resp
	resp.Created = time.Now()
	resp.Usage = deriveUsage(req, resp.Content)
	return &resp, nil
}

// Stream plays back the next scripted step. An empty queue, or a queue
// whose next step is a completion, returns ErrNoStream.
func (m *Provider) Stream(ctx context.Context, req providers.CompletionRequest) (providers.StreamReader, error) {
	r, err := m.pop()
	if err != nil {
		if errors.Is(err, ErrNoResponse) {
			return nil, ErrNoStream
		}
		return nil, err
	}
	if r.chunks == nil {
		return nil, ErrNoStream
	}
	return &playback{chunks: r.chunks}, nil
}

// pop consumes the next scripted step, counting the call either way.
func (m *Provider) pop() (reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if len(m.queue) == 0 {
		return reply{}, ErrNoResponse
	}
	r := m.queue[0]
	m.queue = m.queue[1:]
	if r.err != nil {
		return reply{}, r.err
	}
	return r, nil
}

// CallCount reports how many times Complete or Stream consumed a step,
// including calls that found the queue empty.
func (m *Provider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// deriveUsage estimates token counts by whitespace-splitting the request
// messages and the scripted completion, so usage scales with the scripted
// text the way a real provider's would.
func deriveUsage(req providers.CompletionRequest, content string) providers.TokenUsage {
	prompt := len(strings.Fields(req.SystemPrompt))
	for _, msg := range req.Messages {
		prompt += len(strings.Fields(msg.Content))
	}
	completion := len(strings.Fields(content))
	return providers.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// playback replays scripted chunks one at a time.
type playback struct {
	mu     sync.Mutex
	chunks []providers.StreamChunk
	next   int
	closed bool
}

func (p *playback) Next() (*providers.StreamChunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrNoStream
	}
	if p.next >= len(p.chunks) {
		return nil, io.EOF
	}
	chunk := p.chunks[p.next]
	p.next++
	return &chunk, nil
}

func (p *playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
