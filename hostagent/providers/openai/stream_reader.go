package openai

import (
	"io"
	"log/slog"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/agentops-ai/agentops-go/hostagent/providers"
)

// pendingToolCall accumulates one tool call's name/arguments across the
// delta chunks OpenAI streams them in, keyed by the call's index.
type pendingToolCall struct {
	id   string
	name string
	args string
}

// streamReader adapts the go-openai SDK's push-style stream (driven by a
// blocking Recv()) into the pull-based providers.StreamReader contract the
// rest of the SDK expects, reassembling tool-call deltas as it goes.
type streamReader struct {
	sdkStream *openaisdk.ChatCompletionStream
	logger    *slog.Logger

	pending map[int]*pendingToolCall
	order   []int
	usage   *providers.TokenUsage

	finishing    bool
	finishReason providers.FinishReason
	done         bool
}

func newStreamReader(sdkStream *openaisdk.ChatCompletionStream, logger *slog.Logger) *streamReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &streamReader{
		sdkStream: sdkStream,
		logger:    logger,
		pending:   make(map[int]*pendingToolCall),
	}
}

// Next consumes SDK chunks until it has a providers.StreamChunk worth
// surfacing, or the stream ends.
func (s *streamReader) Next() (*providers.StreamChunk, error) {
	if s.done {
		return nil, io.EOF
	}
	if s.finishing {
		return s.flushToolCalls(s.finishReason)
	}

	for {
		chunk, err := s.sdkStream.Recv()
		if err == io.EOF {
			s.finishing = true
			return s.flushToolCalls(providers.FinishReasonStop)
		}
		if err != nil {
			s.done = true
			return nil, err
		}
		if chunk.Usage != nil {
			s.usage = &providers.TokenUsage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			return &providers.StreamChunk{Content: delta.Content}, nil
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			pc, ok := s.pending[index]
			if !ok {
				pc = &pendingToolCall{}
				s.pending[index] = pc
				s.order = append(s.order, index)
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				pc.args += tc.Function.Arguments
			}
		}

		if choice.FinishReason == openaisdk.FinishReasonToolCalls {
			s.finishing = true
			return s.flushToolCalls(providers.FinishReasonToolCalls)
		}
		if choice.FinishReason == openaisdk.FinishReasonLength {
			s.finishing = true
			return s.flushToolCalls(providers.FinishReasonLength)
		}
	}
}

// flushToolCalls surfaces the next reassembled tool call one at a time;
// once every accumulated call has been returned it emits the terminal
// IsComplete chunk carrying usage and finish reason.
func (s *streamReader) flushToolCalls(reason providers.FinishReason) (*providers.StreamChunk, error) {
	s.finishReason = reason
	if len(s.order) > 0 {
		index := s.order[0]
		s.order = s.order[1:]
		pc := s.pending[index]
		delete(s.pending, index)
		return &providers.StreamChunk{
			ToolCallID: pc.id,
			ToolName:   pc.name,
			ToolArgs:   pc.args,
		}, nil
	}
	s.done = true
	usage := s.usage
	if usage == nil {
		usage = &providers.TokenUsage{}
	}
	return &providers.StreamChunk{
		IsComplete:   true,
		FinishReason: reason,
		Usage:        usage,
	}, nil
}

func (s *streamReader) Close() error {
	s.done = true
	return s.sdkStream.Close()
}
