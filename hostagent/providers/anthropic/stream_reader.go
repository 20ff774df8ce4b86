package anthropic

import (
	"io"
	"log/slog"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentops-ai/agentops-go/hostagent/providers"
)

// streamReader adapts the Anthropic SDK's push-style SSE stream (driven by a
// blocking Next()/Current() pair) into the pull-based providers.StreamReader
// contract the rest of the SDK expects.
type streamReader struct {
	sdkStream *ssestream.Stream[anthropicsdk.MessageStreamEventUnion]
	logger    *slog.Logger

	toolInput     strings.Builder
	currentToolID string
	currentToolNm string
	inThinking    bool
	inputTokens   int
	outputTokens  int
	done          bool
}

func newStreamReader(sdkStream *ssestream.Stream[anthropicsdk.MessageStreamEventUnion], logger *slog.Logger) *streamReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &streamReader{sdkStream: sdkStream, logger: logger}
}

// Next consumes SDK events until it has something worth surfacing as a
// providers.StreamChunk, or the stream ends.
func (s *streamReader) Next() (*providers.StreamChunk, error) {
	if s.done {
		return nil, io.EOF
	}

	for s.sdkStream.Next() {
		event := s.sdkStream.Current()

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				s.inputTokens = int(ms.Message.Usage.InputTokens)
			}

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			switch block.Type {
			case "thinking":
				s.inThinking = true
			case "tool_use":
				toolUse := block.AsToolUse()
				s.currentToolID = toolUse.ID
				s.currentToolNm = toolUse.Name
				s.toolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					return &providers.StreamChunk{Content: delta.Text}, nil
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					s.toolInput.WriteString(delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if s.inThinking {
				s.inThinking = false
				continue
			}
			if s.currentToolID != "" {
				chunk := &providers.StreamChunk{
					ToolCallID: s.currentToolID,
					ToolName:   s.currentToolNm,
					ToolArgs:   s.toolInput.String(),
				}
				s.currentToolID = ""
				s.currentToolNm = ""
				return chunk, nil
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				s.outputTokens = int(md.Usage.OutputTokens)
			}

		case "message_stop":
			s.done = true
			return &providers.StreamChunk{
				IsComplete:   true,
				FinishReason: providers.FinishReasonStop,
				Usage: &providers.TokenUsage{
					PromptTokens:     s.inputTokens,
					CompletionTokens: s.outputTokens,
					TotalTokens:      s.inputTokens + s.outputTokens,
				},
			}, nil
		}
	}

	s.done = true
	if err := s.sdkStream.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *streamReader) Close() error {
	s.done = true
	return s.sdkStream.Close()
}
