// Package openai implements the Provider interface for OpenAI's Chat
// Completions API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/agentops-ai/agentops-go/hostagent/providers"
)

// Provider implements providers.Provider against OpenAI's Chat Completions
// API via github.com/sashabaranov/go-openai.
type Provider struct {
	client       *openaisdk.Client
	defaultModel string
	logger       *slog.Logger
}

// Config holds the settings needed to construct a Provider.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Logger       *slog.Logger
}

// New creates a new OpenAI provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o-mini"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	clientCfg := openaisdk.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:       openaisdk.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
		logger:       cfg.Logger,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "openai" }

// Complete generates a non-streaming completion.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	chatReq := p.toChatRequest(req)
	chatReq.Stream = false

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: response had no choices")
	}

	choice := resp.Choices[0]
	return &providers.CompletionResponse{
		ID:           resp.ID,
		Content:      choice.Message.Content,
		ToolCalls:    convertToolCalls(choice.Message.ToolCalls),
		FinishReason: convertFinishReason(choice.FinishReason),
		Usage: providers.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Model: resp.Model,
	}, nil
}

// Stream generates a streaming completion.
func (p *Provider) Stream(ctx context.Context, req providers.CompletionRequest) (providers.StreamReader, error) {
	chatReq := p.toChatRequest(req)
	chatReq.Stream = true

	sdkStream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: stream request failed: %w", err)
	}
	return newStreamReader(sdkStream, p.logger), nil
}

func (p *Provider) toChatRequest(req providers.CompletionRequest) openaisdk.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openaisdk.ChatCompletionRequest{
		Model:       model,
		Messages:    p.convertMessages(req),
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}
	return chatReq
}

func (p *Provider) convertMessages(req providers.CompletionRequest) []openaisdk.ChatCompletionMessage {
	out := make([]openaisdk.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		out = append(out, openaisdk.ChatCompletionMessage{
			Role:    openaisdk.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		msg := openaisdk.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		if len(m.ToolCalls) > 0 {
			msg.ToolCalls = make([]openaisdk.ToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				msg.ToolCalls[i] = openaisdk.ToolCall{
					ID:   tc.ID,
					Type: openaisdk.ToolTypeFunction,
					Function: openaisdk.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				}
			}
		}
		out = append(out, msg)
	}
	return out
}

func convertTools(tools []providers.ToolDefinition) []openaisdk.Tool {
	out := make([]openaisdk.Tool, len(tools))
	for i, t := range tools {
		out[i] = openaisdk.Tool{
			Type: openaisdk.ToolTypeFunction,
			Function: &openaisdk.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

func convertToolCalls(calls []openaisdk.ToolCall) []providers.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]providers.ToolCall, 0, len(calls))
	for _, tc := range calls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out = append(out, providers.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out
}

func convertFinishReason(reason openaisdk.FinishReason) providers.FinishReason {
	switch reason {
	case openaisdk.FinishReasonToolCalls:
		return providers.FinishReasonToolCalls
	case openaisdk.FinishReasonLength:
		return providers.FinishReasonLength
	case openaisdk.FinishReasonStop, "":
		return providers.FinishReasonStop
	default:
		return providers.FinishReasonError
	}
}

var _ io.Closer = (*streamReader)(nil)
