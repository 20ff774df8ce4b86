// Package anthropic implements the Provider interface for Anthropic's Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentops-ai/agentops-go/hostagent/providers"
)

const defaultMaxTokens = 4096

// Provider implements providers.Provider for Anthropic's Claude models.
type Provider struct {
	client       anthropicsdk.Client
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

// New creates a new Anthropic provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client:       anthropicsdk.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		logger:       cfg.Logger,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "anthropic" }

// Complete generates a non-streaming completion by draining the streaming
// API and assembling the accumulated chunks, matching the Messages API's
// recommendation to always stream for messages that may run long.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	reader, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var content string
	var toolCalls []providers.ToolCall
	activeByID := make(map[string]*providers.ToolCall)
	var usage providers.TokenUsage
	finish := providers.FinishReasonStop

	for {
		chunk, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		content += chunk.Content
		if chunk.ToolCallID != "" {
			tc := activeByID[chunk.ToolCallID]
			if tc == nil {
				tc = &providers.ToolCall{ID: chunk.ToolCallID, Arguments: map[string]any{}}
				activeByID[chunk.ToolCallID] = tc
			}
			if chunk.ToolName != "" {
				tc.Name = chunk.ToolName
			}
		}
		if chunk.IsComplete {
			finish = chunk.FinishReason
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
		}
	}
	for _, tc := range activeByID {
		toolCalls = append(toolCalls, *tc)
	}

	return &providers.CompletionResponse{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: finish,
		Usage:        usage,
		Model:        p.getModel(req.Model),
	}, nil
}

// Stream generates a streaming completion.
func (p *Provider) Stream(ctx context.Context, req providers.CompletionRequest) (providers.StreamReader, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(p.getModel(req.Model)),
		Messages:  messages,
		MaxTokens: int64(p.getMaxTokens(req.MaxTokens)),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	sdkStream := p.client.Messages.NewStreaming(ctx, params)
	return newStreamReader(sdkStream, p.logger), nil
}

func (p *Provider) convertMessages(messages []providers.Message) ([]anthropicsdk.MessageParam, error) {
	var result []anthropicsdk.MessageParam
	for _, msg := range messages {
		if msg.Role == providers.RoleSystem {
			continue
		}

		var blocks []anthropicsdk.ContentBlockParamUnion
		if msg.Content != "" {
			blocks = append(blocks, anthropicsdk.NewTextBlock(msg.Content))
		}
		if msg.Role == providers.RoleTool {
			blocks = append(blocks, anthropicsdk.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		}
		for _, tc := range msg.ToolCalls {
			blocks = append(blocks, anthropicsdk.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
		}

		if msg.Role == providers.RoleAssistant {
			result = append(result, anthropicsdk.NewAssistantMessage(blocks...))
		} else {
			result = append(result, anthropicsdk.NewUserMessage(blocks...))
		}
	}
	return result, nil
}

func (p *Provider) convertTools(tools []providers.ToolDefinition) ([]anthropicsdk.ToolUnionParam, error) {
	result := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schemaJSON, err := json.Marshal(tool.Parameters)
		if err != nil {
			return nil, fmt.Errorf("invalid parameters for %s: %w", tool.Name, err)
		}
		var schema anthropicsdk.ToolInputSchemaParam
		if err := json.Unmarshal(schemaJSON, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		param := anthropicsdk.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropicsdk.String(tool.Description)
		}
		result = append(result, param)
	}
	return result, nil
}

func (p *Provider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *Provider) getMaxTokens(maxTokens int) int {
	if maxTokens <= 0 {
		return defaultMaxTokens
	}
	return maxTokens
}
