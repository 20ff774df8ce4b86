package hostagent

import (
	"context"
	"encoding/json"

	"github.com/agentops-ai/agentops-go/hostagent/providers"
)

// ToolHandler executes a tool call and returns its result.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// Tool is an agent-callable function: a name and JSON Schema the model
// chooses arguments against, plus the Go function that actually runs.
type Tool struct {
	name        string
	description string
	parameters  map[string]any
	handler     ToolHandler
}

// NewTool builds a Tool from a JSON Schema object (as accepted by the
// provider's function-calling API) and the handler that executes it.
func NewTool(name, description string, parameters map[string]any, handler ToolHandler) Tool {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return Tool{name: name, description: description, parameters: parameters, handler: handler}
}

// ToToolDefinition converts the tool to a provider-agnostic ToolDefinition.
func (t Tool) ToToolDefinition() providers.ToolDefinition {
	return providers.ToolDefinition{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.parameters,
	}
}

// Execute decodes argsJSON and runs the tool's handler.
func (t Tool) Execute(ctx context.Context, argsJSON string) (any, error) {
	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, err
		}
	}
	return t.handler(ctx, args)
}

// Name returns the tool's name.
func (t Tool) Name() string {
	return t.name
}
