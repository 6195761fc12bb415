package opencode

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/agentwire/opencode-go/acp"
)

// ToolDefinition describes one tool a registry exposes. InputSchema is
// a JSON Schema generated from the tool's input type.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolHandler executes a tool with a typed input and returns its text
// output.
type ToolHandler[T any] func(ctx context.Context, input T) (string, error)

// ToolRegistry collects typed tools for an MCP server. Each registry is
// an explicit value, so different sessions can expose different tools.
type ToolRegistry struct {
	mu       sync.Mutex
	defs     []ToolDefinition
	handlers map[string]func(ctx context.Context, args json.RawMessage) (string, error)
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		handlers: make(map[string]func(ctx context.Context, args json.RawMessage) (string, error)),
	}
}

// AddTool registers a tool whose input schema is reflected from T.
// Struct tags on T (json, jsonschema) shape the schema.
func AddTool[T any](r *ToolRegistry, name, description string, handler ToolHandler[T]) error {
	schema, err := generateSchema[T]()
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("tool %s: already registered", name)
	}
	r.defs = append(r.defs, ToolDefinition{
		Name:        name,
		Description: description,
		InputSchema: schema,
	})
	r.handlers[name] = func(ctx context.Context, args json.RawMessage) (string, error) {
		var input T
		if len(args) > 0 {
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("tool %s: invalid arguments: %w", name, err)
			}
		}
		return handler(ctx, input)
	}
	return nil
}

// Definitions returns the registered tools in registration order.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ToolDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Invoke runs a registered tool with raw JSON arguments.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	r.mu.Lock()
	handler, ok := r.handlers[name]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("tool %s: not registered", name)
	}
	return handler(ctx, args)
}

// ServerConfig builds the MCP server entry that serves this registry.
// The tool catalog travels to the spawned server in OPENCODE_TOOLS.
func (r *ToolRegistry) ServerConfig(name, command string, args ...string) acp.McpServerConfig {
	catalog, _ := json.Marshal(r.Definitions())
	return acp.McpServerConfig{
		Name:    name,
		Type:    "stdio",
		Command: command,
		Args:    args,
		Env:     map[string]string{"OPENCODE_TOOLS": string(catalog)},
	}
}

// generateSchema reflects a self-contained JSON schema for T, inlining
// definitions so MCP consumers never chase $ref pointers.
func generateSchema[T any]() (json.RawMessage, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var zero T
	schema := reflector.Reflect(&zero)
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	return data, nil
}
