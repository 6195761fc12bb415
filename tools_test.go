package opencode

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetInput struct {
	Name  string `json:"name" jsonschema:"description=Who to greet"`
	Loud  bool   `json:"loud,omitempty"`
	Times int    `json:"times,omitempty"`
}

func greet(_ context.Context, input greetInput) (string, error) {
	if input.Loud {
		return "HELLO " + input.Name, nil
	}
	return "hello " + input.Name, nil
}

func TestAddToolGeneratesSchema(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, AddTool(reg, "greet", "Greets someone", greet))

	defs := reg.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "greet", defs[0].Name)
	assert.Equal(t, "Greets someone", defs[0].Description)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(defs[0].InputSchema, &schema))
	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "name")
	assert.Contains(t, props, "loud")

	required, ok := schema["required"].([]any)
	require.True(t, ok)
	assert.Contains(t, required, "name")
	assert.NotContains(t, required, "loud")
}

func TestAddToolRejectsDuplicates(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, AddTool(reg, "greet", "first", greet))
	assert.Error(t, AddTool(reg, "greet", "second", greet))
}

func TestInvoke(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, AddTool(reg, "greet", "Greets someone", greet))

	out, err := reg.Invoke(context.Background(), "greet", json.RawMessage(`{"name":"val","loud":true}`))
	require.NoError(t, err)
	assert.Equal(t, "HELLO val", out)

	// Empty arguments hit the zero value.
	out, err = reg.Invoke(context.Background(), "greet", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello ", out)

	_, err = reg.Invoke(context.Background(), "greet", json.RawMessage(`{"name":42}`))
	assert.Error(t, err)

	_, err = reg.Invoke(context.Background(), "missing", nil)
	assert.Error(t, err)
}

func TestInvokeHandlerError(t *testing.T) {
	reg := NewToolRegistry()
	failing := func(context.Context, greetInput) (string, error) {
		return "", fmt.Errorf("backend down")
	}
	require.NoError(t, AddTool(reg, "flaky", "always fails", failing))

	_, err := reg.Invoke(context.Background(), "flaky", nil)
	assert.ErrorContains(t, err, "backend down")
}

func TestServerConfigCarriesCatalog(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, AddTool(reg, "greet", "Greets someone", greet))

	cfg := reg.ServerConfig("helpers", "/usr/local/bin/toolserver", "--verbose")
	assert.Equal(t, "helpers", cfg.Name)
	assert.Equal(t, "stdio", cfg.Type)
	assert.Equal(t, "/usr/local/bin/toolserver", cfg.Command)
	assert.Equal(t, []string{"--verbose"}, cfg.Args)

	var catalog []ToolDefinition
	require.NoError(t, json.Unmarshal([]byte(cfg.Env["OPENCODE_TOOLS"]), &catalog))
	require.Len(t, catalog, 1)
	assert.Equal(t, "greet", catalog[0].Name)
}
