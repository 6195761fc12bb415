package acp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageClassification(t *testing.T) {
	cases := []struct {
		name         string
		raw          string
		response     bool
		request      bool
		notification bool
	}{
		{
			name:     "response with result",
			raw:      `{"jsonrpc":"2.0","id":1,"result":{}}`,
			response: true,
		},
		{
			name:     "response with error",
			raw:      `{"jsonrpc":"2.0","id":2,"error":{"code":-32600,"message":"bad"}}`,
			response: true,
		},
		{
			name:    "agent request",
			raw:     `{"jsonrpc":"2.0","id":3,"method":"requestPermission","params":{}}`,
			request: true,
		},
		{
			name:         "notification",
			raw:          `{"jsonrpc":"2.0","method":"sessionUpdate","params":{}}`,
			notification: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var msg jsonRPCMessage
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &msg))
			assert.Equal(t, tc.response, msg.isResponse())
			assert.Equal(t, tc.request, msg.isRequest())
			assert.Equal(t, tc.notification, msg.isNotification())
		})
	}
}

func TestIDGeneratorMonotonic(t *testing.T) {
	var g idGenerator
	assert.Equal(t, int64(1), g.Next())
	assert.Equal(t, int64(2), g.Next())
	assert.Equal(t, int64(3), g.Next())
}

func TestParseSessionUpdateEnveloped(t *testing.T) {
	raw := json.RawMessage(`{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"hi"}}}`)
	u, err := parseSessionUpdate(raw)
	require.NoError(t, err)
	assert.Equal(t, updateMessageChunk, u.kind())
	assert.Equal(t, "hi", u.Content.Text)
}

func TestParseSessionUpdateFlat(t *testing.T) {
	raw := json.RawMessage(`{"type":"tool_call","toolCallId":"t1","title":"bash"}`)
	u, err := parseSessionUpdate(raw)
	require.NoError(t, err)
	assert.Equal(t, updateToolCall, u.kind())
	assert.Equal(t, "t1", u.ToolCallID)
}

func TestBuildArgs(t *testing.T) {
	pm := newProcessManager(Config{
		BinaryPath: "opencode",
		BinaryArgs: []string{"acp"},
		CWD:        "/tmp/project",
	})
	assert.Equal(t, []string{"acp", "--cwd", "/tmp/project"}, pm.buildArgs())

	pm = newProcessManager(Config{BinaryArgs: []string{"acp"}})
	assert.Equal(t, []string{"acp"}, pm.buildArgs())
}
