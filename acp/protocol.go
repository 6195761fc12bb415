package acp

import (
	"encoding/json"

	"github.com/agentwire/opencode-go/agentmsg"
)

// protocolVersion is advertised during initialize.
const protocolVersion = 1

type initializeRequest struct {
	ProtocolVersion int            `json:"protocolVersion"`
	ClientInfo      clientInfo     `json:"clientInfo"`
	Capabilities    map[string]any `json:"clientCapabilities"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResponse is the agent's handshake reply. AgentCapabilities
// is kept raw since the client does not act on it.
type InitializeResponse struct {
	ProtocolVersion   int             `json:"protocolVersion"`
	AgentCapabilities json.RawMessage `json:"agentCapabilities,omitempty"`
}

// McpServerConfig describes one MCP server the agent should connect to
// when the session starts.
type McpServerConfig struct {
	Name    string            `json:"name"`
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

type newSessionRequest struct {
	CWD        string            `json:"cwd"`
	McpServers []McpServerConfig `json:"mcpServers"`
}

type newSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type loadSessionRequest struct {
	SessionID  string            `json:"sessionId"`
	CWD        string            `json:"cwd"`
	McpServers []McpServerConfig `json:"mcpServers"`
}

type promptRequest struct {
	SessionID string          `json:"sessionId"`
	Prompt    []agentmsg.Part `json:"prompt"`
}

type promptResponse struct {
	StopReason string       `json:"stopReason,omitempty"`
	Usage      *usageTotals `json:"usage,omitempty"`
}

// usageTotals are the turn totals some agents attach to the prompt
// response. They carry the same used/size counters as usage_update
// notifications plus optional token counts.
type usageTotals struct {
	Used         int64 `json:"used,omitempty"`
	Size         int64 `json:"size,omitempty"`
	InputTokens  int64 `json:"inputTokens,omitempty"`
	OutputTokens int64 `json:"outputTokens,omitempty"`
}

type cancelParams struct {
	SessionID string `json:"sessionId"`
}

// Update kinds carried by sessionUpdate notifications.
const (
	updateMessageChunk   = "agent_message_chunk"
	updateThoughtChunk   = "agent_thought_chunk"
	updateToolCall       = "tool_call"
	updateToolCallUpdate = "tool_call_update"
	updatePlan           = "plan"
	updateUsage          = "usage_update"
)

// Tool call statuses reported by the agent.
const (
	statusPending   = "pending"
	statusRunning   = "in_progress"
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusError     = "error"
)

// sessionUpdate is the decoded payload of a sessionUpdate notification.
// Fields are a union over all update kinds.
type sessionUpdate struct {
	Kind       string         `json:"sessionUpdate"`
	Type       string         `json:"type"` // some agents use "type" instead
	Content    *updateContent `json:"content,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	Title      string         `json:"title,omitempty"`
	Status     string         `json:"status,omitempty"`
	RawInput   map[string]any `json:"rawInput,omitempty"`
	Entries    []planEntry    `json:"entries,omitempty"`
	Used       int64          `json:"used,omitempty"`
	Size       int64          `json:"size,omitempty"`
	Cost       *costInfo      `json:"cost,omitempty"`
}

func (u *sessionUpdate) kind() string {
	if u.Kind != "" {
		return u.Kind
	}
	return u.Type
}

type updateContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type planEntry struct {
	Content  string `json:"content,omitempty"`
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
}

type costInfo struct {
	Amount float64 `json:"amount"`
}

// parseSessionUpdate accepts both the enveloped form
// {"sessionId":..., "update":{...}} and the flat form where the update
// fields sit directly on params.
func parseSessionUpdate(params json.RawMessage) (*sessionUpdate, error) {
	var envelope struct {
		Update json.RawMessage `json:"update"`
	}
	raw := params
	if err := json.Unmarshal(params, &envelope); err == nil && len(envelope.Update) > 0 {
		raw = envelope.Update
	}
	var u sessionUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// permissionRequest is the payload of a requestPermission request from
// the agent.
type permissionRequest struct {
	SessionID string             `json:"sessionId,omitempty"`
	ToolCall  permissionToolCall `json:"toolCall"`
	Options   []PermissionOption `json:"options"`
}

type permissionToolCall struct {
	ToolCallID string         `json:"toolCallId,omitempty"`
	Title      string         `json:"title,omitempty"`
	Kind       string         `json:"kind,omitempty"`
	RawInput   map[string]any `json:"rawInput,omitempty"`
}

// PermissionOption is one choice offered by the agent when it asks for
// permission to run a tool.
type PermissionOption struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name,omitempty"`
	Kind     string `json:"kind"`
}

// Option kinds in permission requests.
const (
	optionAllowOnce  = "allow_once"
	optionRejectOnce = "reject_once"
)

type permissionOutcome struct {
	Outcome  string `json:"outcome"`
	OptionID string `json:"optionId,omitempty"`
}

type permissionResponse struct {
	Outcome permissionOutcome `json:"outcome"`
}
