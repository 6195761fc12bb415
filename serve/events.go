package serve

// Event types on the server's SSE feed.
const (
	eventPartUpdated  = "message.part.updated"
	eventSessionIdle  = "session.idle"
	eventSessionError = "session.error"
)

// Part types inside message.part.updated events.
const (
	partText       = "text"
	partReasoning  = "reasoning"
	partTool       = "tool"
	partStepStart  = "step-start"
	partStepFinish = "step-finish"
)

// Tool part statuses.
const (
	toolStatusPending   = "pending"
	toolStatusRunning   = "running"
	toolStatusCompleted = "completed"
	toolStatusError     = "error"
)

// EventRecord is one decoded SSE payload from GET /event.
type EventRecord struct {
	Type       string          `json:"type"`
	Properties EventProperties `json:"properties"`
}

// EventProperties carries the event's payload. Part is set for
// message.part.updated; Error for session.error.
type EventProperties struct {
	SessionID string     `json:"sessionID,omitempty"`
	Part      *Part      `json:"part,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
}

// Part is a message fragment from the server's feed. Text parts carry
// the full accumulated text so far, not a delta.
type Part struct {
	ID        string       `json:"id"`
	SessionID string       `json:"sessionID"`
	MessageID string       `json:"messageID,omitempty"`
	Type      string       `json:"type"`
	Text      string       `json:"text,omitempty"`
	Tool      string       `json:"tool,omitempty"`
	CallID    string       `json:"callID,omitempty"`
	State     *ToolState   `json:"state,omitempty"`
	Tokens    *TokenCounts `json:"tokens,omitempty"`
	Cost      float64      `json:"cost,omitempty"`
}

// ToolState is the lifecycle payload of a tool part.
type ToolState struct {
	Status string         `json:"status"`
	Input  map[string]any `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
	Title  string         `json:"title,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// TokenCounts is the token accounting reported by step-finish parts.
type TokenCounts struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
}

// ErrorInfo is the payload of a session.error event.
type ErrorInfo struct {
	Name string `json:"name"`
	Data struct {
		Message string `json:"message,omitempty"`
	} `json:"data,omitempty"`
}
