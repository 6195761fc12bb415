package agentmsg

import "encoding/json"

// Message is a single normalized event observed during a turn.
// Implementations are SystemMessage, AssistantMessage and ResultMessage.
type Message interface {
	isMessage()
}

// Subtypes carried by SystemMessage.
const (
	SubtypeInit       = "init"
	SubtypePlan       = "plan"
	SubtypeThought    = "thought"
	SubtypeStepStart  = "step_start"
	SubtypeToolResult = "tool_result"
	SubtypeToolError  = "tool_error"
)

// SystemMessage carries side-channel information: session bootstrap
// data, plan updates, reasoning chunks and tool outcomes.
type SystemMessage struct {
	Subtype string
	Data    map[string]any
}

func (SystemMessage) isMessage() {}

// ContentBlock is one element of an assistant message. Implementations
// are TextBlock and ToolUseBlock.
type ContentBlock interface {
	isContentBlock()
}

// TextBlock is assistant-authored text.
type TextBlock struct {
	Text string
}

func (TextBlock) isContentBlock() {}

// ToolUseBlock records a tool invocation the assistant made during the
// turn, including its final status.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

func (ToolUseBlock) isContentBlock() {}

// AssistantMessage is model output: accumulated text or a completed
// tool invocation.
type AssistantMessage struct {
	Content []ContentBlock
}

func (AssistantMessage) isMessage() {}

// Usage summarizes token accounting for a turn. Backends that report
// context-window occupancy instead of per-turn tokens fill ContextUsed
// and ContextSize.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	ContextUsed  int64
	ContextSize  int64
	StopReason   string
}

// ResultMessage terminates a turn. Exactly one is delivered per turn
// unless the session dies first.
type ResultMessage struct {
	Usage        Usage
	TotalCostUSD float64
	SessionID    string
	DurationMs   int64
	NumTurns     int
	IsError      bool
	Error        string
}

func (ResultMessage) isMessage() {}

// Part is one element of an outbound prompt. Type is the wire name
// ("text", "file", ...); Extra holds any type-specific fields beyond
// the text payload.
type Part struct {
	Type  string
	Text  string
	Extra map[string]any
}

// Text builds a plain text prompt part.
func Text(s string) Part {
	return Part{Type: "text", Text: s}
}

// MarshalJSON flattens Extra alongside the fixed fields so arbitrary
// part shapes survive the trip to the wire.
func (p Part) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Extra)+2)
	for k, v := range p.Extra {
		m[k] = v
	}
	m["type"] = p.Type
	if p.Text != "" {
		m["text"] = p.Text
	}
	return json.Marshal(m)
}

// UnmarshalJSON splits the fixed fields back out of the flat object.
func (p *Part) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if t, ok := m["type"].(string); ok {
		p.Type = t
		delete(m, "type")
	}
	if t, ok := m["text"].(string); ok {
		p.Text = t
		delete(m, "text")
	}
	if len(m) > 0 {
		p.Extra = m
	}
	return nil
}
