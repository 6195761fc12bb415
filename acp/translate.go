package acp

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentwire/opencode-go/agentmsg"
)

// translate drains the update queue for one turn, converting wire
// updates into normalized messages until the turn's completion marker
// arrives. Text chunks accumulate and flush as one AssistantMessage
// immediately before any tool event and before the final result, so
// consumers always see text in the order the agent produced it.
func (c *Client) translate(ctx context.Context, st *agentmsg.Stream) {
	defer st.Close()
	defer c.finishTurn()

	c.mu.Lock()
	turn := c.turn
	c.mu.Unlock()
	if turn == nil {
		st.Fail(ErrNoSession)
		return
	}

	for {
		item, ok := c.updates.pop(ctx)
		if !ok {
			st.Fail(ctx.Err())
			return
		}
		if item.eof {
			// Reader loop is gone: end of session. The stream closes
			// without a result so the consumer unblocks.
			return
		}
		if item.done != nil {
			if item.done.err != nil {
				st.Fail(item.done.err)
				return
			}
			c.emitResult(ctx, st, turn, item.done.response)
			return
		}
		if !c.applyUpdate(ctx, st, turn, item.update) {
			return
		}
	}
}

// applyUpdate folds one session update into the turn. It reports false
// if the consumer went away mid-push.
func (c *Client) applyUpdate(ctx context.Context, st *agentmsg.Stream, turn *turnState, u *sessionUpdate) bool {
	switch u.kind() {
	case updateMessageChunk:
		if u.Content != nil && u.Content.Type == "text" {
			turn.text.WriteString(u.Content.Text)
		}
		return true

	case updateThoughtChunk:
		if u.Content == nil || u.Content.Text == "" {
			return true
		}
		return st.Push(ctx, agentmsg.SystemMessage{
			Subtype: agentmsg.SubtypeThought,
			Data:    map[string]any{"text": u.Content.Text},
		})

	case updateToolCall:
		record := turn.record(u.ToolCallID)
		if u.Title != "" {
			record.name = u.Title
		}
		if u.RawInput != nil {
			record.input = u.RawInput
		}
		if u.Status != "" {
			record.status = u.Status
		}
		return true

	case updateToolCallUpdate:
		return c.applyToolUpdate(ctx, st, turn, u)

	case updatePlan:
		entries := make([]map[string]any, 0, len(u.Entries))
		for _, e := range u.Entries {
			entries = append(entries, map[string]any{
				"content":  e.Content,
				"status":   e.Status,
				"priority": e.Priority,
			})
		}
		return st.Push(ctx, agentmsg.SystemMessage{
			Subtype: agentmsg.SubtypePlan,
			Data:    map[string]any{"entries": entries},
		})

	case updateUsage:
		turn.usage.ContextUsed = u.Used
		turn.usage.ContextSize = u.Size
		if u.Cost != nil {
			turn.costUSD = u.Cost.Amount
		}
		return true

	default:
		slog.Debug("ignoring session update", "kind", u.kind())
		return true
	}
}

// applyToolUpdate advances a tool call's lifecycle. Status only moves
// forward, and a terminal status is emitted exactly once; duplicate
// reports are no-ops.
func (c *Client) applyToolUpdate(ctx context.Context, st *agentmsg.Stream, turn *turnState, u *sessionUpdate) bool {
	record := turn.record(u.ToolCallID)
	if u.Title != "" {
		record.name = u.Title
	}
	if u.RawInput != nil {
		record.input = u.RawInput
	}
	if u.Status != "" && statusRank(u.Status) >= statusRank(record.status) {
		record.status = u.Status
	}

	if !isTerminalStatus(record.status) || record.emitted {
		return true
	}
	record.emitted = true

	if !flushText(ctx, st, turn) {
		return false
	}
	return st.Push(ctx, agentmsg.AssistantMessage{
		Content: []agentmsg.ContentBlock{agentmsg.ToolUseBlock{
			ID:    record.id,
			Name:  record.name,
			Input: record.input,
		}},
	})
}

// emitResult flushes remaining text and pushes the turn's terminal
// ResultMessage.
func (c *Client) emitResult(ctx context.Context, st *agentmsg.Stream, turn *turnState, resp promptResponse) {
	if !flushText(ctx, st, turn) {
		return
	}
	usage := turn.usage
	usage.StopReason = resp.StopReason
	if resp.Usage != nil {
		// The response's totals are authoritative over interim
		// usage_update notifications.
		usage.InputTokens = resp.Usage.InputTokens
		usage.OutputTokens = resp.Usage.OutputTokens
		if resp.Usage.Used > 0 {
			usage.ContextUsed = resp.Usage.Used
		}
		if resp.Usage.Size > 0 {
			usage.ContextSize = resp.Usage.Size
		}
	}
	st.Push(ctx, agentmsg.ResultMessage{
		Usage:        usage,
		TotalCostUSD: turn.costUSD,
		SessionID:    c.SessionID(),
		DurationMs:   time.Since(turn.startedAt).Milliseconds(),
		NumTurns:     1,
	})
}

// flushText emits the accumulated text buffer as one AssistantMessage.
func flushText(ctx context.Context, st *agentmsg.Stream, turn *turnState) bool {
	if turn.text.Len() == 0 {
		return true
	}
	text := turn.text.String()
	turn.text.Reset()
	return st.Push(ctx, agentmsg.AssistantMessage{
		Content: []agentmsg.ContentBlock{agentmsg.TextBlock{Text: text}},
	})
}

func (c *Client) finishTurn() {
	c.mu.Lock()
	c.turnActive = false
	c.turn = nil
	c.mu.Unlock()
}

// record returns the tracked tool call, creating it on first sight.
// Agents occasionally omit the id; a generated one keeps the record
// addressable for the rest of the turn.
func (t *turnState) record(callID string) *toolCallRecord {
	if callID == "" {
		callID = "call_" + uuid.NewString()[:8]
	}
	if r, ok := t.toolCalls[callID]; ok {
		return r
	}
	r := &toolCallRecord{id: callID, status: statusPending}
	t.toolCalls[callID] = r
	return r
}

// statusRank orders the tool lifecycle. Agents disagree on the middle
// state's spelling, so both are accepted.
func statusRank(status string) int {
	switch status {
	case statusPending:
		return 0
	case statusRunning, "running":
		return 1
	case statusCompleted, statusFailed, statusError:
		return 2
	default:
		return 0
	}
}

func isTerminalStatus(status string) bool {
	return statusRank(status) == 2
}
