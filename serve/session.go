package serve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/agentwire/opencode-go/agentmsg"
)

// Session runs turns against one server-side session and normalizes
// the event feed into the shared message vocabulary.
//
// A turn works in two halves: Submit stashes the prompt, and Stream
// opens the event feed, fires the prompt POST in the background, and
// translates feed events until the session goes idle or errors. The
// feed, not the POST response, decides when the turn is over.
type Session struct {
	transport  *Transport
	modelID    string
	providerID string
	bufferSize int

	mu      sync.Mutex
	pending []agentmsg.Part
}

// SessionOption adjusts session construction.
type SessionOption func(*Session)

// WithModel pins the model for every prompt of this session.
func WithModel(modelID string) SessionOption {
	return func(s *Session) { s.modelID = modelID }
}

// WithProvider pins the model provider.
func WithProvider(providerID string) SessionOption {
	return func(s *Session) { s.providerID = providerID }
}

// WithEventBufferSize sets the per-turn message channel capacity.
func WithEventBufferSize(n int) SessionOption {
	return func(s *Session) { s.bufferSize = n }
}

// NewSession wraps a transport. Connect must still be called before
// the first turn.
func NewSession(transport *Transport, opts ...SessionOption) *Session {
	s := &Session{transport: transport, bufferSize: 64}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect establishes the server-side session.
func (s *Session) Connect(ctx context.Context) error {
	return s.transport.Connect(ctx)
}

// SessionID returns the server-assigned session id.
func (s *Session) SessionID() string {
	return s.transport.SessionID()
}

// Submit stashes the prompt for the next Stream call. The POST is
// deferred until the event feed is open, otherwise early events could
// be missed.
func (s *Session) Submit(ctx context.Context, parts []agentmsg.Part) error {
	if s.transport.SessionID() == "" {
		return ErrNotConnected
	}
	s.mu.Lock()
	s.pending = parts
	s.mu.Unlock()
	return nil
}

// Interrupt is unsupported over HTTP.
func (s *Session) Interrupt(ctx context.Context) error {
	return ErrCancelNotSupported
}

// Close tears down the server-side session.
func (s *Session) Close() error {
	return s.transport.Close()
}

// Stream runs the turn submitted by the last Submit call and returns
// its message stream.
func (s *Session) Stream(ctx context.Context) *agentmsg.Stream {
	st := agentmsg.NewStream(s.bufferSize)
	go s.run(ctx, st)
	return st
}

func (s *Session) run(ctx context.Context, st *agentmsg.Stream) {
	defer st.Close()

	s.mu.Lock()
	parts := s.pending
	s.pending = nil
	s.mu.Unlock()

	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()

	events, err := s.transport.OpenEvents(feedCtx)
	if err != nil {
		st.Fail(err)
		return
	}
	defer events.Close()

	// The POST blocks server-side for the whole turn. Race it against
	// the feed; its error only matters if the feed dies first.
	writeCtx, cancelWrite := context.WithCancel(ctx)
	defer cancelWrite()
	writeErr := make(chan error, 1)
	go func() {
		_, err := s.transport.SendMessage(writeCtx, ChatRequest{
			Parts:      parts,
			ModelID:    s.modelID,
			ProviderID: s.providerID,
		})
		writeErr <- err
	}()

	turn := newTurnTranslator(s.transport.SessionID())
	for {
		record, err := events.Next()
		if err != nil {
			st.Fail(s.feedFailure(err, writeErr))
			return
		}

		switch record.Type {
		case eventPartUpdated:
			part := record.Properties.Part
			if part == nil || part.SessionID != turn.sessionID {
				continue
			}
			for _, msg := range turn.translate(part) {
				if !st.Push(ctx, msg) {
					return
				}
			}

		case eventSessionIdle:
			if record.Properties.SessionID != turn.sessionID {
				continue
			}
			st.Push(ctx, turn.result())
			return

		case eventSessionError:
			if record.Properties.SessionID != "" && record.Properties.SessionID != turn.sessionID {
				continue
			}
			st.Fail(sessionError(record.Properties.Error))
			return

		default:
			slog.Debug("ignoring server event", "type", record.Type)
		}
	}
}

// feedFailure picks the most informative error when the feed dies
// before the turn settles: a failed write beats a bare EOF. The write
// gets a grace period to report, since a rejected POST usually races
// just behind the feed closing.
func (s *Session) feedFailure(feedErr error, writeErr chan error) error {
	if errors.Is(feedErr, io.EOF) {
		select {
		case err := <-writeErr:
			if err != nil {
				return err
			}
		case <-time.After(time.Second):
		}
		return ErrStreamEnded
	}
	return feedErr
}

func sessionError(info *ErrorInfo) *SessionError {
	if info == nil {
		return &SessionError{Name: "UnknownError"}
	}
	return &SessionError{Name: info.Name, Message: info.Data.Message}
}

// turnTranslator folds part updates into normalized messages for one
// turn.
type turnTranslator struct {
	sessionID string
	seenText  map[string]string
	tools     map[string]*toolRecord
	usage     agentmsg.Usage
	costUSD   float64
	startedAt time.Time
}

type toolRecord struct {
	useEmitted     bool
	outcomeEmitted bool
}

func newTurnTranslator(sessionID string) *turnTranslator {
	return &turnTranslator{
		sessionID: sessionID,
		seenText:  make(map[string]string),
		tools:     make(map[string]*toolRecord),
		startedAt: time.Now(),
	}
}

// translate converts one part update into zero or more messages.
func (t *turnTranslator) translate(part *Part) []agentmsg.Message {
	switch part.Type {
	case partText:
		return t.textDelta(part)

	case partReasoning:
		delta := t.delta(part.ID, part.Text)
		if delta == "" {
			return nil
		}
		return []agentmsg.Message{agentmsg.SystemMessage{
			Subtype: agentmsg.SubtypeThought,
			Data:    map[string]any{"text": delta},
		}}

	case partTool:
		return t.toolUpdate(part)

	case partStepStart:
		return []agentmsg.Message{agentmsg.SystemMessage{
			Subtype: agentmsg.SubtypeStepStart,
			Data:    map[string]any{"id": part.ID, "messageID": part.MessageID},
		}}

	case partStepFinish:
		if part.Tokens != nil {
			t.usage.InputTokens += part.Tokens.Input
			t.usage.OutputTokens += part.Tokens.Output
		}
		t.costUSD += part.Cost
		return nil

	default:
		return nil
	}
}

// textDelta emits only the unseen suffix of a text part. The server
// re-sends the full accumulated text on every update.
func (t *turnTranslator) textDelta(part *Part) []agentmsg.Message {
	delta := t.delta(part.ID, part.Text)
	if delta == "" {
		return nil
	}
	return []agentmsg.Message{agentmsg.AssistantMessage{
		Content: []agentmsg.ContentBlock{agentmsg.TextBlock{Text: delta}},
	}}
}

func (t *turnTranslator) delta(partID, text string) string {
	seen := t.seenText[partID]
	if len(text) <= len(seen) {
		return ""
	}
	t.seenText[partID] = text
	// Only the unseen tail is emitted, even when the part was rewritten
	// rather than extended in place.
	return text[len(seen):]
}

// toolUpdate advances a tool invocation's lifecycle. The invocation is
// announced once when it starts running (or jumps straight to a
// terminal status), and its outcome is reported once on completion or
// error. Duplicate status reports are no-ops.
func (t *turnTranslator) toolUpdate(part *Part) []agentmsg.Message {
	if part.State == nil {
		return nil
	}
	callID := part.CallID
	if callID == "" {
		callID = part.ID
	}
	record, ok := t.tools[callID]
	if !ok {
		record = &toolRecord{}
		t.tools[callID] = record
	}

	status := part.State.Status
	terminal := status == toolStatusCompleted || status == toolStatusError
	var msgs []agentmsg.Message

	if (status == toolStatusRunning || terminal) && !record.useEmitted {
		record.useEmitted = true
		msgs = append(msgs, agentmsg.AssistantMessage{
			Content: []agentmsg.ContentBlock{agentmsg.ToolUseBlock{
				ID:    callID,
				Name:  part.Tool,
				Input: part.State.Input,
			}},
		})
	}

	if !terminal || record.outcomeEmitted {
		return msgs
	}
	record.outcomeEmitted = true

	if status == toolStatusError {
		return append(msgs, agentmsg.SystemMessage{
			Subtype: agentmsg.SubtypeToolError,
			Data:    map[string]any{"tool": part.Tool, "error": part.State.Error},
		})
	}
	return append(msgs, agentmsg.SystemMessage{
		Subtype: agentmsg.SubtypeToolResult,
		Data:    map[string]any{"tool": part.Tool, "output": part.State.Output, "title": part.State.Title},
	})
}

// result builds the turn's terminal message from the accumulated
// step-finish data.
func (t *turnTranslator) result() agentmsg.ResultMessage {
	usage := t.usage
	usage.StopReason = "end_turn"
	return agentmsg.ResultMessage{
		Usage:        usage,
		TotalCostUSD: t.costUSD,
		SessionID:    t.sessionID,
		DurationMs:   time.Since(t.startedAt).Milliseconds(),
		NumTurns:     1,
	}
}
