package acp

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentwire/opencode-go/agentmsg"
)

// fakeTransport is an in-memory frame stream standing in for the agent
// process.
type fakeTransport struct {
	in       chan []byte
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	writes  []jsonRPCMessage
	onWrite func(msg jsonRPCMessage)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:   make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (f *fakeTransport) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg jsonRPCMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	f.mu.Lock()
	f.writes = append(f.writes, msg)
	cb := f.onWrite
	f.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
	return nil
}

func (f *fakeTransport) ReadLine() ([]byte, error) {
	select {
	case frame := <-f.in:
		return frame, nil
	case <-f.done:
		return nil, io.EOF
	}
}

func (f *fakeTransport) Stop() error {
	f.stopOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeTransport) feed(frame string) {
	f.in <- []byte(frame + "\n")
}

func (f *fakeTransport) lastWrite(t *testing.T) jsonRPCMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.writes)
	return f.writes[len(f.writes)-1]
}

// newTestClient wires a client to a fake transport with a session
// already established, skipping the process spawn and handshake.
func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeTransport) {
	t.Helper()
	c := NewClient(opts...)
	ft := newFakeTransport()
	c.setTransport(ft)
	c.mu.Lock()
	c.started = true
	c.sessionID = "sess-1"
	c.mu.Unlock()
	c.readWg.Add(1)
	go c.readLoop()
	t.Cleanup(func() { _ = c.Stop() })
	return c, ft
}

func collectStream(t *testing.T, st *agentmsg.Stream) []agentmsg.Message {
	t.Helper()
	var got []agentmsg.Message
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-st.Messages():
			if !ok {
				return got
			}
			got = append(got, msg)
		case <-timeout:
			t.Fatal("timed out waiting for stream to finish")
		}
	}
}

func chunkUpdate(text string) string {
	return `{"jsonrpc":"2.0","method":"sessionUpdate","params":{"sessionId":"sess-1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"` + text + `"}}}}`
}

func TestPromptStreamsTextAndResult(t *testing.T) {
	c, ft := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SubmitPrompt(ctx, []agentmsg.Part{agentmsg.Text("hi")}))

	ft.feed(chunkUpdate("Hel"))
	ft.feed(chunkUpdate("lo"))
	ft.feed(`{"jsonrpc":"2.0","id":1,"result":{"stopReason":"end_turn"}}`)

	got := collectStream(t, c.Stream(ctx))
	require.Len(t, got, 2)

	asst, ok := got[0].(agentmsg.AssistantMessage)
	require.True(t, ok)
	require.Len(t, asst.Content, 1)
	assert.Equal(t, agentmsg.TextBlock{Text: "Hello"}, asst.Content[0])

	result, ok := got[1].(agentmsg.ResultMessage)
	require.True(t, ok)
	assert.Equal(t, "end_turn", result.Usage.StopReason)
	assert.Equal(t, "sess-1", result.SessionID)
	assert.False(t, result.IsError)
}

func TestToolCallLifecycle(t *testing.T) {
	c, ft := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SubmitPrompt(ctx, nil))

	ft.feed(chunkUpdate("Listing files."))
	ft.feed(`{"jsonrpc":"2.0","method":"sessionUpdate","params":{"update":{"sessionUpdate":"tool_call","toolCallId":"tc1","title":"bash","status":"pending","rawInput":{"command":"ls"}}}}`)
	ft.feed(`{"jsonrpc":"2.0","method":"sessionUpdate","params":{"update":{"sessionUpdate":"tool_call_update","toolCallId":"tc1","status":"in_progress"}}}`)
	ft.feed(`{"jsonrpc":"2.0","method":"sessionUpdate","params":{"update":{"sessionUpdate":"tool_call_update","toolCallId":"tc1","status":"completed"}}}`)
	// Duplicate terminal report must not re-emit.
	ft.feed(`{"jsonrpc":"2.0","method":"sessionUpdate","params":{"update":{"sessionUpdate":"tool_call_update","toolCallId":"tc1","status":"completed"}}}`)
	ft.feed(`{"jsonrpc":"2.0","id":1,"result":{"stopReason":"end_turn"}}`)

	got := collectStream(t, c.Stream(ctx))
	require.Len(t, got, 3)

	text, ok := got[0].(agentmsg.AssistantMessage)
	require.True(t, ok)
	assert.Equal(t, agentmsg.TextBlock{Text: "Listing files."}, text.Content[0])

	toolUse, ok := got[1].(agentmsg.AssistantMessage)
	require.True(t, ok)
	block, ok := toolUse.Content[0].(agentmsg.ToolUseBlock)
	require.True(t, ok)
	assert.Equal(t, "tc1", block.ID)
	assert.Equal(t, "bash", block.Name)
	assert.Equal(t, map[string]any{"command": "ls"}, block.Input)

	_, ok = got[2].(agentmsg.ResultMessage)
	assert.True(t, ok)
}

func TestFlatToolCallUpdates(t *testing.T) {
	c, ft := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SubmitPrompt(ctx, nil))

	// Some agents put the update fields directly on params with a
	// "type" discriminator instead of the enveloped form.
	ft.feed(`{"jsonrpc":"2.0","method":"sessionUpdate","params":{"type":"tool_call","toolCallId":"t1","title":"bash","rawInput":{"command":"ls"}}}`)
	ft.feed(`{"jsonrpc":"2.0","method":"sessionUpdate","params":{"type":"tool_call_update","toolCallId":"t1","status":"completed"}}`)
	ft.feed(`{"jsonrpc":"2.0","id":1,"result":{}}`)

	got := collectStream(t, c.Stream(ctx))
	require.Len(t, got, 2)

	toolUse := got[0].(agentmsg.AssistantMessage)
	block := toolUse.Content[0].(agentmsg.ToolUseBlock)
	assert.Equal(t, "t1", block.ID)
	assert.Equal(t, "bash", block.Name)
	assert.Equal(t, map[string]any{"command": "ls"}, block.Input)
}

func TestStatusNeverRegresses(t *testing.T) {
	c, ft := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SubmitPrompt(ctx, nil))

	ft.feed(`{"jsonrpc":"2.0","method":"sessionUpdate","params":{"update":{"sessionUpdate":"tool_call","toolCallId":"tc1","title":"read","status":"pending"}}}`)
	ft.feed(`{"jsonrpc":"2.0","method":"sessionUpdate","params":{"update":{"sessionUpdate":"tool_call_update","toolCallId":"tc1","status":"failed"}}}`)
	// A stale pending report after the terminal status must be ignored.
	ft.feed(`{"jsonrpc":"2.0","method":"sessionUpdate","params":{"update":{"sessionUpdate":"tool_call_update","toolCallId":"tc1","status":"pending"}}}`)
	ft.feed(`{"jsonrpc":"2.0","id":1,"result":{}}`)

	got := collectStream(t, c.Stream(ctx))
	require.Len(t, got, 2)
	_, isTool := got[0].(agentmsg.AssistantMessage)
	assert.True(t, isTool)
	_, isResult := got[1].(agentmsg.ResultMessage)
	assert.True(t, isResult)
}

func TestUsageAndPlanUpdates(t *testing.T) {
	c, ft := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SubmitPrompt(ctx, nil))

	ft.feed(`{"jsonrpc":"2.0","method":"sessionUpdate","params":{"update":{"sessionUpdate":"plan","entries":[{"content":"step one","status":"pending","priority":"high"}]}}}`)
	ft.feed(`{"jsonrpc":"2.0","method":"sessionUpdate","params":{"update":{"sessionUpdate":"usage_update","used":1200,"size":200000,"cost":{"amount":0.0421}}}}`)
	ft.feed(`{"jsonrpc":"2.0","id":1,"result":{"stopReason":"end_turn"}}`)

	got := collectStream(t, c.Stream(ctx))
	require.Len(t, got, 2)

	plan, ok := got[0].(agentmsg.SystemMessage)
	require.True(t, ok)
	assert.Equal(t, agentmsg.SubtypePlan, plan.Subtype)

	result := got[1].(agentmsg.ResultMessage)
	assert.Equal(t, int64(1200), result.Usage.ContextUsed)
	assert.Equal(t, int64(200000), result.Usage.ContextSize)
	assert.InDelta(t, 0.0421, result.TotalCostUSD, 1e-9)
}

func TestResultCarriesResponseUsage(t *testing.T) {
	c, ft := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SubmitPrompt(ctx, nil))

	ft.feed(chunkUpdate("done"))
	ft.feed(`{"jsonrpc":"2.0","id":1,"result":{"stopReason":"end_turn","usage":{"used":500,"size":1000,"inputTokens":12,"outputTokens":34}}}`)

	got := collectStream(t, c.Stream(ctx))
	require.Len(t, got, 2)

	result := got[1].(agentmsg.ResultMessage)
	assert.Equal(t, "end_turn", result.Usage.StopReason)
	assert.Equal(t, int64(500), result.Usage.ContextUsed)
	assert.Equal(t, int64(1000), result.Usage.ContextSize)
	assert.Equal(t, int64(12), result.Usage.InputTokens)
	assert.Equal(t, int64(34), result.Usage.OutputTokens)
}

func TestResponseUsageOverridesInterimUpdates(t *testing.T) {
	c, ft := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SubmitPrompt(ctx, nil))

	ft.feed(`{"jsonrpc":"2.0","method":"sessionUpdate","params":{"update":{"sessionUpdate":"usage_update","used":100,"size":1000}}}`)
	ft.feed(`{"jsonrpc":"2.0","id":1,"result":{"stopReason":"end_turn","usage":{"used":900,"size":1000}}}`)

	got := collectStream(t, c.Stream(ctx))
	require.Len(t, got, 1)

	result := got[0].(agentmsg.ResultMessage)
	assert.Equal(t, int64(900), result.Usage.ContextUsed)
	assert.Equal(t, int64(1000), result.Usage.ContextSize)
}

func TestThoughtChunk(t *testing.T) {
	c, ft := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SubmitPrompt(ctx, nil))
	ft.feed(`{"jsonrpc":"2.0","method":"sessionUpdate","params":{"update":{"sessionUpdate":"agent_thought_chunk","content":{"type":"text","text":"pondering"}}}}`)
	ft.feed(`{"jsonrpc":"2.0","id":1,"result":{}}`)

	got := collectStream(t, c.Stream(ctx))
	require.Len(t, got, 2)
	thought := got[0].(agentmsg.SystemMessage)
	assert.Equal(t, agentmsg.SubtypeThought, thought.Subtype)
	assert.Equal(t, "pondering", thought.Data["text"])
}

func TestPromptErrorFailsStream(t *testing.T) {
	c, ft := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SubmitPrompt(ctx, nil))
	ft.feed(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"model overloaded"}}`)

	st := c.Stream(ctx)
	got := collectStream(t, st)
	assert.Empty(t, got)

	var rpcErr *RPCError
	require.ErrorAs(t, st.Err(), &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
}

func TestEOFUnblocksConsumer(t *testing.T) {
	c, ft := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SubmitPrompt(ctx, nil))
	st := c.Stream(ctx)

	// Agent dies mid-turn.
	_ = ft.Stop()

	got := collectStream(t, st)
	assert.Empty(t, got)
}

func TestGarbageLinesAreSkipped(t *testing.T) {
	c, ft := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SubmitPrompt(ctx, nil))
	ft.feed(`not json at all`)
	ft.feed(``)
	ft.feed(chunkUpdate("ok"))
	ft.feed(`{"jsonrpc":"2.0","id":1,"result":{}}`)

	got := collectStream(t, c.Stream(ctx))
	require.Len(t, got, 2)
	asst := got[0].(agentmsg.AssistantMessage)
	assert.Equal(t, agentmsg.TextBlock{Text: "ok"}, asst.Content[0])
}

func TestSubmitPromptGuards(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SubmitPrompt(ctx, nil))
	assert.ErrorIs(t, c.SubmitPrompt(ctx, nil), ErrTurnInFlight)

	c2 := NewClient()
	c2.setTransport(newFakeTransport())
	assert.ErrorIs(t, c2.SubmitPrompt(ctx, nil), ErrNoSession)
}

func TestStopResolvesPendingAndIsIdempotent(t *testing.T) {
	c, _ := newTestClient(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.call(context.Background(), methodNewSession, newSessionRequest{CWD: "."})
		errCh <- err
	}()

	// Let the request register before shutting down.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("pending call never resolved")
	}
}

func TestCancelSendsNotification(t *testing.T) {
	c, ft := newTestClient(t)

	require.NoError(t, c.Cancel())

	msg := ft.lastWrite(t)
	assert.Equal(t, methodCancel, msg.Method)
	assert.Nil(t, msg.ID)

	var params cancelParams
	require.NoError(t, json.Unmarshal(msg.Params, &params))
	assert.Equal(t, "sess-1", params.SessionID)
}

func TestNewSessionStoresID(t *testing.T) {
	c, ft := newTestClient(t)
	ft.onWrite = func(msg jsonRPCMessage) {
		if msg.Method == methodNewSession {
			ft.feed(`{"jsonrpc":"2.0","id":1,"result":{"sessionId":"sess-new"}}`)
		}
	}
	c.mu.Lock()
	c.sessionID = ""
	c.mu.Unlock()

	id, err := c.NewSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess-new", id)
	assert.Equal(t, "sess-new", c.SessionID())
}

func TestUnknownAgentRequestGetsErrorResponse(t *testing.T) {
	c, ft := newTestClient(t)
	_ = c

	ft.feed(`{"jsonrpc":"2.0","id":42,"method":"fs/readTextFile","params":{}}`)

	require.Eventually(t, func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		for _, w := range ft.writes {
			if w.ID != nil && *w.ID == 42 {
				return w.Error != nil && w.Error.Code == codeMethodNotFound
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStartFailsForMissingBinary(t *testing.T) {
	c := NewClient(WithBinaryPath("definitely-not-a-real-binary-4af1"))
	err := c.Start(context.Background())
	require.Error(t, err)

	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, 127, procErr.ExitCode)
	assert.NotNil(t, procErr.Cause)
}
