package acp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentwire/opencode-go/agentmsg"
)

// Client drives one agent subprocess over JSON-RPC 2.0 on stdio.
// Lifecycle: NewClient, Start, NewSession or LoadSession, then one
// SubmitPrompt/Stream pair per turn, and finally Stop.
//
// One reader goroutine owns stdout. It resolves responses to waiting
// callers, answers permission requests inline, and queues session
// updates for the turn translator, so a slow message consumer never
// blocks protocol traffic.
type Client struct {
	config  Config
	idGen   idGenerator
	updates *updateQueue

	procMu sync.Mutex
	proc   transport

	pendingMu sync.Mutex
	pending   map[int64]chan rpcResult

	mu         sync.Mutex
	started    bool
	closed     bool
	sessionID  string
	turnActive bool
	turn       *turnState

	done   chan struct{}
	readWg sync.WaitGroup
}

type rpcResult struct {
	result json.RawMessage
	err    error
}

// turnState accumulates one turn's streaming state. The translator
// goroutine owns it exclusively after SubmitPrompt creates it.
type turnState struct {
	text      strings.Builder
	toolCalls map[string]*toolCallRecord
	usage     agentmsg.Usage
	costUSD   float64
	startedAt time.Time
}

// toolCallRecord tracks one tool invocation across its status updates.
type toolCallRecord struct {
	id      string
	name    string
	input   map[string]any
	status  string
	emitted bool
}

// NewClient builds a client with the given options applied on top of
// the defaults.
func NewClient(opts ...Option) *Client {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Client{
		config:  config,
		updates: newUpdateQueue(),
		pending: make(map[int64]chan rpcResult),
		done:    make(chan struct{}),
	}
}

// Start spawns the agent, begins the reader loop and performs the
// initialize handshake.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	proc := newProcessManager(c.config)
	if err := proc.Start(); err != nil {
		return err
	}
	c.setTransport(proc)

	c.readWg.Add(1)
	go c.readLoop()

	if _, err := c.initialize(ctx); err != nil {
		_ = c.Stop()
		return err
	}
	return nil
}

func (c *Client) setTransport(t transport) {
	c.procMu.Lock()
	c.proc = t
	c.procMu.Unlock()
}

func (c *Client) transport() transport {
	c.procMu.Lock()
	defer c.procMu.Unlock()
	return c.proc
}

func (c *Client) initialize(ctx context.Context) (*InitializeResponse, error) {
	params := initializeRequest{
		ProtocolVersion: protocolVersion,
		ClientInfo:      clientInfo{Name: "opencode-go", Version: "0.1.0"},
		Capabilities:    map[string]any{"fs": map[string]any{"readTextFile": false, "writeTextFile": false}},
	}
	raw, err := c.call(ctx, methodInitialize, params)
	if err != nil {
		return nil, err
	}
	var resp InitializeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ProtocolError{Message: "malformed initialize response", Cause: err}
	}
	return &resp, nil
}

// NewSession creates a fresh conversation and returns its id.
func (c *Client) NewSession(ctx context.Context) (string, error) {
	params := newSessionRequest{
		CWD:        c.config.CWD,
		McpServers: c.mcpServers(),
	}
	raw, err := c.call(ctx, methodNewSession, params)
	if err != nil {
		return "", err
	}
	var resp newSessionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &ProtocolError{Message: "malformed newSession response", Cause: err}
	}
	if resp.SessionID == "" {
		return "", &ProtocolError{Message: "newSession response missing sessionId"}
	}
	c.mu.Lock()
	c.sessionID = resp.SessionID
	c.mu.Unlock()
	return resp.SessionID, nil
}

// LoadSession resumes a previous conversation by id.
func (c *Client) LoadSession(ctx context.Context, sessionID string) error {
	params := loadSessionRequest{
		SessionID:  sessionID,
		CWD:        c.config.CWD,
		McpServers: c.mcpServers(),
	}
	if _, err := c.call(ctx, methodLoadSession, params); err != nil {
		return err
	}
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
	return nil
}

func (c *Client) mcpServers() []McpServerConfig {
	if c.config.McpServers == nil {
		return []McpServerConfig{}
	}
	return c.config.McpServers
}

// SessionID returns the active session id, or "" before NewSession.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SubmitPrompt starts a turn. It sends the prompt request and returns
// immediately; the turn's messages arrive on the next Stream call and
// the prompt response is queued as the turn's completion marker.
func (c *Client) SubmitPrompt(ctx context.Context, parts []agentmsg.Part) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.sessionID == "" {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.turnActive {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	c.turnActive = true
	c.turn = &turnState{
		toolCalls: make(map[string]*toolCallRecord),
		startedAt: time.Now(),
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	params := promptRequest{SessionID: sessionID, Prompt: parts}
	ch, err := c.sendRequest(methodPrompt, params)
	if err != nil {
		c.mu.Lock()
		c.turnActive = false
		c.mu.Unlock()
		return err
	}

	go func() {
		outcome := &turnOutcome{}
		select {
		case res := <-ch:
			if res.err != nil {
				outcome.err = res.err
			} else if err := json.Unmarshal(res.result, &outcome.response); err != nil {
				outcome.err = &ProtocolError{Message: "malformed prompt response", Cause: err}
			}
		case <-ctx.Done():
			outcome.err = ctx.Err()
		}
		c.updates.push(queueItem{done: outcome})
	}()
	return nil
}

// Stream returns the message stream for the turn started by the last
// SubmitPrompt. The stream ends with a ResultMessage on success, or
// with Err set when the prompt request failed or the session died.
func (c *Client) Stream(ctx context.Context) *agentmsg.Stream {
	st := agentmsg.NewStream(c.config.EventBufferSize)
	go c.translate(ctx, st)
	return st
}

// Prompt runs a full turn synchronously and collects its messages.
func (c *Client) Prompt(ctx context.Context, parts []agentmsg.Part) (*TurnResult, error) {
	if err := c.SubmitPrompt(ctx, parts); err != nil {
		return nil, err
	}
	st := c.Stream(ctx)
	res := &TurnResult{}
	var text strings.Builder
	for msg := range st.Messages() {
		res.Messages = append(res.Messages, msg)
		switch m := msg.(type) {
		case agentmsg.AssistantMessage:
			for _, block := range m.Content {
				if tb, ok := block.(agentmsg.TextBlock); ok {
					text.WriteString(tb.Text)
				}
			}
		case agentmsg.ResultMessage:
			result := m
			res.Result = &result
		}
	}
	if err := st.Err(); err != nil {
		return nil, err
	}
	res.Text = text.String()
	return res, nil
}

// TurnResult is the collected outcome of a synchronous Prompt call.
type TurnResult struct {
	// Messages holds every message of the turn in order.
	Messages []agentmsg.Message
	// Result is the terminal message, nil if the session ended early.
	Result *agentmsg.ResultMessage
	// Text is the concatenated assistant text.
	Text string
}

// Cancel asks the agent to stop the current turn. The turn still
// completes normally, with a cancellation stop reason.
func (c *Client) Cancel() error {
	c.mu.Lock()
	sessionID := c.sessionID
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if sessionID == "" {
		return ErrNoSession
	}
	proc := c.transport()
	if proc == nil {
		return ErrNotStarted
	}
	return proc.WriteJSON(newNotification(methodCancel, cancelParams{SessionID: sessionID}))
}

// Stop shuts the client down: the agent process is terminated, the
// reader loop drains, and every pending request resolves with
// ErrClosed. Safe to call more than once.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	proc := c.transport()
	if proc != nil {
		_ = proc.Stop()
	}
	c.readWg.Wait()
	return nil
}

// readLoop owns the agent's stdout for the life of the process.
func (c *Client) readLoop() {
	defer c.readWg.Done()
	defer c.failPending(ErrClosed)
	defer c.updates.push(queueItem{eof: true})

	proc := c.transport()
	for {
		line, err := proc.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.isClosed() {
				slog.Debug("agent stdout read failed", "error", err)
			}
			return
		}
		c.handleLine(line)
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// handleLine classifies one frame and dispatches it. Non-JSON lines
// are skipped; agents are allowed to leak diagnostics onto stdout.
func (c *Client) handleLine(line []byte) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return
	}
	var msg jsonRPCMessage
	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
		slog.Debug("skipping non-JSON line from agent", "line", trimmed)
		return
	}

	switch {
	case msg.isResponse():
		c.handleResponse(&msg)
	case msg.isRequest():
		c.handleRequest(&msg)
	case msg.isNotification():
		c.handleNotification(&msg)
	default:
		slog.Debug("skipping unclassifiable message from agent", "line", trimmed)
	}
}

func (c *Client) handleResponse(msg *jsonRPCMessage) {
	c.pendingMu.Lock()
	ch, ok := c.pending[*msg.ID]
	if ok {
		delete(c.pending, *msg.ID)
	}
	c.pendingMu.Unlock()
	if !ok {
		slog.Debug("response for unknown request id", "id", *msg.ID)
		return
	}

	res := rpcResult{result: msg.Result}
	if msg.Error != nil {
		res.err = msg.Error
	}
	ch <- res
}

func (c *Client) handleNotification(msg *jsonRPCMessage) {
	if msg.Method != methodSessionUpdate {
		slog.Debug("ignoring notification", "method", msg.Method)
		return
	}
	update, err := parseSessionUpdate(msg.Params)
	if err != nil {
		slog.Debug("skipping malformed session update", "error", err)
		return
	}
	c.updates.push(queueItem{update: update})
}

// handleRequest answers agent-initiated requests. Every request gets a
// response so the agent never hangs on us.
func (c *Client) handleRequest(msg *jsonRPCMessage) {
	proc := c.transport()
	if msg.Method != methodRequestPermission {
		_ = proc.WriteJSON(newErrorResponse(*msg.ID, codeMethodNotFound, fmt.Sprintf("unsupported method %q", msg.Method)))
		return
	}

	var req permissionRequest
	if err := json.Unmarshal(msg.Params, &req); err != nil {
		_ = proc.WriteJSON(newErrorResponse(*msg.ID, codeInvalidParams, "malformed permission request"))
		return
	}

	tool := req.ToolCall.Title
	if tool == "" {
		tool = req.ToolCall.Kind
	}
	callID := req.ToolCall.ToolCallID
	if callID == "" {
		callID = "call_" + uuid.NewString()[:8]
	}

	allowed := evaluateGuards(context.Background(), c.config.Guards, tool, req.ToolCall.RawInput)
	optionID := selectOption(req.Options, allowed)
	slog.Debug("answering permission request", "tool", tool, "callId", callID, "allowed", allowed, "option", optionID)

	_ = proc.WriteJSON(newResponse(*msg.ID, permissionResponse{
		Outcome: permissionOutcome{Outcome: "selected", OptionID: optionID},
	}))
}

// sendRequest registers a pending slot and writes the request frame.
func (c *Client) sendRequest(method string, params any) (chan rpcResult, error) {
	proc := c.transport()
	if proc == nil {
		return nil, ErrNotStarted
	}

	id := c.idGen.Next()
	ch := make(chan rpcResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := proc.WriteJSON(newRequest(id, method, params)); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, err
	}
	return ch, nil
}

// call sends a request and blocks for its response.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ch, err := c.sendRequest(method, params)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-ch:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// failPending resolves every in-flight request with err.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int64]chan rpcResult)
	c.pendingMu.Unlock()
	for _, ch := range pending {
		ch <- rpcResult{err: err}
	}
}
