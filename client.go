package opencode

import (
	"context"
	"sync"

	"github.com/agentwire/opencode-go/acp"
	"github.com/agentwire/opencode-go/agentmsg"
	"github.com/agentwire/opencode-go/serve"
)

// Client is the unified entry point. It drives a coding agent either
// by spawning it as a subprocess or by talking to a running server,
// chosen by WithServerURL, and exposes the same turn-based API over
// both.
type Client struct {
	config config

	mu         sync.Mutex
	backend    backendSession
	turnActive bool
}

// NewClient builds an unconnected client.
func NewClient(opts ...Option) *Client {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{config: cfg}
}

// Connect establishes the backend session: for the HTTP backend a
// server-side session is created; for the subprocess backend the agent
// is spawned, the protocol handshake runs, and a session is created or
// resumed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.backend != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	var backend backendSession
	var err error
	if c.config.serverURL != "" {
		backend, err = c.connectServe(ctx)
	} else {
		backend, err = c.connectACP(ctx)
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.backend = backend
	c.mu.Unlock()
	return nil
}

func (c *Client) connectServe(ctx context.Context) (backendSession, error) {
	transport := serve.NewTransport(c.config.serverURL,
		serve.WithRequestTimeout(c.config.httpTimeout))
	session := serve.NewSession(transport,
		serve.WithModel(c.config.model),
		serve.WithProvider(c.config.providerID),
		serve.WithEventBufferSize(c.config.eventBufferSize))
	if err := session.Connect(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

func (c *Client) connectACP(ctx context.Context) (backendSession, error) {
	opts := []acp.Option{
		acp.WithCWD(c.config.cwd),
		acp.WithEventBufferSize(c.config.eventBufferSize),
		acp.WithMcpServers(c.config.mcpServers...),
		acp.WithGuards(c.config.guards...),
	}
	if c.config.binaryPath != "" {
		opts = append(opts, acp.WithBinaryPath(c.config.binaryPath))
	}
	if len(c.config.binaryArgs) > 0 {
		opts = append(opts, acp.WithBinaryArgs(c.config.binaryArgs...))
	}
	if c.config.env != nil {
		opts = append(opts, acp.WithEnv(c.config.env))
	}
	if c.config.stderrHandler != nil {
		opts = append(opts, acp.WithStderrHandler(c.config.stderrHandler))
	}

	client := acp.NewClient(opts...)
	if err := client.Start(ctx); err != nil {
		return nil, err
	}

	var err error
	if c.config.resume != "" {
		err = client.LoadSession(ctx, c.config.resume)
	} else {
		_, err = client.NewSession(ctx)
	}
	if err != nil {
		_ = client.Stop()
		return nil, err
	}
	return &acpBackend{client: client}, nil
}

// SessionID returns the active session id, or "" when disconnected.
func (c *Client) SessionID() string {
	c.mu.Lock()
	backend := c.backend
	c.mu.Unlock()
	if backend == nil {
		return ""
	}
	return backend.SessionID()
}

// Query starts a turn from a plain text prompt. The response is read
// with ReceiveResponse.
func (c *Client) Query(ctx context.Context, prompt string) error {
	return c.QueryParts(ctx, agentmsg.Text(prompt))
}

// QueryParts starts a turn from structured prompt parts.
func (c *Client) QueryParts(ctx context.Context, parts ...agentmsg.Part) error {
	c.mu.Lock()
	backend := c.backend
	if backend == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.turnActive {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	c.turnActive = true
	c.mu.Unlock()

	if err := backend.Submit(ctx, parts); err != nil {
		c.mu.Lock()
		c.turnActive = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// ReceiveResponse streams the current turn. The stream opens with a
// synthetic init SystemMessage carrying the session id, then relays
// the backend's messages. A backend failure is reported both ways: as
// a final error-flagged ResultMessage and through the stream's Err.
func (c *Client) ReceiveResponse(ctx context.Context) (*agentmsg.Stream, error) {
	c.mu.Lock()
	backend := c.backend
	active := c.turnActive
	c.mu.Unlock()
	if backend == nil {
		return nil, ErrNotConnected
	}
	if !active {
		return nil, ErrNoActiveTurn
	}

	out := agentmsg.NewStream(c.config.eventBufferSize)
	go c.relay(ctx, backend, out)
	return out, nil
}

func (c *Client) relay(ctx context.Context, backend backendSession, out *agentmsg.Stream) {
	defer out.Close()
	defer c.endTurn()

	init := agentmsg.SystemMessage{
		Subtype: agentmsg.SubtypeInit,
		Data: map[string]any{
			"sessionID": backend.SessionID(),
			"backend":   c.backendName(),
			"model":     c.config.model,
			"cwd":       c.config.cwd,
		},
	}
	if !out.Push(ctx, init) {
		return
	}

	st := backend.Stream(ctx)
	for msg := range st.Messages() {
		if !out.Push(ctx, msg) {
			return
		}
	}
	if err := st.Err(); err != nil {
		out.Push(ctx, agentmsg.ResultMessage{
			Usage:     agentmsg.Usage{StopReason: "error"},
			SessionID: backend.SessionID(),
			NumTurns:  1,
			IsError:   true,
			Error:     err.Error(),
		})
		out.Fail(err)
	}
}

func (c *Client) endTurn() {
	c.mu.Lock()
	c.turnActive = false
	c.mu.Unlock()
}

func (c *Client) backendName() string {
	if c.config.serverURL != "" {
		return "http"
	}
	return "subprocess"
}

// Interrupt asks the backend to stop the current turn. The HTTP
// backend cannot; it returns serve.ErrCancelNotSupported.
func (c *Client) Interrupt(ctx context.Context) error {
	c.mu.Lock()
	backend := c.backend
	c.mu.Unlock()
	if backend == nil {
		return ErrNotConnected
	}
	return backend.Interrupt(ctx)
}

// Disconnect tears the backend down. Safe to call when never
// connected or already disconnected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	backend := c.backend
	c.backend = nil
	c.turnActive = false
	c.mu.Unlock()
	if backend == nil {
		return nil
	}
	return backend.Close()
}
