package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/agentwire/opencode-go/agentmsg"
)

const (
	defaultRequestTimeout = 120 * time.Second
	closeTimeout          = 5 * time.Second
)

// Transport is the REST client for one agent server session. It owns
// two HTTP clients: a bounded one for request/response calls and an
// unbounded one for the long-lived event feed.
type Transport struct {
	baseURL string
	api     *http.Client
	stream  *http.Client

	mu        sync.Mutex
	sessionID string
}

// TransportOption adjusts transport construction.
type TransportOption func(*Transport)

// WithRequestTimeout bounds each REST call. It does not apply to the
// event feed.
func WithRequestTimeout(d time.Duration) TransportOption {
	return func(t *Transport) { t.api.Timeout = d }
}

// NewTransport builds a transport for the server at baseURL, e.g.
// "http://127.0.0.1:4096".
func NewTransport(baseURL string, opts ...TransportOption) *Transport {
	t := &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		api:     &http.Client{Timeout: defaultRequestTimeout},
		stream:  &http.Client{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ChatRequest is the body of a prompt POST.
type ChatRequest struct {
	Parts      []agentmsg.Part `json:"parts"`
	ModelID    string          `json:"modelID,omitempty"`
	ProviderID string          `json:"providerID,omitempty"`
}

// ChatResponse is the server's synchronous reply to a prompt POST. The
// streaming path ignores it; it exists for the blocking call style.
type ChatResponse struct {
	Info  json.RawMessage `json:"info,omitempty"`
	Parts []Part          `json:"parts,omitempty"`
}

// Connect creates a server-side session and remembers its id.
func (t *Transport) Connect(ctx context.Context) error {
	var resp struct {
		ID string `json:"id"`
	}
	if err := t.doJSON(ctx, http.MethodPost, "/session", map[string]any{}, &resp); err != nil {
		return err
	}
	if resp.ID == "" {
		return &ServerError{Status: http.StatusOK, Body: "session response missing id"}
	}
	t.mu.Lock()
	t.sessionID = resp.ID
	t.mu.Unlock()
	return nil
}

// SessionID returns the server-assigned session id, or "" before
// Connect.
func (t *Transport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// SendMessage posts one prompt to the session. The server blocks until
// the turn finishes, so callers streaming via the event feed should
// run this concurrently.
func (t *Transport) SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	sessionID := t.SessionID()
	if sessionID == "" {
		return nil, ErrNotConnected
	}
	var resp ChatResponse
	path := fmt.Sprintf("/session/%s/message", sessionID)
	if err := t.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History fetches the session's stored messages.
func (t *Transport) History(ctx context.Context) ([]json.RawMessage, error) {
	sessionID := t.SessionID()
	if sessionID == "" {
		return nil, ErrNotConnected
	}
	var records []json.RawMessage
	path := fmt.Sprintf("/session/%s/messages", sessionID)
	if err := t.doJSON(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// OpenEvents subscribes to the server's event feed. The feed is global;
// callers filter by session id. Cancelling ctx aborts the stream.
func (t *Transport) OpenEvents(ctx context.Context) (*EventStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/event", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &ServerError{Status: resp.StatusCode, Body: string(body)}
	}
	return newEventStream(resp.Body), nil
}

// Close deletes the server-side session. Best effort: the server may
// already be gone, and that is fine.
func (t *Transport) Close() error {
	sessionID := t.SessionID()
	if sessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = t.doJSON(ctx, http.MethodDelete, "/session/"+sessionID, nil, nil)
	}
	t.api.CloseIdleConnections()
	t.stream.CloseIdleConnections()
	return nil
}

func (t *Transport) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.api.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ServerError{Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
