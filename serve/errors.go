package serve

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned for operations attempted before
	// Connect succeeded.
	ErrNotConnected = errors.New("transport is not connected")

	// ErrCancelNotSupported is returned by Interrupt: the HTTP backend
	// has no mid-turn cancel, the session must be torn down instead.
	ErrCancelNotSupported = errors.New("mid-turn cancel is not supported over HTTP")

	// ErrStreamEnded is returned when the event feed closes before the
	// turn settled with an idle or error event.
	ErrStreamEnded = errors.New("event stream ended before the turn settled")
)

// ServerError is a non-2xx reply from the agent server.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Body)
}

// SessionError is a session.error event from the server's feed. It
// fails the turn; no result is delivered.
type SessionError struct {
	Name    string
	Message string
}

func (e *SessionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("session error %s: %s", e.Name, e.Message)
	}
	return "session error " + e.Name
}
