package acp

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Client lifecycle methods.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("client already started")

	// ErrNotStarted is returned when an operation requires a running
	// agent process.
	ErrNotStarted = errors.New("client not started")

	// ErrClosed is returned for operations attempted after Stop, and
	// resolves any request still in flight when the client shuts down.
	ErrClosed = errors.New("client is closed")

	// ErrNoSession is returned when a prompt is submitted before a
	// session was created or loaded.
	ErrNoSession = errors.New("no active session")

	// ErrTurnInFlight is returned when a prompt is submitted while a
	// previous turn has not finished.
	ErrTurnInFlight = errors.New("a turn is already in flight")
)

// RPCError is a JSON-RPC error object returned by the agent.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ProcessError reports a failure to spawn or manage the agent
// subprocess. ExitCode is 127 when the binary could not be found.
type ProcessError struct {
	Message  string
	ExitCode int
	Cause    error
}

func (e *ProcessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProcessError) Unwrap() error { return e.Cause }

// ProtocolError reports bytes from the agent that could not be decoded
// as JSON-RPC, or a response that violated the protocol's shape.
type ProtocolError struct {
	Message string
	Line    string
	Cause   error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProtocolError) Unwrap() error { return e.Cause }
