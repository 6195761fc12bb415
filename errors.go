package opencode

import "errors"

var (
	// ErrNotConnected is returned when a query or receive is attempted
	// before Connect, or after Disconnect.
	ErrNotConnected = errors.New("client is not connected")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("client is already connected")

	// ErrTurnInFlight is returned when Query is called while a previous
	// turn's response has not been fully received.
	ErrTurnInFlight = errors.New("a turn is already in flight")

	// ErrNoActiveTurn is returned when ReceiveResponse is called with
	// no preceding Query.
	ErrNoActiveTurn = errors.New("no turn to receive; call Query first")
)
