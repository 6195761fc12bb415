package agentmsg

import (
	"context"
	"sync"
)

// Stream delivers one turn's messages in arrival order. A single
// producer pushes messages and then calls Close or Fail; consumers
// range over Messages and check Err once the channel is drained.
type Stream struct {
	ch   chan Message
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

// NewStream creates a stream whose channel buffers up to buffer
// messages before Push blocks.
func NewStream(buffer int) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{
		ch:   make(chan Message, buffer),
		done: make(chan struct{}),
	}
}

// Messages returns the ordered message channel. It is closed when the
// turn completes, fails, or the session ends.
func (s *Stream) Messages() <-chan Message {
	return s.ch
}

// Push delivers msg to the consumer. It reports false if the context
// was cancelled or the stream was closed before delivery.
func (s *Stream) Push(ctx context.Context, msg Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- msg:
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

// Close marks the stream complete. Safe to call more than once.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.done)
		close(s.ch)
	})
}

// Fail records the turn error and closes the stream. The first error
// wins.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.Close()
}

// Err reports why the stream ended early, or nil for a clean finish.
// Only meaningful after Messages is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
