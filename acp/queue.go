package acp

import (
	"context"
	"sync"
)

// queueItem is one entry in the update queue: a decoded session update,
// a turn-completion marker, or an end-of-stream marker.
type queueItem struct {
	update *sessionUpdate
	done   *turnOutcome
	eof    bool
}

// turnOutcome records how the prompt request resolved.
type turnOutcome struct {
	response promptResponse
	err      error
}

// updateQueue is an unbounded FIFO between the reader loop and the
// turn translator. Unbounded so a slow consumer can never stall the
// reader loop, which also services responses and permission requests.
type updateQueue struct {
	mu     sync.Mutex
	items  []queueItem
	signal chan struct{}
}

func newUpdateQueue() *updateQueue {
	return &updateQueue{signal: make(chan struct{}, 1)}
}

func (q *updateQueue) push(item queueItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop blocks until an item is available or ctx is done.
func (q *updateQueue) pop(ctx context.Context) (queueItem, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return queueItem{}, false
		}
	}
}
