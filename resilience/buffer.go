package resilience

import (
	"sync"

	"github.com/cloud-shuttle/wsrpc/errs"
	"github.com/cloud-shuttle/wsrpc/transport"
)

// MessageBuffer is a bounded FIFO of outbound payloads awaiting a live
// connection. Push fails fast with BufferFull at capacity; Pop blocks until
// an item is present or the buffer is closed.
type MessageBuffer struct {
	capacity int

	mu     sync.Mutex
	cond   *sync.Cond
	items  []transport.Message
	closed bool
}

// NewMessageBuffer builds a buffer with room for capacity messages.
func NewMessageBuffer(capacity int) *MessageBuffer {
	b := &MessageBuffer{capacity: capacity}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push admits m, or returns BufferFull if the buffer is at capacity.
func (b *MessageBuffer) Push(m transport.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errs.NewResilienceError(errs.BufferFull)
	}
	if len(b.items) >= b.capacity {
		return errs.NewResilienceError(errs.BufferFull)
	}
	b.items = append(b.items, m)
	b.cond.Signal()
	return nil
}

// Pop blocks until an item is available or the buffer is closed, in which
// case ok is false.
func (b *MessageBuffer) Pop() (m transport.Message, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.items) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.items) == 0 {
		return transport.Message{}, false
	}
	m = b.items[0]
	b.items = b.items[1:]
	return m, true
}

// DrainAll removes and returns every buffered message in FIFO order,
// without blocking. Used by the ReconnectLoop to flush on reconnect.
func (b *MessageBuffer) DrainAll() []transport.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	return out
}

// Len reports the current number of buffered messages.
func (b *MessageBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Close marks the buffer closed, waking any blocked Pop.
func (b *MessageBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}
