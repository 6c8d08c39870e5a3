// Package perf implements the performance layer from spec.md §4.6:
// batching, caching, and connection pooling to amortize cost across many
// small operations.
package perf

import (
	"sync"
	"time"

	"github.com/cloud-shuttle/wsrpc/transport"
)

// BatcherConfig configures a Batcher.
type BatcherConfig struct {
	// Enabled disables batching entirely when false: AddMessage becomes a
	// direct passthrough to Flush's callback.
	Enabled      bool
	BatchSize    int
	BatchTimeout time.Duration
}

// Batcher accepts outbound payloads and emits them as a batch when either
// the pending count reaches BatchSize or BatchTimeout has elapsed since the
// last flush. Grounded on the teacher's combine() helper in call.go,
// generalized from "combine two option slices only when both are
// non-empty" to "accumulate many pending payloads, allocate only at flush
// time."
type Batcher struct {
	cfg    BatcherConfig
	onFlush func([]transport.Message)

	mu      sync.Mutex
	pending []transport.Message
	timer   *time.Timer
}

// New builds a Batcher that calls onFlush with each emitted batch.
func New(cfg BatcherConfig, onFlush func([]transport.Message)) *Batcher {
	return &Batcher{cfg: cfg, onFlush: onFlush}
}

// AddMessage queues m. When batching is disabled, it is a direct
// passthrough. Otherwise it may trigger a flush if BatchSize is reached.
func (b *Batcher) AddMessage(m transport.Message) {
	if !b.cfg.Enabled {
		b.onFlush([]transport.Message{m})
		return
	}

	b.mu.Lock()
	b.pending = append(b.pending, m)
	full := len(b.pending) >= b.cfg.BatchSize
	if b.timer == nil && b.cfg.BatchTimeout > 0 {
		b.timer = time.AfterFunc(b.cfg.BatchTimeout, b.timerFlush)
	}
	b.mu.Unlock()

	if full {
		b.Flush()
	}
}

func (b *Batcher) timerFlush() {
	b.Flush()
}

// Flush drains synchronously and resets the timer.
func (b *Batcher) Flush() {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if len(batch) > 0 {
		b.onFlush(batch)
	}
}
