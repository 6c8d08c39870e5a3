package perf

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloud-shuttle/wsrpc/transport"
)

func TestBatcherDisabledIsPassthrough(t *testing.T) {
	var mu sync.Mutex
	var flushes [][]transport.Message

	b := New(BatcherConfig{Enabled: false}, func(msgs []transport.Message) {
		mu.Lock()
		flushes = append(flushes, msgs)
		mu.Unlock()
	})

	b.AddMessage(transport.Message{Data: []byte("1")})
	b.AddMessage(transport.Message{Data: []byte("2")})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, flushes, 2)
	assert.Len(t, flushes[0], 1)
}

func TestBatcherFlushesAtBatchSize(t *testing.T) {
	var mu sync.Mutex
	var flushes [][]transport.Message

	b := New(BatcherConfig{Enabled: true, BatchSize: 3, BatchTimeout: time.Hour}, func(msgs []transport.Message) {
		mu.Lock()
		flushes = append(flushes, msgs)
		mu.Unlock()
	})

	b.AddMessage(transport.Message{Data: []byte("1")})
	b.AddMessage(transport.Message{Data: []byte("2")})

	mu.Lock()
	require.Len(t, flushes, 0, "should not flush before reaching BatchSize")
	mu.Unlock()

	b.AddMessage(transport.Message{Data: []byte("3")})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, flushes, 1)
	assert.Len(t, flushes[0], 3)
}

func TestBatcherFlushesOnTimeout(t *testing.T) {
	var mu sync.Mutex
	var flushes [][]transport.Message

	b := New(BatcherConfig{Enabled: true, BatchSize: 100, BatchTimeout: 20 * time.Millisecond}, func(msgs []transport.Message) {
		mu.Lock()
		flushes = append(flushes, msgs)
		mu.Unlock()
	})

	b.AddMessage(transport.Message{Data: []byte("1")})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flushes) == 1
	}, time.Second, 5*time.Millisecond)
}
