package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloud-shuttle/wsrpc/transport"
)

// recordingSender captures every message handed to it, safe for concurrent
// use by the ReconnectLoop's flush and any direct Send call.
type recordingSender struct {
	mu  sync.Mutex
	got []transport.Message
}

func (s *recordingSender) Send(ctx context.Context, m transport.Message) error {
	s.mu.Lock()
	s.got = append(s.got, m)
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) messages() []transport.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Message(nil), s.got...)
}

func TestReconnectLoopBuffersThenFlushesExactlyOnceOnReconnect(t *testing.T) {
	sender := &recordingSender{}
	var connectCalls int
	var mu sync.Mutex

	connect := func(ctx context.Context) error {
		mu.Lock()
		connectCalls++
		mu.Unlock()
		return nil
	}

	loop := New(Config{
		Strategy:            FixedStrategy{Delay: 100 * time.Millisecond},
		CircuitThreshold:    5,
		CircuitTimeout:      time.Second,
		HealthCheckInterval: time.Hour, // not exercised in this test
		BufferCapacity:      100,
	}, connect, func() Sender { return sender })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	defer loop.Stop()

	// Starts Disconnected: Send must buffer rather than deliver directly.
	for i := 0; i < 4; i++ {
		require.NoError(t, loop.Send(ctx, transport.Message{Data: []byte{byte('a' + i)}}))
	}
	assert.Equal(t, 4, loop.Buffer().Len())

	loop.RequestReconnect()

	require.Eventually(t, func() bool {
		return len(sender.messages()) == 4
	}, 2*time.Second, 10*time.Millisecond, "buffered messages should flush exactly once after reconnect")

	assert.Equal(t, transport.Connected, loop.State())
	assert.Equal(t, 0, loop.Buffer().Len())

	// Exactly once: a second reconnect request with nothing buffered must
	// not replay the same four messages again.
	loop.RequestReconnect()
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, sender.messages(), 4)

	// Order preserved: the server receives exactly the 4 buffered messages,
	// in the order they were pushed.
	got := sender.messages()
	for i, m := range got {
		assert.Equal(t, byte('a'+i), m.Data[0])
	}
}

func TestReconnectLoopNoneStrategyFailsImmediately(t *testing.T) {
	loop := New(Config{
		Strategy:       NoneStrategy{},
		BufferCapacity: 10,
	}, func(ctx context.Context) error { return nil }, func() Sender { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	defer loop.Stop()

	loop.RequestReconnect()
	require.Eventually(t, func() bool {
		return loop.State() == transport.Failed
	}, time.Second, 5*time.Millisecond)
}
