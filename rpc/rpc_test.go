package rpc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloud-shuttle/wsrpc/codec"
)

// loopbackSender captures every encoded frame the Client sends, so a test
// can hand-craft a matching Response and feed it back via HandleResponse.
type loopbackSender struct {
	mu   sync.Mutex
	sent [][]byte
}

func (s *loopbackSender) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	s.sent = append(s.sent, append([]byte(nil), data...))
	s.mu.Unlock()
	return nil
}

func (s *loopbackSender) last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

func TestCallCorrelatesFirstIDAsRpc1(t *testing.T) {
	sender := &loopbackSender{}
	cl := New(sender, codec.SelfDescribingCodec{}, time.Second)

	done := make(chan Response, 1)
	go func() {
		resp, err := cl.Call(context.Background(), "ping", nil, Call)
		assert.NoError(t, err)
		done <- resp
	}()

	// Wait for the request to actually be sent before decoding its id.
	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.sent) == 1
	}, time.Second, time.Millisecond)

	var req Request
	require.NoError(t, codec.SelfDescribingCodec{}.Decode(sender.last(), &req))
	assert.Equal(t, "rpc_1", req.ID)

	cl.HandleResponse(mustEncode(t, Response{ID: req.ID, Result: "pong"}))

	select {
	case resp := <-done:
		assert.Equal(t, "pong", resp.Result)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for call to resolve")
	}
}

func TestCallTimesOutWithoutResponse(t *testing.T) {
	sender := &loopbackSender{}
	cl := New(sender, codec.SelfDescribingCodec{}, 50*time.Millisecond)

	start := time.Now()
	_, err := cl.Call(context.Background(), "slow", nil, Call)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.InDelta(t, 100*time.Millisecond, elapsed, float64(50*time.Millisecond), "should resolve within 50-150ms")
	assert.Equal(t, 0, cl.PendingCount())
}

func TestSubscribeStreamsUntilFinal(t *testing.T) {
	sender := &loopbackSender{}
	cl := New(sender, codec.SelfDescribingCodec{}, time.Second)

	stream, err := cl.Subscribe(context.Background(), "ticks", nil)
	require.NoError(t, err)

	cl.HandleResponse(mustEncode(t, Response{ID: stream.ID(), Result: 1}))
	cl.HandleResponse(mustEncode(t, Response{ID: stream.ID(), Result: 2}))
	cl.HandleResponse(mustEncode(t, Response{ID: stream.ID(), Final: true}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	r1, ok := stream.Recv(ctx)
	require.True(t, ok)
	assert.EqualValues(t, 1, r1.Result)

	r2, ok := stream.Recv(ctx)
	require.True(t, ok)
	assert.EqualValues(t, 2, r2.Result)

	_, ok = stream.Recv(ctx)
	assert.False(t, ok, "stream should close after a Final response")
}

func TestMethodTimeoutOverride(t *testing.T) {
	sender := &loopbackSender{}
	cl := New(sender, codec.SelfDescribingCodec{}, time.Minute)
	cl.SetServiceConfig(ServiceConfig{Methods: map[string]MethodConfig{
		"slow": {Timeout: 10 * time.Millisecond},
	}})

	start := time.Now()
	_, err := cl.Call(context.Background(), "slow", nil, Call)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func mustEncode(t *testing.T, resp Response) []byte {
	t.Helper()
	b, err := codec.SelfDescribingCodec{}.Encode(resp)
	require.NoError(t, err)
	return b
}
