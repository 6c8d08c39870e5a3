package wsrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/cloud-shuttle/wsrpc/auth"
	"github.com/cloud-shuttle/wsrpc/perf"
	"github.com/cloud-shuttle/wsrpc/rpc"
)

// rpcEchoServer answers every inbound rpc.Request with a Response carrying
// the same id and a canned result, so a test can exercise the full
// performance -> codec -> transport -> rpc correlation round trip without
// a real backend.
func rpcEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := gorilla.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req rpc.Request
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			resp := rpc.Response{ID: req.ID, Result: "ack:" + req.Method}
			out, _ := json.Marshal(resp)
			if err := conn.WriteMessage(gorilla.BinaryMessage, out); err != nil {
				return
			}
		}
	}))
}

func TestClientCallRoundTrip(t *testing.T) {
	srv := rpcEchoServer(t)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	opts := DefaultOptions(url)
	c := New(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Disconnect(context.Background())

	resp, err := c.Call(ctx, "ping", nil)
	require.NoError(t, err)
	require.Equal(t, "ack:ping", resp.Result)
}

func TestClientQueryCachesSecondLookup(t *testing.T) {
	srv := rpcEchoServer(t)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(DefaultOptions(url))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Disconnect(context.Background())

	_, err := c.Query(ctx, "get_widget", nil, "widget:1")
	require.NoError(t, err)

	_, err = c.Query(ctx, "get_widget", nil, "widget:1")
	require.NoError(t, err)

	require.Greater(t, c.CacheHitRatio(), 0.0)
}

func TestClientConnectAttachesAuthProviderHeaders(t *testing.T) {
	gotAuth := make(chan string, 1)
	upgrader := gorilla.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	opts := DefaultOptions(url)
	opts.AuthProvider = auth.BearerToken{
		TokenFunc: func(ctx context.Context) (string, error) { return "secret-token", nil },
	}
	c := New(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Disconnect(context.Background())

	select {
	case got := <-gotAuth:
		require.Equal(t, "Bearer secret-token", got)
	case <-time.After(5 * time.Second):
		t.Fatal("server never observed a connection")
	}
}

func TestClientBatchesOutboundCallsWhenEnabled(t *testing.T) {
	srv := rpcEchoServer(t)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	opts := DefaultOptions(url)
	opts.Batcher = perf.BatcherConfig{Enabled: true, BatchSize: 2, BatchTimeout: time.Second}
	c := New(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Disconnect(context.Background())

	// Two concurrent calls should both resolve once the batch of size 2
	// flushes, even though neither Call learns about the batch directly.
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		method := "batched"
		go func() {
			_, err := c.Call(ctx, method, nil)
			results <- err
		}()
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-results)
	}
}
