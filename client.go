// Package wsrpc ties the transport, resilience, codec, rpc, and
// performance layers into a single client, following the control flow from
// spec.md §2: caller invokes a call -> performance batches/caches -> codec
// encodes -> transport sends a frame -> inbound frame arrives -> codec
// decodes -> rpc correlation matches the response id -> the caller's
// pending call resolves.
package wsrpc

import (
	"context"
	"sync"
	"time"

	"github.com/cloud-shuttle/wsrpc/codec"
	"github.com/cloud-shuttle/wsrpc/codec/compress"
	"github.com/cloud-shuttle/wsrpc/codec/hybrid"
	"github.com/cloud-shuttle/wsrpc/codec/zerocopy"
	"github.com/cloud-shuttle/wsrpc/internal/rtlog"
	"github.com/cloud-shuttle/wsrpc/keepalive"
	"github.com/cloud-shuttle/wsrpc/perf"
	"github.com/cloud-shuttle/wsrpc/resilience"
	"github.com/cloud-shuttle/wsrpc/rpc"
	"github.com/cloud-shuttle/wsrpc/transport"
	"github.com/cloud-shuttle/wsrpc/transport/adaptive"
	"github.com/cloud-shuttle/wsrpc/transport/sse"
	"github.com/cloud-shuttle/wsrpc/transport/webtransport"
	"github.com/cloud-shuttle/wsrpc/transport/ws"
)

var registerDefaultsOnce sync.Once

// registerDefaults wires every variant's transport Builder into the
// adaptive registry, and every non-baseline codec into the codec registry,
// exactly once per process. Called from New rather than a package init()
// so importing wsrpc without ever constructing a Client registers nothing
// beyond the always-present SelfDescribingCodec baseline.
func registerDefaults() {
	registerDefaultsOnce.Do(func() {
		adaptive.Register(ws.Builder())
		adaptive.Register(webtransport.Builder(webtransport.DefaultStreamConfig()))
		adaptive.Register(sse.Builder())

		zc := zerocopy.New()
		codec.Register(zc)
		codec.Register(hybrid.New(zc, codec.SelfDescribingCodec{}))
		if compressed, err := compress.New(codec.SelfDescribingCodec{}, 1024); err == nil {
			codec.Register(compressed)
		} else {
			rtlog.Warnf("wsrpc: failed to build default compressed codec: %v", err)
		}
	})
}

// Options configures a Client.
type Options struct {
	Config       transport.Config
	Capabilities adaptive.Capabilities
	Codec        codec.Codec
	Resilience   resilience.Config
	Batcher      perf.BatcherConfig
	CacheCapacity int
	CacheTTL     time.Duration
	RpcTimeout   time.Duration
	// AuthProvider, when set, is consulted on every connect attempt
	// (initial connect and every reconnect) to attach auth headers before
	// the adaptive transport dials.
	AuthProvider transport.AuthProvider
	// Keepalive governs both the transport's heartbeat expectations and
	// the resilience layer's health monitor / retry budget, applied via
	// ApplyToTransport/ApplyToResilience in DefaultOptions.
	Keepalive keepalive.HeartbeatParameters
}

// DefaultOptions returns Options populated with spec-mandated defaults for
// the given URL.
func DefaultOptions(url string) Options {
	ka := keepalive.DefaultHeartbeatParameters()
	return Options{
		Config:       ka.ApplyToTransport(transport.DefaultConfig(url)),
		Capabilities: adaptive.DefaultCapabilities(),
		Codec:        codec.Get("application/json"),
		Resilience: ka.ApplyToResilience(resilience.Config{
			Strategy:         resilience.ExponentialBackoffStrategy{Initial: time.Second, Max: 30 * time.Second, JitterRatio: 0.2},
			CircuitThreshold: 5,
			CircuitTimeout:   30 * time.Second,
			BufferCapacity:   256,
		}),
		Batcher:       perf.BatcherConfig{Enabled: false},
		CacheCapacity: 1024,
		CacheTTL:      5 * time.Minute,
		RpcTimeout:    10 * time.Second,
		Keepalive:     ka,
	}
}

// Client is the public, single-server RPC client: the union of every layer
// in the spec's stack, wired together behind one call/query/mutation/
// subscribe surface.
type Client struct {
	opts Options

	mu   sync.Mutex
	tr   *adaptive.Transport
	w    transport.Writer
	rpc  *rpc.Client
	loop *resilience.ReconnectLoop

	batcher *perf.Batcher
	cache   *perf.Cache

	cancelReader context.CancelFunc
}

// New constructs a Client without connecting. Call Connect to establish
// the connection and start the inbound/resilience loops.
func New(opts Options) *Client {
	if opts.Codec == nil {
		opts.Codec = codec.Get("application/json")
	}
	registerDefaults()
	c := &Client{
		opts:  opts,
		cache: perf.NewCache(opts.CacheCapacity, opts.CacheTTL),
	}
	return c
}

// Connect establishes the adaptive transport, starts the reader loop and
// the resilience loop, and is idempotent across reconnects (the resilience
// loop drives subsequent reconnection internally).
func (c *Client) Connect(ctx context.Context) error {
	connect := func(ctx context.Context) error {
		cfg := c.opts.Config
		if c.opts.AuthProvider != nil {
			headers, err := c.opts.AuthProvider.Authenticate(ctx, cfg)
			if err != nil {
				return err
			}
			if len(headers) > 0 {
				merged := make(map[string]string, len(cfg.Headers)+len(headers))
				for k, v := range cfg.Headers {
					merged[k] = v
				}
				for k, v := range headers {
					merged[k] = v
				}
				cfg.Headers = merged
			}
		}

		tr := adaptive.New(cfg, c.opts.Capabilities)
		if err := tr.Connect(ctx); err != nil {
			return err
		}
		r, w, err := tr.Split()
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.tr = tr
		c.w = w
		c.mu.Unlock()

		readCtx, cancel := context.WithCancel(context.Background())
		c.cancelReader = cancel
		go c.readLoop(readCtx, r)
		return nil
	}

	c.loop = resilience.New(c.opts.Resilience, connect, func() resilience.Sender {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.w == nil {
			return nil
		}
		return c.w
	})

	c.batcher = perf.New(c.opts.Batcher, func(msgs []transport.Message) {
		for _, m := range msgs {
			if err := c.loop.Send(context.Background(), m); err != nil {
				rtlog.Errorf("wsrpc: batched send failed: %v", err)
			}
		}
	})

	// When batching is disabled (the default) each outbound RPC frame goes
	// straight to loop.Send, bypassing the batcher, so a caller still sees
	// its own send error synchronously; when enabled, frames go through the
	// batcher and per-item send errors surface only via the onFlush
	// callback's log line above rather than to the original caller, since
	// a batch's outcome is no longer attributable to one caller's frame.
	sender := rpcSenderFunc(func(ctx context.Context, data []byte) error {
		if !c.opts.Batcher.Enabled {
			return c.loop.Send(ctx, transport.Message{Data: data, Kind: transport.Binary})
		}
		c.batcher.AddMessage(transport.Message{Data: data, Kind: transport.Binary})
		return nil
	})
	c.rpc = rpc.New(sender, c.opts.Codec, c.opts.RpcTimeout)

	go c.loop.Run(ctx)

	if err := connect(ctx); err != nil {
		c.loop.RequestReconnect()
		return err
	}
	c.loop.NotifyConnected()
	return nil
}

type rpcSenderFunc func(ctx context.Context, data []byte) error

func (f rpcSenderFunc) Send(ctx context.Context, data []byte) error { return f(ctx, data) }

// readLoop is the single reader goroutine for the current connection, per
// spec.md §5: exactly one reader drives the inbound stream. It terminates
// on ctx cancellation or the first receive error, requesting a reconnect in
// the latter case.
func (c *Client) readLoop(ctx context.Context, r transport.Reader) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		m, err := r.Recv(ctx)
		if err != nil {
			rtlog.Warnf("wsrpc: receive failed: %v", err)
			c.loop.RequestReconnect()
			return
		}
		c.loop.Health().RecordHeartbeat()
		switch m.Kind {
		case transport.Ping, transport.Pong:
			continue
		case transport.Close:
			c.loop.RequestReconnect()
			return
		default:
			c.rpc.HandleResponse(m.Data)
		}
	}
}

// Call performs a Call-kind RPC and returns its raw response.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (rpc.Response, error) {
	return c.rpc.Call(ctx, method, params, rpc.Call)
}

// Query performs a Query-kind RPC, consulting the cache first when a
// cacheKey is supplied (empty string disables caching for this call).
func (c *Client) Query(ctx context.Context, method string, params interface{}, cacheKey string) (rpc.Response, error) {
	if cacheKey != "" {
		if cached, ok := c.cache.Get(cacheKey); ok {
			var resp rpc.Response
			if err := c.opts.Codec.Decode(cached, &resp); err == nil {
				return resp, nil
			}
		}
	}
	resp, err := c.rpc.Call(ctx, method, params, rpc.Query)
	if err != nil {
		return rpc.Response{}, err
	}
	if cacheKey != "" {
		if encoded, err := c.opts.Codec.Encode(resp); err == nil {
			c.cache.Set(cacheKey, encoded)
		}
	}
	return resp, nil
}

// Mutation performs a Mutation-kind RPC.
func (c *Client) Mutation(ctx context.Context, method string, params interface{}) (rpc.Response, error) {
	return c.rpc.Call(ctx, method, params, rpc.Mutation)
}

// Subscribe opens a Subscription-kind RPC stream.
func (c *Client) Subscribe(ctx context.Context, method string, params interface{}) (*rpc.Stream, error) {
	return c.rpc.Subscribe(ctx, method, params)
}

// Unsubscribe closes a subscription stream by id.
func (c *Client) Unsubscribe(ctx context.Context, id string) {
	c.rpc.Unsubscribe(ctx, id)
}

// State reports the current connection state.
func (c *Client) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop == nil {
		return transport.Disconnected
	}
	return c.loop.State()
}

// Disconnect tears down the connection and stops the resilience loop.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelReader != nil {
		c.cancelReader()
	}
	if c.loop != nil {
		c.loop.Stop()
	}
	if c.tr != nil {
		return c.tr.Disconnect(ctx)
	}
	return nil
}

// Metrics reports the connection metrics of the adaptive transport built by
// the most recent successful connect, aggregated across every variant that
// connect tried. Attempts made by earlier connects are not included.
func (c *Client) Metrics() adaptive.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr == nil {
		return adaptive.Metrics{}
	}
	return c.tr.Metrics()
}

// CacheHitRatio reports the Query cache's hit ratio.
func (c *Client) CacheHitRatio() float64 { return c.cache.HitRatio() }
