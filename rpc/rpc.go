// Package rpc implements the correlated request/response layer from
// spec.md §4.5: it tags outbound requests with unique IDs, matches inbound
// responses, enforces timeouts, and multiplexes subscription streams.
//
// Grounded on the teacher's call.go (register, send, block on completion,
// deadline via context) and stream.go's ClientStream for the subscription
// side.
package rpc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloud-shuttle/wsrpc/codec"
	"github.com/cloud-shuttle/wsrpc/errs"
	"github.com/cloud-shuttle/wsrpc/internal/rtlog"
)

// Kind is the request-kind tag carried on the wire.
type Kind string

const (
	Call         Kind = "call"
	Query        Kind = "query"
	Mutation     Kind = "mutation"
	Subscription Kind = "subscription"
)

// Request is the codec-independent wire envelope for an outbound call.
type Request struct {
	ID     string      `json:"id" cbor:"id"`
	Method string      `json:"method" cbor:"method"`
	Params interface{} `json:"params,omitempty" cbor:"params,omitempty"`
	Kind   Kind        `json:"method_type" cbor:"method_type"`
}

// Response is the codec-independent wire envelope for an inbound reply. For
// a Subscription, multiple responses share one ID; Final marks the
// terminal response that closes the stream (spec.md §9 Open Question,
// decided in DESIGN.md: an explicit boolean rather than a sentinel value).
type Response struct {
	ID     string         `json:"id" cbor:"id"`
	Result interface{}    `json:"result,omitempty" cbor:"result,omitempty"`
	Error  *errs.RpcError `json:"error,omitempty" cbor:"error,omitempty"`
	Final  bool           `json:"final,omitempty" cbor:"final,omitempty"`
}

// Sender is the narrow outbound capability the correlation table sends
// encoded requests through.
type Sender interface {
	Send(ctx context.Context, data []byte) error
}

// pendingRequest is the correlation manager's bookkeeping entry, per
// spec.md §3: owned solely by the table, removed exactly once either by
// response arrival or deadline expiry.
type pendingRequest struct {
	id       string
	deadline time.Time
	respCh   chan Response
	once     sync.Once
}

func (p *pendingRequest) complete(r Response) {
	p.once.Do(func() {
		p.respCh <- r
		close(p.respCh)
	})
}

// subscription is a lazy, restartable-once stream keyed by id.
type subscription struct {
	id   string
	ch   chan Response
	once sync.Once
}

func (s *subscription) push(r Response) {
	select {
	case s.ch <- r:
	default:
		// Slow consumer: drop rather than block the inbound loop. The
		// correlation table never blocks on a caller's stream.
	}
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Client is the correlation table: a mapping from request id to
// pendingRequest, a monotonically increasing counter for id generation
// (format rpc_<n>), and a default timeout.
type Client struct {
	sender  Sender
	c       codec.Codec
	timeout time.Duration

	counter uint64

	mu        sync.Mutex
	wait      map[string]*pendingRequest
	subs      map[string]*subscription
	svcConfig *ServiceConfig
}

// New builds an RPC client sending encoded frames via sender, using c to
// encode/decode, with a default per-call timeout.
func New(sender Sender, c codec.Codec, timeout time.Duration) *Client {
	return &Client{
		sender:  sender,
		c:       c,
		timeout: timeout,
		wait:    make(map[string]*pendingRequest),
		subs:    make(map[string]*subscription),
	}
}

func (cl *Client) nextID() string {
	n := atomic.AddUint64(&cl.counter, 1)
	return fmt.Sprintf("rpc_%d", n)
}

// Call allocates an id, registers a completer with deadline = now +
// timeout, encodes and sends the request, then waits for a matching
// response or the deadline. On deadline expiry the pending entry is
// removed and the caller receives a Timeout error; any later-arriving
// matching response is dropped silently.
func (cl *Client) Call(ctx context.Context, method string, params interface{}, kind Kind) (Response, error) {
	id := cl.nextID()
	deadline := time.Now().Add(cl.effectiveTimeout(ctx, method))

	pr := &pendingRequest{id: id, deadline: deadline, respCh: make(chan Response, 1)}
	cl.mu.Lock()
	if _, exists := cl.wait[id]; exists {
		cl.mu.Unlock()
		return Response{}, errs.NewRpcError(errs.CodeInternal, "duplicate pending request id", id)
	}
	cl.wait[id] = pr
	cl.mu.Unlock()

	// Cancel-safety: removing the id on return (whichever path) ensures no
	// leaked pending entries, per spec.md §5.
	defer cl.removePending(id)

	req := Request{ID: id, Method: method, Params: params, Kind: kind}
	data, err := cl.c.Encode(req)
	if err != nil {
		return Response{}, errs.NewCodecError(errs.SerializationFailed, err)
	}

	if err := cl.sender.Send(ctx, data); err != nil {
		return Response{}, err
	}

	callCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	select {
	case resp := <-pr.respCh:
		return resp, nil
	case <-callCtx.Done():
		return Response{}, errs.NewRpcError(errs.CodeTimeout, "rpc call timed out", id)
	}
}

func (cl *Client) effectiveTimeout(ctx context.Context, method string) time.Duration {
	base := cl.MethodTimeout(method)
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < base {
			return d
		}
	}
	return base
}

func (cl *Client) removePending(id string) {
	cl.mu.Lock()
	delete(cl.wait, id)
	cl.mu.Unlock()
}

// HandleResponse decodes bytes into a Response and correlates it. Called by
// the inbound loop for every frame; it never affects other pending
// requests on a parse failure — it merely logs and returns.
func (cl *Client) HandleResponse(data []byte) {
	var resp Response
	if err := cl.c.Decode(data, &resp); err != nil {
		rtlog.Warnf("rpc: failed to decode inbound frame: %v", err)
		return
	}

	cl.mu.Lock()
	if sub, ok := cl.subs[resp.ID]; ok {
		cl.mu.Unlock()
		// A clean terminal marker (no result, no error) only closes the
		// stream; an error-terminated one is delivered before closing.
		if !resp.Final || resp.Result != nil || resp.Error != nil {
			sub.push(resp)
		}
		if resp.Final {
			cl.mu.Lock()
			delete(cl.subs, resp.ID)
			cl.mu.Unlock()
			sub.close()
		}
		return
	}
	pr, ok := cl.wait[resp.ID]
	if ok {
		delete(cl.wait, resp.ID)
	}
	cl.mu.Unlock()

	if !ok {
		rtlog.Debugf("rpc: discarding response for unknown or resolved id %q", resp.ID)
		return
	}
	pr.complete(resp)
}

// Stream is a caller's read-only view of a subscription.
type Stream struct {
	id string
	ch <-chan Response
}

// ID reports the subscription's correlation id.
func (s *Stream) ID() string { return s.id }

// Recv blocks for the next response, returning ok=false once the stream
// has been closed (terminal response or Unsubscribe).
func (s *Stream) Recv(ctx context.Context) (Response, bool) {
	select {
	case r, ok := <-s.ch:
		return r, ok
	case <-ctx.Done():
		return Response{}, false
	}
}

// Subscribe allocates an id, sends a Subscription request, and returns a
// lazy stream keyed by id. Each inbound response with a matching id pushes
// into the stream; a response with Final=true closes it.
func (cl *Client) Subscribe(ctx context.Context, method string, params interface{}) (*Stream, error) {
	id := cl.nextID()
	req := Request{ID: id, Method: method, Params: params, Kind: Subscription}
	data, err := cl.c.Encode(req)
	if err != nil {
		return nil, errs.NewCodecError(errs.SerializationFailed, err)
	}

	sub := &subscription{id: id, ch: make(chan Response, 16)}
	cl.mu.Lock()
	cl.subs[id] = sub
	cl.mu.Unlock()

	if err := cl.sender.Send(ctx, data); err != nil {
		cl.mu.Lock()
		delete(cl.subs, id)
		cl.mu.Unlock()
		return nil, err
	}
	return &Stream{id: id, ch: sub.ch}, nil
}

// Unsubscribe removes the stream binding and sends an unsubscribe message
// best-effort; failures to send are logged, not returned, since the
// binding is removed regardless.
func (cl *Client) Unsubscribe(ctx context.Context, id string) {
	cl.mu.Lock()
	sub, ok := cl.subs[id]
	delete(cl.subs, id)
	cl.mu.Unlock()
	if ok {
		sub.close()
	}

	req := Request{ID: id, Method: "unsubscribe", Kind: Call}
	data, err := cl.c.Encode(req)
	if err != nil {
		return
	}
	if err := cl.sender.Send(ctx, data); err != nil {
		rtlog.Warnf("rpc: best-effort unsubscribe send failed for %q: %v", id, err)
	}
}

// PendingCount reports the number of requests currently awaiting a
// response. Exposed for tests and metrics, not part of the correlation
// contract itself.
func (cl *Client) PendingCount() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.wait)
}
