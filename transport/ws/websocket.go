// Package ws implements the WebSocket transport variant: an RFC 6455 client
// exchanging text and binary frames. Pings and pongs are handled by
// gorilla/websocket's default handlers (a ping is answered, a pong is
// consumed) and are never returned by Recv; there is no option to surface
// them.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/cloud-shuttle/wsrpc/errs"
	"github.com/cloud-shuttle/wsrpc/internal/rtlog"
	"github.com/cloud-shuttle/wsrpc/transport"
)

// Dialer matches gorilla/websocket's Dialer shape so tests can substitute
// one pointed at an httptest server.
type Dialer = gorilla.Dialer

// Transport is the WebSocket variant of transport.Transport.
type Transport struct {
	cfg    transport.Config
	dialer *Dialer

	mu    sync.Mutex
	state transport.State
	conn  *gorilla.Conn
	split bool
}

// New constructs a WebSocket transport for cfg. A nil dialer uses
// gorilla/websocket's package default.
func New(cfg transport.Config, dialer *Dialer) *Transport {
	if dialer == nil {
		dialer = gorilla.DefaultDialer
	}
	return &Transport{cfg: cfg, dialer: dialer, state: transport.Disconnected}
}

func (t *Transport) State() transport.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) setState(s transport.State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Connect dials the WebSocket server. Precondition: State() is Disconnected
// or Failed.
func (t *Transport) Connect(ctx context.Context) error {
	cur := t.State()
	if cur != transport.Disconnected && cur != transport.Failed {
		return errs.NewTransportError(errs.ConnectionFailed, "already connecting or connected", nil)
	}
	t.setState(transport.Connecting)

	header := http.Header{}
	for k, v := range t.cfg.Headers {
		header.Set(k, v)
	}

	dialCtx := ctx
	if t.cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, t.cfg.ConnectionTimeout)
		defer cancel()
	}

	dialer := *t.dialer
	if len(t.cfg.Protocols) > 0 {
		dialer.Subprotocols = t.cfg.Protocols
	}

	conn, _, err := dialer.DialContext(dialCtx, t.cfg.URL, header)
	if err != nil {
		t.setState(transport.Disconnected)
		return errs.NewTransportError(errs.ConnectionFailed, err.Error(), err)
	}

	t.mu.Lock()
	t.conn = conn
	t.state = transport.Connected
	t.mu.Unlock()
	rtlog.Infof("ws: connected to %s", t.cfg.URL)
	return nil
}

// Disconnect closes the underlying connection. Idempotent.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.state = transport.Disconnected
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}

// Split consumes the transport and returns its reader/writer halves.
func (t *Transport) Split() (transport.Reader, transport.Writer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.split {
		return nil, nil, errs.NewTransportError(errs.ProtocolError, "split called more than once", nil)
	}
	if t.conn == nil {
		return nil, nil, errs.NewTransportError(errs.NotConnected, "", nil)
	}
	t.split = true
	conn := t.conn
	return &reader{conn: conn}, &writer{conn: conn}, nil
}

type reader struct {
	conn *gorilla.Conn
	mu   sync.Mutex
}

func (r *reader) Recv(ctx context.Context) (transport.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = r.conn.SetReadDeadline(dl)
	}
	kind, data, err := r.conn.ReadMessage()
	if err != nil {
		return transport.Message{}, errs.NewTransportError(errs.ReceiveFailed, err.Error(), err)
	}
	m := transport.Message{Data: data}
	switch kind {
	case gorilla.TextMessage:
		m.Kind = transport.Text
	case gorilla.BinaryMessage:
		m.Kind = transport.Binary
	case gorilla.PingMessage:
		m.Kind = transport.Ping
	case gorilla.PongMessage:
		m.Kind = transport.Pong
	case gorilla.CloseMessage:
		m.Kind = transport.Close
	}
	return m, nil
}

type writer struct {
	conn *gorilla.Conn
	mu   sync.Mutex
}

func (w *writer) Send(ctx context.Context, m transport.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = w.conn.SetWriteDeadline(dl)
	}
	var kind int
	switch m.Kind {
	case transport.Text:
		kind = gorilla.TextMessage
	case transport.Binary:
		kind = gorilla.BinaryMessage
	case transport.Ping:
		kind = gorilla.PingMessage
	case transport.Pong:
		kind = gorilla.PongMessage
	case transport.Close:
		kind = gorilla.CloseMessage
	default:
		kind = gorilla.BinaryMessage
	}
	if err := w.conn.WriteMessage(kind, m.Data); err != nil {
		return errs.NewTransportError(errs.SendFailed, err.Error(), err)
	}
	return nil
}

func (w *writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.Close()
}

var _ transport.Transport = (*Transport)(nil)

// builder adapts New to the adaptive.Builder interface so this variant can
// be registered with the adaptive transport's candidate registry.
type builder struct{}

func (builder) Build(cfg transport.Config) transport.Transport { return New(cfg, nil) }
func (builder) Name() transport.Name                           { return transport.NameWebSocket }

// Builder returns the adaptive.Builder for the WebSocket variant. Callers
// wire it in explicitly (adaptive.Register(ws.Builder())) rather than via
// package-level init(), so a host that never imports adaptive pays no
// registration cost.
func Builder() interface {
	Build(transport.Config) transport.Transport
	Name() transport.Name
} {
	return builder{}
}
