// Package webtransport implements the HTTP/3 WebTransport variant: a single
// bidirectional stream carrying framed messages, with per-stream
// reliability/ordering/congestion settings expressed as a StreamConfig.
package webtransport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/binary"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go/http3"
	wt "github.com/quic-go/webtransport-go"

	"github.com/cloud-shuttle/wsrpc/errs"
	"github.com/cloud-shuttle/wsrpc/internal/rtlog"
	"github.com/cloud-shuttle/wsrpc/transport"
)

// Reliability selects the delivery guarantee of a WebTransport stream.
type Reliability int

const (
	BestEffort Reliability = iota
	Reliable
	PartiallyReliable // MaxRetransmissions applies
)

// Ordering selects the delivery order of a WebTransport stream.
type Ordering int

const (
	Unordered Ordering = iota
	Ordered
	PartiallyOrdered // MaxGap applies
)

// Congestion selects the congestion-control profile of a WebTransport
// session.
type Congestion int

const (
	CongestionDefault Congestion = iota
	Conservative
	Aggressive
	Adaptive
)

// StreamConfig enumerates the per-stream settings exposed by WebTransport,
// per the external-interfaces wire description.
type StreamConfig struct {
	Reliability        Reliability
	MaxRetransmissions uint32
	Ordering           Ordering
	MaxGap             uint32
	Congestion         Congestion
}

// DefaultStreamConfig is Reliable/Ordered/Default, the common case for an
// RPC-carrying stream.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{Reliability: Reliable, Ordering: Ordered, Congestion: CongestionDefault}
}

// Transport is the WebTransport variant of transport.Transport.
type Transport struct {
	cfg          transport.Config
	streamCfg    StreamConfig
	dialer       *wt.Dialer
	tlsConfig    *tls.Config

	mu      sync.Mutex
	state   transport.State
	session *wt.Session
	stream  wt.Stream
	split   bool
}

// New constructs a WebTransport transport for cfg. tlsConfig may be nil to
// use Go's default client TLS configuration.
func New(cfg transport.Config, streamCfg StreamConfig, tlsConfig *tls.Config) *Transport {
	return &Transport{
		cfg:       cfg,
		streamCfg: streamCfg,
		tlsConfig: tlsConfig,
		dialer: &wt.Dialer{
			RoundTripper: &http3.RoundTripper{TLSClientConfig: tlsConfig},
		},
		state: transport.Disconnected,
	}
}

// Probe reports whether the current environment can negotiate WebTransport
// for the given URL scheme. In this runtime the capability is static
// (quic-go/webtransport-go is always linked), so the probe only checks the
// scheme.
func Probe(scheme string) bool {
	return scheme == "https"
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

func (t *Transport) Connect(ctx context.Context) error {
	cur := t.State()
	if cur != transport.Disconnected && cur != transport.Failed {
		return errs.NewTransportError(errs.ConnectionFailed, "already connecting or connected", nil)
	}
	t.setState(transport.Connecting)

	dialCtx := ctx
	if t.cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, t.cfg.ConnectionTimeout)
		defer cancel()
	}

	header := http.Header{}
	for k, v := range t.cfg.Headers {
		header.Set(k, v)
	}

	_, sess, err := t.dialer.Dial(dialCtx, t.cfg.URL, header)
	if err != nil {
		t.setState(transport.Disconnected)
		return errs.NewTransportError(errs.ConnectionFailed, err.Error(), err)
	}

	stream, err := sess.OpenStreamSync(dialCtx)
	if err != nil {
		_ = sess.CloseWithError(0, "stream open failed")
		t.setState(transport.Disconnected)
		return errs.NewTransportError(errs.ConnectionFailed, err.Error(), err)
	}

	t.mu.Lock()
	t.session = sess
	t.stream = stream
	t.state = transport.Connected
	t.mu.Unlock()
	rtlog.Infof("webtransport: connected to %s", t.cfg.URL)
	return nil
}

func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	sess := t.session
	t.session = nil
	t.stream = nil
	t.state = transport.Disconnected
	t.mu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.CloseWithError(0, "")
}

func (t *Transport) Split() (transport.Reader, transport.Writer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.split {
		return nil, nil, errs.NewTransportError(errs.ProtocolError, "split called more than once", nil)
	}
	if t.stream == nil {
		return nil, nil, errs.NewTransportError(errs.NotConnected, "", nil)
	}
	t.split = true
	return &reader{br: bufio.NewReader(t.stream)}, &writer{stream: t.stream}, nil
}

// Wire framing: a uint32 length prefix followed by the payload, since
// WebTransport streams are a raw byte pipe with no message boundaries of
// their own.

type reader struct {
	br *bufio.Reader
	mu sync.Mutex
}

func (r *reader) Recv(ctx context.Context) (transport.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lenBuf [4]byte
	if _, err := fillFull(r.br, lenBuf[:]); err != nil {
		return transport.Message{}, errs.NewTransportError(errs.ReceiveFailed, err.Error(), err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := fillFull(r.br, buf); err != nil {
		return transport.Message{}, errs.NewTransportError(errs.ReceiveFailed, err.Error(), err)
	}
	return transport.Message{Data: buf, Kind: transport.Binary}, nil
}

func fillFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type writer struct {
	stream wt.Stream
	mu     sync.Mutex
}

func (w *writer) Send(ctx context.Context, m transport.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = w.stream.SetWriteDeadline(dl)
	} else {
		_ = w.stream.SetWriteDeadline(time.Time{})
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(m.Data)))
	if _, err := w.stream.Write(lenBuf[:]); err != nil {
		return errs.NewTransportError(errs.SendFailed, err.Error(), err)
	}
	if _, err := w.stream.Write(m.Data); err != nil {
		return errs.NewTransportError(errs.SendFailed, err.Error(), err)
	}
	return nil
}

func (w *writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stream.Close()
}

var _ transport.Transport = (*Transport)(nil)

type builder struct{ streamCfg StreamConfig }

func (b builder) Build(cfg transport.Config) transport.Transport { return New(cfg, b.streamCfg, nil) }
func (builder) Name() transport.Name                             { return transport.NameWebTransport }

// Builder returns the adaptive.Builder for the WebTransport variant,
// configured with streamCfg for every connection it builds.
func Builder(streamCfg StreamConfig) interface {
	Build(transport.Config) transport.Transport
	Name() transport.Name
} {
	return builder{streamCfg: streamCfg}
}
