// Package adaptive probes environment capabilities, picks the first-working
// transport for a URL, and forwards subsequent operations to it. It falls
// back through WebTransport -> WebSocket -> SSE in URL-scheme order.
package adaptive

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/cloud-shuttle/wsrpc/errs"
	"github.com/cloud-shuttle/wsrpc/internal/rtlog"
	"github.com/cloud-shuttle/wsrpc/transport"
)

// Capabilities reports which transports the current environment supports,
// independently of URL scheme. All true by default; a host embedding this
// runtime in a constrained environment (e.g. no QUIC stack reachable)
// passes its own Capabilities to New.
type Capabilities struct {
	WebSocket    bool
	WebTransport bool
	SSE          bool
}

// DefaultCapabilities assumes every variant is available; narrowed by the
// URL-scheme compatibility check during candidate selection regardless.
func DefaultCapabilities() Capabilities {
	return Capabilities{WebSocket: true, WebTransport: true, SSE: true}
}

// Metrics aggregates connection/message/error counters across every
// transport this adaptive transport has tried.
type Metrics struct {
	ConnectionAttempts int
	ConnectionErrors   int
	Tried              []transport.Name
}

// Transport implements transport.Transport by delegating to whichever
// variant succeeded during Connect.
type Transport struct {
	cfg  transport.Config
	caps Capabilities

	mu         sync.Mutex
	active     transport.Transport
	activeName transport.Name
	state      transport.State
	metrics    Metrics
}

// New constructs an adaptive transport for cfg, using caps for capability
// probing.
func New(cfg transport.Config, caps Capabilities) *Transport {
	return &Transport{cfg: cfg, caps: caps, state: transport.Disconnected}
}

// candidates returns the ordered list of transport names to try for url,
// per spec: WebTransport (https + capable), then WebSocket (ws/wss +
// capable), then SSE (http/https + capable).
func candidates(u *url.URL, caps Capabilities) []transport.Name {
	var out []transport.Name
	scheme := u.Scheme
	if scheme == "https" && caps.WebTransport {
		out = append(out, transport.NameWebTransport)
	}
	if (scheme == "ws" || scheme == "wss") && caps.WebSocket {
		out = append(out, transport.NameWebSocket)
	}
	if (scheme == "http" || scheme == "https") && caps.SSE {
		out = append(out, transport.NameSSE)
	}
	return out
}

// Connect probes capabilities, forms the candidate list, and tries each in
// order. The first candidate that connects becomes the active transport.
func (t *Transport) Connect(ctx context.Context) error {
	cfg := t.cfg
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return errs.NewTransportError(errs.ConnectionFailed, err.Error(), err)
	}

	names := candidates(u, t.caps)
	if len(names) == 0 {
		return errs.NewTransportError(errs.NotSupported, fmt.Sprintf("no transport supports scheme %q", u.Scheme), nil)
	}

	t.mu.Lock()
	t.state = transport.Connecting
	t.mu.Unlock()

	var lastErr error
	for _, name := range names {
		b := Get(name)
		if b == nil {
			continue
		}
		tr := b.Build(cfg)

		t.mu.Lock()
		t.metrics.ConnectionAttempts++
		t.metrics.Tried = append(t.metrics.Tried, name)
		t.mu.Unlock()

		if err := tr.Connect(ctx); err != nil {
			t.mu.Lock()
			t.metrics.ConnectionErrors++
			t.mu.Unlock()
			rtlog.Warnf("adaptive: %s failed for %s: %v", name, cfg.URL, err)
			lastErr = err
			continue
		}

		t.mu.Lock()
		t.active = tr
		t.activeName = name
		t.state = transport.Connected
		t.mu.Unlock()
		rtlog.Infof("adaptive: selected %s for %s", name, cfg.URL)
		return nil
	}

	t.mu.Lock()
	t.state = transport.Disconnected
	t.mu.Unlock()
	if lastErr != nil {
		return errs.NewTransportError(errs.NotSupported, "all candidate transports failed", lastErr)
	}
	return errs.NewTransportError(errs.NotSupported, "no registered builder for any candidate transport", nil)
}

func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	active := t.active
	t.state = transport.Disconnected
	t.mu.Unlock()
	if active == nil {
		return nil
	}
	return active.Disconnect(ctx)
}

func (t *Transport) Split() (transport.Reader, transport.Writer, error) {
	t.mu.Lock()
	active := t.active
	t.mu.Unlock()
	if active == nil {
		return nil, nil, errs.NewTransportError(errs.NotConnected, "", nil)
	}
	return active.Split()
}

func (t *Transport) State() transport.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Metrics returns a snapshot of aggregated connection metrics.
func (t *Transport) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Metrics{
		ConnectionAttempts: t.metrics.ConnectionAttempts,
		ConnectionErrors:   t.metrics.ConnectionErrors,
		Tried:              append([]transport.Name(nil), t.metrics.Tried...),
	}
}

// ActiveName reports which variant is currently active, or "" if none.
func (t *Transport) ActiveName() transport.Name {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeName
}

var _ transport.Transport = (*Transport)(nil)
