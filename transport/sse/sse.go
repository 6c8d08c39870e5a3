// Package sse implements the Server-Sent Events transport variant: an
// inbound-only HTTP stream parsed per the event-stream grammar (event:,
// data:, id:, retry:). Outbound Send always fails with NotSupported.
package sse

import (
	"bufio"
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cloud-shuttle/wsrpc/errs"
	"github.com/cloud-shuttle/wsrpc/internal/rtlog"
	"github.com/cloud-shuttle/wsrpc/transport"
)

// Probe reports whether the given URL scheme can carry an SSE stream.
func Probe(scheme string) bool {
	return scheme == "http" || scheme == "https"
}

// Transport is the SSE variant of transport.Transport.
type Transport struct {
	cfg    transport.Config
	client *http.Client

	mu          sync.Mutex
	state       transport.State
	resp        *http.Response
	cancel      context.CancelFunc
	lastEventID string
	retry       time.Duration
	split       bool
}

// New constructs an SSE transport for cfg. A nil client uses
// http.DefaultClient.
func New(cfg transport.Config, client *http.Client) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &Transport{cfg: cfg, client: client, state: transport.Disconnected}
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

	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, t.cfg.URL, nil)
	if err != nil {
		cancel()
		t.setState(transport.Disconnected)
		return errs.NewTransportError(errs.ConnectionFailed, err.Error(), err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}
	t.mu.Lock()
	if t.lastEventID != "" {
		req.Header.Set("Last-Event-ID", t.lastEventID)
	}
	t.mu.Unlock()

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		t.setState(transport.Disconnected)
		return errs.NewTransportError(errs.ConnectionFailed, err.Error(), err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		t.setState(transport.Disconnected)
		return errs.NewTransportError(errs.ConnectionFailed, resp.Status, nil)
	}

	t.mu.Lock()
	t.resp = resp
	t.cancel = cancel
	t.state = transport.Connected
	t.mu.Unlock()
	rtlog.Infof("sse: connected to %s", t.cfg.URL)
	return nil
}

func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	resp := t.resp
	cancel := t.cancel
	t.resp = nil
	t.cancel = nil
	t.state = transport.Disconnected
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if resp != nil {
		return resp.Body.Close()
	}
	return nil
}

func (t *Transport) Split() (transport.Reader, transport.Writer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.split {
		return nil, nil, errs.NewTransportError(errs.ProtocolError, "split called more than once", nil)
	}
	if t.resp == nil {
		return nil, nil, errs.NewTransportError(errs.NotConnected, "", nil)
	}
	t.split = true
	return &reader{t: t, sc: bufio.NewScanner(t.resp.Body)}, &writer{}, nil
}

// reader parses the event-stream grammar: repeated `field: value` lines,
// terminated by a blank line. Multiple `data:` lines concatenate with "\n".
type reader struct {
	t  *Transport
	sc *bufio.Scanner
	mu sync.Mutex
}

func (r *reader) Recv(ctx context.Context) (transport.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var event, id string
	var data []string
	sawField := false

	for r.sc.Scan() {
		line := r.sc.Text()
		if line == "" {
			if !sawField {
				continue // ignore stray blank lines before any field
			}
			break // terminates this event
		}
		sawField = true

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		case "id":
			id = value
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil {
				r.t.mu.Lock()
				r.t.retry = time.Duration(ms) * time.Millisecond
				r.t.mu.Unlock()
			}
		}
	}
	if err := r.sc.Err(); err != nil {
		return transport.Message{}, errs.NewTransportError(errs.ReceiveFailed, err.Error(), err)
	}
	if !sawField {
		return transport.Message{}, errs.NewTransportError(errs.ReceiveFailed, "stream closed", nil)
	}
	if id != "" {
		r.t.mu.Lock()
		r.t.lastEventID = id
		r.t.mu.Unlock()
	}
	return transport.Message{
		Data:  []byte(strings.Join(data, "\n")),
		Kind:  transport.Text,
		Event: event,
	}, nil
}

// writer is a no-op: SSE is inbound-only.
type writer struct{}

func (writer) Send(ctx context.Context, m transport.Message) error {
	return errs.NewTransportError(errs.NotSupported, "SSE transport is inbound-only", nil)
}

func (writer) Close() error { return nil }

// RetryHint returns the most recently server-supplied retry interval, or
// zero if none has been seen. Honored locally by the resilience layer's
// caller if it chooses to; not propagated automatically (see DESIGN.md
// Open Questions).
func (t *Transport) RetryHint() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retry
}

var _ transport.Transport = (*Transport)(nil)

type builder struct{}

func (builder) Build(cfg transport.Config) transport.Transport { return New(cfg, nil) }
func (builder) Name() transport.Name                           { return transport.NameSSE }

// Builder returns the adaptive.Builder for the SSE variant.
func Builder() interface {
	Build(transport.Config) transport.Transport
	Name() transport.Name
} {
	return builder{}
}
