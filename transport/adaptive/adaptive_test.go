package adaptive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloud-shuttle/wsrpc/errs"
	"github.com/cloud-shuttle/wsrpc/transport"
)

// stubTransport is a minimal transport.Transport whose Connect either
// succeeds or fails per a fixed outcome, letting a test script a fallback
// sequence without any real network I/O.
type stubTransport struct {
	name   transport.Name
	fail   bool
	state  transport.State
}

func (s *stubTransport) Connect(ctx context.Context) error {
	if s.fail {
		return errs.NewTransportError(errs.ConnectionFailed, "stub failure", nil)
	}
	s.state = transport.Connected
	return nil
}
func (s *stubTransport) Disconnect(ctx context.Context) error { s.state = transport.Disconnected; return nil }
func (s *stubTransport) Split() (transport.Reader, transport.Writer, error) { return nil, nil, nil }
func (s *stubTransport) State() transport.State { return s.state }

type stubBuilder struct {
	name transport.Name
	fail bool
}

func (b stubBuilder) Build(cfg transport.Config) transport.Transport {
	return &stubTransport{name: b.name, fail: b.fail}
}
func (b stubBuilder) Name() transport.Name { return b.name }

func TestAdaptiveFallsBackWhenFirstCandidateFails(t *testing.T) {
	// https candidates are, in order, WebTransport then SSE (WebSocket is
	// only a candidate for ws/wss schemes) — script WebTransport failing so
	// the adaptive transport must fall through to SSE.
	Register(stubBuilder{name: transport.NameWebTransport, fail: true})
	Register(stubBuilder{name: transport.NameSSE, fail: false})

	cfg := transport.DefaultConfig("https://example.test/rpc")
	tr := New(cfg, DefaultCapabilities())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.Connect(ctx))

	assert.Equal(t, transport.NameSSE, tr.ActiveName())
	metrics := tr.Metrics()
	assert.GreaterOrEqual(t, metrics.ConnectionErrors, 1)
	assert.Contains(t, metrics.Tried, transport.NameSSE)
}

func TestAdaptiveReturnsNotSupportedForUnmatchedScheme(t *testing.T) {
	cfg := transport.DefaultConfig("ftp://example.test/rpc")
	tr := New(cfg, DefaultCapabilities())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := tr.Connect(ctx)
	require.Error(t, err)

	var te *errs.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, errs.NotSupported, te.Kind)
}
