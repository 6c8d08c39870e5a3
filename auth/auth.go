// Package auth implements the narrow authentication plug-in point spec.md
// §1 calls out: "high-level security policy (authentication provider,
// origin lists, threat heuristics) are plug-in points the core merely
// invokes via narrow interfaces." Adapted from the teacher's
// credentials.go: ClientHandshake's "authenticate, then hand back
// connection-level info" shape becomes Authenticate's "produce headers
// before Connect" shape, and TLSInfo's auth-metadata-on-the-connection
// idea becomes Info's metadata-on-the-provider idea — there is no
// handshake to perform here because every transport variant authenticates
// via HTTP headers (WebSocket/WebTransport/SSE all dial over HTTP(S)).
package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"

	"github.com/cloud-shuttle/wsrpc/transport"
)

// ProviderInfo mirrors the teacher's ProtocolInfo: static, descriptive
// metadata about an auth provider, useful for logging/metrics.
type ProviderInfo struct {
	Scheme string // e.g. "bearer", "basic", "tls-client-cert"
}

// Provider authenticates a connection attempt by producing headers to
// attach before Connect. Implementations must be safe for concurrent use;
// Authenticate may be called once per reconnection attempt.
type Provider interface {
	Authenticate(ctx context.Context, cfg transport.Config) (headers map[string]string, err error)
	Info() ProviderInfo
}

// BearerToken is the common case: a static or refreshable bearer token
// attached as an Authorization header.
type BearerToken struct {
	// TokenFunc is called on every Authenticate, so a refreshable token
	// source (e.g. an OAuth2 client) can be plugged in without this
	// runtime needing to know about refresh semantics.
	TokenFunc func(ctx context.Context) (string, error)
}

func (b BearerToken) Authenticate(ctx context.Context, _ transport.Config) (map[string]string, error) {
	tok, err := b.TokenFunc(ctx)
	if err != nil {
		return nil, err
	}
	if tok == "" {
		return nil, errors.New("auth: empty bearer token")
	}
	return map[string]string{"Authorization": "Bearer " + tok}, nil
}

func (BearerToken) Info() ProviderInfo { return ProviderInfo{Scheme: "bearer"} }

var _ Provider = BearerToken{}

// ClientTLS adapts the teacher's NewClientTLSFromCert/NewClientTLSFromFile
// into a provider of tls.Config for transports that dial directly (the
// WebTransport variant's QUIC handshake). It attaches no headers; it
// exists purely as a typed holder other packages can read a *tls.Config
// from, rather than passing *tls.Config around untyped.
type ClientTLS struct {
	Config *tls.Config
}

// NewClientTLSFromFile constructs client TLS config from a PEM certificate
// file, for verifying a self-hosted server's certificate.
func NewClientTLSFromFile(certFile, serverNameOverride string) (*ClientTLS, error) {
	b, err := os.ReadFile(certFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(b) {
		return nil, errors.New("auth: failed to append certificates from PEM")
	}
	return &ClientTLS{Config: &tls.Config{ServerName: serverNameOverride, RootCAs: cp}}, nil
}

func (c *ClientTLS) Authenticate(ctx context.Context, _ transport.Config) (map[string]string, error) {
	return nil, nil // headers are not this provider's concern; see Config
}

func (*ClientTLS) Info() ProviderInfo { return ProviderInfo{Scheme: "tls-client-cert"} }

var _ Provider = (*ClientTLS)(nil)
