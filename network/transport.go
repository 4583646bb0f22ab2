package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// newTransport builds the HTTP transport for a client: a tuned connection
// pool by default, or a Chrome-fingerprinted TLS transport when impersonation
// is requested.
func newTransport(cfg Config) (http.RoundTripper, error) {
	proxy, err := proxyFromConfig(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	if cfg.TLSImpersonate {
		return newImpersonatingTransport(cfg), nil
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = proxy
	t.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 100
	t.MaxConnsPerHost = 200
	t.IdleConnTimeout = 30 * time.Second
	t.ResponseHeaderTimeout = cfg.ReadTimeout
	return t, nil
}

// impersonatingTransport performs TLS handshakes with a Chrome ClientHello
// via uTLS. It tries HTTP/2 first and transparently falls back to a forced
// HTTP/1.1 handshake when the h2 attempt fails. Required by sites behind
// aggressive anti-bot protection that reject Go's native fingerprint.
type impersonatingTransport struct {
	connectTimeout time.Duration
	h2             *http2.Transport
	h1             *http.Transport
}

func newImpersonatingTransport(cfg Config) *impersonatingTransport {
	t := &impersonatingTransport{connectTimeout: cfg.ConnectTimeout}
	t.h2 = &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return t.dialTLS(ctx, network, addr, nil)
		},
	}
	t.h1 = &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return t.dialTLS(ctx, network, addr, []string{"http/1.1"})
		},
	}
	return t
}

func (t *impersonatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return http.DefaultTransport.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	// Servers without h2 support fail the first handshake; retry over 1.1.
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return t.h1.RoundTrip(clone)
}

// dialTLS creates a TLS connection mimicking Chrome 120's fingerprint.
func (t *impersonatingTransport) dialTLS(ctx context.Context, network, addr string, nextProtos []string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	dialer := &net.Dialer{Timeout: t.connectTimeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	tlsConn := utls.UClient(conn, &utls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
		NextProtos: nextProtos,
	}, utls.HelloChrome_120)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
