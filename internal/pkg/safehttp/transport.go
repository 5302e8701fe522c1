// Package safehttp builds HTTP clients for calling operator-configured URLs
// such as pipeline webhooks.
package safehttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// dialTimeout bounds connection setup for outbound calls.
const dialTimeout = 5 * time.Second

// ErrPrivateAddress is wrapped by dial errors for denied destinations.
var ErrPrivateAddress = errors.New("destination address is not public")

// NewTransport returns a transport that refuses loopback, private and
// link-local destinations unless allowPrivate is set. The check runs on the
// connected address, so DNS answers cannot bypass it.
func NewTransport(allowPrivate bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{Timeout: dialTimeout}
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil || allowPrivate {
			return conn, err
		}

		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		ip := net.ParseIP(host)
		if ip == nil {
			conn.Close()
			return nil, fmt.Errorf("parse remote IP for %q", addr)
		}
		if !IsPublic(ip) {
			conn.Close()
			return nil, fmt.Errorf("%w: %s", ErrPrivateAddress, ip)
		}
		return conn, nil
	}
	return t
}

// NewClient returns a client using NewTransport.
func NewClient(allowPrivate bool) *http.Client {
	return &http.Client{Transport: NewTransport(allowPrivate)}
}

// IsPublic reports whether ip is routable on the public internet.
func IsPublic(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified())
}
