// Package httpx holds the outbound HTTP plumbing shared by the Data API and
// Claris ID clients: transport construction, request body replay and login
// throttling.
package httpx

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// TransportConfig holds the connection pool settings used for Data API
// traffic. FileMaker Server is usually a single host, so the per-host idle
// pool is sized close to the total.
var TransportConfig = struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	DialTimeout           time.Duration
	KeepAlive             time.Duration
}{
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   32,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	DialTimeout:           5 * time.Second,
	KeepAlive:             30 * time.Second,
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          TransportConfig.MaxIdleConns,
		MaxIdleConnsPerHost:   TransportConfig.MaxIdleConnsPerHost,
		IdleConnTimeout:       TransportConfig.IdleConnTimeout,
		TLSHandshakeTimeout:   TransportConfig.TLSHandshakeTimeout,
		ExpectContinueTimeout: TransportConfig.ExpectContinueTimeout,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   TransportConfig.DialTimeout,
			KeepAlive: TransportConfig.KeepAlive,
		}).DialContext,
	}
}

var sharedTransport = sync.OnceValue(newTransport)

// SharedTransport returns the process-wide transport used when no proxy is
// configured.
func SharedTransport() *http.Transport {
	return sharedTransport()
}

// NewTransport returns the shared transport, or a dedicated one routed
// through proxyURL when it is non-empty.
func NewTransport(proxyURL string) (*http.Transport, error) {
	if proxyURL == "" {
		return SharedTransport(), nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("httpx: parse proxy url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("httpx: proxy url %q must include scheme and host", proxyURL)
	}

	t := newTransport()
	t.Proxy = http.ProxyURL(u)
	return t, nil
}
