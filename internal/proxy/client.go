package proxy

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/vyrodovalexey/envproxy/internal/config"
)

// Transport tuning that is not exposed in the configuration file.
const (
	defaultKeepAlive             = 30 * time.Second
	defaultMaxIdleConns          = 100
	defaultIdleConnTimeout       = 90 * time.Second
	defaultExpectContinueTimeout = time.Second
)

// NewTransport builds the shared outbound transport. Compression is
// left to the client and backend so relayed bytes are never altered.
func NewTransport(cfg config.ClientConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout.Duration(),
			KeepAlive: defaultKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout.Duration(),
		ExpectContinueTimeout: defaultExpectContinueTimeout,
		DisableCompression:    true,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for test environments
		},
	}
}

// NewClient builds the shared outbound client. Redirect responses are
// returned to the caller instead of being followed.
func NewClient(cfg config.ClientConfig) *http.Client {
	return newClient(NewTransport(cfg), cfg.Timeout.Duration())
}

func newClient(transport http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
