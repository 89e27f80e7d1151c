package dispatch

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// TransportConfig configures the HTTP transport used to reach backends.
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
}

// DefaultTransportConfig mirrors conservative reverse-proxy defaults.
var DefaultTransportConfig = TransportConfig{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	DialTimeout:         30 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
}

// NewTransport builds an http.Transport for backend calls. TLS certificate
// verification is always enabled (spec §4.3) — there is no
// InsecureSkipVerify knob here, unlike a general-purpose gateway transport.
func NewTransport(cfg TransportConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: false},
		ForceAttemptHTTP2:   true,
	}
}

// DefaultTransport returns a transport built from DefaultTransportConfig.
func DefaultTransport() *http.Transport {
	return NewTransport(DefaultTransportConfig)
}
