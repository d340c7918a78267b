package transport

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPTransport is shared by the decision client and the impression
// beacon so both reuse one connection pool per process.
func NewHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewClient returns a client whose every request is bounded by timeout.
func NewClient(tr http.RoundTripper, timeout time.Duration) *http.Client {
	if tr == nil {
		tr = NewHTTPTransport()
	}
	return &http.Client{Transport: tr, Timeout: timeout}
}
