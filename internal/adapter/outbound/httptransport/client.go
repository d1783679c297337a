package httptransport

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ClientOptions configure one named HTTP client handle.
type ClientOptions struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	MaxIdleConns       int
}

// NewClient builds an instrumented client. Transparent decompression is disabled
// because the response decoder owns Content-Encoding handling.
func NewClient(opts ClientOptions) *http.Client {
	maxIdle := opts.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 100
	}
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxIdle,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
	}
	if opts.InsecureSkipVerify {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: otelhttp.NewTransport(base),
	}
}
