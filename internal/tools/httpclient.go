package tools

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/soyeahso/gaia/internal/version"
)

// DefaultTimeout bounds a single upstream request, including reading the body.
const DefaultTimeout = 30 * time.Second

type clientOptions struct {
	timeout   time.Duration
	proxy     string
	userAgent string
}

// ClientOption configures NewHTTPClient.
type ClientOption func(*clientOptions)

// WithTimeout sets the overall request timeout. Non-positive values keep
// DefaultTimeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithProxy routes every request through the given proxy URL. An empty
// string falls back to the environment proxy settings.
func WithProxy(raw string) ClientOption {
	return func(o *clientOptions) { o.proxy = raw }
}

// WithUserAgent sets the User-Agent header on requests that lack one.
func WithUserAgent(ua string) ClientOption {
	return func(o *clientOptions) { o.userAgent = ua }
}

// NewHTTPClient returns a client with tuned dial and idle settings for the
// upstream lookup APIs.
func NewHTTPClient(opts ...ClientOption) (*http.Client, error) {
	o := clientOptions{timeout: DefaultTimeout, userAgent: version.UserAgent()}
	for _, opt := range opts {
		opt(&o)
	}

	proxy := http.ProxyFromEnvironment
	if o.proxy != "" {
		u, err := url.Parse(o.proxy)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", o.proxy)
		}
		proxy = http.ProxyURL(u)
	}

	transport := &http.Transport{
		Proxy: proxy,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		ForceAttemptHTTP2:   true,
	}

	var rt http.RoundTripper = transport
	if o.userAgent != "" {
		rt = &userAgentTransport{base: transport, ua: o.userAgent}
	}
	return &http.Client{Timeout: o.timeout, Transport: rt}, nil
}

type userAgentTransport struct {
	base http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(r)
}
