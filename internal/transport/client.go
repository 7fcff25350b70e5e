package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultMaxRedirects is the number of redirects followed before giving up.
const DefaultMaxRedirects = 10

// Options configures NewClient.
type Options struct {
	// Timeout bounds a whole request including reading the body.
	Timeout time.Duration

	// ProxyAddress routes connections through a SOCKS5 proxy when set.
	ProxyAddress string

	// ProxyAuth holds optional SOCKS5 credentials.
	ProxyAuth *proxy.Auth

	// MaxRedirects caps followed redirects. Zero means DefaultMaxRedirects.
	MaxRedirects int

	// Cookie is sent with every request.
	Cookie string

	// Headers are set on every request.
	Headers map[string]string

	// SiteHost limits Cookie and Headers to requests for this host.
	// Empty means every request gets them.
	SiteHost string
}

// Option configures Options.
type Option func(*Options)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithProxy routes every connection through the SOCKS5 proxy at address.
func WithProxy(address string) Option {
	return func(o *Options) {
		o.ProxyAddress = address
	}
}

// WithProxyAuth sets SOCKS5 credentials.
func WithProxyAuth(user, password string) Option {
	return func(o *Options) {
		o.ProxyAuth = &proxy.Auth{User: user, Password: password}
	}
}

// WithMaxRedirects caps the number of followed redirects.
func WithMaxRedirects(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxRedirects = n
		}
	}
}

// WithCookie sends cookie with every request.
func WithCookie(cookie string) Option {
	return func(o *Options) {
		o.Cookie = cookie
	}
}

// WithHeaders sets headers on every request.
func WithHeaders(headers map[string]string) Option {
	return func(o *Options) {
		o.Headers = headers
	}
}

// WithSiteHost sends the cookie and headers only to host, so redirects to
// other hosts do not receive them.
func WithSiteHost(host string) Option {
	return func(o *Options) {
		o.SiteHost = host
	}
}

// NewClient creates an HTTP client from the given options.
// Validation of the proxy address happens here; no connection is made.
func NewClient(opts ...Option) (*http.Client, error) {
	o := Options{
		MaxRedirects: DefaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(&o)
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = 16

	if o.ProxyAddress != "" {
		dialContext, err := socks5DialContext(o.ProxyAddress, o.ProxyAuth)
		if err != nil {
			return nil, err
		}
		base.Proxy = nil
		base.DialContext = dialContext
	}

	var rt http.RoundTripper = base
	if o.Cookie != "" || len(o.Headers) > 0 {
		rt = &headerInjectingTransport{
			base:    base,
			host:    o.SiteHost,
			cookie:  o.Cookie,
			headers: o.Headers,
		}
	}

	maxRedirects := o.MaxRedirects
	return &http.Client{
		Transport: rt,
		Timeout:   o.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, len(via))
			}
			return nil
		},
	}, nil
}

// socks5DialContext returns a DialContext function that connects through
// the SOCKS5 proxy at address.
func socks5DialContext(address string, auth *proxy.Auth) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	if !IsValidProxyAddress(address) {
		return nil, ErrInvalidProxyAddress
	}

	dialer, err := proxy.SOCKS5("tcp", address, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}

// IsValidProxyAddress checks that address is "host:port" with a non-empty
// host and a port between 1 and 65535.
func IsValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// headerInjectingTransport adds the configured cookie and headers to every
// request for host, redirects included.
type headerInjectingTransport struct {
	base    http.RoundTripper
	host    string
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.host != "" && !strings.EqualFold(req.URL.Host, t.host) {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
