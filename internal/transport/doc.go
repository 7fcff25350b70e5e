// Package transport builds the *http.Client used by the crawler.
//
// The client enforces a per-request timeout, caps redirects, injects the
// cookie and headers configured for the site into every request (including
// redirects), and can route all connections through a SOCKS5 proxy.
package transport
