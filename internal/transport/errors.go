package transport

import "errors"

var (
	// ErrInvalidProxyAddress is returned when the proxy address is not "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrTooManyRedirects is returned when a request exceeds the redirect limit.
	ErrTooManyRedirects = errors.New("too many redirects")
)
