// Package log provides slog-based logging that masks credentials before
// they reach the output.
//
// A mirror run may be configured with cookies, authorization headers and
// proxy credentials (see the .sitemirror file). Those values show up in
// debug logs as request attributes, so every logger built by this package
// wraps its handler in a SecureHandler:
//   - attributes whose key names a secret (cookie, authorization, token, ...)
//     are replaced with MaskValue
//   - values that look like bearer tokens, basic auth or JWTs are masked
//   - URLs carrying a password in their userinfo have the password masked
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
package log
