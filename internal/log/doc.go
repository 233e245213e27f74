// Package log builds the node's slog loggers.
//
// Every logger returned by this package wraps its handler in a
// SecureHandler, which masks attributes that carry protocol secrets before
// they reach the output:
//   - transmission keys and salts exchanged with peers
//   - access codes issued for payload transfers
//   - proxy credentials and HTTP authentication headers
//   - cookies, tokens and passwords
//
// Masking also applies in verbose mode, so debug output can be shared.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("peer call", "command", "hello", "key", key) // key is masked
//	slog.SetDefault(logger)
//
// The embedded Tor daemon of package transport accepts the same logger.
package log
