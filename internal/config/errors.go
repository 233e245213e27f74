package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoHost is returned when the node has no advertised host.
	ErrNoHost = errors.New("no host specified: set node.host or use --host")

	// ErrInvalidPort is returned when a port is outside 1..65535.
	ErrInvalidPort = errors.New("invalid port: must be between 1 and 65535")

	// ErrInvalidPosition is returned when a configured position is not a
	// 6-character host position.
	ErrInvalidPosition = errors.New("invalid position: must be a 6-character host position")

	// ErrInvalidSeed is returned when a seed peer lacks a host or has a bad
	// position or port.
	ErrInvalidSeed = errors.New("invalid seed peer")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidVerifyTimeout is returned when the verification timeout is
	// not positive.
	ErrInvalidVerifyTimeout = errors.New("invalid verify timeout: must be positive")

	// ErrInvalidConcurrency is returned when the greeting concurrency is not
	// positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidCeiling is returned when a queue or buffer ceiling is not
	// positive.
	ErrInvalidCeiling = errors.New("invalid ceiling: must be positive")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidInterval is returned when the maintenance interval is not
	// positive.
	ErrInvalidInterval = errors.New("invalid maintenance interval: must be positive")

	// ErrConflictingProxies is returned when an external proxy and the
	// embedded Tor daemon are both requested for onion routing.
	ErrConflictingProxies = errors.New("conflicting proxies: onion proxy and embedded Tor cannot be used together")
)
