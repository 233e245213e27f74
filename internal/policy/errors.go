package policy

import "errors"

var (
	// ErrInvalidPattern is returned when a blacklist pattern cannot be parsed.
	ErrInvalidPattern = errors.New("invalid blacklist pattern")

	// ErrInvalidScope is returned for an unknown crawl scope name.
	ErrInvalidScope = errors.New("invalid crawl scope")
)
