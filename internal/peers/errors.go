package peers

import "errors"

var (
	// ErrNotFound is returned when a position is not in the directory.
	ErrNotFound = errors.New("peer not found")

	// ErrInvalidPeer is returned when a peer record has no valid host position.
	ErrInvalidPeer = errors.New("invalid peer record")

	// ErrVerificationFailed is returned when no candidate address answered the
	// connect-back call.
	ErrVerificationFailed = errors.New("peer verification failed")
)
