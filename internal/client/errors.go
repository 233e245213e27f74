package client

import "errors"

var (
	// ErrRefused is returned when a peer answered but declined the request.
	ErrRefused = errors.New("request refused by peer")

	// ErrPositionMismatch is returned when a probed address answers as
	// another peer.
	ErrPositionMismatch = errors.New("peer answered with another position")

	// ErrUnknownPeer is returned when a call targets a position that is not
	// in the peer directory.
	ErrUnknownPeer = errors.New("peer not in directory")

	// ErrNoSelf is returned when the directory has no valid own descriptor.
	ErrNoSelf = errors.New("own peer descriptor not set")
)
