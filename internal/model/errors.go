package model

import "errors"

var (
	// ErrInvalidDescriptor is returned when a peer descriptor lacks a valid
	// position or address.
	ErrInvalidDescriptor = errors.New("invalid peer descriptor")

	// ErrInvalidMetadata is returned when a metadata entry has no usable URL.
	ErrInvalidMetadata = errors.New("invalid metadata entry")

	// ErrInvalidPosting is returned for reverse index lines that cannot be
	// parsed.
	ErrInvalidPosting = errors.New("invalid posting")
)
