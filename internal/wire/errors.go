package wire

import "errors"

var (
	// ErrDecode is returned when an encoded value cannot be decoded.
	ErrDecode = errors.New("cannot decode value")

	// ErrMissingKey is returned when the keyed cipher is used without a
	// transmission key.
	ErrMissingKey = errors.New("transmission key required")

	// ErrMalformedProperties is returned for property lists that are not
	// enclosed in braces.
	ErrMalformedProperties = errors.New("malformed property list")

	// ErrUnexpectedStatus is returned when a peer answers with a non-200 status.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)
