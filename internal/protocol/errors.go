package protocol

import "errors"

var (
	// ErrMissingCollaborator is returned by NewService when a required
	// dependency is nil.
	ErrMissingCollaborator = errors.New("missing collaborator")

	// ErrPermitNotFound is returned when an access code is unknown, expired,
	// or already used.
	ErrPermitNotFound = errors.New("permit not found")

	// ErrPermitMismatch is returned when an access code is presented by a
	// peer other than the one it was issued to.
	ErrPermitMismatch = errors.New("permit issued to another peer")

	// ErrUnknownOutcome is returned when a response carries an outcome code
	// this node does not recognize.
	ErrUnknownOutcome = errors.New("unknown outcome")
)
