package database

import "errors"

var (
	// ErrNotFound is returned when a lookup finds no row.
	ErrNotFound = errors.New("not found")

	// ErrDatabaseMissing is returned by Open when the database does not
	// exist and creation was not requested.
	ErrDatabaseMissing = errors.New("database not found")
)
