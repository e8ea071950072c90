package store

import (
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrConflict is returned when a write collides with an existing natural key.
var ErrConflict = errors.New("conflicting row already exists")

// ErrInvalidTransition is returned when an order cannot move to the
// requested status from where it is.
var ErrInvalidTransition = errors.New("invalid status transition")

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

type scanner interface{ Scan(...any) error }
