package db

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("db: record not found")

	// ErrDuplicate is returned when a unique field (user e-mail) is already taken.
	ErrDuplicate = errors.New("db: unique constraint violated")

	// ErrNotMember is returned when a user acts on a room they do not belong to.
	ErrNotMember = errors.New("db: user is not a member of the room")
)

// IsUniqueViolation checks if the error is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsNotFound reports whether err means the record (or the membership) does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotMember)
}
