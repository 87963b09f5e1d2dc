package store

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an optimistic update lost against a
	// concurrent writer.
	ErrConflict = errors.New("concurrent update conflict")
)

// IsContention reports whether err is a transient write conflict worth
// retrying.
func IsContention(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "conflict") ||
		strings.Contains(msg, "locked") ||
		strings.Contains(msg, "busy")
}
