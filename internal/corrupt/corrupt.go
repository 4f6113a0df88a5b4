// Package corrupt defines the single error kind used throughout the storage
// format layer to report format-level inconsistencies: invalid page type
// tags, invalid serial types, truncated varints, reads past a buffer's end,
// undecodable record headers.
package corrupt

import (
	"errors"
	"fmt"
)

// Error is the sentinel kind for every format-level inconsistency detected
// while decoding the database file or WAL. There are no partial results: a
// decode either completes or returns an Error.
type Error struct {
	msg string
}

// New builds a Corrupt error with a formatted message.
func New(format string, args ...any) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return "corrupt: " + e.msg
}

// Is reports whether err is (or wraps) a corrupt.Error, so callers can do
// `errors.Is(err, corrupt.Sentinel)`-style checks without exporting a
// concrete comparable value.
func Is(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}
