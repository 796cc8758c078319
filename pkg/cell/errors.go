package cell

import (
	"errors"
	"fmt"
)

// ErrFatal marks errors the interpreter cannot recover from: a full symbol
// table, register stack overflow, marking a free cell. A returned fatal
// error is checked by the top level with errors.Is and terminates the
// process with exit code 1 instead of unwinding to the read loop; register
// stack overflow and marking a free cell are raised as panics instead.
var ErrFatal = errors.New("fatal")

// Fatalf builds a fatal error.
func Fatalf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrFatal)
}

// IsFatal reports whether err is unrecoverable.
func IsFatal(err error) bool { return errors.Is(err, ErrFatal) }
