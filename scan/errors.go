package scan

import "errors"

var (
	// ErrInvalidRoot indicates the scan root does not exist, is not a
	// directory, or cannot be read at all. This is fatal: no report
	// can be produced.
	ErrInvalidRoot = errors.New("invalid scan root")
)
