package mirror

import "errors"

var (
	// ErrPathTraversal is returned when a mapped path contains a ".." segment.
	ErrPathTraversal = errors.New("path escapes output directory")

	// ErrEmptyPath is returned when a URL maps to no usable path.
	ErrEmptyPath = errors.New("url maps to an empty path")

	// ErrClosed is returned when writing through a closed Writer.
	ErrClosed = errors.New("mirror writer is closed")
)
