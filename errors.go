package codeload

import (
	"errors"

	"github.com/meigma/codeload/artifact"
)

// Sentinel errors for loader construction and lookup.
var (
	// ErrInvalidClasspath is returned when the classpath string is empty
	// or contains an empty segment.
	ErrInvalidClasspath = errors.New("codeload: invalid classpath")

	// ErrMalformedSource is returned when a source cannot be interpreted:
	// a corrupt bytecode container, an unreadable archive, or an archive
	// holding zero or multiple bytecode payloads.
	ErrMalformedSource = errors.New("codeload: malformed source")

	// ErrSourceUnreadable is returned when I/O fails while reading a
	// source during artifact creation.
	ErrSourceUnreadable = errors.New("codeload: source unreadable")

	// ErrClassNotFound is returned when no classpath entry defines the
	// requested class. The loader remains usable after this error.
	ErrClassNotFound = errors.New("codeload: class not found")

	// ErrClassDefinition is returned when a class is found but its
	// definition fails validation. The failure is not retried.
	ErrClassDefinition = errors.New("codeload: invalid class definition")
)

// ErrCacheWrite is returned when the artifact cache directory is not
// usable. Re-exported from the artifact package.
var ErrCacheWrite = artifact.ErrCacheWrite
