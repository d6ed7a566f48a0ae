package codeload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind classifies a classpath entry. The set of source kinds is closed:
// an entry is either a raw bytecode container or an archive.
type Kind uint8

const (
	// KindBytecode is a raw bytecode container file.
	KindBytecode Kind = iota + 1
	// KindArchive is a zip archive bundling one bytecode container and
	// any number of named resources.
	KindArchive
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindBytecode:
		return "bytecode"
	case KindArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// BytecodeExt is the file extension of raw bytecode containers. A
// classpath segment with any other extension is treated as an archive.
const BytecodeExt = ".cbc"

// Entry is one element of the ordered classpath: an absolute path and
// its source kind. Entries are immutable once parsed.
type Entry struct {
	Path string
	Kind Kind
}

// parseClasspath splits a classpath string into ordered entries.
//
// The string is absolute paths joined by the platform list separator.
// Order is preserved exactly as given; it determines resolution
// priority. File existence is not checked here — the source reader
// checks lazily when an entry is first opened.
func parseClasspath(classpath string) ([]Entry, error) {
	if classpath == "" {
		return nil, fmt.Errorf("%w: empty classpath", ErrInvalidClasspath)
	}

	segments := strings.Split(classpath, string(os.PathListSeparator))
	entries := make([]Entry, 0, len(segments))
	for i, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: empty segment at index %d", ErrInvalidClasspath, i)
		}
		kind := KindArchive
		if strings.EqualFold(filepath.Ext(seg), BytecodeExt) {
			kind = KindBytecode
		}
		entries = append(entries, Entry{Path: seg, Kind: kind})
	}
	return entries, nil
}
