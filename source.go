package codeload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// The source reader gives a uniform view over the two entry kinds: the
// bytecode payload of an entry, and the named resources of an archive.
// File handles are opened, read, and closed within each call; nothing
// here outlives the call.

// readBytecode returns the raw bytecode payload of an entry.
//
// For a raw entry this is the file's full contents. For an archive it
// is the single embedded bytecode member; an archive with zero or
// multiple bytecode members, or a file that is not a zip archive at
// all, is malformed.
func readBytecode(e Entry) ([]byte, error) {
	switch e.Kind {
	case KindBytecode:
		data, err := os.ReadFile(e.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
		}
		return data, nil
	case KindArchive:
		return readArchiveBytecode(e.Path)
	default:
		return nil, fmt.Errorf("%w: unknown source kind %d", ErrMalformedSource, e.Kind)
	}
}

func readArchiveBytecode(path string) ([]byte, error) {
	zr, closer, err := openArchive(path)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var payload *zip.File
	for _, f := range zr.File {
		if !isBytecodeMember(f.Name) {
			continue
		}
		if payload != nil {
			return nil, fmt.Errorf("%w: multiple bytecode payloads in %s", ErrMalformedSource, path)
		}
		payload = f
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: no bytecode payload in %s", ErrMalformedSource, path)
	}

	rc, err := payload.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedSource, path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnreadable, path, err)
	}
	return data, nil
}

// archiveResource returns the content of the named resource in the
// archive at path. Every non-bytecode member is a resource, named by
// its internal path. ok is false when the archive has no such member.
func archiveResource(path, name string) (content []byte, ok bool, err error) {
	zr, closer, err := openArchive(path)
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	for _, f := range zr.File {
		if f.Name != name || isBytecodeMember(f.Name) || isDirMember(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s: %w", ErrSourceUnreadable, path, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s: %w", ErrSourceUnreadable, path, err)
		}
		return data, true, nil
	}
	return nil, false, nil
}

// openArchive distinguishes I/O failures (source unreadable) from
// format failures (malformed source).
func openArchive(path string) (*zip.Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrSourceUnreadable, path, err)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrMalformedSource, path, err)
	}
	return zr, f, nil
}

func isBytecodeMember(name string) bool {
	return strings.EqualFold(filepath.Ext(name), BytecodeExt)
}

func isDirMember(name string) bool {
	return strings.HasSuffix(name, "/")
}
