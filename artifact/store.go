// Package artifact provides the directory-scoped store for optimized
// bytecode artifacts.
//
// Each classpath entry maps to exactly one artifact file, named by the
// SHA-256 digest of the entry's path, so repeated constructions over
// the same entry and directory find the prior artifact without reading
// the source again. Writes go through a temp file and an atomic rename;
// when two writers race, one result wins and the other is discarded.
// Mutual exclusion across processes is not guaranteed: concurrent
// construction against the same entry is safe for correctness but may
// do redundant optimization work.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/codeload/internal/image"
)

const defaultDirPerm = 0o700

// Suffix is the file name suffix of every artifact in a store.
const Suffix = ".opt"

// ErrCacheWrite is returned when the cache directory cannot be created
// or written.
var ErrCacheWrite = errors.New("artifact: cache write failed")

// Store manages optimized artifacts inside one cache directory. The
// directory may hold unrelated files; the store only touches files it
// names itself.
type Store struct {
	dir     string
	dirPerm os.FileMode
	group   singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithDirPerm sets the permissions used when creating the cache
// directory. Defaults to 0o700.
func WithDirPerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.dirPerm = mode
	}
}

// NewStore creates a store rooted at dir, creating the directory if
// needed.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty cache directory", ErrCacheWrite)
	}
	s := &Store{
		dir:     dir,
		dirPerm: defaultDirPerm,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	return s, nil
}

// Dir returns the cache directory the store is rooted at.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the artifact path for a source, whether or not the
// artifact exists yet.
func (s *Store) Path(sourcePath string) string {
	return filepath.Join(s.dir, digest.FromString(sourcePath).Encoded()+Suffix)
}

// Ensure returns the path of a valid artifact for sourcePath.
//
// An existing artifact with a well-formed header is reused without
// invoking produce. Otherwise produce supplies the artifact payload
// (read source, optimize), which is written to a temp file and renamed
// into place. Errors from produce are returned as-is; write failures
// are reported as ErrCacheWrite.
//
// Concurrent Ensure calls for the same source within one process are
// collapsed to a single producer.
func (s *Store) Ensure(sourcePath string, produce func() ([]byte, error)) (string, error) {
	path := s.Path(sourcePath)
	_, err, _ := s.group.Do(path, func() (any, error) {
		if s.valid(path) {
			return nil, nil
		}
		payload, err := produce()
		if err != nil {
			return nil, err
		}
		return nil, s.write(path, payload)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// valid reports whether path holds an artifact with a well-formed
// header. A corrupt or truncated file is treated as absent and will be
// regenerated.
func (s *Store) valid(path string) bool {
	f, err := os.Open(path) //nolint:gosec // path is derived from a digest, not user input
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, image.HeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	return image.IsArtifact(header)
}

func (s *Store) write(path string, payload []byte) error {
	tmp, err := os.CreateTemp(s.dir, "artifact-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		// Lost the race to another writer. Its artifact is as good as
		// ours: the transform is deterministic for a given source.
		if s.valid(path) {
			_ = os.Remove(tmpPath)
			return nil
		}
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	return nil
}
