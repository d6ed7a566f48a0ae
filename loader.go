package codeload

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/codeload/artifact"
	"github.com/meigma/codeload/internal/image"
)

// ClassResolver resolves fully-qualified class names to loaded classes.
//
// A Loader implements ClassResolver, so loaders chain directly as
// parents of other loaders. Any other implementation works too; the
// parent is a capability reference, not a base type. A resolver must
// report a miss with an error satisfying errors.Is(err, ErrClassNotFound).
type ClassResolver interface {
	LoadClass(name string) (*Class, error)
}

// Loader resolves classes and resources from an ordered classpath,
// backed by an optimized-artifact cache.
//
// A Loader is immutable after construction and safe for concurrent
// LoadClass and Resource calls.
type Loader struct {
	entries []Entry
	store   *artifact.Store
	paths   []string // artifact path per entry, classpath order
	images  []entryImage
	parent  ClassResolver
	logger  *slog.Logger

	mu      sync.RWMutex
	classes map[string]*Class
	group   singleflight.Group
}

var _ ClassResolver = (*Loader)(nil)

// entryImage lazily decodes one entry's artifact. Decoding happens at
// most once per loader, on the first lookup that reaches the entry.
type entryImage struct {
	once sync.Once
	img  *image.Image
	err  error
}

// New constructs a loader over the given classpath and cache directory.
//
// The classpath is absolute paths joined by the platform list
// separator; order determines resolution priority. Construction parses
// the classpath and materializes one optimized artifact per entry
// under cacheDir, reusing valid artifacts left by prior constructions.
// Any entry that cannot be made ready aborts construction; no partial
// loader is returned. Errors carry the offending entry's index and
// path and satisfy errors.Is against ErrInvalidClasspath, ErrCacheWrite,
// ErrSourceUnreadable, or ErrMalformedSource.
func New(classpath, cacheDir string, opts ...Option) (*Loader, error) {
	entries, err := parseClasspath(classpath)
	if err != nil {
		return nil, err
	}

	store, err := artifact.NewStore(cacheDir)
	if err != nil {
		return nil, err
	}

	l := &Loader{
		entries: entries,
		store:   store,
		classes: make(map[string]*Class),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.paths = make([]string, len(entries))
	for i, e := range entries {
		path, err := store.Ensure(e.Path, func() ([]byte, error) {
			return optimizeSource(e)
		})
		if err != nil {
			return nil, fmt.Errorf("classpath entry %d (%s): %w", i, e.Path, err)
		}
		l.paths[i] = path
		l.log().Debug("artifact ready", "entry", e.Path, "kind", e.Kind, "artifact", path)
	}

	l.images = make([]entryImage, len(entries))
	return l, nil
}

// optimizeSource reads an entry's bytecode payload and runs it through
// the optimize transform. This is the artifact producer handed to the
// store; it only runs when no valid artifact exists.
func optimizeSource(e Entry) ([]byte, error) {
	raw, err := readBytecode(e)
	if err != nil {
		return nil, err
	}
	opt, err := image.Optimize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
	}
	return opt, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (l *Loader) log() *slog.Logger {
	if l.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.logger
}

// Entries returns the parsed classpath in resolution order.
func (l *Loader) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// CacheDir returns the artifact cache directory.
func (l *Loader) CacheDir() string {
	return l.store.Dir()
}

// LoadClass resolves a fully-qualified class name.
//
// Resolution order: the loader's own definition cache, then the parent
// (when configured), then the classpath entries in order. The first
// entry defining the name wins; duplicate definitions in later entries
// are shadowed. A miss returns an error satisfying
// errors.Is(err, ErrClassNotFound); a found-but-invalid definition
// returns ErrClassDefinition and is not retried.
//
// Concurrent calls for the same name are collapsed to one resolution.
func (l *Loader) LoadClass(name string) (*Class, error) {
	l.mu.RLock()
	cls, ok := l.classes[name]
	l.mu.RUnlock()
	if ok {
		return cls, nil
	}

	v, err, _ := l.group.Do(name, func() (any, error) {
		return l.resolveClass(name)
	})
	if err != nil {
		return nil, err
	}
	cls = v.(*Class) //nolint:errcheck // type assertion always succeeds when err is nil

	l.mu.Lock()
	if cached, ok := l.classes[name]; ok {
		cls = cached
	} else {
		l.classes[name] = cls
	}
	l.mu.Unlock()
	return cls, nil
}

func (l *Loader) resolveClass(name string) (*Class, error) {
	// Parent delegation first: a child loader must not shadow
	// definitions the parent already provides.
	if l.parent != nil {
		cls, err := l.parent.LoadClass(name)
		if err == nil {
			l.log().Debug("class resolved by parent", "class", name)
			return cls, nil
		}
		if !errors.Is(err, ErrClassNotFound) {
			return nil, fmt.Errorf("parent loader: %w", err)
		}
	}

	for i := range l.entries {
		img, err := l.entryImage(i)
		if err != nil {
			return nil, fmt.Errorf("classpath entry %d (%s): %w", i, l.entries[i].Path, err)
		}
		def, ok := img.Lookup(name)
		if !ok {
			continue
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("classpath entry %d (%s): %w: %w", i, l.entries[i].Path, ErrClassDefinition, err)
		}
		l.log().Debug("class resolved", "class", name, "entry", l.entries[i].Path)
		return &Class{def: def, loader: l}, nil
	}

	return nil, fmt.Errorf("%q: %w", name, ErrClassNotFound)
}

// entryImage returns the decoded artifact class table for entry i.
func (l *Loader) entryImage(i int) (*image.Image, error) {
	e := &l.images[i]
	e.once.Do(func() {
		data, err := os.ReadFile(l.paths[i])
		if err != nil {
			e.err = fmt.Errorf("read artifact: %w", err)
			return
		}
		e.img, e.err = image.DecodeArtifact(data)
	})
	return e.img, e.err
}

// Resource returns the content of the named resource.
//
// Classpath entries are scanned in order; the first archive containing
// the name wins. Raw bytecode entries contribute no resources. There
// is no parent delegation: resources resolve strictly within this
// loader's own sources. A name present in no entry returns a
// *fs.PathError wrapping fs.ErrNotExist, distinct from I/O failures.
func (l *Loader) Resource(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "resource", Path: name, Err: fs.ErrInvalid}
	}

	for i, e := range l.entries {
		if e.Kind != KindArchive {
			continue
		}
		content, ok, err := archiveResource(e.Path, name)
		if err != nil {
			return nil, fmt.Errorf("classpath entry %d (%s): %w", i, e.Path, err)
		}
		if ok {
			l.log().Debug("resource resolved", "resource", name, "entry", e.Path)
			return content, nil
		}
	}

	return nil, &fs.PathError{Op: "resource", Path: name, Err: fs.ErrNotExist}
}
