// Package testutil builds bytecode container and archive fixtures for
// tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/meigma/codeload/artifact"
	"github.com/meigma/codeload/internal/image"
)

// SimpleClass returns a class whose single method returns the given
// constant string.
func SimpleClass(name, method, result string) image.Class {
	return image.Class{
		Name:   name,
		Consts: []string{result},
		Methods: []image.Method{{
			Name: method,
			Code: []image.Instr{
				{Op: image.OpConst, Arg: 0},
				{Op: image.OpReturn},
			},
		}},
	}
}

// ResourceClass returns a class whose single method loads the named
// resource through the owning loader and returns its content.
func ResourceClass(name, method, resource string) image.Class {
	return image.Class{
		Name:   name,
		Consts: []string{resource},
		Methods: []image.Method{{
			Name: method,
			Code: []image.Instr{
				{Op: image.OpConst, Arg: 0},
				{Op: image.OpResource},
				{Op: image.OpReturn},
			},
		}},
	}
}

// WriteBytecode encodes the classes as a raw bytecode container under
// dir and returns its path. The file name must carry the bytecode
// extension for the classpath parser to classify the entry as raw.
func WriteBytecode(t *testing.T, dir, name string, classes ...image.Class) string {
	t.Helper()

	data, err := image.Encode(&image.Image{Classes: classes})
	if err != nil {
		t.Fatalf("encode container: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write container: %v", err)
	}
	return path
}

// WriteArchive builds a zip archive under dir bundling the classes as
// a single bytecode member plus the given resources, and returns its
// path.
func WriteArchive(t *testing.T, dir, name string, classes []image.Class, resources map[string][]byte) string {
	t.Helper()

	data, err := image.Encode(&image.Image{Classes: classes})
	if err != nil {
		t.Fatalf("encode container: %v", err)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("classes.cbc")
	if err != nil {
		t.Fatalf("create bytecode member: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write bytecode member: %v", err)
	}
	for rname, content := range resources {
		rw, err := zw.Create(rname)
		if err != nil {
			t.Fatalf("create resource member %s: %v", rname, err)
		}
		if _, err := rw.Write(content); err != nil {
			t.Fatalf("write resource member %s: %v", rname, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return path
}

// CountArtifacts returns the number of artifact files in dir, ignoring
// unrelated files.
func CountArtifacts(t *testing.T, dir string) int {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read cache dir: %v", err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), artifact.Suffix) {
			n++
		}
	}
	return n
}
