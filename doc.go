// Package codeload loads classes and resources from an ordered list of
// code sources, keeping a persistent cache of optimized artifacts so
// repeated loads of the same source skip redundant verification work.
//
// A source is either a raw bytecode container or a zip archive bundling
// exactly one bytecode container plus named resources. Sources are
// configured as a classpath string: absolute paths joined by the
// platform list separator, in priority order.
//
// # Quick Start
//
// Construct a loader and resolve a class:
//
//	l, err := codeload.New(classpath, cacheDir)
//	if err != nil {
//	    return err
//	}
//	cls, err := l.LoadClass("test.Test1")
//	if err != nil {
//	    return err
//	}
//	out, err := cls.Call("test")
//
// Construction parses the classpath and materializes one optimized
// artifact per entry under cacheDir. A second construction against the
// same classpath and cache directory reuses the artifacts without
// re-reading the sources.
//
// # Delegation
//
// A loader may hold a parent satisfying [ClassResolver]. Class lookups
// delegate to the parent first; only on a parent miss does the loader
// search its own sources. Resource lookups never delegate.
//
//	l, err := codeload.New(classpath, cacheDir, codeload.WithParent(system))
//
// Resolution is first-match-wins in classpath order: a class or
// resource defined by an earlier entry shadows later duplicates.
package codeload
