// Package memmod loads a Portable Executable image directly out of a byte
// buffer and runs it in the current process, the way Windows' loader would
// load a DLL from disk — except the image never touches the filesystem.
//
// The package parses the DOS/NT headers, reserves and commits virtual
// memory for the image, copies section data into place, applies base
// relocations, resolves imports through a pluggable HostCallbacks
// implementation, finalizes page protections, and calls the entry point.
// It never calls windows.LoadLibrary (or any path-based API) on the image
// itself; dependent libraries are resolved exclusively through the
// callbacks supplied to LoadLibraryEx (or DefaultCallbacks, which does use
// the OS loader, but only for dependencies).
package memmod
