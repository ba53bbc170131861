package memmod

import "errors"

// Sentinel errors, comparable with errors.Is, replacing the Win32
// last-error taxonomy (thread-local GetLastError) with a directly
// returned typed error at every call site.
var (
	// ErrBadFormat is returned when the DOS or NT signature doesn't match,
	// the machine type doesn't match the host, or the section table is
	// internally inconsistent with the declared image size.
	ErrBadFormat = errors.New("memmod: not a valid PE image for this host")

	// ErrOutOfMemory is returned when a virtual memory reservation or
	// commit fails. A failed protection change is logged, not returned.
	ErrOutOfMemory = errors.New("memmod: virtual memory allocation failed")

	// ErrModuleNotFound is returned when a host Load callback returns an
	// error resolving an imported library name.
	ErrModuleNotFound = errors.New("memmod: dependent module could not be resolved")

	// ErrSymbolNotFound is returned when a host GetSymbolByName or
	// GetSymbolByOrdinal callback fails to resolve an imported symbol.
	ErrSymbolNotFound = errors.New("memmod: imported symbol could not be resolved")

	// ErrDLLInitFailed is returned when the entry point returns zero,
	// signalling initialization failure.
	ErrDLLInitFailed = errors.New("memmod: entry point reported initialization failure")
)
