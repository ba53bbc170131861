package memmod

import "golang.org/x/sys/windows"

// HostCallbacks is the capability trio a host supplies to resolve the
// dependencies of a memory-loaded image: one call to resolve a library by
// name, one to resolve a symbol within that library (by name or by
// ordinal), and one to release the library once the module tears down.
//
// This is the "single polymorphic object exposing load, get_symbol, free"
// the design notes call for in place of three bare function pointers plus
// a userdata value — handle and userdata are still threaded through every
// call so a host can implement this against any resolution scheme,
// including one that never touches the OS loader at all.
type HostCallbacks interface {
	// Load resolves a dependent library by its NUL-terminated name as it
	// appears in the import directory. A non-nil error is reported to the
	// caller as ErrModuleNotFound.
	Load(name string, userdata uintptr) (handle uintptr, err error)

	// GetSymbolByName resolves an imported symbol named in an
	// IMAGE_IMPORT_BY_NAME record.
	GetSymbolByName(handle uintptr, name string, userdata uintptr) (addr uintptr, err error)

	// GetSymbolByOrdinal resolves an imported symbol whose thunk had the
	// ordinal bit set; ordinal is the low 16 bits of the thunk value.
	GetSymbolByOrdinal(handle uintptr, ordinal uint16, userdata uintptr) (addr uintptr, err error)

	// Free releases a handle previously returned by Load. Called exactly
	// once per successful Load, during teardown or when binding a later
	// import fails.
	Free(handle uintptr, userdata uintptr)
}

// DefaultCallbacks resolves dependencies through the OS loader, restricted
// to the System32 search order — the default CustomLoadLibraryFunc /
// CustomGetProcAddressFunc / CustomFreeLibraryFunc trio from the original
// source, translated to this package's HostCallbacks shape.
var DefaultCallbacks HostCallbacks = osCallbacks{}

type osCallbacks struct{}

func (osCallbacks) Load(name string, _ uintptr) (uintptr, error) {
	h, err := windows.LoadLibraryEx(name, 0, windows.LOAD_LIBRARY_SEARCH_SYSTEM32)
	if err != nil {
		return 0, err
	}
	return uintptr(h), nil
}

func (osCallbacks) GetSymbolByName(handle uintptr, name string, _ uintptr) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(handle), name)
}

func (osCallbacks) GetSymbolByOrdinal(handle uintptr, ordinal uint16, _ uintptr) (uintptr, error) {
	return windows.GetProcAddressByOrdinal(windows.Handle(handle), uintptr(ordinal))
}

func (osCallbacks) Free(handle uintptr, _ uintptr) {
	windows.FreeLibrary(windows.Handle(handle))
}
