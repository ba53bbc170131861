package memmod

import (
	"fmt"
	"unsafe"
)

// buildNameExports indexes the image's export-by-name table into
// m.nameExports so ProcAddressByName doesn't have to re-scan
// AddressOfNames/AddressOfNameOrdinals on every lookup. Unlike header
// parsing or relocation, a missing or empty export table is not a load
// failure: most loaded images are never queried for exports at all.
// buildNameExports simply leaves m.nameExports nil and callers see
// ErrSymbolNotFound from the lookup methods.
func (m *Module) buildNameExports() {
	directory := m.headerDirectory(IMAGE_DIRECTORY_ENTRY_EXPORT)
	if directory.Size == 0 {
		return
	}
	exports := (*IMAGE_EXPORT_DIRECTORY)(a2p(m.codeBase + uintptr(directory.VirtualAddress)))
	if exports.NumberOfNames == 0 || exports.NumberOfFunctions == 0 {
		return
	}

	nameRefs := unsafe.Slice((*uint32)(a2p(m.codeBase+uintptr(exports.AddressOfNames))), exports.NumberOfNames)
	ordinals := unsafe.Slice((*uint16)(a2p(m.codeBase+uintptr(exports.AddressOfNameOrdinals))), exports.NumberOfNames)

	m.nameExports = make(map[string]uint16, len(nameRefs))
	for i, rva := range nameRefs {
		name := cStringAt(m.codeBase + uintptr(rva))
		m.nameExports[name] = ordinals[i]
	}
}

// ProcAddressByName resolves the address of an exported function by name.
func (m *Module) ProcAddressByName(name string) (uintptr, error) {
	directory := m.headerDirectory(IMAGE_DIRECTORY_ENTRY_EXPORT)
	if directory.Size == 0 || m.nameExports == nil {
		return 0, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	idx, ok := m.nameExports[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	exports := (*IMAGE_EXPORT_DIRECTORY)(a2p(m.codeBase + uintptr(directory.VirtualAddress)))
	if uint32(idx) >= exports.NumberOfFunctions {
		return 0, fmt.Errorf("%w: %s: ordinal index out of range", ErrSymbolNotFound, name)
	}
	rva := *(*uint32)(a2p(m.codeBase + uintptr(exports.AddressOfFunctions) + uintptr(idx)*4))
	return m.codeBase + uintptr(rva), nil
}

// ProcAddressByOrdinal resolves the address of an exported function by its
// export ordinal, independent of whether it also has a name.
func (m *Module) ProcAddressByOrdinal(ordinal uint16) (uintptr, error) {
	directory := m.headerDirectory(IMAGE_DIRECTORY_ENTRY_EXPORT)
	if directory.Size == 0 {
		return 0, fmt.Errorf("%w: ordinal #%d", ErrSymbolNotFound, ordinal)
	}
	exports := (*IMAGE_EXPORT_DIRECTORY)(a2p(m.codeBase + uintptr(directory.VirtualAddress)))
	if uint32(ordinal) < exports.Base {
		return 0, fmt.Errorf("%w: ordinal #%d below base %d", ErrSymbolNotFound, ordinal, exports.Base)
	}
	idx := uint32(ordinal) - exports.Base
	if idx >= exports.NumberOfFunctions {
		return 0, fmt.Errorf("%w: ordinal #%d above range", ErrSymbolNotFound, ordinal)
	}
	rva := *(*uint32)(a2p(m.codeBase + uintptr(exports.AddressOfFunctions) + uintptr(idx)*4))
	return m.codeBase + uintptr(rva), nil
}
