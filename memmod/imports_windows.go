package memmod

import (
	"fmt"
	"unsafe"
)

// buildImportTable walks the import directory, resolving every dependent
// library through m.callbacks and binding every thunk in its IAT. A
// dependency that fails to resolve, or a symbol within it that fails to
// resolve, aborts the whole bind: every dependency handle successfully
// acquired so far is released via m.callbacks.Free before returning.
func (m *Module) buildImportTable() error {
	directory := m.headerDirectory(IMAGE_DIRECTORY_ENTRY_IMPORT)
	if directory.Size == 0 {
		return nil
	}

	descriptors := unsafe.Slice(
		(*IMAGE_IMPORT_DESCRIPTOR)(a2p(m.codeBase+uintptr(directory.VirtualAddress))),
		directory.Size/uint32(unsafe.Sizeof(IMAGE_IMPORT_DESCRIPTOR{})))

	for i := range descriptors {
		desc := &descriptors[i]
		if desc.Name == 0 && desc.OriginalFirstThunk() == 0 && desc.FirstThunk == 0 {
			break
		}

		name := cStringAt(m.codeBase + uintptr(desc.Name))
		handle, err := m.callbacks.Load(name, m.userdata)
		if err != nil {
			m.releaseDependencies()
			return fmt.Errorf("%w: %s: %v", ErrModuleNotFound, name, err)
		}
		m.dependencies = append(m.dependencies, handle)

		thunkRVA := desc.OriginalFirstThunk()
		if thunkRVA == 0 {
			thunkRVA = desc.FirstThunk
		}
		if err := m.bindThunks(handle, thunkRVA, desc.FirstThunk); err != nil {
			m.releaseDependencies()
			return err
		}
	}
	return nil
}

// bindThunks walks a single import's thunk array (the name/ordinal table at
// nameTableRVA, which is the same array as the IAT at iatRVA when there is
// no separate OriginalFirstThunk) and overwrites each IAT slot in place
// with the resolved address in place.
func (m *Module) bindThunks(handle uintptr, nameTableRVA, iatRVA uint32) error {
	nameThunks := unsafe.Slice((*uintptr)(a2p(m.codeBase+uintptr(nameTableRVA))), thunkCount(m.codeBase+uintptr(nameTableRVA)))
	iat := unsafe.Slice((*uintptr)(a2p(m.codeBase+uintptr(iatRVA))), len(nameThunks))

	for i, thunk := range nameThunks {
		if thunk == 0 {
			break
		}
		if IMAGE_SNAP_BY_ORDINAL(thunk) {
			ordinal := IMAGE_ORDINAL(thunk)
			addr, err := m.callbacks.GetSymbolByOrdinal(handle, ordinal, m.userdata)
			if err != nil {
				return fmt.Errorf("%w: ordinal #%d: %v", ErrSymbolNotFound, ordinal, err)
			}
			iat[i] = addr
			continue
		}

		byName := (*IMAGE_IMPORT_BY_NAME)(a2p(m.codeBase + thunk))
		name := cStringAt(uintptr(unsafe.Pointer(&byName.Name[0])))
		addr, err := m.callbacks.GetSymbolByName(handle, name, m.userdata)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSymbolNotFound, name, err)
		}
		iat[i] = addr
	}
	return nil
}

// thunkCount scans forward from a thunk array until it finds the
// NUL-terminating zero entry. The import directory carries no explicit
// count for this array; every real PE loader walks it exactly this way.
func thunkCount(start uintptr) int {
	n := 0
	for *(*uintptr)(a2p(start + uintptr(n)*unsafe.Sizeof(uintptr(0)))) != 0 {
		n++
	}
	return n + 1
}

func (m *Module) releaseDependencies() {
	for _, h := range m.dependencies {
		m.callbacks.Free(h, m.userdata)
	}
	m.dependencies = nil
}

// cStringAt reads a NUL-terminated byte string starting at addr without
// knowing its length in advance.
func cStringAt(addr uintptr) string {
	n := 0
	for *(*byte)(a2p(addr + uintptr(n))) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(a2p(addr)), n))
}
