package memmod

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// registerExceptionHandlers registers the image's exception directory
// (.pdata) with the process's dynamic function table so stack unwinding —
// including Go's own panic/recover machinery, should the loaded image ever
// call back into it — works correctly across the memory-loaded range. It is
// best-effort: RtlAddFunctionTable reports success only via its boolean
// return, and a false return is logged, not treated as fatal; the image
// still runs, just without unwind support through its code.
//
// 386 images carry no IMAGE_DIRECTORY_ENTRY_EXCEPTION table in practice —
// table-based unwinding is an amd64/arm64 concern — so on that arch this is
// simply a no-op whenever directory.Size is zero, which it always is.
func (m *Module) registerExceptionHandlers() {
	directory := m.headerDirectory(IMAGE_DIRECTORY_ENTRY_EXCEPTION)
	if directory.Size == 0 || directory.VirtualAddress == 0 {
		return
	}
	fns := (*windows.RUNTIME_FUNCTION)(a2p(m.codeBase + uintptr(directory.VirtualAddress)))
	count := uint32(uintptr(directory.Size) / unsafe.Sizeof(*fns))
	if ok := windows.RtlAddFunctionTable(fns, count, m.codeBase); !ok {
		m.logf.printf("memmod: RtlAddFunctionTable failed for module at %#x", m.codeBase)
	}
}
