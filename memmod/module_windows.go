package memmod

import "golang.org/x/sys/windows"

// Logf receives diagnostic messages from non-fatal failure paths: section
// finalization's VirtualProtect errors, a failed RtlAddFunctionTable
// registration, and a failed RtlPcToFileHeader hook installation. The zero
// value is a no-op logger.
type Logf func(format string, args ...any)

func (f Logf) printf(format string, args ...any) {
	if f != nil {
		f(format, args...)
	}
}

// Module is the opaque handle to a loaded image. All exported methods are
// safe to call from any goroutine once Load(Library|LibraryEx) returns, but
// the package itself adds no internal locking around a single Module's
// fields: concurrent callers must not call Free concurrently with any
// other method on the same Module.
type Module struct {
	headers      *IMAGE_NT_HEADERS
	codeBase     uintptr
	imageSize    uintptr
	pageSize     uint32
	sectionAddrs []uintptr

	dependencies []uintptr
	callbacks    HostCallbacks
	userdata     uintptr

	isDLL       bool
	isRelocated bool
	initialized bool
	entry       uintptr
	nameExports map[string]uint16

	blockedMemory *addressList
	logf          Logf
}

// BaseAddr returns the address the image was actually loaded at. It need
// not equal the image's preferred ImageBase — the copied header's
// ImageBase field is rewritten to match wherever it actually landed.
func (m *Module) BaseAddr() uintptr { return m.codeBase }

// Size returns the size, in bytes, of the reserved region at BaseAddr.
func (m *Module) Size() uintptr { return m.imageSize }

// Relocated reports whether the image's absolute addresses match where it
// was loaded: true when it loaded at its preferred base or its relocations
// were applied, false only when it loaded elsewhere and carries no
// relocation directory.
func (m *Module) Relocated() bool { return m.isRelocated }

func (m *Module) headerDirectory(idx int) *IMAGE_DATA_DIRECTORY {
	return &m.headers.OptionalHeader.DataDirectory[idx]
}

// Free releases every resource this module owns: it frees every
// dependency handle in append order, releases the image's virtual memory,
// and releases any extra regions blocked out during allocation. There is
// no detach notification to the entry point — this loader's entry-point
// contract is a one-shot call at load time, not a DllMain lifecycle (see
// entry_windows.go). Free(nil) is a no-op, and each resource is cleared
// from the module once released, so a second Free on the same module does
// nothing.
func (m *Module) Free() {
	if m == nil {
		return
	}
	m.initialized = false
	if m.dependencies != nil {
		for _, h := range m.dependencies {
			m.callbacks.Free(h, m.userdata)
		}
		m.dependencies = nil
	}
	if m.codeBase != 0 {
		windows.VirtualFree(m.codeBase, 0, windows.MEM_RELEASE)
		m.codeBase = 0
	}
	if m.blockedMemory != nil {
		m.blockedMemory.free()
		m.blockedMemory = nil
	}
}
