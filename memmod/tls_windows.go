package memmod

import "unsafe"

// executeTLS runs every callback in the image's TLS callback array, passing
// the loaded base, DLL_PROCESS_ATTACH, and nil as the reserved parameter —
// the same three arguments the OS loader itself would pass. It only runs at
// all when the caller opted in via LoadOptions.RunTLSCallbacks: a
// memory-loaded image is frequently used for code that has no interest in,
// and no well-defined behavior for, process-wide TLS semantics it was never
// actually attached to as a DLL.
func (m *Module) executeTLS() {
	directory := m.headerDirectory(IMAGE_DIRECTORY_ENTRY_TLS)
	if directory.VirtualAddress == 0 {
		return
	}

	tls := (*IMAGE_TLS_DIRECTORY)(a2p(m.codeBase + uintptr(directory.VirtualAddress)))
	if tls.AddressOfCallbacks == 0 {
		return
	}

	callbacks := unsafe.Slice((*uintptr)(a2p(tls.AddressOfCallbacks)), tlsCallbackCount(tls.AddressOfCallbacks))
	for _, cb := range callbacks {
		if cb == 0 {
			break
		}
		invokeTLSCallback(cb, m.codeBase, DLL_PROCESS_ATTACH)
	}
}

func tlsCallbackCount(start uintptr) int {
	n := 0
	for *(*uintptr)(a2p(start + uintptr(n)*unsafe.Sizeof(uintptr(0)))) != 0 {
		n++
	}
	return n + 1
}
