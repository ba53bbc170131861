package memmod

import "syscall"

// invokeEntry calls the loaded image's entry point under its private,
// non-standard calling convention: a single opaque argument, never the
// three-argument DllMain(HINSTANCE, DWORD, LPVOID) signature a
// conventionally loaded DLL would receive. There is no detach notification
// under this contract: the image gets exactly one call, at load time, and
// none at teardown.
func invokeEntry(entry uintptr, userdata uintptr) uintptr {
	r0, _, _ := syscall.Syscall(entry, 1, userdata, 0, 0)
	return r0
}

// runEntryPoint calls the entry point exactly once, after section
// finalization and the optional TLS callback run, with the caller's
// userdata. A zero return is treated as initialization failure
// (ErrDLLInitFailed), unlike the original source, which never checks the
// return value at all.
func (m *Module) runEntryPoint(userdata uintptr) error {
	if m.headers.OptionalHeader.AddressOfEntryPoint == 0 {
		return nil
	}
	m.entry = m.codeBase + uintptr(m.headers.OptionalHeader.AddressOfEntryPoint)
	r0 := invokeEntry(m.entry, userdata)
	if r0 == 0 {
		return ErrDLLInitFailed
	}
	m.initialized = true
	return nil
}

// invokeTLSCallback calls a single PIMAGE_TLS_CALLBACK, which does follow
// the conventional (DllHandle, Reason, Reserved) shape — this is a real
// Windows ABI contract the TLS directory documents, distinct from this
// loader's private single-argument entry point above.
func invokeTLSCallback(callback, dllHandle uintptr, reason uintptr) {
	syscall.Syscall(callback, 3, dllHandle, reason, 0)
}
