package memmod

import (
	"errors"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// addressRange records the live extent of one loaded module so the
// RtlPcToFileHeader hook below can recognize a PC inside it.
type addressRange struct {
	start uintptr
	end   uintptr
}

var (
	loadedAddressRanges         []addressRange
	loadedAddressRangesMu       sync.RWMutex
	haveHookedRtlPcToFileHeader sync.Once
	hookRtlPcToFileHeaderResult error
)

// registerAddressRange makes codeBase..codeBase+size visible to the
// RtlPcToFileHeader hook, and installs the hook itself exactly once per
// process. It must run after the module's final base address is known and
// before any code in it executes, since a TLS callback or the entry point
// could itself unwind the stack.
//
// The hook installation is best-effort: a failure (logged through logf,
// not returned) only means a PC inside this module won't resolve through
// RtlPcToFileHeader, not that the module failed to load. Registering the
// range itself cannot fail.
func registerAddressRange(codeBase, size uintptr, logf Logf) {
	loadedAddressRangesMu.Lock()
	loadedAddressRanges = append(loadedAddressRanges, addressRange{codeBase, codeBase + size})
	loadedAddressRangesMu.Unlock()

	haveHookedRtlPcToFileHeader.Do(func() {
		hookRtlPcToFileHeaderResult = hookRtlPcToFileHeader()
	})
	if hookRtlPcToFileHeaderResult != nil {
		logf.printf("memmod: installing RtlPcToFileHeader hook failed: %v", hookRtlPcToFileHeaderResult)
	}
}

// hookRtlPcToFileHeader patches kernelbase.dll's IAT slot for ntdll's
// RtlPcToFileHeader (the indirection callers through kernelbase go
// through) so that a PC address
// inside a memory-loaded, un-registered-with-the-OS module resolves to that
// module's base instead of failing or misattributing to whatever mapping
// happens to precede it. This only runs once per process, since the patch
// is itself process-global.
func hookRtlPcToFileHeader() error {
	var kernelBase windows.Handle
	if err := windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, windows.StringToUTF16Ptr("kernelbase.dll"), &kernelBase); err != nil {
		return err
	}

	imageBase := unsafe.Pointer(kernelBase)
	dosHeader := (*IMAGE_DOS_HEADER)(imageBase)
	ntHeaders := (*IMAGE_NT_HEADERS)(unsafe.Add(imageBase, dosHeader.E_lfanew))
	importsDirectory := ntHeaders.OptionalHeader.DataDirectory[IMAGE_DIRECTORY_ENTRY_IMPORT]

	importDescriptor := (*IMAGE_IMPORT_DESCRIPTOR)(unsafe.Add(imageBase, importsDirectory.VirtualAddress))
	for ; importDescriptor.Name != 0; importDescriptor = (*IMAGE_IMPORT_DESCRIPTOR)(unsafe.Add(unsafe.Pointer(importDescriptor), unsafe.Sizeof(*importDescriptor))) {
		libraryName := windows.BytePtrToString((*byte)(unsafe.Add(imageBase, importDescriptor.Name)))
		if strings.EqualFold(libraryName, "ntdll.dll") {
			break
		}
	}
	if importDescriptor.Name == 0 {
		return errors.New("memmod: ntdll.dll not found in kernelbase.dll imports")
	}

	originalThunk := (*uintptr)(unsafe.Add(imageBase, importDescriptor.OriginalFirstThunk()))
	thunk := (*uintptr)(unsafe.Add(imageBase, importDescriptor.FirstThunk))
	for ; *originalThunk != 0; originalThunk = (*uintptr)(unsafe.Add(unsafe.Pointer(originalThunk), unsafe.Sizeof(*originalThunk))) {
		if !IMAGE_SNAP_BY_ORDINAL(*originalThunk) {
			function := (*IMAGE_IMPORT_BY_NAME)(unsafe.Add(imageBase, *originalThunk))
			if windows.BytePtrToString(&function.Name[0]) == "RtlPcToFileHeader" {
				break
			}
		}
		thunk = (*uintptr)(unsafe.Add(unsafe.Pointer(thunk), unsafe.Sizeof(*thunk)))
	}
	if *originalThunk == 0 {
		return errors.New("memmod: RtlPcToFileHeader not found in ntdll.dll imports")
	}

	var oldProtect uint32
	if err := windows.VirtualProtect(uintptr(unsafe.Pointer(thunk)), unsafe.Sizeof(*thunk), windows.PAGE_READWRITE, &oldProtect); err != nil {
		return err
	}
	originalRtlPcToFileHeader := *thunk
	*thunk = windows.NewCallback(func(pcValue uintptr, baseOfImage *uintptr) uintptr {
		loadedAddressRangesMu.RLock()
		for i := range loadedAddressRanges {
			if pcValue >= loadedAddressRanges[i].start && pcValue < loadedAddressRanges[i].end {
				loadedAddressRangesMu.RUnlock()
				*baseOfImage = loadedAddressRanges[i].start
				return loadedAddressRanges[i].start
			}
		}
		loadedAddressRangesMu.RUnlock()
		ret, _, _ := syscall.Syscall(originalRtlPcToFileHeader, 2, pcValue, uintptr(unsafe.Pointer(baseOfImage)), 0)
		return ret
	})
	if err := windows.VirtualProtect(uintptr(unsafe.Pointer(thunk)), unsafe.Sizeof(*thunk), oldProtect, &oldProtect); err != nil {
		return err
	}
	return nil
}
