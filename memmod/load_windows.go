package memmod

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// LoadOptions controls the optional stages of LoadLibraryEx. The zero value
// runs the loader with TLS callbacks disabled and a nil Logf (silent
// protection-error logging), resolving dependencies through DefaultCallbacks
// with no userdata.
type LoadOptions struct {
	// Callbacks resolves the image's dependent libraries and their
	// exports. Nil selects DefaultCallbacks, the OS loader restricted to
	// the System32 search order.
	Callbacks HostCallbacks

	// Userdata is threaded through every HostCallbacks call unmodified
	// and through the entry point call as its sole argument.
	Userdata uintptr

	// RunTLSCallbacks executes the image's TLS callback array (opt-in;
	// see tls_windows.go).
	RunTLSCallbacks bool

	// Logf receives non-fatal diagnostics. Nil discards them.
	Logf Logf
}

// LoadLibrary loads the PE image in data into a freshly reserved region of
// this process's address space and runs it with default options (no TLS
// callbacks, OS-resolved dependencies, no userdata). It is a convenience
// wrapper around LoadLibraryEx.
func LoadLibrary(data []byte) (*Module, error) {
	return LoadLibraryEx(data, LoadOptions{})
}

// LoadLibraryEx loads the PE image in data, running every stage of the
// pipeline in order: header parsing, virtual region allocation, section
// copying, base relocation, import binding, section finalization,
// exception table registration, PC-resolution hooking, the optional TLS
// callback run, and finally the one-shot entry point call.
//
// On any failure, every resource acquired so far is released via
// Module.Free before returning — unlike the original source, a successful
// load returns the live module rather than also tearing it down.
func LoadLibraryEx(data []byte, opts LoadOptions) (module *Module, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrBadFormat)
	}
	addr := uintptr(unsafe.Pointer(&data[0]))
	size := uintptr(len(data))

	dosHeader, oldHeader, err := parseHeaders(addr, size)
	if err != nil {
		return nil, err
	}

	callbacks := opts.Callbacks
	if callbacks == nil {
		callbacks = DefaultCallbacks
	}

	var sysInfo windows.SystemInfo
	windows.GetSystemInfo(&sysInfo)

	module = &Module{
		isDLL:     oldHeader.FileHeader.Characteristics&IMAGE_FILE_DLL != 0,
		callbacks: callbacks,
		userdata:  opts.Userdata,
		pageSize:  sysInfo.PageSize,
		logf:      opts.Logf,
	}
	// Keep a reference the deferred teardown can use: every failure path
	// returns nil for module, which clears the named result before this runs.
	loaded := module
	defer func() {
		if err != nil {
			loaded.Free()
			module = nil
		}
	}()

	alignedImageSize := alignUp(uintptr(oldHeader.OptionalHeader.SizeOfImage), uintptr(oldHeader.OptionalHeader.SectionAlignment))

	module.codeBase, module.blockedMemory, err = allocateRegion(oldHeader.OptionalHeader.ImageBase, alignedImageSize)
	if err != nil {
		return nil, err
	}
	module.imageSize = alignedImageSize

	headers, err := commitHeaders(module.codeBase, addr, uintptr(oldHeader.OptionalHeader.SizeOfHeaders))
	if err != nil {
		return nil, err
	}
	module.headers = (*IMAGE_NT_HEADERS)(a2p(headers + uintptr(dosHeader.E_lfanew)))
	module.headers.OptionalHeader.ImageBase = module.codeBase

	if err = module.copySections(addr, size, oldHeader.OptionalHeader.SectionAlignment); err != nil {
		return nil, fmt.Errorf("copying sections: %w", err)
	}

	locationDelta := module.headers.OptionalHeader.ImageBase - oldHeader.OptionalHeader.ImageBase
	if locationDelta != 0 {
		module.isRelocated, err = module.performBaseRelocation(locationDelta)
	} else {
		module.isRelocated = true
	}
	if err != nil {
		return nil, fmt.Errorf("relocating module: %w", err)
	}

	if err = module.buildImportTable(); err != nil {
		return nil, fmt.Errorf("binding imports: %w", err)
	}

	if err = module.finalizeSections(); err != nil {
		return nil, fmt.Errorf("finalizing sections: %w", err)
	}

	module.registerExceptionHandlers()

	registerAddressRange(module.codeBase, module.imageSize, module.logf)

	if opts.RunTLSCallbacks {
		module.executeTLS()
	}

	if err = module.runEntryPoint(opts.Userdata); err != nil {
		return nil, err
	}

	module.buildNameExports()
	return module, nil
}
