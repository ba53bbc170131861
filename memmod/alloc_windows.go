package memmod

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// allocateRegion reserves and commits size bytes, preferring preferredBase
// (the image's declared ImageBase), falling back to an OS-chosen address
// if that range is occupied or disallowed. On 64-bit hosts it additionally
// re-rolls the allocation if the region straddles a 4GB boundary, which
// some code relying on 32-bit-truncated absolute addresses cannot
// tolerate.
func allocateRegion(preferredBase, size uintptr) (base uintptr, blocked *addressList, err error) {
	base, err = windows.VirtualAlloc(preferredBase, size, windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		base, err = windows.VirtualAlloc(0, size, windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
		}
	}

	base, blocked, err = avoid4GBBoundary(base, size, blocked)
	if err != nil {
		blocked.free()
		windows.VirtualFree(base, 0, windows.MEM_RELEASE)
		return 0, nil, err
	}
	return base, blocked, nil
}

// avoid4GBBoundary retries an allocation that straddles a 4GB boundary at
// an OS-chosen address, up to eight times. Each straddling region stays
// allocated, chained onto blocked, so the allocator cannot hand back the
// same range again; the caller releases the whole list (Module.Free does).
// After the last attempt the final allocation is returned even if it still
// straddles a boundary.
func avoid4GBBoundary(base, size uintptr, blocked *addressList) (uintptr, *addressList, error) {
	const boundary = uintptr(1) << 32
	for attempt := 0; attempt < 8; attempt++ {
		if base/boundary == (base+size-1)/boundary {
			return base, blocked, nil
		}
		blocked = &addressList{next: blocked, address: base}
		next, err := windows.VirtualAlloc(0, size, windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
		if err != nil {
			return 0, blocked, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
		}
		base = next
	}
	return base, blocked, nil
}

// commitHeaders commits and copies the first sizeOfHeaders bytes of the
// image into the already-reserved region at base.
func commitHeaders(base, srcAddr uintptr, sizeOfHeaders uintptr) (uintptr, error) {
	headers, err := windows.VirtualAlloc(base, sizeOfHeaders, windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	memcpy(headers, srcAddr, sizeOfHeaders)
	return headers, nil
}
