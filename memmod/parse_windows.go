package memmod

import (
	"fmt"
	"unsafe"
)

// parseHeaders validates the DOS and NT headers of the image at addr/size
// and returns pointers into the caller's original buffer — never the
// loaded copy, which does not exist yet at this stage. Callers keep this
// read-only view of the original headers available for the duration of
// loading, separate from the copy that gets relocated in place.
func parseHeaders(addr, size uintptr) (*IMAGE_DOS_HEADER, *IMAGE_NT_HEADERS, error) {
	if size < unsafe.Sizeof(IMAGE_DOS_HEADER{}) {
		return nil, nil, fmt.Errorf("%w: incomplete DOS header", ErrBadFormat)
	}
	dosHeader := (*IMAGE_DOS_HEADER)(a2p(addr))
	if dosHeader.E_magic != IMAGE_DOS_SIGNATURE {
		return nil, nil, fmt.Errorf("%w: bad DOS signature %#x", ErrBadFormat, dosHeader.E_magic)
	}
	if dosHeader.E_lfanew < 0 || size < uintptr(dosHeader.E_lfanew)+unsafe.Sizeof(IMAGE_NT_HEADERS{}) {
		return nil, nil, fmt.Errorf("%w: incomplete NT headers", ErrBadFormat)
	}
	ntHeader := (*IMAGE_NT_HEADERS)(a2p(addr + uintptr(dosHeader.E_lfanew)))
	if ntHeader.Signature != IMAGE_NT_SIGNATURE {
		return nil, nil, fmt.Errorf("%w: bad NT signature %#x", ErrBadFormat, ntHeader.Signature)
	}
	if ntHeader.FileHeader.Machine != imageFileProcess {
		return nil, nil, fmt.Errorf("%w: image machine type %#x does not match host", ErrBadFormat, ntHeader.FileHeader.Machine)
	}
	if ntHeader.OptionalHeader.SectionAlignment&1 != 0 {
		return nil, nil, fmt.Errorf("%w: unaligned SectionAlignment", ErrBadFormat)
	}
	if size < uintptr(ntHeader.OptionalHeader.SizeOfHeaders) {
		return nil, nil, fmt.Errorf("%w: incomplete headers", ErrBadFormat)
	}

	if err := checkSectionLayout(ntHeader); err != nil {
		return nil, nil, err
	}
	return dosHeader, ntHeader, nil
}

// checkSectionLayout verifies that the furthest section end equals the
// image's declared SizeOfImage once both are rounded up to
// SectionAlignment, rejecting a section table that disagrees with the
// header (in either direction) before any memory is reserved from either.
func checkSectionLayout(ntHeader *IMAGE_NT_HEADERS) error {
	sections := ntHeader.Sections()
	sectionAlign := uintptr(ntHeader.OptionalHeader.SectionAlignment)
	lastEnd := uintptr(0)
	for i := range sections {
		var end uintptr
		if sections[i].SizeOfRawData == 0 {
			end = uintptr(sections[i].VirtualAddress) + sectionAlign
		} else {
			end = uintptr(sections[i].VirtualAddress) + uintptr(sections[i].SizeOfRawData)
		}
		if end > lastEnd {
			lastEnd = end
		}
	}
	declared := alignUp(uintptr(ntHeader.OptionalHeader.SizeOfImage), sectionAlign)
	if declared != alignUp(lastEnd, sectionAlign) {
		return fmt.Errorf("%w: section table disagrees with SizeOfImage", ErrBadFormat)
	}
	return nil
}
