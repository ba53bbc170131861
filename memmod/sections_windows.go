package memmod

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// copySections commits and populates every section of the image, storing
// each section's committed address in m.sectionAddrs rather than reusing
// the copied header's 32-bit Misc.PhysicalAddress field as scratch space,
// which would truncate on 64-bit hosts.
func (m *Module) copySections(srcAddr, srcSize uintptr, sectionAlignment uint32) error {
	sections := m.headers.Sections()
	m.sectionAddrs = make([]uintptr, len(sections))
	for i := range sections {
		if sections[i].SizeOfRawData == 0 {
			if sectionAlignment == 0 {
				continue
			}
			dest := m.codeBase + uintptr(sections[i].VirtualAddress)
			if _, err := windows.VirtualAlloc(dest, uintptr(sectionAlignment), windows.MEM_COMMIT, windows.PAGE_READWRITE); err != nil {
				return fmt.Errorf("%w: allocating section %q: %v", ErrOutOfMemory, sections[i].name(), err)
			}
			m.sectionAddrs[i] = dest
			zero := unsafe.Slice((*byte)(a2p(dest)), sectionAlignment)
			for j := range zero {
				zero[j] = 0
			}
			continue
		}

		if srcSize < uintptr(sections[i].PointerToRawData)+uintptr(sections[i].SizeOfRawData) {
			return fmt.Errorf("%w: incomplete section %q", ErrBadFormat, sections[i].name())
		}

		dest := m.codeBase + uintptr(sections[i].VirtualAddress)
		if _, err := windows.VirtualAlloc(dest, uintptr(sections[i].SizeOfRawData), windows.MEM_COMMIT, windows.PAGE_READWRITE); err != nil {
			return fmt.Errorf("%w: allocating section %q: %v", ErrOutOfMemory, sections[i].name(), err)
		}
		memcpy(dest, srcAddr+uintptr(sections[i].PointerToRawData), uintptr(sections[i].SizeOfRawData))
		m.sectionAddrs[i] = dest
	}
	return nil
}
