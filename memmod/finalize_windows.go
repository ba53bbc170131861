package memmod

import "golang.org/x/sys/windows"

// protectionFlags is the (executable, readable, writable) cube, indexed
// by the top 3 bits of Characteristics: characteristics >> 29 puts
// IMAGE_SCN_MEM_EXECUTE at bit 0, IMAGE_SCN_MEM_READ at bit 1 and
// IMAGE_SCN_MEM_WRITE at bit 2.
var protectionFlags = [8]uint32{
	windows.PAGE_NOACCESS,          // not writeable, not readable, not executable
	windows.PAGE_EXECUTE,           // not writeable, not readable, executable
	windows.PAGE_READONLY,          // not writeable, readable, not executable
	windows.PAGE_EXECUTE_READ,      // not writeable, readable, executable
	windows.PAGE_WRITECOPY,         // writeable, not readable, not executable
	windows.PAGE_EXECUTE_WRITECOPY, // writeable, not readable, executable
	windows.PAGE_READWRITE,         // writeable, readable, not executable
	windows.PAGE_EXECUTE_READWRITE, // writeable, readable, executable
}

// protectionForCharacteristics derives a Win32 page protection constant
// from a section's Characteristics field, extracted as a standalone pure
// function so it's testable without a live Windows process.
func protectionForCharacteristics(characteristics uint32) uint32 {
	protect := protectionFlags[characteristics>>29]
	if characteristics&IMAGE_SCN_MEM_NOT_CACHED != 0 {
		protect |= windows.PAGE_NOCACHE
	}
	return protect
}

func (m *Module) realSectionSize(section *IMAGE_SECTION_HEADER) uintptr {
	if section.SizeOfRawData != 0 {
		return uintptr(section.SizeOfRawData)
	}
	switch {
	case section.Characteristics&IMAGE_SCN_CNT_INITIALIZED_DATA != 0:
		return uintptr(m.headers.OptionalHeader.SizeOfInitializedData)
	case section.Characteristics&IMAGE_SCN_CNT_UNINITIALIZED_DATA != 0:
		return uintptr(m.headers.OptionalHeader.SizeOfUninitializedData)
	default:
		return 0
	}
}

type sectionFinalizeData struct {
	address         uintptr
	alignedAddress  uintptr
	size            uintptr
	characteristics uint32
	last            bool
}

func (m *Module) finalizeSection(sd *sectionFinalizeData) error {
	if sd.size == 0 {
		return nil
	}
	if sd.characteristics&IMAGE_SCN_MEM_DISCARDABLE != 0 {
		// Only allowed to decommit whole pages.
		if sd.address == sd.alignedAddress && (sd.last || sd.size%uintptr(m.headers.OptionalHeader.SectionAlignment) == 0) {
			windows.VirtualFree(sd.address, sd.size, windows.MEM_DECOMMIT)
		}
		return nil
	}

	protect := protectionForCharacteristics(sd.characteristics)
	var oldProtect uint32
	if err := windows.VirtualProtect(sd.address, sd.size, protect, &oldProtect); err != nil {
		// Non-fatal: log it and leave the section at its committed protection.
		m.logf.printf("memmod: protecting section at %#x failed: %v", sd.address, err)
	}
	return nil
}

// finalizeSections derives final page protections for every section and
// decommits discardable ones. Adjacent sections sharing a page are merged
// into a single protection call with unioned characteristics — two
// sections on the same page cannot be given conflicting protections by two
// overlapping VirtualProtect calls.
func (m *Module) finalizeSections() error {
	sections := m.headers.Sections()
	align := uintptr(m.headers.OptionalHeader.SectionAlignment)

	sd := sectionFinalizeData{}
	sd.address = m.sectionAddrs[0]
	sd.alignedAddress = alignDown(sd.address, align)
	sd.size = m.realSectionSize(&sections[0])
	sections[0].SetVirtualSize(uint32(sd.size))
	sd.characteristics = sections[0].Characteristics

	for i := 1; i < len(sections); i++ {
		address := m.sectionAddrs[i]
		aligned := alignDown(address, align)
		size := m.realSectionSize(&sections[i])
		sections[i].SetVirtualSize(uint32(size))

		if sd.alignedAddress == aligned || sd.address+sd.size > aligned {
			// Shares a page with the previous section.
			if sections[i].Characteristics&IMAGE_SCN_MEM_DISCARDABLE == 0 || sd.characteristics&IMAGE_SCN_MEM_DISCARDABLE == 0 {
				sd.characteristics = (sd.characteristics | sections[i].Characteristics) &^ IMAGE_SCN_MEM_DISCARDABLE
			} else {
				sd.characteristics |= sections[i].Characteristics
			}
			sd.size = address + size - sd.address
			continue
		}

		if err := m.finalizeSection(&sd); err != nil {
			return err
		}
		sd = sectionFinalizeData{address: address, alignedAddress: aligned, size: size, characteristics: sections[i].Characteristics}
	}
	sd.last = true
	return m.finalizeSection(&sd)
}
