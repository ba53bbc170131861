package memmod

import (
	"fmt"
	"unsafe"
)

// performBaseRelocation walks the .reloc directory as a chain of blocks
// and patches every entry by delta, stopping at a block whose
// VirtualAddress is zero even if the declared directory size would
// suggest more. It reports whether the image now matches its load
// address — false only when delta is nonzero and the image has no
// relocation directory.
func (m *Module) performBaseRelocation(delta uintptr) (relocated bool, err error) {
	directory := m.headerDirectory(IMAGE_DIRECTORY_ENTRY_BASERELOC)
	if directory.Size == 0 {
		return delta == 0, nil
	}

	block := (*IMAGE_BASE_RELOCATION)(a2p(m.codeBase + uintptr(directory.VirtualAddress)))
	for block.VirtualAddress > 0 {
		dest := m.codeBase + uintptr(block.VirtualAddress)
		entries := unsafe.Slice(
			(*uint16)(a2p(uintptr(unsafe.Pointer(block))+unsafe.Sizeof(*block))),
			(uintptr(block.SizeOfBlock)-unsafe.Sizeof(*block))/2)

		for _, entry := range entries {
			relType := entry >> 12
			relOffset := uintptr(entry & 0xfff)
			addr := dest + relOffset

			switch relType {
			case IMAGE_REL_BASED_ABSOLUTE:
				// Padding entry, no-op.

			case IMAGE_REL_BASED_HIGH:
				*(*uint16)(a2p(addr)) += uint16(uint32(delta) >> 16)

			case IMAGE_REL_BASED_LOW:
				*(*uint16)(a2p(addr)) += uint16(delta & 0xffff)

			case IMAGE_REL_BASED_HIGHLOW:
				*(*uint32)(a2p(addr)) += uint32(delta)

			case IMAGE_REL_BASED_DIR64:
				*(*uint64)(a2p(addr)) += uint64(delta)

			case IMAGE_REL_BASED_THUMB_MOV32:
				if err := patchThumbMov32(addr, delta); err != nil {
					return false, err
				}

			default:
				// Any other type (e.g. IMAGE_REL_BASED_HIGHADJ) is silently
				// ignored, matching the original source's `default: break`.
			}
		}

		block = (*IMAGE_BASE_RELOCATION)(a2p(uintptr(unsafe.Pointer(block)) + uintptr(block.SizeOfBlock)))
	}
	return true, nil
}

// patchThumbMov32 patches an ARM Thumb2 MOVW/MOVT instruction pair
// encoding an absolute address. Neither amd64 nor 386 hosts ever produce
// this relocation type, but handling it costs nothing and keeps the
// relocator correct against any image that does use it.
func patchThumbMov32(addr uintptr, delta uintptr) error {
	inst := *(*uint32)(a2p(addr))
	imm16 := ((inst << 1) & 0x0800) + ((inst << 12) & 0xf000) +
		((inst >> 20) & 0x0700) + ((inst >> 16) & 0x00ff)
	if inst&0x8000fbf0 != 0x0000f240 {
		return fmt.Errorf("%w: expected Thumb2 MOVW, got %#08x", ErrBadFormat, inst)
	}
	imm16 += uint32(delta) & 0xffff
	hiDelta := (uint32(delta&0xffff0000) >> 16) + ((imm16 & 0xffff0000) >> 16)
	*(*uint32)(a2p(addr)) = (inst & 0x8f00fbf0) +
		((imm16 >> 1) & 0x0400) +
		((imm16 >> 12) & 0x000f) +
		((imm16 << 20) & 0x70000000) +
		((imm16 << 16) & 0xff0000)
	if hiDelta == 0 {
		return nil
	}
	inst = *(*uint32)(a2p(addr + 4))
	imm16 = ((inst << 1) & 0x0800) + ((inst << 12) & 0xf000) +
		((inst >> 20) & 0x0700) + ((inst >> 16) & 0x00ff)
	if inst&0x8000fbf0 != 0x0000f2c0 {
		return fmt.Errorf("%w: expected Thumb2 MOVT, got %#08x", ErrBadFormat, inst)
	}
	imm16 += hiDelta
	if imm16 > 0xffff {
		return fmt.Errorf("%w: Thumb2 MOVT immediate overflow", ErrBadFormat)
	}
	*(*uint32)(a2p(addr + 4)) = (inst & 0x8f00fbf0) +
		((imm16 >> 1) & 0x0400) +
		((imm16 >> 12) & 0x000f) +
		((imm16 << 20) & 0x70000000) +
		((imm16 << 16) & 0xff0000)
	return nil
}
