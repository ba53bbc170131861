// Package testpe builds synthetic PE images in memory for use in
// memmod's tests, so the full load pipeline can be exercised without
// shipping a real external binary into the module.
package testpe

import (
	"unsafe"

	"github.com/darkit/memloader/memmod"
)

const (
	sectionAlign = 0x1000
	fileAlign    = 0x200
	imageBase    = 0x10000000

	imageSCNCntCode     = 0x00000020
	imageSCNMemExecute  = 0x20000000
	imageSCNMemRead     = 0x40000000
	imageFileExecutable = 0x0002
)

// EntryReturnValue is the value the synthetic entry point places in its
// return register; Build's caller can assert a successful load actually
// ran this code rather than merely accepting a zero AddressOfEntryPoint.
const EntryReturnValue = 1

// entryCode is "mov eax, 1; ret" — valid machine code under both the
// cdecl (x86) and Microsoft x64 calling conventions, since it reads no
// arguments and returns immediately. It deliberately avoids any
// instruction whose encoding differs between GOARCH=386 and
// GOARCH=amd64, so the same byte sequence works as the test fixture on
// either host architecture memmod supports.
var entryCode = []byte{0xB8, 0x01, 0x00, 0x00, 0x00, 0xC3}

func alignUp(v, a uintptr) uintptr { return (v + a - 1) &^ (a - 1) }

// Build assembles a minimal, valid, single-section PE image whose entry
// point runs entryCode and whose export/import/relocation/TLS
// directories are all empty, exercising the Header Parser, Virtual
// Region Allocator, Section Copier, Section Finalizer, Exception Table
// Registrar, and PC-resolution stages of the pipeline without requiring
// any dependent library resolution.
func Build() []byte {
	headerSize := unsafe.Sizeof(memmod.IMAGE_DOS_HEADER{}) +
		unsafe.Sizeof(memmod.IMAGE_NT_HEADERS{}) +
		unsafe.Sizeof(memmod.IMAGE_SECTION_HEADER{})
	sizeOfHeaders := alignUp(headerSize, fileAlign)
	sizeOfRawData := alignUp(uintptr(len(entryCode)), fileAlign)

	buf := make([]byte, sizeOfHeaders+sizeOfRawData)
	addr := uintptr(unsafe.Pointer(&buf[0]))

	dos := (*memmod.IMAGE_DOS_HEADER)(unsafe.Pointer(addr))
	dos.E_magic = memmod.IMAGE_DOS_SIGNATURE
	dos.E_lfanew = int32(unsafe.Sizeof(memmod.IMAGE_DOS_HEADER{}))

	nt := (*memmod.IMAGE_NT_HEADERS)(unsafe.Pointer(addr + uintptr(dos.E_lfanew)))
	nt.Signature = memmod.IMAGE_NT_SIGNATURE
	nt.FileHeader.Machine = memmod.HostMachineType()
	nt.FileHeader.NumberOfSections = 1
	nt.FileHeader.SizeOfOptionalHeader = uint16(unsafe.Sizeof(nt.OptionalHeader))
	nt.FileHeader.Characteristics = imageFileExecutable

	sectionVA := alignUp(sizeOfHeaders, sectionAlign)
	nt.OptionalHeader.SectionAlignment = sectionAlign
	nt.OptionalHeader.FileAlignment = fileAlign
	nt.OptionalHeader.SizeOfHeaders = uint32(sizeOfHeaders)
	nt.OptionalHeader.SizeOfImage = uint32(alignUp(sectionVA+uintptr(len(entryCode)), sectionAlign))
	nt.OptionalHeader.ImageBase = imageBase
	nt.OptionalHeader.AddressOfEntryPoint = uint32(sectionVA)

	sections := nt.Sections()
	copy(sections[0].Name[:], ".text")
	sections[0].VirtualAddress = uint32(sectionVA)
	sections[0].SizeOfRawData = uint32(len(entryCode))
	sections[0].PointerToRawData = uint32(sizeOfHeaders)
	sections[0].Characteristics = imageSCNCntCode | imageSCNMemExecute | imageSCNMemRead

	copy(buf[sizeOfHeaders:], entryCode)
	return buf
}
