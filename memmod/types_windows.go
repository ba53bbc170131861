package memmod

import "unsafe"

// Format signatures and directory/characteristic constants, named exactly
// as the Microsoft PE/COFF format documentation names them (IMAGE_* rather
// than an idiomatic Go rename) since this is data readers will
// cross-reference directly against that documentation.
const (
	IMAGE_DOS_SIGNATURE = 0x5A4D     // "MZ"
	IMAGE_NT_SIGNATURE  = 0x00004550 // "PE\0\0"

	IMAGE_FILE_MACHINE_I386  = 0x014c
	IMAGE_FILE_MACHINE_AMD64 = 0x8664

	IMAGE_FILE_DLL = 0x2000

	IMAGE_NUMBEROF_DIRECTORY_ENTRIES = 16

	IMAGE_DIRECTORY_ENTRY_EXPORT    = 0
	IMAGE_DIRECTORY_ENTRY_IMPORT    = 1
	IMAGE_DIRECTORY_ENTRY_EXCEPTION = 3
	IMAGE_DIRECTORY_ENTRY_BASERELOC = 5
	IMAGE_DIRECTORY_ENTRY_TLS       = 9

	IMAGE_SCN_CNT_INITIALIZED_DATA   = 0x00000040
	IMAGE_SCN_CNT_UNINITIALIZED_DATA = 0x00000080
	IMAGE_SCN_MEM_DISCARDABLE        = 0x02000000
	IMAGE_SCN_MEM_NOT_CACHED         = 0x04000000
	IMAGE_SCN_MEM_EXECUTE            = 0x20000000
	IMAGE_SCN_MEM_READ               = 0x40000000
	IMAGE_SCN_MEM_WRITE              = 0x80000000

	IMAGE_REL_BASED_ABSOLUTE    = 0
	IMAGE_REL_BASED_HIGH        = 1
	IMAGE_REL_BASED_LOW         = 2
	IMAGE_REL_BASED_HIGHLOW     = 3
	IMAGE_REL_BASED_THUMB_MOV32 = 7
	IMAGE_REL_BASED_DIR64       = 10

	IMAGE_ORDINAL_FLAG32 = 0x80000000
	IMAGE_ORDINAL_FLAG64 = 0x8000000000000000

	DLL_PROCESS_ATTACH = 1
	DLL_PROCESS_DETACH = 0
)

type IMAGE_DOS_HEADER struct {
	E_magic    uint16
	E_cblp     uint16
	E_cp       uint16
	E_crlc     uint16
	E_cparhdr  uint16
	E_minalloc uint16
	E_maxalloc uint16
	E_ss       uint16
	E_sp       uint16
	E_csum     uint16
	E_ip       uint16
	E_cs       uint16
	E_lfarlc   uint16
	E_ovno     uint16
	E_res      [4]uint16
	E_oemid    uint16
	E_oeminfo  uint16
	E_res2     [10]uint16
	E_lfanew   int32
}

type IMAGE_FILE_HEADER struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

type IMAGE_DATA_DIRECTORY struct {
	VirtualAddress uint32
	Size           uint32
}

// IMAGE_SECTION_HEADER's Misc field is a union of PhysicalAddress and
// VirtualSize in the real format. This loader never reuses it as scratch
// storage for a committed address (see Module.sectionAddrs); the only use
// it makes of Misc is the legitimate VirtualSize accessor.
type IMAGE_SECTION_HEADER struct {
	Name                 [8]byte
	Misc                 uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

func (s *IMAGE_SECTION_HEADER) VirtualSize() uint32     { return s.Misc }
func (s *IMAGE_SECTION_HEADER) SetVirtualSize(v uint32) { s.Misc = v }

func (s *IMAGE_SECTION_HEADER) name() string {
	n := s.Name[:]
	for i, b := range n {
		if b == 0 {
			n = n[:i]
			break
		}
	}
	return string(n)
}

// IMAGE_IMPORT_DESCRIPTOR's first field is a union of Characteristics (only
// meaningful for object files) and OriginalFirstThunk (the hint-name-table
// RVA, meaningful for images). Images always use the latter.
type IMAGE_IMPORT_DESCRIPTOR struct {
	originalFirstThunkOrCharacteristics uint32
	TimeDateStamp                       uint32
	ForwarderChain                      uint32
	Name                                uint32
	FirstThunk                          uint32
}

func (d *IMAGE_IMPORT_DESCRIPTOR) OriginalFirstThunk() uint32 {
	return d.originalFirstThunkOrCharacteristics
}

// IMAGE_IMPORT_BY_NAME is variable-length; Name is a flexible array member
// in C, modeled here as a 1-byte placeholder accessed through a raw pointer
// rather than a Go slice (see imports_windows.go).
type IMAGE_IMPORT_BY_NAME struct {
	Hint uint16
	Name [1]byte
}

type IMAGE_BASE_RELOCATION struct {
	VirtualAddress uint32
	SizeOfBlock    uint32
}

// IMAGE_TLS_DIRECTORY's fields are all pointer-width in the real format
// (32-bit images use 32-bit absolute VAs, 64-bit images use 64-bit VAs);
// uintptr automatically picks up the right width per GOARCH since this
// loader only ever runs against host-matching-bitness images.
type IMAGE_TLS_DIRECTORY struct {
	StartAddressOfRawData uintptr
	EndAddressOfRawData   uintptr
	AddressOfIndex        uintptr
	AddressOfCallbacks    uintptr
	SizeOfZeroFill        uint32
	Characteristics       uint32
}

type IMAGE_EXPORT_DIRECTORY struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

func IMAGE_SNAP_BY_ORDINAL(thunk uintptr) bool {
	return thunk&ordinalFlag != 0
}

func IMAGE_ORDINAL(thunk uintptr) uint16 {
	return uint16(thunk & 0xffff)
}

// Sections returns the section header table immediately following the
// optional header, located via FileHeader.SizeOfOptionalHeader rather than
// sizeof(OptionalHeader) so that images with a nonstandard number of data
// directories are still walked correctly (the same technique as the
// IMAGE_FIRST_SECTION macro in winnt.h).
func (nt *IMAGE_NT_HEADERS) Sections() []IMAGE_SECTION_HEADER {
	base := uintptr(unsafe.Pointer(nt)) + unsafe.Sizeof(nt.Signature) + unsafe.Sizeof(nt.FileHeader) + uintptr(nt.FileHeader.SizeOfOptionalHeader)
	return unsafe.Slice((*IMAGE_SECTION_HEADER)(a2p(base)), nt.FileHeader.NumberOfSections)
}
