package memmod

import (
	"testing"
	"unsafe"
)

func TestPerformBaseRelocationHighLow(t *testing.T) {
	buf := make([]byte, 0x2000)
	codeBase := uintptr(unsafe.Pointer(&buf[0]))

	const relocTableOffset = 0x100
	const pageRVA = 0x1000
	const entryOffset = 0x10

	block := (*IMAGE_BASE_RELOCATION)(a2p(codeBase + relocTableOffset))
	block.VirtualAddress = pageRVA
	block.SizeOfBlock = uint32(unsafe.Sizeof(IMAGE_BASE_RELOCATION{})) + 4

	entries := unsafe.Slice((*uint16)(a2p(codeBase+relocTableOffset+unsafe.Sizeof(IMAGE_BASE_RELOCATION{}))), 2)
	entries[0] = uint16(IMAGE_REL_BASED_HIGHLOW<<12) | entryOffset
	entries[1] = uint16(IMAGE_REL_BASED_ABSOLUTE << 12)

	terminator := (*IMAGE_BASE_RELOCATION)(a2p(codeBase + relocTableOffset + uintptr(block.SizeOfBlock)))
	terminator.VirtualAddress = 0
	terminator.SizeOfBlock = 0

	target := (*uint32)(a2p(codeBase + pageRVA + entryOffset))
	*target = 0x00400000

	m := &Module{codeBase: codeBase, headers: &IMAGE_NT_HEADERS{}}
	m.headers.OptionalHeader.DataDirectory[IMAGE_DIRECTORY_ENTRY_BASERELOC] = IMAGE_DATA_DIRECTORY{
		VirtualAddress: relocTableOffset,
		Size:           block.SizeOfBlock,
	}

	relocated, err := m.performBaseRelocation(0x1000)
	if err != nil {
		t.Fatalf("performBaseRelocation: %v", err)
	}
	if !relocated {
		t.Fatal("expected relocated=true")
	}
	if got := *target; got != 0x00401000 {
		t.Errorf("relocated value = %#x, want %#x", got, 0x00401000)
	}
}

func TestPerformBaseRelocationNoDirectory(t *testing.T) {
	m := &Module{headers: &IMAGE_NT_HEADERS{}}

	relocated, err := m.performBaseRelocation(0)
	if err != nil {
		t.Fatalf("performBaseRelocation: %v", err)
	}
	if !relocated {
		t.Error("expected relocated=true when delta is zero and there is no reloc directory")
	}

	relocated, err = m.performBaseRelocation(0x1000)
	if err != nil {
		t.Fatalf("performBaseRelocation: %v", err)
	}
	if relocated {
		t.Error("expected relocated=false when delta is nonzero but there is no reloc directory")
	}
}

func TestPerformBaseRelocationIgnoresUnknownType(t *testing.T) {
	buf := make([]byte, 0x100)
	codeBase := uintptr(unsafe.Pointer(&buf[0]))

	block := (*IMAGE_BASE_RELOCATION)(a2p(codeBase))
	block.VirtualAddress = 0x10
	block.SizeOfBlock = uint32(unsafe.Sizeof(IMAGE_BASE_RELOCATION{})) + 2

	entries := unsafe.Slice((*uint16)(a2p(codeBase+unsafe.Sizeof(IMAGE_BASE_RELOCATION{}))), 1)
	entries[0] = uint16(15 << 12) // undefined relocation type

	target := (*uint32)(a2p(codeBase + 0x10))
	*target = 0x12345678

	m := &Module{codeBase: codeBase, headers: &IMAGE_NT_HEADERS{}}
	m.headers.OptionalHeader.DataDirectory[IMAGE_DIRECTORY_ENTRY_BASERELOC] = IMAGE_DATA_DIRECTORY{
		VirtualAddress: 0,
		Size:           block.SizeOfBlock,
	}

	relocated, err := m.performBaseRelocation(0x1000)
	if err != nil {
		t.Fatalf("performBaseRelocation: %v", err)
	}
	if !relocated {
		t.Error("expected relocated=true")
	}
	if got := *target; got != 0x12345678 {
		t.Errorf("entry with unrecognized type was patched: got %#x, want unchanged %#x", got, 0x12345678)
	}
}
