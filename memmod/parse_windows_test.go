package memmod

import (
	"errors"
	"testing"
	"unsafe"
)

// buildMinimalImage lays out a DOS header, NT headers, and a single
// section header back to back in a byte slice, with every size field
// consistent with the section table — the smallest input parseHeaders is
// expected to accept.
func buildMinimalImage(t *testing.T) []byte {
	t.Helper()
	const sectionAlign = 0x1000
	const fileAlign = 0x200

	headerSize := unsafe.Sizeof(IMAGE_DOS_HEADER{}) + unsafe.Sizeof(IMAGE_NT_HEADERS{}) + unsafe.Sizeof(IMAGE_SECTION_HEADER{})
	sizeOfHeaders := alignUp(headerSize, fileAlign)
	buf := make([]byte, sizeOfHeaders+sectionAlign)

	addr := uintptr(unsafe.Pointer(&buf[0]))
	dos := (*IMAGE_DOS_HEADER)(a2p(addr))
	dos.E_magic = IMAGE_DOS_SIGNATURE
	dos.E_lfanew = int32(unsafe.Sizeof(IMAGE_DOS_HEADER{}))

	nt := (*IMAGE_NT_HEADERS)(a2p(addr + uintptr(dos.E_lfanew)))
	nt.Signature = IMAGE_NT_SIGNATURE
	nt.FileHeader.Machine = imageFileProcess
	nt.FileHeader.NumberOfSections = 1
	nt.FileHeader.SizeOfOptionalHeader = uint16(unsafe.Sizeof(IMAGE_OPTIONAL_HEADER{}))
	nt.OptionalHeader.SectionAlignment = sectionAlign
	nt.OptionalHeader.FileAlignment = fileAlign
	nt.OptionalHeader.SizeOfHeaders = uint32(sizeOfHeaders)
	nt.OptionalHeader.SizeOfImage = uint32(alignUp(sizeOfHeaders+sectionAlign, sectionAlign))
	nt.OptionalHeader.ImageBase = 0x10000000

	sections := nt.Sections()
	sections[0].VirtualAddress = uint32(alignUp(sizeOfHeaders, sectionAlign))
	sections[0].SizeOfRawData = sectionAlign

	return buf
}

func TestParseHeadersAcceptsWellFormedImage(t *testing.T) {
	buf := buildMinimalImage(t)
	dos, nt, err := parseHeaders(uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if err != nil {
		t.Fatalf("parseHeaders: %v", err)
	}
	if dos.E_magic != IMAGE_DOS_SIGNATURE {
		t.Errorf("dos.E_magic = %#x", dos.E_magic)
	}
	if nt.FileHeader.Machine != imageFileProcess {
		t.Errorf("nt.FileHeader.Machine = %#x, want %#x", nt.FileHeader.Machine, imageFileProcess)
	}
}

func TestParseHeadersRejectsBadDOSSignature(t *testing.T) {
	buf := buildMinimalImage(t)
	dos := (*IMAGE_DOS_HEADER)(a2p(uintptr(unsafe.Pointer(&buf[0]))))
	dos.E_magic = 0x1234

	if _, _, err := parseHeaders(uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf))); !errors.Is(err, ErrBadFormat) {
		t.Fatalf("parseHeaders error = %v, want ErrBadFormat", err)
	}
}

func TestParseHeadersRejectsWrongMachine(t *testing.T) {
	buf := buildMinimalImage(t)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	dos := (*IMAGE_DOS_HEADER)(a2p(addr))
	nt := (*IMAGE_NT_HEADERS)(a2p(addr + uintptr(dos.E_lfanew)))
	nt.FileHeader.Machine = 0xdead

	if _, _, err := parseHeaders(addr, uintptr(len(buf))); !errors.Is(err, ErrBadFormat) {
		t.Fatalf("parseHeaders error = %v, want ErrBadFormat", err)
	}
}

func TestParseHeadersRejectsInconsistentSectionTable(t *testing.T) {
	buf := buildMinimalImage(t)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	dos := (*IMAGE_DOS_HEADER)(a2p(addr))
	nt := (*IMAGE_NT_HEADERS)(a2p(addr + uintptr(dos.E_lfanew)))
	nt.OptionalHeader.SizeOfImage *= 2 // no longer matches the section table

	if _, _, err := parseHeaders(addr, uintptr(len(buf))); !errors.Is(err, ErrBadFormat) {
		t.Fatalf("parseHeaders error = %v, want ErrBadFormat", err)
	}
}

func TestParseHeadersRejectsTruncatedBuffer(t *testing.T) {
	buf := buildMinimalImage(t)
	if _, _, err := parseHeaders(uintptr(unsafe.Pointer(&buf[0])), 4); !errors.Is(err, ErrBadFormat) {
		t.Fatalf("parseHeaders error = %v, want ErrBadFormat", err)
	}
}
