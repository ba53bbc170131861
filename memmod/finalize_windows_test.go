package memmod

import (
	"testing"

	"golang.org/x/sys/windows"
)

func TestProtectionForCharacteristics(t *testing.T) {
	cases := []struct {
		name            string
		characteristics uint32
		want            uint32
	}{
		{"none", 0, windows.PAGE_NOACCESS},
		{"execute only", IMAGE_SCN_MEM_EXECUTE, windows.PAGE_EXECUTE},
		{"read only", IMAGE_SCN_MEM_READ, windows.PAGE_READONLY},
		{"execute+read", IMAGE_SCN_MEM_EXECUTE | IMAGE_SCN_MEM_READ, windows.PAGE_EXECUTE_READ},
		{"write only", IMAGE_SCN_MEM_WRITE, windows.PAGE_WRITECOPY},
		{"execute+write", IMAGE_SCN_MEM_EXECUTE | IMAGE_SCN_MEM_WRITE, windows.PAGE_EXECUTE_WRITECOPY},
		{"read+write", IMAGE_SCN_MEM_READ | IMAGE_SCN_MEM_WRITE, windows.PAGE_READWRITE},
		{"all", IMAGE_SCN_MEM_EXECUTE | IMAGE_SCN_MEM_READ | IMAGE_SCN_MEM_WRITE, windows.PAGE_EXECUTE_READWRITE},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := protectionForCharacteristics(c.characteristics); got != c.want {
				t.Errorf("protectionForCharacteristics(%#x) = %#x, want %#x", c.characteristics, got, c.want)
			}
		})
	}
}

func TestProtectionForCharacteristicsNotCached(t *testing.T) {
	got := protectionForCharacteristics(IMAGE_SCN_MEM_READ | IMAGE_SCN_MEM_NOT_CACHED)
	want := uint32(windows.PAGE_READONLY) | windows.PAGE_NOCACHE
	if got != want {
		t.Errorf("protectionForCharacteristics with IMAGE_SCN_MEM_NOT_CACHED = %#x, want %#x", got, want)
	}
}

func TestRealSectionSize(t *testing.T) {
	m := &Module{headers: &IMAGE_NT_HEADERS{}}
	m.headers.OptionalHeader.SizeOfInitializedData = 0x2000
	m.headers.OptionalHeader.SizeOfUninitializedData = 0x4000

	init := IMAGE_SECTION_HEADER{Characteristics: IMAGE_SCN_CNT_INITIALIZED_DATA}
	if got := m.realSectionSize(&init); got != 0x2000 {
		t.Errorf("realSectionSize(initialized) = %#x, want %#x", got, 0x2000)
	}

	uninit := IMAGE_SECTION_HEADER{Characteristics: IMAGE_SCN_CNT_UNINITIALIZED_DATA}
	if got := m.realSectionSize(&uninit); got != 0x4000 {
		t.Errorf("realSectionSize(uninitialized) = %#x, want %#x", got, 0x4000)
	}

	raw := IMAGE_SECTION_HEADER{SizeOfRawData: 0x123, Characteristics: IMAGE_SCN_CNT_INITIALIZED_DATA}
	if got := m.realSectionSize(&raw); got != 0x123 {
		t.Errorf("realSectionSize(raw data present) = %#x, want %#x", got, 0x123)
	}
}
