package memmod_test

import (
	"testing"

	"github.com/darkit/memloader/internal/testpe"
	"github.com/darkit/memloader/memmod"
)

// TestLoadLibraryRunsSyntheticEntryPoint exercises the full pipeline —
// header parsing, allocation, section copying, relocation (a no-op here,
// since the image loads at its own preferred base unless the OS declines
// it), section finalization, exception table registration, and the
// one-shot entry point call — against a minimal hand-built image with no
// imports, exports, relocations, or TLS directory.
func TestLoadLibraryRunsSyntheticEntryPoint(t *testing.T) {
	data := testpe.Build()

	module, err := memmod.LoadLibrary(data)
	if err != nil {
		t.Fatalf("LoadLibrary: %v", err)
	}
	defer module.Free()

	if module.BaseAddr() == 0 {
		t.Fatal("expected a nonzero base address")
	}
	if module.Size() == 0 {
		t.Fatal("expected a nonzero image size")
	}
}

func TestLoadLibraryRejectsGarbage(t *testing.T) {
	if _, err := memmod.LoadLibrary([]byte("not a PE image")); err == nil {
		t.Fatal("expected an error loading a non-PE buffer")
	}
}

func TestLoadLibraryRejectsEmptyInput(t *testing.T) {
	if _, err := memmod.LoadLibrary(nil); err == nil {
		t.Fatal("expected an error loading an empty buffer")
	}
}
