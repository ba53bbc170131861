//go:build windows

// Command memload-demo loads a PE image from disk into this process's own
// address space and runs its entry point, using the OS loader to resolve
// any dependent libraries.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/darkit/memloader/memmod"
)

func main() {
	runTLS := flag.Bool("run-tls", false, "execute the image's TLS callbacks before its entry point")
	flag.Parse()

	path := flag.Arg(0)
	if path == "" {
		path = os.Getenv("MEMLOAD_IMAGE")
	}
	if path == "" {
		log.Fatal("usage: memload-demo [-run-tls] <path-to-pe-image> (or set MEMLOAD_IMAGE)")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("reading %s: %v", path, err)
	}

	opts := memmod.LoadOptions{
		RunTLSCallbacks: *runTLS,
		Logf:            func(format string, args ...any) { fmt.Fprintf(os.Stderr, format+"\n", args...) },
	}

	module, err := memmod.LoadLibraryEx(data, opts)
	if err != nil {
		log.Fatalf("loading %s: %v", path, err)
	}
	defer module.Free()

	fmt.Printf("loaded %s at %#x (%d bytes), relocated=%v\n", path, module.BaseAddr(), module.Size(), module.Relocated())
}
