// mimild links one or more compiler/codegen object blobs into a single
// MIMI container, without running the C front end — the linker-only entry
// point for build pipelines that already have per-file objects on disk.
//
// Usage:
//
//	mimild [-o out.mimi] obj1 [obj2 ...]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mimic/compiler/codegen"
	"mimic/compiler/linker"
	"mimic/fsys"
)

func main() {
	output := flag.String("o", "", "output .mimi file (default: first input basename + .mimi)")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "usage: mimild [-o out.mimi] obj1 [obj2 ...]\n")
		os.Exit(1)
	}

	var objs []*codegen.Object
	for i := 0; i < flag.NArg(); i++ {
		path := flag.Arg(i)
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mimild: %v\n", err)
			os.Exit(1)
		}
		obj, err := codegen.Decode(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mimild: %s: %v\n", path, err)
			os.Exit(1)
		}
		objs = append(objs, obj)
	}

	mod, err := linker.Link(objs, linker.DefaultOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimild: %v\n", err)
		os.Exit(1)
	}

	if *output == "" {
		base := filepath.Base(flag.Arg(0))
		*output = strings.TrimSuffix(base, filepath.Ext(base)) + ".mimi"
	}

	var ofs fsys.OSFS
	f, err := ofs.Open(*output, fsys.Create)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimild: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	if err := mod.Encode(f); err != nil {
		fmt.Fprintf(os.Stderr, "mimild: encode: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("mimild: %d object(s) → %s (text=%d rodata=%d data=%d bss=%d)\n",
		len(objs), *output, len(mod.Text), len(mod.Rodata), len(mod.Data), mod.BSS)
}
