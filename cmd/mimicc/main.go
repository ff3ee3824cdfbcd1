// mimicc compiles one or more C source files into a single MIMI container.
//
// Usage:
//
//	mimicc [-o out.mimi] file1.c [file2.c ...]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mimic/compiler/codegen"
	"mimic/compiler/linker"
	"mimic/compiler/parser"
	"mimic/fsys"
)

func main() {
	output := flag.String("o", "", "output .mimi file (default: first input basename + .mimi)")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "usage: mimicc [-o out.mimi] file1.c [file2.c ...]\n")
		os.Exit(1)
	}

	var objs []*codegen.Object
	for i := 0; i < flag.NArg(); i++ {
		path := flag.Arg(i)
		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mimicc: %v\n", err)
			os.Exit(1)
		}

		p := parser.New(string(src))
		tree := p.Parse()
		if errs := p.Errors(); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintf(os.Stderr, "mimicc: %s: %v\n", path, e)
			}
			os.Exit(1)
		}

		g := codegen.New(tree, p.Strings())
		obj := g.Emit()
		if errs := g.Errors(); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintf(os.Stderr, "mimicc: %s: %v\n", path, e)
			}
			os.Exit(1)
		}
		objs = append(objs, obj)
	}

	mod, err := linker.Link(objs, linker.DefaultOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimicc: %v\n", err)
		os.Exit(1)
	}

	if *output == "" {
		base := filepath.Base(flag.Arg(0))
		*output = strings.TrimSuffix(base, filepath.Ext(base)) + ".mimi"
	}

	var ofs fsys.OSFS
	f, err := ofs.Open(*output, fsys.Create)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimicc: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	if err := mod.Encode(f); err != nil {
		fmt.Fprintf(os.Stderr, "mimicc: encode: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("mimicc: %d file(s) → %s (text=%d rodata=%d data=%d bss=%d)\n",
		flag.NArg(), *output, len(mod.Text), len(mod.Rodata), len(mod.Data), mod.BSS)
}
