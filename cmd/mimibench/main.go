// mimibench measures mimicc's own compile-time cost: it compiles a
// directory of .c fixtures N times and reports median/stddev wall-clock
// per run, the same repeated-trial statistics
// CongLeSolutionX-go_community's misc/lockcheck pulls go-moremath/stats in
// for.
//
// Usage:
//
//	mimibench [-n 20] fixtures_dir
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aclements/go-moremath/stats"

	"mimic/compiler/codegen"
	"mimic/compiler/linker"
	"mimic/compiler/parser"
)

func main() {
	n := flag.Int("n", 20, "number of compile iterations")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: mimibench [-n 20] fixtures_dir\n")
		os.Exit(1)
	}
	dir := flag.Arg(0)

	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimibench: %v\n", err)
		os.Exit(1)
	}

	var sources [][]byte
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".c" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mimibench: %v\n", err)
			os.Exit(1)
		}
		sources = append(sources, src)
		names = append(names, path)
	}
	if len(sources) == 0 {
		fmt.Fprintf(os.Stderr, "mimibench: no .c fixtures found in %s\n", dir)
		os.Exit(1)
	}
	sort.Strings(names)

	samples := make([]float64, 0, *n)
	for i := 0; i < *n; i++ {
		start := time.Now()
		if err := compileAll(sources); err != nil {
			fmt.Fprintf(os.Stderr, "mimibench: run %d: %v\n", i, err)
			os.Exit(1)
		}
		samples = append(samples, time.Since(start).Seconds()*1e3)
	}

	sample := &stats.Sample{Xs: samples}
	fmt.Printf("mimibench: %d fixture(s), %d run(s)\n", len(sources), *n)
	fmt.Printf("  median: %.3f ms\n", sample.Quantile(0.5))
	fmt.Printf("  mean:   %.3f ms\n", sample.Mean())
	fmt.Printf("  stddev: %.3f ms\n", sample.StdDev())
}

// compileAll runs the full lex/parse/codegen/link pipeline once over every
// fixture, the same sequence mimicc's main does for real input.
func compileAll(sources [][]byte) error {
	var objs []*codegen.Object
	for _, src := range sources {
		p := parser.New(string(src))
		tree := p.Parse()
		if errs := p.Errors(); len(errs) > 0 {
			return fmt.Errorf("parse: %v", errs[0])
		}
		g := codegen.New(tree, p.Strings())
		obj := g.Emit()
		if errs := g.Errors(); len(errs) > 0 {
			return fmt.Errorf("codegen: %v", errs[0])
		}
		objs = append(objs, obj)
	}
	_, err := linker.Link(objs, linker.DefaultOptions())
	return err
}
