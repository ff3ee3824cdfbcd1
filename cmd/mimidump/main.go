// mimidump prints the structure of a MIMI container or a raw codegen
// object blob: header fields, symbol table, relocation table, and a
// disassembly of TEXT.
//
// Usage:
//
//	mimidump file.mimi
//	mimidump -obj file.o
package main

import (
	"flag"
	"fmt"
	"os"

	"mimic/compiler/codegen"
	"mimic/mimi"
)

var archNames = map[mimi.Arch]string{
	mimi.ArchCortexM0Plus: "cortex-m0+",
	mimi.ArchCortexM33:    "cortex-m33",
	mimi.ArchRISCV:        "riscv",
}

var sectionNames = map[mimi.Section]string{
	mimi.SectNull: "null",
	mimi.SectText: "text",
	mimi.SectData: "data",
}

var symTypeNames = map[mimi.SymbolType]string{
	mimi.SymLocal:   "local",
	mimi.SymGlobal:  "global",
	mimi.SymExtern:  "extern",
	mimi.SymSyscall: "syscall",
}

var relocTypeNames = map[mimi.RelocType]string{
	mimi.RelocAbs32:       "abs32",
	mimi.RelocRel32:       "rel32",
	mimi.RelocThumbCall:   "thumb_call",
	mimi.RelocThumbBranch: "thumb_branch",
	mimi.RelocDataPtr:     "data_ptr",
}

func main() {
	isObj := flag.Bool("obj", false, "input is a raw codegen object blob, not a linked .mimi container")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: mimidump [-obj] file\n")
		os.Exit(1)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimidump: %v\n", err)
		os.Exit(1)
	}

	if *isObj {
		dumpObject(data)
		return
	}
	dumpModule(data)
}

func dumpObject(data []byte) {
	o, err := codegen.Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimidump: decode object: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("object: text=%d data=%d relocs=%d symbols=%d\n",
		len(o.Text), len(o.Data), len(o.Relocs), len(o.Symbols))
	dumpSymbols(o.Symbols)
	dumpRelocs(o.Relocs)
	dumpText(o.Text)
}

func dumpModule(data []byte) {
	m, err := mimi.Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mimidump: decode module: %v\n", err)
		os.Exit(1)
	}
	h := m.Header()
	fmt.Printf("magic: %#08x\n", h.Magic)
	fmt.Printf("version: %d\n", h.Version)
	fmt.Printf("flags: %#02x\n", h.Flags)
	fmt.Printf("arch: %s\n", archName(h.Arch))
	fmt.Printf("name: %q\n", h.Name)
	fmt.Printf("entry offset: %#x\n", h.EntryOffset)
	fmt.Printf("text: %d bytes\n", h.TextSize)
	fmt.Printf("rodata: %d bytes\n", h.RodataSize)
	fmt.Printf("data: %d bytes\n", h.DataSize)
	fmt.Printf("bss: %d bytes\n", h.BssSize)
	fmt.Printf("stack request: %d\n", h.StackRequest)
	fmt.Printf("heap request: %d\n", h.HeapRequest)
	fmt.Printf("relocations: %d\n", h.RelocCount)
	fmt.Printf("symbols: %d\n", h.SymbolCount)
	dumpSymbols(m.Symbols)
	dumpRelocs(m.Relocs)
	dumpText(m.Text)
}

func dumpSymbols(syms []mimi.Symbol) {
	for i, s := range syms {
		fmt.Printf("  sym[%d]: %-16s value=%#06x section=%-5s type=%s\n",
			i, s.Name, s.Value, sectionName(s.Section), symTypeName(s.Type))
	}
}

func dumpRelocs(relocs []mimi.Relocation) {
	for i, r := range relocs {
		fmt.Printf("  reloc[%d]: offset=%#06x section=%-5s type=%-12s symbol_idx=%d\n",
			i, r.Offset, sectionName(r.Section), relocTypeName(r.Type), r.SymbolIdx)
	}
}

func dumpText(text []byte) {
	fmt.Printf("disassembly (%d bytes):\n", len(text))
	for off := 0; off < len(text); {
		mnem, size := disasmLine(text, off)
		fmt.Printf("  %#06x: %s\n", off, mnem)
		off += size
	}
}

func archName(a mimi.Arch) string {
	if n, ok := archNames[a]; ok {
		return n
	}
	return fmt.Sprintf("arch(%d)", a)
}

func sectionName(s mimi.Section) string {
	if n, ok := sectionNames[s]; ok {
		return n
	}
	return fmt.Sprintf("section(%d)", s)
}

func symTypeName(t mimi.SymbolType) string {
	if n, ok := symTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", t)
}

func relocTypeName(t mimi.RelocType) string {
	if n, ok := relocTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("reloc(%d)", t)
}
