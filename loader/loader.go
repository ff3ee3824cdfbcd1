// Package loader implements the dynamic loader (spec §4.D): parse a MIMI
// module, allocate memory for it from the user pool, copy sections, zero
// BSS, and apply relocations against the symbol table, grounded on
// original_source/Test-01/mimic_kernel.c's mimic_load_binary and
// mimic_task_load, structurally on tools/godis/compiler/frame.go's
// running-offset layout computation.
package loader

import (
	"encoding/binary"
	"io"

	"mimic/alloc"
	"mimic/fsys"
	"mimic/mimi"
	"mimic/mkerr"
	"mimic/task"
)

const (
	defaultStack uint32 = 4096
	defaultHeap  uint32 = 8192
)

// Load opens path on fs, validates its MIMI header, and loads it into a
// newly allocated task: memory from user, a fresh kernel-pool scratch
// buffer for the (transient) symbol table, a fresh slot in tasks. It
// implements spec §4.D steps 1-10 in order. Any failure from step 3 onward
// releases the user-pool allocation before returning.
func Load(fs fsys.FS, path string, kernel, user *alloc.Pool, tasks *task.Table, targetArch mimi.Arch, priority uint8) (*task.TCB, error) {
	h, err := fs.Open(path, fsys.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	data := make([]byte, mimi.HeaderSize)
	if _, err := readFull(h, data); err != nil {
		return nil, mkerr.Wrap(mkerr.KindCorrupt, err, "%s: reading header", path)
	}
	hdr, err := mimi.DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if err := hdr.Validate(targetArch); err != nil {
		return nil, err
	}

	codeSize := hdr.TextSize + hdr.RodataSize
	dataAndBSS := hdr.DataSize + hdr.BssSize
	stackSize := hdr.StackRequest
	if stackSize == 0 {
		stackSize = defaultStack
	}
	heapSize := hdr.HeapRequest
	if heapSize == 0 {
		heapSize = defaultHeap
	}
	total := codeSize + dataAndBSS + stackSize + heapSize
	total = (total + 31) &^ 31

	tcb, err := tasks.Alloc(hdr.Name, priority)
	if err != nil {
		return nil, err
	}

	base, err := user.Allocate(total, tcb.ID)
	if err != nil {
		tasks.Kill(tcb.ID)
		return nil, err
	}

	mem := task.MemLayout{
		Base:        base,
		TotalSize:   total,
		TextStart:   0,
		TextSize:    hdr.TextSize,
		RodataStart: hdr.TextSize,
		RodataSize:  hdr.RodataSize,
		DataStart:   codeSize,
		DataSize:    hdr.DataSize,
		BSSStart:    codeSize + hdr.DataSize,
		BSSSize:     hdr.BssSize,
		HeapStart:   codeSize + dataAndBSS,
		HeapSize:    heapSize,
		StackTop:    total,
		StackSize:   stackSize,
	}

	arena := user.Bytes()
	fail := func(err error) (*task.TCB, error) {
		user.Free(base)
		tasks.Kill(tcb.ID)
		return nil, err
	}

	if err := readSection(h, arena, base+mem.TextStart, hdr.TextSize); err != nil {
		return fail(err)
	}
	if err := readSection(h, arena, base+mem.RodataStart, hdr.RodataSize); err != nil {
		return fail(err)
	}
	if err := readSection(h, arena, base+mem.DataStart, hdr.DataSize); err != nil {
		return fail(err)
	}
	zeroFill(arena, base+mem.BSSStart, hdr.BssSize)

	var symbols []mimi.Symbol
	if hdr.SymbolCount > 0 {
		symbols, err = readSymbolTable(h, kernel, tcb.ID, hdr)
		if err != nil {
			return fail(err)
		}
	}

	if err := applyRelocations(h, arena, base, &mem, symbols, hdr.RelocCount); err != nil {
		return fail(err)
	}

	tcb.Entry = base + mem.TextStart + hdr.EntryOffset
	tcb.Mem = mem
	tcb.SP = base + mem.StackTop

	return tcb, nil
}

func readFull(h fsys.Handle, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := h.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	if total < len(buf) {
		return total, mkerr.New(mkerr.KindCorrupt, "short read: got %d of %d bytes", total, len(buf))
	}
	return total, nil
}

func readSection(h fsys.Handle, arena []byte, dstOffset, size uint32) error {
	if size == 0 {
		return nil
	}
	if _, err := readFull(h, arena[dstOffset:dstOffset+size]); err != nil {
		return mkerr.Wrap(mkerr.KindCorrupt, err, "section read at offset %d", dstOffset)
	}
	return nil
}

func zeroFill(arena []byte, offset, size uint32) {
	if size == 0 {
		return
	}
	clear := arena[offset : offset+size]
	for i := range clear {
		clear[i] = 0
	}
}

// readSymbolTable reads hdr.SymbolCount 24-byte symbol records into a
// kernel-pool-backed scratch buffer, per spec §4.D step 7. The kernel-pool
// allocation is freed before returning, matching step 9 ("free the
// symbol-table buffer").
func readSymbolTable(h fsys.Handle, kernel *alloc.Pool, owner uint32, hdr mimi.Header) ([]mimi.Symbol, error) {
	scratchSize := hdr.SymbolCount * mimi.SymbolSize
	scratchAddr, err := kernel.Allocate(scratchSize, owner)
	if err != nil {
		return nil, err
	}
	defer kernel.Free(scratchAddr)

	// Seek past the relocation table to the symbol table.
	relocBytes := int64(hdr.RelocCount) * int64(mimi.RelocSize)
	if _, err := h.Seek(relocBytes, io.SeekCurrent); err != nil {
		return nil, mkerr.Wrap(mkerr.KindCorrupt, err, "seeking to symbol table")
	}

	buf := kernel.Bytes()[scratchAddr : scratchAddr+scratchSize]
	if _, err := readFull(h, buf); err != nil {
		return nil, mkerr.Wrap(mkerr.KindCorrupt, err, "reading symbol table")
	}

	symbols := make([]mimi.Symbol, hdr.SymbolCount)
	for i := range symbols {
		rec := buf[i*int(mimi.SymbolSize) : (i+1)*int(mimi.SymbolSize)]
		symbols[i] = decodeSymbolRecord(rec)
	}

	// Seek back before the relocation table so applyRelocations can read it
	// from the start, matching step 7's "seek back" after the symbol read.
	if _, err := h.Seek(-(relocBytes + int64(scratchSize)), io.SeekCurrent); err != nil {
		return nil, mkerr.Wrap(mkerr.KindCorrupt, err, "seeking back to relocation table")
	}
	return symbols, nil
}

func decodeSymbolRecord(b []byte) mimi.Symbol {
	name := b[:16]
	end := 0
	for end < len(name) && name[end] != 0 {
		end++
	}
	return mimi.Symbol{
		Name:    string(name[:end]),
		Value:   binary.LittleEndian.Uint32(b[16:20]),
		Section: mimi.Section(b[20]),
		Type:    mimi.SymbolType(b[21]),
	}
}
