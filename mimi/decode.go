package mimi

import (
	"encoding/binary"
	"fmt"

	"mimic/mkerr"
)

// reader is a cursor over an in-memory byte slice, mirroring the style of
// tools/godis/dis's reader but for fixed-width rather than variable-width
// fields.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) need(n int) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("short read: need %d bytes at offset %d, have %d", n, r.pos, len(r.data))
	}
	return nil
}

func (r *reader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// DecodeHeader reads just the 64-byte header, for callers (the loader) that
// want to validate before committing to reading the rest of the file.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, mkerr.New(mkerr.KindCorrupt, "header: need %d bytes, have %d", HeaderSize, len(data))
	}
	r := &reader{data: data}
	var h Header
	var err error

	magic, _ := r.u32()
	h.Magic = magic
	ver, _ := r.u8()
	h.Version = ver
	flags, _ := r.u8()
	h.Flags = flags
	arch, _ := r.u8()
	h.Arch = Arch(arch)
	_, _ = r.u8() // pad
	if h.EntryOffset, err = r.u32(); err != nil {
		return h, mkerr.Wrap(mkerr.KindCorrupt, err, "entry_offset")
	}
	if h.TextSize, err = r.u32(); err != nil {
		return h, mkerr.Wrap(mkerr.KindCorrupt, err, "text_size")
	}
	if h.RodataSize, err = r.u32(); err != nil {
		return h, mkerr.Wrap(mkerr.KindCorrupt, err, "rodata_size")
	}
	if h.DataSize, err = r.u32(); err != nil {
		return h, mkerr.Wrap(mkerr.KindCorrupt, err, "data_size")
	}
	if h.BssSize, err = r.u32(); err != nil {
		return h, mkerr.Wrap(mkerr.KindCorrupt, err, "bss_size")
	}
	if h.RelocCount, err = r.u32(); err != nil {
		return h, mkerr.Wrap(mkerr.KindCorrupt, err, "reloc_count")
	}
	if h.SymbolCount, err = r.u32(); err != nil {
		return h, mkerr.Wrap(mkerr.KindCorrupt, err, "symbol_count")
	}
	if h.StackRequest, err = r.u32(); err != nil {
		return h, mkerr.Wrap(mkerr.KindCorrupt, err, "stack_request")
	}
	if h.HeapRequest, err = r.u32(); err != nil {
		return h, mkerr.Wrap(mkerr.KindCorrupt, err, "heap_request")
	}
	nameBytes, err := r.bytes(nameField)
	if err != nil {
		return h, mkerr.Wrap(mkerr.KindCorrupt, err, "name")
	}
	h.Name = getName(nameBytes)
	return h, nil
}

// Decode parses a complete MIMI module from data.
func Decode(data []byte) (*Module, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Magic != Magic {
		return nil, mkerr.New(mkerr.KindNoexec, "bad magic: 0x%08x", h.Magic)
	}
	if h.Version != Version {
		return nil, mkerr.New(mkerr.KindNoexec, "unsupported version: %d", h.Version)
	}

	r := &reader{data: data, pos: HeaderSize}
	m := &Module{
		Flags:        h.Flags,
		Arch:         h.Arch,
		EntryOffset:  h.EntryOffset,
		StackRequest: h.StackRequest,
		HeapRequest:  h.HeapRequest,
		Name:         h.Name,
		BSS:          h.BssSize,
	}

	if m.Text, err = r.bytes(int(h.TextSize)); err != nil {
		return nil, mkerr.Wrap(mkerr.KindCorrupt, err, "text section")
	}
	if m.Rodata, err = r.bytes(int(h.RodataSize)); err != nil {
		return nil, mkerr.Wrap(mkerr.KindCorrupt, err, "rodata section")
	}
	if m.Data, err = r.bytes(int(h.DataSize)); err != nil {
		return nil, mkerr.Wrap(mkerr.KindCorrupt, err, "data section")
	}

	m.Relocs = make([]Relocation, h.RelocCount)
	for i := range m.Relocs {
		rel, err := readReloc(r)
		if err != nil {
			return nil, mkerr.Wrap(mkerr.KindCorrupt, err, "relocation %d", i)
		}
		m.Relocs[i] = rel
	}

	m.Symbols = make([]Symbol, h.SymbolCount)
	for i := range m.Symbols {
		sym, err := readSymbol(r)
		if err != nil {
			return nil, mkerr.Wrap(mkerr.KindCorrupt, err, "symbol %d", i)
		}
		m.Symbols[i] = sym
	}

	return m, nil
}

func readReloc(r *reader) (Relocation, error) {
	var rel Relocation
	off, err := r.u32()
	if err != nil {
		return rel, err
	}
	sect, err := r.u16()
	if err != nil {
		return rel, err
	}
	typ, err := r.u8()
	if err != nil {
		return rel, err
	}
	if _, err := r.u8(); err != nil { // pad
		return rel, err
	}
	sym, err := r.u32()
	if err != nil {
		return rel, err
	}
	rel.Offset = off
	rel.Section = Section(sect)
	rel.Type = RelocType(typ)
	rel.SymbolIdx = sym
	return rel, nil
}

func readSymbol(r *reader) (Symbol, error) {
	var sym Symbol
	nameBytes, err := r.bytes(nameField)
	if err != nil {
		return sym, err
	}
	val, err := r.u32()
	if err != nil {
		return sym, err
	}
	sect, err := r.u8()
	if err != nil {
		return sym, err
	}
	typ, err := r.u8()
	if err != nil {
		return sym, err
	}
	if _, err := r.u16(); err != nil { // pad
		return sym, err
	}
	sym.Name = getName(nameBytes)
	sym.Value = val
	sym.Section = Section(sect)
	sym.Type = SymbolType(typ)
	return sym, nil
}
