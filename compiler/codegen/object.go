// Package codegen walks a compiler/ast.Tree and emits Thumb-2 machine code
// plus a relocation/symbol table as a flat object blob, per spec §4.G.
// Object encoding is grounded on mimi.Module's Encode/Decode shape
// (tools/godis/dis's fixed-header-then-payloads style), narrowed to the
// object stage's own 4-word mini-header ahead of TEXT/DATA/relocations/
// symbols rather than the full MIMI container header.
package codegen

import (
	"bytes"
	"encoding/binary"

	"mimic/mimi"
	"mimic/mkerr"
)

// Object is one compilation unit's output: the codegen's Text/Data bytes
// plus the relocations and symbols the linker (compiler/linker) consumes to
// produce a mimi.Module.
type Object struct {
	Text    []byte
	Data    []byte
	Relocs  []mimi.Relocation
	Symbols []mimi.Symbol
}

// objHeaderSize is the 4×u32 mini-header: text_size, data_size,
// reloc_count, symbol_count (spec §4.G).
const objHeaderSize = 16

// Encode serializes o as a flat object blob.
func (o *Object) Encode() []byte {
	var buf bytes.Buffer
	var hdr [objHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(o.Text)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(o.Data)))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(o.Relocs)))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(o.Symbols)))
	buf.Write(hdr[:])
	buf.Write(o.Text)
	buf.Write(o.Data)

	for _, r := range o.Relocs {
		var rec [mimi.RelocSize]byte
		binary.LittleEndian.PutUint32(rec[0:4], r.Offset)
		binary.LittleEndian.PutUint16(rec[4:6], uint16(r.Section))
		rec[6] = byte(r.Type)
		binary.LittleEndian.PutUint32(rec[8:12], r.SymbolIdx)
		buf.Write(rec[:])
	}

	for _, s := range o.Symbols {
		var rec [mimi.SymbolSize]byte
		copy(rec[0:16], s.Name)
		binary.LittleEndian.PutUint32(rec[16:20], s.Value)
		rec[20] = byte(s.Section)
		rec[21] = byte(s.Type)
		buf.Write(rec[:])
	}
	return buf.Bytes()
}

// Decode parses an object blob produced by Encode.
func Decode(b []byte) (*Object, error) {
	if len(b) < objHeaderSize {
		return nil, mkerr.New(mkerr.KindCorrupt, "object: short header (%d bytes)", len(b))
	}
	textSize := binary.LittleEndian.Uint32(b[0:4])
	dataSize := binary.LittleEndian.Uint32(b[4:8])
	relocCount := binary.LittleEndian.Uint32(b[8:12])
	symbolCount := binary.LittleEndian.Uint32(b[12:16])

	off := objHeaderSize
	need := off + int(textSize) + int(dataSize) + int(relocCount)*mimi.RelocSize + int(symbolCount)*mimi.SymbolSize
	if need > len(b) {
		return nil, mkerr.New(mkerr.KindCorrupt, "object: truncated (need %d, have %d)", need, len(b))
	}

	o := &Object{}
	o.Text = append([]byte(nil), b[off:off+int(textSize)]...)
	off += int(textSize)
	o.Data = append([]byte(nil), b[off:off+int(dataSize)]...)
	off += int(dataSize)

	for i := uint32(0); i < relocCount; i++ {
		rec := b[off : off+mimi.RelocSize]
		o.Relocs = append(o.Relocs, mimi.Relocation{
			Offset:    binary.LittleEndian.Uint32(rec[0:4]),
			Section:   mimi.Section(binary.LittleEndian.Uint16(rec[4:6])),
			Type:      mimi.RelocType(rec[6]),
			SymbolIdx: binary.LittleEndian.Uint32(rec[8:12]),
		})
		off += mimi.RelocSize
	}

	for i := uint32(0); i < symbolCount; i++ {
		rec := b[off : off+mimi.SymbolSize]
		end := bytes.IndexByte(rec[0:16], 0)
		if end < 0 {
			end = 16
		}
		o.Symbols = append(o.Symbols, mimi.Symbol{
			Name:    string(rec[0:end]),
			Value:   binary.LittleEndian.Uint32(rec[16:20]),
			Section: mimi.Section(rec[20]),
			Type:    mimi.SymbolType(rec[21]),
		})
		off += mimi.SymbolSize
	}
	return o, nil
}
