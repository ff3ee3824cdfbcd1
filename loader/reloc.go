package loader

import (
	"encoding/binary"

	"mimic/fsys"
	"mimic/mimi"
	"mimic/mkerr"
	"mimic/task"
)

// sectionStart returns base + the running offset of sect within mem, for
// both the relocation's target section and a symbol's defining section.
func sectionStart(mem *task.MemLayout, sect mimi.Section) (uint32, bool) {
	switch sect {
	case mimi.SectText:
		return mem.TextStart, true
	case mimi.SectRodata:
		return mem.RodataStart, true
	case mimi.SectData:
		return mem.DataStart, true
	case mimi.SectBss:
		return mem.BSSStart, true
	default:
		return 0, false
	}
}

// applyRelocations reads hdr.RelocCount 12-byte records sequentially from h
// (positioned at the start of the relocation table) and patches arena in
// place, per spec §4.D step 8.
func applyRelocations(h fsys.Handle, arena []byte, base uint32, mem *task.MemLayout, symbols []mimi.Symbol, relocCount uint32) error {
	rec := make([]byte, mimi.RelocSize)
	for i := uint32(0); i < relocCount; i++ {
		if _, err := readFull(h, rec); err != nil {
			return mkerr.Wrap(mkerr.KindCorrupt, err, "relocation %d", i)
		}
		r := decodeRelocRecord(rec)

		sectOff, ok := sectionStart(mem, r.Section)
		if !ok {
			return mkerr.New(mkerr.KindCorrupt, "relocation %d: unknown section %d", i, r.Section)
		}
		patchAddr := base + sectOff + r.Offset

		if int(r.SymbolIdx) >= len(symbols) {
			return mkerr.New(mkerr.KindLink, "relocation %d: symbol index %d out of range", i, r.SymbolIdx)
		}
		sym := symbols[r.SymbolIdx]

		var symValue uint32
		switch sym.Type {
		case mimi.SymSyscall:
			symValue = sym.Value
		case mimi.SymExtern:
			// Unresolved EXTERN that is not a SYSCALL is a recoverable
			// skip at this layer (spec §4.D step 8); the linker is the
			// place that hard-fails unresolved EXTERNs (spec §4.H step 5).
			continue
		default:
			symOff, ok := sectionStart(mem, sym.Section)
			if !ok {
				return mkerr.New(mkerr.KindCorrupt, "relocation %d: symbol has unknown section %d", i, sym.Section)
			}
			symValue = base + symOff + sym.Value
		}

		if err := applyOne(arena, patchAddr, r.Type, symValue); err != nil {
			return mkerr.Wrap(mkerr.KindCorrupt, err, "relocation %d", i)
		}
	}
	return nil
}

func decodeRelocRecord(b []byte) mimi.Relocation {
	return mimi.Relocation{
		Offset:    binary.LittleEndian.Uint32(b[0:4]),
		Section:   mimi.Section(binary.LittleEndian.Uint16(b[4:6])),
		Type:      mimi.RelocType(b[6]),
		SymbolIdx: binary.LittleEndian.Uint32(b[8:12]),
	}
}

func applyOne(arena []byte, patchAddr uint32, typ mimi.RelocType, symValue uint32) error {
	if int(patchAddr)+4 > len(arena) {
		return mkerr.New(mkerr.KindCorrupt, "patch address %d out of range", patchAddr)
	}
	switch typ {
	case mimi.RelocAbs32, mimi.RelocDataPtr:
		binary.LittleEndian.PutUint32(arena[patchAddr:], symValue)
	case mimi.RelocRel32:
		rel := int32(symValue) - int32(patchAddr) - 4
		binary.LittleEndian.PutUint32(arena[patchAddr:], uint32(rel))
	case mimi.RelocThumbCall:
		hi, lo := EncodeThumbBL(int32(symValue) - int32(patchAddr) - 4)
		binary.LittleEndian.PutUint16(arena[patchAddr:], hi)
		binary.LittleEndian.PutUint16(arena[patchAddr+2:], lo)
	case mimi.RelocThumbBranch:
		off := int32(symValue) - int32(patchAddr) - 4
		binary.LittleEndian.PutUint16(arena[patchAddr:], EncodeThumbBW(off))
	default:
		return mkerr.New(mkerr.KindCorrupt, "unknown relocation type %d", typ)
	}
	return nil
}

// EncodeThumbBL encodes a 32-bit Thumb-2 BL instruction for a byte offset
// (target - (patch address + 4)), mirroring thumb_bl in
// original_source/Test-01/mimic_codegen.c exactly, including its J1/J2
// encoding per the ARMv7-M reference manual. Returns the two half-words in
// execution order (high, low) as they appear at the lower and upper
// addresses respectively, matching the C original's `(hi<<16)|lo` packing
// when read as a big-endian 32-bit value but written here as two
// individually little-endian 16-bit half-words, since that's how the
// loader patches memory.
func EncodeThumbBL(offset int32) (hi, lo uint16) {
	off := offset >> 1

	s := uint32(off>>23) & 1
	i1 := uint32(off>>22) & 1
	i2 := uint32(off>>21) & 1
	imm10 := uint32(off>>11) & 0x3FF
	imm11 := uint32(off) & 0x7FF

	j1 := (^i1 ^ s) & 1
	j2 := (^i2 ^ s) & 1

	hi = uint16(0xF000 | (s << 10) | imm10)
	lo = uint16(0xD000 | (j1 << 13) | (j2 << 11) | imm11)
	return hi, lo
}

// EncodeThumbBW encodes an unconditional Thumb B.W-range branch's lower
// half-word for the THUMB_BRANCH relocation (spec §3's B.W entry) using the
// same 11-bit short-branch encoding as thumb_b in mimic_codegen.c — MIMI's
// THUMB_BRANCH relocation is only ever emitted for intra-function jumps
// that fit this range (§4.G).
func EncodeThumbBW(offset int32) uint16 {
	return uint16(0xE000 | ((offset >> 1) & 0x7FF))
}
