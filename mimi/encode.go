package mimi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Encode writes the module to w in MIMI binary format: header, TEXT,
// RODATA, DATA, relocation table, symbol table — the exact body order from
// spec §3/§4.C. Every multi-byte field is little-endian.
func (m *Module) Encode(w io.Writer) error {
	var buf bytes.Buffer

	hdr := m.Header()
	if err := writeHeader(&buf, hdr); err != nil {
		return fmt.Errorf("mimi: encode header: %w", err)
	}

	buf.Write(m.Text)
	buf.Write(m.Rodata)
	buf.Write(m.Data)

	for _, r := range m.Relocs {
		writeReloc(&buf, r)
	}
	for _, s := range m.Symbols {
		writeSymbol(&buf, s)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func writeHeader(buf *bytes.Buffer, h Header) error {
	var fixed [HeaderSize]byte
	binary.LittleEndian.PutUint32(fixed[0:4], h.Magic)
	fixed[4] = h.Version
	fixed[5] = h.Flags
	fixed[6] = byte(h.Arch)
	// fixed[7] reserved pad
	binary.LittleEndian.PutUint32(fixed[8:12], h.EntryOffset)
	binary.LittleEndian.PutUint32(fixed[12:16], h.TextSize)
	binary.LittleEndian.PutUint32(fixed[16:20], h.RodataSize)
	binary.LittleEndian.PutUint32(fixed[20:24], h.DataSize)
	binary.LittleEndian.PutUint32(fixed[24:28], h.BssSize)
	binary.LittleEndian.PutUint32(fixed[28:32], h.RelocCount)
	binary.LittleEndian.PutUint32(fixed[32:36], h.SymbolCount)
	binary.LittleEndian.PutUint32(fixed[36:40], h.StackRequest)
	binary.LittleEndian.PutUint32(fixed[40:44], h.HeapRequest)
	putName(fixed[44:60], h.Name)
	// fixed[60:64] reserved (one u32, always zero on encode)
	buf.Write(fixed[:])
	return nil
}

func putName(dst []byte, name string) {
	n := copy(dst, name)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getName(src []byte) string {
	n := bytes.IndexByte(src, 0)
	if n < 0 {
		n = len(src)
	}
	return string(src[:n])
}

func writeReloc(buf *bytes.Buffer, r Relocation) {
	var fixed [RelocSize]byte
	binary.LittleEndian.PutUint32(fixed[0:4], r.Offset)
	binary.LittleEndian.PutUint16(fixed[4:6], uint16(r.Section))
	fixed[6] = byte(r.Type)
	// fixed[7] pad
	binary.LittleEndian.PutUint32(fixed[8:12], r.SymbolIdx)
	buf.Write(fixed[:])
}

func writeSymbol(buf *bytes.Buffer, s Symbol) {
	var fixed [SymbolSize]byte
	putName(fixed[0:16], s.Name)
	binary.LittleEndian.PutUint32(fixed[16:20], s.Value)
	fixed[20] = byte(s.Section)
	fixed[21] = byte(s.Type)
	// fixed[22:24] pad
	buf.Write(fixed[:])
}
