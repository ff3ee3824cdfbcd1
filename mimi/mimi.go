// Package mimi implements the MIMI container format: the position-
// independent relocatable binary that mimicc's linker produces and the
// loader consumes. The shape (a Module aggregate, Encode/Decode over
// io.Writer/a byte slice, a little-endian fixed-width header) is modeled on
// tools/godis/dis's Module/Encode/Decode, generalized from Dis's
// variable-length operand encoding to MIMI's fixed-width fields.
package mimi

const (
	// Magic is "MIMI" in little-endian, per spec §3.
	Magic uint32 = 0x494D494D
	// Version is the only container version this implementation emits
	// or accepts.
	Version uint8 = 1

	HeaderSize   = 64
	SymbolSize   = 24
	RelocSize    = 12
	nameField    = 16
	// reservedU32s is 1, not the 2 that a literal field-by-field reading of
	// spec §3 would sum to (that reading totals 68 bytes against the same
	// section's explicit "64 bytes, fixed layout" invariant). The 64-byte
	// size is load-bearing — the loader reads it as one fixed-size record
	// and §6 makes cross-implementation byte compatibility a goal — so this
	// implementation treats "64 bytes" as authoritative and trims the
	// reserved tail to one word. See DESIGN.md.
	reservedU32s = 1
)

// Arch identifies the instruction set a MIMI targets.
type Arch uint8

const (
	ArchCortexM0Plus Arch = 0 // canonical value; see DESIGN.md open-question note
	ArchCortexM33    Arch = 1
	ArchRISCV        Arch = 2
)

// Section identifies which part of a program image a symbol or relocation
// refers to.
type Section uint8

const (
	SectNull Section = iota
	SectText
	SectRodata
	SectData
	SectBss
)

// RelocType identifies how a relocation's value is written at its patch
// site.
type RelocType uint8

const (
	RelocAbs32 RelocType = iota
	RelocRel32
	RelocThumbCall
	RelocThumbBranch
	RelocDataPtr
)

// SymbolType classifies a symbol.
type SymbolType uint8

const (
	SymLocal SymbolType = iota
	SymGlobal
	SymExtern
	SymSyscall
)

// Header is the fixed 64-byte MIMI header, field-for-field per spec §3.
type Header struct {
	Magic        uint32
	Version      uint8
	Flags        uint8
	Arch         Arch
	EntryOffset  uint32
	TextSize     uint32
	RodataSize   uint32
	DataSize     uint32
	BssSize      uint32
	RelocCount   uint32
	SymbolCount  uint32
	StackRequest uint32
	HeapRequest  uint32
	Name         string // at most 16 bytes, NUL-padded on the wire
}

// Symbol is a 24-byte on-disk symbol table entry.
type Symbol struct {
	Name    string // at most 16 bytes
	Value   uint32
	Section Section
	Type    SymbolType
}

// Relocation is a 12-byte on-disk relocation record.
type Relocation struct {
	Offset    uint32
	Section   Section
	Type      RelocType
	SymbolIdx uint32
}

// Module is the in-memory form of a complete MIMI container: header fields
// plus the four section blobs (BSS is implicit, size only) and the
// relocation/symbol tables, in the exact order Encode/Decode serialize them.
type Module struct {
	Flags        uint8
	Arch         Arch
	EntryOffset  uint32
	StackRequest uint32
	HeapRequest  uint32
	Name         string

	Text   []byte
	Rodata []byte
	Data   []byte
	BSS    uint32 // size only; never stored

	Relocs  []Relocation
	Symbols []Symbol
}

// Header materializes the Module's header fields as a Header value.
func (m *Module) Header() Header {
	return Header{
		Magic:        Magic,
		Version:      Version,
		Flags:        m.Flags,
		Arch:         m.Arch,
		EntryOffset:  m.EntryOffset,
		TextSize:     uint32(len(m.Text)),
		RodataSize:   uint32(len(m.Rodata)),
		DataSize:     uint32(len(m.Data)),
		BssSize:      m.BSS,
		RelocCount:   uint32(len(m.Relocs)),
		SymbolCount:  uint32(len(m.Symbols)),
		StackRequest: m.StackRequest,
		HeapRequest:  m.HeapRequest,
		Name:         m.Name,
	}
}
