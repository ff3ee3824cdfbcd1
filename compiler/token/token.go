// Package token defines the token stream vocabulary shared by the lexer
// and parser (spec §3): a fixed 8-byte on-disk Token shape and the
// append-only string table literals and identifiers are interned into.
// Grounded structurally on tools/godis/dis/data.go's append-style
// DataItem builder (one growing []byte buffer, offsets handed back to
// callers) and on Stvff-triops' small positional Token struct.
package token

// Kind enumerates every token category the lexer can produce.
type Kind uint8

const (
	EOF Kind = iota
	Invalid

	// Literals
	IntLit
	CharLit
	StringLit
	Ident

	// Keywords
	KwVoid
	KwChar
	KwShort
	KwInt
	KwLong
	KwSigned
	KwUnsigned
	KwFloat
	KwDouble
	KwConst
	KwVolatile
	KwStatic
	KwExtern
	KwTypedef
	KwRegister
	KwAuto
	KwStruct
	KwUnion
	KwEnum
	KwIf
	KwElse
	KwWhile
	KwDo
	KwFor
	KwReturn
	KwBreak
	KwContinue
	KwSwitch
	KwCase
	KwDefault
	KwGoto
	KwSizeof

	// Punctuators
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semicolon
	Comma
	Colon
	Question
	Dot
	Arrow
	Ellipsis

	Assign
	Plus
	Minus
	Star
	Slash
	Percent
	Amp
	Pipe
	Caret
	Tilde
	Bang
	Lt
	Gt
	Shl
	Shr

	PlusPlus
	MinusMinus
	PlusAssign
	MinusAssign
	StarAssign
	SlashAssign
	PercentAssign
	AmpAssign
	PipeAssign
	CaretAssign
	ShlAssign
	ShrAssign
	Eq
	Ne
	Le
	Ge
	AndAnd
	OrOr

	// Preprocessor
	PPInclude
	PPDefine
	PPIfdef
	PPIfndef
	PPElse
	PPEndif
	PPPragma
	PPUnknown
)

var keywords = map[string]Kind{
	"void": KwVoid, "char": KwChar, "short": KwShort, "int": KwInt, "long": KwLong,
	"signed": KwSigned, "unsigned": KwUnsigned, "float": KwFloat, "double": KwDouble,
	"const": KwConst, "volatile": KwVolatile, "static": KwStatic, "extern": KwExtern,
	"typedef": KwTypedef, "register": KwRegister, "auto": KwAuto,
	"struct": KwStruct, "union": KwUnion, "enum": KwEnum,
	"if": KwIf, "else": KwElse, "while": KwWhile, "do": KwDo, "for": KwFor,
	"return": KwReturn, "break": KwBreak, "continue": KwContinue,
	"switch": KwSwitch, "case": KwCase, "default": KwDefault, "goto": KwGoto,
	"sizeof": KwSizeof,
}

// Lookup returns the keyword Kind for ident, or (Ident, false) if it is a
// plain identifier.
func Lookup(ident string) (Kind, bool) {
	k, ok := keywords[ident]
	if !ok {
		return Ident, false
	}
	return k, true
}

// Token is the 8-byte-on-the-wire unit the lexer emits: Kind plus a small
// Flags byte (the lexer leaves it zero) and a Value that is either an
// immediate integer or a string-table offset.
type Token struct {
	Kind  Kind
	Flags uint8
	Value uint32
	Line  int
	Col   int
}

// StringTable is an append-only NUL-terminated string buffer; offset 0 is
// reserved for the empty string, matching spec §3.
type StringTable struct {
	buf []byte
}

// NewStringTable creates a table with offset 0 already reserved empty.
func NewStringTable() *StringTable {
	return &StringTable{buf: []byte{0}}
}

// Intern appends s plus a NUL terminator and returns its offset.
func (t *StringTable) Intern(s string) uint32 {
	off := uint32(len(t.buf))
	t.buf = append(t.buf, s...)
	t.buf = append(t.buf, 0)
	return off
}

// String returns the NUL-terminated string starting at off.
func (t *StringTable) String(off uint32) string {
	end := off
	for int(end) < len(t.buf) && t.buf[end] != 0 {
		end++
	}
	return string(t.buf[off:end])
}

// Bytes returns the table's raw backing buffer.
func (t *StringTable) Bytes() []byte { return t.buf }
