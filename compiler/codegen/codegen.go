package codegen

import (
	"encoding/binary"

	"mimic/compiler/ast"
	"mimic/compiler/token"
	"mimic/mimi"
	"mimic/mkerr"
)

// Registers used by the fixed allocation scheme this codegen follows:
// r0 always holds "the value of the expression just evaluated"; r1 is the
// scratch register binary operators pop their right operand into; r4-r7/lr
// are callee-saved per the prologue/epilogue (spec §4.G).
const (
	r0 = 0
	r1 = 1
	r7 = 7
	sp = 13
	lr = 14
	pc = 15
)

type localVar struct {
	slot int32 // stack slot index; address is [SP, #slot*4]
	typ  ast.Type
}

type loopCtx struct {
	breakLabel, continueLabel int32
}

type pendingBranch struct {
	offset int32 // text offset of the placeholder half-word
	cond   int32 // ARM condition code, -1 for unconditional
}

type litEntry struct {
	instrOffset int32 // text offset of the placeholder LDR (literal load)
	value       uint32
	symbolIdx   int // -1 if value is a plain immediate, else a RelocDataPtr target
}

// Gen walks one ast.Tree and produces an Object. A fresh Gen must be used
// per translation unit; Gen is not reentrant across trees.
type Gen struct {
	tree *ast.Tree
	strs *token.StringTable

	text []byte
	data []byte

	symbols  []mimi.Symbol
	symIndex map[string]int
	relocs   []mimi.Relocation

	locals     map[string]localVar
	localSlots int32

	loops []loopCtx

	pending map[int32][]pendingBranch
	labels  []int32 // label id -> bound text offset, -1 if unbound

	pool []litEntry

	stringSyms map[uint32]int // string-table offset -> data symbol index

	epilogueLabel int32

	// lastAddrSize is the element size (in bytes) of the lvalue address
	// genLValueAddr most recently left in r0 — 1 for a char array/pointer
	// element, 4 otherwise — so callers know whether to load/store through
	// LDRB/STRB or the word-sized LDR/STR.
	lastAddrSize uint32

	errors []*mkerr.Error
}

// New creates a Gen over tree, whose literal/identifier text lives in strs.
func New(tree *ast.Tree, strs *token.StringTable) *Gen {
	return &Gen{
		tree:       tree,
		strs:       strs,
		symIndex:   make(map[string]int),
		stringSyms: make(map[uint32]int),
	}
}

// Errors returns every codegen error recorded so far (unsupported
// constructs surface as KindNosys, per spec §7).
func (g *Gen) Errors() []*mkerr.Error { return g.errors }

func (g *Gen) errorf(kind mkerr.Kind, format string, args ...any) {
	g.errors = append(g.errors, mkerr.New(kind, format, args...))
}

// Emit generates code for every function definition and global in the tree,
// returning the resulting Object.
func (g *Gen) Emit() *Object {
	for _, gl := range g.tree.Globals {
		g.emitGlobal(gl)
	}
	for i := range g.tree.Funcs {
		fn := g.tree.Funcs[i]
		if !fn.IsDefined {
			g.symbolIndex(fn.Name) // reserve an EXTERN entry for prototypes
			continue
		}
		g.emitFunc(fn)
	}
	return &Object{Text: g.text, Data: g.data, Relocs: g.relocs, Symbols: g.symbols}
}

// --- symbol table -----------------------------------------------------

func (g *Gen) symbolIndex(name string) int {
	if idx, ok := g.symIndex[name]; ok {
		return idx
	}
	idx := len(g.symbols)
	g.symbols = append(g.symbols, mimi.Symbol{Name: name, Type: mimi.SymExtern})
	g.symIndex[name] = idx
	return idx
}

func (g *Gen) defineSymbol(name string, sect mimi.Section, value uint32) {
	idx := g.symbolIndex(name)
	g.symbols[idx] = mimi.Symbol{Name: name, Value: value, Section: sect, Type: mimi.SymGlobal}
}

// --- globals ------------------------------------------------------------

func typeSize(tree *ast.Tree, ty ast.Type) uint32 {
	switch ty.Kind {
	case ast.TypeChar:
		return 1
	case ast.TypePointer:
		return 4
	case ast.TypeArray:
		return ty.ArrayLen * typeSize(tree, tree.Types[ty.Elem])
	default: // Int, Long, Void(treated as 4 defensively)
		return 4
	}
}

func (g *Gen) emitGlobal(gl ast.Global) {
	size := typeSize(g.tree, gl.Type)
	off := uint32(len(g.data))
	var initVal uint32
	if gl.Init >= 0 {
		if v, ok := g.constEval(gl.Init); ok {
			initVal = v
		}
	}
	buf := make([]byte, size)
	if size >= 4 {
		binary.LittleEndian.PutUint32(buf, initVal)
	} else if size == 1 {
		buf[0] = byte(initVal)
	}
	g.data = append(g.data, buf...)
	g.defineSymbol(gl.Name, mimi.SectData, off)
}

// constEval evaluates a compile-time-constant integer expression, for
// global initializers. Anything not a literal folds to (0, false).
func (g *Gen) constEval(idx int32) (uint32, bool) {
	e := g.tree.Exprs[idx]
	switch e.Kind {
	case ast.ExprIntLit, ast.ExprCharLit:
		return e.Value, true
	case ast.ExprUnary:
		if token.Kind(e.Op) == token.Minus {
			if v, ok := g.constEval(e.A); ok {
				return uint32(-int32(v)), true
			}
		}
	}
	return 0, false
}

// --- functions ------------------------------------------------------------

func (g *Gen) emitFunc(fn ast.Func) {
	g.locals = make(map[string]localVar)
	g.localSlots = 0
	g.loops = nil
	g.pending = make(map[int32][]pendingBranch)
	g.labels = nil
	g.pool = nil

	entry := int32(len(g.text))
	g.defineSymbol(fn.Name, mimi.SectText, uint32(entry))

	g.emit16(0xB5F0) // push {r4-r7, lr}
	subPatchOffset := int32(len(g.text))
	g.emit16(0xB080) // sub sp, #0 — patched once local_area is known

	for i, p := range fn.Params {
		slot := g.allocSlot(p.Name, p.Type)
		if i < 4 {
			g.emitStoreSlot(i, slot)
		}
	}

	epilogue := g.newLabel()
	g.epilogueLabel = epilogue
	g.genStmt(fn.Body)

	g.bindLabel(epilogue)
	localArea := roundUp4(uint32(g.localSlots) * 4)
	g.patchSPSub(subPatchOffset, localArea/4) // sub sp,#local_area
	g.emit16(immSPAdd(localArea / 4))                 // add sp,#local_area
	g.emit16(0xBDF0)                                  // pop {r4-r7, pc}

	g.emitLiteralPool()
}

func (g *Gen) allocSlot(name string, ty ast.Type) int32 {
	slot := g.localSlots
	g.localSlots++
	if name != "" {
		g.locals[name] = localVar{slot: slot, typ: ty}
	}
	return slot
}

func roundUp4(n uint32) uint32 { return (n + 3) &^ 3 }

func immSPAdd(imm7 uint32) uint16 { return uint16(0xB000 | (imm7 & 0x7F)) }
func immSPSub(imm7 uint32) uint16 { return uint16(0xB080 | (imm7 & 0x7F)) }

func (g *Gen) patchSPSub(offset int32, imm7 uint32) {
	binary.LittleEndian.PutUint16(g.text[offset:], immSPSub(imm7))
}

// --- instruction emission -------------------------------------------------

func (g *Gen) emit16(hw uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], hw)
	g.text = append(g.text, b[:]...)
}

func (g *Gen) emitStoreSlot(reg int, slot int32) {
	g.emit16(uint16(0x9000 | (reg << 8) | int(slot))) // str rN, [sp, #slot*4]
}

func (g *Gen) emitLoadSlot(reg int, slot int32) {
	g.emit16(uint16(0x9800 | (reg << 8) | int(slot))) // ldr rN, [sp, #slot*4]
}

func (g *Gen) emitAddrOfSlot(reg int, slot int32) {
	g.emit16(uint16(0xA800 | (reg << 8) | int(slot))) // add rN, sp, #slot*4
}

func movImm(rd int, imm8 uint32) uint16   { return uint16(0x2000 | (rd << 8) | int(imm8&0xFF)) }
func addImm(rd int, imm8 uint32) uint16   { return uint16(0x3000 | (rd << 8) | int(imm8&0xFF)) }
func movReg(rd, rm int) uint16            { return uint16(0x0000 | (rm << 3) | rd) } // lsls rd, rm, #0
func negReg(rd, rm int) uint16            { return uint16(0x4240 | (rm << 3) | rd) } // rsb rd, rm, #0
func mvnReg(rd, rm int) uint16            { return uint16(0x43C0 | (rm << 3) | rd) }
func cmpReg(rn, rm int) uint16            { return uint16(0x4280 | (rm << 3) | rn) }
func pushReg(r int) uint16                { return uint16(0xB400 | (1 << r)) }
func popReg(r int) uint16                 { return uint16(0xBC00 | (1 << r)) }
func ldrImm0(rt, rn int) uint16           { return uint16(0x6800 | (rn << 3) | rt) } // ldr rt, [rn, #0]
func strImm0(rt, rn int) uint16           { return uint16(0x6000 | (rn << 3) | rt) } // str rt, [rn, #0]
func ldrbImm0(rt, rn int) uint16          { return uint16(0x7800 | (rn << 3) | rt) } // ldrb rt, [rn, #0]
func strbImm0(rt, rn int) uint16          { return uint16(0x7000 | (rn << 3) | rt) } // strb rt, [rn, #0]
func cmpImm0(rn int) uint16               { return uint16(0x2800 | (rn << 8)) }      // cmp rn, #0
func svc() uint16                         { return 0xDF00 }
func mulReg(rd, rm int) uint16            { return uint16(0x4340 | (rm << 3) | rd) }
func andReg(rd, rm int) uint16            { return uint16(0x4000 | (rm << 3) | rd) }
func orrReg(rd, rm int) uint16            { return uint16(0x4300 | (rm << 3) | rd) }
func eorReg(rd, rm int) uint16            { return uint16(0x4040 | (rm << 3) | rd) }
func lslReg(rd, rm int) uint16            { return uint16(0x4080 | (rm << 3) | rd) }
func lsrReg(rd, rm int) uint16            { return uint16(0x40C0 | (rm << 3) | rd) }
func addRegs(rd, rn, rm int) uint16       { return uint16(0x1800 | (rm << 6) | (rn << 3) | rd) }
func subRegs(rd, rn, rm int) uint16       { return uint16(0x1A00 | (rm << 6) | (rn << 3) | rd) }
func ldrPCRel(rd int, imm8 uint32) uint16 { return uint16(0x4800 | (rd << 8) | int(imm8&0xFF)) }

// loadImm materializes a constant into rd, per spec §4.G's literal-loading
// rule: [0,255] is a single MOV, [-128,-1] is MOV+NEG, anything wider goes
// through the function's end-of-function literal pool.
func (g *Gen) loadImm(rd int, v int32) {
	switch {
	case v >= 0 && v <= 255:
		g.emit16(movImm(rd, uint32(v)))
	case v >= -128 && v < 0:
		g.emit16(movImm(rd, uint32(-v)))
		g.emit16(negReg(rd, rd))
	default:
		g.loadFromPool(rd, uint32(v), -1)
	}
}

func (g *Gen) loadFromPool(rd int, value uint32, symbolIdx int) {
	instrOffset := int32(len(g.text))
	g.pool = append(g.pool, litEntry{instrOffset: instrOffset, value: value, symbolIdx: symbolIdx})
	g.emit16(ldrPCRel(rd, 0)) // patched once the pool's position is known
}

func (g *Gen) emitLiteralPool() {
	if len(g.pool) == 0 {
		return
	}
	if len(g.text)%4 != 0 {
		g.emit16(0x46C0) // nop, to word-align the pool
	}
	poolBase := int32(len(g.text))
	for i, e := range g.pool {
		wordOff := poolBase + int32(i)*4
		var word [4]byte
		binary.LittleEndian.PutUint32(word[:], e.value)
		g.text = append(g.text, word[:]...)
		if e.symbolIdx >= 0 {
			g.relocs = append(g.relocs, mimi.Relocation{
				Offset: uint32(wordOff), Section: mimi.SectText,
				Type: mimi.RelocDataPtr, SymbolIdx: uint32(e.symbolIdx),
			})
		}
		pcAt := e.instrOffset + 4
		pcAt &^= 3
		imm8 := uint32(wordOff-pcAt) / 4
		binary.LittleEndian.PutUint16(g.text[e.instrOffset:], ldrPCRel(int(decodeRd(g.text[e.instrOffset:])), imm8))
	}
}

func decodeRd(b []byte) uint16 {
	hw := binary.LittleEndian.Uint16(b)
	return (hw >> 8) & 0x7
}

// --- labels and branches --------------------------------------------------

func (g *Gen) newLabel() int32 {
	g.labels = append(g.labels, -1)
	return int32(len(g.labels) - 1)
}

func (g *Gen) bindLabel(id int32) {
	pos := int32(len(g.text))
	g.labels[id] = pos
	for _, pb := range g.pending[id] {
		g.patchBranch(pb.offset, pos, pb.cond)
	}
	delete(g.pending, id)
}

// condAL marks an unconditional branch in a pendingBranch/patchBranch call.
const condAL = -1

func (g *Gen) emitBranch(labelID int32, cond int32) {
	offset := int32(len(g.text))
	if bound := g.labels[labelID]; bound >= 0 {
		g.emit16(0) // placeholder, immediately overwritten
		g.patchBranch(offset, bound, cond)
		return
	}
	g.pending[labelID] = append(g.pending[labelID], pendingBranch{offset: offset, cond: cond})
	g.emit16(0)
}

func (g *Gen) patchBranch(instrOffset, target int32, cond int32) {
	rel := target - (instrOffset + 4)
	var hw uint16
	if cond == condAL {
		hw = uint16(0xE000 | ((rel >> 1) & 0x7FF))
	} else {
		hw = uint16(0xD000 | (uint16(cond) << 8) | (uint16(rel>>1) & 0xFF))
	}
	binary.LittleEndian.PutUint16(g.text[instrOffset:], hw)
}

// ARM condition codes this codegen uses for CMP-then-BCC lowering.
const (
	condEQ = 0x0
	condNE = 0x1
	condGE = 0xA
	condLT = 0xB
	condGT = 0xC
	condLE = 0xD
)

func condFor(op token.Kind) int32 {
	switch op {
	case token.Eq:
		return condEQ
	case token.Ne:
		return condNE
	case token.Lt:
		return condLT
	case token.Gt:
		return condGT
	case token.Le:
		return condLE
	case token.Ge:
		return condGE
	default:
		return condAL
	}
}
