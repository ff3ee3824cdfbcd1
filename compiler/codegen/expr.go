package codegen

import (
	"mimic/abi"
	"mimic/compiler/ast"
	"mimic/compiler/token"
	"mimic/mimi"
	"mimic/mkerr"
)

// genExpr evaluates idx and leaves its value in r0, per the fixed register
// convention codegen.go documents.
func (g *Gen) genExpr(idx int32) {
	e := g.tree.Exprs[idx]
	switch e.Kind {
	case ast.ExprIntLit, ast.ExprCharLit:
		g.loadImm(r0, int32(e.Value))
	case ast.ExprStringLit:
		g.genStringLit(e.Value)
	case ast.ExprIdent:
		g.genIdentLoad(idx)
	case ast.ExprUnary:
		g.genUnary(idx, e)
	case ast.ExprBinary:
		g.genBinary(e)
	case ast.ExprAssign:
		g.genAssign(e)
	case ast.ExprCall:
		g.genCall(e)
	case ast.ExprIndex:
		g.genLValueAddr(idx)
		if g.lastAddrSize == 1 {
			g.emit16(ldrbImm0(r0, r0))
		} else {
			g.emit16(ldrImm0(r0, r0))
		}
	case ast.ExprCond:
		g.genTernary(e)
	case ast.ExprComma:
		g.genExpr(e.A)
		g.genExpr(e.B)
	default:
		g.errorf(mkerr.KindNosys, "codegen: unsupported expression kind %d", e.Kind)
	}
}

func (g *Gen) genStringLit(off uint32) {
	idx, ok := g.stringSyms[off]
	if !ok {
		s := g.strs.String(off)
		bytes := append([]byte(s), 0)
		dataOff := uint32(len(g.data))
		g.data = append(g.data, bytes...)
		name := syntheticName("str", off)
		g.defineSymbol(name, mimi.SectData, dataOff)
		idx = g.symIndex[name]
		g.stringSyms[off] = idx
	}
	g.loadFromPool(r0, 0, idx)
}

func syntheticName(prefix string, n uint32) string {
	const hex = "0123456789abcdef"
	b := []byte(prefix + "$")
	if n == 0 {
		return string(append(b, '0'))
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{hex[n%16]}, digits...)
		n /= 16
	}
	return string(append(b, digits...))
}

// genIdentLoad loads the named identifier's value into r0: a local/param
// loads its stack slot directly; an array decays to its base address; a
// global reads through the data section via the literal pool.
func (g *Gen) genIdentLoad(idx int32) {
	name := g.strs.String(g.tree.Exprs[idx].Value)
	if lv, ok := g.locals[name]; ok {
		if lv.typ.Kind == ast.TypeArray {
			g.emitAddrOfSlot(r0, lv.slot)
			return
		}
		g.emitLoadSlot(r0, lv.slot)
		return
	}
	symIdx := g.symbolIndex(name)
	g.loadFromPool(r1, 0, symIdx)
	g.emit16(ldrImm0(r0, r1))
}

// genLValueAddr evaluates idx as an lvalue and leaves its ADDRESS in r0. It
// also sets g.lastAddrSize to that address's element size (1 for a char
// array/pointer element, 4 otherwise) so callers know whether to load/store
// through LDRB/STRB or the word-sized LDR/STR. Callers that need the value
// must read g.lastAddrSize immediately, before any further genExpr/
// genLValueAddr call that could overwrite it.
func (g *Gen) genLValueAddr(idx int32) {
	e := g.tree.Exprs[idx]
	switch e.Kind {
	case ast.ExprIdent:
		name := g.strs.String(e.Value)
		g.lastAddrSize = 4
		if lv, ok := g.locals[name]; ok {
			g.emitAddrOfSlot(r0, lv.slot)
			return
		}
		symIdx := g.symbolIndex(name)
		g.loadFromPool(r0, 0, symIdx)
	case ast.ExprUnary:
		if token.Kind(e.Op) == token.Star {
			g.genExpr(e.A) // address is just the pointer's value
			g.lastAddrSize = 4
			return
		}
		g.errorf(mkerr.KindNosys, "codegen: unsupported lvalue unary op")
	case ast.ExprIndex:
		elemSize := g.indexElemSize(e.A)
		g.genBaseAddr(e.A)
		g.emit16(pushReg(r0))
		g.genExpr(e.B)
		g.emit16(movReg(r1, r0))
		g.emit16(popReg(r0))
		if elemSize > 1 {
			g.scaleReg(r1, elemSize)
		}
		g.emit16(addRegs(r0, r0, r1))
		g.lastAddrSize = elemSize
	default:
		g.errorf(mkerr.KindNosys, "codegen: expression is not an lvalue")
	}
}

// genBaseAddr leaves in r0 the base address an index expression indexes
// from: an array's own storage address, or a pointer's pointee value.
func (g *Gen) genBaseAddr(idx int32) {
	e := g.tree.Exprs[idx]
	if e.Kind == ast.ExprIdent {
		name := g.strs.String(e.Value)
		if lv, ok := g.locals[name]; ok && lv.typ.Kind == ast.TypeArray {
			g.emitAddrOfSlot(r0, lv.slot)
			return
		}
	}
	g.genExpr(idx)
}

func (g *Gen) indexElemSize(baseIdx int32) uint32 {
	e := g.tree.Exprs[baseIdx]
	if e.Kind == ast.ExprIdent {
		name := g.strs.String(e.Value)
		if lv, ok := g.locals[name]; ok {
			switch lv.typ.Kind {
			case ast.TypeArray, ast.TypePointer:
				return typeSize(g.tree, g.tree.Types[lv.typ.Elem])
			}
		}
	}
	return 4
}

// scaleReg multiplies the value in r by a known element size via MUL
// against a constant loaded into r0, which is pushed and popped around it.
// Callers invoke this with the index value in r (r1) and the base in r0
// (see genLValueAddr's ExprIndex case).
func (g *Gen) scaleReg(r int, size uint32) {
	g.emit16(pushReg(r0))
	g.loadImm(r0, int32(size))
	g.emit16(mulReg(r, r0))
	g.emit16(popReg(r0))
}

func (g *Gen) genUnary(idx int32, e ast.Expr) {
	op := token.Kind(e.Op)
	switch op {
	case token.Minus:
		g.genExpr(e.A)
		g.emit16(negReg(r0, r0))
	case token.Tilde:
		g.genExpr(e.A)
		g.emit16(mvnReg(r0, r0))
	case token.Bang:
		g.genExpr(e.A)
		g.emit16(cmpImm0(r0))
		g.genBoolFromCond(condEQ)
	case token.Amp:
		g.genLValueAddr(e.A)
	case token.Star:
		g.genExpr(e.A)
		g.emit16(ldrImm0(r0, r0))
	case token.PlusPlus, token.MinusMinus:
		g.genIncDec(idx, e, op)
	case token.KwSizeof:
		g.loadImm(r0, int32(g.sizeofOperand(e.A)))
	default:
		g.errorf(mkerr.KindNosys, "codegen: unsupported unary operator")
	}
}

// sizeofOperand resolves the byte size of a sizeof operand. Only an
// identifier naming a tracked local (spec's declared types: char/int/
// pointer/array) is resolved exactly; anything else — a global (whose
// declared type isn't retained past emitGlobal), a bare type name the
// parser couldn't actually parse as a standalone operand, or any other
// expression — defaults to 4, matching this target's general int-sized
// word convention.
func (g *Gen) sizeofOperand(idx int32) uint32 {
	e := g.tree.Exprs[idx]
	if e.Kind == ast.ExprIdent {
		name := g.strs.String(e.Value)
		if lv, ok := g.locals[name]; ok {
			return typeSize(g.tree, lv.typ)
		}
	}
	return 4
}

func (g *Gen) genBoolFromCond(cond int32) {
	trueLbl := g.newLabel()
	endLbl := g.newLabel()
	g.emitBranch(trueLbl, cond)
	g.emit16(movImm(r0, 0))
	g.emitBranch(endLbl, condAL)
	g.bindLabel(trueLbl)
	g.emit16(movImm(r0, 1))
	g.bindLabel(endLbl)
}

func (g *Gen) genIncDec(idx int32, e ast.Expr, op token.Kind) {
	postfix := e.B == 1
	g.genLValueAddr(e.A)
	byteSized := g.lastAddrSize == 1
	g.emit16(pushReg(r0)) // save address
	if byteSized {
		g.emit16(ldrbImm0(r1, r0))
	} else {
		g.emit16(ldrImm0(r1, r0))
	}
	if postfix {
		g.emit16(movReg(r0, r1)) // old value is the expression's result
	}
	if op == token.PlusPlus {
		g.emit16(addImm(r1, 1))
	} else {
		g.emit16(subImm1(r1))
	}
	g.emit16(popReg(r0)) // restore address
	if byteSized {
		g.emit16(strbImm0(r1, r0))
	} else {
		g.emit16(strImm0(r1, r0))
	}
	if !postfix {
		g.emit16(movReg(r0, r1))
	}
}

func subImm1(rd int) uint16 { return uint16(0x3800 | (rd << 8) | 1) } // sub rd,#1

func (g *Gen) genBinary(e ast.Expr) {
	op := token.Kind(e.Op)
	switch op {
	case token.AndAnd:
		g.genShortCircuit(e, true)
		return
	case token.OrOr:
		g.genShortCircuit(e, false)
		return
	}

	g.genExpr(e.B)
	g.emit16(pushReg(r0))
	g.genExpr(e.A)
	g.emit16(popReg(r1))

	switch op {
	case token.Plus:
		g.emit16(addRegs(r0, r0, r1))
	case token.Minus:
		g.emit16(subRegs(r0, r0, r1))
	case token.Star:
		g.emit16(mulReg(r0, r1))
	case token.Amp:
		g.emit16(andReg(r0, r1))
	case token.Pipe:
		g.emit16(orrReg(r0, r1))
	case token.Caret:
		g.emit16(eorReg(r0, r1))
	case token.Shl:
		g.emit16(lslReg(r0, r1))
	case token.Shr:
		g.emit16(lsrReg(r0, r1))
	case token.Slash, token.Percent:
		g.genDivMod(op)
	case token.Eq, token.Ne, token.Lt, token.Gt, token.Le, token.Ge:
		g.emit16(cmpReg(r0, r1))
		g.genBoolFromCond(condFor(op))
	default:
		g.errorf(mkerr.KindNosys, "codegen: unsupported binary operator")
	}
}

// genDivMod lowers '/' and '%' via the AEABI runtime-support convention
// (__aeabi_idivmod: numerator in r0, denominator in r1, quotient returned
// in r0 and remainder in r1) rather than a syscall trampoline — Cortex-M0+
// has no integer divide instruction, and this is the same convention
// arm-none-eabi-gcc uses for the identical target, resolved against a
// runtime-support object linked in alongside the compiled program. r0/r1
// already hold dividend/divisor from genBinary's operand evaluation, so no
// register shuffling is needed before the call.
func (g *Gen) genDivMod(op token.Kind) {
	idx := g.symbolIndex("__aeabi_idivmod")
	g.emitCallTo(idx)
	if op == token.Percent {
		g.emit16(movReg(r0, r1))
	}
}

func (g *Gen) genShortCircuit(e ast.Expr, isAnd bool) {
	shortLbl := g.newLabel()
	endLbl := g.newLabel()
	g.genExpr(e.A)
	g.emit16(cmpImm0(r0))
	if isAnd {
		g.emitBranch(shortLbl, condEQ)
	} else {
		g.emitBranch(shortLbl, condNE)
	}
	g.genExpr(e.B)
	g.emit16(cmpImm0(r0))
	if isAnd {
		g.emitBranch(shortLbl, condEQ)
		g.emit16(movImm(r0, 1))
	} else {
		g.emitBranch(shortLbl, condNE)
		g.emit16(movImm(r0, 0))
	}
	g.emitBranch(endLbl, condAL)
	g.bindLabel(shortLbl)
	if isAnd {
		g.emit16(movImm(r0, 0))
	} else {
		g.emit16(movImm(r0, 1))
	}
	g.bindLabel(endLbl)
}

func (g *Gen) genTernary(e ast.Expr) {
	elseLbl := g.newLabel()
	endLbl := g.newLabel()
	g.genExpr(e.A)
	g.emit16(cmpImm0(r0))
	g.emitBranch(elseLbl, condEQ)
	g.genExpr(e.B)
	g.emitBranch(endLbl, condAL)
	g.bindLabel(elseLbl)
	g.genExpr(e.C)
	g.bindLabel(endLbl)
}

func (g *Gen) genAssign(e ast.Expr) {
	op := token.Kind(e.Op)
	if op == token.Assign {
		g.genExpr(e.B)
		g.emit16(pushReg(r0))
		g.genLValueAddr(e.A)
		byteSized := g.lastAddrSize == 1
		g.emit16(popReg(r1))
		if byteSized {
			g.emit16(strbImm0(r1, r0))
		} else {
			g.emit16(strImm0(r1, r0))
		}
		g.emit16(movReg(r0, r1))
		return
	}

	g.genLValueAddr(e.A)
	byteSized := g.lastAddrSize == 1
	g.emit16(pushReg(r0))
	if byteSized {
		g.emit16(ldrbImm0(r1, r0))
	} else {
		g.emit16(ldrImm0(r1, r0))
	}
	g.emit16(pushReg(r1))
	g.genExpr(e.B)
	g.emit16(movReg(r1, r0))
	// restore current value into r0 (the "left" operand of the compound op)
	g.emit16(popReg(r0))
	g.emitCompoundAlu(op, r0, r1)
	g.emit16(movReg(r1, r0)) // r1 = new value
	g.emit16(popReg(r0)) // r0 = address
	if byteSized {
		g.emit16(strbImm0(r1, r0))
	} else {
		g.emit16(strImm0(r1, r0))
	}
	g.emit16(movReg(r0, r1))
}

func (g *Gen) emitCompoundAlu(op token.Kind, rd, rm int) {
	switch op {
	case token.PlusAssign:
		g.emit16(addRegs(rd, rd, rm))
	case token.MinusAssign:
		g.emit16(subRegs(rd, rd, rm))
	case token.StarAssign:
		g.emit16(mulReg(rd, rm))
	case token.AmpAssign:
		g.emit16(andReg(rd, rm))
	case token.PipeAssign:
		g.emit16(orrReg(rd, rm))
	case token.CaretAssign:
		g.emit16(eorReg(rd, rm))
	case token.ShlAssign:
		g.emit16(lslReg(rd, rm))
	case token.ShrAssign:
		g.emit16(lsrReg(rd, rm))
	default:
		g.errorf(mkerr.KindNosys, "codegen: unsupported compound-assignment operator")
	}
}

func (g *Gen) genCall(e ast.Expr) {
	name := g.strs.String(g.tree.Exprs[e.A].Value)

	if num, ok := abi.Lookup(name); ok {
		g.genCallArgs(e.Args)
		idx := g.symbolIndex(name)
		if g.symbols[idx].Type == mimi.SymExtern {
			g.symbols[idx] = mimi.Symbol{Name: name, Value: num, Type: mimi.SymSyscall}
		}
		g.loadImm(r7, int32(num))
		g.emit16(svc())
		return
	}

	g.genCallArgs(e.Args)
	idx := g.symbolIndex(name)
	g.emitCallTo(idx)
}

// genCallArgs evaluates up to 4 call arguments into r0-r3, left to right.
// Earlier arguments are spilled to the stack while later ones are
// evaluated (genExpr always clobbers r0), then popped back in order.
func (g *Gen) genCallArgs(args []int32) {
	n := len(args)
	if n > 4 {
		n = 4
		g.errorf(mkerr.KindNosys, "codegen: more than 4 call arguments")
	}
	for i := 0; i < n; i++ {
		g.genExpr(args[i])
		g.emit16(pushReg(r0))
	}
	for i := n - 1; i >= 0; i-- {
		g.emit16(popRegN(i))
	}
}

func popRegN(r int) uint16 { return popReg(r) }

// emitCallTo emits a placeholder BL against symbols[idx], recorded as a
// THUMB_CALL relocation the linker/loader resolve once the callee's final
// address is known (spec §4.G/§4.H).
func (g *Gen) emitCallTo(idx int) {
	offset := uint32(len(g.text))
	g.emit16(0xF000)
	g.emit16(0xD000)
	g.relocs = append(g.relocs, mimi.Relocation{
		Offset: offset, Section: mimi.SectText, Type: mimi.RelocThumbCall, SymbolIdx: uint32(idx),
	})
}
