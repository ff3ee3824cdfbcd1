package codegen

import (
	"mimic/compiler/ast"
	"mimic/mkerr"
)

// genStmt emits code for one statement.
func (g *Gen) genStmt(idx int32) {
	if idx < 0 {
		return
	}
	s := g.tree.Stmts[idx]
	switch s.Kind {
	case ast.StmtCompound:
		for _, child := range s.Body {
			g.genStmt(child)
		}
	case ast.StmtExpr:
		g.genExpr(s.Expr)
	case ast.StmtIf:
		g.genIf(s)
	case ast.StmtWhile:
		g.genWhile(s)
	case ast.StmtDoWhile:
		g.genDoWhile(s)
	case ast.StmtFor:
		g.genFor(s)
	case ast.StmtReturn:
		if s.Expr >= 0 {
			g.genExpr(s.Expr)
		}
		g.emitBranch(g.epilogueLabel, condAL)
	case ast.StmtBreak:
		if len(g.loops) == 0 {
			g.errorf(mkerr.KindSyntax, "codegen: break outside a loop")
			return
		}
		g.emitBranch(g.loops[len(g.loops)-1].breakLabel, condAL)
	case ast.StmtContinue:
		if len(g.loops) == 0 {
			g.errorf(mkerr.KindSyntax, "codegen: continue outside a loop")
			return
		}
		g.emitBranch(g.loops[len(g.loops)-1].continueLabel, condAL)
	case ast.StmtDeclare:
		g.genDeclare(s)
	case ast.StmtNull:
	default:
		g.errorf(mkerr.KindNosys, "codegen: unsupported statement kind %d", s.Kind)
	}
}

func (g *Gen) genDeclare(s ast.Stmt) {
	slot := g.allocSlot(s.DeclName, s.DeclType)
	if s.Expr >= 0 {
		g.genExpr(s.Expr)
		g.emitStoreSlot(r0, slot)
	}
}

func (g *Gen) genIf(s ast.Stmt) {
	elseLbl := g.newLabel()
	g.genExpr(s.Expr)
	g.emit16(cmpImm0(r0))
	g.emitBranch(elseLbl, condEQ)
	g.genStmt(s.Then)
	if s.Else < 0 {
		g.bindLabel(elseLbl)
		return
	}
	endLbl := g.newLabel()
	g.emitBranch(endLbl, condAL)
	g.bindLabel(elseLbl)
	g.genStmt(s.Else)
	g.bindLabel(endLbl)
}

func (g *Gen) genWhile(s ast.Stmt) {
	top := g.newLabel()
	end := g.newLabel()
	g.loops = append(g.loops, loopCtx{breakLabel: end, continueLabel: top})

	g.bindLabel(top)
	g.genExpr(s.Expr)
	g.emit16(cmpImm0(r0))
	g.emitBranch(end, condEQ)
	g.genStmt(s.Then)
	g.emitBranch(top, condAL)
	g.bindLabel(end)

	g.loops = g.loops[:len(g.loops)-1]
}

func (g *Gen) genDoWhile(s ast.Stmt) {
	top := g.newLabel()
	contLbl := g.newLabel()
	end := g.newLabel()
	g.loops = append(g.loops, loopCtx{breakLabel: end, continueLabel: contLbl})

	g.bindLabel(top)
	g.genStmt(s.Then)
	g.bindLabel(contLbl)
	g.genExpr(s.Expr)
	g.emit16(cmpImm0(r0))
	g.emitBranch(top, condNE)
	g.bindLabel(end)

	g.loops = g.loops[:len(g.loops)-1]
}

func (g *Gen) genFor(s ast.Stmt) {
	if s.Init >= 0 {
		g.genStmt(s.Init)
	}
	top := g.newLabel()
	contLbl := g.newLabel()
	end := g.newLabel()
	g.loops = append(g.loops, loopCtx{breakLabel: end, continueLabel: contLbl})

	g.bindLabel(top)
	if s.Expr >= 0 {
		g.genExpr(s.Expr)
		g.emit16(cmpImm0(r0))
		g.emitBranch(end, condEQ)
	}
	g.genStmt(s.Then)
	g.bindLabel(contLbl)
	if s.Post >= 0 {
		g.genExpr(s.Post)
	}
	g.emitBranch(top, condAL)
	g.bindLabel(end)

	g.loops = g.loops[:len(g.loops)-1]
}
