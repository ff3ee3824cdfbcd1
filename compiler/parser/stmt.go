package parser

import (
	"mimic/compiler/ast"
	"mimic/compiler/token"
)

// parseStmt parses one statement, recovering to the next synchronizing
// point (';', '}', or EOF) on error, per spec §4.F.
func (p *Parser) parseStmt() int32 {
	switch p.cur.Kind {
	case token.LBrace:
		return p.parseCompound()
	case token.KwIf:
		return p.parseIf()
	case token.KwWhile:
		return p.parseWhile()
	case token.KwDo:
		return p.parseDoWhile()
	case token.KwFor:
		return p.parseFor()
	case token.KwReturn:
		return p.parseReturn()
	case token.KwBreak:
		p.advance()
		p.expect(token.Semicolon, "';' after break")
		return p.tree.AddStmt(ast.Stmt{Kind: ast.StmtBreak, Expr: -1, Init: -1, Post: -1, Then: -1, Else: -1})
	case token.KwContinue:
		p.advance()
		p.expect(token.Semicolon, "';' after continue")
		return p.tree.AddStmt(ast.Stmt{Kind: ast.StmtContinue, Expr: -1, Init: -1, Post: -1, Then: -1, Else: -1})
	case token.Semicolon:
		p.advance()
		return p.tree.AddStmt(ast.Stmt{Kind: ast.StmtNull, Expr: -1, Init: -1, Post: -1, Then: -1, Else: -1})
	default:
		if isTypeStart(p.cur.Kind) {
			return p.parseDeclareStmt()
		}
		return p.parseExprStmt()
	}
}

func (p *Parser) parseCompound() int32 {
	p.expect(token.LBrace, "'{'")
	var body []int32
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		before := len(p.errors)
		s := p.parseStmt()
		body = append(body, s)
		if len(p.errors) > before {
			p.synchronize()
		}
	}
	p.expect(token.RBrace, "'}'")
	return p.tree.AddStmt(ast.Stmt{Kind: ast.StmtCompound, Body: body, Expr: -1, Init: -1, Post: -1, Then: -1, Else: -1})
}

func (p *Parser) parseIf() int32 {
	p.advance()
	p.expect(token.LParen, "'(' after if")
	cond := p.ParseExpr()
	p.expect(token.RParen, "')' after if condition")
	then := p.parseStmt()
	els := int32(-1)
	if p.accept(token.KwElse) {
		els = p.parseStmt()
	}
	return p.tree.AddStmt(ast.Stmt{Kind: ast.StmtIf, Expr: cond, Then: then, Else: els, Init: -1, Post: -1})
}

func (p *Parser) parseWhile() int32 {
	p.advance()
	p.expect(token.LParen, "'(' after while")
	cond := p.ParseExpr()
	p.expect(token.RParen, "')' after while condition")
	body := p.parseStmt()
	return p.tree.AddStmt(ast.Stmt{Kind: ast.StmtWhile, Expr: cond, Then: body, Init: -1, Post: -1, Else: -1})
}

func (p *Parser) parseDoWhile() int32 {
	p.advance()
	body := p.parseStmt()
	p.expect(token.KwWhile, "'while' after do-block")
	p.expect(token.LParen, "'(' after while")
	cond := p.ParseExpr()
	p.expect(token.RParen, "')' after condition")
	p.expect(token.Semicolon, "';' after do-while")
	return p.tree.AddStmt(ast.Stmt{Kind: ast.StmtDoWhile, Expr: cond, Then: body, Init: -1, Post: -1, Else: -1})
}

func (p *Parser) parseFor() int32 {
	p.advance()
	p.expect(token.LParen, "'(' after for")

	init := int32(-1)
	if !p.at(token.Semicolon) {
		if isTypeStart(p.cur.Kind) {
			init = p.parseDeclareClause()
		} else {
			e := p.ParseExpr()
			init = p.tree.AddStmt(ast.Stmt{Kind: ast.StmtExpr, Expr: e, Init: -1, Post: -1, Then: -1, Else: -1})
		}
	}
	p.expect(token.Semicolon, "';' after for-init")

	cond := int32(-1)
	if !p.at(token.Semicolon) {
		cond = p.ParseExpr()
	}
	p.expect(token.Semicolon, "';' after for-condition")

	post := int32(-1)
	if !p.at(token.RParen) {
		post = p.parseAssignExpr()
		for p.accept(token.Comma) {
			post = p.tree.AddExpr(ast.Expr{Kind: ast.ExprComma, A: post, B: p.parseAssignExpr()})
		}
	}
	p.expect(token.RParen, "')' after for-clauses")

	body := p.parseStmt()
	return p.tree.AddStmt(ast.Stmt{Kind: ast.StmtFor, Expr: cond, Init: init, Post: post, Then: body, Else: -1})
}

func (p *Parser) parseReturn() int32 {
	p.advance()
	e := int32(-1)
	if !p.at(token.Semicolon) {
		e = p.ParseExpr()
	}
	p.expect(token.Semicolon, "';' after return")
	return p.tree.AddStmt(ast.Stmt{Kind: ast.StmtReturn, Expr: e, Init: -1, Post: -1, Then: -1, Else: -1})
}

func (p *Parser) parseExprStmt() int32 {
	e := p.ParseExpr()
	p.expect(token.Semicolon, "';' after expression")
	return p.tree.AddStmt(ast.Stmt{Kind: ast.StmtExpr, Expr: e, Init: -1, Post: -1, Then: -1, Else: -1})
}

// parseDeclareStmt parses a local variable declaration statement, ending in
// ';'. Only a single declarator is supported per statement, matching the
// codegen's one-slot-per-declare model (spec §4.G's local-slot allocation).
func (p *Parser) parseDeclareStmt() int32 {
	s := p.parseDeclareClause()
	p.expect(token.Semicolon, "';' after declaration")
	return s
}

func (p *Parser) parseDeclareClause() int32 {
	ty := p.parseTypeSpecifier()
	for p.accept(token.Star) {
		ty = ast.Type{Kind: ast.TypePointer, Elem: p.tree.AddType(ty)}
	}
	name := p.expect(token.Ident, "identifier in declaration")
	ty = p.parseArraySuffix(ty)

	init := int32(-1)
	if p.accept(token.Assign) {
		init = p.parseAssignExpr()
	}
	return p.tree.AddStmt(ast.Stmt{
		Kind: ast.StmtDeclare, DeclName: p.strs.String(name.Value), DeclType: ty,
		Expr: init, Init: -1, Post: -1, Then: -1, Else: -1,
	})
}

func (p *Parser) parseArraySuffix(ty ast.Type) ast.Type {
	if p.accept(token.LBracket) {
		n := uint32(0)
		if p.at(token.IntLit) {
			n = p.advance().Value
		}
		p.expect(token.RBracket, "']' in array declarator")
		return ast.Type{Kind: ast.TypeArray, Elem: p.tree.AddType(ty), ArrayLen: n}
	}
	return ty
}

func isTypeStart(k token.Kind) bool {
	switch k {
	case token.KwVoid, token.KwChar, token.KwShort, token.KwInt, token.KwLong,
		token.KwSigned, token.KwUnsigned, token.KwFloat, token.KwDouble,
		token.KwConst, token.KwVolatile, token.KwStatic, token.KwExtern,
		token.KwTypedef, token.KwRegister, token.KwAuto,
		token.KwStruct, token.KwUnion, token.KwEnum:
		return true
	default:
		return false
	}
}
