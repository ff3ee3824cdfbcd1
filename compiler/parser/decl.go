package parser

import (
	"mimic/compiler/ast"
	"mimic/compiler/token"
)

// typedefs maps a typedef'd name to the type it stands for — entered into
// the type namespace and matched wherever a type specifier is expected
// (spec §4.F).
type typedefEntry struct {
	ty ast.Type
}

// parseTypeSpecifier consumes storage-class/qualifier noise and the base
// type keyword, returning the resulting ast.Type. typedef names are looked
// up via p.typedefs.
func (p *Parser) parseTypeSpecifier() ast.Type {
	unsigned := false
	var kind ast.TypeKind = ast.TypeInt
	sawBase := false

	for {
		switch p.cur.Kind {
		case token.KwConst, token.KwVolatile, token.KwStatic, token.KwExtern,
			token.KwRegister, token.KwAuto:
			p.advance()
		case token.KwUnsigned:
			unsigned = true
			p.advance()
		case token.KwSigned:
			p.advance()
		case token.KwVoid:
			kind, sawBase = ast.TypeVoid, true
			p.advance()
		case token.KwChar:
			kind, sawBase = ast.TypeChar, true
			p.advance()
		case token.KwShort, token.KwInt:
			kind, sawBase = ast.TypeInt, true
			p.advance()
		case token.KwLong:
			kind, sawBase = ast.TypeLong, true
			p.advance()
		case token.KwStruct, token.KwUnion, token.KwEnum:
			// Parsed for grammar completeness; codegen restricts these to
			// declaration-only use (spec §4.F: "codegen may restrict").
			p.advance()
			if p.at(token.Ident) {
				p.advance()
			}
			if p.accept(token.LBrace) {
				depth := 1
				for depth > 0 && !p.at(token.EOF) {
					if p.at(token.LBrace) {
						depth++
					} else if p.at(token.RBrace) {
						depth--
					}
					p.advance()
				}
			}
			sawBase = true
		case token.KwTypedef:
			p.advance()
			ty := p.parseTypeSpecifier()
			for p.accept(token.Star) {
				ty = ast.Type{Kind: ast.TypePointer, Elem: p.tree.AddType(ty)}
			}
			name := p.expect(token.Ident, "identifier in typedef")
			p.expect(token.Semicolon, "';' after typedef")
			p.typedefs[p.strs.String(name.Value)] = typedefEntry{ty: ty}
			return p.parseTypeSpecifier()
		case token.Ident:
			if td, ok := p.typedefs[p.strs.String(p.cur.Value)]; ok && !sawBase {
				kind, sawBase = td.ty.Kind, true
				p.advance()
			} else {
				if !sawBase {
					p.errorf("expected a type specifier")
				}
				return ast.Type{Kind: kind, Unsigned: unsigned, Elem: -1}
			}
		default:
			if !sawBase {
				p.errorf("expected a type specifier")
			}
			return ast.Type{Kind: kind, Unsigned: unsigned, Elem: -1}
		}
	}
}

// parseTopLevel parses one top-level declaration: a function prototype or
// definition, or a global variable declaration with optional initializer
// (spec §4.F).
func (p *Parser) parseTopLevel() {
	if p.typedefs == nil {
		p.typedefs = make(map[string]typedefEntry)
	}

	before := len(p.errors)
	ty := p.parseTypeSpecifier()
	for p.accept(token.Star) {
		ty = ast.Type{Kind: ast.TypePointer, Elem: p.tree.AddType(ty)}
	}
	nameTok := p.expect(token.Ident, "identifier in top-level declaration")
	name := p.strs.String(nameTok.Value)

	if p.at(token.LParen) {
		p.parseFuncRest(name, ty)
	} else {
		ty = p.parseArraySuffix(ty)
		init := int32(-1)
		if p.accept(token.Assign) {
			init = p.parseAssignExpr()
		}
		p.expect(token.Semicolon, "';' after global declaration")
		p.tree.Globals = append(p.tree.Globals, ast.Global{Name: name, Type: ty, Init: init})
	}

	if len(p.errors) > before && !isTypeStart(p.cur.Kind) && !p.at(token.EOF) {
		p.synchronize()
	}
}

func (p *Parser) parseFuncRest(name string, retType ast.Type) {
	p.expect(token.LParen, "'(' in function declarator")
	var params []ast.Param
	if !p.at(token.RParen) && !(p.at(token.KwVoid) && p.peekNext().Kind == token.RParen) {
		for {
			pty := p.parseTypeSpecifier()
			for p.accept(token.Star) {
				pty = ast.Type{Kind: ast.TypePointer, Elem: p.tree.AddType(pty)}
			}
			pname := ""
			if p.at(token.Ident) {
				pname = p.strs.String(p.advance().Value)
			}
			params = append(params, ast.Param{Name: pname, Type: pty})
			if !p.accept(token.Comma) {
				break
			}
		}
	} else if p.at(token.KwVoid) {
		p.advance()
	}
	p.expect(token.RParen, "')' after parameters")

	fn := ast.Func{Name: name, ReturnType: retType, Params: params, Body: -1}
	if p.at(token.LBrace) {
		fn.IsDefined = true
		fn.Body = p.parseCompound()
	} else {
		p.expect(token.Semicolon, "';' after function prototype")
	}
	p.tree.Funcs = append(p.tree.Funcs, fn)
}
